package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// HubConfig configures the development hub (cmd/chathub).
type HubConfig struct {
	Addr           string        `mapstructure:"addr"`
	StorageBackend string        `mapstructure:"storage_backend"` // memory, firestore or postgres
	GCPProjectID   string        `mapstructure:"gcp_project"`
	DatabaseURL    string        `mapstructure:"database_url"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	HistoryLimit   int           `mapstructure:"history_limit"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`
}

// LoadHub reads an optional YAML file and CHATHUB_* environment variables.
func LoadHub(path string) (*HubConfig, error) {
	v := viper.New()

	v.SetDefault("addr", ":8080")
	v.SetDefault("storage_backend", "memory")
	v.SetDefault("ping_interval", 15*time.Second)
	v.SetDefault("poll_timeout", 20*time.Second)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("history_limit", 200)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("gcp_project", "")
	v.SetDefault("database_url", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("chathub")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CHATHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg HubConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *HubConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}

	switch c.StorageBackend {
	case "memory":
	case "firestore":
		if c.GCPProjectID == "" {
			return fmt.Errorf("gcp_project is required for the firestore backend")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid storage_backend: %s", c.StorageBackend)
	}

	if c.PingInterval <= 0 {
		return fmt.Errorf("ping_interval must be positive")
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("poll_timeout must be positive")
	}
	return nil
}
