package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type TransportMode string

const (
	TransportAuto        TransportMode = "auto"
	TransportWebSockets  TransportMode = "websockets"
	TransportLongPolling TransportMode = "longpolling"
)

// Config holds the chat client settings.
type Config struct {
	HubURL    string
	APIURL    string
	Transport TransportMode

	// inner tier delays, outer loop interval and the pause after a full close
	ReconnectDelays []time.Duration
	RetryInterval   time.Duration
	CloseGrace      time.Duration

	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ServerTimeout    time.Duration
	RequestTimeout   time.Duration

	DedupWindow              time.Duration
	PendingTimeout           time.Duration
	RollbackOnPersistFailure bool

	LogLevel  string
	LogFormat string
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", key, v, err)
		return def
	}
	return d
}

// getDurationListEnv reads a comma separated list such as "0,2s,2s,5s,5s".
// A bare number is read as milliseconds.
func getDurationListEnv(key string, def []time.Duration) []time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out, err := ParseDurationList(v)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", key, v, err)
		return def
	}
	return out
}

func ParseDurationList(s string) ([]time.Duration, error) {
	parts := strings.Split(s, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if ms, err := strconv.Atoi(p); err == nil {
			out = append(out, time.Duration(ms)*time.Millisecond)
			continue
		}
		d, err := time.ParseDuration(p)
		if err != nil {
			return nil, fmt.Errorf("parse delay %q: %w", p, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// DefaultReconnectDelays is the inner tier schedule for attempts 1-5.
func DefaultReconnectDelays() []time.Duration {
	return []time.Duration{0, 2 * time.Second, 2 * time.Second, 5 * time.Second, 5 * time.Second}
}

// Load reads all env vars and builds the config
func Load() *Config {
	mode := TransportMode(strings.ToLower(getEnv("MENTORCHAT_TRANSPORT", string(TransportAuto))))
	switch mode {
	case TransportWebSockets, TransportLongPolling:
	default:
		mode = TransportAuto
	}

	return &Config{
		HubURL:    getEnv("MENTORCHAT_HUB_URL", "http://localhost:8080/chathub"),
		APIURL:    getEnv("MENTORCHAT_API_URL", "http://localhost:8080"),
		Transport: mode,

		ReconnectDelays: getDurationListEnv("MENTORCHAT_RECONNECT_DELAYS", DefaultReconnectDelays()),
		RetryInterval:   getDurationEnv("MENTORCHAT_RETRY_INTERVAL", 3*time.Second),
		CloseGrace:      getDurationEnv("MENTORCHAT_CLOSE_GRACE", 5*time.Second),

		HandshakeTimeout: getDurationEnv("MENTORCHAT_HANDSHAKE_TIMEOUT", 15*time.Second),
		PingInterval:     getDurationEnv("MENTORCHAT_PING_INTERVAL", 15*time.Second),
		ServerTimeout:    getDurationEnv("MENTORCHAT_SERVER_TIMEOUT", 30*time.Second),
		RequestTimeout:   getDurationEnv("MENTORCHAT_REQUEST_TIMEOUT", 10*time.Second),

		DedupWindow:              getDurationEnv("MENTORCHAT_DEDUP_WINDOW", time.Second),
		PendingTimeout:           getDurationEnv("MENTORCHAT_PENDING_TIMEOUT", 30*time.Second),
		RollbackOnPersistFailure: getBoolEnv("MENTORCHAT_ROLLBACK_ON_PERSIST_FAILURE", false),

		LogLevel:  getEnv("MENTORCHAT_LOG_LEVEL", "info"),
		LogFormat: getEnv("MENTORCHAT_LOG_FORMAT", "json"),
	}
}
