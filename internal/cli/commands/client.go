package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/adapters/hub"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/adapters/rest"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/adapters/token"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/app/chat"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/cli/ui"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/config"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/observability"
)

// TokenEnv lets scripts pass a token without logging in.
const TokenEnv = "MENTORCHAT_TOKEN"

// client is everything a command needs to talk to the chat backend.
type client struct {
	cfg     *config.Config
	profile *config.Profile
	svc     *chat.Service
	logs    io.Closer
}

// newClient loads config and profile, sends logs to the profile directory
// and builds the chat service.
func newClient() (*client, error) {
	cfg := config.Load()

	profile, err := config.LoadProfile()
	if err != nil {
		ui.PrintError("failed to load profile: %v", err)
		return nil, fmt.Errorf("profile load failed")
	}
	profile.Apply(cfg)

	tokens := token.Chain{token.Env{Key: TokenEnv}, token.NewProfile()}
	if !profile.IsAuthenticated() && os.Getenv(TokenEnv) == "" {
		ui.PrintError("not authenticated, please login first")
		fmt.Println("\nRun 'mentorchat login' to authenticate.")
		return nil, domain.ErrCredentialMissing
	}

	logs, err := setupLogging(cfg)
	if err != nil {
		return nil, err
	}

	factory, err := hub.NewFactory(hub.OptionsFromConfig(cfg))
	if err != nil {
		_ = logs.Close()
		ui.PrintError("invalid hub settings: %v", err)
		return nil, fmt.Errorf("client creation failed")
	}

	gateway, err := rest.NewGateway(cfg.APIURL, tokens, cfg.RequestTimeout)
	if err != nil {
		_ = logs.Close()
		ui.PrintError("invalid API settings: %v", err)
		return nil, fmt.Errorf("client creation failed")
	}

	return &client{
		cfg:     cfg,
		profile: profile,
		svc:     chat.NewService(factory, tokens, gateway, chat.SettingsFromConfig(cfg)),
		logs:    logs,
	}, nil
}

// setupLogging writes logs to <profile dir>/mentorchat.log so they do not
// draw over the terminal UI.
func setupLogging(cfg *config.Config) (io.Closer, error) {
	dir, err := config.ProfileDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	return observability.Setup(observability.Options{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		Output:   "file",
		FilePath: filepath.Join(dir, "mentorchat.log"),
	})
}

// userID picks the sender id: the --as flag, then the saved profile.
func (c *client) userID(override string) (domain.UserID, error) {
	if override != "" {
		return domain.UserID(override), nil
	}
	if c.profile.UserID != "" {
		return domain.UserID(c.profile.UserID), nil
	}
	ui.PrintError("no user id, run 'mentorchat login --user <id>' or pass --as")
	return "", domain.NewInvalidInputError("user id is required")
}

func (c *client) Close() {
	_ = c.svc.Close()
	_ = c.logs.Close()
}
