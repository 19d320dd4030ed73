package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Profile is the local CLI state saved by `mentorchat login`.
type Profile struct {
	HubURL      string `json:"hub_url,omitempty"`
	APIURL      string `json:"api_url,omitempty"`
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
}

// ProfileDirEnv overrides the profile directory (~/.mentorchat by default).
const ProfileDirEnv = "MENTORCHAT_HOME"

// ProfileDir returns the directory holding the profile and the CLI log file.
func ProfileDir() (string, error) {
	if dir := os.Getenv(ProfileDirEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".mentorchat"), nil
}

// ProfilePath returns the profile file path (~/.mentorchat/profile.json)
func ProfilePath() (string, error) {
	dir, err := ProfileDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profile.json"), nil
}

// LoadProfile returns an empty profile when none was saved yet.
func LoadProfile() (*Profile, error) {
	path, err := ProfilePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	return &p, nil
}

// Save writes the profile with user-only permissions.
func (p *Profile) Save() error {
	path, err := ProfilePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

func (p *Profile) IsAuthenticated() bool {
	return p.AccessToken != ""
}

// Apply lets saved endpoints override the environment defaults.
func (p *Profile) Apply(cfg *Config) {
	if p.HubURL != "" {
		cfg.HubURL = p.HubURL
	}
	if p.APIURL != "" {
		cfg.APIURL = p.APIURL
	}
}
