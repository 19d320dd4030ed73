package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/config"
)

func TestParseDurationListAcceptsMillisAndDurations(t *testing.T) {
	got, err := config.ParseDurationList("0, 2000,5s")
	if err != nil {
		t.Fatalf("ParseDurationList failed: %v", err)
	}
	want := []time.Duration{0, 2 * time.Second, 5 * time.Second}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	if _, err := config.ParseDurationList("2s,soon"); err == nil {
		t.Fatalf("expected an error for an invalid delay")
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("MENTORCHAT_TRANSPORT", "LongPolling")
	t.Setenv("MENTORCHAT_RECONNECT_DELAYS", "0,100")
	t.Setenv("MENTORCHAT_DEDUP_WINDOW", "1500ms")
	t.Setenv("MENTORCHAT_ROLLBACK_ON_PERSIST_FAILURE", "true")

	cfg := config.Load()
	if cfg.Transport != config.TransportLongPolling {
		t.Fatalf("unexpected transport %q", cfg.Transport)
	}
	if len(cfg.ReconnectDelays) != 2 || cfg.ReconnectDelays[1] != 100*time.Millisecond {
		t.Fatalf("unexpected delays %v", cfg.ReconnectDelays)
	}
	if cfg.DedupWindow != 1500*time.Millisecond {
		t.Fatalf("unexpected dedup window %v", cfg.DedupWindow)
	}
	if !cfg.RollbackOnPersistFailure {
		t.Fatalf("rollback switch not applied")
	}
	if cfg.RetryInterval != 3*time.Second || cfg.CloseGrace != 5*time.Second {
		t.Fatalf("unexpected retry defaults: %v %v", cfg.RetryInterval, cfg.CloseGrace)
	}
}

func TestLoadFallsBackToAutoTransport(t *testing.T) {
	t.Setenv("MENTORCHAT_TRANSPORT", "carrier-pigeon")
	if cfg := config.Load(); cfg.Transport != config.TransportAuto {
		t.Fatalf("unexpected transport %q", cfg.Transport)
	}
}

func TestLoadHubFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chathub.yaml")
	yaml := "addr: \":9090\"\nstorage_backend: memory\npoll_timeout: 5s\nhistory_limit: 50\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CHATHUB_LOG_LEVEL", "debug")

	cfg, err := config.LoadHub(path)
	if err != nil {
		t.Fatalf("LoadHub failed: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.PollTimeout != 5*time.Second || cfg.HistoryLimit != 50 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.PingInterval != 15*time.Second {
		t.Fatalf("default ping interval not applied: %v", cfg.PingInterval)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("env override not applied: %q", cfg.LogLevel)
	}
}

func TestLoadHubValidatesBackend(t *testing.T) {
	t.Setenv("CHATHUB_STORAGE_BACKEND", "postgres")
	if _, err := config.LoadHub(""); err == nil {
		t.Fatalf("expected postgres without database_url to fail")
	}

	t.Setenv("CHATHUB_STORAGE_BACKEND", "cassandra")
	if _, err := config.LoadHub(""); err == nil {
		t.Fatalf("expected an unknown backend to fail")
	}

	if _, err := config.LoadHub(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an explicit missing file to fail")
	}
}

func TestProfileSaveLoadApply(t *testing.T) {
	t.Setenv(config.ProfileDirEnv, t.TempDir())

	p, err := config.LoadProfile()
	if err != nil {
		t.Fatalf("LoadProfile failed: %v", err)
	}
	if p.IsAuthenticated() {
		t.Fatalf("fresh profile must not be authenticated")
	}

	p.AccessToken = "tok"
	p.UserID = "u1"
	p.HubURL = "http://hub.test/chathub"
	if err := p.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := config.LoadProfile()
	if err != nil {
		t.Fatalf("LoadProfile failed: %v", err)
	}
	if !loaded.IsAuthenticated() || loaded.UserID != "u1" {
		t.Fatalf("unexpected profile: %+v", loaded)
	}

	cfg := &config.Config{HubURL: "http://default/chathub", APIURL: "http://default"}
	loaded.Apply(cfg)
	if cfg.HubURL != "http://hub.test/chathub" || cfg.APIURL != "http://default" {
		t.Fatalf("unexpected config after Apply: %+v", cfg)
	}
}
