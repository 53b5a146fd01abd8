package daemon

import (
	"testing"
	"time"
)

func withChrysalisHome(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("CHRYSALIS_HOME", dir)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Node.Mode != "server" {
		t.Errorf("Mode = %q, want server", cfg.Node.Mode)
	}
	if cfg.API.Port != 8420 {
		t.Errorf("Port = %d, want 8420", cfg.API.Port)
	}
	if len(cfg.Heartbeat) != 2 {
		t.Fatalf("Heartbeat entries = %d, want 2", len(cfg.Heartbeat))
	}
	if cfg.Heartbeat[0].Name != "tick_chronobiology_refresh" {
		t.Errorf("first entry = %q", cfg.Heartbeat[0].Name)
	}
}

func TestConfig_Birth_Unset(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	if got := cfg.Birth(now); !got.Equal(now) {
		t.Errorf("Birth() = %v, want %v", got, now)
	}
}

func TestConfig_Birth_Set(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Node.BirthTimestamp = "2020-01-01T00:00:00Z"
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	got := cfg.Birth(now)
	want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Birth() = %v, want %v", got, want)
	}
}

func TestConfig_Birth_Unparseable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Node.BirthTimestamp = "not-a-timestamp"
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	if got := cfg.Birth(now); !got.Equal(now) {
		t.Errorf("Birth() = %v, want fallback %v", got, now)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	withChrysalisHome(t, t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != DefaultConfig().API.Port {
		t.Errorf("expected defaults when no config file exists")
	}
}

func TestSaveAndLoadConfig_RoundTrip(t *testing.T) {
	withChrysalisHome(t, t.TempDir())

	cfg := DefaultConfig()
	cfg.Node.ID = "agent-1"
	cfg.API.Port = 9000

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if loaded.Node.ID != "agent-1" {
		t.Errorf("Node.ID = %q, want agent-1", loaded.Node.ID)
	}
	if loaded.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", loaded.API.Port)
	}
}

func TestParseTierMinimum_Unrecognized(t *testing.T) {
	tier := parseTierMinimum("not-a-tier")
	if tier.String() == "" {
		t.Error("expected a fallback tier string")
	}
}
