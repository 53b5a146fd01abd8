// Package daemon wires the Lifespan Engine's components — persistence,
// chronobiology, degradation, the phase state machine, the heartbeat
// scheduler, and the risk gate — into a single long-running process,
// and carries the TOML configuration that seeds them.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chrysalis-run/chrysalis/internal/domain"
)

// Config holds all daemon configuration.
type Config struct {
	Node        NodeConfig        `toml:"node"`
	API         APIConfig         `toml:"api"`
	Logging     LoggingConfig     `toml:"logging"`
	Degradation DegradationConfig `toml:"degradation"`
	Heartbeat   []HeartbeatEntry  `toml:"heartbeat"`
}

// NodeConfig anchors this agent's birth and identity.
type NodeConfig struct {
	ID             string `toml:"id"`
	BirthTimestamp string `toml:"birth_timestamp"` // RFC3339; empty seeds "now" on first boot
	Mode           string `toml:"mode"`             // "server" gates adolescence -> sovereignty
}

// APIConfig controls the read-only + force-run HTTP surface.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoggingConfig controls structured logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// DegradationConfig carries the degradation curve parameters as
// configuration rather than hard-coded constants.
type DegradationConfig struct {
	Steepness float64 `toml:"steepness"`
	BaseRate  float64 `toml:"base_rate"`
}

// HeartbeatEntry is one configured task entry, seeded into
// heartbeat_schedule on startup if the row does not already exist.
type HeartbeatEntry struct {
	Name        string `toml:"name"`
	Schedule    string `toml:"schedule"` // cron expression; empty means interval-driven
	Enabled     bool   `toml:"enabled"`
	IntervalMs  int64  `toml:"interval_ms"`
	TimeoutMs   int64  `toml:"timeout_ms"`
	MaxRetries  int    `toml:"max_retries"`
	TierMinimum string `toml:"tier_minimum"`
	Priority    int    `toml:"priority"`
}

// DefaultConfig returns a sensible default configuration: a fresh agent
// born now, running in server mode, with the two seed heartbeat tasks.
func DefaultConfig() Config {
	return Config{
		Node: NodeConfig{
			Mode: "server",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8420,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
		Degradation: DegradationConfig{
			Steepness: 0.3,
			BaseRate:  0.03,
		},
		Heartbeat: []HeartbeatEntry{
			{
				Name:        "tick_chronobiology_refresh",
				Enabled:     true,
				IntervalMs:  60_000,
				TimeoutMs:   5_000,
				MaxRetries:  3,
				TierMinimum: "dead",
				Priority:    10,
			},
			{
				Name:        "tick_phase_transition_check",
				Enabled:     true,
				IntervalMs:  30_000,
				TimeoutMs:   5_000,
				MaxRetries:  3,
				TierMinimum: "critical",
				Priority:    20,
			},
		},
	}
}

// Birth resolves the configured birth timestamp, defaulting to now if
// unset or unparseable.
func (c Config) Birth(now time.Time) time.Time {
	if c.Node.BirthTimestamp == "" {
		return now
	}
	t, err := time.Parse(time.RFC3339, c.Node.BirthTimestamp)
	if err != nil {
		return now
	}
	return t
}

// LoadConfig reads config from chrysalisHome()/config.toml, falling
// back to defaults when no file exists yet.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(chrysalisHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to chrysalisHome()/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(chrysalisHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// chrysalisHome returns the agent's data directory.
func chrysalisHome() string {
	if env := os.Getenv("CHRYSALIS_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chrysalis")
}

// ChrysalisHome is exported for use by other packages (the CLI, lock
// file placement).
func ChrysalisHome() string {
	return chrysalisHome()
}

// parseTierMinimum maps a config string to a domain.Tier, defaulting
// to TierDead for empty or unrecognized values (an unconfigured
// minimum never blocks a task).
func parseTierMinimum(s string) domain.Tier {
	switch s {
	case domain.TierNormal.String(), domain.TierLowCompute.String(),
		domain.TierCritical.String(), domain.TierDead.String():
		return domain.ParseTier(s)
	}
	return domain.TierDead
}
