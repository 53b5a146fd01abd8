// Package health runs periodic checks on the Lifespan Engine's own
// persisted state — the database connection, the lifecycle singleton,
// and the risk gate — so an operator can tell the engine is alive
// without reading logs.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chrysalis-run/chrysalis/internal/infra/lifecycle"
	"github.com/chrysalis-run/chrysalis/internal/infra/riskgate"
	"github.com/chrysalis-run/chrysalis/internal/infra/sqlite"
)

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Recorder receives each check's outcome — implemented by the metrics
// package; nil means results are only held in memory.
type Recorder interface {
	ObserveHealthCheck(check string, healthy bool)
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	recorder Recorder
}

// NewChecker creates a health checker with the standard three checks:
// database reachability, lifecycle state readability, and kill-switch
// bound sanity.
func NewChecker(db *sqlite.DB, eng *lifecycle.Engine, risk *riskgate.Service) *Checker {
	return &Checker{
		interval: 60 * time.Second,
		checks: []Check{
			{
				Name: "sqlite",
				CheckFn: func(ctx context.Context) error {
					return db.Ping()
				},
				RecoverFn: func(ctx context.Context) error {
					return nil // SQLite auto-recovers via WAL
				},
			},
			{
				Name: "lifecycle_state_readable",
				CheckFn: func(ctx context.Context) error {
					_, err := eng.Phase(ctx)
					return err
				},
			},
			{
				Name: "kill_switch_bound_sane",
				CheckFn: func(ctx context.Context) error {
					return checkKillSwitchBound(ctx, risk)
				},
			},
		},
	}
}

// checkKillSwitchBound fails if an active kill switch's remaining
// duration exceeds the configured halt duration — a sign the
// persisted until timestamp is corrupt or was set far in the future
// by a bug elsewhere.
func checkKillSwitchBound(ctx context.Context, risk *riskgate.Service) error {
	status, err := risk.KillSwitchStatus(ctx)
	if err != nil {
		return fmt.Errorf("read kill switch status: %w", err)
	}
	if !status.Active {
		return nil
	}
	if status.RemainingMs > riskgate.HaltDuration.Milliseconds() {
		return fmt.Errorf("kill switch remaining_ms %d exceeds halt duration %d",
			status.RemainingMs, riskgate.HaltDuration.Milliseconds())
	}
	return nil
}

// SetRecorder attaches a metrics recorder. Call before Run.
func (c *Checker) SetRecorder(r Recorder) {
	c.recorder = r
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	// Run immediately on start
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce executes every check a single time and records the results.
func (c *Checker) RunOnce(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
			if check.RecoverFn != nil {
				_ = check.RecoverFn(ctx)
			}
		} else {
			s.Healthy = true
		}
		if c.recorder != nil {
			c.recorder.ObserveHealthCheck(s.Name, s.Healthy)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}
