package health

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrysalis-run/chrysalis/internal/infra/lifecycle"
	"github.com/chrysalis-run/chrysalis/internal/infra/riskgate"
	"github.com/chrysalis-run/chrysalis/internal/infra/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestChecker(t *testing.T) *Checker {
	t.Helper()
	db := newTestDB(t)
	now := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	eng := lifecycle.New(db, now, zerolog.Nop(), lifecycle.DefaultDegradationParams())
	if err := eng.Bootstrap(context.Background(), now()); err != nil {
		t.Fatalf("Bootstrap() error: %v", err)
	}
	risk := riskgate.New(db.KV(), now)
	return NewChecker(db, eng, risk)
}

func TestNewChecker(t *testing.T) {
	c := newTestChecker(t)
	if c == nil {
		t.Fatal("NewChecker() returned nil")
	}
	if len(c.checks) != 3 {
		t.Errorf("checks = %d, want 3", len(c.checks))
	}
}

func TestChecker_RunAllHealthy(t *testing.T) {
	c := newTestChecker(t)
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 3 {
		t.Fatalf("Statuses() = %d, want 3", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
}

func TestChecker_IsHealthy_AllPass(t *testing.T) {
	c := newTestChecker(t)
	c.RunOnce(context.Background())

	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true when all checks pass")
	}
}

func TestChecker_IsHealthy_BeforeRun(t *testing.T) {
	c := newTestChecker(t)

	// Before any run, there are no statuses — IsHealthy returns true (vacuously)
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before first run (no statuses)")
	}
}

func TestChecker_SQLiteCheck(t *testing.T) {
	c := newTestChecker(t)
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	found := false
	for _, s := range statuses {
		if s.Name == "sqlite" {
			found = true
			if !s.Healthy {
				t.Errorf("sqlite check should be healthy")
			}
		}
	}
	if !found {
		t.Error("sqlite check not found in statuses")
	}
}

func TestChecker_LifecycleStateReadableCheck(t *testing.T) {
	c := newTestChecker(t)
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	for _, s := range statuses {
		if s.Name == "lifecycle_state_readable" && !s.Healthy {
			t.Errorf("lifecycle_state_readable should be healthy, got: %s", s.Error)
		}
	}
}

func TestChecker_KillSwitchBoundSane_Inactive(t *testing.T) {
	c := newTestChecker(t)
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	for _, s := range statuses {
		if s.Name == "kill_switch_bound_sane" && !s.Healthy {
			t.Errorf("kill_switch_bound_sane should be healthy when inactive, got: %s", s.Error)
		}
	}
}

func TestChecker_KillSwitchBoundSane_ActiveWithinBound(t *testing.T) {
	db := newTestDB(t)
	now := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	eng := lifecycle.New(db, now, zerolog.Nop(), lifecycle.DefaultDegradationParams())
	if err := eng.Bootstrap(context.Background(), now()); err != nil {
		t.Fatalf("Bootstrap() error: %v", err)
	}
	risk := riskgate.New(db.KV(), now)
	if _, err := risk.AddSessionPnl(context.Background(), -riskgate.StartingBalanceCents); err != nil {
		t.Fatalf("AddSessionPnl() error: %v", err)
	}

	c := NewChecker(db, eng, risk)
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	for _, s := range statuses {
		if s.Name == "kill_switch_bound_sane" && !s.Healthy {
			t.Errorf("kill_switch_bound_sane should be healthy for a freshly armed switch, got: %s", s.Error)
		}
	}
}

func TestChecker_CustomCheck(t *testing.T) {
	c := &Checker{
		checks: []Check{
			{
				Name: "always_pass",
				CheckFn: func(ctx context.Context) error {
					return nil
				},
			},
		},
	}

	c.RunOnce(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(statuses))
	}
	if !statuses[0].Healthy {
		t.Error("always_pass check should be healthy")
	}
}

func TestChecker_FailingCheck(t *testing.T) {
	c := &Checker{
		checks: []Check{
			{
				Name: "always_fail",
				CheckFn: func(ctx context.Context) error {
					return os.ErrPermission
				},
			},
		},
	}

	c.RunOnce(context.Background())

	statuses := c.Statuses()
	if statuses[0].Healthy {
		t.Error("always_fail check should not be healthy")
	}
	if statuses[0].Error == "" {
		t.Error("error message should be populated")
	}
}

func TestChecker_StatusesCopy(t *testing.T) {
	c := newTestChecker(t)
	c.RunOnce(context.Background())

	s1 := c.Statuses()
	s2 := c.Statuses()

	if len(s1) > 0 {
		s1[0].Healthy = false
		if !s2[0].Healthy {
			t.Error("Statuses() should return a copy, not a reference")
		}
	}
}
