package daemon

import (
	"context"
	"testing"
)

func TestNewWithConfig_WiresAllComponents(t *testing.T) {
	withChrysalisHome(t, t.TempDir())

	cfg := DefaultConfig()
	d, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	if d.DB == nil || d.Lifecycle == nil || d.Risk == nil || d.Scheduler == nil ||
		d.Health == nil || d.Server == nil || d.Metrics == nil {
		t.Fatal("NewWithConfig() left a component unwired")
	}

	state, err := d.Lifecycle.LoadState(context.Background())
	if err != nil {
		t.Fatalf("LoadState() error: %v", err)
	}
	if state.Phase.String() != "genesis" {
		t.Errorf("fresh agent phase = %q, want genesis", state.Phase.String())
	}
}

func TestHeartbeatConfigFrom_UnknownTaskNamesDropped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Heartbeat = append(cfg.Heartbeat, HeartbeatEntry{Name: "not_a_builtin_task", Enabled: true})

	sc := heartbeatConfigFrom(cfg)
	for _, def := range sc.Tasks {
		if def.Name == "not_a_builtin_task" {
			t.Error("unknown task name should not be dispatchable")
		}
	}
}

func TestHeartbeatConfigFrom_EmptyFallsBackToDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Heartbeat = nil

	sc := heartbeatConfigFrom(cfg)
	if len(sc.Tasks) == 0 {
		t.Error("expected DefaultConfig() fallback tasks")
	}
}
