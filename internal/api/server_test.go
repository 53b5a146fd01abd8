package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrysalis-run/chrysalis/internal/domain"
	"github.com/chrysalis-run/chrysalis/internal/health"
	"github.com/chrysalis-run/chrysalis/internal/infra/heartbeat"
	"github.com/chrysalis-run/chrysalis/internal/infra/lifecycle"
	"github.com/chrysalis-run/chrysalis/internal/infra/metrics"
	"github.com/chrysalis-run/chrysalis/internal/infra/riskgate"
	"github.com/chrysalis-run/chrysalis/internal/infra/sqlite"
)

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	dir := t.TempDir()

	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}

	now := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	eng := lifecycle.New(db, now, zerolog.Nop(), lifecycle.DefaultDegradationParams())
	if err := eng.Bootstrap(context.Background(), now()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	risk := riskgate.New(db.KV(), now)
	recorder := metrics.NewRecorder()
	checker := health.NewChecker(db, eng, risk)
	checker.RunOnce(context.Background())

	sched := heartbeat.New(db, eng, risk, now, zerolog.Nop(), recorder,
		func(string) {}, heartbeat.DefaultConfig())
	if err := sched.Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	srv := NewServer(eng, risk, sched, checker, recorder)
	srv.now = now

	cleanup := func() { _ = db.Close() }
	return srv, cleanup
}

func TestHandleStatus(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Phase != domain.PhaseGenesis.String() {
		t.Errorf("phase = %q, want %q", resp.Phase, domain.PhaseGenesis.String())
	}
	if resp.KillSwitchActive {
		t.Error("kill switch should not be active on a fresh session")
	}
}

func TestHandleHealthz(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if healthy, _ := resp["healthy"].(bool); !healthy {
		t.Error("expected healthy=true")
	}
}

func TestHandleForceRun(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/heartbeat/tick_chronobiology_refresh/force-run", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestHandleForceRun_UnknownTask(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/heartbeat/does_not_exist/force-run", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHandleMetrics(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
