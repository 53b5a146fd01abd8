// Package api provides the HTTP surface for the Lifespan Engine: a
// read-only status/health view plus a force-run endpoint for the
// heartbeat scheduler, and the Prometheus scrape endpoint.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chrysalis-run/chrysalis/internal/domain"
	"github.com/chrysalis-run/chrysalis/internal/health"
	"github.com/chrysalis-run/chrysalis/internal/infra/heartbeat"
	"github.com/chrysalis-run/chrysalis/internal/infra/lifecycle"
	"github.com/chrysalis-run/chrysalis/internal/infra/metrics"
	"github.com/chrysalis-run/chrysalis/internal/infra/riskgate"
)

// Server is the Lifespan Engine HTTP API server.
type Server struct {
	eng      *lifecycle.Engine
	risk     *riskgate.Service
	sched    *heartbeat.Scheduler
	checker  *health.Checker
	recorder *metrics.Recorder
	now      func() time.Time
}

// NewServer creates the API server wiring the lifecycle engine, risk
// gate, heartbeat scheduler, health checker, and metrics recorder.
func NewServer(eng *lifecycle.Engine, risk *riskgate.Service, sched *heartbeat.Scheduler, checker *health.Checker, recorder *metrics.Recorder) *Server {
	return &Server{
		eng:      eng,
		risk:     risk,
		sched:    sched,
		checker:  checker,
		recorder: recorder,
		now:      time.Now,
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/status", s.handleStatus)
	r.Get("/healthz", s.handleHealthz)
	r.Post("/heartbeat/{task}/force-run", s.handleForceRun)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// statusResponse is the JSON body for GET /status.
type statusResponse struct {
	Phase             string  `json:"phase"`
	LunarCycle        int     `json:"lunar_cycle"`
	LunarDay          float64 `json:"lunar_day"`
	WeeklyDay         string  `json:"weekly_day"`
	MoodValue         float64 `json:"mood_value"`
	MoodDescription   string  `json:"mood_description"`
	Degraded          bool    `json:"degraded"`
	DegradationCoeff  float64 `json:"degradation_coefficient"`
	HeartbeatDriftMs  int64   `json:"heartbeat_drift_ms"`
	ShedSequenceIndex int     `json:"shed_sequence_index"`
	SessionPnlCents   int64   `json:"session_pnl_cents"`
	KillSwitchActive  bool    `json:"kill_switch_active"`
	KillSwitchReason  string  `json:"kill_switch_reason,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, err := s.eng.LoadState(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	derived := s.eng.ComputeDerivedState(state, s.now())
	kill, err := s.risk.KillSwitchStatus(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	pnl, err := s.risk.GetSessionPnl(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := statusResponse{
		Phase:             derived.Phase.String(),
		LunarCycle:        derived.LunarCycle,
		LunarDay:          derived.LunarDay,
		WeeklyDay:         string(derived.WeeklyDay),
		MoodValue:         derived.Mood.Value,
		MoodDescription:   derived.Mood.Description,
		Degraded:          derived.Degradation.Active,
		DegradationCoeff:  derived.Degradation.Coefficient,
		HeartbeatDriftMs:  derived.Degradation.HeartbeatDriftMs,
		ShedSequenceIndex: derived.ShedSequenceIndex,
		SessionPnlCents:   pnl,
		KillSwitchActive:  kill.Active,
		KillSwitchReason:  kill.Reason,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	statuses := s.checker.Statuses()
	status := http.StatusOK
	if !s.checker.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"healthy": s.checker.IsHealthy(),
		"checks":  statuses,
	})
}

func (s *Server) handleForceRun(w http.ResponseWriter, r *http.Request) {
	taskName := chi.URLParam(r, "task")
	result, err := s.sched.ForceRun(r.Context(), taskName)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTaskNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusConflict, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"task":   taskName,
		"result": result,
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": msg,
	})
}

// corsMiddleware adds permissive CORS headers for local tooling
// against the daemon's HTTP surface.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
