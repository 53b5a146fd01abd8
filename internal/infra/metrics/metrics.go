// Package metrics provides Prometheus metrics for the Lifespan Engine:
// one gauge per derived reading the scheduler recomputes every tick,
// plus counters for the scheduler's own dispatch outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chrysalis-run/chrysalis/internal/domain"
)

// Phase gauges the current lifespan phase as its numeric index
// (domain.Phase ordering), so a dashboard can chart monotone advance.
var Phase = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "lifespan",
	Name:      "phase",
	Help:      "Current lifespan phase index (genesis=0 .. terminal=6).",
})

// DegradationCoefficient gauges the current degradation coefficient
// in [0,1].
var DegradationCoefficient = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "lifespan",
	Name:      "degradation_coefficient",
	Help:      "Current mood-modulated degradation coefficient in [0,1].",
})

// MoodValue gauges the current signed mood reading.
var MoodValue = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "lifespan",
	Name:      "mood_value",
	Help:      "Current signed mood value.",
})

// KillSwitchActive gauges whether the session risk gate is currently
// halting may-act tasks (1) or not (0).
var KillSwitchActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "lifespan",
	Name:      "kill_switch_active",
	Help:      "1 if the session drawdown kill switch is currently armed, else 0.",
})

// HeartbeatTicksTotal counts completed scheduler ticks.
var HeartbeatTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "lifespan",
	Name:      "heartbeat_ticks_total",
	Help:      "Total number of scheduler ticks run.",
})

// HeartbeatLeaseContendedTotal counts lease acquisition failures —
// another owner already held the task's row when this tick tried.
var HeartbeatLeaseContendedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "lifespan",
	Name:      "heartbeat_lease_contended_total",
	Help:      "Total number of heartbeat task dispatches skipped due to lease contention.",
})

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "lifespan",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// Recorder implements heartbeat.Recorder by writing straight through
// to the package-level Prometheus collectors above. It is stateless
// and safe for concurrent use by a single scheduler's sequential tick
// loop.
type Recorder struct{}

// NewRecorder constructs a metrics Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// ObserveTick increments the tick counter.
func (r *Recorder) ObserveTick() {
	HeartbeatTicksTotal.Inc()
}

// ObserveLeaseContended increments the lease-contention counter.
func (r *Recorder) ObserveLeaseContended() {
	HeartbeatLeaseContendedTotal.Inc()
}

// ObservePhase sets the phase gauge to phase's numeric index.
func (r *Recorder) ObservePhase(phase domain.Phase) {
	Phase.Set(float64(phase))
}

// ObserveDegradation sets the degradation coefficient gauge.
func (r *Recorder) ObserveDegradation(coefficient float64) {
	DegradationCoefficient.Set(coefficient)
}

// ObserveMood sets the mood value gauge.
func (r *Recorder) ObserveMood(value float64) {
	MoodValue.Set(value)
}

// ObserveKillSwitch sets the kill-switch gauge to 1 or 0.
func (r *Recorder) ObserveKillSwitch(active bool) {
	if active {
		KillSwitchActive.Set(1)
		return
	}
	KillSwitchActive.Set(0)
}

// ObserveHealthCheck sets the per-check health gauge to 1 or 0.
func (r *Recorder) ObserveHealthCheck(check string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	HealthCheckStatus.WithLabelValues(check).Set(v)
}
