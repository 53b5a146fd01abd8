package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/chrysalis-run/chrysalis/internal/api"
	"github.com/chrysalis-run/chrysalis/internal/domain"
	"github.com/chrysalis-run/chrysalis/internal/health"
	"github.com/chrysalis-run/chrysalis/internal/infra/heartbeat"
	"github.com/chrysalis-run/chrysalis/internal/infra/lifecycle"
	"github.com/chrysalis-run/chrysalis/internal/infra/metrics"
	"github.com/chrysalis-run/chrysalis/internal/infra/riskgate"
	"github.com/chrysalis-run/chrysalis/internal/infra/sqlite"
	"github.com/chrysalis-run/chrysalis/internal/infra/telemetry"
)

// Daemon is the Lifespan Engine runtime. It wires persistence,
// chronobiology/degradation (owned internally by the lifecycle
// Engine), the phase state machine, the risk gate, the durable
// scheduler, and the HTTP surface into one process.
type Daemon struct {
	Config    Config
	DB        *sqlite.DB
	Lifecycle *lifecycle.Engine
	Risk      *riskgate.Service
	Scheduler *heartbeat.Scheduler
	Health    *health.Checker
	Server    *api.Server
	Metrics   *metrics.Recorder

	log  telemetry.Logger
	lock *flock.Flock
}

// New loads config from disk and constructs a Daemon.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig constructs a Daemon from an explicit configuration.
// It does not acquire the single-instance lock or start the
// scheduler — call Serve for that.
func NewWithConfig(cfg Config) (*Daemon, error) {
	log := telemetry.New("daemon")
	if cfg.Logging.JSON {
		log = telemetry.NewJSON("daemon")
	}

	home := chrysalisHome()
	db, err := sqlite.Open(home)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	now := time.Now
	params := lifecycle.DegradationParams{
		Steepness: cfg.Degradation.Steepness,
		BaseRate:  cfg.Degradation.BaseRate,
	}
	eng := lifecycle.New(db, now, log.With().Str("subsystem", "lifecycle").Logger(), params)

	if err := eng.Bootstrap(context.Background(), cfg.Birth(now())); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap lifecycle: %w", err)
	}
	if cfg.Node.Mode != "" {
		if err := eng.SetMode(context.Background(), cfg.Node.Mode); err != nil {
			db.Close()
			return nil, fmt.Errorf("set mode: %w", err)
		}
	}

	risk := riskgate.New(db.KV(), now)
	recorder := metrics.NewRecorder()
	checker := health.NewChecker(db, eng, risk)
	checker.SetRecorder(recorder)

	schedulerConfig := heartbeatConfigFrom(cfg)
	sched := heartbeat.New(db, eng, risk, now,
		log.With().Str("subsystem", "heartbeat").Logger(), recorder, noopWake(log), schedulerConfig)

	srv := api.NewServer(eng, risk, sched, checker, recorder)

	d := &Daemon{
		Config:    cfg,
		DB:        db,
		Lifecycle: eng,
		Risk:      risk,
		Scheduler: sched,
		Health:    checker,
		Server:    srv,
		Metrics:   recorder,
		log:       log,
	}
	return d, nil
}

// heartbeatConfigFrom translates the TOML heartbeat entries into a
// heartbeat.Config, attaching the built-in task bodies by name.
// Entries naming a task this binary does not implement are dropped:
// any previously seeded heartbeat_schedule row for them is left
// untouched, but nothing will dispatch it.
func heartbeatConfigFrom(cfg Config) heartbeat.Config {
	defs := make([]heartbeat.TaskDefinition, 0, len(cfg.Heartbeat))
	for _, entry := range cfg.Heartbeat {
		builtin, ok := builtinTasks[entry.Name]
		if !ok {
			continue
		}
		defs = append(defs, heartbeat.TaskDefinition{
			Name:           entry.Name,
			Kind:           builtin.kind,
			CronExpression: entry.Schedule,
			IntervalMs:     entry.IntervalMs,
			Enabled:        entry.Enabled,
			Priority:       entry.Priority,
			TimeoutMs:      entry.TimeoutMs,
			MaxRetries:     entry.MaxRetries,
			TierMinimum:    parseTierMinimum(entry.TierMinimum),
			Fn:             builtin.fn,
		})
	}
	if len(defs) == 0 {
		return heartbeat.DefaultConfig()
	}
	return heartbeat.Config{TickInterval: 30 * time.Second, Tasks: defs}
}

// taskBuiltin pairs a task body with the kind that decides whether the
// kill switch gates it.
type taskBuiltin struct {
	fn   heartbeat.TaskFunc
	kind domain.TaskKind
}

// builtinTasks maps a configured task name to its body and kind.
var builtinTasks = map[string]taskBuiltin{
	"tick_chronobiology_refresh":  {fn: heartbeat.ChronobiologyRefresh, kind: domain.ReadOnly},
	"tick_phase_transition_check": {fn: heartbeat.PhaseTransitionCheck, kind: domain.MayAct},
}

// noopWake logs wake requests; nothing in this binary currently acts
// on them, but the contract (forward without interpreting) still
// applies.
func noopWake(log telemetry.Logger) domain.WakeFunc {
	return func(reason string) {
		log.Info().Str("reason", reason).Msg("wake requested")
	}
}

// Serve acquires the single-instance file lock, seeds the heartbeat
// schedule, starts the scheduler and health checker, and blocks
// serving the HTTP surface until a shutdown signal arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	lockPath := chrysalisHome() + "/daemon.lock"
	d.lock = flock.New(lockPath)
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another chrysalisd instance holds %s", lockPath)
	}
	defer d.lock.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.Scheduler.Seed(ctx); err != nil {
		return fmt.Errorf("seed heartbeat schedule: %w", err)
	}
	d.Scheduler.Start(ctx)
	defer d.Scheduler.Stop()

	go d.Health.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		d.log.Info().Msg("shutdown requested")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	d.log.Info().Str("addr", addr).Msg("chrysalisd serving")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources. Safe to call on a Daemon
// that never called Serve (e.g. a one-shot CLI command).
func (d *Daemon) Close() {
	if d.Scheduler != nil {
		d.Scheduler.Stop()
	}
	if d.lock != nil {
		_ = d.lock.Unlock()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
