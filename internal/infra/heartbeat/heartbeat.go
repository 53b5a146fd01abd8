// Package heartbeat implements the durable scheduler: a single-process
// cooperative loop driven by a recursive one-shot timer (never an
// interval), so no tick can ever overlap its own predecessor. Each tick
// dispatches due tasks through a tier gate, a lease compare-and-swap,
// and a kill-switch check, then re-evaluates the phase state machine.
package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/chrysalis-run/chrysalis/internal/domain"
	"github.com/chrysalis-run/chrysalis/internal/infra/lifecycle"
	"github.com/chrysalis-run/chrysalis/internal/infra/riskgate"
	"github.com/chrysalis-run/chrysalis/internal/infra/sqlite"
	"github.com/chrysalis-run/chrysalis/internal/infra/telemetry"
)

// TickContext is handed to every task invocation. It carries the
// identity, derived readings, and collaborators a task needs without
// exposing the scheduler itself.
type TickContext struct {
	SelfID      string
	Now         time.Time
	Phase       domain.Phase
	Mood        domain.Mood
	Degradation domain.Degradation
	WeeklyDay   domain.WeeklyDay
	KillSwitch  domain.KillSwitchStatus
	DB          *sqlite.DB
	Wake        domain.WakeFunc
}

// TaskFunc is the callable body of a registered heartbeat task.
type TaskFunc func(ctx context.Context, tick TickContext) (result string, err error)

// TaskDefinition registers a task's function alongside the scheduling
// metadata persisted in heartbeat_schedule.
type TaskDefinition struct {
	Name           string
	Kind           domain.TaskKind
	CronExpression string
	IntervalMs     int64
	Enabled        bool
	Priority       int
	TimeoutMs      int64
	MaxRetries     int
	TierMinimum    domain.Tier
	Fn             TaskFunc
}

// Recorder is the narrow metrics surface the scheduler reports through.
// Implementations live in internal/infra/metrics; nil is a valid,
// no-op Recorder.
type Recorder interface {
	ObserveTick()
	ObserveLeaseContended()
	ObservePhase(phase domain.Phase)
	ObserveDegradation(coefficient float64)
	ObserveMood(value float64)
	ObserveKillSwitch(active bool)
}

// Config carries the base tick interval and the registered task set.
type Config struct {
	TickInterval time.Duration
	Tasks        []TaskDefinition
}

// DefaultConfig seeds the two tasks a complete deployment dispatches
// end to end: a read-only chronobiology refresh and a may-act phase
// transition check. Real deployments register additional tasks
// (inference turns, sandbox upkeep) through the same registry.
func DefaultConfig() Config {
	return Config{
		TickInterval: 30 * time.Second,
		Tasks: []TaskDefinition{
			{
				Name:        "tick_chronobiology_refresh",
				Kind:        domain.ReadOnly,
				IntervalMs:  60_000,
				Enabled:     true,
				Priority:    10,
				TimeoutMs:   5_000,
				MaxRetries:  3,
				TierMinimum: domain.TierDead,
				Fn:          ChronobiologyRefresh,
			},
			{
				Name:        "tick_phase_transition_check",
				Kind:        domain.MayAct,
				IntervalMs:  30_000,
				Enabled:     true,
				Priority:    20,
				TimeoutMs:   5_000,
				MaxRetries:  3,
				TierMinimum: domain.TierCritical,
				Fn:          PhaseTransitionCheck,
			},
		},
	}
}

// Scheduler is the durable tick loop. It owns no state beyond its
// clock, database handle, and collaborators — every dispatch decision
// re-reads persisted state, so the loop resumes correctly after a
// restart.
type Scheduler struct {
	db        *sqlite.DB
	lifecycle *lifecycle.Engine
	risk      *riskgate.Service
	now       func() time.Time
	log       zerolog.Logger
	metrics   Recorder
	wake      domain.WakeFunc
	selfID    string
	config    Config
	tasks     map[string]TaskDefinition

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	timer   *time.Timer

	// haltLoggedUntil is the expiry of the halt whose first skipped
	// may-act task has already been logged at info. Written only from
	// the tick loop, which never overlaps itself.
	haltLoggedUntil time.Time
}

// New constructs a Scheduler and mints its process-lifetime self_id.
func New(db *sqlite.DB, eng *lifecycle.Engine, risk *riskgate.Service, now func() time.Time, log zerolog.Logger, metrics Recorder, wake domain.WakeFunc, config Config) *Scheduler {
	tasks := make(map[string]TaskDefinition, len(config.Tasks))
	for _, t := range config.Tasks {
		tasks[t.Name] = t
	}
	return &Scheduler{
		db: db, lifecycle: eng, risk: risk, now: now, log: log, metrics: metrics,
		wake: wake, selfID: uuid.New().String(), config: config, tasks: tasks,
	}
}

// DefaultLogger is a convenience for callers that don't care about log
// destination.
func DefaultLogger() zerolog.Logger {
	return telemetry.New("heartbeat")
}

// Seed upserts every registered task's configuration into
// heartbeat_schedule. Idempotent: re-seeding with the same config
// never clobbers run history.
func (s *Scheduler) Seed(ctx context.Context) error {
	now := s.now()
	for _, def := range s.config.Tasks {
		if err := s.db.UpsertHeartbeatTask(ctx, domain.HeartbeatTask{
			TaskName:       def.Name,
			CronExpression: def.CronExpression,
			IntervalMs:     def.IntervalMs,
			Enabled:        def.Enabled,
			Priority:       def.Priority,
			TimeoutMs:      def.TimeoutMs,
			MaxRetries:     def.MaxRetries,
			TierMinimum:    def.TierMinimum,
			NextRunAt:      now,
		}); err != nil {
			return fmt.Errorf("seed task %s: %w", def.Name, err)
		}
	}
	return nil
}

// Start runs the first tick synchronously, then arms the recursive
// one-shot timer. Calling Start on an already-running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	s.runTick(runCtx)
	s.armNext(runCtx)
}

// Stop halts the loop. The in-flight tick, if any, is not interrupted
// — its timeout governs how long shutdown can take.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *Scheduler) armNext(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	interval := s.computeTickInterval(ctx)
	s.timer = time.AfterFunc(interval, func() { s.fire(ctx) })
}

// fire runs one tick to completion before re-arming — this is what
// guarantees no tick overlaps the next.
func (s *Scheduler) fire(ctx context.Context) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return
	}
	s.runTick(ctx)
	s.armNext(ctx)
}

// computeTickInterval modulates the base interval by degradation
// drift, slowing further on rest days and quickening slightly during
// euphoric moods.
func (s *Scheduler) computeTickInterval(ctx context.Context) time.Duration {
	state, err := s.lifecycle.LoadState(ctx)
	if err != nil {
		return s.config.TickInterval
	}
	derived := s.lifecycle.ComputeDerivedState(state, s.now())

	interval := s.config.TickInterval + time.Duration(derived.Degradation.HeartbeatDriftMs)*time.Millisecond
	if derived.WeeklyDay == domain.DayRest {
		interval = interval * 3 / 2
	}
	if derived.Mood.Value > 0.7 {
		interval = interval * 9 / 10
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// runTick dispatches every due task in priority order, then evaluates
// the phase state machine and, during shedding, advances the shed
// sequence by at most one step.
func (s *Scheduler) runTick(ctx context.Context) {
	now := s.now()

	state, err := s.lifecycle.LoadState(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("load lifecycle state")
		return
	}
	derived := s.lifecycle.ComputeDerivedState(state, now)
	kill, err := s.risk.KillSwitchStatus(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("read kill switch status")
		return
	}

	due, err := s.db.ListDueHeartbeatTasks(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("list due tasks")
		return
	}

	for _, task := range due {
		s.dispatch(ctx, task, state, derived, kill, now)
	}

	if s.metrics != nil {
		s.metrics.ObserveTick()
		s.metrics.ObservePhase(state.Phase)
		s.metrics.ObserveDegradation(derived.Degradation.Coefficient)
		s.metrics.ObserveMood(derived.Mood.Value)
		s.metrics.ObserveKillSwitch(kill.Active)
	}

	if result := s.lifecycle.EvaluateTransition(ctx, state, derived); result != nil {
		if err := s.lifecycle.ExecuteTransition(ctx, result); err != nil {
			s.log.Error().Err(err).Msg("execute phase transition")
		}
	}
	if state.Phase == domain.PhaseShedding {
		if _, err := s.lifecycle.AdvanceShedding(ctx); err != nil {
			s.log.Error().Err(err).Msg("advance shedding")
		}
	}
}

// dispatch runs one scheduled task and logs the outcome. Gating
// refusals (tier, kill switch, lease contention) are expected
// steady-state behavior, not errors.
func (s *Scheduler) dispatch(ctx context.Context, task domain.HeartbeatTask, state domain.LifecycleState, derived domain.DerivedState, kill domain.KillSwitchStatus, now time.Time) {
	_, err := s.executeTask(ctx, task, state, derived, kill, now)
	switch err {
	case nil:
		return
	case domain.ErrTierBlocked:
		s.log.Debug().Str("task", task.TaskName).Msg("tier gate: task skipped")
	case domain.ErrTaskDisabled:
		s.log.Debug().Str("task", task.TaskName).Msg("no schedule: task skipped")
	case domain.ErrKillSwitchActive:
		s.logKillSwitchSkip(task.TaskName, kill)
	case domain.ErrLeaseContended:
		if s.metrics != nil {
			s.metrics.ObserveLeaseContended()
		}
	case domain.ErrTaskTimeout:
		s.log.Error().Str("task", task.TaskName).Msg("task timed out")
	default:
		s.log.Error().Err(err).Str("task", task.TaskName).Msg("task failed")
	}
}

// logKillSwitchSkip logs the first skipped may-act task of each halt at
// info; repeats within the same halt drop to debug.
func (s *Scheduler) logKillSwitchSkip(taskName string, kill domain.KillSwitchStatus) {
	if kill.Until != nil && !kill.Until.Equal(s.haltLoggedUntil) {
		s.haltLoggedUntil = *kill.Until
		s.log.Info().Str("task", taskName).Str("reason", kill.Reason).Msg("kill switch active: may-act tasks skipped until halt expires")
		return
	}
	s.log.Debug().Str("task", taskName).Msg("kill switch active: task skipped")
}

// ForceRun invokes a task's function directly, bypassing scheduling
// but not its lease, tier gate, or kill-switch check.
func (s *Scheduler) ForceRun(ctx context.Context, taskName string) (string, error) {
	task, err := s.db.GetHeartbeatTask(ctx, taskName)
	if err != nil {
		return "", err
	}
	if task == nil {
		return "", domain.ErrTaskNotFound
	}
	if !task.Enabled {
		return "", domain.ErrTaskDisabled
	}

	now := s.now()
	state, err := s.lifecycle.LoadState(ctx)
	if err != nil {
		return "", err
	}
	derived := s.lifecycle.ComputeDerivedState(state, now)
	kill, err := s.risk.KillSwitchStatus(ctx)
	if err != nil {
		return "", err
	}
	return s.executeTask(ctx, *task, state, derived, kill, now)
}

type taskOutcome struct {
	result string
	err    error
}

// executeTask runs the tier gate, kill-switch gate, lease
// compare-and-swap, and timed execution for a single task, persisting
// the outcome. Shared by the tick loop and ForceRun.
func (s *Scheduler) executeTask(ctx context.Context, task domain.HeartbeatTask, state domain.LifecycleState, derived domain.DerivedState, kill domain.KillSwitchStatus, now time.Time) (string, error) {
	def, ok := s.tasks[task.TaskName]
	if !ok || def.Fn == nil {
		return "", domain.ErrTaskNotFound
	}
	if task.CronExpression == "" && task.IntervalMs <= 0 {
		// A task with no schedule at all is disabled, whatever its
		// enabled flag says.
		return "", domain.ErrTaskDisabled
	}

	if !s.lifecycle.Tier(ctx).Meets(task.TierMinimum) {
		return "", domain.ErrTierBlocked
	}
	if def.Kind == domain.MayAct && kill.Active {
		return "", domain.ErrKillSwitchActive
	}

	acquired, err := s.db.AcquireLease(ctx, task.TaskName, s.selfID, now, task.TimeoutMs)
	if err != nil {
		return "", err
	}
	if !acquired {
		return "", domain.ErrLeaseContended
	}

	tick := TickContext{
		SelfID: s.selfID, Now: now, Phase: state.Phase, Mood: derived.Mood,
		Degradation: derived.Degradation, WeeklyDay: derived.WeeklyDay, KillSwitch: kill,
		DB: s.db, Wake: s.wake,
	}

	execCtx, cancel := context.WithTimeout(ctx, time.Duration(task.TimeoutMs)*time.Millisecond)
	defer cancel()

	ch := make(chan taskOutcome, 1)
	go func() {
		result, err := def.Fn(execCtx, tick)
		ch <- taskOutcome{result: result, err: err}
	}()

	select {
	case outcome := <-ch:
		if outcome.err == nil {
			next := s.nextFireTime(task, now)
			if err := s.db.RecordSuccess(ctx, task.TaskName, now, next, outcome.result); err != nil {
				return "", err
			}
			return outcome.result, nil
		}
		next := now
		if task.FailCount+1 >= int64(task.MaxRetries) {
			next = s.nextFireTime(task, now)
		}
		if err := s.db.RecordFailure(ctx, task.TaskName, now, next, outcome.err.Error()); err != nil {
			return "", err
		}
		return "", outcome.err
	case <-execCtx.Done():
		if err := s.db.RecordTimeout(ctx, task.TaskName, now, domain.ErrTaskTimeout.Error()); err != nil {
			return "", err
		}
		return "", domain.ErrTaskTimeout
	}
}

// nextFireTime computes the next scheduled fire time: cron takes
// precedence over interval_ms when both are present.
func (s *Scheduler) nextFireTime(task domain.HeartbeatTask, now time.Time) time.Time {
	if task.CronExpression != "" {
		schedule, err := cron.ParseStandard(task.CronExpression)
		if err == nil {
			return schedule.Next(now)
		}
		s.log.Error().Str("task", task.TaskName).Str("cron", task.CronExpression).Msg("invalid cron expression, falling back to interval")
	}
	return now.Add(time.Duration(task.IntervalMs) * time.Millisecond)
}
