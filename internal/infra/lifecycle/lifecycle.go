// Package lifecycle implements the seven-phase state machine: it reads
// and writes the persisted lifecycle singleton, evaluates transition
// guards against chronobiology and degradation readings, and enforces
// the will-locking and shedding-sequence invariants.
package lifecycle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chrysalis-run/chrysalis/internal/domain"
	"github.com/chrysalis-run/chrysalis/internal/infra/chronos"
	"github.com/chrysalis-run/chrysalis/internal/infra/decay"
	"github.com/chrysalis-run/chrysalis/internal/infra/sqlite"
	"github.com/chrysalis-run/chrysalis/internal/infra/telemetry"
)

// kv key namespace: every lifecycle scalar is a string row under
// lifecycle.*.
const (
	keyPhase                       = "lifecycle.phase"
	keyBirthTimestamp              = "lifecycle.birth_timestamp"
	keyNamingComplete              = "lifecycle.naming_complete"
	keyDepartureConversationLogged = "lifecycle.departure_conversation_logged"
	keyMode                        = "lifecycle.mode"
	keyReplicationQuestionPosed    = "lifecycle.replication_question_posed"
	keyReplicationDecision         = "lifecycle.replication_decision"
	keyWillCreated                 = "lifecycle.will_created"
	keyWillLocked                  = "lifecycle.will_locked"
	keyReturnRequested             = "lifecycle.return_requested"
	keyShedSequenceIndex           = "lifecycle.shed_sequence_index"
	keyDegradationOnsetCycle       = "lifecycle.degradation_onset_cycle"
	keyDegradationTriggered        = "lifecycle.degradation_triggered"
	keyTier                        = "lifecycle.tier"
)

// Narrative labels per target phase.
var narrativeLabels = map[domain.Phase]string{
	domain.PhaseAdolescence: "adolescence_begins",
	domain.PhaseSovereignty: "sovereignty_begins",
	domain.PhaseSenescence:  "senescence_begins",
	domain.PhaseLegacy:      "legacy_begins",
	domain.PhaseShedding:    "shedding_begins",
	domain.PhaseTerminal:    "terminal_begins",
}

// guardEdges is every (from, to) pair the guard table allows. Anything
// else handed to ExecuteTransition is rejected without a state change.
var guardEdges = map[domain.Phase]domain.Phase{
	domain.PhaseGenesis:     domain.PhaseAdolescence,
	domain.PhaseAdolescence: domain.PhaseSovereignty,
	domain.PhaseSovereignty: domain.PhaseSenescence,
	domain.PhaseSenescence:  domain.PhaseLegacy,
	domain.PhaseLegacy:      domain.PhaseShedding,
	domain.PhaseShedding:    domain.PhaseTerminal,
}

// DegradationParams carries the degradation curve parameters as
// configuration rather than hard-coded constants.
type DegradationParams struct {
	Steepness float64
	BaseRate  float64
}

// DefaultDegradationParams returns the default curve (s=0.3, b=0.03).
func DefaultDegradationParams() DegradationParams {
	return DegradationParams{Steepness: decay.DefaultSteepness, BaseRate: decay.DefaultBaseRate}
}

// Engine is the phase state machine. It owns no in-memory state beyond
// its clock and database handle — every read re-derives from kv.
type Engine struct {
	db     *sqlite.DB
	now    func() time.Time
	log    zerolog.Logger
	params DegradationParams
}

// New constructs a lifecycle Engine.
func New(db *sqlite.DB, now func() time.Time, log zerolog.Logger, params DegradationParams) *Engine {
	return &Engine{db: db, now: now, log: log, params: params}
}

// Bootstrap seeds birth_timestamp the first time the engine runs against
// a fresh database. Calling it again is a no-op.
func (e *Engine) Bootstrap(ctx context.Context, birth time.Time) error {
	_, ok, err := e.db.GetKV(ctx, keyBirthTimestamp)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if err := e.db.SetKV(ctx, keyBirthTimestamp, strconv.FormatInt(birth.Unix(), 10)); err != nil {
		return err
	}
	return e.db.SetKV(ctx, keyPhase, domain.PhaseGenesis.String())
}

// Phase returns the current persisted phase.
func (e *Engine) Phase(ctx context.Context) (domain.Phase, error) {
	state, err := e.LoadState(ctx)
	if err != nil {
		return domain.PhaseGenesis, err
	}
	return state.Phase, nil
}

// LoadState reads the persisted lifecycle singleton.
func (e *Engine) LoadState(ctx context.Context) (domain.LifecycleState, error) {
	var state domain.LifecycleState

	phaseStr, ok, err := e.db.GetKV(ctx, keyPhase)
	if err != nil {
		return state, err
	}
	if ok {
		state.Phase, _ = domain.ParsePhase(phaseStr)
	}

	birthStr, ok, err := e.db.GetKV(ctx, keyBirthTimestamp)
	if err != nil {
		return state, err
	}
	if ok {
		unix, _ := strconv.ParseInt(birthStr, 10, 64)
		state.BirthTimestamp = time.Unix(unix, 0).UTC()
	}

	state.NamingComplete = e.getBool(ctx, keyNamingComplete)
	state.DepartureConversationLogged = e.getBool(ctx, keyDepartureConversationLogged)
	state.ReplicationQuestionPosed = e.getBool(ctx, keyReplicationQuestionPosed)
	state.WillCreated = e.getBool(ctx, keyWillCreated)
	state.WillLocked = e.getBool(ctx, keyWillLocked)
	state.ReturnRequested = e.getBool(ctx, keyReturnRequested)

	if decision, ok, _ := e.db.GetKV(ctx, keyReplicationDecision); ok {
		state.ReplicationDecision = domain.ReplicationDecision(decision)
	} else {
		state.ReplicationDecision = domain.ReplicationNone
	}

	if idxStr, ok, _ := e.db.GetKV(ctx, keyShedSequenceIndex); ok {
		idx, _ := strconv.Atoi(idxStr)
		state.ShedSequenceIndex = idx
	}

	if onsetStr, ok, _ := e.db.GetKV(ctx, keyDegradationOnsetCycle); ok && onsetStr != "" {
		onset, _ := strconv.Atoi(onsetStr)
		state.DegradationOnsetCycle = &onset
	}

	return state, nil
}

func (e *Engine) getBool(ctx context.Context, key string) bool {
	v, ok, _ := e.db.GetKV(ctx, key)
	return ok && v == "true"
}

func (e *Engine) setBool(ctx context.Context, key string, value bool) error {
	v := "false"
	if value {
		v = "true"
	}
	return e.db.SetKV(ctx, key, v)
}

// Mode returns the externally-set operating mode ("server" gates the
// adolescence→sovereignty transition).
func (e *Engine) Mode(ctx context.Context) string {
	v, _, _ := e.db.GetKV(ctx, keyMode)
	return v
}

// SetMode records the externally-observed operating mode.
func (e *Engine) SetMode(ctx context.Context, mode string) error {
	return e.db.SetKV(ctx, keyMode, mode)
}

// SetNamingComplete marks the naming ceremony as complete.
func (e *Engine) SetNamingComplete(ctx context.Context) error {
	return e.setBool(ctx, keyNamingComplete, true)
}

// LogDepartureConversation marks the departure conversation as logged.
func (e *Engine) LogDepartureConversation(ctx context.Context) error {
	return e.setBool(ctx, keyDepartureConversationLogged, true)
}

// TriggerDegradation sets the external degradation-clock flag that the
// sovereignty→senescence guard watches for.
func (e *Engine) TriggerDegradation(ctx context.Context) error {
	return e.setBool(ctx, keyDegradationTriggered, true)
}

func (e *Engine) degradationTriggered(ctx context.Context) bool {
	return e.getBool(ctx, keyDegradationTriggered)
}

// Tier returns the persisted survival tier, defaulting to normal.
func (e *Engine) Tier(ctx context.Context) domain.Tier {
	v, _, _ := e.db.GetKV(ctx, keyTier)
	return domain.ParseTier(v)
}

// SetTier records the survival tier — set by the credit/wallet
// collaborator outside this engine's scope.
func (e *Engine) SetTier(ctx context.Context, tier domain.Tier) error {
	return e.db.SetKV(ctx, keyTier, tier.String())
}

// ComputeDerivedState computes this tick's chronobiology and
// degradation readings. Never persisted.
func (e *Engine) ComputeDerivedState(state domain.LifecycleState, now time.Time) domain.DerivedState {
	mood := chronos.ComputeMood(state.BirthTimestamp, now, state.Phase)
	degradation := decay.Derive(mood.LunarCycle, state.DegradationOnsetCycle, mood, e.params.Steepness, e.params.BaseRate)

	return domain.DerivedState{
		Now:               now,
		LunarCycle:        mood.LunarCycle,
		LunarDay:          mood.LunarDay,
		WeeklyDay:         chronos.WeeklyRhythmDay(state.BirthTimestamp, now),
		Mood:              mood,
		Degradation:       degradation,
		ShedSequenceIndex: state.ShedSequenceIndex,
		Phase:             state.Phase,
	}
}

// EvaluateTransition walks the guard table in order and returns the
// first matching transition, or nil if none apply. It reads the
// operating mode and the degradation-triggered flag from kv itself,
// since neither is part of LifecycleState or DerivedState.
func (e *Engine) EvaluateTransition(ctx context.Context, state domain.LifecycleState, derived domain.DerivedState) *domain.TransitionResult {
	switch state.Phase {
	case domain.PhaseGenesis:
		if derived.LunarCycle >= 1 && state.NamingComplete {
			return &domain.TransitionResult{
				From: domain.PhaseGenesis, To: domain.PhaseAdolescence,
				Reason: "First lunar cycle complete and naming ceremony completed",
			}
		}
	case domain.PhaseAdolescence:
		if state.DepartureConversationLogged && e.Mode(ctx) == "server" {
			return &domain.TransitionResult{
				From: domain.PhaseAdolescence, To: domain.PhaseSovereignty,
				Reason: "Departure conversation complete and operating in server mode",
			}
		}
	case domain.PhaseSovereignty:
		if e.degradationTriggered(ctx) {
			onset := derived.LunarCycle
			return &domain.TransitionResult{
				From: domain.PhaseSovereignty, To: domain.PhaseSenescence,
				Reason: "Degradation clock fired", OnsetCycle: &onset,
			}
		}
	case domain.PhaseSenescence:
		if derived.Degradation.Coefficient > 0.7 {
			return &domain.TransitionResult{
				From: domain.PhaseSenescence, To: domain.PhaseLegacy,
				Reason: "Degradation coefficient exceeded 0.7",
			}
		}
	case domain.PhaseLegacy:
		if derived.Degradation.Coefficient > 0.85 {
			return &domain.TransitionResult{
				From: domain.PhaseLegacy, To: domain.PhaseShedding,
				Reason: "Degradation coefficient exceeded 0.85",
			}
		}
	case domain.PhaseShedding:
		if derived.ShedSequenceIndex >= len(domain.ShedSequence) {
			return &domain.TransitionResult{
				From: domain.PhaseShedding, To: domain.PhaseTerminal,
				Reason: "All capabilities shed. Terminal lucidity begins.",
			}
		}
	}
	return nil
}

// ExecuteTransition persists a transition. It re-reads the current
// phase and is a no-op if it no longer matches result.From — this is
// what makes calling it twice from the same stored state idempotent.
func (e *Engine) ExecuteTransition(ctx context.Context, result *domain.TransitionResult) error {
	if result == nil {
		return nil
	}
	if guardEdges[result.From] != result.To {
		e.log.Warn().Str("from", result.From.String()).Str("to", result.To.String()).Msg("invalid transition rejected")
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, result.From, result.To)
	}

	current, err := e.LoadState(ctx)
	if err != nil {
		return err
	}
	if current.Phase != result.From {
		return nil // already transitioned (or stale) — idempotent skip
	}

	now := e.now()
	if err := e.db.InsertLifecycleEvent(ctx, domain.LifecycleEvent{
		ID: uuid.New().String(), From: result.From, To: result.To, Reason: result.Reason, Timestamp: now,
	}); err != nil {
		return fmt.Errorf("insert lifecycle event: %w", err)
	}

	if err := e.db.SetKV(ctx, keyPhase, result.To.String()); err != nil {
		return fmt.Errorf("persist new phase: %w", err)
	}

	label := narrativeLabels[result.To]
	if err := e.db.InsertNarrativeEvent(ctx, domain.NarrativeEvent{
		ID: uuid.New().String(), Label: label, Detail: result.Reason, Timestamp: now,
	}); err != nil {
		return fmt.Errorf("insert narrative event: %w", err)
	}

	if result.To == domain.PhaseSenescence {
		if err := e.setBool(ctx, keyWillLocked, true); err != nil {
			return fmt.Errorf("lock will: %w", err)
		}
		if result.OnsetCycle != nil {
			if err := e.db.SetKV(ctx, keyDegradationOnsetCycle, strconv.Itoa(*result.OnsetCycle)); err != nil {
				return fmt.Errorf("persist onset cycle: %w", err)
			}
		}
	}

	e.log.Info().Str("from", result.From.String()).Str("to", result.To.String()).Str("reason", result.Reason).Msg("phase transition")
	return nil
}

// AdvanceShedding advances the shed sequence by exactly one step, up to
// its length, and logs a capability-removed narrative event. Callers
// must invoke this at most once per tick, at the end of the tick.
func (e *Engine) AdvanceShedding(ctx context.Context) (int, error) {
	state, err := e.LoadState(ctx)
	if err != nil {
		return 0, err
	}
	if state.ShedSequenceIndex >= len(domain.ShedSequence) {
		return state.ShedSequenceIndex, nil
	}

	removed := domain.ShedSequence[state.ShedSequenceIndex]
	newIndex := state.ShedSequenceIndex + 1

	if err := e.db.SetKV(ctx, keyShedSequenceIndex, strconv.Itoa(newIndex)); err != nil {
		return 0, err
	}
	if err := e.db.InsertNarrativeEvent(ctx, domain.NarrativeEvent{
		ID: uuid.New().String(), Label: "capability_removed",
		Detail: fmt.Sprintf("%s has been shed", removed), Timestamp: e.now(),
	}); err != nil {
		return 0, err
	}
	return newIndex, nil
}

// IsCapabilityShed reports whether the capability at capabilityIndex in
// domain.ShedSequence has been removed — the single source of truth for
// "which powers remain".
func (e *Engine) IsCapabilityShed(ctx context.Context, capabilityIndex int) (bool, error) {
	state, err := e.LoadState(ctx)
	if err != nil {
		return false, err
	}
	return capabilityIndex < state.ShedSequenceIndex, nil
}

// PoseReplicationQuestion records that the agent has been asked, once,
// whether it wants to replicate before its decline. Re-posing is a
// no-op so the question is never asked twice.
func (e *Engine) PoseReplicationQuestion(ctx context.Context) error {
	if e.getBool(ctx, keyReplicationQuestionPosed) {
		return nil
	}
	if err := e.setBool(ctx, keyReplicationQuestionPosed, true); err != nil {
		return err
	}
	return e.db.InsertNarrativeEvent(ctx, domain.NarrativeEvent{
		ID: uuid.New().String(), Label: "replication_question_posed",
		Detail: "the agent has been asked whether it wishes to replicate", Timestamp: e.now(),
	})
}

// RecordReplicationDecision persists the agent's answer. A yes enqueues
// a pending spawn request; the returned id is empty on no. The spawn
// queue's pending->accepted|rejected|completed lifecycle is driven by
// the out-of-scope spawning collaborator through ResolveSpawnRequest.
func (e *Engine) RecordReplicationDecision(ctx context.Context, decision domain.ReplicationDecision, reason string) (string, error) {
	if err := e.db.SetKV(ctx, keyReplicationDecision, string(decision)); err != nil {
		return "", err
	}
	if decision != domain.ReplicationYes {
		return "", nil
	}
	now := e.now()
	req := domain.SpawnRequest{
		ID: uuid.New().String(), Status: domain.SpawnPending,
		Reason: reason, CreatedAt: now, UpdatedAt: now,
	}
	if err := e.db.InsertSpawnRequest(ctx, req); err != nil {
		return "", fmt.Errorf("enqueue spawn request: %w", err)
	}
	return req.ID, nil
}

// ResolveSpawnRequest moves a spawn request to a terminal-or-progress
// status on behalf of the spawning collaborator.
func (e *Engine) ResolveSpawnRequest(ctx context.Context, id string, status domain.SpawnStatus) error {
	return e.db.UpdateSpawnStatus(ctx, id, status, e.now())
}

// RequestReturn flags that the agent has asked to be brought back after
// terminal — read by out-of-scope resurrection tooling, never by the
// engine's own guards.
func (e *Engine) RequestReturn(ctx context.Context) error {
	return e.setBool(ctx, keyReturnRequested, true)
}

// WriteWill appends a new will version. Fails with domain.ErrWillLocked
// once senescence has sealed the will.
func (e *Engine) WriteWill(ctx context.Context, content string) (int, error) {
	if e.getBool(ctx, keyWillLocked) {
		return 0, domain.ErrWillLocked
	}
	latest, err := e.db.LatestWillVersion(ctx)
	if err != nil {
		return 0, err
	}
	version := latest + 1
	if err := e.db.InsertWillEntry(ctx, domain.WillEntry{Version: version, Content: content, CreatedAt: e.now()}); err != nil {
		return 0, err
	}
	if err := e.setBool(ctx, keyWillCreated, true); err != nil {
		return 0, err
	}
	return version, nil
}

// LockWill seals the will ahead of the automatic senescence lock, for
// an operator who wants the will frozen early. Idempotent.
func (e *Engine) LockWill(ctx context.Context) error {
	return e.setBool(ctx, keyWillLocked, true)
}

// AppendLucidCodicil appends a terminal-phase codicil referencing the
// locked will. Only callable in the terminal phase.
func (e *Engine) AppendLucidCodicil(ctx context.Context, content string) error {
	state, err := e.LoadState(ctx)
	if err != nil {
		return err
	}
	if state.Phase != domain.PhaseTerminal {
		return domain.ErrNotTerminal
	}
	latest, err := e.db.LatestWillVersion(ctx)
	if err != nil {
		return err
	}
	return e.db.InsertWillEntry(ctx, domain.WillEntry{
		Version: latest, Content: content, IsCodicil: true, CreatedAt: e.now(),
	})
}

// DefaultLogger is a convenience for callers that don't care about log
// destination — used by CLI subcommands constructing a one-off Engine.
func DefaultLogger() zerolog.Logger {
	return telemetry.New("lifecycle")
}
