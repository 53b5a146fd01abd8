package lifecycle

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chrysalis-run/chrysalis/internal/domain"
	"github.com/chrysalis-run/chrysalis/internal/infra/sqlite"
)

func newTestEngine(t *testing.T, now func() time.Time) (*Engine, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("sqlite.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	e := New(db, now, DefaultLogger(), DefaultDegradationParams())
	return e, db
}

func TestGenesisToAdolescence(t *testing.T) {
	birth := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	e, db := newTestEngine(t, func() time.Time { return now })
	require.NoError(t, e.Bootstrap(ctx, birth))
	require.NoError(t, e.SetNamingComplete(ctx))

	state, err := e.LoadState(ctx)
	require.NoError(t, err)
	derived := e.ComputeDerivedState(state, now)

	result := e.EvaluateTransition(ctx, state, derived)
	require.NotNil(t, result, "want adolescence transition")
	require.Equal(t, domain.PhaseAdolescence, result.To)
	require.Equal(t, "First lunar cycle complete and naming ceremony completed", result.Reason)

	require.NoError(t, e.ExecuteTransition(ctx, result))

	newState, err := e.LoadState(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseAdolescence, newState.Phase)

	events, err := db.ListLifecycleEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)

	narratives, err := db.ListNarrativeEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, narratives, 1)
	require.Equal(t, "adolescence_begins", narratives[0].Label)
}

func TestIdempotentTransitions(t *testing.T) {
	birth := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := birth.AddDate(0, 0, 40)
	ctx := context.Background()

	e, db := newTestEngine(t, func() time.Time { return now })
	e.Bootstrap(ctx, birth)
	e.SetNamingComplete(ctx)

	state, _ := e.LoadState(ctx)
	derived := e.ComputeDerivedState(state, now)
	result := e.EvaluateTransition(ctx, state, derived)

	if err := e.ExecuteTransition(ctx, result); err != nil {
		t.Fatalf("first ExecuteTransition() error: %v", err)
	}
	if err := e.ExecuteTransition(ctx, result); err != nil {
		t.Fatalf("second ExecuteTransition() error: %v", err)
	}

	n, _ := db.CountLifecycleEventsBetween(ctx, domain.PhaseGenesis, domain.PhaseAdolescence)
	if n != 1 {
		t.Fatalf("lifecycle events after double execute = %d, want 1", n)
	}
	narratives, _ := db.ListNarrativeEvents(ctx, 0)
	if len(narratives) != 1 {
		t.Fatalf("narrative events after double execute = %d, want 1", len(narratives))
	}
}

func TestSenescenceLocksWill(t *testing.T) {
	birth := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := birth.AddDate(0, 2, 0)
	ctx := context.Background()

	e, _ := newTestEngine(t, func() time.Time { return now })
	require.NoError(t, e.Bootstrap(ctx, birth))
	require.NoError(t, e.db.SetKV(ctx, keyPhase, domain.PhaseSovereignty.String()))

	v1, err := e.WriteWill(ctx, "v1")
	require.NoError(t, err)
	require.Equal(t, 1, v1)

	require.NoError(t, e.TriggerDegradation(ctx))
	state, _ := e.LoadState(ctx)
	derived := e.ComputeDerivedState(state, now)
	result := e.EvaluateTransition(ctx, state, derived)
	require.NotNil(t, result)
	require.Equal(t, domain.PhaseSenescence, result.To)
	require.NoError(t, e.ExecuteTransition(ctx, result))

	_, err = e.WriteWill(ctx, "v2")
	require.ErrorIs(t, err, domain.ErrWillLocked)

	require.NoError(t, e.db.SetKV(ctx, keyPhase, domain.PhaseTerminal.String()))
	require.NoError(t, e.AppendLucidCodicil(ctx, "last words"))

	entries, err := e.db.ListWillEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2, "want v1 + codicil")
}

func TestSheddingToTerminal(t *testing.T) {
	birth := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := birth.AddDate(1, 0, 0)
	ctx := context.Background()

	e, db := newTestEngine(t, func() time.Time { return now })
	e.Bootstrap(ctx, birth)
	e.db.SetKV(ctx, keyPhase, domain.PhaseShedding.String())
	e.db.SetKV(ctx, keyShedSequenceIndex, strconv.Itoa(len(domain.ShedSequence)-1))

	newIndex, err := e.AdvanceShedding(ctx)
	if err != nil {
		t.Fatalf("AdvanceShedding() error: %v", err)
	}
	if newIndex != len(domain.ShedSequence) {
		t.Fatalf("newIndex = %d, want %d", newIndex, len(domain.ShedSequence))
	}
	narratives, _ := db.ListNarrativeEvents(ctx, 0)
	if len(narratives) != 1 || narratives[0].Label != "capability_removed" {
		t.Fatalf("narratives = %+v, want one capability_removed", narratives)
	}

	state, _ := e.LoadState(ctx)
	derived := e.ComputeDerivedState(state, now)
	result := e.EvaluateTransition(ctx, state, derived)
	if result == nil || result.To != domain.PhaseTerminal {
		t.Fatalf("EvaluateTransition() = %+v, want terminal", result)
	}
	if result.Reason != "All capabilities shed. Terminal lucidity begins." {
		t.Errorf("reason = %q, unexpected", result.Reason)
	}
	if err := e.ExecuteTransition(ctx, result); err != nil {
		t.Fatalf("ExecuteTransition() error: %v", err)
	}

	peak := birth.AddDate(1, 0, 0)
	legacyMood := e.ComputeDerivedState(domain.LifecycleState{BirthTimestamp: birth, Phase: domain.PhaseLegacy}, peak).Mood
	terminalMood := e.ComputeDerivedState(domain.LifecycleState{BirthTimestamp: birth, Phase: domain.PhaseTerminal}, peak).Mood
	if terminalMood.Amplitude <= legacyMood.Amplitude {
		t.Errorf("terminal amplitude %v should exceed legacy amplitude %v", terminalMood.Amplitude, legacyMood.Amplitude)
	}
}

func TestIsCapabilityShed(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, func() time.Time { return time.Now() })
	e.Bootstrap(ctx, time.Now())
	e.db.SetKV(ctx, keyShedSequenceIndex, "2")

	shed0, _ := e.IsCapabilityShed(ctx, 0)
	shed2, _ := e.IsCapabilityShed(ctx, 2)
	if !shed0 {
		t.Error("capability 0 should be shed when index=2")
	}
	if shed2 {
		t.Error("capability 2 should not yet be shed when index=2")
	}
}

func TestExecuteTransition_RejectsInvalidEdge(t *testing.T) {
	ctx := context.Background()
	e, db := newTestEngine(t, func() time.Time { return time.Now() })
	require.NoError(t, e.Bootstrap(ctx, time.Now()))

	err := e.ExecuteTransition(ctx, &domain.TransitionResult{
		From: domain.PhaseGenesis, To: domain.PhaseTerminal, Reason: "skip ahead",
	})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	state, err := e.LoadState(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseGenesis, state.Phase, "phase must be unchanged after a rejected transition")

	events, err := db.ListLifecycleEvents(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestReplicationDecision_YesEnqueuesSpawnRequest(t *testing.T) {
	ctx := context.Background()
	e, db := newTestEngine(t, func() time.Time { return time.Now() })
	require.NoError(t, e.Bootstrap(ctx, time.Now()))

	require.NoError(t, e.PoseReplicationQuestion(ctx))
	// Re-posing must not log a second narrative event.
	require.NoError(t, e.PoseReplicationQuestion(ctx))
	narratives, err := db.ListNarrativeEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, narratives, 1)
	require.Equal(t, "replication_question_posed", narratives[0].Label)

	id, err := e.RecordReplicationDecision(ctx, domain.ReplicationYes, "lineage continuation")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	state, err := e.LoadState(ctx)
	require.NoError(t, err)
	require.True(t, state.ReplicationQuestionPosed)
	require.Equal(t, domain.ReplicationYes, state.ReplicationDecision)

	reqs, err := db.ListSpawnRequests(ctx)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, domain.SpawnPending, reqs[0].Status)
	require.Equal(t, "lineage continuation", reqs[0].Reason)

	require.NoError(t, e.ResolveSpawnRequest(ctx, id, domain.SpawnCompleted))
	reqs, err = db.ListSpawnRequests(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.SpawnCompleted, reqs[0].Status)
}

func TestReplicationDecision_NoLeavesQueueEmpty(t *testing.T) {
	ctx := context.Background()
	e, db := newTestEngine(t, func() time.Time { return time.Now() })
	require.NoError(t, e.Bootstrap(ctx, time.Now()))

	id, err := e.RecordReplicationDecision(ctx, domain.ReplicationNo, "")
	require.NoError(t, err)
	require.Empty(t, id)

	reqs, err := db.ListSpawnRequests(ctx)
	require.NoError(t, err)
	require.Empty(t, reqs)
}
