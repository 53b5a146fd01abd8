package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/chrysalis-run/chrysalis/internal/domain"
	"github.com/google/uuid"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestKV_SetGetDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, ok, err := db.GetKV(ctx, "lifecycle.phase"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := db.SetKV(ctx, "lifecycle.phase", "genesis"); err != nil {
		t.Fatalf("SetKV() error: %v", err)
	}
	val, ok, err := db.GetKV(ctx, "lifecycle.phase")
	if err != nil || !ok || val != "genesis" {
		t.Fatalf("GetKV() = %q, %v, %v, want genesis, true, nil", val, ok, err)
	}

	if err := db.SetKV(ctx, "lifecycle.phase", "adolescence"); err != nil {
		t.Fatalf("SetKV() update error: %v", err)
	}
	val, _, _ = db.GetKV(ctx, "lifecycle.phase")
	if val != "adolescence" {
		t.Errorf("GetKV() after update = %q, want adolescence", val)
	}

	if err := db.DeleteKV(ctx, "lifecycle.phase"); err != nil {
		t.Fatalf("DeleteKV() error: %v", err)
	}
	if _, ok, _ := db.GetKV(ctx, "lifecycle.phase"); ok {
		t.Error("expected key gone after delete")
	}
}

func TestLifecycleEvents_InsertAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ev := domain.LifecycleEvent{
		ID: uuid.New().String(), From: domain.PhaseGenesis, To: domain.PhaseAdolescence,
		Reason: "first cycle complete", Timestamp: time.Now().UTC(),
	}
	if err := db.InsertLifecycleEvent(ctx, ev); err != nil {
		t.Fatalf("InsertLifecycleEvent() error: %v", err)
	}

	events, err := db.ListLifecycleEvents(ctx, 0)
	if err != nil {
		t.Fatalf("ListLifecycleEvents() error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].From != domain.PhaseGenesis || events[0].To != domain.PhaseAdolescence {
		t.Errorf("event = %+v, want genesis->adolescence", events[0])
	}
}

func TestWillEntries_LockedSemanticsLeftToCaller(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if v, err := db.LatestWillVersion(ctx); err != nil || v != 0 {
		t.Fatalf("LatestWillVersion() on empty table = %d, %v, want 0, nil", v, err)
	}

	entry := domain.WillEntry{Version: 1, Content: "v1", CreatedAt: time.Now().UTC()}
	if err := db.InsertWillEntry(ctx, entry); err != nil {
		t.Fatalf("InsertWillEntry() error: %v", err)
	}
	if v, _ := db.LatestWillVersion(ctx); v != 1 {
		t.Errorf("LatestWillVersion() = %d, want 1", v)
	}

	codicil := domain.WillEntry{Version: 1, Content: "last words", IsCodicil: true, CreatedAt: time.Now().UTC()}
	if err := db.InsertWillEntry(ctx, codicil); err != nil {
		t.Fatalf("InsertWillEntry(codicil) error: %v", err)
	}
	entries, err := db.ListWillEntries(ctx)
	if err != nil {
		t.Fatalf("ListWillEntries() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
}

func TestHeartbeatSchedule_UpsertPreservesHistoryOnReseed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task := domain.HeartbeatTask{
		TaskName: "tick_chronobiology_refresh", IntervalMs: 60_000, Enabled: true,
		Priority: 10, TimeoutMs: 5000, MaxRetries: 3, TierMinimum: domain.TierNormal, NextRunAt: now,
	}
	if err := db.UpsertHeartbeatTask(ctx, task); err != nil {
		t.Fatalf("UpsertHeartbeatTask() error: %v", err)
	}
	if err := db.RecordSuccess(ctx, task.TaskName, now, now.Add(time.Minute), "ok"); err != nil {
		t.Fatalf("RecordSuccess() error: %v", err)
	}

	// Re-seeding (same config) must not clobber run_count.
	if err := db.UpsertHeartbeatTask(ctx, task); err != nil {
		t.Fatalf("re-seed UpsertHeartbeatTask() error: %v", err)
	}
	got, err := db.GetHeartbeatTask(ctx, task.TaskName)
	if err != nil {
		t.Fatalf("GetHeartbeatTask() error: %v", err)
	}
	if got.RunCount != 1 {
		t.Errorf("RunCount after reseed = %d, want 1 (history preserved)", got.RunCount)
	}
}

func TestAcquireLease_ContentionAndExpiry(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task := domain.HeartbeatTask{
		TaskName: "tick_phase_transition_check", IntervalMs: 60_000, Enabled: true,
		Priority: 20, TimeoutMs: 1000, MaxRetries: 3, TierMinimum: domain.TierNormal, NextRunAt: now,
	}
	if err := db.UpsertHeartbeatTask(ctx, task); err != nil {
		t.Fatalf("UpsertHeartbeatTask() error: %v", err)
	}

	ok, err := db.AcquireLease(ctx, task.TaskName, "owner-a", now, 1000)
	if err != nil || !ok {
		t.Fatalf("first AcquireLease() = %v, %v, want true, nil", ok, err)
	}

	ok, err = db.AcquireLease(ctx, task.TaskName, "owner-b", now, 1000)
	if err != nil || ok {
		t.Fatalf("contended AcquireLease() = %v, %v, want false, nil", ok, err)
	}

	// After expiry, a new owner can acquire.
	later := now.Add(2 * time.Second)
	ok, err = db.AcquireLease(ctx, task.TaskName, "owner-b", later, 1000)
	if err != nil || !ok {
		t.Fatalf("post-expiry AcquireLease() = %v, %v, want true, nil", ok, err)
	}
}

func TestListDueHeartbeatTasks_DeterministicOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tasks := []domain.HeartbeatTask{
		{TaskName: "b_task", Priority: 10, Enabled: true, IntervalMs: 1000, TimeoutMs: 1000, MaxRetries: 1, TierMinimum: domain.TierNormal, NextRunAt: now.Add(-time.Minute)},
		{TaskName: "a_task", Priority: 10, Enabled: true, IntervalMs: 1000, TimeoutMs: 1000, MaxRetries: 1, TierMinimum: domain.TierNormal, NextRunAt: now.Add(-time.Minute)},
		{TaskName: "z_high_priority", Priority: 1, Enabled: true, IntervalMs: 1000, TimeoutMs: 1000, MaxRetries: 1, TierMinimum: domain.TierNormal, NextRunAt: now.Add(-time.Minute)},
	}
	for _, task := range tasks {
		if err := db.UpsertHeartbeatTask(ctx, task); err != nil {
			t.Fatalf("UpsertHeartbeatTask(%s) error: %v", task.TaskName, err)
		}
	}

	due, err := db.ListDueHeartbeatTasks(ctx, now)
	if err != nil {
		t.Fatalf("ListDueHeartbeatTasks() error: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("len(due) = %d, want 3", len(due))
	}
	want := []string{"z_high_priority", "a_task", "b_task"}
	for i, task := range due {
		if task.TaskName != want[i] {
			t.Errorf("due[%d] = %s, want %s", i, task.TaskName, want[i])
		}
	}
}
