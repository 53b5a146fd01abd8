package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/chrysalis-run/chrysalis/internal/domain"
)

// ─── heartbeat_schedule ──────────────────────────────────────────────────────

// UpsertHeartbeatTask inserts a task row if absent, or updates its
// configuration fields if present — run-history columns are left
// untouched on conflict so seeding defaults never clobbers history.
func (d *DB) UpsertHeartbeatTask(ctx context.Context, task domain.HeartbeatTask) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO heartbeat_schedule
			(task_name, cron_expression, interval_ms, enabled, priority, timeout_ms, max_retries, tier_minimum, next_run_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(task_name) DO UPDATE SET
			cron_expression=excluded.cron_expression,
			interval_ms=excluded.interval_ms,
			enabled=excluded.enabled,
			priority=excluded.priority,
			timeout_ms=excluded.timeout_ms,
			max_retries=excluded.max_retries,
			tier_minimum=excluded.tier_minimum`,
		task.TaskName, task.CronExpression, task.IntervalMs, task.Enabled, task.Priority,
		task.TimeoutMs, task.MaxRetries, task.TierMinimum.String(), task.NextRunAt.Unix(),
	)
	return err
}

// GetHeartbeatTask retrieves a single task row, or nil if absent.
func (d *DB) GetHeartbeatTask(ctx context.Context, name string) (*domain.HeartbeatTask, error) {
	row := d.db.QueryRowContext(ctx, heartbeatSelect+` WHERE task_name = ?`, name)
	return scanHeartbeatTask(row)
}

// ListDueHeartbeatTasks returns enabled tasks whose next_run_at is at or
// before now, ordered by priority ascending then task_name ascending so
// dispatch order is deterministic within a tick.
func (d *DB) ListDueHeartbeatTasks(ctx context.Context, now time.Time) ([]domain.HeartbeatTask, error) {
	rows, err := d.db.QueryContext(ctx,
		heartbeatSelect+` WHERE enabled = 1 AND next_run_at <= ? ORDER BY priority ASC, task_name ASC`,
		now.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHeartbeatTasks(rows)
}

// ListHeartbeatTasks returns every registered task, ordered by priority
// then name.
func (d *DB) ListHeartbeatTasks(ctx context.Context) ([]domain.HeartbeatTask, error) {
	rows, err := d.db.QueryContext(ctx, heartbeatSelect+` ORDER BY priority ASC, task_name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHeartbeatTasks(rows)
}

// AcquireLease atomically claims a task's lease: it succeeds only if the
// previous lease was null or has expired. This is the one compare-and-
// swap that makes multi-process deployments safe.
func (d *DB) AcquireLease(ctx context.Context, taskName, owner string, now time.Time, timeoutMs int64) (bool, error) {
	expiresAt := now.Add(time.Duration(timeoutMs) * time.Millisecond).Unix()
	res, err := d.db.ExecContext(ctx,
		`UPDATE heartbeat_schedule
		 SET lease_owner = ?, lease_expires_at = ?
		 WHERE task_name = ? AND (lease_owner IS NULL OR lease_expires_at <= ?)`,
		owner, expiresAt, taskName, now.Unix(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RecordSuccess persists a successful execution, resets fail_count to
// zero (the task has proven healthy again), and releases the lease.
func (d *DB) RecordSuccess(ctx context.Context, taskName string, lastRunAt, nextRunAt time.Time, result string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE heartbeat_schedule
		 SET last_run_at = ?, next_run_at = ?, last_result = ?, last_error = '',
		     run_count = run_count + 1, fail_count = 0,
		     lease_owner = NULL, lease_expires_at = NULL
		 WHERE task_name = ?`,
		lastRunAt.Unix(), nextRunAt.Unix(), result, taskName,
	)
	return err
}

// RecordFailure persists a failed execution, increments fail_count, and
// releases the lease so the next tick can retry immediately.
func (d *DB) RecordFailure(ctx context.Context, taskName string, lastRunAt, nextRunAt time.Time, lastErr string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE heartbeat_schedule
		 SET last_run_at = ?, next_run_at = ?, last_result = '', last_error = ?,
		     run_count = run_count + 1, fail_count = fail_count + 1,
		     lease_owner = NULL, lease_expires_at = NULL
		 WHERE task_name = ?`,
		lastRunAt.Unix(), nextRunAt.Unix(), lastErr, taskName,
	)
	return err
}

// RecordTimeout persists a timed-out execution and increments fail_count,
// but deliberately leaves next_run_at and the lease untouched — the task
// is abandoned in place and its lease is reclaimed by the next tick only
// once it naturally expires.
func (d *DB) RecordTimeout(ctx context.Context, taskName string, lastRunAt time.Time, lastErr string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE heartbeat_schedule
		 SET last_run_at = ?, last_result = '', last_error = ?,
		     run_count = run_count + 1, fail_count = fail_count + 1
		 WHERE task_name = ?`,
		lastRunAt.Unix(), lastErr, taskName,
	)
	return err
}

const heartbeatSelect = `SELECT task_name, cron_expression, interval_ms, enabled, priority, timeout_ms, max_retries,
	tier_minimum, last_run_at, next_run_at, last_result, last_error, run_count, fail_count, lease_owner, lease_expires_at
	FROM heartbeat_schedule`

func scanHeartbeatTask(s scanner) (*domain.HeartbeatTask, error) {
	var t domain.HeartbeatTask
	var tierMinimum string
	var lastRunAt, nextRunAt sql.NullInt64
	var leaseOwner sql.NullString
	var leaseExpiresAt sql.NullInt64

	err := s.Scan(&t.TaskName, &t.CronExpression, &t.IntervalMs, &t.Enabled, &t.Priority, &t.TimeoutMs,
		&t.MaxRetries, &tierMinimum, &lastRunAt, &nextRunAt, &t.LastResult, &t.LastError,
		&t.RunCount, &t.FailCount, &leaseOwner, &leaseExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t.TierMinimum = domain.ParseTier(tierMinimum)
	if lastRunAt.Valid {
		ts := time.Unix(lastRunAt.Int64, 0).UTC()
		t.LastRunAt = &ts
	}
	if nextRunAt.Valid {
		t.NextRunAt = time.Unix(nextRunAt.Int64, 0).UTC()
	}
	if leaseOwner.Valid {
		t.LeaseOwner = leaseOwner.String
	}
	if leaseExpiresAt.Valid {
		ts := time.Unix(leaseExpiresAt.Int64, 0).UTC()
		t.LeaseExpiresAt = &ts
	}
	return &t, nil
}

func scanHeartbeatTasks(rows *sql.Rows) ([]domain.HeartbeatTask, error) {
	var tasks []domain.HeartbeatTask
	for rows.Next() {
		t, err := scanHeartbeatTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}
