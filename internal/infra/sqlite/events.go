package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/chrysalis-run/chrysalis/internal/domain"
)

// ─── lifecycle_events ───────────────────────────────────────────────────────

// InsertLifecycleEvent appends a phase-transition record. Never mutated
// once written.
func (d *DB) InsertLifecycleEvent(ctx context.Context, ev domain.LifecycleEvent) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO lifecycle_events (id, from_phase, to_phase, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.From.String(), ev.To.String(), ev.Reason, ev.Timestamp.Unix(),
	)
	return err
}

// ListLifecycleEvents returns the most recent events, newest first.
// limit<=0 returns all rows.
func (d *DB) ListLifecycleEvents(ctx context.Context, limit int) ([]domain.LifecycleEvent, error) {
	query := `SELECT id, from_phase, to_phase, reason, created_at FROM lifecycle_events ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.LifecycleEvent
	for rows.Next() {
		var ev domain.LifecycleEvent
		var from, to string
		var createdAt int64
		if err := rows.Scan(&ev.ID, &from, &to, &ev.Reason, &createdAt); err != nil {
			return nil, err
		}
		ev.From, _ = domain.ParsePhase(from)
		ev.To, _ = domain.ParsePhase(to)
		ev.Timestamp = time.Unix(createdAt, 0).UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountLifecycleEventsBetween counts events recording exactly the
// from -> to transition, used by idempotent-transition tests.
func (d *DB) CountLifecycleEventsBetween(ctx context.Context, from, to domain.Phase) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lifecycle_events WHERE from_phase = ? AND to_phase = ?`,
		from.String(), to.String(),
	).Scan(&n)
	return n, err
}

// ─── narrative_events ───────────────────────────────────────────────────────

// InsertNarrativeEvent appends a human-readable narrative record.
func (d *DB) InsertNarrativeEvent(ctx context.Context, ev domain.NarrativeEvent) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO narrative_events (id, label, detail, created_at) VALUES (?, ?, ?, ?)`,
		ev.ID, ev.Label, ev.Detail, ev.Timestamp.Unix(),
	)
	return err
}

// ListNarrativeEvents returns the most recent narrative events, newest first.
func (d *DB) ListNarrativeEvents(ctx context.Context, limit int) ([]domain.NarrativeEvent, error) {
	query := `SELECT id, label, detail, created_at FROM narrative_events ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.NarrativeEvent
	for rows.Next() {
		var ev domain.NarrativeEvent
		var createdAt int64
		if err := rows.Scan(&ev.ID, &ev.Label, &ev.Detail, &createdAt); err != nil {
			return nil, err
		}
		ev.Timestamp = time.Unix(createdAt, 0).UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ─── will_entries ───────────────────────────────────────────────────────────

// InsertWillEntry appends a new will version or codicil. Callers must
// enforce the will-locked invariant before calling this for non-codicil
// entries; this method only persists.
func (d *DB) InsertWillEntry(ctx context.Context, entry domain.WillEntry) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO will_entries (version, content, is_codicil, created_at) VALUES (?, ?, ?, ?)`,
		entry.Version, entry.Content, entry.IsCodicil, entry.CreatedAt.Unix(),
	)
	return err
}

// LatestWillVersion returns the highest persisted will version, or 0 if
// none exists.
func (d *DB) LatestWillVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := d.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM will_entries WHERE is_codicil = 0`,
	).Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

// ListWillEntries returns all will entries (versions and codicils)
// ordered by version then creation time.
func (d *DB) ListWillEntries(ctx context.Context) ([]domain.WillEntry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT version, content, is_codicil, created_at FROM will_entries ORDER BY version ASC, created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.WillEntry
	for rows.Next() {
		var e domain.WillEntry
		var createdAt int64
		if err := rows.Scan(&e.Version, &e.Content, &e.IsCodicil, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ─── spawn_queue ────────────────────────────────────────────────────────────

// InsertSpawnRequest appends a new pending replication request.
func (d *DB) InsertSpawnRequest(ctx context.Context, req domain.SpawnRequest) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO spawn_queue (id, status, reason, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		req.ID, string(req.Status), req.Reason, req.CreatedAt.Unix(), req.UpdatedAt.Unix(),
	)
	return err
}

// UpdateSpawnStatus transitions a spawn request to a new status.
func (d *DB) UpdateSpawnStatus(ctx context.Context, id string, status domain.SpawnStatus, now time.Time) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE spawn_queue SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), now.Unix(), id,
	)
	return err
}

// ListSpawnRequests returns all spawn requests, newest first.
func (d *DB) ListSpawnRequests(ctx context.Context) ([]domain.SpawnRequest, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, status, reason, created_at, updated_at FROM spawn_queue ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []domain.SpawnRequest
	for rows.Next() {
		var r domain.SpawnRequest
		var status string
		var createdAt, updatedAt int64
		if err := rows.Scan(&r.ID, &status, &r.Reason, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		r.Status = domain.SpawnStatus(status)
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		r.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}
