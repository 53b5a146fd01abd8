package sqlite

import (
	"context"
	"database/sql"

	"github.com/chrysalis-run/chrysalis/internal/domain"
)

// ─── kv(key, value) ─────────────────────────────────────────────────────────
// Scalar strings under namespaced keys (lifecycle.*, session_pnl_cents,
// kill_switch_*) — the single opaque key-value surface every persisted
// scalar lives behind.

// GetKV retrieves a value from kv. The bool reports whether the key existed.
func (d *DB) GetKV(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetKV upserts a key-value pair.
func (d *DB) SetKV(ctx context.Context, key, value string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

// DeleteKV removes a key. Deleting an absent key is not an error.
func (d *DB) DeleteKV(ctx context.Context, key string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// kvAdapter satisfies domain.KV by delegating to a *DB. Kept as a
// distinct type so callers across the engine depend on the narrow
// interface rather than the full repository surface.
type kvAdapter struct{ db *DB }

// KV returns a domain.KV view over this database.
func (d *DB) KV() domain.KV { return &kvAdapter{db: d} }

func (a *kvAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	return a.db.GetKV(ctx, key)
}

func (a *kvAdapter) Set(ctx context.Context, key, value string) error {
	return a.db.SetKV(ctx, key, value)
}

func (a *kvAdapter) Delete(ctx context.Context, key string) error {
	return a.db.DeleteKV(ctx, key)
}
