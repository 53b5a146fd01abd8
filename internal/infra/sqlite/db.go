// Package sqlite provides SQLite-based persistent storage for the
// Lifespan Engine. Uses WAL mode for concurrent reads and crash-safe
// writes, with a single writer connection.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and a 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer; keep the pool matching that discipline.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS lifecycle_events (
			id         TEXT PRIMARY KEY,
			from_phase TEXT NOT NULL,
			to_phase   TEXT NOT NULL,
			reason     TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS narrative_events (
			id         TEXT PRIMARY KEY,
			label      TEXT NOT NULL,
			detail     TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS will_entries (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			version    INTEGER NOT NULL,
			content    TEXT NOT NULL,
			is_codicil BOOLEAN NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS spawn_queue (
			id         TEXT PRIMARY KEY,
			status     TEXT NOT NULL DEFAULT 'pending',
			reason     TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS heartbeat_schedule (
			task_name        TEXT PRIMARY KEY,
			cron_expression  TEXT NOT NULL DEFAULT '',
			interval_ms      INTEGER NOT NULL DEFAULT 0,
			enabled          BOOLEAN NOT NULL DEFAULT 1,
			priority         INTEGER NOT NULL DEFAULT 100,
			timeout_ms       INTEGER NOT NULL DEFAULT 30000,
			max_retries      INTEGER NOT NULL DEFAULT 3,
			tier_minimum     TEXT NOT NULL DEFAULT 'dead',
			last_run_at      INTEGER,
			next_run_at      INTEGER NOT NULL DEFAULT 0,
			last_result      TEXT NOT NULL DEFAULT '',
			last_error       TEXT NOT NULL DEFAULT '',
			run_count        INTEGER NOT NULL DEFAULT 0,
			fail_count       INTEGER NOT NULL DEFAULT 0,
			lease_owner      TEXT,
			lease_expires_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lifecycle_events_created ON lifecycle_events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_narrative_events_created ON narrative_events(created_at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
