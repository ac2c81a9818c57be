// Package sqlitestore implements the job and script stores on an embedded SQLite
// database. It backs local development, the jobctl CLI and the engine tests.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB is a migrated SQLite handle shared by JobStore and ScriptStore.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; transactions rely on this to serialize claims.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func migrate(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS scripts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS script_chunks (
		id TEXT PRIMARY KEY,
		script_id TEXT NOT NULL REFERENCES scripts(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		content TEXT NOT NULL,
		start_time REAL NOT NULL DEFAULT 0,
		end_time REAL NOT NULL DEFAULT 0,
		image_url TEXT NOT NULL DEFAULT '',
		secondary_image_url TEXT NOT NULL DEFAULT '',
		scene_description TEXT NOT NULL DEFAULT '',
		symbol_description TEXT NOT NULL DEFAULT '',
		image_provider TEXT NOT NULL DEFAULT '',
		image_metadata TEXT NOT NULL DEFAULT '{}',
		image_generated_at TEXT,
		updated_at TEXT NOT NULL,
		UNIQUE (script_id, position)
	);
	CREATE TABLE IF NOT EXISTS batch_jobs (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		config TEXT NOT NULL DEFAULT '{}',
		total_chunks INTEGER NOT NULL DEFAULT 0,
		processed_chunks INTEGER NOT NULL DEFAULT 0,
		failed_chunks INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		run_after TEXT,
		claimed_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		completed_at TEXT
	);
	CREATE UNIQUE INDEX IF NOT EXISTS uq_batch_jobs_active_subject
		ON batch_jobs (subject_id, kind)
		WHERE status IN ('pending', 'processing');
	CREATE INDEX IF NOT EXISTS idx_batch_jobs_queue ON batch_jobs (status, created_at);
	CREATE TABLE IF NOT EXISTS batch_job_items (
		job_id TEXT NOT NULL REFERENCES batch_jobs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		chunk_id TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 0,
		next_attempt_at TEXT,
		processed_at TEXT,
		image_url TEXT NOT NULL DEFAULT '',
		secondary_image_url TEXT NOT NULL DEFAULT '',
		scene_description TEXT NOT NULL DEFAULT '',
		symbol_description TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (job_id, position)
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (d *DB) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
