package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Schema is applied statement by statement; every statement is idempotent.
var Schema = []string{
	`create table if not exists scripts (
    id text primary key,
    title text not null default '',
    content text not null default '',
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
)`,
	`create table if not exists script_chunks (
    id text primary key,
    script_id text not null references scripts(id) on delete cascade,
    position int not null,
    content text not null,
    start_time double precision not null default 0,
    end_time double precision not null default 0,
    image_url text not null default '',
    secondary_image_url text not null default '',
    scene_description text not null default '',
    symbol_description text not null default '',
    image_provider text not null default '',
    image_metadata jsonb not null default '{}'::jsonb,
    image_generated_at timestamptz,
    updated_at timestamptz not null default now(),
    unique (script_id, position)
)`,
	`create table if not exists batch_jobs (
    id text primary key,
    subject_id text not null,
    kind text not null,
    status text not null check (status in ('pending', 'processing', 'completed', 'failed', 'paused')),
    config jsonb not null default '{}'::jsonb,
    total_chunks int not null default 0,
    processed_chunks int not null default 0,
    failed_chunks int not null default 0,
    error text not null default '',
    run_after timestamptz,
    claimed_by text not null default '',
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now(),
    completed_at timestamptz
)`,
	`create unique index if not exists uq_batch_jobs_active_subject
    on batch_jobs (subject_id, kind)
    where status in ('pending', 'processing')`,
	`create index if not exists idx_batch_jobs_queue
    on batch_jobs (status, created_at)`,
	`create table if not exists batch_job_items (
    job_id text not null references batch_jobs(id) on delete cascade,
    position int not null,
    chunk_id text not null,
    status text not null check (status in ('pending', 'processing', 'completed', 'failed')),
    error text not null default '',
    attempts int not null default 0,
    next_attempt_at timestamptz,
    processed_at timestamptz,
    image_url text not null default '',
    secondary_image_url text not null default '',
    scene_description text not null default '',
    symbol_description text not null default '',
    primary key (job_id, position)
)`,
	`create table if not exists provider_credentials (
    provider text primary key,
    token text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
)`,
}

// Migrate creates the tables and indexes used by the postgres stores.
func Migrate(ctx context.Context, db DBTX) error {
	for i, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}
