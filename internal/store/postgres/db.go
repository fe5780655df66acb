// Package postgres implements store.Repository on top of jackc/pgx/v5,
// the teacher's own remote-storage driver (internal/postgres in the
// teacher repo), hand-written against pgx directly rather than the
// teacher's sqlc generated layer (see DESIGN.md for why sqlc was dropped).
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	short_id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 2,
	size TEXT NOT NULL DEFAULT 'm',
	complexity TEXT NOT NULL DEFAULT 'simple',
	labels JSONB NOT NULL DEFAULT '[]',
	blocked_by JSONB NOT NULL DEFAULT '[]',
	epic_id TEXT NOT NULL DEFAULT '',
	agent TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'open',
	reason TEXT NOT NULL DEFAULT '',
	commit_hash TEXT NOT NULL DEFAULT '',
	selfguided_iteration INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_epic ON tasks(epic_id);

CREATE TABLE IF NOT EXISTS epics (
	short_id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'planning',
	self_guided BOOLEAN NOT NULL DEFAULT false,
	plan_filename TEXT NOT NULL DEFAULT '',
	approved_by TEXT NOT NULL DEFAULT '',
	approved_at TIMESTAMPTZ,
	mirror_status TEXT NOT NULL DEFAULT 'none',
	mirror_path TEXT NOT NULL DEFAULT '',
	mirror_branch TEXT NOT NULL DEFAULT '',
	base_commit TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	short_id TEXT PRIMARY KEY,
	run_number INTEGER NOT NULL,
	task_short_id TEXT NOT NULL,
	agent TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,
	exit_code INTEGER,
	cost_usd DOUBLE PRECISION,
	session_id TEXT NOT NULL DEFAULT '',
	output TEXT NOT NULL DEFAULT '',
	commit_hash TEXT NOT NULL DEFAULT '',
	pid INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_task ON runs(task_short_id, started_at DESC);

CREATE TABLE IF NOT EXISTS reviews (
	short_id TEXT PRIMARY KEY,
	task_short_id TEXT NOT NULL,
	agent TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	issues JSONB NOT NULL DEFAULT '[]',
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_reviews_task ON reviews(task_short_id, started_at DESC);

CREATE TABLE IF NOT EXISTS backlog (
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
`

// Open connects a pgxpool.Pool to dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return pool, nil
}
