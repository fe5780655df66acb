// Package sqlite implements store.Repository on top of modernc.org/sqlite,
// the teacher's own local-storage driver (internal/sqlite in the teacher
// repo), hand-written against database/sql rather than the teacher's sqlc
// generated layer (see DESIGN.md for why sqlc was dropped).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
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
	labels TEXT NOT NULL DEFAULT '[]',
	blocked_by TEXT NOT NULL DEFAULT '[]',
	epic_id TEXT NOT NULL DEFAULT '',
	agent TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'open',
	reason TEXT NOT NULL DEFAULT '',
	commit_hash TEXT NOT NULL DEFAULT '',
	selfguided_iteration INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_epic ON tasks(epic_id);

CREATE TABLE IF NOT EXISTS epics (
	short_id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'planning',
	self_guided INTEGER NOT NULL DEFAULT 0,
	plan_filename TEXT NOT NULL DEFAULT '',
	approved_by TEXT NOT NULL DEFAULT '',
	approved_at DATETIME,
	mirror_status TEXT NOT NULL DEFAULT 'none',
	mirror_path TEXT NOT NULL DEFAULT '',
	mirror_branch TEXT NOT NULL DEFAULT '',
	base_commit TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	short_id TEXT PRIMARY KEY,
	run_number INTEGER NOT NULL,
	task_short_id TEXT NOT NULL,
	agent TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	started_at DATETIME NOT NULL,
	ended_at DATETIME,
	exit_code INTEGER,
	cost_usd REAL,
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
	issues TEXT NOT NULL DEFAULT '[]',
	started_at DATETIME NOT NULL,
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_reviews_task ON reviews(task_short_id, started_at DESC);

CREATE TABLE IF NOT EXISTS backlog (
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
`

// Open opens (creating if needed) a SQLite database at path and applies the
// schema. WAL mode and a single-connection pool mirror the teacher's own
// sqlite setup, trading connection concurrency for simplicity since writes
// are already serialized through Repository.BeginTx.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}
