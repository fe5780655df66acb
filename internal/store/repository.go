package store

import (
	"context"
	"time"
)

// Tx represents an in-flight transaction handed back to callers that need
// to compose several repository calls atomically, mirroring the teacher's
// kit/tx.Tx indirection (reimplemented locally — see DESIGN.md).
type Tx interface {
	Commit() error
	Rollback() error
}

// Repository is the persistence interface implemented by the sqlite and
// postgres backends. Store is built on top of it and owns the
// higher-level invariants (cycle detection, status-transition rules,
// event publication); Repository itself is a thin, crash-consistent CRUD
// layer per §4.A.
type Repository interface {
	// Tasks
	CreateTask(ctx context.Context, t *Task) error
	ReadTask(ctx context.Context, shortID string) (*Task, error)
	ListTasks(ctx context.Context) ([]*Task, error)
	UpdateTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, shortID string) error
	TaskExists(ctx context.Context, shortID string) (bool, error)

	// Epics
	CreateEpic(ctx context.Context, e *Epic) error
	ReadEpic(ctx context.Context, shortID string) (*Epic, error)
	ListEpics(ctx context.Context) ([]*Epic, error)
	UpdateEpic(ctx context.Context, e *Epic) error

	// Runs
	CreateRun(ctx context.Context, r *Run) error
	ReadRun(ctx context.Context, shortID string) (*Run, error)
	UpdateRun(ctx context.Context, r *Run) error
	LatestRun(ctx context.Context, taskShortID string) (*Run, error)
	ListRunsByTask(ctx context.Context, taskShortID string) ([]*Run, error)
	ListRunsSince(ctx context.Context, since time.Time) ([]*Run, error)

	// Reviews
	CreateReview(ctx context.Context, r *Review) error
	UpdateReview(ctx context.Context, r *Review) error
	LatestReview(ctx context.Context, taskShortID string) (*Review, error)

	// Backlog
	CreateBacklogItem(ctx context.Context, b *BacklogItem) error
	ListBacklog(ctx context.Context) ([]*BacklogItem, error)

	// All short ids across every entity kind, for partial-id resolution.
	AllShortIDs(ctx context.Context) ([]string, error)

	// BeginTx runs fn within a single transaction. Implementations MUST
	// roll back on any returned error and MUST serialize concurrent
	// writers so that read-check-write sequences (e.g. claim-one-ready-task)
	// are race-free, per §4.A and the Concurrent-cap testable property.
	BeginTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
