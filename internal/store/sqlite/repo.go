package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ashleyhindle/fuel-sub006/internal/store"
	"github.com/ashleyhindle/fuel-sub006/internal/store/errs"
	sqlitelib "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// execer is satisfied by both *sql.DB and *sql.Tx, mirroring the teacher's
// sqlc.DBTX indirection without generating code for it.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ store.Repository = (*Repository)(nil)

// Repository implements store.Repository against a SQLite database. A
// single in-process mutex serializes writers (the teacher relies on
// SQLite's own single-writer lock; here it's made explicit so BeginTx's
// read-check-write sequences are race-free under db.SetMaxOpenConns(1)).
type Repository struct {
	db   *sql.DB
	mu   *sync.Mutex
	exec execer
}

// New wraps db in a Repository. db is normally opened with Open.
func New(db *sql.DB) *Repository {
	return &Repository{db: db, mu: &sync.Mutex{}, exec: db}
}

func (r *Repository) BeginTx(ctx context.Context, fn func(ctx context.Context, repo store.Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	cpy := &Repository{db: r.db, mu: r.mu, exec: tx}
	if err := fn(ctx, cpy); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func tagErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.ErrNotFound
	}
	var sqliteErr *sqlitelib.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return errs.ErrConflict
		}
	}
	return err
}

// --- Tasks ---

func (r *Repository) CreateTask(ctx context.Context, t *store.Task) error {
	_, err := r.exec.ExecContext(ctx, `
		INSERT INTO tasks (short_id, title, description, type, priority, size, complexity, labels, blocked_by, epic_id, agent, status, reason, commit_hash, selfguided_iteration, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, t.ShortID, t.Title, t.Description, string(t.Type), t.Priority, string(t.Size), string(t.Complexity),
		marshalSet(t.Labels), marshalSet(t.BlockedBy), t.EpicID, t.Agent, string(t.Status), t.Reason, t.CommitHash,
		t.SelfguidedIteration, t.CreatedAt, t.UpdatedAt)
	return tagErr(err)
}

func (r *Repository) scanTask(row interface{ Scan(dest ...any) error }) (*store.Task, error) {
	var t store.Task
	var typ, size, complexity, status, labels, blockedBy string
	var approvedAt sql.NullTime
	_ = approvedAt
	if err := row.Scan(&t.ShortID, &t.Title, &t.Description, &typ, &t.Priority, &size, &complexity,
		&labels, &blockedBy, &t.EpicID, &t.Agent, &status, &t.Reason, &t.CommitHash,
		&t.SelfguidedIteration, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Type = store.TaskType(typ)
	t.Size = store.TaskSize(size)
	t.Complexity = store.TaskComplexity(complexity)
	t.Status = store.TaskStatus(status)
	t.Labels = unmarshalSet(labels)
	t.BlockedBy = unmarshalSet(blockedBy)
	return &t, nil
}

const taskColumns = `short_id, title, description, type, priority, size, complexity, labels, blocked_by, epic_id, agent, status, reason, commit_hash, selfguided_iteration, created_at, updated_at`

func (r *Repository) ReadTask(ctx context.Context, shortID string) (*store.Task, error) {
	row := r.exec.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE short_id = ?", shortID)
	t, err := r.scanTask(row)
	if err != nil {
		return nil, tagErr(err)
	}
	return t, nil
}

func (r *Repository) ListTasks(ctx context.Context) ([]*store.Task, error) {
	rows, err := r.exec.QueryContext(ctx, "SELECT "+taskColumns+" FROM tasks ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*store.Task
	for rows.Next() {
		t, err := r.scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateTask(ctx context.Context, t *store.Task) error {
	res, err := r.exec.ExecContext(ctx, `
		UPDATE tasks SET title=?, description=?, type=?, priority=?, size=?, complexity=?, labels=?, blocked_by=?,
			epic_id=?, agent=?, status=?, reason=?, commit_hash=?, selfguided_iteration=?, updated_at=?
		WHERE short_id=?;
	`, t.Title, t.Description, string(t.Type), t.Priority, string(t.Size), string(t.Complexity),
		marshalSet(t.Labels), marshalSet(t.BlockedBy), t.EpicID, t.Agent, string(t.Status), t.Reason, t.CommitHash,
		t.SelfguidedIteration, t.UpdatedAt, t.ShortID)
	if err != nil {
		return tagErr(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteTask(ctx context.Context, shortID string) error {
	_, err := r.exec.ExecContext(ctx, "DELETE FROM tasks WHERE short_id = ?", shortID)
	return tagErr(err)
}

func (r *Repository) TaskExists(ctx context.Context, shortID string) (bool, error) {
	var n int
	err := r.exec.QueryRowContext(ctx, "SELECT COUNT(1) FROM tasks WHERE short_id = ?", shortID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// --- Epics ---

func (r *Repository) CreateEpic(ctx context.Context, e *store.Epic) error {
	_, err := r.exec.ExecContext(ctx, `
		INSERT INTO epics (short_id, title, description, status, self_guided, plan_filename, approved_by, approved_at, mirror_status, mirror_path, mirror_branch, base_commit, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, e.ShortID, e.Title, e.Description, string(e.Status), boolToInt(e.SelfGuided), e.PlanFilename, e.ApprovedBy,
		e.ApprovedAt, string(e.MirrorStatus), e.MirrorPath, e.MirrorBranch, e.BaseCommit, e.CreatedAt, e.UpdatedAt)
	return tagErr(err)
}

const epicColumns = `short_id, title, description, status, self_guided, plan_filename, approved_by, approved_at, mirror_status, mirror_path, mirror_branch, base_commit, created_at, updated_at`

func scanEpic(row interface{ Scan(dest ...any) error }) (*store.Epic, error) {
	var e store.Epic
	var status, mirrorStatus string
	var selfGuided int
	var approvedAt sql.NullTime
	if err := row.Scan(&e.ShortID, &e.Title, &e.Description, &status, &selfGuided, &e.PlanFilename, &e.ApprovedBy,
		&approvedAt, &mirrorStatus, &e.MirrorPath, &e.MirrorBranch, &e.BaseCommit, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Status = store.EpicStatus(status)
	e.MirrorStatus = store.MirrorStatus(mirrorStatus)
	e.SelfGuided = selfGuided != 0
	if approvedAt.Valid {
		e.ApprovedAt = &approvedAt.Time
	}
	return &e, nil
}

func (r *Repository) ReadEpic(ctx context.Context, shortID string) (*store.Epic, error) {
	row := r.exec.QueryRowContext(ctx, "SELECT "+epicColumns+" FROM epics WHERE short_id = ?", shortID)
	e, err := scanEpic(row)
	if err != nil {
		return nil, tagErr(err)
	}
	return e, nil
}

func (r *Repository) ListEpics(ctx context.Context) ([]*store.Epic, error) {
	rows, err := r.exec.QueryContext(ctx, "SELECT "+epicColumns+" FROM epics ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*store.Epic
	for rows.Next() {
		e, err := scanEpic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateEpic(ctx context.Context, e *store.Epic) error {
	res, err := r.exec.ExecContext(ctx, `
		UPDATE epics SET title=?, description=?, status=?, self_guided=?, plan_filename=?, approved_by=?, approved_at=?,
			mirror_status=?, mirror_path=?, mirror_branch=?, base_commit=?, updated_at=?
		WHERE short_id=?;
	`, e.Title, e.Description, string(e.Status), boolToInt(e.SelfGuided), e.PlanFilename, e.ApprovedBy, e.ApprovedAt,
		string(e.MirrorStatus), e.MirrorPath, e.MirrorBranch, e.BaseCommit, e.UpdatedAt, e.ShortID)
	if err != nil {
		return tagErr(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// --- Runs ---

func (r *Repository) CreateRun(ctx context.Context, run *store.Run) error {
	_, err := r.exec.ExecContext(ctx, `
		INSERT INTO runs (short_id, run_number, task_short_id, agent, model, started_at, ended_at, exit_code, cost_usd, session_id, output, commit_hash, pid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, run.ShortID, run.RunNumber, run.TaskShortID, run.Agent, run.Model, run.StartedAt, run.EndedAt, run.ExitCode,
		run.CostUSD, run.SessionID, run.Output, run.CommitHash, run.PID)
	return tagErr(err)
}

const runColumns = `short_id, run_number, task_short_id, agent, model, started_at, ended_at, exit_code, cost_usd, session_id, output, commit_hash, pid`

func scanRun(row interface{ Scan(dest ...any) error }) (*store.Run, error) {
	var run store.Run
	var endedAt sql.NullTime
	var exitCode sql.NullInt64
	var costUSD sql.NullFloat64
	if err := row.Scan(&run.ShortID, &run.RunNumber, &run.TaskShortID, &run.Agent, &run.Model, &run.StartedAt,
		&endedAt, &exitCode, &costUSD, &run.SessionID, &run.Output, &run.CommitHash, &run.PID); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}
	if exitCode.Valid {
		v := int(exitCode.Int64)
		run.ExitCode = &v
	}
	if costUSD.Valid {
		run.CostUSD = &costUSD.Float64
	}
	return &run, nil
}

func (r *Repository) ReadRun(ctx context.Context, shortID string) (*store.Run, error) {
	row := r.exec.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE short_id = ?", shortID)
	run, err := scanRun(row)
	if err != nil {
		return nil, tagErr(err)
	}
	return run, nil
}

func (r *Repository) UpdateRun(ctx context.Context, run *store.Run) error {
	res, err := r.exec.ExecContext(ctx, `
		UPDATE runs SET ended_at=?, exit_code=?, cost_usd=?, session_id=?, output=?, commit_hash=?, pid=?
		WHERE short_id=?;
	`, run.EndedAt, run.ExitCode, run.CostUSD, run.SessionID, run.Output, run.CommitHash, run.PID, run.ShortID)
	if err != nil {
		return tagErr(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *Repository) LatestRun(ctx context.Context, taskShortID string) (*store.Run, error) {
	row := r.exec.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE task_short_id = ? ORDER BY started_at DESC LIMIT 1", taskShortID)
	run, err := scanRun(row)
	if err != nil {
		return nil, tagErr(err)
	}
	return run, nil
}

func (r *Repository) ListRunsByTask(ctx context.Context, taskShortID string) ([]*store.Run, error) {
	rows, err := r.exec.QueryContext(ctx, "SELECT "+runColumns+" FROM runs WHERE task_short_id = ? ORDER BY started_at ASC", taskShortID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *Repository) ListRunsSince(ctx context.Context, since time.Time) ([]*store.Run, error) {
	rows, err := r.exec.QueryContext(ctx, "SELECT "+runColumns+" FROM runs WHERE started_at >= ? ORDER BY started_at ASC", since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// --- Reviews ---

func (r *Repository) CreateReview(ctx context.Context, rv *store.Review) error {
	_, err := r.exec.ExecContext(ctx, `
		INSERT INTO reviews (short_id, task_short_id, agent, status, issues, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?);
	`, rv.ShortID, rv.TaskShortID, rv.Agent, string(rv.Status), marshalStrings(rv.Issues), rv.StartedAt, rv.CompletedAt)
	return tagErr(err)
}

const reviewColumns = `short_id, task_short_id, agent, status, issues, started_at, completed_at`

func scanReview(row interface{ Scan(dest ...any) error }) (*store.Review, error) {
	var rv store.Review
	var status, issues string
	var completedAt sql.NullTime
	if err := row.Scan(&rv.ShortID, &rv.TaskShortID, &rv.Agent, &status, &issues, &rv.StartedAt, &completedAt); err != nil {
		return nil, err
	}
	rv.Status = store.ReviewStatus(status)
	rv.Issues = unmarshalStrings(issues)
	if completedAt.Valid {
		rv.CompletedAt = &completedAt.Time
	}
	return &rv, nil
}

func (r *Repository) UpdateReview(ctx context.Context, rv *store.Review) error {
	res, err := r.exec.ExecContext(ctx, `
		UPDATE reviews SET status=?, issues=?, completed_at=? WHERE short_id=?;
	`, string(rv.Status), marshalStrings(rv.Issues), rv.CompletedAt, rv.ShortID)
	if err != nil {
		return tagErr(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *Repository) LatestReview(ctx context.Context, taskShortID string) (*store.Review, error) {
	row := r.exec.QueryRowContext(ctx, "SELECT "+reviewColumns+" FROM reviews WHERE task_short_id = ? ORDER BY started_at DESC LIMIT 1", taskShortID)
	rv, err := scanReview(row)
	if err != nil {
		return nil, tagErr(err)
	}
	return rv, nil
}

// --- Backlog ---

func (r *Repository) CreateBacklogItem(ctx context.Context, b *store.BacklogItem) error {
	_, err := r.exec.ExecContext(ctx, "INSERT INTO backlog (title, description, created_at) VALUES (?, ?, ?)", b.Title, b.Description, b.CreatedAt)
	return tagErr(err)
}

func (r *Repository) ListBacklog(ctx context.Context) ([]*store.BacklogItem, error) {
	rows, err := r.exec.QueryContext(ctx, "SELECT title, description, created_at FROM backlog ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*store.BacklogItem
	for rows.Next() {
		var b store.BacklogItem
		if err := rows.Scan(&b.Title, &b.Description, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// --- Short ids ---

func (r *Repository) AllShortIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for _, q := range []string{
		"SELECT short_id FROM tasks", "SELECT short_id FROM epics",
		"SELECT short_id FROM runs", "SELECT short_id FROM reviews",
	} {
		rows, err := r.exec.QueryContext(ctx, q)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return nil, err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}
	return ids, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
