package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ashleyhindle/fuel-sub006/internal/store"
	"github.com/ashleyhindle/fuel-sub006/internal/store/errs"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// conn is satisfied by *pgxpool.Pool and pgx.Tx, mirroring the teacher's
// sqlc.DBTX indirection for postgres.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ store.Repository = (*Repository)(nil)

// Repository implements store.Repository against PostgreSQL via pgx.
type Repository struct {
	pool *pgxpool.Pool
	mu   *sync.Mutex
	c    conn
}

// New wraps pool in a Repository. pool is normally opened with Open.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, mu: &sync.Mutex{}, c: pool}
}

func (r *Repository) BeginTx(ctx context.Context, fn func(ctx context.Context, repo store.Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	cpy := &Repository{pool: r.pool, mu: r.mu, c: tx}
	if err := fn(ctx, cpy); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func tagErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return errs.ErrConflict
	}
	return err
}

// --- Tasks ---

func (r *Repository) CreateTask(ctx context.Context, t *store.Task) error {
	_, err := r.c.Exec(ctx, `
		INSERT INTO tasks (short_id, title, description, type, priority, size, complexity, labels, blocked_by, epic_id, agent, status, reason, commit_hash, selfguided_iteration, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17);
	`, t.ShortID, t.Title, t.Description, string(t.Type), t.Priority, string(t.Size), string(t.Complexity),
		setSlice(t.Labels), setSlice(t.BlockedBy), t.EpicID, t.Agent, string(t.Status), t.Reason, t.CommitHash,
		t.SelfguidedIteration, t.CreatedAt, t.UpdatedAt)
	return tagErr(err)
}

const taskColumns = `short_id, title, description, type, priority, size, complexity, labels, blocked_by, epic_id, agent, status, reason, commit_hash, selfguided_iteration, created_at, updated_at`

func scanTask(row pgx.Row) (*store.Task, error) {
	var t store.Task
	var typ, size, complexity, status string
	var labels, blockedBy []string
	if err := row.Scan(&t.ShortID, &t.Title, &t.Description, &typ, &t.Priority, &size, &complexity,
		&labels, &blockedBy, &t.EpicID, &t.Agent, &status, &t.Reason, &t.CommitHash,
		&t.SelfguidedIteration, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Type = store.TaskType(typ)
	t.Size = store.TaskSize(size)
	t.Complexity = store.TaskComplexity(complexity)
	t.Status = store.TaskStatus(status)
	t.Labels = toSet(labels)
	t.BlockedBy = toSet(blockedBy)
	return &t, nil
}

func (r *Repository) ReadTask(ctx context.Context, shortID string) (*store.Task, error) {
	t, err := scanTask(r.c.QueryRow(ctx, "SELECT "+taskColumns+" FROM tasks WHERE short_id = $1", shortID))
	if err != nil {
		return nil, tagErr(err)
	}
	return t, nil
}

func (r *Repository) ListTasks(ctx context.Context) ([]*store.Task, error) {
	rows, err := r.c.Query(ctx, "SELECT "+taskColumns+" FROM tasks ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateTask(ctx context.Context, t *store.Task) error {
	tag, err := r.c.Exec(ctx, `
		UPDATE tasks SET title=$1, description=$2, type=$3, priority=$4, size=$5, complexity=$6, labels=$7, blocked_by=$8,
			epic_id=$9, agent=$10, status=$11, reason=$12, commit_hash=$13, selfguided_iteration=$14, updated_at=$15
		WHERE short_id=$16;
	`, t.Title, t.Description, string(t.Type), t.Priority, string(t.Size), string(t.Complexity),
		setSlice(t.Labels), setSlice(t.BlockedBy), t.EpicID, t.Agent, string(t.Status), t.Reason, t.CommitHash,
		t.SelfguidedIteration, t.UpdatedAt, t.ShortID)
	if err != nil {
		return tagErr(err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteTask(ctx context.Context, shortID string) error {
	_, err := r.c.Exec(ctx, "DELETE FROM tasks WHERE short_id = $1", shortID)
	return tagErr(err)
}

func (r *Repository) TaskExists(ctx context.Context, shortID string) (bool, error) {
	var n int
	if err := r.c.QueryRow(ctx, "SELECT COUNT(1) FROM tasks WHERE short_id = $1", shortID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// --- Epics ---

func (r *Repository) CreateEpic(ctx context.Context, e *store.Epic) error {
	_, err := r.c.Exec(ctx, `
		INSERT INTO epics (short_id, title, description, status, self_guided, plan_filename, approved_by, approved_at, mirror_status, mirror_path, mirror_branch, base_commit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);
	`, e.ShortID, e.Title, e.Description, string(e.Status), e.SelfGuided, e.PlanFilename, e.ApprovedBy, e.ApprovedAt,
		string(e.MirrorStatus), e.MirrorPath, e.MirrorBranch, e.BaseCommit, e.CreatedAt, e.UpdatedAt)
	return tagErr(err)
}

const epicColumns = `short_id, title, description, status, self_guided, plan_filename, approved_by, approved_at, mirror_status, mirror_path, mirror_branch, base_commit, created_at, updated_at`

func scanEpic(row pgx.Row) (*store.Epic, error) {
	var e store.Epic
	var status, mirrorStatus string
	if err := row.Scan(&e.ShortID, &e.Title, &e.Description, &status, &e.SelfGuided, &e.PlanFilename, &e.ApprovedBy,
		&e.ApprovedAt, &mirrorStatus, &e.MirrorPath, &e.MirrorBranch, &e.BaseCommit, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Status = store.EpicStatus(status)
	e.MirrorStatus = store.MirrorStatus(mirrorStatus)
	return &e, nil
}

func (r *Repository) ReadEpic(ctx context.Context, shortID string) (*store.Epic, error) {
	e, err := scanEpic(r.c.QueryRow(ctx, "SELECT "+epicColumns+" FROM epics WHERE short_id = $1", shortID))
	if err != nil {
		return nil, tagErr(err)
	}
	return e, nil
}

func (r *Repository) ListEpics(ctx context.Context) ([]*store.Epic, error) {
	rows, err := r.c.Query(ctx, "SELECT "+epicColumns+" FROM epics ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
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
	tag, err := r.c.Exec(ctx, `
		UPDATE epics SET title=$1, description=$2, status=$3, self_guided=$4, plan_filename=$5, approved_by=$6, approved_at=$7,
			mirror_status=$8, mirror_path=$9, mirror_branch=$10, base_commit=$11, updated_at=$12
		WHERE short_id=$13;
	`, e.Title, e.Description, string(e.Status), e.SelfGuided, e.PlanFilename, e.ApprovedBy, e.ApprovedAt,
		string(e.MirrorStatus), e.MirrorPath, e.MirrorBranch, e.BaseCommit, e.UpdatedAt, e.ShortID)
	if err != nil {
		return tagErr(err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// --- Runs ---

func (r *Repository) CreateRun(ctx context.Context, run *store.Run) error {
	_, err := r.c.Exec(ctx, `
		INSERT INTO runs (short_id, run_number, task_short_id, agent, model, started_at, ended_at, exit_code, cost_usd, session_id, output, commit_hash, pid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
	`, run.ShortID, run.RunNumber, run.TaskShortID, run.Agent, run.Model, run.StartedAt, run.EndedAt, run.ExitCode,
		run.CostUSD, run.SessionID, run.Output, run.CommitHash, run.PID)
	return tagErr(err)
}

const runColumns = `short_id, run_number, task_short_id, agent, model, started_at, ended_at, exit_code, cost_usd, session_id, output, commit_hash, pid`

func scanRun(row pgx.Row) (*store.Run, error) {
	var run store.Run
	if err := row.Scan(&run.ShortID, &run.RunNumber, &run.TaskShortID, &run.Agent, &run.Model, &run.StartedAt,
		&run.EndedAt, &run.ExitCode, &run.CostUSD, &run.SessionID, &run.Output, &run.CommitHash, &run.PID); err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *Repository) ReadRun(ctx context.Context, shortID string) (*store.Run, error) {
	run, err := scanRun(r.c.QueryRow(ctx, "SELECT "+runColumns+" FROM runs WHERE short_id = $1", shortID))
	if err != nil {
		return nil, tagErr(err)
	}
	return run, nil
}

func (r *Repository) UpdateRun(ctx context.Context, run *store.Run) error {
	tag, err := r.c.Exec(ctx, `
		UPDATE runs SET ended_at=$1, exit_code=$2, cost_usd=$3, session_id=$4, output=$5, commit_hash=$6, pid=$7
		WHERE short_id=$8;
	`, run.EndedAt, run.ExitCode, run.CostUSD, run.SessionID, run.Output, run.CommitHash, run.PID, run.ShortID)
	if err != nil {
		return tagErr(err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *Repository) LatestRun(ctx context.Context, taskShortID string) (*store.Run, error) {
	run, err := scanRun(r.c.QueryRow(ctx, "SELECT "+runColumns+" FROM runs WHERE task_short_id = $1 ORDER BY started_at DESC LIMIT 1", taskShortID))
	if err != nil {
		return nil, tagErr(err)
	}
	return run, nil
}

func (r *Repository) ListRunsByTask(ctx context.Context, taskShortID string) ([]*store.Run, error) {
	rows, err := r.c.Query(ctx, "SELECT "+runColumns+" FROM runs WHERE task_short_id = $1 ORDER BY started_at ASC", taskShortID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
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
	rows, err := r.c.Query(ctx, "SELECT "+runColumns+" FROM runs WHERE started_at >= $1 ORDER BY started_at ASC", since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
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
	_, err := r.c.Exec(ctx, `
		INSERT INTO reviews (short_id, task_short_id, agent, status, issues, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`, rv.ShortID, rv.TaskShortID, rv.Agent, string(rv.Status), rv.Issues, rv.StartedAt, rv.CompletedAt)
	return tagErr(err)
}

const reviewColumns = `short_id, task_short_id, agent, status, issues, started_at, completed_at`

func scanReview(row pgx.Row) (*store.Review, error) {
	var rv store.Review
	var status string
	if err := row.Scan(&rv.ShortID, &rv.TaskShortID, &rv.Agent, &status, &rv.Issues, &rv.StartedAt, &rv.CompletedAt); err != nil {
		return nil, err
	}
	rv.Status = store.ReviewStatus(status)
	return &rv, nil
}

func (r *Repository) UpdateReview(ctx context.Context, rv *store.Review) error {
	tag, err := r.c.Exec(ctx, `
		UPDATE reviews SET status=$1, issues=$2, completed_at=$3 WHERE short_id=$4;
	`, string(rv.Status), rv.Issues, rv.CompletedAt, rv.ShortID)
	if err != nil {
		return tagErr(err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *Repository) LatestReview(ctx context.Context, taskShortID string) (*store.Review, error) {
	rv, err := scanReview(r.c.QueryRow(ctx, "SELECT "+reviewColumns+" FROM reviews WHERE task_short_id = $1 ORDER BY started_at DESC LIMIT 1", taskShortID))
	if err != nil {
		return nil, tagErr(err)
	}
	return rv, nil
}

// --- Backlog ---

func (r *Repository) CreateBacklogItem(ctx context.Context, b *store.BacklogItem) error {
	_, err := r.c.Exec(ctx, "INSERT INTO backlog (title, description, created_at) VALUES ($1, $2, $3)", b.Title, b.Description, b.CreatedAt)
	return tagErr(err)
}

func (r *Repository) ListBacklog(ctx context.Context) ([]*store.BacklogItem, error) {
	rows, err := r.c.Query(ctx, "SELECT title, description, created_at FROM backlog ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
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
		rows, err := r.c.Query(ctx, q)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return ids, nil
}

func setSlice(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func toSet(list []string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, v := range list {
		out[v] = struct{}{}
	}
	return out
}
