// Package store holds the data model (Task, Epic, Run, Review) and the
// Store business-logic layer built on top of a Repository backend. Store
// owns the invariants a bare CRUD layer cannot: short-id resolution,
// dependency-cycle prevention, and status-transition enforcement, the
// same split the teacher draws between task.Repository and task.Store.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ashleyhindle/fuel-sub006/internal/store/errs"
)

// allowedTransitions encodes the task state machine of §4.E. Every edge
// must be listed explicitly; a status is not allowed to transition to
// itself unless that edge is present, per §8's "done on an already-done
// task fails with InvalidTransition — not idempotent by design".
var allowedTransitions = map[TaskStatus]map[TaskStatus]bool{
	StatusOpen:       {StatusInProgress: true, StatusPaused: true, StatusSomeday: true},
	StatusInProgress: {StatusReview: true, StatusDone: true, StatusOpen: true, StatusPaused: true},
	StatusReview:     {StatusDone: true, StatusOpen: true},
	StatusPaused:     {StatusOpen: true, StatusSomeday: true},
	StatusSomeday:    {StatusOpen: true},
	StatusDone:       {},
}

// CanTransition reports whether from -> to is a legal task status change.
func CanTransition(from, to TaskStatus) bool {
	return allowedTransitions[from][to]
}

// Store is the business-logic layer consumed by the scheduler, the IPC
// server, and the CLI. It is safe for concurrent use; serialization of
// racy operations (claiming a task, resolving a short id while another
// writer creates one with the same prefix) is delegated to the
// Repository's BeginTx.
type Store struct {
	repo Repository
}

// New wraps repo in a Store.
func New(repo Repository) *Store {
	return &Store{repo: repo}
}

// Resolve expands a partial short id (>=2 chars, per §4) to exactly one
// full short id, or returns errs.ErrNotFound / an *errs.Ambiguous.
func (s *Store) Resolve(ctx context.Context, partial string) (string, error) {
	if len(partial) < 2 {
		return "", fmt.Errorf("%w: id prefix must be at least 2 characters", errs.ErrInvalidField)
	}
	all, err := s.repo.AllShortIDs(ctx)
	if err != nil {
		return "", err
	}
	if exact := contains(all, partial); exact {
		return partial, nil
	}
	var matches []string
	for _, id := range all {
		if strings.HasPrefix(id, partial) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", errs.ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return "", &errs.Ambiguous{Candidates: matches}
	}
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

// CreateTaskInput is the set of fields a caller supplies; unset fields
// take the defaults from NewTask.
type CreateTaskInput struct {
	Title       string
	Description string
	Type        TaskType
	Priority    *int
	Size        TaskSize
	Complexity  TaskComplexity
	Labels      []string
	BlockedBy   []string // short ids, already resolved to full form
	EpicID      string
	Agent       string
}

// CreateTask validates in.Type/Size/Complexity against their enums,
// verifies every BlockedBy id exists, rejects any edge that would close
// a dependency cycle, and persists the new Task.
func (s *Store) CreateTask(ctx context.Context, in CreateTaskInput) (*Task, error) {
	if in.Type != "" && !validTaskTypes[in.Type] {
		return nil, fmt.Errorf("%w: type %q", errs.ErrInvalidField, in.Type)
	}
	if in.Size != "" && !validSizes[in.Size] {
		return nil, fmt.Errorf("%w: size %q", errs.ErrInvalidField, in.Size)
	}
	if in.Complexity != "" && !validComplexities[in.Complexity] {
		return nil, fmt.Errorf("%w: complexity %q", errs.ErrInvalidField, in.Complexity)
	}
	if in.Priority != nil && (*in.Priority < 0 || *in.Priority > 4) {
		return nil, fmt.Errorf("%w: priority %d out of range 0..4", errs.ErrInvalidField, *in.Priority)
	}

	typ := in.Type
	if typ == "" {
		typ = TaskTask
	}
	t := NewTask(in.Title, in.Description, typ)
	if in.Priority != nil {
		t.Priority = *in.Priority
	}
	if in.Size != "" {
		t.Size = in.Size
	}
	if in.Complexity != "" {
		t.Complexity = in.Complexity
	}
	for _, l := range in.Labels {
		t.Labels[l] = struct{}{}
	}
	t.EpicID = in.EpicID
	t.Agent = in.Agent

	err := s.repo.BeginTx(ctx, func(ctx context.Context, repo Repository) error {
		all, err := repo.ListTasks(ctx)
		if err != nil {
			return err
		}
		byID := make(map[string]*Task, len(all))
		for _, existing := range all {
			byID[existing.ShortID] = existing
		}

		blockedBy := make(map[string]struct{}, len(in.BlockedBy))
		for _, dep := range in.BlockedBy {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("%w: blocked_by %q does not exist", errs.ErrInvalidField, dep)
			}
			blockedBy[dep] = struct{}{}
		}
		t.BlockedBy = blockedBy

		byID[t.ShortID] = t
		if wouldCycle(byID, t.ShortID, blockedBy) {
			return errs.ErrCycleDetected
		}
		if err := repo.CreateTask(ctx, t); err != nil {
			return err
		}
		if t.EpicID != "" {
			if err := activateEpic(ctx, repo, t.EpicID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// activateEpic transitions an epic from planning to active the first time
// it gains a task, per §4.F's "epic gains its first dispatchable task"
// trigger for mirror creation: the epic must already be active by the time
// the scheduler considers creating a mirror or rolling up completion.
// It is a no-op for an epic that has already left planning.
func activateEpic(ctx context.Context, repo Repository, epicID string) error {
	e, err := repo.ReadEpic(ctx, epicID)
	if err != nil {
		return err
	}
	if e.Status != EpicPlanning {
		return nil
	}
	e.Status = EpicActive
	e.UpdatedAt = time.Now()
	return repo.UpdateEpic(ctx, e)
}

// AddDependency adds blockerID to taskID's blocked_by set, rejecting the
// edge if it would create a cycle (§8: dependency cycle prevention).
func (s *Store) AddDependency(ctx context.Context, taskID, blockerID string) error {
	return s.repo.BeginTx(ctx, func(ctx context.Context, repo Repository) error {
		all, err := repo.ListTasks(ctx)
		if err != nil {
			return err
		}
		byID := make(map[string]*Task, len(all))
		for _, t := range all {
			byID[t.ShortID] = t
		}
		task, ok := byID[taskID]
		if !ok {
			return errs.ErrNotFound
		}
		if _, ok := byID[blockerID]; !ok {
			return fmt.Errorf("%w: blocked_by %q does not exist", errs.ErrInvalidField, blockerID)
		}
		if InTransitiveBlockedBy(byID, blockerID, taskID) || taskID == blockerID {
			return errs.ErrCycleDetected
		}
		task.BlockedBy[blockerID] = struct{}{}
		task.UpdatedAt = time.Now()
		return repo.UpdateTask(ctx, task)
	})
}

// RemoveDependency drops blockerID from taskID's blocked_by set. Removing
// an edge can never introduce a cycle, so unlike AddDependency this skips
// the cycle check and only does the read-modify-write inside BeginTx.
func (s *Store) RemoveDependency(ctx context.Context, taskID, blockerID string) error {
	return s.repo.BeginTx(ctx, func(ctx context.Context, repo Repository) error {
		task, err := repo.ReadTask(ctx, taskID)
		if err != nil {
			return err
		}
		delete(task.BlockedBy, blockerID)
		task.UpdatedAt = time.Now()
		return repo.UpdateTask(ctx, task)
	})
}

// UpdateTaskInput carries the fields a caller may change on an existing
// task. A nil pointer/empty string means "leave unchanged", except
// Status which is validated against the task state machine when set.
type UpdateTaskInput struct {
	Title       *string
	Description *string
	Priority    *int
	Size        *TaskSize
	Complexity  *TaskComplexity
	Status      *TaskStatus
	Agent       *string
	Reason      *string
	CommitHash  *string
	AddLabels   []string
	RemoveLabels []string
}

// UpdateTask applies in to the task identified by id, enforcing the
// status state machine (errs.ErrInvalidTransition) and field enums
// (errs.ErrInvalidField).
func (s *Store) UpdateTask(ctx context.Context, id string, in UpdateTaskInput) (*Task, error) {
	var out *Task
	err := s.repo.BeginTx(ctx, func(ctx context.Context, repo Repository) error {
		t, err := repo.ReadTask(ctx, id)
		if err != nil {
			return err
		}
		if in.Status != nil {
			if !CanTransition(t.Status, *in.Status) {
				return fmt.Errorf("%w: %s -> %s", errs.ErrInvalidTransition, t.Status, *in.Status)
			}
			t.Status = *in.Status
		}
		if in.Title != nil {
			t.Title = *in.Title
		}
		if in.Description != nil {
			t.Description = *in.Description
		}
		if in.Priority != nil {
			if *in.Priority < 0 || *in.Priority > 4 {
				return fmt.Errorf("%w: priority %d out of range 0..4", errs.ErrInvalidField, *in.Priority)
			}
			t.Priority = *in.Priority
		}
		if in.Size != nil {
			if !validSizes[*in.Size] {
				return fmt.Errorf("%w: size %q", errs.ErrInvalidField, *in.Size)
			}
			t.Size = *in.Size
		}
		if in.Complexity != nil {
			if !validComplexities[*in.Complexity] {
				return fmt.Errorf("%w: complexity %q", errs.ErrInvalidField, *in.Complexity)
			}
			t.Complexity = *in.Complexity
		}
		if in.Agent != nil {
			t.Agent = *in.Agent
		}
		if in.Reason != nil {
			t.Reason = *in.Reason
		}
		if in.CommitHash != nil {
			t.CommitHash = *in.CommitHash
		}
		for _, l := range in.AddLabels {
			t.Labels[l] = struct{}{}
		}
		for _, l := range in.RemoveLabels {
			delete(t.Labels, l)
		}
		t.UpdatedAt = time.Now()
		if err := repo.UpdateTask(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Done marks a task done, recording the reason and commit hash a
// completed run produced. It goes through UpdateTask, so only the state
// machine's edges into StatusDone (from in_progress or review) succeed.
func (s *Store) Done(ctx context.Context, id, reason, commitHash string) (*Task, error) {
	status := StatusDone
	return s.UpdateTask(ctx, id, UpdateTaskInput{
		Status:     &status,
		Reason:     &reason,
		CommitHash: &commitHash,
	})
}

// CreateRun persists a new Run row, numbering it one past the task's
// highest existing run number.
func (s *Store) CreateRun(ctx context.Context, taskID, agent string) (*Run, error) {
	var run *Run
	err := s.repo.BeginTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.ListRunsByTask(ctx, taskID)
		if err != nil {
			return err
		}
		n := 1
		for _, r := range existing {
			if r.RunNumber >= n {
				n = r.RunNumber + 1
			}
		}
		run = NewRun(taskID, agent, n)
		return repo.CreateRun(ctx, run)
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// UpdateLatestRun applies mutate to the task's most recent run and
// persists it. The caller is expected to only ever have one run in
// flight per task, per the concurrency-cap testable property.
func (s *Store) UpdateLatestRun(ctx context.Context, taskID string, mutate func(*Run)) (*Run, error) {
	var out *Run
	err := s.repo.BeginTx(ctx, func(ctx context.Context, repo Repository) error {
		run, err := repo.LatestRun(ctx, taskID)
		if err != nil {
			return err
		}
		mutate(run)
		if err := repo.UpdateRun(ctx, run); err != nil {
			return err
		}
		out = run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IncrementSelfguidedIteration bumps a self-guided task's dispatch
// counter, per §4.D's "each dispatch increments selfguided_iteration"
// and the hard ceiling that stops runaway re-dispatch.
func (s *Store) IncrementSelfguidedIteration(ctx context.Context, id string) (*Task, error) {
	var out *Task
	err := s.repo.BeginTx(ctx, func(ctx context.Context, repo Repository) error {
		t, err := repo.ReadTask(ctx, id)
		if err != nil {
			return err
		}
		t.SelfguidedIteration++
		t.UpdatedAt = time.Now()
		if err := repo.UpdateTask(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListTasks returns every task, unfiltered.
func (s *Store) ListTasks(ctx context.Context) ([]*Task, error) {
	return s.repo.ListTasks(ctx)
}

// ReadTask resolves and returns a single task by full short id.
func (s *Store) ReadTask(ctx context.Context, id string) (*Task, error) {
	return s.repo.ReadTask(ctx, id)
}

// ListEpics returns every epic, unfiltered.
func (s *Store) ListEpics(ctx context.Context) ([]*Epic, error) {
	return s.repo.ListEpics(ctx)
}

// CreateEpic validates and persists a new Epic.
func (s *Store) CreateEpic(ctx context.Context, title, description string) (*Epic, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: title must not be blank", errs.ErrInvalidField)
	}
	e := NewEpic(title, description)
	if err := s.repo.CreateEpic(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Repo exposes the underlying Repository for components (the scheduler,
// the epic controller, the health tracker) that need lower-level access
// Store doesn't wrap.
func (s *Store) Repo() Repository {
	return s.repo
}
