package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashleyhindle/fuel-sub006/internal/store"
	"github.com/ashleyhindle/fuel-sub006/internal/store/errs"
	"github.com/ashleyhindle/fuel-sub006/internal/store/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.New(sqlite.New(db))
}

// Boundary scenario 7 (§8): ambiguous partial id.
func TestResolve_AmbiguousPartialID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateTask(ctx, store.CreateTaskInput{Title: "T1"})
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, store.CreateTaskInput{Title: "T2"})
	require.NoError(t, err)

	// Force a shared prefix by resolving on the common "f-" prefix itself,
	// which both ids always share.
	_, err = s.Resolve(ctx, "f-")
	var amb *errs.Ambiguous
	require.ErrorAs(t, err, &amb)
	assert.Len(t, amb.Candidates, 2)
}

func TestResolve_UniquePrefixResolves(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task, err := s.CreateTask(ctx, store.CreateTaskInput{Title: "T1"})
	require.NoError(t, err)

	full, err := s.Resolve(ctx, task.ShortID[:4])
	require.NoError(t, err)
	assert.Equal(t, task.ShortID, full)
}

func TestResolve_UnknownPrefixNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Resolve(ctx, "zzzzzz")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

// Boundary scenario 8 (§8): cycle rejection on dep:add.
func TestAddDependency_RejectsCycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t1, err := s.CreateTask(ctx, store.CreateTaskInput{Title: "T1"})
	require.NoError(t, err)
	t2, err := s.CreateTask(ctx, store.CreateTaskInput{Title: "T2", BlockedBy: []string{t1.ShortID}})
	require.NoError(t, err)

	err = s.AddDependency(ctx, t1.ShortID, t2.ShortID)
	assert.ErrorIs(t, err, errs.ErrCycleDetected)

	reloaded, err := s.ReadTask(ctx, t1.ShortID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.BlockedBy, "store must be unchanged after a rejected cycle")
}

func TestCreateTask_RejectsUnknownBlocker(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t1, err := s.CreateTask(ctx, store.CreateTaskInput{Title: "T1"})
	require.NoError(t, err)

	_, err = s.CreateTask(ctx, store.CreateTaskInput{Title: "T2", BlockedBy: []string{t1.ShortID}})
	require.NoError(t, err)

	_, err = s.CreateTask(ctx, store.CreateTaskInput{Title: "T3", BlockedBy: []string{"does-not-exist"}})
	assert.ErrorIs(t, err, errs.ErrInvalidField)
}

// "done on an already-done task fails with InvalidTransition — not
// idempotent by design" (§8).
func TestDone_OnAlreadyDoneTaskFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task, err := s.CreateTask(ctx, store.CreateTaskInput{Title: "T1"})
	require.NoError(t, err)

	inProgress := store.StatusInProgress
	_, err = s.UpdateTask(ctx, task.ShortID, store.UpdateTaskInput{Status: &inProgress})
	require.NoError(t, err)

	_, err = s.Done(ctx, task.ShortID, "finished", "abc123")
	require.NoError(t, err)

	_, err = s.Done(ctx, task.ShortID, "again", "def456")
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestCreateTask_InvalidEnumRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateTask(ctx, store.CreateTaskInput{Title: "T1", Type: "not-a-type"})
	assert.ErrorIs(t, err, errs.ErrInvalidField)

	priority := 9
	_, err = s.CreateTask(ctx, store.CreateTaskInput{Title: "T1", Priority: &priority})
	assert.ErrorIs(t, err, errs.ErrInvalidField)
}

func TestCreateTask_LinkingToEpicActivatesIt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e, err := s.CreateEpic(ctx, "Epic 1", "")
	require.NoError(t, err)
	assert.Equal(t, store.EpicPlanning, e.Status)

	_, err = s.CreateTask(ctx, store.CreateTaskInput{Title: "T1", EpicID: e.ShortID})
	require.NoError(t, err)

	reloaded, err := s.Repo().ReadEpic(ctx, e.ShortID)
	require.NoError(t, err)
	assert.Equal(t, store.EpicActive, reloaded.Status)
}

func TestAddDependency_CycleLeavesTaskCountUnchanged(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t1, err := s.CreateTask(ctx, store.CreateTaskInput{Title: "T1"})
	require.NoError(t, err)
	t2, err := s.CreateTask(ctx, store.CreateTaskInput{Title: "T2", BlockedBy: []string{t1.ShortID}})
	require.NoError(t, err)

	before, err := s.ListTasks(ctx)
	require.NoError(t, err)

	err = s.AddDependency(ctx, t1.ShortID, t2.ShortID)
	require.True(t, errors.Is(err, errs.ErrCycleDetected))

	after, err := s.ListTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}
