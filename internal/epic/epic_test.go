package epic

import (
	"context"
	"testing"

	"github.com/ashleyhindle/fuel-sub006/internal/store"
	"github.com/ashleyhindle/fuel-sub006/internal/store/sqlite"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepathTemp(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.New(sqlite.New(db))
}

func filepathTemp(t *testing.T) string {
	t.Helper()
	return t.TempDir() + "/agent.db"
}

func TestCheckCompletion_AllDoneCreatesReviewTask(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := New(s, nil, false, nil)

	e, err := s.CreateEpic(ctx, "Epic 1", "")
	require.NoError(t, err)

	t1, err := s.CreateTask(ctx, store.CreateTaskInput{Title: "T1", EpicID: e.ShortID})
	require.NoError(t, err)

	e.Status = store.EpicActive
	require.NoError(t, s.Repo().UpdateEpic(ctx, e))

	done, err := c.CheckCompletion(ctx, e.ShortID)
	require.NoError(t, err)
	require.False(t, done, "epic has an un-done task")

	inProgress := store.StatusInProgress
	_, err = s.UpdateTask(ctx, t1.ShortID, store.UpdateTaskInput{Status: &inProgress})
	require.NoError(t, err)

	status := store.StatusDone
	reason := "done"
	_, err = s.UpdateTask(ctx, t1.ShortID, store.UpdateTaskInput{Status: &status, Reason: &reason})
	require.NoError(t, err)

	done, err = c.CheckCompletion(ctx, e.ShortID)
	require.NoError(t, err)
	require.True(t, done)

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	var reviewTasks int
	for _, t := range tasks {
		if t.Agent == ReviewAgent {
			reviewTasks++
		}
	}
	require.Equal(t, 1, reviewTasks)

	updated, err := s.Repo().ReadEpic(ctx, e.ShortID)
	require.NoError(t, err)
	require.Equal(t, store.EpicReview, updated.Status)
}

func TestReject_ReopensAllTasks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := New(s, nil, false, nil)

	e, err := s.CreateEpic(ctx, "Epic 1", "")
	require.NoError(t, err)
	e.Status = store.EpicReview
	require.NoError(t, s.Repo().UpdateEpic(ctx, e))

	t1, err := s.CreateTask(ctx, store.CreateTaskInput{Title: "T1", EpicID: e.ShortID})
	require.NoError(t, err)
	inProgress := store.StatusInProgress
	_, err = s.UpdateTask(ctx, t1.ShortID, store.UpdateTaskInput{Status: &inProgress})
	require.NoError(t, err)

	require.NoError(t, c.Reject(ctx, e.ShortID))

	reopened, err := s.ReadTask(ctx, t1.ShortID)
	require.NoError(t, err)
	require.Equal(t, store.StatusOpen, reopened.Status)

	updatedEpic, err := s.Repo().ReadEpic(ctx, e.ShortID)
	require.NoError(t, err)
	require.Equal(t, store.EpicRejected, updatedEpic.Status)
}
