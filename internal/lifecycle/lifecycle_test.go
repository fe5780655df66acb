package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashleyhindle/fuel-sub006/internal/store"
	"github.com/ashleyhindle/fuel-sub006/internal/store/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.New(sqlite.New(db))
}

type fakeAlive struct{ alive bool }

func (f fakeAlive) IsAlive(runID string, fallbackPID int) bool { return f.alive }

func TestAcquireLock_NoExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consume-runner.pid")
	assert.NoError(t, AcquireLock(path))
}

func TestAcquireLock_StalePIDIsReclaimed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consume-runner.pid")
	require.NoError(t, WritePIDFile(path, 9999))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data = []byte(`{"pid":999999,"port":1,"started_at":"2020-01-01T00:00:00Z"}`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	assert.NoError(t, AcquireLock(path))
}

func TestAcquireLock_LivePIDRefuses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consume-runner.pid")
	require.NoError(t, WritePIDFile(path, 9999))

	err := AcquireLock(path)
	require.Error(t, err)
	var already *ErrAlreadyRunning
	require.ErrorAs(t, err, &already)
	assert.Equal(t, os.Getpid(), already.PID)
}

func TestRecoverySweep_ReturnsDeadInProgressTaskToOpen(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task, err := s.CreateTask(ctx, store.CreateTaskInput{Title: "T1"})
	require.NoError(t, err)

	run, err := s.CreateRun(ctx, task.ShortID, "claude")
	require.NoError(t, err)
	run.PID = 99999
	require.NoError(t, s.Repo().UpdateRun(ctx, run))

	inProgress := store.StatusInProgress
	_, err = s.UpdateTask(ctx, task.ShortID, store.UpdateTaskInput{Status: &inProgress})
	require.NoError(t, err)

	n, err := RecoverySweep(ctx, s, fakeAlive{alive: false}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reloaded, err := s.ReadTask(ctx, task.ShortID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusOpen, reloaded.Status)
	assert.Equal(t, "daemon-restart", reloaded.Reason)

	latest, err := s.Repo().LatestRun(ctx, task.ShortID)
	require.NoError(t, err)
	require.NotNil(t, latest.ExitCode)
	assert.Equal(t, -1, *latest.ExitCode)
	assert.NotNil(t, latest.EndedAt)
}

func TestRecoverySweep_LeavesAliveTaskAlone(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task, err := s.CreateTask(ctx, store.CreateTaskInput{Title: "T1"})
	require.NoError(t, err)
	_, err = s.CreateRun(ctx, task.ShortID, "claude")
	require.NoError(t, err)

	inProgress := store.StatusInProgress
	_, err = s.UpdateTask(ctx, task.ShortID, store.UpdateTaskInput{Status: &inProgress})
	require.NoError(t, err)

	n, err := RecoverySweep(ctx, s, fakeAlive{alive: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	reloaded, err := s.ReadTask(ctx, task.ShortID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusInProgress, reloaded.Status)
}

func TestWritePIDFile_WriteThenRename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consume-runner.pid")
	require.NoError(t, WritePIDFile(path, 4242))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, info.ModTime().After(time.Now()))
}
