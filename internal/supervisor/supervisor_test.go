package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForCompletion(t *testing.T, s *Supervisor, runID string, timeout time.Duration) Completion {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, c := range s.Poll() {
			if c.RunID == runID {
				return c
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for completion of run %s", runID)
	return Completion{}
}

func TestSpawn_NormalExit_WritesLogsAndCompletion(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	pid, err := s.Spawn(context.Background(), "run-1", []string{"sh", "-c", "echo hello; exit 0"}, nil, dir, 0)
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	c := waitForCompletion(t, s, "run-1", 2*time.Second)
	assert.Equal(t, NormalExit, c.Outcome)
	assert.Equal(t, 0, c.ExitCode)
	assert.Contains(t, c.Output, "hello")

	b, err := os.ReadFile(filepath.Join(dir, "run-1", "stdout.log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "hello")
}

func TestSpawn_NonZeroExit(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	_, err := s.Spawn(context.Background(), "run-2", []string{"sh", "-c", "exit 7"}, nil, dir, 0)
	require.NoError(t, err)

	c := waitForCompletion(t, s, "run-2", 2*time.Second)
	assert.Equal(t, NormalExit, c.Outcome)
	assert.Equal(t, 7, c.ExitCode)
}

func TestSpawn_EmptyArgv(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	_, err := s.Spawn(context.Background(), "run-3", nil, nil, dir, 0)
	assert.Error(t, err)
}

func TestPoll_IsIdempotentPerRun(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	_, err := s.Spawn(context.Background(), "run-4", []string{"sh", "-c", "exit 0"}, nil, dir, 0)
	require.NoError(t, err)

	waitForCompletion(t, s, "run-4", 2*time.Second)

	// A second poll must not return run-4 again.
	for _, c := range s.Poll() {
		assert.NotEqual(t, "run-4", c.RunID)
	}
}

func TestSpawn_Timeout_KillsChild(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	start := time.Now()
	_, err := s.Spawn(context.Background(), "run-5", []string{"sleep", "30"}, nil, dir, 150*time.Millisecond)
	require.NoError(t, err)

	c := waitForCompletion(t, s, "run-5", 3*time.Second)
	assert.Equal(t, Killed, c.Outcome)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestIsAlive(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	pid, err := s.Spawn(context.Background(), "run-6", []string{"sleep", "1"}, nil, dir, 0)
	require.NoError(t, err)

	assert.True(t, s.IsAlive("run-6", pid))
	waitForCompletion(t, s, "run-6", 2*time.Second)
	assert.False(t, s.IsAlive("run-6", pid))
}

func TestKill_TerminatesProcessGroup(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	_, err := s.Spawn(context.Background(), "run-7", []string{"sleep", "30"}, nil, dir, 0)
	require.NoError(t, err)

	require.NoError(t, s.Kill("run-7", syscall.SIGTERM))
	c := waitForCompletion(t, s, "run-7", 2*time.Second)
	assert.Equal(t, Killed, c.Outcome)
}

func TestShutdown_SigtermsLiveChildAndWaits(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	// A child that exits cleanly once it receives SIGTERM.
	_, err := s.Spawn(context.Background(), "run-8", []string{"sh", "-c", "trap 'exit 0' TERM; while true; do sleep 1; done"}, nil, dir, 0)
	require.NoError(t, err)

	start := time.Now()
	s.Shutdown(2 * time.Second)
	assert.Less(t, time.Since(start), 2*time.Second, "shutdown should return as soon as the child exits, not wait out the full grace period")
	assert.Equal(t, 0, s.RunningCount())
}

func TestShutdown_SigkillsSurvivorsAfterGrace(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	// A child that ignores SIGTERM entirely; Shutdown must SIGKILL it once
	// the grace period expires. SIG_IGN survives exec, so the replaced
	// sleep process keeps ignoring TERM too.
	_, err := s.Spawn(context.Background(), "run-9", []string{"sh", "-c", "trap '' TERM; exec sleep 30"}, nil, dir, 0)
	require.NoError(t, err)

	s.Shutdown(100 * time.Millisecond)
	waitForCompletion(t, s, "run-9", 2*time.Second)
	assert.Equal(t, 0, s.RunningCount())
}
