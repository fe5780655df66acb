package mirror

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644))
	run("add", ".")
	run("commit", "-q", "-m", "init")
}

func TestManager_CreateAndRemove(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	project := t.TempDir()
	initGitRepo(t, project)
	require.NoError(t, os.MkdirAll(filepath.Join(project, ".fuel"), 0o755))

	home := t.TempDir()
	m := NewManager(project, home)

	assertNotExists(t, m, "e-abc123")

	mir, err := m.Create("e-abc123")
	require.NoError(t, err)
	require.Equal(t, "epic/e-abc123", mir.Branch)
	require.NotEmpty(t, mir.BaseCommit)

	info, err := os.Lstat(filepath.Join(mir.Path, ".fuel"))
	require.NoError(t, err)
	require.True(t, info.Mode()&os.ModeSymlink != 0)

	_, err = m.Create("e-abc123")
	require.ErrorIs(t, err, ErrExists)

	require.NoError(t, m.Remove("e-abc123"))
	assertNotExists(t, m, "e-abc123")

	require.ErrorIs(t, m.Remove("e-abc123"), ErrNotFound)
}

func TestManager_Merge(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	project := t.TempDir()
	initGitRepo(t, project)
	require.NoError(t, os.MkdirAll(filepath.Join(project, ".fuel"), 0o755))

	home := t.TempDir()
	m := NewManager(project, home)

	mir, err := m.Create("e-merge1")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(mir.Path, "NEW.md"), []byte("change"), 0o644))
	run := func(dir string, args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run(mir.Path, "add", "NEW.md")
	run(mir.Path, "commit", "-q", "-m", "mirror change")

	require.NoError(t, m.Merge("e-merge1"))

	_, err = os.Stat(filepath.Join(project, "NEW.md"))
	require.NoError(t, err, "merged file should now exist in the original checkout")
}

func assertNotExists(t *testing.T, m *Manager, epicID string) {
	t.Helper()
	require.False(t, m.Exists(epicID))
}
