// Package mirror manages epic working-copy mirrors: copy-on-write clones
// of the project directory, each with its own git branch, that keep an
// epic's task runs isolated from the main checkout until merge (§4.F).
//
// Grounded on pengelbrecht-ticker's internal/worktree.Manager
// (git-plumbing shape: branch-per-unit-of-work; here a mirror's existence
// is checked on the filesystem rather than through git) but adapted from
// a worktree sharing the
// host repo's object store to a full filesystem clone with a symlinked
// .fuel, since a mirror must keep running after the original checkout's
// .git is touched by unrelated work and must share only Fuel's own
// project state, not git history.
package mirror

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrExists is returned by Create when a mirror already exists for the epic.
var ErrExists = errors.New("mirror: already exists")

// ErrNotFound is returned when no mirror exists for the epic.
var ErrNotFound = errors.New("mirror: not found")

// BranchPrefix names every mirror's git branch, per §4.F.
const BranchPrefix = "epic/"

// Mirror describes one epic's isolated working copy.
type Mirror struct {
	EpicID     string
	Path       string
	Branch     string
	BaseCommit string
}

// Manager creates and tears down mirrors for one project, rooted at
// $HOME/.fuel/mirrors/<project-slug>/, per §6's mirror layout.
type Manager struct {
	projectRoot string
	fuelDir     string // <projectRoot>/.fuel
	base        string // <home>/.fuel/mirrors/<slug>
}

// NewManager builds a Manager for projectRoot, deriving the mirror base
// directory from home and a filesystem-safe slug of the project path.
func NewManager(projectRoot, home string) *Manager {
	return &Manager{
		projectRoot: projectRoot,
		fuelDir:     filepath.Join(projectRoot, ".fuel"),
		base:        filepath.Join(home, ".fuel", "mirrors", slugify(projectRoot)),
	}
}

var slugPattern = regexp.MustCompile(`[^a-zA-Z0-9-]+`)

func slugify(path string) string {
	trimmed := strings.Trim(path, string(filepath.Separator))
	return strings.Trim(slugPattern.ReplaceAllString(trimmed, "-"), "-")
}

// Path returns the on-disk location a mirror for epicID would occupy.
func (m *Manager) Path(epicID string) string {
	return filepath.Join(m.base, epicID)
}

// Branch returns the git branch name a mirror for epicID uses.
func (m *Manager) Branch(epicID string) string {
	return BranchPrefix + epicID
}

// Exists reports whether a mirror directory already exists for epicID.
func (m *Manager) Exists(epicID string) bool {
	_, err := os.Stat(m.Path(epicID))
	return err == nil
}

// Create clones the project directory into the mirror path, replaces the
// clone's .fuel with a symlink back to the original so daemon/task state
// stays shared, and creates a dedicated git branch from HEAD, per §4.F.
func (m *Manager) Create(epicID string) (*Mirror, error) {
	path := m.Path(epicID)
	if m.Exists(epicID) {
		return nil, ErrExists
	}
	if err := os.MkdirAll(m.base, 0o755); err != nil {
		return nil, fmt.Errorf("mirror: create base dir: %w", err)
	}

	// Copy-on-write clone: --reflink=auto uses COW on filesystems that
	// support it (btrfs, xfs with reflink, APFS) and falls back to a
	// plain copy otherwise.
	cp := exec.Command("cp", "--reflink=auto", "-a", m.projectRoot, path)
	if out, err := cp.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("mirror: clone project: %s: %w", strings.TrimSpace(string(out)), err)
	}

	clonedFuel := filepath.Join(path, ".fuel")
	if err := os.RemoveAll(clonedFuel); err != nil {
		return nil, fmt.Errorf("mirror: remove cloned .fuel: %w", err)
	}
	if err := os.Symlink(m.fuelDir, clonedFuel); err != nil {
		return nil, fmt.Errorf("mirror: symlink .fuel: %w", err)
	}

	baseCommit, err := m.headCommit()
	if err != nil {
		return nil, err
	}

	branch := m.Branch(epicID)
	checkout := exec.Command("git", "checkout", "-b", branch, baseCommit)
	checkout.Dir = path
	if out, err := checkout.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("mirror: create branch: %s: %w", strings.TrimSpace(string(out)), err)
	}

	return &Mirror{EpicID: epicID, Path: path, Branch: branch, BaseCommit: baseCommit}, nil
}

func (m *Manager) headCommit() (string, error) {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = m.projectRoot
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("mirror: resolve HEAD: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Merge pulls the mirror's branch into the project's current branch,
// run from the original checkout. The branch lives only in the mirror
// clone's object store, so the mirror path itself is used as the git
// remote rather than a locally known branch name.
func (m *Manager) Merge(epicID string) error {
	path, branch := m.Path(epicID), m.Branch(epicID)
	cmd := exec.Command("git", "pull", "--no-edit", path, branch)
	cmd.Dir = m.projectRoot
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("mirror: merge %s: %s: %w", branch, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Remove deletes the mirror's clone directory, and with it the dedicated
// branch ref, which only ever existed inside the clone. Commits that
// Merge already pulled into the original checkout stay there.
func (m *Manager) Remove(epicID string) error {
	path := m.Path(epicID)
	if !m.Exists(epicID) {
		return ErrNotFound
	}
	return os.RemoveAll(path)
}
