// Package epic implements the Epic Controller (§4.F): detecting epic
// completion, synthesizing review tasks, approving/rejecting epics, and
// driving the optional mirror lifecycle.
//
// Grounded on the teacher's internal/epic.Store
// (CheckAndCompleteEpic/CheckActiveEpicsCompletion terminal-state
// scanning, ConfirmEpic/CloseEpic approve/reject shape) generalized from
// the teacher's merged/closed/failed task vocabulary to this spec's
// done/open/paused task states, plus pengelbrecht-ticker's worktree
// manager (adapted into internal/mirror) for the isolated-working-copy
// half of the controller.
package epic

import (
	"context"
	"fmt"
	"time"

	"github.com/ashleyhindle/fuel-sub006/internal/logging"
	"github.com/ashleyhindle/fuel-sub006/internal/mirror"
	"github.com/ashleyhindle/fuel-sub006/internal/store"
	"github.com/ashleyhindle/fuel-sub006/internal/store/errs"
)

// ReviewAgent is the special agent name used for epic review tasks,
// per §4.F.
const ReviewAgent = "epic-review"

// MergeAgent is the special agent name used for the task that merges an
// approved epic's mirror back into the project, per §4.F.
const MergeAgent = "epic-merge"

// Controller drives the epic lifecycle described in §4.F.
type Controller struct {
	store   *store.Store
	mirrors *mirror.Manager
	logger  logging.Logger

	mirrorsEnabled bool
}

// New builds a Controller. mirrors may be nil when epicMirrorsEnabled is
// false; Controller never dereferences it in that case.
func New(s *store.Store, mirrors *mirror.Manager, mirrorsEnabled bool, logger logging.Logger) *Controller {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Controller{store: s, mirrors: mirrors, mirrorsEnabled: mirrorsEnabled, logger: logger.With("component", "epic_controller")}
}

// CheckCompletion reports whether every task belonging to epicID is
// done. When it is, a review task is created and the epic transitions
// active -> review, per §4.F. Called by the Scheduler's epic-rollup
// step once per task that just reached StatusDone.
func (c *Controller) CheckCompletion(ctx context.Context, epicID string) (bool, error) {
	e, err := c.store.Repo().ReadEpic(ctx, epicID)
	if err != nil {
		return false, err
	}
	if e.Status != store.EpicActive {
		return false, nil
	}

	tasks, err := c.store.ListTasks(ctx)
	if err != nil {
		return false, err
	}

	total := 0
	for _, t := range tasks {
		if t.EpicID != epicID {
			continue
		}
		total++
		if t.Status != store.StatusDone {
			return false, nil
		}
	}
	if total == 0 {
		return false, nil
	}

	reviewTitle := fmt.Sprintf("Review epic %s: %s", e.ShortID, e.Title)
	if _, err := c.store.CreateTask(ctx, store.CreateTaskInput{
		Title:       reviewTitle,
		Description: fmt.Sprintf("All tasks in epic %s are done. Review the epic as a whole before merge.", e.ShortID),
		Type:        store.TaskTask,
		EpicID:      epicID,
		Agent:       ReviewAgent,
	}); err != nil {
		return false, fmt.Errorf("epic: create review task: %w", err)
	}

	e.Status = store.EpicReview
	e.UpdatedAt = time.Now()
	if err := c.store.Repo().UpdateEpic(ctx, e); err != nil {
		return false, err
	}
	c.logger.Info("epic completed, review task created", "epic_id", epicID)
	return true, nil
}

// Approve marks epicID reviewed, recording who approved it, and then
// calls OnReviewed, so an epic with a ready mirror gets its merge task
// enqueued in the same step.
func (c *Controller) Approve(ctx context.Context, epicID, approvedBy string) error {
	e, err := c.store.Repo().ReadEpic(ctx, epicID)
	if err != nil {
		return err
	}
	if e.Status != store.EpicReview {
		return fmt.Errorf("%w: epic %s is %s, not review", errs.ErrInvalidTransition, epicID, e.Status)
	}
	now := time.Now()
	e.Status = store.EpicReviewed
	e.ApprovedBy = approvedBy
	e.ApprovedAt = &now
	e.UpdatedAt = now
	if err := c.store.Repo().UpdateEpic(ctx, e); err != nil {
		return err
	}
	return c.OnReviewed(ctx, epicID)
}

// Reject transitions epic to rejected and every one of its tasks back
// to open, per §4.F: a rejected epic's tasks "will need follow-up work".
func (c *Controller) Reject(ctx context.Context, epicID string) error {
	e, err := c.store.Repo().ReadEpic(ctx, epicID)
	if err != nil {
		return err
	}
	tasks, err := c.store.ListTasks(ctx)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.EpicID != epicID || t.Status == store.StatusOpen {
			continue
		}
		if !store.CanTransition(t.Status, store.StatusOpen) {
			continue
		}
		status := store.StatusOpen
		if _, err := c.store.UpdateTask(ctx, t.ShortID, store.UpdateTaskInput{Status: &status}); err != nil {
			return fmt.Errorf("epic: reopen task %s: %w", t.ShortID, err)
		}
	}
	e.Status = store.EpicRejected
	e.UpdatedAt = time.Now()
	return c.store.Repo().UpdateEpic(ctx, e)
}

// EnsureMirror creates epicID's working-copy mirror the first time it
// gains a dispatchable task, when mirrors are enabled, per §4.F. It is a
// no-op once a mirror already exists or is in flight.
func (c *Controller) EnsureMirror(ctx context.Context, epicID string) error {
	if !c.mirrorsEnabled || c.mirrors == nil {
		return nil
	}
	e, err := c.store.Repo().ReadEpic(ctx, epicID)
	if err != nil {
		return err
	}
	if e.MirrorStatus != store.MirrorNone {
		return nil
	}

	e.MirrorStatus = store.MirrorCreating
	e.UpdatedAt = time.Now()
	if err := c.store.Repo().UpdateEpic(ctx, e); err != nil {
		return err
	}

	mir, err := c.mirrors.Create(epicID)
	if err != nil {
		e.MirrorStatus = store.MirrorFailed
		e.UpdatedAt = time.Now()
		_ = c.store.Repo().UpdateEpic(ctx, e)
		return fmt.Errorf("epic: create mirror: %w", err)
	}

	e.MirrorStatus = store.MirrorReady
	e.MirrorPath = mir.Path
	e.MirrorBranch = mir.Branch
	e.BaseCommit = mir.BaseCommit
	e.UpdatedAt = time.Now()
	if err := c.store.Repo().UpdateEpic(ctx, e); err != nil {
		return err
	}
	c.logger.Info("epic mirror ready", "epic_id", epicID, "path", mir.Path, "branch", mir.Branch)
	return nil
}

// Cwd returns the working directory task runs for epicID should use:
// the mirror path if one is ready, otherwise projectRoot.
func (c *Controller) Cwd(ctx context.Context, epicID, projectRoot string) (string, error) {
	if epicID == "" {
		return projectRoot, nil
	}
	e, err := c.store.Repo().ReadEpic(ctx, epicID)
	if err != nil {
		return projectRoot, err
	}
	if e.MirrorStatus == store.MirrorReady {
		return e.MirrorPath, nil
	}
	return projectRoot, nil
}

// OnReviewed enqueues a merge task for an approved epic whose mirror is
// ready, per §4.F's "on epic:reviewed with mirror_status=ready". If the
// epic has no mirror, there's nothing to merge and the epic is left
// reviewed for whatever external process finalizes it (e.g. a plain PR).
func (c *Controller) OnReviewed(ctx context.Context, epicID string) error {
	e, err := c.store.Repo().ReadEpic(ctx, epicID)
	if err != nil {
		return err
	}
	if e.MirrorStatus != store.MirrorReady {
		return nil
	}
	e.MirrorStatus = store.MirrorMerging
	e.UpdatedAt = time.Now()
	if err := c.store.Repo().UpdateEpic(ctx, e); err != nil {
		return err
	}
	_, err = c.store.CreateTask(ctx, store.CreateTaskInput{
		Title:       fmt.Sprintf("Merge epic %s", e.ShortID),
		Description: fmt.Sprintf("Merge branch %s into the main working copy.", e.MirrorBranch),
		Type:        store.TaskChore,
		EpicID:      epicID,
		Agent:       MergeAgent,
	})
	return err
}

// Merge performs the actual git merge of epicID's mirror branch back into
// the project's working copy, per §4.F. It is the mechanical counterpart
// to the synthetic merge task OnReviewed enqueues: the Scheduler calls it
// directly from the tick loop rather than spawning an agent subprocess,
// since merging a branch is OS/git plumbing, not an LLM coding task.
func (c *Controller) Merge(ctx context.Context, epicID string) error {
	if c.mirrors == nil {
		return fmt.Errorf("epic: no mirror manager configured")
	}
	e, err := c.store.Repo().ReadEpic(ctx, epicID)
	if err != nil {
		return err
	}
	return c.mirrors.Merge(e.ShortID)
}

// OnMergeResult records the outcome of the merge task the Scheduler just
// dispatched via a `MergeAgent`-assigned run. On failure the mirror is
// left in place and mirror_status=failed so a human can intervene
// (surfaced via the needs-human label on the merge task, set by the
// caller), per §4.F.
func (c *Controller) OnMergeResult(ctx context.Context, epicID string, success bool) error {
	e, err := c.store.Repo().ReadEpic(ctx, epicID)
	if err != nil {
		return err
	}
	if success {
		e.MirrorStatus = store.MirrorMerged
		e.Status = store.EpicDone
		if c.mirrors != nil {
			if rmErr := c.mirrors.Remove(epicID); rmErr != nil {
				c.logger.Warn("failed to remove merged mirror", "epic_id", epicID, "err", rmErr)
			}
		}
	} else {
		e.MirrorStatus = store.MirrorFailed
	}
	e.UpdatedAt = time.Now()
	return c.store.Repo().UpdateEpic(ctx, e)
}
