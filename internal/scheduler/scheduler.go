// Package scheduler implements the Scheduler / Tick Loop of §4.E: the
// single-threaded cooperative cycle that reaps completed runs, rolls up
// epic completion, computes the ready set, admits and dispatches new
// runs, broadcasts events, and drains the IPC command queue.
//
// Grounded on the teacher's internal/worker.Worker.Run (semaphore-gated
// admission loop, per-task goroutine bookkeeping) and
// cmd/worker/main.go's signal-driven shutdown, generalized from a single
// HTTP-polling worker into the full seven-step tick described in §4.E.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashleyhindle/fuel-sub006/internal/config"
	"github.com/ashleyhindle/fuel-sub006/internal/driver"
	"github.com/ashleyhindle/fuel-sub006/internal/epic"
	"github.com/ashleyhindle/fuel-sub006/internal/health"
	"github.com/ashleyhindle/fuel-sub006/internal/ipc"
	"github.com/ashleyhindle/fuel-sub006/internal/lifecycle"
	"github.com/ashleyhindle/fuel-sub006/internal/logging"
	"github.com/ashleyhindle/fuel-sub006/internal/queue"
	"github.com/ashleyhindle/fuel-sub006/internal/review"
	"github.com/ashleyhindle/fuel-sub006/internal/store"
	"github.com/ashleyhindle/fuel-sub006/internal/supervisor"
)

// DefaultAgent is used when a task carries no explicit agent assignment.
const DefaultAgent = "claude"

// Engine drives the tick loop. It is the single struct wiring Store,
// Supervisor, the Driver Registry, the Epic Controller, the Review
// Pipeline, the Health Tracker and the IPC Server together, per §9's
// "explicit construction at daemon start" redesign note.
type Engine struct {
	store       *store.Store
	supervisor  *supervisor.Supervisor
	drivers     *driver.Registry
	epics       *epic.Controller
	reviews     *review.Pipeline
	health      *health.Tracker
	ipcServer   *ipc.Server
	logger      logging.Logger
	cfg         config.Config
	projectRoot string

	reviewEnabled bool
	cfgMu         sync.RWMutex

	mu         sync.Mutex
	reviewRuns map[string]*store.Review // run short_id -> in-flight review

	ticksSinceStaleSweep int
}

// staleSweepEveryNTicks bounds how often the tick loop re-runs the
// heartbeat reaper, per the teacher's backgroundReaper running on its own
// slower cadence than the main admission loop.
const staleSweepEveryNTicks = 12

// New builds an Engine from its collaborators. reviews may be nil when
// cfg.ReviewEnabled is false.
func New(
	s *store.Store,
	sup *supervisor.Supervisor,
	drivers *driver.Registry,
	epics *epic.Controller,
	reviews *review.Pipeline,
	healthTracker *health.Tracker,
	ipcServer *ipc.Server,
	cfg config.Config,
	projectRoot string,
	logger logging.Logger,
) *Engine {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Engine{
		store:         s,
		supervisor:    sup,
		drivers:       drivers,
		epics:         epics,
		reviews:       reviews,
		health:        healthTracker,
		ipcServer:     ipcServer,
		cfg:           cfg,
		projectRoot:   projectRoot,
		reviewEnabled: cfg.ReviewEnabled && reviews != nil,
		logger:        logger.With("component", "scheduler"),
		reviewRuns:    make(map[string]*store.Review),
	}
}

// currentConfig returns a snapshot of the live config, safe to call
// concurrently with SetConfig.
func (e *Engine) currentConfig() config.Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// SetConfig replaces the live config, picked up by the next tick. It is
// the hook config.Watch calls on every config.yaml change (§4.E's
// "optional hot-reload" note); the tick interval itself stays fixed for
// the life of the process since it governs the Run loop's ticker.
func (e *Engine) SetConfig(cfg config.Config) {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	e.cfg = cfg
	e.reviewEnabled = cfg.ReviewEnabled && e.reviews != nil
}

func (e *Engine) reviewIsEnabled() bool {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.reviewEnabled
}

// Run loops Tick at cfg.Interval(), waking early when a command arrives
// on the IPC queue, until ctx is cancelled, per §4.E step 7 and the
// teacher's Worker.Run select-loop idiom.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.currentConfig().Interval())
	defer ticker.Stop()

	for {
		if err := e.Tick(ctx); err != nil {
			e.logger.Error("tick failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case cmd := <-e.ipcServer.Commands():
			e.applyCommand(ctx, cmd)
		}
	}
}

// Tick runs one full cycle of the seven steps in §4.E.
func (e *Engine) Tick(ctx context.Context) error {
	if err := e.reap(ctx); err != nil {
		return fmt.Errorf("scheduler: reap: %w", err)
	}
	if err := e.reapStale(ctx); err != nil {
		e.logger.Error("stale sweep failed", "err", err)
	}
	if err := e.admit(ctx); err != nil {
		return fmt.Errorf("scheduler: admit: %w", err)
	}
	e.drainCommands(ctx)
	e.ipcServer.Broadcast(ipc.EventHeartbeat, map[string]any{"time": time.Now()})
	return nil
}

// reapStale covers a run whose child vanished without the Supervisor's own
// wait goroutine ever observing it exit (an OOM-killed process, or one
// reparented out from under the daemon) by periodically re-running the
// same live-child check §4.J's startup RecoverySweep performs once. It
// runs every staleSweepEveryNTicks rather than on every tick, since
// ListTasks is O(all tasks) and a truly vanished child is rare.
func (e *Engine) reapStale(ctx context.Context) error {
	e.ticksSinceStaleSweep++
	if e.ticksSinceStaleSweep < staleSweepEveryNTicks {
		return nil
	}
	e.ticksSinceStaleSweep = 0

	recovered, err := lifecycle.RecoverySweep(ctx, e.store, e.supervisor, e.logger)
	if err != nil {
		return err
	}
	if recovered > 0 {
		e.logger.Warn("stale sweep returned tasks to open", "count", recovered)
	}
	return nil
}

// reap implements §4.E step 1 (poll completions, patch run rows, apply
// the task state transition) and step 2 (epic rollup).
func (e *Engine) reap(ctx context.Context) error {
	for _, c := range e.supervisor.Poll() {
		if err := e.reapOne(ctx, c); err != nil {
			e.logger.Error("reap: failed to process completion", "run_id", c.RunID, "err", err)
		}
	}
	return nil
}

func (e *Engine) reapOne(ctx context.Context, c supervisor.Completion) error {
	run, err := e.store.Repo().ReadRun(ctx, c.RunID)
	if err != nil {
		return fmt.Errorf("read run %s: %w", c.RunID, err)
	}
	if run.IsTerminal() {
		return nil // already processed; Poll's idempotence contract still gets a defensive guard here.
	}
	task, err := e.store.ReadTask(ctx, run.TaskShortID)
	if err != nil {
		return fmt.Errorf("read task %s: %w", run.TaskShortID, err)
	}

	success := c.Outcome == supervisor.NormalExit && c.ExitCode == 0
	category := health.CategoryExitFailure
	if c.Outcome == supervisor.Killed {
		category = health.CategoryTimeout
	}

	var model, sessionID string
	var costUSD float64
	if drv, derr := e.resolveDriver(run.Agent); derr == nil {
		model, costUSD, sessionID = driver.HarvestResult(drv, splitLines(c.Output))
	}

	now := c.EndedAt
	exitCode := c.ExitCode
	run.Model = model
	run.CostUSD = &costUSD
	run.SessionID = sessionID
	run.ExitCode = &exitCode
	run.EndedAt = &now
	run.Output = c.Output
	run.PID = c.PID
	if err := e.store.Repo().UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	// A command (pause/cancel) may already have moved the task out of
	// in_progress between dispatch and this completion; don't re-apply a
	// transition onto a status the operator already changed.
	if review, ok := e.takeReviewRun(c.RunID); ok {
		return e.applyReviewCompletion(ctx, review, exitCode, c.Output)
	}
	if task.Status != store.StatusInProgress {
		return nil
	}

	return e.applyTaskCompletion(ctx, task, run, success, category, c.Output)
}

func (e *Engine) takeReviewRun(runID string) (*store.Review, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.reviewRuns[runID]
	if ok {
		delete(e.reviewRuns, runID)
	}
	return r, ok
}

func (e *Engine) applyReviewCompletion(ctx context.Context, rv *store.Review, exitCode int, output string) error {
	if err := e.reviews.OnRunCompleted(ctx, rv, exitCode, output); err != nil {
		return fmt.Errorf("review: apply completion: %w", err)
	}
	task, err := e.store.ReadTask(ctx, rv.TaskShortID)
	if err != nil {
		return err
	}
	if task.Status == store.StatusDone {
		e.health.RecordSuccess(task.Agent)
	} else {
		e.health.RecordFailure(task.Agent, health.CategoryReviewFail)
	}
	e.ipcServer.Broadcast(ipc.EventTaskStatusChanged, taskPayload(task))
	if task.Status == store.StatusDone {
		return e.afterTaskDone(ctx, task)
	}
	return nil
}

func (e *Engine) applyTaskCompletion(ctx context.Context, task *store.Task, run *store.Run, success bool, category health.FailureCategory, output string) error {
	switch {
	case task.IsSelfGuided():
		return e.applySelfGuidedCompletion(ctx, task, success, category, output)
	case task.EpicID != "" && task.Agent == epic.MergeAgent:
		if err := e.epics.OnMergeResult(ctx, task.EpicID, success); err != nil {
			e.logger.Error("epic: apply merge result", "epic_id", task.EpicID, "err", err)
		}
		if !success {
			if _, err := e.store.UpdateTask(ctx, task.ShortID, store.UpdateTaskInput{AddLabels: []string{store.NeedsHumanLabel}}); err != nil {
				e.logger.Error("epic: tag failed merge needs-human", "task_id", task.ShortID, "err", err)
			}
		}
		return e.finishTask(ctx, task, success, category)
	default:
		if success && e.reviewIsEnabled() && task.Agent != epic.ReviewAgent {
			return e.startReview(ctx, task)
		}
		return e.finishTask(ctx, task, success, category)
	}
}

func (e *Engine) applySelfGuidedCompletion(ctx context.Context, task *store.Task, success bool, category health.FailureCategory, output string) error {
	if !success {
		return e.finishTask(ctx, task, false, category)
	}
	if driver.Accepted(output) {
		return e.finishTask(ctx, task, true, category)
	}
	if task.SelfguidedIteration+1 >= queue.SelfGuidedIterationCeiling {
		e.logger.Warn("self-guided task hit iteration ceiling without accepting", "task_id", task.ShortID)
		return e.finishTask(ctx, task, true, category)
	}
	if _, err := e.store.IncrementSelfguidedIteration(ctx, task.ShortID); err != nil {
		return err
	}
	openStatus := store.StatusOpen
	_, err := e.store.UpdateTask(ctx, task.ShortID, store.UpdateTaskInput{Status: &openStatus})
	if err != nil {
		return err
	}
	e.health.RecordSuccess(task.Agent)
	return nil
}

func (e *Engine) startReview(ctx context.Context, task *store.Task) error {
	rv, err := e.reviews.StartReview(ctx, task.ShortID)
	if err != nil {
		return err
	}
	cwd, err := e.epics.Cwd(ctx, task.EpicID, e.projectRoot)
	if err != nil {
		cwd = e.projectRoot
	}
	drv, err := e.drivers.Get(e.reviews.ReviewAgent())
	if err != nil {
		return fmt.Errorf("scheduler: review agent driver: %w", err)
	}
	inv, err := drv.BuildInvocation(driver.BuildOpts{Prompt: reviewPrompt(task), Cwd: cwd})
	if err != nil {
		return fmt.Errorf("scheduler: build review invocation: %w", err)
	}
	run, err := e.store.CreateRun(ctx, task.ShortID, e.reviews.ReviewAgent())
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.reviewRuns[run.ShortID] = rv
	e.mu.Unlock()

	pid, err := e.supervisor.Spawn(ctx, run.ShortID, inv.Argv, inv.Env, cwd, e.currentConfig().AgentTimeout())
	if err != nil {
		e.logger.Warn("spawn reviewer failed", "task_id", task.ShortID, "err", err)
		return nil
	}
	run.PID = pid
	_ = e.store.Repo().UpdateRun(ctx, run)
	e.ipcServer.Broadcast(ipc.EventRunStarted, runPayload(run))
	return nil
}

func (e *Engine) finishTask(ctx context.Context, task *store.Task, success bool, category health.FailureCategory) error {
	if success {
		if _, err := e.store.Done(ctx, task.ShortID, "", ""); err != nil {
			return err
		}
		e.health.RecordSuccess(task.Agent)
	} else {
		openStatus := store.StatusOpen
		if _, err := e.store.UpdateTask(ctx, task.ShortID, store.UpdateTaskInput{Status: &openStatus}); err != nil {
			return err
		}
		e.health.RecordFailure(task.Agent, category)
	}
	updated, err := e.store.ReadTask(ctx, task.ShortID)
	if err != nil {
		return err
	}
	e.ipcServer.Broadcast(ipc.EventTaskStatusChanged, taskPayload(updated))
	if success {
		return e.afterTaskDone(ctx, updated)
	}
	return nil
}

// afterTaskDone implements §4.E step 2: roll up epic completion for any
// task that just reached done.
func (e *Engine) afterTaskDone(ctx context.Context, task *store.Task) error {
	if task.EpicID == "" {
		return nil
	}
	completed, err := e.epics.CheckCompletion(ctx, task.EpicID)
	if err != nil {
		return fmt.Errorf("epic: check completion: %w", err)
	}
	if completed {
		e.ipcServer.Broadcast(ipc.EventEpicCompleted, map[string]string{"epic_id": task.EpicID})
	}
	return nil
}

// admit implements §4.E steps 3-4: compute free capacity, pull ready
// tasks, and dispatch each one.
func (e *Engine) admit(ctx context.Context) error {
	free := e.currentConfig().ConcurrencyCap - e.supervisor.RunningCount()
	if free <= 0 {
		return nil
	}

	snap, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	ready := queue.ListReady(snap)
	if len(ready) > free {
		ready = ready[:free]
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(free)
	for _, t := range ready {
		t := t
		g.Go(func() error {
			if err := e.dispatch(gctx, t); err != nil {
				e.logger.Error("dispatch failed", "task_id", t.ShortID, "err", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) snapshot(ctx context.Context) (queue.Snapshot, error) {
	tasks, err := e.store.ListTasks(ctx)
	if err != nil {
		return queue.Snapshot{}, err
	}
	epics, err := e.store.ListEpics(ctx)
	if err != nil {
		return queue.Snapshot{}, err
	}
	epicByID := make(map[string]*store.Epic, len(epics))
	for _, ep := range epics {
		epicByID[ep.ShortID] = ep
	}
	return queue.Snapshot{Tasks: tasks, Epics: epicByID, CooldownAgents: e.health.CooldownAgents()}, nil
}

// dispatch implements §4.E step 4: transition the task, build the
// invocation, and hand it to the Supervisor.
func (e *Engine) dispatch(ctx context.Context, t *store.Task) error {
	if t.Agent == epic.MergeAgent {
		return e.dispatchMerge(ctx, t)
	}
	if t.EpicID != "" {
		if err := e.epics.EnsureMirror(ctx, t.EpicID); err != nil {
			e.logger.Warn("epic mirror creation failed, dispatching against project root", "epic_id", t.EpicID, "err", err)
		}
	}
	cwd, err := e.epics.Cwd(ctx, t.EpicID, e.projectRoot)
	if err != nil {
		cwd = e.projectRoot
	}

	drv, err := e.resolveDriver(t.Agent)
	if err != nil {
		return fmt.Errorf("unknown agent %q: %w", t.Agent, err)
	}

	sessionID := e.resumeSessionID(ctx, t)

	inv, err := drv.BuildInvocation(driver.BuildOpts{Prompt: buildPrompt(t), Cwd: cwd, SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("build invocation: %w", err)
	}

	inProgress := store.StatusInProgress
	if _, err := e.store.UpdateTask(ctx, t.ShortID, store.UpdateTaskInput{Status: &inProgress}); err != nil {
		return fmt.Errorf("transition to in_progress: %w", err)
	}
	runAgent := t.Agent
	if runAgent == "" {
		runAgent = DefaultAgent
	}
	run, err := e.store.CreateRun(ctx, t.ShortID, runAgent)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	pid, err := e.supervisor.Spawn(ctx, run.ShortID, inv.Argv, inv.Env, cwd, e.currentConfig().AgentTimeout())
	if err != nil {
		e.logger.Warn("spawn failed, will be reaped next tick", "task_id", t.ShortID, "run_id", run.ShortID, "err", err)
		return nil
	}
	run.PID = pid
	if err := e.store.Repo().UpdateRun(ctx, run); err != nil {
		return err
	}
	e.ipcServer.Broadcast(ipc.EventRunStarted, runPayload(run))
	return nil
}

// dispatchMerge runs an epic-merge task synchronously as a direct git
// operation rather than an agent subprocess, per the Merge doc comment
// on epic.Controller: merging a mirror's branch is OS/git plumbing, so it
// completes within this single tick instead of going through the
// Supervisor's async poll cycle.
func (e *Engine) dispatchMerge(ctx context.Context, t *store.Task) error {
	inProgress := store.StatusInProgress
	if _, err := e.store.UpdateTask(ctx, t.ShortID, store.UpdateTaskInput{Status: &inProgress}); err != nil {
		return fmt.Errorf("transition to in_progress: %w", err)
	}
	run, err := e.store.CreateRun(ctx, t.ShortID, t.Agent)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	e.ipcServer.Broadcast(ipc.EventRunStarted, runPayload(run))

	mergeErr := e.epics.Merge(ctx, t.EpicID)
	success := mergeErr == nil
	output := "merge succeeded"
	exitCode := 0
	if mergeErr != nil {
		output = mergeErr.Error()
		exitCode = 1
	}

	if _, err := e.store.UpdateLatestRun(ctx, t.ShortID, func(r *store.Run) {
		now := time.Now()
		r.EndedAt = &now
		r.ExitCode = &exitCode
		r.Output = output
	}); err != nil {
		return fmt.Errorf("update merge run: %w", err)
	}

	t.Status = store.StatusInProgress
	return e.applyTaskCompletion(ctx, t, run, success, health.CategoryExitFailure, output)
}

// resolveDriver maps a task/run's agent field to a concrete Driver. The
// epic package's routing markers (epic.ReviewAgent, epic.MergeAgent)
// and an unset agent are not real driver names; they fall back to the
// configured reviewer agent (or DefaultAgent) while the marker itself
// stays on the Task/Run for completion routing.
func (e *Engine) resolveDriver(agent string) (driver.Driver, error) {
	name := agent
	switch name {
	case "", epic.ReviewAgent, epic.MergeAgent:
		name = DefaultAgent
		if e.reviews != nil && e.reviews.ReviewAgent() != "" {
			name = e.reviews.ReviewAgent()
		}
	}
	return e.drivers.Get(name)
}

func (e *Engine) resumeSessionID(ctx context.Context, t *store.Task) string {
	if !t.IsSelfGuided() {
		return ""
	}
	run, err := e.store.Repo().LatestRun(ctx, t.ShortID)
	if err != nil {
		return ""
	}
	return run.SessionID
}

func buildPrompt(t *store.Task) string {
	var b strings.Builder
	b.WriteString(t.Title)
	if t.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(t.Description)
	}
	return b.String()
}

func reviewPrompt(t *store.Task) string {
	return fmt.Sprintf(
		"Review the recent changes made for task %s: %s\n\n%s\n\n"+
			"Print a line \"FUEL_REVIEW_VERDICT:PASS\" or \"FUEL_REVIEW_VERDICT:FAIL\". "+
			"For each issue on FAIL, print a line \"FUEL_REVIEW_ISSUE:<description>\".",
		t.ShortID, t.Title, t.Description)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	out := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

func taskPayload(t *store.Task) map[string]any {
	return map[string]any{"id": t.ShortID, "status": t.Status, "epic_id": t.EpicID}
}

func runPayload(r *store.Run) map[string]any {
	return map[string]any{"id": r.ShortID, "task_id": r.TaskShortID, "agent": r.Agent, "pid": r.PID}
}

// drainCommands implements §4.E step 6: apply every IPC command queued
// since the last tick.
func (e *Engine) drainCommands(ctx context.Context) {
	for {
		select {
		case cmd := <-e.ipcServer.Commands():
			e.applyCommand(ctx, cmd)
		default:
			return
		}
	}
}

type commandPayload struct {
	TaskID      string `json:"task_id"`
	RunID       string `json:"run_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Agent       string `json:"agent"`
}

func (e *Engine) applyCommand(ctx context.Context, cmd ipc.Command) {
	if ipc.IsBrowserCommand(cmd.Type) {
		e.ipcServer.Respond(cmd.RequestID, map[string]string{"error": "browser adjunct commands are not implemented by the core daemon"})
		return
	}

	var p commandPayload
	_ = json.Unmarshal(cmd.Payload, &p)

	switch cmd.Type {
	case ipc.CmdPauseTask:
		e.handlePause(ctx, p.TaskID)
	case ipc.CmdUnpauseTask:
		e.handleUnpause(ctx, p.TaskID)
	case ipc.CmdCancelRun:
		e.handleCancel(ctx, p.TaskID)
	case ipc.CmdInjectTask:
		e.handleInject(ctx, p)
	case ipc.CmdHealthReset:
		e.health.Reset(p.Agent)
		e.ipcServer.Respond(cmd.RequestID, map[string]string{"agent": p.Agent, "status": "reset"})
	default:
		e.logger.Warn("unrecognized command", "type", cmd.Type)
	}
}

func (e *Engine) handlePause(ctx context.Context, taskID string) {
	full, err := e.store.Resolve(ctx, taskID)
	if err != nil {
		return
	}
	t, err := e.store.ReadTask(ctx, full)
	if err != nil {
		return
	}
	if t.Status == store.StatusInProgress {
		if run, rerr := e.store.Repo().LatestRun(ctx, full); rerr == nil && !run.IsTerminal() {
			_ = e.supervisor.Kill(run.ShortID, syscall.SIGTERM)
		}
	}
	paused := store.StatusPaused
	updated, err := e.store.UpdateTask(ctx, full, store.UpdateTaskInput{Status: &paused})
	if err != nil {
		return
	}
	e.ipcServer.Broadcast(ipc.EventTaskStatusChanged, taskPayload(updated))
}

func (e *Engine) handleUnpause(ctx context.Context, taskID string) {
	full, err := e.store.Resolve(ctx, taskID)
	if err != nil {
		return
	}
	open := store.StatusOpen
	updated, err := e.store.UpdateTask(ctx, full, store.UpdateTaskInput{Status: &open})
	if err != nil {
		return
	}
	e.ipcServer.Broadcast(ipc.EventTaskStatusChanged, taskPayload(updated))
}

func (e *Engine) handleCancel(ctx context.Context, taskID string) {
	full, err := e.store.Resolve(ctx, taskID)
	if err != nil {
		return
	}
	run, err := e.store.Repo().LatestRun(ctx, full)
	if err != nil || run.IsTerminal() {
		return
	}
	_ = e.supervisor.Kill(run.ShortID, syscall.SIGTERM)
}

func (e *Engine) handleInject(ctx context.Context, p commandPayload) {
	t, err := e.store.CreateTask(ctx, store.CreateTaskInput{Title: p.Title, Description: p.Description, Agent: p.Agent})
	if err != nil {
		return
	}
	e.ipcServer.Broadcast(ipc.EventTaskCreated, taskPayload(t))
}
