// Package health tracks per-agent consecutive-failure counts and
// cool-down windows (§4.I). It is in-memory only and rebuilt at daemon
// startup from a scan of recent runs, the same "derive transient state
// from persisted history" idiom the teacher uses for its retry-category
// bookkeeping in internal/task/store.go's RetryTask/ScheduleRetry.
package health

import (
	"sync"
	"time"

	"github.com/ashleyhindle/fuel-sub006/internal/store"
)

// FailureCategory classifies why a run counted as a failure, per the
// Glossary's retry-category note: the consecutive-failure streak only
// accumulates across repeats of the same category, so an agent that
// fails once on a timeout and then once on a normal exit-nonzero isn't
// treated as two strikes of the same problem.
type FailureCategory string

const (
	CategoryExitFailure FailureCategory = "exit_failure" // process ran and exited nonzero
	CategoryTimeout     FailureCategory = "timeout"      // process was killed after exceeding agent_timeout_seconds
	CategoryReviewFail  FailureCategory = "review_fail"  // the review pipeline rejected the task's work
)

// agentState is the mutable health record kept per agent name.
type agentState struct {
	consecutiveFailures int
	lastCategory        FailureCategory
	cooldownUntil       time.Time
	escalationLevel     int // number of cooldowns triggered since last explicit reset
}

// Tracker is the Health Tracker of §4.I. Safe for concurrent use.
type Tracker struct {
	mu sync.Mutex

	failureThreshold int
	cooldownBase     time.Duration
	cooldownMax      time.Duration

	state map[string]*agentState
}

// New builds a Tracker with the given failure threshold and base
// cool-down; cool-downs escalate by 2x per repeated trip up to one hour,
// per the Glossary's `health.failure_threshold`/`health.cooldown_seconds`.
func New(failureThreshold int, cooldownBase time.Duration) *Tracker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	if cooldownBase <= 0 {
		cooldownBase = 5 * time.Minute
	}
	return &Tracker{
		failureThreshold: failureThreshold,
		cooldownBase:     cooldownBase,
		cooldownMax:      time.Hour,
		state:            make(map[string]*agentState),
	}
}

func (t *Tracker) stateFor(agent string) *agentState {
	s, ok := t.state[agent]
	if !ok {
		s = &agentState{}
		t.state[agent] = s
	}
	return s
}

// RecordSuccess resets agent's consecutive-failure counter, per §4.I
// ("on success the counter resets").
func (t *Tracker) RecordSuccess(agent string) {
	if agent == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stateFor(agent)
	s.consecutiveFailures = 0
	s.lastCategory = ""
}

// RecordFailure increments agent's consecutive-failure counter and, once
// it crosses the threshold, places the agent in cool-down for an
// escalating duration. A failure whose category differs from the
// previous one resets the streak to 1 instead of accumulating, so
// flapping between unrelated failure types (a timeout followed by an
// exit-nonzero followed by a review rejection) never trips the breaker
// on its own. Returns whether the agent is now cooling down and until
// when.
func (t *Tracker) RecordFailure(agent string, category FailureCategory) (coolingDown bool, until time.Time) {
	if agent == "" {
		return false, time.Time{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stateFor(agent)
	if s.lastCategory != category {
		s.consecutiveFailures = 0
	}
	s.lastCategory = category
	s.consecutiveFailures++
	if s.consecutiveFailures < t.failureThreshold {
		return false, time.Time{}
	}
	cooldown := t.cooldownBase << s.escalationLevel
	if cooldown > t.cooldownMax || cooldown <= 0 {
		cooldown = t.cooldownMax
	}
	s.escalationLevel++
	s.cooldownUntil = time.Now().Add(cooldown)
	return true, s.cooldownUntil
}

// InCooldown reports whether agent is currently cooling down.
func (t *Tracker) InCooldown(agent string) bool {
	if agent == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.state[agent]
	if !ok {
		return false
	}
	return time.Now().Before(s.cooldownUntil)
}

// Reset clears all health state for agent, per the explicit
// `health:reset` command of §4.I.
func (t *Tracker) Reset(agent string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.state, agent)
}

// CooldownAgents returns the set of agents currently cooling down, in
// the shape queue.Snapshot expects.
func (t *Tracker) CooldownAgents() map[string]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	out := make(map[string]bool, len(t.state))
	for agent, s := range t.state {
		if now.Before(s.cooldownUntil) {
			out[agent] = true
		}
	}
	return out
}

// RebuildFromRuns replays runs (most recent last, as ListRunsSince
// returns them) to reconstruct each agent's trailing consecutive-failure
// streak, per §4.J's startup recovery: in-memory health state does not
// survive a restart, so it is derived fresh from persisted run history
// every time the daemon starts. A Run only persists its exit code, not
// which failure category produced it, so every reconstructed streak is
// tagged CategoryExitFailure; a timeout or review-fail streak in
// progress at shutdown is conservatively forgotten rather than guessed.
func RebuildFromRuns(failureThreshold int, cooldownBase time.Duration, runs []*store.Run) *Tracker {
	t := New(failureThreshold, cooldownBase)
	t.mu.Lock()
	defer t.mu.Unlock()

	byAgent := make(map[string][]*store.Run)
	for _, r := range runs {
		if r.Agent == "" || !r.IsTerminal() {
			continue
		}
		byAgent[r.Agent] = append(byAgent[r.Agent], r)
	}
	for agent, agentRuns := range byAgent {
		streak := 0
		for i := len(agentRuns) - 1; i >= 0; i-- {
			r := agentRuns[i]
			if r.ExitCode != nil && *r.ExitCode == 0 {
				break
			}
			streak++
		}
		s := &agentState{consecutiveFailures: streak}
		if streak > 0 {
			s.lastCategory = CategoryExitFailure
		}
		t.state[agent] = s
	}
	return t
}
