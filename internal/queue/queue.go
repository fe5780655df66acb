// Package queue computes the ready-to-dispatch task ordering (§4.D) as a
// pure function of a Snapshot. It performs no I/O so it can be unit
// tested directly against the boundary scenarios in §8 without a Store.
package queue

import (
	"sort"

	"github.com/ashleyhindle/fuel-sub006/internal/store"
)

// SelfGuidedIterationCeiling is the hard ceiling on self-guided
// re-dispatches of the same task short_id (§4.D).
const SelfGuidedIterationCeiling = 25

// Snapshot is the subset of Store state the ready queue needs to decide
// eligibility and ordering. It is assembled by the caller (normally the
// Scheduler, once per tick) and never mutated by ListReady.
type Snapshot struct {
	Tasks          []*store.Task
	Epics          map[string]*store.Epic // short_id -> Epic
	CooldownAgents map[string]bool        // agent name -> currently in cool-down
}

// taskByID indexes Tasks by short_id for blocked_by lookups.
func (s Snapshot) taskByID() map[string]*store.Task {
	idx := make(map[string]*store.Task, len(s.Tasks))
	for _, t := range s.Tasks {
		idx[t.ShortID] = t
	}
	return idx
}

// ListReady returns the ordered sequence of tasks eligible to run now, per the five eligibility conditions and three-level ordering
// of §4.D.
func ListReady(snap Snapshot) []*store.Task {
	byID := snap.taskByID()

	var ready []*store.Task
	for _, t := range snap.Tasks {
		if eligible(t, snap, byID) {
			ready = append(ready, t)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ShortID < b.ShortID
	})
	return ready
}

func eligible(t *store.Task, snap Snapshot, byID map[string]*store.Task) bool {
	// 1. status = open
	if t.Status != store.StatusOpen {
		return false
	}
	// 2. needs-human label excluded
	if t.HasLabel(store.NeedsHumanLabel) {
		return false
	}
	// 3. every blocker exists and is done
	for dep := range t.BlockedBy {
		blocker, ok := byID[dep]
		if !ok || blocker.Status != store.StatusDone {
			return false
		}
	}
	// 4. epic, if any, is not paused or rejected
	if t.EpicID != "" {
		if e, ok := snap.Epics[t.EpicID]; ok {
			if e.Status == store.EpicPaused || e.Status == store.EpicRejected {
				return false
			}
		}
	}
	// 5. agent is not cooling down
	if t.Agent != "" && snap.CooldownAgents[t.Agent] {
		return false
	}
	// Self-guided hard ceiling.
	if t.IsSelfGuided() && t.SelfguidedIteration >= SelfGuidedIterationCeiling {
		return false
	}
	return true
}
