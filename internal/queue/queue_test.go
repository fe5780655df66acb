package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashleyhindle/fuel-sub006/internal/store"
)

func newOpenTask(id string, priority int, createdAt time.Time) *store.Task {
	return &store.Task{
		ShortID:   id,
		Title:     id,
		Status:    store.StatusOpen,
		Priority:  priority,
		Labels:    map[string]struct{}{},
		BlockedBy: map[string]struct{}{},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func shortIDs(tasks []*store.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ShortID
	}
	return ids
}

// Boundary scenario 1 (§8): dependency unblock.
func TestListReady_DependencyUnblock(t *testing.T) {
	now := time.Now()
	t1 := newOpenTask("f-t1", 1, now)
	t2 := newOpenTask("f-t2", 0, now.Add(time.Second))
	t2.BlockedBy["f-t1"] = struct{}{}

	snap := Snapshot{Tasks: []*store.Task{t1, t2}}
	assert.Equal(t, []string{"f-t1"}, shortIDs(ListReady(snap)))

	t1.Status = store.StatusDone
	assert.Equal(t, []string{"f-t2"}, shortIDs(ListReady(snap)))
}

// Boundary scenario 2 (§8): priority tie breaks on created_at.
func TestListReady_PriorityTieBreaksOnCreatedAt(t *testing.T) {
	now := time.Now()
	t1 := newOpenTask("f-t1", 2, now)
	t2 := newOpenTask("f-t2", 2, now.Add(time.Second))

	snap := Snapshot{Tasks: []*store.Task{t2, t1}}
	assert.Equal(t, []string{"f-t1", "f-t2"}, shortIDs(ListReady(snap)))
}

// Boundary scenario 3 (§8): needs-human label is skipped.
func TestListReady_NeedsHumanSkipped(t *testing.T) {
	now := time.Now()
	t1 := newOpenTask("f-t1", 2, now)
	t1.Labels[store.NeedsHumanLabel] = struct{}{}
	t2 := newOpenTask("f-t2", 2, now.Add(time.Second))

	snap := Snapshot{Tasks: []*store.Task{t1, t2}}
	assert.Equal(t, []string{"f-t2"}, shortIDs(ListReady(snap)))
}

func TestListReady_MissingBlockerExcludesTask(t *testing.T) {
	now := time.Now()
	t1 := newOpenTask("f-t1", 2, now)
	t1.BlockedBy["f-ghost"] = struct{}{}

	snap := Snapshot{Tasks: []*store.Task{t1}}
	assert.Empty(t, ListReady(snap))
}

func TestListReady_PausedOrRejectedEpicExcludesTasks(t *testing.T) {
	now := time.Now()
	t1 := newOpenTask("f-t1", 2, now)
	t1.EpicID = "e-ep1"
	t2 := newOpenTask("f-t2", 2, now)
	t2.EpicID = "e-ep2"

	snap := Snapshot{
		Tasks: []*store.Task{t1, t2},
		Epics: map[string]*store.Epic{
			"e-ep1": {ShortID: "e-ep1", Status: store.EpicPaused},
			"e-ep2": {ShortID: "e-ep2", Status: store.EpicRejected},
		},
	}
	assert.Empty(t, ListReady(snap))
}

func TestListReady_CooldownAgentExcludesTask(t *testing.T) {
	now := time.Now()
	t1 := newOpenTask("f-t1", 2, now)
	t1.Agent = "claude"

	snap := Snapshot{Tasks: []*store.Task{t1}, CooldownAgents: map[string]bool{"claude": true}}
	assert.Empty(t, ListReady(snap))
}

func TestListReady_SelfGuidedCeilingExcludesTask(t *testing.T) {
	now := time.Now()
	t1 := newOpenTask("f-t1", 2, now)
	t1.Agent = "selfguided"
	t1.SelfguidedIteration = SelfGuidedIterationCeiling

	snap := Snapshot{Tasks: []*store.Task{t1}}
	assert.Empty(t, ListReady(snap))

	t1.SelfguidedIteration = SelfGuidedIterationCeiling - 1
	require.Len(t, ListReady(snap), 1)
}

func TestListReady_NonOpenStatusesExcluded(t *testing.T) {
	now := time.Now()
	statuses := []store.TaskStatus{store.StatusInProgress, store.StatusPaused, store.StatusSomeday, store.StatusReview, store.StatusDone}
	var tasks []*store.Task
	for i, st := range statuses {
		tk := newOpenTask(string(rune('a'+i)), 2, now)
		tk.Status = st
		tasks = append(tasks, tk)
	}
	assert.Empty(t, ListReady(Snapshot{Tasks: tasks}))
}
