package health

import (
	"testing"
	"time"

	"github.com/ashleyhindle/fuel-sub006/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestRecordFailure_TripsCooldownAtThreshold(t *testing.T) {
	tr := New(3, 10*time.Millisecond)

	for i := 0; i < 2; i++ {
		cooling, _ := tr.RecordFailure("claude", CategoryExitFailure)
		assert.False(t, cooling)
	}
	cooling, until := tr.RecordFailure("claude", CategoryExitFailure)
	assert.True(t, cooling)
	assert.True(t, until.After(time.Now()))
	assert.True(t, tr.InCooldown("claude"))
}

func TestRecordSuccess_ResetsCounter(t *testing.T) {
	tr := New(3, time.Minute)
	tr.RecordFailure("claude", CategoryExitFailure)
	tr.RecordFailure("claude", CategoryExitFailure)
	tr.RecordSuccess("claude")
	cooling, _ := tr.RecordFailure("claude", CategoryExitFailure)
	assert.False(t, cooling, "counter should have reset after success")
}

func TestRecordFailure_CategoryChangeResetsStreak(t *testing.T) {
	tr := New(3, time.Minute)
	tr.RecordFailure("claude", CategoryExitFailure)
	tr.RecordFailure("claude", CategoryExitFailure)
	// A third failure of a different category shouldn't complete the streak.
	cooling, _ := tr.RecordFailure("claude", CategoryTimeout)
	assert.False(t, cooling, "a differing failure category should reset the streak instead of tripping it")

	cooling, _ = tr.RecordFailure("claude", CategoryTimeout)
	assert.False(t, cooling)
	cooling, _ = tr.RecordFailure("claude", CategoryTimeout)
	assert.True(t, cooling, "three consecutive failures of the same category should trip")
}

func TestCooldownEscalates(t *testing.T) {
	tr := New(1, 10*time.Millisecond)
	_, until1 := tr.RecordFailure("claude", CategoryExitFailure)
	time.Sleep(15 * time.Millisecond)
	tr.RecordSuccess("claude") // reset consecutive count, but not escalation level
	_, until2 := tr.RecordFailure("claude", CategoryExitFailure)
	assert.True(t, until2.Sub(time.Now()) > until1.Sub(time.Now()))
}

func TestReset_ClearsState(t *testing.T) {
	tr := New(1, time.Minute)
	tr.RecordFailure("claude", CategoryExitFailure)
	assert.True(t, tr.InCooldown("claude"))
	tr.Reset("claude")
	assert.False(t, tr.InCooldown("claude"))
}

func TestCooldownAgents(t *testing.T) {
	tr := New(1, time.Minute)
	tr.RecordFailure("claude", CategoryExitFailure)
	agents := tr.CooldownAgents()
	assert.True(t, agents["claude"])
	assert.False(t, agents["opencode"])
}

func TestRebuildFromRuns_CountsTrailingFailures(t *testing.T) {
	ok := 0
	bad := 1
	runs := []*store.Run{
		{Agent: "claude", ExitCode: &ok, EndedAt: ts(1)},
		{Agent: "claude", ExitCode: &bad, EndedAt: ts(2)},
		{Agent: "claude", ExitCode: &bad, EndedAt: ts(3)},
	}
	tr := RebuildFromRuns(3, time.Minute, runs)
	cooling, _ := tr.RecordFailure("claude", CategoryExitFailure)
	assert.True(t, cooling, "third consecutive failure should trip the configured threshold of 3")
}

func TestRebuildFromRuns_UsesConfiguredThreshold(t *testing.T) {
	bad := 1
	runs := []*store.Run{
		{Agent: "claude", ExitCode: &bad, EndedAt: ts(1)},
	}
	tr := RebuildFromRuns(1, time.Minute, runs)
	// One trailing failure already reconstructed; with a threshold of 1,
	// the very next failure of the same category must trip the breaker.
	cooling, _ := tr.RecordFailure("claude", CategoryExitFailure)
	assert.True(t, cooling, "configured threshold of 1 should be honored, not the package default of 3")
}

func ts(n int) *time.Time {
	t := time.Unix(int64(n), 0)
	return &t
}
