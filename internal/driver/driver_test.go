package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nonexistent")
	assert.Error(t, err)
}

func TestRegistry_BuiltinsRegistered(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"claude", "opencode", "selfguided"} {
		d, err := r.Get(name)
		require.NoError(t, err)
		assert.Equal(t, name, d.Name())
	}
}

func TestClaude_BuildInvocation_FreshAndResumed(t *testing.T) {
	c := NewClaude()

	inv, err := c.BuildInvocation(BuildOpts{Prompt: "do the thing", Cwd: "/tmp"})
	require.NoError(t, err)
	assert.NotContains(t, inv.Argv, "--resume")
	assert.Contains(t, inv.Argv, "do the thing")

	inv, err = c.BuildInvocation(BuildOpts{Prompt: "continue", SessionID: "sess-1"})
	require.NoError(t, err)
	assert.Contains(t, inv.Argv, "--resume")
	assert.Contains(t, inv.Argv, "sess-1")
}

func TestClaude_ParseLine_InitStepResult(t *testing.T) {
	c := NewClaude()

	init := c.ParseLine([]byte(`{"type":"system","subtype":"init","model":"claude-opus-4","session_id":"s1"}`))
	assert.Equal(t, EventInit, init.Kind)
	assert.Equal(t, "claude-opus-4", init.Model)

	step := c.ParseLine([]byte(`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"bash"}]}}`))
	assert.Equal(t, EventStep, step.Kind)
	assert.Equal(t, "bash", step.Tool)

	result := c.ParseLine([]byte(`{"type":"result","total_cost_usd":0.42,"usage":{"total_tokens":1000}}`))
	assert.Equal(t, EventResult, result.Kind)
	assert.Equal(t, 0.42, result.CostUSD)
	assert.Equal(t, 1000, result.TotalTokens)

	unknown := c.ParseLine([]byte(`not json`))
	assert.Equal(t, EventUnknown, unknown.Kind)
}

func TestHarvestResult_FallsBackToSummedStepFinish(t *testing.T) {
	c := NewClaude()
	lines := []string{
		`{"type":"system","subtype":"init","model":"claude-opus-4"}`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"bash"}]}}`,
	}
	model, cost, _ := HarvestResult(c, lines)
	assert.Equal(t, "claude-opus-4", model)
	assert.Equal(t, 0.0, cost)
}

func TestSelfguided_AcceptedMarker(t *testing.T) {
	assert.True(t, Accepted("did some work\n"+acceptedMarker+"\n"))
	assert.False(t, Accepted("still working"))
}

func TestOpencode_ParseLine(t *testing.T) {
	o := NewOpencode()
	ev := o.ParseLine([]byte(`{"event":"session_end","data":{"cost_usd":1.5,"tokens":200}}`))
	assert.Equal(t, EventResult, ev.Kind)
	assert.Equal(t, 1.5, ev.CostUSD)
}
