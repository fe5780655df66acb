// Package driver maps a logical agent name to its invocation mechanics:
// the argv/env an external agent CLI needs to start, and a line-by-line
// parser that turns its JSONL stdout into semantic events (§4.C). The
// core treats a Driver as an opaque capability; per-agent prompt
// templates and argv shapes are the only thing that varies between
// implementations.
//
// Grounded on pengelbrecht-ticker's internal/agent.Agent/ClaudeAgent
// (argv construction, streaming output capture), generalized from a
// single blocking Run call into a registry of named drivers plus a pure
// ParseLine function the scheduler calls per output line.
package driver

import "fmt"

// EventKind discriminates the Event union returned by ParseLine.
type EventKind string

const (
	EventInit       EventKind = "init"
	EventStep       EventKind = "step"
	EventResult     EventKind = "result"
	EventStepFinish EventKind = "step_finish"
	EventUnknown    EventKind = "unknown"
)

// Event is one parsed line of a driver's JSONL stdout, per §4.C.
type Event struct {
	Kind EventKind

	// Init
	Model string

	// Step
	Tool string
	Text string

	// Result / StepFinish
	CostUSD     float64
	TotalTokens int
	SessionID   string
}

// Invocation is the argv/env a Supervisor.Spawn call needs.
type Invocation struct {
	Argv []string
	Env  []string
}

// BuildOpts carries the inputs a Driver needs to construct an
// Invocation beyond the prompt/cwd/session triple spec.md names
// explicitly.
type BuildOpts struct {
	Prompt    string
	Cwd       string
	SessionID string // resume an existing session when non-empty
	Extras    map[string]string
}

// Driver translates a logical agent name into concrete invocation
// mechanics, per §4.C.
type Driver interface {
	// Name returns the driver's registry key (e.g. "claude").
	Name() string
	// BuildInvocation constructs the argv/env for a fresh or resumed run.
	BuildInvocation(opts BuildOpts) (Invocation, error)
	// ParseLine interprets one line of the child's stdout.
	ParseLine(line []byte) Event
	// ResumeCommand renders a user-facing "Resume:" help string.
	ResumeCommand(sessionID string) string
}

// Registry maps agent names to their Driver implementation.
type Registry struct {
	drivers map[string]Driver
}

// NewRegistry builds a Registry pre-populated with the built-in drivers.
func NewRegistry() *Registry {
	r := &Registry{drivers: make(map[string]Driver)}
	r.Register(NewClaude())
	r.Register(NewOpencode())
	r.Register(NewSelfguided())
	return r
}

// Register adds or replaces a driver under its own Name().
func (r *Registry) Register(d Driver) {
	r.drivers[d.Name()] = d
}

// Get returns the driver registered under name.
func (r *Registry) Get(name string) (Driver, error) {
	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("driver: unknown agent %q", name)
	}
	return d, nil
}

// Names lists every registered driver name, for CLI help text.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.drivers))
	for n := range r.drivers {
		names = append(names, n)
	}
	return names
}

// HarvestResult scans a completed run's captured stdout tail for the
// cost/model harvesting behavior described in §4.C: the final line is
// checked for a Result event to harvest cost, the first line for an
// Init event to harvest the model; if the final line is not a Result, the
// costs of every StepFinish event are summed instead.
func HarvestResult(d Driver, lines []string) (model string, costUSD float64, sessionID string) {
	if len(lines) == 0 {
		return "", 0, ""
	}
	if ev := d.ParseLine([]byte(lines[0])); ev.Kind == EventInit {
		model = ev.Model
	}

	last := d.ParseLine([]byte(lines[len(lines)-1]))
	if last.Kind == EventResult {
		return model, last.CostUSD, last.SessionID
	}

	var summed float64
	for _, l := range lines {
		ev := d.ParseLine([]byte(l))
		if ev.Kind == EventStepFinish {
			summed += ev.CostUSD
		}
		if ev.SessionID != "" {
			sessionID = ev.SessionID
		}
	}
	return model, summed, sessionID
}
