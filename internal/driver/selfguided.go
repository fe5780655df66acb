package driver

import "strings"

// acceptedMarker is the line a self-guided agent prints to signal it has
// satisfied its own acceptance predicate and should not be re-dispatched,
// grounded on the teacher's VERVE_* marker convention
// (internal/worker/markers.go) generalized to this spec's looping mode.
const acceptedMarker = "FUEL_SELFGUIDED_DONE"

// Selfguided wraps Claude's invocation shape with a prompt preamble that
// reminds the agent it is running in the spec's "selfguided" looping
// mode (§4.D) and must print acceptedMarker once its own acceptance
// predicate holds; otherwise it is re-dispatched with the same
// short_id, up to queue.SelfGuidedIterationCeiling times.
type Selfguided struct {
	inner *Claude
}

// NewSelfguided builds a Selfguided driver delegating invocation
// mechanics to an inner Claude driver.
func NewSelfguided() *Selfguided {
	return &Selfguided{inner: NewClaude()}
}

func (s *Selfguided) Name() string { return "selfguided" }

func (s *Selfguided) BuildInvocation(opts BuildOpts) (Invocation, error) {
	opts.Prompt = "You are running in self-guided mode. Keep iterating on this task. " +
		"When your own acceptance criteria are fully satisfied, print a line containing exactly " +
		acceptedMarker + " and stop.\n\n" + opts.Prompt
	return s.inner.BuildInvocation(opts)
}

func (s *Selfguided) ParseLine(line []byte) Event {
	return s.inner.ParseLine(line)
}

func (s *Selfguided) ResumeCommand(sessionID string) string {
	return s.inner.ResumeCommand(sessionID)
}

// Accepted reports whether a self-guided run's captured output contains
// the acceptance marker, per §4.D's "acceptance predicate".
func Accepted(output string) bool {
	return strings.Contains(output, acceptedMarker)
}
