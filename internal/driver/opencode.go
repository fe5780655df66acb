package driver

import "encoding/json"

// Opencode drives the `opencode` CLI's non-interactive run mode. The
// wire shape differs from claude's (a flatter "event"/"data" envelope
// rather than claude's role-based message blocks), giving the registry
// a second, structurally distinct driver to exercise §4.C's "each
// driver has its own output format" contract.
type Opencode struct {
	Command string
}

// NewOpencode builds an Opencode driver invoking the binary on $PATH.
func NewOpencode() *Opencode {
	return &Opencode{Command: "opencode"}
}

func (o *Opencode) Name() string { return "opencode" }

func (o *Opencode) command() string {
	if o.Command != "" {
		return o.Command
	}
	return "opencode"
}

func (o *Opencode) BuildInvocation(opts BuildOpts) (Invocation, error) {
	argv := []string{o.command(), "run", "--json", "--prompt", opts.Prompt}
	if opts.SessionID != "" {
		argv = append(argv, "--session", opts.SessionID)
	}
	return Invocation{Argv: argv}, nil
}

type opencodeLine struct {
	Event string `json:"event"`
	Data  struct {
		Model     string  `json:"model"`
		Session   string  `json:"session"`
		Tool      string  `json:"tool"`
		Text      string  `json:"text"`
		CostUSD   float64 `json:"cost_usd"`
		Tokens    int     `json:"tokens"`
	} `json:"data"`
}

func (o *Opencode) ParseLine(line []byte) Event {
	var l opencodeLine
	if err := json.Unmarshal(line, &l); err != nil {
		return Event{Kind: EventUnknown}
	}
	switch l.Event {
	case "session_start":
		return Event{Kind: EventInit, Model: l.Data.Model, SessionID: l.Data.Session}
	case "tool_call", "message":
		return Event{Kind: EventStep, Tool: l.Data.Tool, Text: l.Data.Text, SessionID: l.Data.Session}
	case "step_finish":
		return Event{Kind: EventStepFinish, CostUSD: l.Data.CostUSD, SessionID: l.Data.Session}
	case "session_end":
		return Event{Kind: EventResult, CostUSD: l.Data.CostUSD, TotalTokens: l.Data.Tokens, SessionID: l.Data.Session}
	}
	return Event{Kind: EventUnknown}
}

func (o *Opencode) ResumeCommand(sessionID string) string {
	return "opencode run --session " + sessionID
}
