package store

import "time"

// Run is one execution of an agent process for one task, per §3.
type Run struct {
	ShortID     string
	RunNumber   int // monotonic within the task
	TaskShortID string
	Agent       string
	Model       string
	StartedAt   time.Time
	EndedAt     *time.Time
	ExitCode    *int
	CostUSD     *float64
	SessionID   string
	Output      string // tail of the last N KiB; full output lives in processes/<run_id>/
	CommitHash  string
	PID         int
}

// NewRun constructs a Run starting now.
func NewRun(taskShortID, agent string, runNumber int) *Run {
	return &Run{
		ShortID:     NewRunShortID(),
		RunNumber:   runNumber,
		TaskShortID: taskShortID,
		Agent:       agent,
		StartedAt:   time.Now(),
	}
}

// IsTerminal reports whether the run has finished (EndedAt set).
func (r *Run) IsTerminal() bool {
	return r.EndedAt != nil
}

// ReviewStatus is the lifecycle state of a Review, per §3 and §4.G.
type ReviewStatus string

const (
	ReviewPending ReviewStatus = "pending"
	ReviewPassed  ReviewStatus = "passed"
	ReviewFailed  ReviewStatus = "failed"
)

// Review records a reviewer agent's verdict on a task's run, per §4.G.
type Review struct {
	ShortID     string
	TaskShortID string
	Agent       string
	Status      ReviewStatus
	Issues      []string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// NewReview constructs a pending Review.
func NewReview(taskShortID, agent string) *Review {
	return &Review{
		ShortID:     NewReviewShortID(),
		TaskShortID: taskShortID,
		Agent:       agent,
		Status:      ReviewPending,
		StartedAt:   time.Now(),
	}
}

// BacklogItem is never selected for execution; a holding area for ideas.
type BacklogItem struct {
	Title       string
	Description string
	CreatedAt   time.Time
}
