package store

import "time"

// EpicStatus is the lifecycle state of an Epic, per §3 and §4.F.
type EpicStatus string

const (
	EpicPlanning EpicStatus = "planning"
	EpicActive   EpicStatus = "active"
	EpicReview   EpicStatus = "review"
	EpicReviewed EpicStatus = "reviewed"
	EpicRejected EpicStatus = "rejected"
	EpicDone     EpicStatus = "done"
	EpicPaused   EpicStatus = "paused"
)

// MirrorStatus is the lifecycle state of an epic's isolated working-copy
// mirror, per §4.F.
type MirrorStatus string

const (
	MirrorNone     MirrorStatus = "none"
	MirrorCreating MirrorStatus = "creating"
	MirrorReady    MirrorStatus = "ready"
	MirrorMerging  MirrorStatus = "merging"
	MirrorMerged   MirrorStatus = "merged"
	MirrorFailed   MirrorStatus = "failed"
)

// Epic groups tasks that share a plan and optionally an isolated mirror.
type Epic struct {
	ShortID     string
	Title       string
	Description string
	Status      EpicStatus
	SelfGuided  bool
	PlanFilename string
	ApprovedBy   string
	ApprovedAt   *time.Time

	MirrorStatus MirrorStatus
	MirrorPath   string
	MirrorBranch string
	BaseCommit   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewEpic constructs an Epic in planning status.
func NewEpic(title, description string) *Epic {
	now := time.Now()
	return &Epic{
		ShortID:      NewEpicShortID(),
		Title:        title,
		Description:  description,
		Status:       EpicPlanning,
		MirrorStatus: MirrorNone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
