package store

import "time"

// TaskType enumerates the kinds of work a Task represents.
type TaskType string

const (
	TaskBug         TaskType = "bug"
	TaskFix         TaskType = "fix"
	TaskFeature     TaskType = "feature"
	TaskTask        TaskType = "task"
	TaskEpic        TaskType = "epic"
	TaskChore       TaskType = "chore"
	TaskDocs        TaskType = "docs"
	TaskTest        TaskType = "test"
	TaskRefactor    TaskType = "refactor"
	TaskSelfguided  TaskType = "selfguided"
)

var validTaskTypes = map[TaskType]bool{
	TaskBug: true, TaskFix: true, TaskFeature: true, TaskTask: true,
	TaskEpic: true, TaskChore: true, TaskDocs: true, TaskTest: true,
	TaskRefactor: true, TaskSelfguided: true,
}

// TaskSize is a rough t-shirt sizing of the task's expected effort.
type TaskSize string

const (
	SizeXS TaskSize = "xs"
	SizeS  TaskSize = "s"
	SizeM  TaskSize = "m"
	SizeL  TaskSize = "l"
	SizeXL TaskSize = "xl"
)

var validSizes = map[TaskSize]bool{SizeXS: true, SizeS: true, SizeM: true, SizeL: true, SizeXL: true}

// TaskComplexity estimates how much reasoning the task is expected to need.
type TaskComplexity string

const (
	ComplexityTrivial  TaskComplexity = "trivial"
	ComplexitySimple   TaskComplexity = "simple"
	ComplexityModerate TaskComplexity = "moderate"
	ComplexityComplex  TaskComplexity = "complex"
)

var validComplexities = map[TaskComplexity]bool{
	ComplexityTrivial: true, ComplexitySimple: true, ComplexityModerate: true, ComplexityComplex: true,
}

// TaskStatus is the lifecycle state of a Task, per the state machine in §4.E.
type TaskStatus string

const (
	StatusOpen       TaskStatus = "open"
	StatusInProgress TaskStatus = "in_progress"
	StatusReview     TaskStatus = "review"
	StatusDone       TaskStatus = "done"
	StatusPaused     TaskStatus = "paused"
	StatusSomeday    TaskStatus = "someday"
)

// NeedsHumanLabel is semantically load-bearing: the ready queue skips any
// task carrying it (§4.D rule 2).
const NeedsHumanLabel = "needs-human"

// Task is a unit of work dispatched to an AI coding agent, per §3.
type Task struct {
	ShortID     string
	Title       string
	Description string
	Type        TaskType
	Priority    int // 0..4, lower = more urgent, default 2
	Size        TaskSize
	Complexity  TaskComplexity
	Labels      map[string]struct{}
	BlockedBy   map[string]struct{}
	EpicID      string
	Agent       string
	Status      TaskStatus
	Reason      string
	CommitHash  string

	SelfguidedIteration int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasLabel reports whether the task carries the given label.
func (t *Task) HasLabel(label string) bool {
	_, ok := t.Labels[label]
	return ok
}

// NewTask constructs a Task in open status with sane defaults, per §3.
func NewTask(title, description string, typ TaskType) *Task {
	now := time.Now()
	return &Task{
		ShortID:     NewTaskShortID(),
		Title:       title,
		Description: description,
		Type:        typ,
		Priority:    2,
		Size:        SizeM,
		Complexity:  ComplexitySimple,
		Labels:      map[string]struct{}{},
		BlockedBy:   map[string]struct{}{},
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsSelfGuided reports whether the task is eligible for repeated
// re-dispatch with the same short_id (§4.D).
func (t *Task) IsSelfGuided() bool {
	return t.Type == TaskSelfguided || t.Agent == "selfguided"
}
