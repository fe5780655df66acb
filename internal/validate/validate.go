// Package validate holds the field-validation rules shared by task and
// epic creation, built on valgo the way the teacher validates inbound
// API payloads.
package validate

import (
	"fmt"
	"strings"

	"github.com/ashleyhindle/fuel-sub006/internal/store"
	"github.com/ashleyhindle/fuel-sub006/internal/store/errs"
	"github.com/cohesivestack/valgo"
)

// TaskFields is the set of user-suppliable fields validated before a Task
// is persisted. Zero values are treated as "not set" and defaulted by
// store.NewTask, except where noted.
type TaskFields struct {
	Title      string
	Type       store.TaskType
	Priority   *int
	Size       store.TaskSize
	Complexity store.TaskComplexity
}

// Task validates the fields of a prospective Task. A non-nil error wraps
// store/errs.ErrInvalidField with the offending field names.
func Task(f TaskFields) error {
	v := valgo.Is(valgo.String(strings.TrimSpace(f.Title), "title").Not().Blank())

	if f.Type != "" {
		v.Is(valgo.String(string(f.Type), "type").InSlice(taskTypeStrings()))
	}
	if f.Priority != nil {
		v.Is(valgo.Int(*f.Priority, "priority").Between(0, 4))
	}
	if f.Size != "" {
		v.Is(valgo.String(string(f.Size), "size").InSlice(sizeStrings()))
	}
	if f.Complexity != "" {
		v.Is(valgo.String(string(f.Complexity), "complexity").InSlice(complexityStrings()))
	}

	if v.Valid() {
		return nil
	}
	return fieldError(v)
}

// EpicFields is the set of user-suppliable fields validated before an
// Epic is persisted.
type EpicFields struct {
	Title string
}

// Epic validates the fields of a prospective Epic.
func Epic(f EpicFields) error {
	v := valgo.Is(valgo.String(strings.TrimSpace(f.Title), "title").Not().Blank())
	if v.Valid() {
		return nil
	}
	return fieldError(v)
}

func fieldError(v *valgo.Validation) error {
	var msgs []string
	for field, errs := range v.Errors() {
		for _, m := range errs.Messages() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", field, m))
		}
	}
	return fmt.Errorf("%w: %s", errs.ErrInvalidField, strings.Join(msgs, "; "))
}

func taskTypeStrings() []string {
	return []string{"bug", "fix", "feature", "task", "epic", "chore", "docs", "test", "refactor", "selfguided"}
}

func sizeStrings() []string {
	return []string{"xs", "s", "m", "l", "xl"}
}

func complexityStrings() []string {
	return []string{"trivial", "simple", "moderate", "complex"}
}
