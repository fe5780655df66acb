// Package errs defines the sentinel error kinds shared across the store
// and the daemon components that consume it, per the error-kind taxonomy
// of the dispatch core: validation errors are never retried, transient
// errors return a task to open, fatal errors end the daemon.
package errs

import "errors"

var (
	// ErrNotFound means a resolve/read found no matching entity.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguous means a partial id prefix matched more than one entity.
	ErrAmbiguous = errors.New("ambiguous id")
	// ErrInvalidField means an enum value or reference field was out of range.
	ErrInvalidField = errors.New("invalid field")
	// ErrCycleDetected means a blocked_by edge would create a dependency cycle.
	ErrCycleDetected = errors.New("cycle detected")
	// ErrInvalidTransition means a status transition isn't allowed by the
	// task/epic state machine (e.g. done -> done).
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict means an optimistic-locking claim lost a race to another writer.
	ErrConflict = errors.New("conflict")
)

// Ambiguous wraps ErrAmbiguous with the list of candidate ids that matched
// a partial id prefix, so callers can show them to the user.
type Ambiguous struct {
	Candidates []string
}

func (e *Ambiguous) Error() string {
	return "ambiguous id: " + joinShort(e.Candidates)
}

func (e *Ambiguous) Unwrap() error { return ErrAmbiguous }

func joinShort(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += id
	}
	return out
}
