package store

import (
	"crypto/rand"
	"fmt"
	"regexp"
)

// alphabet is lowercase base32: the spec calls for "lowercase base32
// chars" for short ids. We use the lowercase RFC 4648 alphabet minus
// padding, matching the teacher's own hand-rolled TaskID generator
// (internal/task/id.go) generalized to a parametric prefix/length.
const alphabet = "abcdefghijklmnopqrstuvwxyz234567"

const idSuffixLen = 6

var idPattern = regexp.MustCompile(`^[a-z2-7]{2,6}$`)

// newShortID generates a new id of the form "<prefix>-xxxxxx".
func newShortID(prefix string) string {
	b := make([]byte, idSuffixLen)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("store: failed to generate random id: %v", err))
	}
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return prefix + string(b)
}

// validSuffix reports whether suffix looks like a (possibly partial) id
// suffix: 2-6 lowercase base32 characters. Partial-id resolution requires
// at least 2 characters per §4.A.
func validSuffix(suffix string) bool {
	return idPattern.MatchString(suffix)
}

const (
	// TaskIDPrefix is the short_id prefix for tasks: "f-" + 6 chars.
	TaskIDPrefix = "f-"
	// EpicIDPrefix is the short_id prefix for epics: "e-" + 6 chars.
	EpicIDPrefix = "e-"
	// ReviewIDPrefix is the short_id prefix for reviews: "r-" + 6 chars.
	ReviewIDPrefix = "r-"
	// RunIDPrefix is the short_id prefix for runs: "u-" + 6 chars.
	RunIDPrefix = "u-"
)

// NewTaskShortID generates a new task short_id.
func NewTaskShortID() string { return newShortID(TaskIDPrefix) }

// NewEpicShortID generates a new epic short_id.
func NewEpicShortID() string { return newShortID(EpicIDPrefix) }

// NewReviewShortID generates a new review short_id.
func NewReviewShortID() string { return newShortID(ReviewIDPrefix) }

// NewRunShortID generates a new run short_id.
func NewRunShortID() string { return newShortID(RunIDPrefix) }
