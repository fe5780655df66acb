// Package review implements the Review Pipeline (§4.G): when review is
// enabled, a successfully finished task is routed through a reviewer
// agent run before it reaches `done`.
//
// Grounded on the teacher's internal/worker/markers.go line-marker
// parsing idiom (VERVE_PR_CREATED:, VERVE_STATUS:, ...), retargeted from
// PR/status markers to this spec's PASS/FAIL verdict markers.
package review

import (
	"fmt"
	"strings"
	"time"

	"context"

	"github.com/ashleyhindle/fuel-sub006/internal/logging"
	"github.com/ashleyhindle/fuel-sub006/internal/store"
)

// verdictMarker and issueMarker are the lines a reviewer agent emits to
// report its verdict, in the same "PREFIX:payload" shape as the
// teacher's markers.
const (
	verdictMarker = "FUEL_REVIEW_VERDICT:"
	issueMarker   = "FUEL_REVIEW_ISSUE:"
)

// Verdict is the parsed outcome of a reviewer run's output.
type Verdict struct {
	Pass   bool
	Issues []string
}

// ParseOutput scans a reviewer run's captured output for a verdict
// marker and any issue markers, per §4.G.
func ParseOutput(output string) Verdict {
	var v Verdict
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, verdictMarker):
			v.Pass = strings.TrimSpace(strings.TrimPrefix(line, verdictMarker)) == "PASS"
		case strings.HasPrefix(line, issueMarker):
			v.Issues = append(v.Issues, strings.TrimSpace(strings.TrimPrefix(line, issueMarker)))
		}
	}
	return v
}

// Pipeline wraps a Store with the review-enqueue/verdict-apply logic the
// Scheduler calls at the two relevant points in its tick (§4.E step 1,
// §4.G).
type Pipeline struct {
	store       *store.Store
	reviewAgent string
	logger      logging.Logger
}

// New builds a Pipeline. reviewAgent names the driver used for reviewer
// runs (the Glossary's `review_agent` config key).
func New(s *store.Store, reviewAgent string, logger logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Nop()
	}
	if reviewAgent == "" {
		reviewAgent = "claude"
	}
	return &Pipeline{store: s, reviewAgent: reviewAgent, logger: logger.With("component", "review_pipeline")}
}

// ReviewAgent returns the configured reviewer driver name, for the
// Scheduler to build a reviewer invocation with.
func (p *Pipeline) ReviewAgent() string {
	return p.reviewAgent
}

// StartReview transitions taskID to review status and creates a pending
// Review row, per §4.G's "instead of done, sets status to review". It
// does not dispatch the reviewer run itself — the Scheduler does that
// with the returned Review's TaskShortID and p.ReviewAgent().
func (p *Pipeline) StartReview(ctx context.Context, taskID string) (*store.Review, error) {
	reviewStatus := store.StatusReview
	if _, err := p.store.UpdateTask(ctx, taskID, store.UpdateTaskInput{Status: &reviewStatus}); err != nil {
		return nil, fmt.Errorf("review: transition task to review: %w", err)
	}
	rv := store.NewReview(taskID, p.reviewAgent)
	if err := p.store.Repo().CreateReview(ctx, rv); err != nil {
		return nil, fmt.Errorf("review: create review row: %w", err)
	}
	return rv, nil
}

// OnRunCompleted applies a reviewer run's outcome, per §4.G:
//   - exit 0, verdict PASS: Review -> passed, Task -> done
//   - exit 0, verdict FAIL: Review -> failed (with issues), Task -> open
//   - nonzero exit: Review -> failed with a generic issue, Task -> open
func (p *Pipeline) OnRunCompleted(ctx context.Context, review *store.Review, exitCode int, output string) error {
	now := time.Now()
	if exitCode != 0 {
		review.Status = store.ReviewFailed
		review.Issues = []string{"reviewer process exited nonzero"}
		review.CompletedAt = &now
		if err := p.store.Repo().UpdateReview(ctx, review); err != nil {
			return err
		}
		openStatus := store.StatusOpen
		_, err := p.store.UpdateTask(ctx, review.TaskShortID, store.UpdateTaskInput{Status: &openStatus})
		return err
	}

	verdict := ParseOutput(output)
	review.CompletedAt = &now
	if verdict.Pass {
		review.Status = store.ReviewPassed
		if err := p.store.Repo().UpdateReview(ctx, review); err != nil {
			return err
		}
		doneStatus := store.StatusDone
		_, err := p.store.UpdateTask(ctx, review.TaskShortID, store.UpdateTaskInput{Status: &doneStatus})
		return err
	}

	review.Status = store.ReviewFailed
	review.Issues = verdict.Issues
	if err := p.store.Repo().UpdateReview(ctx, review); err != nil {
		return err
	}
	openStatus := store.StatusOpen
	_, err := p.store.UpdateTask(ctx, review.TaskShortID, store.UpdateTaskInput{Status: &openStatus})
	return err
}
