package domain

import "context"

// ReviewStatus is the opaque review object's lifecycle status, as reported
// by the Review client (spec.md §3).
type ReviewStatus string

const (
	ReviewNeedsReview   ReviewStatus = "needs_review"
	ReviewNeedsRevision ReviewStatus = "needs_revision"
	ReviewAccepted      ReviewStatus = "accepted"
	ReviewClosed        ReviewStatus = "closed"
	ReviewAbandoned     ReviewStatus = "abandoned"
)

// ReviewRequest describes a review object to create or update.
type ReviewRequest struct {
	Project   string
	Branch    string
	Base      string
	Title     string
	TestPlan  string
	Diff      string
	Reviewers []string
}

// ReviewClient is the narrow port the core consumes for the external
// code-review service. It is deliberately opaque beyond this method set
// (spec.md §1, §3): the core never reasons about the service's own data
// model beyond {id, status}.
type ReviewClient interface {
	// Create materializes a new review object and returns its id.
	Create(ctx context.Context, req ReviewRequest) (id int, err error)

	// UpdateDiff attaches a new diff to an existing review, keeping it in
	// sync with further pushes to the review branch.
	UpdateDiff(ctx context.Context, id int, diff string) error

	// Comment posts a comment, used both for protocol-precondition
	// failures and for abandonment notices.
	Comment(ctx context.Context, id int, text string) error

	// Close marks a review as landed.
	Close(ctx context.Context, id int) error

	// Abandon closes a review with an abandonment comment, used when the
	// review branch disappears while the review is still open.
	Abandon(ctx context.Context, id int, comment string) error

	// QueryStatus returns a single review's current status.
	QueryStatus(ctx context.Context, id int) (ReviewStatus, error)

	// QueryStatuses batch-queries many reviews in one round-trip; backs
	// the review-state cache's refresh_active (spec.md §4.4).
	QueryStatuses(ctx context.Context, ids []int) (map[int]ReviewStatus, error)
}
