package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// BranchStatus is the state of a managed branch's tracker, encoded into the
// tracker branch name (spec.md §4.7).
type BranchStatus string

const (
	StatusNew         BranchStatus = "new"
	StatusOK          BranchStatus = "ok"
	StatusBadInReview BranchStatus = "bad_inreview"
	StatusBadLand     BranchStatus = "bad_land"
	StatusAbandoned   BranchStatus = "abandoned"
	StatusLanded      BranchStatus = "landed"
)

func (s BranchStatus) valid() bool {
	switch s {
	case StatusNew, StatusOK, StatusBadInReview, StatusBadLand, StatusAbandoned, StatusLanded:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further cycle may mutate a branch in this
// status (spec.md §8 property 3: state-machine monotonicity).
func (s BranchStatus) Terminal() bool {
	return s == StatusLanded
}

const (
	reviewBranchPrefix  = "r/"
	trackerBranchPrefix = "dev/arcyd/"
	noReviewID          = "none"

	// LandedArchiveBranch and AbandonedArchiveBranch are the local orphan
	// branches archive events are recorded to (spec.md §6).
	LandedArchiveBranch    = "__private_arcyd/landed"
	AbandonedArchiveBranch = "__private_arcyd/abandoned"

	// LandedArchiveRef and AbandonedArchiveRef are the remote refs those
	// branches are pushed to.
	LandedArchiveRef    = "refs/arcyd/landed"
	AbandonedArchiveRef = "refs/arcyd/abandoned"
)

// ReviewBranchName returns the bit-exact review branch name for a base and
// description: "r/<base>/<description>".
func ReviewBranchName(base, description string) string {
	return fmt.Sprintf("%s%s/%s", reviewBranchPrefix, base, description)
}

// ParseReviewBranchName decodes a review branch name into (base,
// description). ok is false if name does not follow the convention.
func ParseReviewBranchName(name string) (base, description string, ok bool) {
	rest, found := strings.CutPrefix(name, reviewBranchPrefix)
	if !found {
		return "", "", false
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// TrackerName is the decoded identity a tracker branch name carries.
type TrackerName struct {
	Status      BranchStatus
	Description string
	Base        string
	ReviewID    int // 0 when ReviewID is absent (HasReviewID is false)
	HasReviewID bool
}

// TrackerBranchName formats a TrackerName into the bit-exact tracker
// branch name: "dev/arcyd/<status>/<description>/<base>/<review-id-or-none>".
func TrackerBranchName(t TrackerName) string {
	id := noReviewID
	if t.HasReviewID {
		id = strconv.Itoa(t.ReviewID)
	}
	return fmt.Sprintf("%s%s/%s/%s/%s", trackerBranchPrefix, t.Status, t.Description, t.Base, id)
}

// ParseTrackerBranchName decodes a tracker branch name. ok is false if name
// does not follow the convention or carries an unrecognised status.
// Guarantees the naming round-trip property of spec.md §8 property 4:
// ParseTrackerBranchName(TrackerBranchName(t)) == t for every valid t.
func ParseTrackerBranchName(name string) (TrackerName, bool) {
	rest, found := strings.CutPrefix(name, trackerBranchPrefix)
	if !found {
		return TrackerName{}, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 4 {
		return TrackerName{}, false
	}
	status := BranchStatus(parts[0])
	if !status.valid() {
		return TrackerName{}, false
	}
	description, base, idPart := parts[1], parts[2], parts[3]
	if description == "" || base == "" {
		return TrackerName{}, false
	}
	if idPart == noReviewID {
		return TrackerName{Status: status, Description: description, Base: base}, true
	}
	id, err := strconv.Atoi(idPart)
	if err != nil {
		return TrackerName{}, false
	}
	return TrackerName{Status: status, Description: description, Base: base, ReviewID: id, HasReviewID: true}, true
}

// ManagedBranch is an (review branch, tracker branch) pair keyed by
// description (spec.md §3). Either Review or Tracker may be absent.
type ManagedBranch struct {
	Base        string
	Description string

	HasReview    bool
	ReviewBranch string
	ReviewHash   string // tip commit hash of the review branch, when present

	HasTracker    bool
	TrackerBranch string
	TrackerHash   string // tip commit hash the tracker branch currently points to
	Tracker       TrackerName
}

// IsZombie reports a tracker with no matching review branch: the review
// branch was deleted out from under an open review.
func (m ManagedBranch) IsZombie() bool {
	return !m.HasReview && m.HasTracker
}

// IsFreshProposal reports a review branch with no tracker yet.
func (m ManagedBranch) IsFreshProposal() bool {
	return m.HasReview && !m.HasTracker
}

// Status returns the branch's current state-machine status. A fresh
// proposal with no tracker is implicitly "new".
func (m ManagedBranch) Status() BranchStatus {
	if m.HasTracker {
		return m.Tracker.Status
	}
	return StatusNew
}
