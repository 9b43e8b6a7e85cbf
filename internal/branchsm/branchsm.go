// Package branchsm implements the branch state machine (spec.md §4.7, C7):
// advancing one managed branch (MB) by exactly one state-machine step per
// cycle, including the landing protocol and archive-branch bookkeeping.
package branchsm

import (
	"context"
	"errors"
	"fmt"

	"github.com/arcyd/arcyd/internal/domain"
	"github.com/arcyd/arcyd/internal/gitdriver"
	"github.com/arcyd/arcyd/internal/identity"
	"github.com/arcyd/arcyd/internal/reviewstate"
)

// Config holds the per-repository tunables the state machine needs.
type Config struct {
	Remote string

	// DiffContextLines is the context width diff_range is first tried at;
	// the diff-size policy retries at 0, then name-only, before giving up
	// (spec.md §4.7).
	DiffContextLines int
	DiffByteBudget   int
}

// Advancer drives the branch state machine for a single repository.
type Advancer struct {
	git      GitPort
	review   domain.ReviewClient
	reviews  *reviewstate.Cache
	identity *identity.Cache
	cfg      Config
}

// New constructs an Advancer.
func New(git GitPort, review domain.ReviewClient, reviews *reviewstate.Cache, ids *identity.Cache, cfg Config) *Advancer {
	return &Advancer{git: git, review: review, reviews: reviews, identity: ids, cfg: cfg}
}

// Advance runs one state-machine step for mb and returns its updated
// state. A terminal (landed) branch is returned unchanged (spec.md §8
// property 3).
func (a *Advancer) Advance(ctx context.Context, base string, mb domain.ManagedBranch) (domain.ManagedBranch, error) {
	if mb.Status().Terminal() {
		return mb, nil
	}
	switch {
	case mb.IsZombie():
		return a.abandonZombie(ctx, base, mb)
	case mb.IsFreshProposal():
		return a.createReview(ctx, base, mb)
	case mb.HasReview && mb.HasTracker:
		return a.advanceTracked(ctx, base, mb)
	default:
		return mb, nil
	}
}

func (a *Advancer) advanceTracked(ctx context.Context, base string, mb domain.ManagedBranch) (domain.ManagedBranch, error) {
	switch mb.Tracker.Status {
	case domain.StatusNew:
		return a.createReview(ctx, base, mb)

	case domain.StatusOK:
		status, err := a.reviews.Get(ctx, mb.Tracker.ReviewID)
		if err != nil {
			return mb, err
		}
		switch status {
		case domain.ReviewAccepted, domain.ReviewClosed:
			return a.land(ctx, base, mb)
		case domain.ReviewAbandoned:
			return a.abandonReviewClosedExternally(ctx, base, mb)
		default:
			if mb.ReviewHash != mb.TrackerHash {
				return a.updateDiff(ctx, base, mb)
			}
			return mb, nil
		}

	case domain.StatusBadInReview, domain.StatusBadLand:
		// A fresh push to the review branch is the only recovery path the
		// daemon offers a stuck branch (spec.md's event table doesn't
		// define one explicitly; re-running the normal diff/update path
		// on a new tip lets it earn its way back to ok).
		if mb.ReviewHash != mb.TrackerHash {
			return a.updateDiff(ctx, base, mb)
		}
		return mb, nil

	default:
		return mb, nil
	}
}

func (a *Advancer) createReview(ctx context.Context, base string, mb domain.ManagedBranch) (domain.ManagedBranch, error) {
	commits, err := a.git.RevisionsBetween(ctx, base, mb.ReviewBranch)
	if err != nil {
		return mb, err
	}
	if len(commits) == 0 {
		return mb, nil
	}
	tip := commits[len(commits)-1]

	pm, perr := ParseCommitMessage(tip.Message)
	if perr != nil {
		return a.markBadInReview(ctx, base, mb, 0, false, mb.ReviewHash, "malformed commit message: "+perr.Error())
	}
	if protoErr := a.resolveReviewers(ctx, pm.Reviewers); protoErr != nil {
		var pe *domain.ProtocolPreconditionError
		if errors.As(protoErr, &pe) {
			return a.markBadInReview(ctx, base, mb, 0, false, mb.ReviewHash, pe.Reason)
		}
		return mb, protoErr
	}
	diff, oversize, derr := a.sizedDiff(ctx, base, mb.ReviewBranch)
	if derr != nil {
		return mb, derr
	}
	if oversize {
		return a.markBadInReview(ctx, base, mb, 0, false, mb.ReviewHash, "diff exceeds configured byte budget")
	}

	id, err := a.review.Create(ctx, domain.ReviewRequest{
		Branch:    mb.ReviewBranch,
		Base:      base,
		Title:     pm.Title,
		TestPlan:  pm.TestPlan,
		Diff:      string(diff),
		Reviewers: pm.Reviewers,
	})
	if err != nil {
		return mb, err
	}

	newName, err := a.moveTracker(ctx, base, mb, domain.StatusOK, id, true, mb.ReviewHash)
	if err != nil {
		return mb, err
	}
	mb.HasTracker = true
	mb.TrackerBranch = newName
	mb.TrackerHash = mb.ReviewHash
	mb.Tracker = domain.TrackerName{Status: domain.StatusOK, Description: mb.Description, Base: base, ReviewID: id, HasReviewID: true}
	return mb, nil
}

func (a *Advancer) updateDiff(ctx context.Context, base string, mb domain.ManagedBranch) (domain.ManagedBranch, error) {
	commits, err := a.git.RevisionsBetween(ctx, base, mb.ReviewBranch)
	if err != nil {
		return mb, err
	}
	if len(commits) == 0 {
		return mb, nil
	}
	tip := commits[len(commits)-1]

	pm, perr := ParseCommitMessage(tip.Message)
	if perr != nil {
		return a.markBadInReview(ctx, base, mb, mb.Tracker.ReviewID, true, mb.ReviewHash, "malformed commit message: "+perr.Error())
	}
	if protoErr := a.resolveReviewers(ctx, pm.Reviewers); protoErr != nil {
		var pe *domain.ProtocolPreconditionError
		if errors.As(protoErr, &pe) {
			return a.markBadInReview(ctx, base, mb, mb.Tracker.ReviewID, true, mb.ReviewHash, pe.Reason)
		}
		return mb, protoErr
	}
	diff, oversize, derr := a.sizedDiff(ctx, base, mb.ReviewBranch)
	if derr != nil {
		return mb, derr
	}
	if oversize {
		return a.markBadInReview(ctx, base, mb, mb.Tracker.ReviewID, true, mb.ReviewHash, "diff exceeds configured byte budget")
	}

	if err := a.review.UpdateDiff(ctx, mb.Tracker.ReviewID, string(diff)); err != nil {
		return mb, err
	}
	newName, err := a.moveTracker(ctx, base, mb, domain.StatusOK, mb.Tracker.ReviewID, true, mb.ReviewHash)
	if err != nil {
		return mb, err
	}
	mb.TrackerBranch = newName
	mb.TrackerHash = mb.ReviewHash
	mb.Tracker.Status = domain.StatusOK
	return mb, nil
}

// land executes the six-step landing protocol of spec.md §4.7. Any
// failure through step 3 unwinds the local base branch and falls back to
// bad_land; nothing is pushed to the remote beyond what already
// succeeded.
func (a *Advancer) land(ctx context.Context, base string, mb domain.ManagedBranch) (domain.ManagedBranch, error) {
	preHash, err := a.git.ResolveRef(ctx, base)
	if err != nil {
		return mb, err
	}
	if err := a.git.Checkout(ctx, base); err != nil {
		return mb, err
	}

	commits, err := a.git.RevisionsBetween(ctx, base, mb.ReviewBranch)
	if err != nil {
		_ = a.git.ResetHard(ctx, preHash)
		return mb, err
	}
	var firstAuthor gitdriver.Signature
	var pm ParsedMessage
	if len(commits) > 0 {
		firstAuthor = commits[0].Author
		pm, _ = ParseCommitMessage(commits[len(commits)-1].Message)
	}
	landMsg := formatLandingMessage(pm)

	if err := a.git.SquashMergeIntoHead(ctx, mb.ReviewBranch, landMsg, firstAuthor); err != nil {
		_ = a.git.ResetHard(ctx, preHash)
		return a.markBadLand(ctx, base, mb, "squash-merge failed: "+err.Error())
	}

	landHash, err := a.git.ResolveRef(ctx, base)
	if err != nil {
		_ = a.git.ResetHard(ctx, preHash)
		return mb, err
	}

	if err := a.git.Push(ctx, base, a.cfg.Remote); err != nil {
		_ = a.git.ResetHard(ctx, preHash)
		return a.markBadLand(ctx, base, mb, "push rejected: "+err.Error())
	}

	if err := a.git.PushDelete(ctx, mb.ReviewBranch, a.cfg.Remote); err != nil {
		return mb, err
	}

	newTrackerName, err := a.moveTracker(ctx, base, mb, domain.StatusLanded, mb.Tracker.ReviewID, mb.Tracker.HasReviewID, landHash)
	if err != nil {
		return mb, err
	}

	if err := a.review.Close(ctx, mb.Tracker.ReviewID); err != nil {
		return mb, err
	}

	archiveMsg := fmt.Sprintf("landed %s on %s as %s\n\nwith message:\n%s", mb.ReviewBranch, base, landHash, landMsg)
	if err := a.git.MergeIntoArchive(ctx, gitdriver.ArchiveLanded, landHash, archiveMsg); err != nil {
		return mb, err
	}
	if err := a.git.PushAsymmetric(ctx, domain.LandedArchiveBranch, domain.LandedArchiveRef, a.cfg.Remote); err != nil {
		return mb, err
	}

	mb.TrackerBranch = newTrackerName
	mb.TrackerHash = landHash
	mb.Tracker = domain.TrackerName{Status: domain.StatusLanded, Description: mb.Description, Base: base, ReviewID: mb.Tracker.ReviewID, HasReviewID: mb.Tracker.HasReviewID}
	return mb, nil
}

func (a *Advancer) abandonZombie(ctx context.Context, base string, mb domain.ManagedBranch) (domain.ManagedBranch, error) {
	if mb.Tracker.HasReviewID {
		if err := a.review.Abandon(ctx, mb.Tracker.ReviewID, "The review branch was deleted; abandoning."); err != nil {
			return mb, err
		}
	}
	reviewBranchName := domain.ReviewBranchName(mb.Tracker.Base, mb.Tracker.Description)
	msg := fmt.Sprintf("abandoned %s on %s\n\nwith message:\nbranch deleted while review was open\n", reviewBranchName, base)
	if err := a.git.MergeIntoArchive(ctx, gitdriver.ArchiveAbandoned, mb.TrackerHash, msg); err != nil {
		return mb, err
	}
	if err := a.git.PushAsymmetric(ctx, domain.AbandonedArchiveBranch, domain.AbandonedArchiveRef, a.cfg.Remote); err != nil {
		return mb, err
	}
	if err := a.git.PushDelete(ctx, mb.TrackerBranch, a.cfg.Remote); err != nil {
		return mb, err
	}
	mb.HasTracker = false
	mb.TrackerBranch = ""
	mb.TrackerHash = ""
	mb.Tracker = domain.TrackerName{}
	return mb, nil
}

// abandonReviewClosedExternally handles a review object that reports
// "abandoned" while its branch is still present — distinct from
// abandonZombie, which fires when the branch itself disappeared.
func (a *Advancer) abandonReviewClosedExternally(ctx context.Context, base string, mb domain.ManagedBranch) (domain.ManagedBranch, error) {
	msg := fmt.Sprintf("abandoned %s on %s\n\nwith message:\nreview was abandoned externally\n", mb.ReviewBranch, base)
	if err := a.git.MergeIntoArchive(ctx, gitdriver.ArchiveAbandoned, mb.ReviewHash, msg); err != nil {
		return mb, err
	}
	if err := a.git.PushAsymmetric(ctx, domain.AbandonedArchiveBranch, domain.AbandonedArchiveRef, a.cfg.Remote); err != nil {
		return mb, err
	}
	if err := a.git.PushDelete(ctx, mb.ReviewBranch, a.cfg.Remote); err != nil {
		return mb, err
	}
	if err := a.git.PushDelete(ctx, mb.TrackerBranch, a.cfg.Remote); err != nil {
		return mb, err
	}
	mb.HasReview = false
	mb.HasTracker = false
	mb.ReviewBranch = ""
	mb.TrackerBranch = ""
	mb.TrackerHash = ""
	mb.Tracker = domain.TrackerName{}
	return mb, nil
}

func (a *Advancer) markBadInReview(ctx context.Context, base string, mb domain.ManagedBranch, reviewID int, hasReviewID bool, atHash, reason string) (domain.ManagedBranch, error) {
	if hasReviewID {
		if err := a.review.Comment(ctx, reviewID, "Arcyd could not process this branch: "+reason); err != nil {
			return mb, err
		}
	}
	newName, err := a.moveTracker(ctx, base, mb, domain.StatusBadInReview, reviewID, hasReviewID, atHash)
	if err != nil {
		return mb, err
	}
	mb.HasTracker = true
	mb.TrackerBranch = newName
	mb.TrackerHash = atHash
	mb.Tracker = domain.TrackerName{Status: domain.StatusBadInReview, Description: mb.Description, Base: base, ReviewID: reviewID, HasReviewID: hasReviewID}
	return mb, nil
}

func (a *Advancer) markBadLand(ctx context.Context, base string, mb domain.ManagedBranch, reason string) (domain.ManagedBranch, error) {
	if err := a.review.Comment(ctx, mb.Tracker.ReviewID, "Arcyd failed to land this review: "+reason); err != nil {
		return mb, err
	}
	newName, err := a.moveTracker(ctx, base, mb, domain.StatusBadLand, mb.Tracker.ReviewID, true, mb.ReviewHash)
	if err != nil {
		return mb, err
	}
	mb.TrackerBranch = newName
	mb.TrackerHash = mb.ReviewHash
	mb.Tracker.Status = domain.StatusBadLand
	return mb, nil
}

// moveTracker rewrites the tracker branch to a new name (the tracker name
// encodes status/description/base/review-id) at atHash, deleting the
// previous tracker ref if its name differs.
func (a *Advancer) moveTracker(ctx context.Context, base string, mb domain.ManagedBranch, status domain.BranchStatus, reviewID int, hasReviewID bool, atHash string) (string, error) {
	newName := domain.TrackerBranchName(domain.TrackerName{
		Status: status, Description: mb.Description, Base: base, ReviewID: reviewID, HasReviewID: hasReviewID,
	})
	if err := a.git.NewBranchFrom(ctx, newName, atHash, true); err != nil {
		return "", err
	}
	if err := a.git.PushForce(ctx, newName, a.cfg.Remote); err != nil {
		return "", err
	}
	if mb.HasTracker && mb.TrackerBranch != "" && mb.TrackerBranch != newName {
		if err := a.git.PushDelete(ctx, mb.TrackerBranch, a.cfg.Remote); err != nil {
			return "", err
		}
	}
	return newName, nil
}

// sizedDiff implements the diff-size policy of spec.md §4.7: try the
// configured context width, then context 0, then filename-only; oversize
// reports that even the filename-only fallback exceeded the budget.
func (a *Advancer) sizedDiff(ctx context.Context, base, branch string) (diff []byte, oversize bool, err error) {
	d, err := a.git.DiffRange(ctx, base, branch, a.cfg.DiffContextLines)
	if err != nil {
		return nil, false, err
	}
	if len(d) <= a.cfg.DiffByteBudget {
		return d, false, nil
	}
	d, err = a.git.DiffRange(ctx, base, branch, 0)
	if err != nil {
		return nil, false, err
	}
	if len(d) <= a.cfg.DiffByteBudget {
		return d, false, nil
	}
	d, err = a.git.DiffRangeNameOnly(ctx, base, branch)
	if err != nil {
		return nil, false, err
	}
	if len(d) <= a.cfg.DiffByteBudget {
		return d, false, nil
	}
	return nil, true, nil
}

func (a *Advancer) resolveReviewers(ctx context.Context, usernames []string) error {
	for _, name := range usernames {
		if _, err := a.identity.Phid(ctx, name); err != nil {
			var unknownErr *domain.UnknownUsernameError
			if errors.As(err, &unknownErr) {
				return &domain.ProtocolPreconditionError{Reason: fmt.Sprintf("unknown reviewer %q", name)}
			}
			return err
		}
	}
	return nil
}
