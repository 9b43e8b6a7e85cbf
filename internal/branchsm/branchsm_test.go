package branchsm_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcyd/arcyd/internal/branchsm"
	"github.com/arcyd/arcyd/internal/domain"
	"github.com/arcyd/arcyd/internal/gitdriver"
	"github.com/arcyd/arcyd/internal/identity"
	"github.com/arcyd/arcyd/internal/reviewstate"
)

type fakeGit struct {
	revisions    map[string][]gitdriver.Commit
	diffRange    map[string][]byte
	diffName     map[string][]byte
	resolvedRef  map[string]string
	squashErr    error
	pushErr      error

	checkedOut    []string
	newBranches   map[string]string
	pushed        []string
	pushedForce   []string
	pushedAsym    []string
	deleted       []string
	archiveMerges []string
	resetTo       []string
}

func newFakeGit() *fakeGit {
	return &fakeGit{
		revisions:   make(map[string][]gitdriver.Commit),
		diffRange:   make(map[string][]byte),
		diffName:    make(map[string][]byte),
		resolvedRef: make(map[string]string),
		newBranches: make(map[string]string),
	}
}

func revKey(base, tip string) string { return base + "->" + tip }

func (f *fakeGit) Checkout(ctx context.Context, branch string) error {
	f.checkedOut = append(f.checkedOut, branch)
	return nil
}

func (f *fakeGit) NewBranchFrom(ctx context.Context, newBranch, base string, force bool) error {
	f.newBranches[newBranch] = base
	return nil
}

func (f *fakeGit) DiffRange(ctx context.Context, base, tip string, context int) ([]byte, error) {
	if d, ok := f.diffRange[revKey(base, tip)]; ok {
		return d, nil
	}
	return []byte("diff"), nil
}

func (f *fakeGit) DiffRangeNameOnly(ctx context.Context, base, tip string) ([]byte, error) {
	if d, ok := f.diffName[revKey(base, tip)]; ok {
		return d, nil
	}
	return []byte("file.go"), nil
}

func (f *fakeGit) RevisionsBetween(ctx context.Context, base, tip string) ([]gitdriver.Commit, error) {
	return f.revisions[revKey(base, tip)], nil
}

func (f *fakeGit) SquashMergeIntoHead(ctx context.Context, source, message string, author gitdriver.Signature) error {
	return f.squashErr
}

func (f *fakeGit) MergeIntoArchive(ctx context.Context, kind, sourceHash, message string) error {
	f.archiveMerges = append(f.archiveMerges, kind+":"+sourceHash+":"+message)
	return nil
}

func (f *fakeGit) Push(ctx context.Context, branch, remote string) error {
	f.pushed = append(f.pushed, branch)
	return f.pushErr
}

func (f *fakeGit) PushForce(ctx context.Context, branch, remote string) error {
	f.pushedForce = append(f.pushedForce, branch)
	return nil
}

func (f *fakeGit) PushAsymmetric(ctx context.Context, local, remoteRef, remote string) error {
	f.pushedAsym = append(f.pushedAsym, local+"->"+remoteRef)
	return nil
}

func (f *fakeGit) PushDelete(ctx context.Context, branch, remote string) error {
	f.deleted = append(f.deleted, branch)
	return nil
}

func (f *fakeGit) ResolveRef(ctx context.Context, ref string) (string, error) {
	if h, ok := f.resolvedRef[ref]; ok {
		return h, nil
	}
	return "hash-" + ref, nil
}

func (f *fakeGit) ResetHard(ctx context.Context, ref string) error {
	f.resetTo = append(f.resetTo, ref)
	return nil
}

type fakeReview struct {
	createID      int
	createErr     error
	updateDiffErr error
	closeErr      error
	abandonErr    error
	comments      []string
	closed        []int
	abandoned     []int
}

func (f *fakeReview) Create(ctx context.Context, req domain.ReviewRequest) (int, error) {
	return f.createID, f.createErr
}
func (f *fakeReview) UpdateDiff(ctx context.Context, id int, diff string) error { return f.updateDiffErr }
func (f *fakeReview) Comment(ctx context.Context, id int, text string) error {
	f.comments = append(f.comments, text)
	return nil
}
func (f *fakeReview) Close(ctx context.Context, id int) error {
	f.closed = append(f.closed, id)
	return f.closeErr
}
func (f *fakeReview) Abandon(ctx context.Context, id int, comment string) error {
	f.abandoned = append(f.abandoned, id)
	return f.abandonErr
}
func (f *fakeReview) QueryStatus(ctx context.Context, id int) (domain.ReviewStatus, error) {
	return domain.ReviewNeedsReview, nil
}
func (f *fakeReview) QueryStatuses(ctx context.Context, ids []int) (map[int]domain.ReviewStatus, error) {
	return nil, nil
}

func newAdvancer(t *testing.T, git *fakeGit, review *fakeReview, reviewStatus domain.ReviewStatus) *branchsm.Advancer {
	t.Helper()
	cache := reviewstate.New(func(ctx context.Context, ids []int) (map[int]domain.ReviewStatus, error) {
		out := make(map[int]domain.ReviewStatus)
		for _, id := range ids {
			out[id] = reviewStatus
		}
		return out, nil
	})
	ids := identity.New(func(ctx context.Context, names []string) (map[string]int, []string, error) {
		out := make(map[string]int)
		var unknown []string
		for i, n := range names {
			if n == "ghost" {
				unknown = append(unknown, n)
				continue
			}
			out[n] = i + 1
		}
		return out, unknown, nil
	}, nil)
	return branchsm.New(git, review, cache, ids, branchsm.Config{Remote: "origin", DiffContextLines: 3, DiffByteBudget: 1 << 20})
}

func freshProposal(hash string) domain.ManagedBranch {
	return domain.ManagedBranch{
		Base: "master", Description: "feature-1",
		HasReview: true, ReviewBranch: "r/master/feature-1", ReviewHash: hash,
	}
}

func TestCreateReviewTransitionsNewToOK(t *testing.T) {
	ctx := context.Background()
	git := newFakeGit()
	git.revisions[revKey("master", "r/master/feature-1")] = []gitdriver.Commit{
		{Hash: "c1", Author: gitdriver.Signature{Name: "Dev", Email: "dev@example.com"}, Message: "Title\n\nTest Plan: x\nReviewers: alice\n"},
	}
	review := &fakeReview{createID: 42}
	a := newAdvancer(t, git, review, domain.ReviewNeedsReview)

	mb, err := a.Advance(ctx, "master", freshProposal("tip-hash"))
	require.NoError(t, err)
	assert.True(t, mb.HasTracker)
	assert.Equal(t, domain.StatusOK, mb.Tracker.Status)
	assert.Equal(t, 42, mb.Tracker.ReviewID)
	assert.Equal(t, "tip-hash", mb.TrackerHash)
	assert.Contains(t, git.pushedForce, mb.TrackerBranch)
}

func TestCreateReviewUnknownReviewerMarksBadInReview(t *testing.T) {
	ctx := context.Background()
	git := newFakeGit()
	git.revisions[revKey("master", "r/master/feature-1")] = []gitdriver.Commit{
		{Hash: "c1", Message: "Title\n\nReviewers: ghost\n"},
	}
	review := &fakeReview{createID: 42}
	a := newAdvancer(t, git, review, domain.ReviewNeedsReview)

	mb, err := a.Advance(ctx, "master", freshProposal("tip-hash"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBadInReview, mb.Tracker.Status)
	assert.False(t, mb.Tracker.HasReviewID)
	assert.Empty(t, review.comments, "no review exists yet, so no comment is posted")
}

func TestCreateReviewOversizeDiffMarksBadInReview(t *testing.T) {
	ctx := context.Background()
	git := newFakeGit()
	git.revisions[revKey("master", "r/master/feature-1")] = []gitdriver.Commit{
		{Hash: "c1", Message: "Title\n"},
	}
	big := make([]byte, 10)
	git.diffRange[revKey("master", "r/master/feature-1")] = big
	git.diffName[revKey("master", "r/master/feature-1")] = big
	review := &fakeReview{createID: 42}
	a := branchsm.New(git, review, reviewStateCacheFor(domain.ReviewNeedsReview), identityCacheOK(), branchsm.Config{Remote: "origin", DiffContextLines: 3, DiffByteBudget: 1})

	mb, err := a.Advance(ctx, "master", freshProposal("tip-hash"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBadInReview, mb.Tracker.Status)
}

func reviewStateCacheFor(status domain.ReviewStatus) *reviewstate.Cache {
	return reviewstate.New(func(ctx context.Context, ids []int) (map[int]domain.ReviewStatus, error) {
		out := make(map[int]domain.ReviewStatus)
		for _, id := range ids {
			out[id] = status
		}
		return out, nil
	})
}

func identityCacheOK() *identity.Cache {
	return identity.New(func(ctx context.Context, names []string) (map[string]int, []string, error) {
		out := make(map[string]int)
		for i, n := range names {
			out[n] = i + 1
		}
		return out, nil, nil
	}, nil)
}

func trackedOK(reviewID int, reviewHash, trackerHash string) domain.ManagedBranch {
	return domain.ManagedBranch{
		Base: "master", Description: "feature-1",
		HasReview: true, ReviewBranch: "r/master/feature-1", ReviewHash: reviewHash,
		HasTracker: true, TrackerBranch: "dev/arcyd/ok/feature-1/master/" + strconv.Itoa(reviewID), TrackerHash: trackerHash,
		Tracker: domain.TrackerName{Status: domain.StatusOK, Description: "feature-1", Base: "master", ReviewID: reviewID, HasReviewID: true},
	}
}

func TestUpdateDiffMovesTrackerOnTipAdvance(t *testing.T) {
	ctx := context.Background()
	git := newFakeGit()
	git.revisions[revKey("master", "r/master/feature-1")] = []gitdriver.Commit{
		{Hash: "c2", Message: "Title\n\nReviewers: alice\n"},
	}
	review := &fakeReview{}
	a := newAdvancer(t, git, review, domain.ReviewNeedsReview)

	mb, err := a.Advance(ctx, "master", trackedOK(42, "new-tip", "old-tip"))
	require.NoError(t, err)
	assert.Equal(t, "new-tip", mb.TrackerHash)
	assert.Equal(t, domain.StatusOK, mb.Tracker.Status)
}

func TestLandSuccess(t *testing.T) {
	ctx := context.Background()
	git := newFakeGit()
	git.revisions[revKey("master", "r/master/feature-1")] = []gitdriver.Commit{
		{Hash: "c1", Author: gitdriver.Signature{Name: "Dev", Email: "dev@example.com"}, Message: "Title\n"},
	}
	git.resolvedRef["master"] = "landed-hash"
	review := &fakeReview{}
	a := newAdvancer(t, git, review, domain.ReviewAccepted)

	mb, err := a.Advance(ctx, "master", trackedOK(42, "tip", "tip"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLanded, mb.Tracker.Status)
	assert.Contains(t, git.pushed, "master")
	assert.Contains(t, git.deleted, "r/master/feature-1")
	assert.Len(t, git.archiveMerges, 1)
	assert.Contains(t, git.pushedAsym, domain.LandedArchiveBranch+"->"+domain.LandedArchiveRef)
	assert.Equal(t, []int{42}, review.closed)
}

func TestLandConflictMarksBadLand(t *testing.T) {
	ctx := context.Background()
	git := newFakeGit()
	git.squashErr = assertError{}
	review := &fakeReview{}
	a := newAdvancer(t, git, review, domain.ReviewAccepted)

	mb, err := a.Advance(ctx, "master", trackedOK(42, "tip", "tip"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBadLand, mb.Tracker.Status)
	assert.NotContains(t, git.pushed, "master")
	assert.Len(t, git.resetTo, 1)
	assert.Len(t, review.comments, 1)
}

type assertError struct{}

func (assertError) Error() string { return "merge conflict" }

func TestAbandonZombie(t *testing.T) {
	ctx := context.Background()
	git := newFakeGit()
	review := &fakeReview{}
	a := newAdvancer(t, git, review, domain.ReviewNeedsReview)

	mb := domain.ManagedBranch{
		Base: "master", Description: "feature-1",
		HasTracker: true, TrackerBranch: "dev/arcyd/ok/feature-1/master/42", TrackerHash: "last-known-tip",
		Tracker: domain.TrackerName{Status: domain.StatusOK, Description: "feature-1", Base: "master", ReviewID: 42, HasReviewID: true},
	}
	out, err := a.Advance(ctx, "master", mb)
	require.NoError(t, err)
	assert.False(t, out.HasTracker)
	assert.Equal(t, []int{42}, review.abandoned)
	assert.Len(t, git.archiveMerges, 1)
	assert.Contains(t, git.deleted, "dev/arcyd/ok/feature-1/master/42")
}

func TestTerminalLandedIsNoOp(t *testing.T) {
	ctx := context.Background()
	git := newFakeGit()
	review := &fakeReview{}
	a := newAdvancer(t, git, review, domain.ReviewNeedsReview)

	mb := domain.ManagedBranch{
		Base: "master", Description: "feature-1",
		HasTracker: true, TrackerBranch: "dev/arcyd/landed/feature-1/master/42",
		Tracker: domain.TrackerName{Status: domain.StatusLanded, Description: "feature-1", Base: "master", ReviewID: 42, HasReviewID: true},
	}
	out, err := a.Advance(ctx, "master", mb)
	require.NoError(t, err)
	assert.Equal(t, mb, out)
	assert.Empty(t, git.checkedOut)
	assert.Empty(t, git.pushed)
	assert.Empty(t, git.pushedForce)
}
