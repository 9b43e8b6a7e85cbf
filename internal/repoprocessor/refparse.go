package repoprocessor

import (
	"strings"

	"github.com/arcyd/arcyd/internal/domain"
	"github.com/arcyd/arcyd/internal/gitdriver"
)

// FetchRefspecs returns the two refspecs every fetch uses (spec.md §4.8
// step 2, §6): one standard mirror of heads, and one remapping the
// archive namespace onto a local private prefix so list_refs() can see
// it without polluting refs/heads with archive branches directly.
func FetchRefspecs(remote string) []string {
	return []string{
		"+refs/heads/*:refs/remotes/" + remote + "/*",
		"+refs/arcyd/*:refs/heads/__private_arcyd/*",
	}
}

// ParseManagedBranches derives the MB map from a ref snapshot, restricted
// to remote's remote-tracking namespace (spec.md §4.8 steps 3-4).
func ParseManagedBranches(refs []gitdriver.RefEntry, remote string) []domain.ManagedBranch {
	prefix := "refs/remotes/" + remote + "/"
	byDescription := make(map[string]*domain.ManagedBranch)

	order := make([]string, 0)
	get := func(description string) *domain.ManagedBranch {
		mb, ok := byDescription[description]
		if !ok {
			mb = &domain.ManagedBranch{Description: description}
			byDescription[description] = mb
			order = append(order, description)
		}
		return mb
	}

	for _, ref := range refs {
		shortName, ok := strings.CutPrefix(ref.Ref, prefix)
		if !ok {
			continue
		}
		if base, description, ok := domain.ParseReviewBranchName(shortName); ok {
			mb := get(description)
			mb.Base = base
			mb.HasReview = true
			mb.ReviewBranch = shortName
			mb.ReviewHash = ref.Hash
			continue
		}
		if tracker, ok := domain.ParseTrackerBranchName(shortName); ok {
			mb := get(tracker.Description)
			mb.Base = tracker.Base
			mb.HasTracker = true
			mb.TrackerBranch = shortName
			mb.TrackerHash = ref.Hash
			mb.Tracker = tracker
		}
	}

	out := make([]domain.ManagedBranch, 0, len(order))
	for _, description := range order {
		out = append(out, *byDescription[description])
	}
	return out
}
