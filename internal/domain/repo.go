// Package domain holds the types shared across the daemon's core: repository
// descriptors, managed branches, review status, and the review-client port.
package domain

// AdminContact identifies someone to notify when a repository needs human
// attention.
type AdminContact struct {
	Name  string
	Email string
}

// RepositoryDescriptor is the immutable-per-cycle configuration for one
// managed repository (RD in spec.md §3).
type RepositoryDescriptor struct {
	// Name is the unique identifier used in logs, the Reporter snapshot,
	// and the CLI surface (add-repo/rm-repo/fetch).
	Name string

	// WorkingCopyPath is the local clone the daemon fetches into and
	// operates on.
	WorkingCopyPath string

	// Remote is the git remote name (usually "origin") refs are
	// fetched from and pushed to.
	Remote string

	// Description is a human-readable summary shown in the Reporter
	// snapshot and admin emails.
	Description string

	// Admins receive a notification when this repository hits a Local
	// inconsistency or Fatal config error (spec.md §7).
	Admins []AdminContact

	// SnoopURL, if set, is a cheap HTTP endpoint the URL watcher polls
	// to decide whether a full fetch is worth doing this cycle.
	SnoopURL string

	// ReviewProject is the identifier the Review client uses to locate
	// or create review objects for this repository (e.g. an "owner/repo"
	// slug when the review client is GitHub-backed).
	ReviewProject string
}

// Validate reports the first structural problem found in the descriptor.
// Called when the config is loaded so RDs never reach the scheduler half
// formed (spec.md §9 "closed product types with a schema check at the
// edges").
func (r RepositoryDescriptor) Validate() error {
	switch {
	case r.Name == "":
		return errMissingField("name")
	case r.WorkingCopyPath == "":
		return errMissingField("workingCopyPath")
	case r.Remote == "":
		return errMissingField("remote")
	case r.ReviewProject == "":
		return errMissingField("reviewProject")
	default:
		return nil
	}
}
