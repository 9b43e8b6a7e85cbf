package branchsm

import (
	"context"

	"github.com/arcyd/arcyd/internal/gitdriver"
)

// GitPort is the subset of the C6 Git driver the state machine drives.
// Defined locally so the state machine can be exercised against a fake in
// tests without a real working copy.
type GitPort interface {
	Checkout(ctx context.Context, branch string) error
	NewBranchFrom(ctx context.Context, newBranch, base string, force bool) error
	DiffRange(ctx context.Context, base, tip string, context int) ([]byte, error)
	DiffRangeNameOnly(ctx context.Context, base, tip string) ([]byte, error)
	RevisionsBetween(ctx context.Context, base, tip string) ([]gitdriver.Commit, error)
	SquashMergeIntoHead(ctx context.Context, source, message string, author gitdriver.Signature) error
	MergeIntoArchive(ctx context.Context, kind, sourceHash, message string) error
	Push(ctx context.Context, branch, remote string) error
	PushForce(ctx context.Context, branch, remote string) error
	PushAsymmetric(ctx context.Context, local, remoteRef, remote string) error
	PushDelete(ctx context.Context, branch, remote string) error
	ResolveRef(ctx context.Context, ref string) (string, error)
	ResetHard(ctx context.Context, ref string) error
}
