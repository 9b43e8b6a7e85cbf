// Package gitdriver implements the Git driver (spec.md §4.6, C6): the
// narrow set of ref, diff, and push operations the branch state machine
// needs, plus the ident-attributes guard and archive-branch protocol.
//
// Reads that go-git can serve directly (ref listing, revision walking) use
// go-git; everything that mutates the working tree or talks to a remote
// shells out to the git binary, the same split the teacher's engine.go
// uses.
package gitdriver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	goGit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/arcyd/arcyd/internal/domain"
)

// RefEntry is one row of list_refs() (spec.md §4.6).
type RefEntry struct {
	Hash string
	Ref  string
}

// Signature is a commit author/committer identity.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// Commit is one entry of revisions_between() (spec.md §4.6).
type Commit struct {
	Hash    string
	Author  Signature
	Message string
}

// Archive branch kinds (spec.md §4.6, §6).
const (
	ArchiveLanded    = "landed"
	ArchiveAbandoned = "abandoned"
)

// archiveInitialMessage holds the bit-stable initial commit messages for
// archive-branch creation (spec.md §6: "stored verbatim").
var archiveInitialMessage = map[string]string{
	ArchiveLanded: "Create an archive branch for landed branches\n\n" +
		"Landed branches will be automatically merged here by Arcyd for your reference.\n\n" +
		"This branch is useful for: finding the history of a branch that has since been\n" +
		"deleted from the main line of development, auditing what Arcyd has landed over\n" +
		"time, and recovering the exact state of a review at the moment it landed.\n",
	ArchiveAbandoned: "Create an archive branch for abandoned branches\n\n" +
		"Abandoned branches will be automatically merged here by Arcyd for your reference.\n\n" +
		"This branch is useful for: finding the history of a branch that has since been\n" +
		"deleted from the main line of development, auditing what Arcyd has abandoned over\n" +
		"time, and recovering the exact state of a review at the moment it was abandoned.\n",
}

// Driver implements the C6 Git driver port against a single local working
// copy.
type Driver struct {
	repoDir string
	remote  string
}

// New constructs a Driver rooted at repoDir, talking to the named remote
// by default (spec.md's repositories are single-remote).
func New(repoDir, remote string) *Driver {
	return &Driver{repoDir: repoDir, remote: remote}
}

func (d *Driver) open() (*goGit.Repository, error) {
	return goGit.PlainOpenWithOptions(d.repoDir, &goGit.PlainOpenOptions{DetectDotGit: true})
}

// ListRefs returns every ref and the hash it points to.
func (d *Driver) ListRefs(ctx context.Context) ([]RefEntry, error) {
	repo, err := d.open()
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	iter, err := repo.References()
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	defer iter.Close()

	var out []RefEntry
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		out = append(out, RefEntry{Hash: ref.Hash().String(), Ref: ref.Name().String()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk refs: %w", err)
	}
	return out, nil
}

// FetchPrune fetches remote using refspecs, pruning stale remote-tracking
// refs (spec.md §4.8 step 2). Callers must Checkout the repo's default
// branch first so the fetch never rewrites the currently checked-out ref.
func (d *Driver) FetchPrune(ctx context.Context, remote string, refspecs []string) error {
	args := append([]string{"fetch", "--prune", remote}, refspecs...)
	_, err := d.run(ctx, args...)
	return err
}

// Checkout switches the working copy to branch.
func (d *Driver) Checkout(ctx context.Context, branch string) error {
	_, err := d.run(ctx, "checkout", branch)
	return err
}

// NewBranchFrom creates (or, if force, resets) branch new at base.
func (d *Driver) NewBranchFrom(ctx context.Context, newBranch, base string, force bool) error {
	args := []string{"branch"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, newBranch, base)
	_, err := d.run(ctx, args...)
	return err
}

// OrphanClean creates a new orphan branch named name with an empty tree
// and no parents, leaving it checked out with nothing staged.
func (d *Driver) OrphanClean(ctx context.Context, name string) error {
	if _, err := d.run(ctx, "checkout", "--orphan", name); err != nil {
		return err
	}
	_, err := d.run(ctx, "rm", "-rf", "--cached", ".")
	return err
}

// DiffRange returns the unified diff between base and tip with the given
// number of context lines (spec.md §4.7's diff-size policy calls this
// first at the configured context, then with context 0).
func (d *Driver) DiffRange(ctx context.Context, base, tip string, context int) ([]byte, error) {
	out, err := d.run(ctx, "diff", fmt.Sprintf("--unified=%d", context), base+".."+tip)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// DiffRangeNameOnly is the filename-only fallback of the diff-size policy.
func (d *Driver) DiffRangeNameOnly(ctx context.Context, base, tip string) ([]byte, error) {
	out, err := d.run(ctx, "diff", "--name-status", base+".."+tip)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// RevisionsBetween lists the commits reachable from tip but not base,
// oldest first (the branch's first commit is RevisionsBetween(...)[0]).
func (d *Driver) RevisionsBetween(ctx context.Context, base, tip string) ([]Commit, error) {
	repo, err := d.open()
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	baseHash, err := repo.ResolveRevision(plumbing.Revision(base))
	if err != nil {
		return nil, fmt.Errorf("resolve base: %w", err)
	}
	tipHash, err := repo.ResolveRevision(plumbing.Revision(tip))
	if err != nil {
		return nil, fmt.Errorf("resolve tip: %w", err)
	}

	excluded := make(map[plumbing.Hash]struct{})
	baseIter, err := repo.Log(&goGit.LogOptions{From: *baseHash})
	if err != nil {
		return nil, fmt.Errorf("walk base history: %w", err)
	}
	_ = baseIter.ForEach(func(c *object.Commit) error {
		excluded[c.Hash] = struct{}{}
		return nil
	})

	tipIter, err := repo.Log(&goGit.LogOptions{From: *tipHash})
	if err != nil {
		return nil, fmt.Errorf("walk tip history: %w", err)
	}
	var commits []Commit
	err = tipIter.ForEach(func(c *object.Commit) error {
		if _, ok := excluded[c.Hash]; ok {
			return nil
		}
		commits = append(commits, Commit{
			Hash: c.Hash.String(),
			Author: Signature{
				Name:  c.Author.Name,
				Email: c.Author.Email,
				When:  c.Author.When,
			},
			Message: c.Message,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk commits: %w", err)
	}

	// go-git's Log walks newest-first; RevisionsBetween's contract is
	// oldest-first so callers can take [0] as "the branch's first commit".
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	return commits, nil
}

// SquashMergeIntoHead squash-merges source into the currently checked-out
// branch and commits the result with message, attributed to author
// (landing protocol step 2, spec.md §4.7).
func (d *Driver) SquashMergeIntoHead(ctx context.Context, source, message string, author Signature) error {
	if _, err := d.run(ctx, "merge", "--squash", source); err != nil {
		return err
	}
	args := []string{
		"commit",
		"-m", message,
		"--author", fmt.Sprintf("%s <%s>", author.Name, author.Email),
	}
	_, err := d.run(ctx, args...)
	return err
}

// EnsureArchiveBranch creates and pushes the archive branch for kind if
// the remote ref does not already exist, without recording any archival
// event (fsck --fix's repair of a missing archive branch, spec.md §4.6).
func (d *Driver) EnsureArchiveBranch(ctx context.Context, kind string) error {
	if _, err := d.ResolveRef(ctx, RemoteArchiveRef(kind)); err == nil {
		return nil
	}
	branch := localArchiveBranch(kind)
	if err := d.ensureArchiveBranch(ctx, kind, branch); err != nil {
		return err
	}
	return d.Push(ctx, branch, "origin")
}

// MergeIntoArchive records an "ours" merge of sourceHash into the local
// archive branch for kind, creating the archive branch first if it does
// not yet exist (spec.md §4.6/§4.7 step 6). HEAD's tree is left
// unchanged; the merge commit records sourceHash as a second parent so
// `log --first-parent` on the archive branch reads as a flat history of
// archival events.
func (d *Driver) MergeIntoArchive(ctx context.Context, kind, sourceHash, message string) error {
	branch := localArchiveBranch(kind)
	if err := d.ensureArchiveBranch(ctx, kind, branch); err != nil {
		return err
	}
	if _, err := d.run(ctx, "checkout", branch); err != nil {
		return err
	}
	_, err := d.run(ctx, "merge", "-s", "ours", "--no-ff", "-m", message, sourceHash)
	return err
}

func (d *Driver) ensureArchiveBranch(ctx context.Context, kind, branch string) error {
	if _, err := d.run(ctx, "rev-parse", "--verify", "--quiet", branch); err == nil {
		return nil
	}
	if err := d.OrphanClean(ctx, branch); err != nil {
		return fmt.Errorf("create archive branch %s: %w", branch, err)
	}
	msg, ok := archiveInitialMessage[kind]
	if !ok {
		return fmt.Errorf("unknown archive kind %q", kind)
	}
	_, err := d.run(ctx, "commit", "--allow-empty", "-m", msg)
	return err
}

func localArchiveBranch(kind string) string {
	switch kind {
	case ArchiveLanded:
		return domain.LandedArchiveBranch
	case ArchiveAbandoned:
		return domain.AbandonedArchiveBranch
	default:
		return "__private_arcyd/" + kind
	}
}

// RemoteArchiveRef returns the remote ref an archive branch is pushed to.
func RemoteArchiveRef(kind string) string {
	switch kind {
	case ArchiveLanded:
		return domain.LandedArchiveRef
	case ArchiveAbandoned:
		return domain.AbandonedArchiveRef
	default:
		return "refs/arcyd/" + kind
	}
}

// Push pushes branch to remote under its own name.
func (d *Driver) Push(ctx context.Context, branch, remote string) error {
	_, err := d.run(ctx, "push", remote, branch)
	return err
}

// PushAsymmetric pushes local under a different name, remoteRef, on
// remote — used to publish tracker branches and archive branches.
func (d *Driver) PushAsymmetric(ctx context.Context, local, remoteRef, remote string) error {
	_, err := d.run(ctx, "push", remote, local+":"+remoteRef)
	return err
}

// PushDelete deletes branch on remote.
func (d *Driver) PushDelete(ctx context.Context, branch, remote string) error {
	_, err := d.run(ctx, "push", remote, "--delete", branch)
	return err
}

// PushForce force-pushes branch to remote under its own name. Tracker
// branches are daemon-owned and routinely rewritten in place (the branch
// state machine moves their name and tip on almost every transition), so
// their pushes are always forced.
func (d *Driver) PushForce(ctx context.Context, branch, remote string) error {
	_, err := d.run(ctx, "push", "--force", remote, branch)
	return err
}

// ResolveRef returns the commit hash ref currently points to.
func (d *Driver) ResolveRef(ctx context.Context, ref string) (string, error) {
	out, err := d.run(ctx, "rev-parse", ref)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ResetHard resets the currently checked-out branch to ref, discarding
// any local commits made since — used to unwind a failed land attempt.
func (d *Driver) ResetHard(ctx context.Context, ref string) error {
	_, err := d.run(ctx, "reset", "--hard", ref)
	return err
}

// EnsureIdentAttributes enforces the ident-attributes guard (spec.md
// §4.6): .git/info/attributes must contain exactly "* -ident\n". A
// missing file is created; an existing file with different content is a
// fatal configuration error — the driver never overwrites a file it did
// not write (spec.md §9's resolved open question: no auto-repair).
const identAttributesContent = "* -ident\n"

func (d *Driver) EnsureIdentAttributes() error {
	path := filepath.Join(d.repoDir, ".git", "info", "attributes")
	existing, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return mkErr
		}
		return os.WriteFile(path, []byte(identAttributesContent), 0o644)
	}
	if err != nil {
		return err
	}
	if string(existing) != identAttributesContent {
		return &domain.ConfigError{
			Field: path,
			Msg:   "contains content other than \"* -ident\\n\"; refusing to overwrite",
		}
	}
	return nil
}

func (d *Driver) run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", d.repoDir}, args...)
	cmd := exec.CommandContext(ctx, "git", fullArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("git %v: %w", args, ctx.Err())
		}
		if stderr.Len() > 0 {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("git %v: %w", args, err)
	}
	return stdout.String(), nil
}
