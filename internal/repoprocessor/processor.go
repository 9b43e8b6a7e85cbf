// Package repoprocessor implements the per-repo processing pipeline that
// runs once per scheduler cycle for each configured repo (spec.md §4.8).
package repoprocessor

import (
	"context"
	"fmt"
	"time"

	"github.com/arcyd/arcyd/internal/branchsm"
	"github.com/arcyd/arcyd/internal/domain"
	"github.com/arcyd/arcyd/internal/gitdriver"
	"github.com/arcyd/arcyd/internal/urlwatch"
)

// GitPort is the narrow slice of gitdriver.Driver the processor drives
// directly; branch-level mutation is delegated to branchsm.Advancer.
type GitPort interface {
	Checkout(ctx context.Context, branch string) error
	FetchPrune(ctx context.Context, remote string, refspecs []string) error
	ListRefs(ctx context.Context) ([]gitdriver.RefEntry, error)
}

// PhaseRecorder reports per-phase timings up to the Reporter (spec.md
// §4.8 step 7, §4.10). Nil-safe: a Processor with no recorder just skips
// reporting.
type PhaseRecorder interface {
	RecordPhase(repo, phase string, d time.Duration)
}

// Config describes one managed repository.
type Config struct {
	Name     string // short identifier used in logs and Reporter snapshots
	Remote   string
	Base     string // e.g. "master"
	SnoopURL string // URL whose content is watched for the fast path; empty disables it
}

// Processor runs one repo's per-cycle pipeline.
type Processor struct {
	cfg      Config
	git      GitPort
	watcher  *urlwatch.Watcher
	advancer *branchsm.Advancer
	recorder PhaseRecorder
}

// New builds a Processor. watcher may be shared across every repo's
// Processor in the process (spec.md §5: the URL watcher is single-writer
// between cycles); recorder may be nil.
func New(cfg Config, git GitPort, watcher *urlwatch.Watcher, advancer *branchsm.Advancer, recorder PhaseRecorder) *Processor {
	return &Processor{cfg: cfg, git: git, watcher: watcher, advancer: advancer, recorder: recorder}
}

// BranchOutcome is one managed branch's result for this cycle.
type BranchOutcome struct {
	Description string
	Before      domain.ManagedBranch
	After       domain.ManagedBranch
	Err         error
}

// Result is everything a cycle produced for one repo.
type Result struct {
	Skipped  bool // fast path: snoop URL unchanged, nothing processed
	Branches []BranchOutcome
}

// Errs returns the accumulated per-branch errors, in branch order.
func (r Result) Errs() []error {
	var errs []error
	for _, b := range r.Branches {
		if b.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Description, b.Err))
		}
	}
	return errs
}

// Process runs the pipeline described in spec.md §4.8. force bypasses the
// snoop-URL fast path (used for the first cycle after startup and for an
// explicit "fetch" command).
func (p *Processor) Process(ctx context.Context, force bool) (Result, error) {
	if !force && p.cfg.SnoopURL != "" && p.watcher != nil {
		start := time.Now()
		changed := p.watcher.Peek(p.cfg.SnoopURL)
		p.record("snoop", start)
		if !changed {
			return Result{Skipped: true}, nil
		}
	}

	fetchStart := time.Now()
	// Checkout base first: fetching into refs/remotes/* never touches the
	// checked-out branch, but a previous cycle may have left HEAD on a
	// review or tracker branch that FetchPrune's prune step would delete.
	if err := p.git.Checkout(ctx, p.cfg.Base); err != nil {
		return Result{}, fmt.Errorf("checkout base %q: %w", p.cfg.Base, err)
	}
	if err := p.git.FetchPrune(ctx, p.cfg.Remote, FetchRefspecs(p.cfg.Remote)); err != nil {
		return Result{}, fmt.Errorf("fetch-prune: %w", err)
	}
	p.record("fetch", fetchStart)

	parseStart := time.Now()
	refs, err := p.git.ListRefs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list refs: %w", err)
	}
	mbs := ParseManagedBranches(refs, p.cfg.Remote)
	p.record("parse", parseStart)

	result := Result{Branches: make([]BranchOutcome, 0, len(mbs))}
	for _, mb := range mbs {
		branchStart := time.Now()
		after, advErr := p.advancer.Advance(ctx, p.cfg.Base, mb)
		p.record("branch:"+mb.Description, branchStart)
		result.Branches = append(result.Branches, BranchOutcome{
			Description: mb.Description,
			Before:      mb,
			After:       after,
			Err:         advErr,
		})
	}

	if p.cfg.SnoopURL != "" && p.watcher != nil {
		p.watcher.MarkVisited(p.cfg.SnoopURL)
	}

	return result, nil
}

func (p *Processor) record(phase string, start time.Time) {
	if p.recorder == nil {
		return
	}
	p.recorder.RecordPhase(p.cfg.Name, phase, time.Since(start))
}
