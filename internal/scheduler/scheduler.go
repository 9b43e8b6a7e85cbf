// Package scheduler implements the scheduler (spec.md §4.9, C9): the
// coordinator loop that composes per-repo processors, the signals
// operation, the sleep operation and the cache-refresh operation, driving
// all of it through C2's worker pool.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/arcyd/arcyd/internal/identity"
	"github.com/arcyd/arcyd/internal/pool"
	"github.com/arcyd/arcyd/internal/repoprocessor"
	"github.com/arcyd/arcyd/internal/retry"
	"github.com/arcyd/arcyd/internal/reviewstate"
)

// Status tags for the Reporter's status enum (spec.md §4.10). Defined
// here, the package that first needs them; the Reporter imports these
// constants rather than redeclaring its own copy.
const (
	StatusStarting        = "starting"
	StatusUpdating        = "updating"
	StatusSleeping        = "sleeping"
	StatusRefreshingCache = "refreshing-cache"
	StatusStopped         = "stopped"
	StatusIdle            = "idle"
	StatusRetryException  = "tryloop-exception"
)

// StatusReporter receives the scheduler's current status tag. Satisfied
// by internal/reporter.Reporter; narrowed locally so this package doesn't
// depend on it. May be left nil by a caller that doesn't need snapshots
// (e.g. a test).
type StatusReporter interface {
	SetStatus(status string)
	SetCurrentRepo(name string)
}

// RetrySchedule is the schedule repo operations retry under (spec.md
// §4.9: "[10 minutes, 1 hour]").
func RetrySchedule() retry.Schedule {
	return retry.NewFixedSchedule(10*time.Minute, 1*time.Hour)
}

// Repo pairs a configured name with the processor that runs its cycle.
type Repo struct {
	Name      string
	Processor *repoprocessor.Processor
}

// Config holds the scheduler's tunables.
type Config struct {
	Interval        time.Duration // inter-cycle sleep (sleep operation)
	MaxWorkers      int
	MaxOverrunnable int

	// RepoRetrySchedule constructs the schedule each repo operation
	// retries under. Schedules are stateful, so this is a constructor
	// invoked fresh per attempt sequence, not a shared Schedule value.
	// Defaults to RetrySchedule (spec.md §4.9: "[10 minutes, 1 hour]").
	RepoRetrySchedule func() retry.Schedule

	// Recorder, if set, times the refresh-caches operation under the tag
	// "refresh-caches" (spec.md §4.10's "callable-scope timer ... to tag
	// any operation"). Per-repo phases are timed by the repoprocessor
	// directly; this covers the scheduler's own operations.
	Recorder repoprocessor.PhaseRecorder

	// OnCycle, if set, is invoked once per completed repo-processing
	// cycle (not on a pure shutdown/reset signal, which short-circuits
	// before any repo runs) with that cycle's report.
	OnCycle func(CycleReport)
}

// RepoOutcome is one repo's result for a cycle: either its processing
// result, or the error the retry schedule gave up on.
type RepoOutcome struct {
	Name   string
	Result repoprocessor.Result
	Err    error
}

// CycleReport summarizes one RunCycle call.
type CycleReport struct {
	Shutdown bool // kill-file observed: caller should stop looping
	Reset    bool // reset-file observed: caller should restart immediately, skipping the rest of this cycle
	Repos    []RepoOutcome
}

// Succeeded reports whether every repo in the cycle completed without
// error (spec.md §4.9: "no-loop mode ... exits 0 if all operations
// succeeded, 1 otherwise").
func (r CycleReport) Succeeded() bool {
	for _, o := range r.Repos {
		if o.Err != nil {
			return false
		}
	}
	return true
}

// Scheduler drives the full per-cycle operation list through a pool.Pool.
type Scheduler struct {
	ctx     context.Context
	names   []string
	pool    *pool.Pool
	reviews *reviewstate.Cache
	ids     *identity.Cache
	signals *SignalWatcher
	reporter StatusReporter
	cfg     Config
}

// New builds a Scheduler. ctx is the process-lifetime context every repo
// operation runs under; cancelling it is the module's hard-shutdown path
// (spec.md §5 "Cancellation"). reporter may be nil.
func New(ctx context.Context, repos []Repo, reviews *reviewstate.Cache, ids *identity.Cache, signals *SignalWatcher, reporter StatusReporter, cfg Config) *Scheduler {
	if cfg.RepoRetrySchedule == nil {
		cfg.RepoRetrySchedule = RetrySchedule
	}

	sorted := append([]Repo(nil), repos...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	names := make([]string, len(sorted))
	jobs := make([]pool.Job, len(sorted))
	for i, r := range sorted {
		i, r := i, r
		names[i] = r.Name
		jobs[i] = pool.Job{
			Index: i,
			Run: func() (any, error) {
				var result repoprocessor.Result
				op := func(ctx context.Context) error {
					res, err := r.Processor.Process(ctx, false)
					result = res
					return err
				}
				err := retry.Do(ctx, op, cfg.RepoRetrySchedule(), retry.AlwaysRetry, nil)
				return RepoOutcome{Name: r.Name, Result: result, Err: err}, nil
			},
		}
	}

	return &Scheduler{
		ctx:      ctx,
		names:    names,
		pool:     pool.New(jobs, cfg.MaxWorkers, cfg.MaxOverrunnable),
		reviews:  reviews,
		ids:      ids,
		signals:  signals,
		reporter: reporter,
		cfg:      cfg,
	}
}

func (s *Scheduler) setStatus(status string) {
	if s.reporter != nil {
		s.reporter.SetStatus(status)
	}
}

// RunCycle executes one full cycle: the signals operation, the repo
// operations (through the pool), and the refresh-caches operation. The
// sleep operation is the caller's responsibility (Run below), since
// no-loop mode must not sleep after its one cycle.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	if s.signals != nil {
		sig, err := s.signals.Check(ctx)
		if err != nil {
			return CycleReport{}, fmt.Errorf("signals: %w", err)
		}
		switch sig {
		case SignalShutdown:
			s.setStatus(StatusStopped)
			return CycleReport{Shutdown: true}, nil
		case SignalReset:
			return CycleReport{Reset: true}, nil
		}
	}

	s.setStatus(StatusUpdating)
	if s.ids != nil {
		s.ids.BeginCycle()
	}

	report := CycleReport{Repos: make([]RepoOutcome, 0, len(s.names))}
	for it := s.pool.CycleResults(nil); ; {
		res, ok := it.Next()
		if !ok {
			break
		}
		outcome, _ := res.Value.(RepoOutcome)
		if s.reporter != nil {
			s.reporter.SetCurrentRepo(outcome.Name)
		}
		report.Repos = append(report.Repos, outcome)
	}

	if s.cfg.OnCycle != nil {
		s.cfg.OnCycle(report)
	}

	s.setStatus(StatusRefreshingCache)
	refreshStart := time.Now()
	if s.reviews != nil {
		if err := s.reviews.RefreshActive(ctx); err != nil {
			return report, fmt.Errorf("refresh review cache: %w", err)
		}
	}
	if s.ids != nil {
		s.ids.PruneUntouched()
	}
	if s.cfg.Recorder != nil {
		s.cfg.Recorder.RecordPhase("", "refresh-caches", time.Since(refreshStart))
	}

	return report, nil
}

// Run drives the scheduler loop. In no-loop mode it runs exactly one
// cycle and returns, with ok reporting whether every repo in that cycle
// succeeded (spec.md §4.9). In looping mode it runs cycles until a
// kill-file shutdown is observed or ctx is cancelled, sleeping the
// configured interval (the sleep operation) between cycles; a reset-file
// restarts the loop immediately without sleeping.
func (s *Scheduler) Run(ctx context.Context, noLoop bool) (ok bool, err error) {
	s.setStatus(StatusStarting)
	for {
		report, err := s.RunCycle(ctx)
		if err != nil {
			s.setStatus(StatusRetryException)
			return false, err
		}
		if report.Shutdown {
			return true, nil
		}
		if report.Reset {
			continue
		}
		if noLoop {
			return report.Succeeded(), nil
		}

		s.setStatus(StatusSleeping)
		select {
		case <-ctx.Done():
			return report.Succeeded(), ctx.Err()
		case <-time.After(s.cfg.Interval):
		}
	}
}
