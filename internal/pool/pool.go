package pool

import (
	"sync"
	"time"
)

// pollInterval is how often a cycle with an overrun condition re-tests that
// condition while waiting for the next result. It only matters while the
// condition is false; as soon as it flips true (and the active count is
// within budget) the cycle returns on its next check.
const pollInterval = 20 * time.Millisecond

// Pool is the cycling worker pool of spec.md §4.2 (C2). One Pool wraps one
// fixed job list and is reused across repeated cycles — each CycleResults
// call is one "cycle": it (re)schedules every job index not currently
// active, then drains results (including any still-running jobs carried
// over — "overrun" — from a previous cycle) until either everything
// finishes or the overrun condition permits an early return.
//
// Re-architected per spec.md §9 from the reference implementation's
// monkey-patched, process-per-worker pool into goroutines gated by a
// semaphore: the semaphore IS the worker set, so an overrun job from a
// prior cycle keeps occupying one of MaxWorkers slots until it finishes,
// which is exactly how "max_workers − currently_overrun_workers" new
// workers falls out of the budget without extra bookkeeping.
type Pool struct {
	jobs            []Job
	maxWorkers      int
	maxOverrunnable int

	sem      chan struct{}
	resultCh chan Result

	mu     sync.Mutex
	active map[int]bool
}

// New constructs a Pool. If maxOverrunnable is <= 0 or greater than
// maxWorkers/2, it is clamped to maxWorkers/2, the spec's default.
func New(jobs []Job, maxWorkers, maxOverrunnable int) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if maxOverrunnable <= 0 || maxOverrunnable > maxWorkers/2 {
		maxOverrunnable = maxWorkers / 2
	}
	return &Pool{
		jobs:            jobs,
		maxWorkers:      maxWorkers,
		maxOverrunnable: maxOverrunnable,
		sem:             make(chan struct{}, maxWorkers),
		resultCh:        make(chan Result, len(jobs)+1),
		active:          make(map[int]bool, len(jobs)),
	}
}

// NumActiveJobs is the count of jobs currently running, whether scheduled
// in the current cycle or overrun from a previous one (spec.md §3 "Pool
// cycle").
func (p *Pool) NumActiveJobs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

func (p *Pool) scheduleInactive() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, j := range p.jobs {
		if p.active[j.Index] {
			continue
		}
		p.active[j.Index] = true
		go p.run(j)
	}
}

func (p *Pool) run(j Job) {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()
	v, err := j.Run()
	p.resultCh <- Result{Index: j.Index, Value: v, Err: err}
}

// Iterator yields one cycle's (job_index, result) pairs. Modeled as an
// explicit object with Next(), not a lazy/async sequence, per spec.md §9.
type Iterator struct {
	p                *Pool
	overrunCondition func() bool
	done             bool
}

// CycleResults starts a new cycle and returns an iterator over its
// results. overrunCondition may be nil, in which case the cycle always
// drains to completion (equivalent to FinishResults scoped to this cycle's
// newly-scheduled jobs).
func (p *Pool) CycleResults(overrunCondition func() bool) *Iterator {
	p.scheduleInactive()
	return &Iterator{p: p, overrunCondition: overrunCondition}
}

// Next returns the next completed (job_index, result) pair, or ok=false
// when either every job has completed, or the overrun condition has
// permitted this cycle to end early while jobs remain active.
func (it *Iterator) Next() (Result, bool) {
	if it.done {
		return Result{}, false
	}
	for {
		it.p.mu.Lock()
		n := len(it.p.active)
		it.p.mu.Unlock()

		if n == 0 {
			it.done = true
			return Result{}, false
		}
		if it.overrunCondition != nil && it.overrunCondition() && n <= it.p.maxOverrunnable {
			it.done = true
			return Result{}, false
		}

		select {
		case r := <-it.p.resultCh:
			it.p.mu.Lock()
			delete(it.p.active, r.Index)
			it.p.mu.Unlock()
			return r, true
		case <-time.After(pollInterval):
			continue
		}
	}
}

// FinishResults drains every currently active job (including any overrun
// from a prior cycle) to completion, ignoring the overrun condition. It
// does not reschedule jobs that have already completed.
func (p *Pool) FinishResults() []Result {
	it := &Iterator{p: p}
	var results []Result
	for {
		r, ok := it.Next()
		if !ok {
			return results
		}
		results = append(results, r)
	}
}
