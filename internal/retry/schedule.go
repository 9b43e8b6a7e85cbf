// Package retry implements the retry/backoff loop (spec.md §4.1, C1): run
// a function, sleep a schedule of delays on failure, and surface the last
// error once the schedule is exhausted.
package retry

import "time"

// Schedule yields successive retry delays. A finite schedule returns
// ok=false once exhausted; an infinite schedule (EndlessSchedule) never
// does. Grounded on the teacher's llmhttp.ExponentialBackoff
// (internal/adapter/llm/http/retry.go), generalized from a formula into an
// explicit sequence so the two standard schedules in spec.md §4.1 can be
// expressed exactly rather than approximated by a backoff curve.
type Schedule interface {
	// Next returns the next delay and true, or zero and false if the
	// schedule is exhausted.
	Next() (time.Duration, bool)
}

// sliceSchedule replays a fixed list of delays and then repeats its final
// element forever if repeatLast is set.
type sliceSchedule struct {
	delays     []time.Duration
	i          int
	repeatLast bool
}

func (s *sliceSchedule) Next() (time.Duration, bool) {
	if s.i < len(s.delays) {
		d := s.delays[s.i]
		s.i++
		return d, true
	}
	if s.repeatLast && len(s.delays) > 0 {
		return s.delays[len(s.delays)-1], true
	}
	return 0, false
}

// NewFixedSchedule returns a schedule that yields exactly the given delays
// in order, then is exhausted.
func NewFixedSchedule(delays ...time.Duration) Schedule {
	return &sliceSchedule{delays: append([]time.Duration(nil), delays...)}
}

// ShortSchedule is the standard three-attempt schedule used for
// operations where the caller wants a quick verdict: three delays of 3s
// (spec.md §4.1).
func ShortSchedule() Schedule {
	return NewFixedSchedule(3*time.Second, 3*time.Second, 3*time.Second)
}

// EndlessSchedule is the standard unbounded schedule used for outward
// calls to remote services: 3s, 15s, 60s, 60s, 180s, 180s, then repeating
// 9-minute intervals forever (spec.md §4.1). In steady state this averages
// at most ~7 failed attempts per hour: enough to page on, rare enough not
// to hammer a degraded remote.
func EndlessSchedule() Schedule {
	return &sliceSchedule{
		delays: []time.Duration{
			3 * time.Second,
			15 * time.Second,
			60 * time.Second,
			60 * time.Second,
			180 * time.Second,
			180 * time.Second,
			9 * time.Minute,
		},
		repeatLast: true,
	}
}
