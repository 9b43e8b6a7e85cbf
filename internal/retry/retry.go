package retry

import (
	"context"
	"time"
)

// Op is a unit of retryable work.
type Op func(ctx context.Context) error

// Recognise reports whether an error is the kind of transient failure the
// schedule should retry (spec.md §7 "Transient remote failure"). Errors it
// rejects are surfaced immediately without consuming the schedule.
type Recognise func(error) bool

// OnAttemptFailed is invoked after every failed attempt. nextDelay is nil
// when the schedule is exhausted and no further attempt will occur
// (spec.md §8 property 6).
type OnAttemptFailed func(err error, nextDelay *time.Duration)

// AlwaysRetry recognises every non-nil error as retryable.
func AlwaysRetry(error) bool { return true }

// Do runs op and, while it fails with a recognised error, sleeps the next
// delay from sched and retries. The final failure (recognised or not) is
// returned. Do never swallows ctx cancellation: it returns ctx.Err() as
// soon as the context is done, whether that happens before an attempt or
// during the sleep between attempts.
func Do(ctx context.Context, op Op, sched Schedule, recognise Recognise, onFail OnAttemptFailed) error {
	if recognise == nil {
		recognise = AlwaysRetry
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		if !recognise(err) {
			if onFail != nil {
				onFail(err, nil)
			}
			return err
		}

		delay, ok := sched.Next()
		if !ok {
			if onFail != nil {
				onFail(err, nil)
			}
			return err
		}
		if onFail != nil {
			d := delay
			onFail(err, &d)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
