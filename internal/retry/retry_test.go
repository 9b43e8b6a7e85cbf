package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestDoSucceedsEventually(t *testing.T) {
	attempts := 0
	op := func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errBoom
		}
		return nil
	}
	sched := NewFixedSchedule(time.Millisecond, time.Millisecond, time.Millisecond)
	err := Do(context.Background(), op, sched, AlwaysRetry, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoSurfacesLastErrorAfterScheduleExhausted(t *testing.T) {
	attempts := 0
	op := func(ctx context.Context) error {
		attempts++
		return errBoom
	}
	sched := NewFixedSchedule(time.Millisecond, time.Millisecond)
	err := Do(context.Background(), op, sched, AlwaysRetry, nil)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestDoTerminalDeliveryNotifications(t *testing.T) {
	var delays []*time.Duration
	op := func(ctx context.Context) error { return errBoom }
	sched := NewFixedSchedule(time.Millisecond, time.Millisecond)
	_ = Do(context.Background(), op, sched, AlwaysRetry, func(err error, next *time.Duration) {
		delays = append(delays, next)
	})
	require.Len(t, delays, 3) // N=2 delays -> N+1 notifications
	assert.NotNil(t, delays[0])
	assert.NotNil(t, delays[1])
	assert.Nil(t, delays[2])
}

func TestDoDoesNotRetryUnrecognisedError(t *testing.T) {
	attempts := 0
	op := func(ctx context.Context) error {
		attempts++
		return errBoom
	}
	sched := NewFixedSchedule(time.Millisecond, time.Millisecond)
	err := Do(context.Background(), op, sched, func(error) bool { return false }, nil)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, attempts)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	op := func(ctx context.Context) error { return nil }
	err := Do(ctx, op, ShortSchedule(), AlwaysRetry, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEndlessScheduleRepeatsFinalDelay(t *testing.T) {
	sched := EndlessSchedule()
	var last time.Duration
	for i := 0; i < 7; i++ {
		d, ok := sched.Next()
		require.True(t, ok)
		last = d
	}
	assert.Equal(t, 9*time.Minute, last)
	for i := 0; i < 3; i++ {
		d, ok := sched.Next()
		require.True(t, ok)
		assert.Equal(t, 9*time.Minute, d)
	}
}

func TestShortScheduleIsFinite(t *testing.T) {
	sched := ShortSchedule()
	for i := 0; i < 3; i++ {
		_, ok := sched.Next()
		require.True(t, ok)
	}
	_, ok := sched.Next()
	assert.False(t, ok)
}
