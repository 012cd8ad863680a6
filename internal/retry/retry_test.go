package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, Delay: time.Millisecond}, nil, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{MaxAttempts: 2, Delay: time.Millisecond}, nil, func() error {
		attempts++
		return errors.New("always")
	})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
}

func TestDoNonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("bad request")
	attempts := 0
	err := Do(context.Background(), Config{MaxAttempts: 5, Delay: time.Millisecond},
		func(err error) bool { return false }, func() error {
			attempts++
			return fatal
		})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
}

func TestDoBackoffLadder(t *testing.T) {
	// 4 attempts means three backoff sleeps: Delay, 2*Delay, 4*Delay.
	base := 2 * time.Millisecond
	attempts := 0

	start := time.Now()
	err := Do(context.Background(), Config{MaxAttempts: 4, Delay: base, Backoff: true}, nil,
		func() error {
			attempts++
			return errors.New("rate limited")
		})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, 4, attempts)
	assert.GreaterOrEqual(t, elapsed, 7*base, "expected sleeps of 1x, 2x and 4x the base delay")
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, Config{MaxAttempts: 3, Delay: time.Hour}, nil, func() error {
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
