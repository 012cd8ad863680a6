package retry

import (
	"context"
	"fmt"
	"time"
)

type Config struct {
	// MaxAttempts counts total calls, so N retries needs MaxAttempts N+1.
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool // exponential backoff: Delay, 2*Delay, 4*Delay, ...
}

// Retryable lets callers limit retries to specific errors (e.g. rate limits).
// A nil Retryable retries everything.
type Retryable func(error) bool

// Do runs fn up to MaxAttempts times, sleeping between attempts.
func Do(ctx context.Context, config Config, shouldRetry Retryable, fn func() error) error {
	var lastErr error

	delay := config.Delay
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err

			if shouldRetry != nil && !shouldRetry(err) {
				return err
			}
			if attempt == config.MaxAttempts {
				return fmt.Errorf("failed after %d attempts: %w", config.MaxAttempts, err)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			if config.Backoff {
				delay *= 2
			}
			continue
		}
		return nil
	}

	return lastErr
}
