package scanner

import (
	"context"
	"time"
)

// withRetry runs fn up to maxAttempts times with a linearly increasing
// delay (step × attempt count). retryable may be nil to retry every
// error; a non-retryable error returns immediately.
func withRetry(ctx context.Context, maxAttempts int, step time.Duration, retryable func(error) bool, fn func(context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if step <= 0 {
		step = 100 * time.Millisecond
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == maxAttempts {
			return err
		}

		timer := time.NewTimer(step * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
