package discovery

import (
	"context"
	"fmt"
	"time"
)

// withRetry runs fn up to maxRetries+1 times with doubling backoff,
// stopping early on success or context cancellation. An exhausted retry
// budget wraps the last error with the attempt count, which SyncError
// then carries up alongside the failed block range.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return fmt.Errorf("after %d attempts: %w", attempt+1, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
