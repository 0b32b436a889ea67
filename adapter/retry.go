package adapter

import (
	"context"
	"fmt"
	"time"
)

// BaseBackoff is the delay before the first retry. It doubles per retry.
const BaseBackoff = 500 * time.Millisecond

// Backoff returns the delay before retry n (n >= 1).
func Backoff(n int) time.Duration {
	return time.Duration(1<<uint(n-1)) * BaseBackoff
}

// Retry calls do up to 1+retries times with exponential backoff between
// attempts. Errors for which permanent returns true stop immediately.
// The name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, do func(context.Context) error, permanent func(error) bool) error {
	attempts := 1 + retries
	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}
		if i > 0 {
			timer := time.NewTimer(Backoff(i))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = do(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
