package pipeline

import (
	"context"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
)

// Sink writes are retried with exponential backoff: start at 200ms, double
// each attempt, cap at 5s.
const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
	maxAttempts    = 3
)

// withRetry runs fn until it succeeds, attempts are exhausted, or ctx ends.
func withRetry(ctx context.Context, attempts int, backoff time.Duration, fn func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= attempts || ctx.Err() != nil {
			return err
		}
		if !retry.SleepWithContext(ctx, backoff) {
			return err
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}
