package pipeline

import "time"

// SetRetryDelay shortens the sink retry backoff in tests.
func (r *Runner) SetRetryDelay(d time.Duration) {
	r.retryDelay = d
}
