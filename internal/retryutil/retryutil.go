// Package retryutil provides the exponential-backoff retry loop used by
// the embedder's batch loop (embeddings.Run), generalizing the
// completeWithRetry shape used against the LLM provider so upstream
// rate-limit and transient-availability errors get consistent handling.
package retryutil

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Retryable is implemented by errors that should trigger a retry attempt.
type Retryable interface {
	RetryAfter() (time.Duration, bool)
}

// Do runs fn up to maxAttempts times (the first call plus maxAttempts-1
// retries), backing off exponentially between attempts with jitter; the
// caller sets the retry count through maxAttempts. shouldRetry decides
// whether a given error is transient; a nil shouldRetry retries any error.
func Do(ctx context.Context, maxAttempts int, base time.Duration, shouldRetry func(error) bool, fn func(attempt int) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoff := base

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if shouldRetry != nil && !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts-1 {
			break
		}

		wait := backoff
		if rr, ok := lastErr.(Retryable); ok {
			if d, has := rr.RetryAfter(); has && d > wait {
				wait = d
			}
		}
		wait += time.Duration(rand.Int63n(int64(wait)/2 + 1))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
		}
	}
	return lastErr
}
