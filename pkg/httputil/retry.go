package httputil

import (
	"context"
	"errors"
	"time"
)

// RetryableError wraps an error to indicate it should trigger a retry.
// Wrap provider rejections that are expected to clear (rate limits) with
// this type so that [Retry] knows to attempt the operation again.
type RetryableError struct {
	Err error

	// After is the wait the provider asked for. Zero means unknown, in
	// which case Retry uses NextDelay.
	After time.Duration
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Policy bounds a [Retry] loop.
type Policy struct {
	// Attempts is the total number of calls, including the first.
	// Values below 1 are treated as 1.
	Attempts int

	// MaxWait ends the loop when a single wait would exceed it.
	// Zero means no limit.
	MaxWait time.Duration

	// Sleep waits for d or until ctx is done. Defaults to a timer-based
	// sleep; tests inject a fake clock.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// policy is exhausted. It only retries errors wrapped with [RetryableError];
// other errors are returned immediately. When retrying stops, the last
// error is returned with its RetryableError wrapper removed, or ctx.Err()
// if the context ended while waiting.
func Retry(ctx context.Context, p Policy, fn func(attempt int) error) error {
	attempts := max(p.Attempts, 1)
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		err := fn(i)
		if err == nil {
			return nil
		}
		var re *RetryableError
		if !errors.As(err, &re) {
			return err
		}
		lastErr = re.Err

		if i == attempts-1 {
			break
		}
		wait := re.After
		if wait <= 0 {
			wait = NextDelay(i)
		}
		if p.MaxWait > 0 && wait > p.MaxWait {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(i, wait, re.Err)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the
// latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
