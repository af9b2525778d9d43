// Package httputil provides HTTP plumbing for the provider API client.
//
// # Overview
//
// This package provides infrastructure used by the request gateway:
//
//   - [NextDelay]: the pure exponential backoff schedule
//   - [Retry]: a bounded retry loop honoring provider-requested waits
//   - [NewTransport]: an HTTP transport with a caching DNS resolver
//
// # Backoff
//
// [NextDelay] doubles a one second base per attempt and caps at one
// minute. It has no state, so callers can compute the wait for any attempt
// without tracking history:
//
//	NextDelay(0) // 1s
//	NextDelay(3) // 8s
//	NextDelay(9) // 60s (capped)
//
// # Retry
//
// [Retry] only retries errors wrapped in [RetryableError]. A retryable
// error may carry the wait the provider asked for (Retry-After or a reset
// timestamp); when it does not, the wait falls back to [NextDelay]. A wait
// longer than [Policy.MaxWait] ends the loop immediately rather than
// blocking the caller for an unbounded time.
//
//	err := httputil.Retry(ctx, httputil.Policy{Attempts: 4}, func(attempt int) error {
//	    resp, err := do(ctx)
//	    if isRateLimited(resp) {
//	        return &httputil.RetryableError{Err: errLimited, After: retryAfter(resp)}
//	    }
//	    return err
//	})
//
// # Transport
//
// [NewTransport] resolves hosts through github.com/rs/dnscache so a
// discovery run issuing hundreds of requests to one API host does not
// repeat the lookup for each new connection.
package httputil
