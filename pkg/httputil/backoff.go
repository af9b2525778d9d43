package httputil

import "time"

// Backoff schedule used when the provider does not say how long to wait.
const (
	BaseDelay = time.Second
	MaxDelay  = 60 * time.Second
)

// NextDelay returns the wait before retry number attempt (zero based):
// BaseDelay doubled attempt times, capped at MaxDelay.
func NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return BaseDelay
	}
	// 2^6 seconds already exceeds the cap.
	if attempt >= 6 {
		return MaxDelay
	}
	return min(BaseDelay<<attempt, MaxDelay)
}
