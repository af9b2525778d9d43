package integrations

import (
	"context"
	"time"

	"github.com/matzehuels/dependents/pkg/httputil"
)

// Clock is the time source for budget windows, pacing and retry waits.
// Tests inject a fake clock so waits complete instantly and deterministically.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	return httputil.Sleep(ctx, d)
}
