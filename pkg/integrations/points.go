package integrations

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Secondary limit accounting defaults. GitHub documents a budget of 900
// points per minute for REST calls, where a read costs one point and a
// mutation five.
const (
	DefaultPointsLimit  = 900
	DefaultPointsWindow = time.Minute

	readCost  = 1
	writeCost = 5
)

// Cost returns the secondary-limit points a request with the given method
// consumes: 1 for reads, 5 for anything that mutates.
func Cost(method string) int {
	switch strings.ToUpper(method) {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions:
		return readCost
	default:
		return writeCost
	}
}

// Points tracks cost points spent in the current fixed window.
//
// The window starts with the first reservation and lasts for the configured
// duration; the first reservation after it ends opens a new one with zero
// points spent. A request that does not fit in the remaining points waits
// for the rollover rather than failing, so callers see added latency, never
// an error, from this layer.
//
// Points is safe for concurrent use. Waiters are not queued: after a
// rollover, whichever waiter wakes first reserves first.
type Points struct {
	mu      sync.Mutex
	clock   Clock
	limit   int
	window  time.Duration
	used    int
	resetAt time.Time
}

// NewPoints creates a points window allowing limit points per window.
// A nil clock uses the system clock; non-positive limit and window take
// DefaultPointsLimit and DefaultPointsWindow.
func NewPoints(clock Clock, limit int, window time.Duration) *Points {
	if clock == nil {
		clock = SystemClock
	}
	if limit <= 0 {
		limit = DefaultPointsLimit
	}
	if window <= 0 {
		window = DefaultPointsWindow
	}
	return &Points{clock: clock, limit: limit, window: window}
}

// Acquire blocks until cost points are reserved in the current window.
// It returns ctx's error if ctx ends while waiting for a rollover, in which
// case nothing was reserved.
func (p *Points) Acquire(ctx context.Context, cost int) error {
	for {
		wait := p.reserve(cost)
		if wait <= 0 {
			return nil
		}
		if err := p.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// reserve takes cost points and returns zero, or returns how long until the
// window rolls over. A request costing more than the whole window is let
// through on an empty window so it cannot wait forever.
func (p *Points) reserve(cost int) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	p.rollover(now)
	if p.used == 0 || p.used+cost <= p.limit {
		p.used += cost
		return 0
	}
	return p.resetAt.Sub(now)
}

// rollover opens a new window when none exists yet or the current one has
// ended at now. The caller must hold p.mu.
func (p *Points) rollover(now time.Time) {
	if p.resetAt.IsZero() || !now.Before(p.resetAt) {
		p.used = 0
		p.resetAt = now.Add(p.window)
	}
}

// Used reports the points spent in the current window and when it resets.
func (p *Points) Used() (used int, resetAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rollover(p.clock.Now())
	return p.used, p.resetAt
}
