package integrations

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Primary limit resources.
const (
	ResourceCore   = "core"
	ResourceSearch = "search"
)

// ResourceFor returns the primary-limit resource a request path draws from.
// Everything under /search/ counts against the search budget (30 requests
// per minute when authenticated); all other endpoints draw from core.
func ResourceFor(path string) string {
	if strings.HasPrefix(path, "/search/") {
		return ResourceSearch
	}
	return ResourceCore
}

// Limit is the last known state of one primary-limit resource. Known is
// false until the provider has reported the resource at least once; the
// zero Limit therefore means "no information", not "nothing left".
type Limit struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	Known     bool      `json:"known"`
}

// Budget holds the last known primary limits. It is refreshed from the
// rate-limit endpoint and from the X-RateLimit-* headers of every response.
// Updates are last-writer-wins; the provider stays the final enforcer.
type Budget struct {
	mu        sync.Mutex
	clock     Clock
	limits    map[string]Limit
	fetchedAt time.Time
}

// NewBudget creates an empty budget. Nothing is known until the first
// update, and unknown resources are never treated as exhausted.
func NewBudget(clock Clock) *Budget {
	if clock == nil {
		clock = SystemClock
	}
	return &Budget{clock: clock, limits: make(map[string]Limit, 2)}
}

// Set records the state of a resource.
func (b *Budget) Set(resource string, l Limit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l.Known = true
	b.limits[resource] = l
}

// MarkFetched records that the full limits were just read from the provider.
func (b *Budget) MarkFetched() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetchedAt = b.clock.Now()
}

// Stale reports whether the full limits are older than ttl. A budget whose
// limits were never fetched is always stale. Header updates alone do not
// make a budget fresh, since they only describe the resource that served
// the response.
func (b *Budget) Stale(ttl time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetchedAt.IsZero() || b.clock.Now().Sub(b.fetchedAt) >= ttl
}

// Exhausted reports whether resource is known to have no calls left before
// its reset, and when that reset happens.
//
// Unknown resources are never exhausted, and a resource whose reset time
// has passed is treated as replenished even before the provider confirms
// it; the next response's headers correct the record either way.
func (b *Budget) Exhausted(resource string) (bool, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.limits[resource]
	if !ok || !l.Known || l.Remaining > 0 {
		return false, time.Time{}
	}
	if !l.ResetAt.IsZero() && !b.clock.Now().Before(l.ResetAt) {
		return false, time.Time{}
	}
	return true, l.ResetAt
}

// Get returns the last known state of resource.
func (b *Budget) Get(resource string) Limit {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limits[resource]
}

// UpdateFromHeaders records X-RateLimit-* response headers against the
// resource named by X-RateLimit-Resource, or fallback when absent.
func (b *Budget) UpdateFromHeaders(h http.Header, fallback string) {
	rem := h.Get("X-RateLimit-Remaining")
	if rem == "" {
		return
	}
	remaining, err := strconv.Atoi(rem)
	if err != nil {
		return
	}
	limit, _ := strconv.Atoi(h.Get("X-RateLimit-Limit"))
	resource := headerResource(h.Get("X-RateLimit-Resource"), fallback)
	b.Set(resource, Limit{
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   parseEpoch(h.Get("X-RateLimit-Reset")),
	})
}

// headerResource maps provider resource names onto the two tracked here.
func headerResource(name, fallback string) string {
	switch name {
	case ResourceCore:
		return ResourceCore
	case ResourceSearch, "code_search":
		return ResourceSearch
	default:
		return fallback
	}
}

// parseEpoch parses a Unix-seconds header value such as X-RateLimit-Reset.
// Empty, malformed and non-positive values yield the zero time.
func parseEpoch(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

// BudgetSnapshot is a point-in-time view of the gateway's limits.
type BudgetSnapshot struct {
	Core          Limit     `json:"core"`
	Search        Limit     `json:"search"`
	PointsUsed    int       `json:"points_used"`
	PointsLimit   int       `json:"points_limit"`
	WindowResetAt time.Time `json:"window_reset_at"`
	FetchedAt     time.Time `json:"fetched_at,omitempty"`
}

// ResumeAt returns the latest reset among exhausted resources, or the zero
// time when neither is known to be exhausted.
func (s BudgetSnapshot) ResumeAt() time.Time {
	var at time.Time
	for _, l := range []Limit{s.Core, s.Search} {
		if l.Known && l.Remaining <= 0 && l.ResetAt.After(at) {
			at = l.ResetAt
		}
	}
	return at
}

// snapshot returns both tracked limits and the time of the last full fetch
// under a single lock, so the pair is consistent.
func (b *Budget) snapshot() (core, search Limit, fetchedAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limits[ResourceCore], b.limits[ResourceSearch], b.fetchedAt
}
