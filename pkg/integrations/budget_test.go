package integrations

import (
	"net/http"
	"strconv"
	"testing"
	"time"
)

func TestResourceFor(t *testing.T) {
	tests := map[string]string{
		"/search/code":            ResourceSearch,
		"/search/repositories":    ResourceSearch,
		"/repos/acme/widgets":     ResourceCore,
		"/rate_limit":             ResourceCore,
		"/searching/not/a/search": ResourceCore,
	}
	for path, want := range tests {
		if got := ResourceFor(path); got != want {
			t.Errorf("ResourceFor(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestBudgetExhausted(t *testing.T) {
	clock := newFakeClock()
	b := NewBudget(clock)

	if out, _ := b.Exhausted(ResourceCore); out {
		t.Error("unknown resource must not be exhausted")
	}

	reset := clock.Now().Add(time.Minute)
	b.Set(ResourceSearch, Limit{Limit: 30, Remaining: 0, ResetAt: reset})
	out, at := b.Exhausted(ResourceSearch)
	if !out || !at.Equal(reset) {
		t.Errorf("Exhausted = %v, %v; want true, %v", out, at, reset)
	}

	clock.Advance(time.Minute)
	if out, _ := b.Exhausted(ResourceSearch); out {
		t.Error("resource should be available once its reset has passed")
	}
}

func TestBudgetStale(t *testing.T) {
	clock := newFakeClock()
	b := NewBudget(clock)
	if !b.Stale(10 * time.Second) {
		t.Error("never-fetched budget should be stale")
	}
	b.MarkFetched()
	clock.Advance(5 * time.Second)
	if b.Stale(10 * time.Second) {
		t.Error("budget fetched 5s ago should be fresh")
	}
	clock.Advance(5 * time.Second)
	if !b.Stale(10 * time.Second) {
		t.Error("budget fetched 10s ago should be stale")
	}
}

func TestBudgetUpdateFromHeaders(t *testing.T) {
	b := NewBudget(newFakeClock())
	reset := time.Unix(1_700_000_600, 0)

	h := http.Header{}
	h.Set("X-RateLimit-Limit", "30")
	h.Set("X-RateLimit-Remaining", "7")
	h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
	h.Set("X-RateLimit-Resource", "code_search")
	b.UpdateFromHeaders(h, ResourceCore)

	got := b.Get(ResourceSearch)
	if !got.Known || got.Remaining != 7 || got.Limit != 30 || !got.ResetAt.Equal(reset) {
		t.Errorf("search limit = %+v", got)
	}
	if b.Get(ResourceCore).Known {
		t.Error("core should be untouched when the header names another resource")
	}

	// Without a resource header the fallback is used.
	h.Del("X-RateLimit-Resource")
	b.UpdateFromHeaders(h, ResourceCore)
	if !b.Get(ResourceCore).Known {
		t.Error("fallback resource should be updated")
	}

	// Responses without rate-limit headers change nothing.
	b.UpdateFromHeaders(http.Header{}, "other")
	if b.Get("other").Known {
		t.Error("missing headers should not record a limit")
	}
}

func TestBudgetSnapshotResumeAt(t *testing.T) {
	early := time.Unix(1_700_000_100, 0)
	late := time.Unix(1_700_000_900, 0)
	s := BudgetSnapshot{
		Core:   Limit{Known: true, Remaining: 0, ResetAt: early},
		Search: Limit{Known: true, Remaining: 0, ResetAt: late},
	}
	if got := s.ResumeAt(); !got.Equal(late) {
		t.Errorf("ResumeAt = %v, want %v", got, late)
	}
	s.Search.Remaining = 3
	if got := s.ResumeAt(); !got.Equal(early) {
		t.Errorf("ResumeAt = %v, want %v", got, early)
	}
	if !(BudgetSnapshot{}).ResumeAt().IsZero() {
		t.Error("empty snapshot should have no resume time")
	}
}
