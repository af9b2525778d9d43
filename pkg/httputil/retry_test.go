package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var errLimited = errors.New("limited")

// recordSleep returns a Sleep func that records waits instead of blocking.
func recordSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
}

func TestNextDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second},
		{40, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := NextDelay(tt.attempt); got != tt.want {
			t.Errorf("NextDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetrySuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), Policy{Attempts: 3}, func(int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Errorf("Should succeed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Should call once: %d", calls)
	}
}

func TestRetryNonRetryableStopsImmediately(t *testing.T) {
	plain := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), Policy{Attempts: 3}, func(int) error {
		calls++
		return plain
	})
	if err != plain {
		t.Errorf("Should return non-retryable error: %v", err)
	}
	if calls != 1 {
		t.Errorf("Should not retry non-retryable error: %d", calls)
	}
}

func TestRetryUsesProviderWait(t *testing.T) {
	var waits []time.Duration
	calls := 0
	err := Retry(context.Background(), Policy{Attempts: 3, Sleep: recordSleep(&waits)}, func(int) error {
		calls++
		if calls < 2 {
			return &RetryableError{Err: errLimited, After: 7 * time.Second}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Should succeed after retry: %v", err)
	}
	if len(waits) != 1 || waits[0] != 7*time.Second {
		t.Errorf("waits = %v, want [7s]", waits)
	}
}

func TestRetryFallsBackToNextDelay(t *testing.T) {
	var waits []time.Duration
	err := Retry(context.Background(), Policy{Attempts: 4, Sleep: recordSleep(&waits)}, func(int) error {
		return &RetryableError{Err: errLimited}
	})
	if err != errLimited {
		t.Errorf("err = %v, want unwrapped errLimited", err)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(waits) != len(want) {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("waits[%d] = %v, want %v", i, waits[i], want[i])
		}
	}
}

func TestRetryMaxWaitStops(t *testing.T) {
	var waits []time.Duration
	calls := 0
	p := Policy{Attempts: 4, MaxWait: time.Minute, Sleep: recordSleep(&waits)}
	err := Retry(context.Background(), p, func(int) error {
		calls++
		return &RetryableError{Err: errLimited, After: time.Hour}
	})
	if err != errLimited {
		t.Errorf("err = %v, want errLimited", err)
	}
	if calls != 1 || len(waits) != 0 {
		t.Errorf("calls = %d, waits = %v; want a single call and no wait", calls, waits)
	}
}

func TestRetryContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, Policy{Attempts: 3}, func(int) error {
		return &RetryableError{Err: errLimited}
	})
	if err != context.Canceled {
		t.Errorf("Should return context error: %v", err)
	}
}

func TestNewTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &http.Client{Transport: NewTransport(ctx)}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
}
