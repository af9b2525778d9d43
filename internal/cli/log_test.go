package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"
)

func TestNewLoggerFiltersByLevel(t *testing.T) {
	tests := []struct {
		level log.Level
		debug bool
	}{
		{log.InfoLevel, false},
		{log.DebugLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			var buf bytes.Buffer
			l := newLogger(&buf, tt.level)
			l.Debug("budget refreshed")
			l.Info("run started")

			out := buf.String()
			if !strings.Contains(out, "run started") {
				t.Errorf("info message missing from %q", out)
			}
			if got := strings.Contains(out, "budget refreshed"); got != tt.debug {
				t.Errorf("debug message logged = %v, want %v", got, tt.debug)
			}
		})
	}
}

func TestProgressDone(t *testing.T) {
	var buf bytes.Buffer
	p := newProgress(newLogger(&buf, log.InfoLevel))
	p.now = func() time.Time { return p.start.Add(1234 * time.Millisecond) }

	p.done("Found 12 dependents")

	if want := "Found 12 dependents (1.234s)"; !strings.Contains(buf.String(), want) {
		t.Errorf("output = %q, want it to contain %q", buf.String(), want)
	}
}

func TestLoggerFromContext(t *testing.T) {
	if loggerFromContext(context.Background()) != log.Default() {
		t.Error("bare context should yield log.Default()")
	}

	l := newLogger(&bytes.Buffer{}, log.InfoLevel)
	if got := loggerFromContext(withLogger(context.Background(), l)); got != l {
		t.Error("attached logger not returned")
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := newLogger(&buf, log.InfoLevel)

	var scoped *log.Logger
	h := middleware.RequestID(requestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scoped = loggerFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ratelimit", nil))

	if scoped == nil || scoped == log.Default() {
		t.Fatal("handler did not receive a request-scoped logger")
	}
	out := buf.String()
	for _, want := range []string{"/api/ratelimit", "status=418", "request="} {
		if !strings.Contains(out, want) {
			t.Errorf("request log %q missing %q", out, want)
		}
	}
}
