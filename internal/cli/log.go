// Package cli implements the dependents command-line interface: listing the
// npm packages a GitHub repository publishes, finding the repositories that
// depend on them, inspecting the API budget and serving the same operations
// as a JSON HTTP API.
//
// Settings are layered from built-in defaults, the TOML config file, a .env
// file, the environment and finally command-line flags. Diagnostics go to
// stderr through charmbracelet/log; --verbose lowers the level to debug.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger returns a stderr-style logger with short timestamps.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress reports how long a command step took, for example
// "Found 12 dependents (1.234s)".
type progress struct {
	logger *log.Logger
	start  time.Time
	now    func() time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now(), now: time.Now}
}

func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, p.now().Sub(p.start).Round(time.Millisecond))
}

type loggerKey struct{}

// withLogger attaches a request-scoped logger to ctx.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// loggerFromContext returns the logger attached by withLogger, or
// log.Default when there is none.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
