package integrations

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/matzehuels/dependents/pkg/httputil"
)

const httpTimeout = 30 * time.Second

// ErrUpstreamDown is the cause attached when the circuit breaker is open.
var ErrUpstreamDown = errors.New("provider unavailable: circuit open")

// NewHTTPClient creates an HTTP client with a standard timeout and a
// DNS-caching transport. The resolver refresh loop ends with ctx.
func NewHTTPClient(ctx context.Context) *http.Client {
	return &http.Client{
		Timeout:   httpTimeout,
		Transport: httputil.NewTransport(ctx),
	}
}

var repoURLReplacer = strings.NewReplacer(
	"git@github.com:", "https://github.com/",
	"git://github.com/", "https://github.com/",
	"ssh://git@github.com/", "https://github.com/",
)

// NormalizeRepoURL converts various repository URL formats to canonical HTTPS form.
// Handles git@, git://, ssh:// and git+ prefixes, and removes .git suffixes
// and trailing slashes. Returns empty string if raw is empty.
func NormalizeRepoURL(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "git+")
	s = repoURLReplacer.Replace(s)
	s = strings.TrimSuffix(s, "/")
	return strings.TrimSuffix(s, ".git")
}
