// Package buildinfo carries version metadata stamped in at link time:
//
//	go build -ldflags "-X github.com/matzehuels/dependents/pkg/buildinfo.Version=v0.3.0 \
//	    -X github.com/matzehuels/dependents/pkg/buildinfo.Commit=$(git rev-parse --short HEAD)" \
//	    ./cmd/dependents
package buildinfo

import "fmt"

// Overridden with -ldflags -X.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Template is the cobra version template for the root command.
func Template() string {
	return fmt.Sprintf("{{.Name}} %s (commit %s, built %s)\n", Version, Commit, Date)
}

// UserAgent identifies the client to the GitHub API.
func UserAgent() string {
	return "dependents/" + Version
}
