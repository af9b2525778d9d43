package discovery

import (
	"context"
	"slices"
	"testing"

	"github.com/matzehuels/dependents/pkg/errors"
	"github.com/matzehuels/dependents/pkg/integrations/github"
)

func names(pkgs []PackageDescriptor) []string {
	out := make([]string, len(pkgs))
	for i, p := range pkgs {
		out[i] = p.Name
	}
	return out
}

func TestEnumeratorContents(t *testing.T) {
	p := newFakeProvider()
	p.addRepo("acme/widgets", 10)
	p.addPackage("acme/widgets", "widgets-core", manifest("widgets-core"))
	p.addPackage("acme/widgets", "widgets-cli", manifest("widgets-cli"))
	p.addPackage("acme/widgets", "broken", `{"name": `)
	p.addPackage("acme/widgets", "anonymous", `{"version": "1.0.0"}`)
	// Directory without a manifest.
	p.dirs["acme/widgets:packages"] = append(p.dirs["acme/widgets:packages"],
		github.ContentItem{Name: "docs", Path: "packages/docs", Type: "dir"},
		github.ContentItem{Name: "README.md", Path: "packages/README.md", Type: "file"},
	)

	e := NewEnumerator(p, quietLogger())
	pkgs, err := e.Discover(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got, want := names(pkgs), []string{"widgets-cli", "widgets-core"}; !slices.Equal(got, want) {
		t.Fatalf("packages = %v, want %v", got, want)
	}
	if pkgs[0].Path != "packages/widgets-cli/package.json" || pkgs[0].Kind != KindNPM {
		t.Errorf("descriptor = %+v", pkgs[0])
	}
}

func TestEnumeratorMissingDirectory(t *testing.T) {
	p := newFakeProvider()
	p.addRepo("acme/empty", 0)

	pkgs, err := NewEnumerator(p, quietLogger()).Discover(context.Background(), "acme", "empty")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(pkgs) != 0 {
		t.Errorf("packages = %v, want none", pkgs)
	}
}

func TestEnumeratorDeduplicatesByName(t *testing.T) {
	p := newFakeProvider()
	p.addPackage("acme/widgets", "a", manifest("shared"))
	p.addPackage("acme/widgets", "b", manifest("shared"))

	pkgs, err := NewEnumerator(p, quietLogger()).Discover(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(pkgs) != 1 || pkgs[0].Path != "packages/a/package.json" {
		t.Errorf("packages = %+v, want only packages/a", pkgs)
	}
}

func TestEnumeratorIncludeRoot(t *testing.T) {
	tests := []struct {
		name string
		root string
		want []string
	}{
		{"public root", manifest("widgets"), []string{"widgets", "widgets-core"}},
		{"private root", `{"name": "monorepo", "private": true}`, []string{"widgets-core"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProvider()
			p.addPackage("acme/widgets", "widgets-core", manifest("widgets-core"))
			p.files["acme/widgets:package.json"] = tt.root

			e := NewEnumerator(p, quietLogger())
			e.IncludeRoot = true
			pkgs, err := e.Discover(context.Background(), "acme", "widgets")
			if err != nil {
				t.Fatalf("Discover: %v", err)
			}
			if got := names(pkgs); !slices.Equal(got, tt.want) {
				t.Errorf("packages = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnumeratorPropagatesRateLimit(t *testing.T) {
	p := newFakeProvider()
	p.addPackage("acme/widgets", "widgets-core", manifest("widgets-core"))
	p.contentErr["acme/widgets:packages/widgets-core/package.json"] = &errors.RateLimitedError{Resource: "core"}

	_, err := NewEnumerator(p, quietLogger()).Discover(context.Background(), "acme", "widgets")
	if !errors.Is(err, errors.ErrCodeRateLimited) {
		t.Fatalf("err = %v, want RATE_LIMITED", err)
	}
}

func TestEnumeratorSearchMode(t *testing.T) {
	p := newFakeProvider()
	q := "repo:acme/widgets filename:package.json path:/packages/"
	for _, dir := range []string{"widgets-core", "widgets-cli"} {
		path := "packages/" + dir + "/package.json"
		p.files["acme/widgets:"+path] = manifest(dir)
		p.searches[q] = append(p.searches[q], github.CodeItem{Path: path})
	}

	e := NewEnumerator(p, quietLogger())
	e.Mode = ModeSearch
	pkgs, err := e.Discover(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got, want := names(pkgs), []string{"widgets-cli", "widgets-core"}; !slices.Equal(got, want) {
		t.Errorf("packages = %v, want %v", got, want)
	}
	if calls := p.calls(); len(calls) != 1 || calls[0] != q+"#1" {
		t.Errorf("search calls = %v", calls)
	}
}
