package javascript

import (
	"reflect"
	"testing"

	"github.com/matzehuels/dependents/pkg/errors"
)

func mustParse(t *testing.T, s string) *Manifest {
	t.Helper()
	m, err := Parse([]byte(s))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return m
}

func TestParse(t *testing.T) {
	m := mustParse(t, `{"name": " @acme/ui ", "version": "1.2.3", "private": true}`)
	if m.Name() != "@acme/ui" {
		t.Errorf("Name() = %q", m.Name())
	}
	if m.Version() != "1.2.3" {
		t.Errorf("Version() = %q", m.Version())
	}
	if !m.Private() {
		t.Error("Private() = false, want true")
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "{", `{"name": }`, `["a"]`, `"str"`} {
		if _, err := Parse([]byte(in)); !errors.Is(err, errors.ErrCodeParseFailure) {
			t.Errorf("Parse(%q) err = %v, want PARSE_FAILURE", in, err)
		}
	}
}

func TestParseTolerant(t *testing.T) {
	m := mustParse(t, `{"name": 42, "private": "yes", "workspaces": "packages/*"}`)
	if m.Name() != "" {
		t.Errorf("non-string name should read as empty, got %q", m.Name())
	}
	if m.Private() {
		t.Error(`"private": "yes" should not count as private`)
	}
	if m.Workspaces() != nil {
		t.Errorf("string workspaces should be ignored, got %v", m.Workspaces())
	}
}

func TestWorkspaces(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{"array", `{"workspaces": ["packages/*", "apps/web"]}`, []string{"packages/*", "apps/web"}},
		{"object", `{"workspaces": {"packages": ["libs/*"], "nohoist": ["**"]}}`, []string{"libs/*"}},
		{"skips non-strings", `{"workspaces": ["a", 1, "", null]}`, []string{"a"}},
		{"missing", `{}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustParse(t, tt.doc).Workspaces(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Workspaces() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnscoped(t *testing.T) {
	tests := map[string]string{
		"@acme/ui": "ui",
		"react":    "react",
		"@broken":  "@broken",
	}
	for in, want := range tests {
		if got := Unscoped(in); got != want {
			t.Errorf("Unscoped(%q) = %q, want %q", in, got, want)
		}
	}
	if !IsScoped("@acme/ui") || IsScoped("ui") {
		t.Error("IsScoped misclassified")
	}
}
