package javascript

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/matzehuels/dependents/pkg/errors"
)

// Manifest is a parsed package.json.
type Manifest struct {
	raw  []byte
	root gjson.Result
}

// Parse reads a package.json document. Only syntactically invalid JSON (or
// a document that is not an object) is an error.
func Parse(data []byte) (*Manifest, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New(errors.ErrCodeParseFailure, "package.json is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, errors.New(errors.ErrCodeParseFailure, "package.json is not a JSON object")
	}
	return &Manifest{raw: data, root: root}, nil
}

// Name returns the declared package name, trimmed. Empty when missing or
// not a string.
func (m *Manifest) Name() string {
	return stringField(m.root, "name")
}

// Version returns the declared version, or empty.
func (m *Manifest) Version() string {
	return stringField(m.root, "version")
}

// Private reports whether the manifest sets "private": true.
func (m *Manifest) Private() bool {
	v := m.root.Get("private")
	return v.Type == gjson.True || (v.Type == gjson.String && v.Str == "true")
}

// Workspaces returns the workspace entries, from either the array form or
// the {"packages": [...]} object form.
func (m *Manifest) Workspaces() []string {
	ws := m.root.Get("workspaces")
	if ws.IsObject() {
		ws = ws.Get("packages")
	}
	if !ws.IsArray() {
		return nil
	}
	var out []string
	for _, e := range ws.Array() {
		if e.Type == gjson.String && strings.TrimSpace(e.Str) != "" {
			out = append(out, strings.TrimSpace(e.Str))
		}
	}
	return out
}

func stringField(r gjson.Result, key string) string {
	v := r.Get(key)
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.Str)
}

// IsScoped reports whether name has the "@scope/" form.
func IsScoped(name string) bool {
	return strings.HasPrefix(name, "@") && strings.Contains(name, "/")
}

// Unscoped returns the part of a scoped name after the slash, or name
// unchanged.
func Unscoped(name string) string {
	if !IsScoped(name) {
		return name
	}
	return name[strings.Index(name, "/")+1:]
}
