package javascript

import (
	"bytes"
	"strings"

	"github.com/tidwall/gjson"
)

// DependencyType names the manifest section a match was found in.
type DependencyType string

// Dependency types.
const (
	Dependencies         DependencyType = "dependencies"
	DevDependencies      DependencyType = "devDependencies"
	PeerDependencies     DependencyType = "peerDependencies"
	OptionalDependencies DependencyType = "optionalDependencies"
	Workspaces           DependencyType = "workspaces"
	Unknown              DependencyType = "unknown"
)

// UnknownVersion is reported when no declared range is available.
const UnknownVersion = "unknown"

// Sections are the structured dependency sections, in match order.
var Sections = []DependencyType{Dependencies, DevDependencies, PeerDependencies, OptionalDependencies}

var bundleKeys = []string{"bundleDependencies", "bundledDependencies"}

// Match describes how a manifest references a package.
type Match struct {
	Type        DependencyType
	Version     string
	IsWorkspace bool
}

// Match reports whether the manifest references pkg, and how.
func (m *Manifest) Match(pkg string) (Match, bool) {
	if pkg == "" {
		return Match{}, false
	}
	if r, ok := m.matchSections(pkg); ok {
		return r, true
	}
	if m.matchBundle(pkg) {
		return Match{Type: Dependencies, Version: m.declared(Dependencies, pkg)}, true
	}
	if m.matchWorkspace(pkg) {
		return Match{Type: Workspaces, Version: UnknownVersion, IsWorkspace: true}, true
	}
	if bytes.Contains(m.raw, []byte(`"`+pkg+`"`)) {
		return Match{Type: Unknown, Version: UnknownVersion}, true
	}
	return Match{}, false
}

func (m *Manifest) matchSections(pkg string) (Match, bool) {
	for _, sec := range Sections {
		section := m.root.Get(string(sec))
		if !section.IsObject() {
			continue
		}
		var found Match
		var ok bool
		section.ForEach(func(key, value gjson.Result) bool {
			if key.Str == pkg {
				found, ok = Match{Type: sec, Version: versionOf(value)}, true
				return false
			}
			if target, rng, isAlias := parseAlias(value); isAlias && target == pkg {
				found, ok = Match{Type: sec, Version: rng}, true
				return false
			}
			return true
		})
		if ok {
			return found, true
		}
	}
	return Match{}, false
}

func (m *Manifest) matchBundle(pkg string) bool {
	for _, key := range bundleKeys {
		list := m.root.Get(key)
		if !list.IsArray() {
			continue
		}
		for _, e := range list.Array() {
			if e.Type == gjson.String && e.Str == pkg {
				return true
			}
		}
	}
	return false
}

// matchWorkspace checks workspace entries by path segment. Pure glob
// segments ("*", "**") never match.
func (m *Manifest) matchWorkspace(pkg string) bool {
	unscoped := Unscoped(pkg)
	for _, entry := range m.Workspaces() {
		clean := strings.Trim(strings.TrimPrefix(entry, "./"), "/")
		if strings.Contains("/"+clean+"/", "/"+pkg+"/") {
			return true
		}
		for _, seg := range strings.Split(clean, "/") {
			if seg == unscoped {
				return true
			}
		}
	}
	return false
}

// declared returns the range pkg is declared with in section, or
// UnknownVersion.
func (m *Manifest) declared(section DependencyType, pkg string) string {
	obj := m.root.Get(string(section))
	if !obj.IsObject() {
		return UnknownVersion
	}
	v := UnknownVersion
	obj.ForEach(func(key, value gjson.Result) bool {
		if key.Str == pkg {
			v = versionOf(value)
			return false
		}
		return true
	})
	return v
}

func versionOf(v gjson.Result) string {
	if v.Type != gjson.String || strings.TrimSpace(v.Str) == "" {
		return UnknownVersion
	}
	return strings.TrimSpace(v.Str)
}

// parseAlias splits an "npm:<name>@<range>" value.
func parseAlias(v gjson.Result) (name, rng string, ok bool) {
	if v.Type != gjson.String || !strings.HasPrefix(v.Str, "npm:") {
		return "", "", false
	}
	rest := strings.TrimPrefix(v.Str, "npm:")
	// The scope's own "@" sits at index 0.
	at := strings.LastIndex(rest, "@")
	if at <= 0 {
		return rest, UnknownVersion, rest != ""
	}
	rng = rest[at+1:]
	if rng == "" {
		rng = UnknownVersion
	}
	return rest[:at], rng, true
}
