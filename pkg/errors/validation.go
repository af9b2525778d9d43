package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// maxPackageNameLen is the registry's own limit.
const maxPackageNameLen = 214

// forbidden lists substrings that could escape a quoted search term or an
// API path segment.
var forbidden = []string{"..", "//", "\\", "\""}

// ValidatePackageName checks that a package name is safe to embed in a code
// search query or a contents path. It does not enforce npm naming rules;
// manifests in the wild carry names the registry would reject.
func ValidatePackageName(name string) error {
	switch {
	case name == "":
		return New(ErrCodeInvalidPackage, "package name is empty")
	case len(name) > maxPackageNameLen:
		return New(ErrCodeInvalidPackage, "package name exceeds %d characters", maxPackageNameLen)
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return New(ErrCodeInvalidPackage, "package name %q contains control characters", name)
	}
	for _, s := range forbidden {
		if strings.Contains(name, s) {
			return New(ErrCodeInvalidPackage, "package name %q contains %q", name, s)
		}
	}
	return nil
}

// npmName accepts scoped and unscoped names, including legacy uppercase
// names the registry still serves.
var npmName = regexp.MustCompile(`^(@[A-Za-z0-9-~][A-Za-z0-9-._~]*/)?[A-Za-z0-9-~][A-Za-z0-9-._~]*$`)

// ValidateNpmPackageName is the stricter check applied to names supplied by
// a caller, such as the --package flag or the API's packages parameter.
func ValidateNpmPackageName(name string) error {
	if err := ValidatePackageName(name); err != nil {
		return err
	}
	if !npmName.MatchString(name) {
		return New(ErrCodeInvalidPackage, "%q is not a valid npm package name", name)
	}
	return nil
}
