package errors

import (
	"strings"
	"testing"
)

func TestValidatePackageName(t *testing.T) {
	accepted := []string{"widgets", "widgets-core", "lodash.merge", "@acme/widgets", "left_pad", "JSONStream"}
	for _, name := range accepted {
		if err := ValidatePackageName(name); err != nil {
			t.Errorf("ValidatePackageName(%q) = %v, want nil", name, err)
		}
	}

	rejected := map[string]string{
		"empty":        "",
		"too long":     strings.Repeat("w", maxPackageNameLen+1),
		"traversal":    "@acme/../secrets",
		"double slash": "@acme//widgets",
		"backslash":    `widgets\core`,
		"quote":        `widgets" OR "x`,
		"null byte":    "widgets\x00",
		"newline":      "widgets\nfilename:package.json",
		"control rune": "wid\x7fgets",
	}
	for label, name := range rejected {
		t.Run(label, func(t *testing.T) {
			err := ValidatePackageName(name)
			if !Is(err, ErrCodeInvalidPackage) {
				t.Errorf("ValidatePackageName(%q) = %v, want INVALID_PACKAGE", name, err)
			}
		})
	}
}

func TestValidatePackageNameAtLimit(t *testing.T) {
	if err := ValidatePackageName(strings.Repeat("w", maxPackageNameLen)); err != nil {
		t.Errorf("name of exactly %d characters rejected: %v", maxPackageNameLen, err)
	}
}

func TestValidateNpmPackageName(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"express", true},
		{"@acme/widgets-cli", true},
		{"~tilde", true},
		{"JSONStream", true},
		{"", false},
		{".hidden", false},
		{"_private", false},
		{"@acme/a/b", false},
		{"@/widgets", false},
		{"two words", false},
		{"widgets\"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateNpmPackageName(tt.input)
			if tt.ok && err != nil {
				t.Errorf("ValidateNpmPackageName(%q) = %v, want nil", tt.input, err)
			}
			if !tt.ok && !Is(err, ErrCodeInvalidPackage) {
				t.Errorf("ValidateNpmPackageName(%q) = %v, want INVALID_PACKAGE", tt.input, err)
			}
		})
	}
}
