// Package validation checks the names that end up in REST paths.
package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// ReservedSiteNames are the endpoint names under the API prefix. A site
// with one of these names could not be addressed.
var ReservedSiteNames = []string{"channels", "export", "loads", "sites"}

// NameRules defines the validation rules for a name.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool

	// Reserved names are rejected, compared case-insensitively.
	Reserved []string
}

// SiteNameRules returns the rules for site names. A site name is a path
// segment of every endpoint.
func SiteNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    64,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
		Reserved:     ReservedSiteNames,
	}
}

// SourceNameRules returns the rules for source names. The empty name is
// allowed; it is the usual name of a site's only source.
func SourceNameRules() NameRules {
	return NameRules{
		MinLength:    0,
		MaxLength:    64,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}
	if name == "" {
		return nil
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be '.' or '..'")
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	for _, reserved := range rules.Reserved {
		if strings.EqualFold(name, reserved) {
			return fmt.Errorf("%q is reserved", name)
		}
	}
	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// ValidateSiteName validates a site name.
func ValidateSiteName(name string) error {
	return ValidateName(name, SiteNameRules())
}

// ValidateSourceName validates a source name.
func ValidateSourceName(name string) error {
	return ValidateName(name, SourceNameRules())
}
