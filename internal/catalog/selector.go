package catalog

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xtxerr/trending/internal/errors"
)

// Selector syntaxes accepted by ParseSelector.
const (
	SyntaxGlob  = "glob"
	SyntaxRegex = "regex"
)

// Predicate reports whether a full channel path is selected.
type Predicate func(path string) bool

var selectorPattern = regexp.MustCompile(`^(?:([a-z]+):)?(.*)$`)

// ParseSelector compiles a filter selector of the form [syntax:]pattern.
// Syntax is "glob" (the default) or "regex". The pattern must match the
// whole '/'-joined leaf path, ignoring case.
//
// A malformed selector returns an error wrapping errors.ErrSelector.
func ParseSelector(selector string) (Predicate, error) {
	m := selectorPattern.FindStringSubmatch(selector)
	if m == nil {
		return nil, fmt.Errorf("unknown syntax: %q: %w", selector, errors.ErrSelector)
	}
	syntax, pattern := m[1], m[2]

	var expr string
	switch syntax {
	case "", SyntaxGlob:
		var err error
		if expr, err = GlobToRegexp(pattern); err != nil {
			return nil, err
		}
	case SyntaxRegex:
		expr = pattern
	default:
		return nil, fmt.Errorf("unknown syntax: %s: %w", syntax, errors.ErrSelector)
	}

	re, err := regexp.Compile(`(?i)^(?:` + expr + `)$`)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, errors.ErrSelector)
	}
	return re.MatchString, nil
}

// GlobToRegexp translates a Unix-style glob into an unanchored regular
// expression. '*' matches within one path segment, '**' across segments,
// '?' one character other than '/', "[...]" and "[!...]" are character
// classes and "{a,b}" is an alternation.
func GlobToRegexp(glob string) (string, error) {
	var b strings.Builder
	inGroup := false

	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '\\':
			if i+1 >= len(glob) {
				return "", globError(glob, i, "no character to escape")
			}
			i++
			_, size := utf8.DecodeRuneInString(glob[i:])
			b.WriteString(regexp.QuoteMeta(glob[i : i+size]))
			i += size - 1
		case '/':
			b.WriteByte('/')
		case '[':
			end, class, err := globClass(glob, i)
			if err != nil {
				return "", err
			}
			b.WriteString(class)
			i = end
		case '{':
			if inGroup {
				return "", globError(glob, i, "cannot nest groups")
			}
			b.WriteString("(?:")
			inGroup = true
		case '}':
			if inGroup {
				b.WriteByte(')')
				inGroup = false
			} else {
				b.WriteString(`\}`)
			}
		case ',':
			if inGroup {
				b.WriteByte('|')
			} else {
				b.WriteByte(',')
			}
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		default:
			_, size := utf8.DecodeRuneInString(glob[i:])
			b.WriteString(regexp.QuoteMeta(glob[i : i+size]))
			i += size - 1
		}
	}

	if inGroup {
		return "", globError(glob, len(glob), "missing '}'")
	}
	return b.String(), nil
}

// globClass translates the bracket expression starting at glob[start] and
// returns the index of its closing ']'.
func globClass(glob string, start int) (int, string, error) {
	var b strings.Builder
	b.WriteByte('[')

	i := start + 1
	if i < len(glob) && (glob[i] == '!' || glob[i] == '^') {
		b.WriteString("^/")
		i++
	}
	first := true
	for ; i < len(glob); i++ {
		c := glob[i]
		switch {
		case c == ']' && !first:
			b.WriteByte(']')
			return i, b.String(), nil
		case c == '/':
			return 0, "", globError(glob, i, "explicit path separator in class")
		case c == '\\' || c == '[' || c == ']' || c == '^':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
		first = false
	}
	return 0, "", globError(glob, len(glob), "missing ']'")
}

func globError(glob string, pos int, reason string) error {
	return fmt.Errorf("%s near index %d in %q: %w", reason, pos, glob, errors.ErrSelector)
}
