package session

import (
	"fmt"
	"strings"
	"unicode"
)

// ParseOptions splits an engine option string into key/value pairs.  Options are whitespace separated tokens of
// the form ":key=value"; a value may be double quoted to contain spaces.  An empty string yields no options.
func ParseOptions(s string) (map[string]string, error) {
	opts := make(map[string]string)
	rest := strings.TrimSpace(s)

	for rest != "" {
		if rest[0] != ':' {
			return nil, fmt.Errorf("%w: option %q must start with ':'", ErrValidation, firstField(rest))
		}
		rest = rest[1:]

		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("%w: option %q has no key=value", ErrValidation, ":"+firstField(rest))
		}
		key := rest[:eq]
		if strings.IndexFunc(key, unicode.IsSpace) >= 0 {
			return nil, fmt.Errorf("%w: option key %q contains whitespace", ErrValidation, key)
		}
		rest = rest[eq+1:]

		var value string
		if strings.HasPrefix(rest, `"`) {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated quote in option %q", ErrValidation, key)
			}
			value = rest[1 : end+1]
			rest = rest[end+2:]
			if rest != "" && !unicode.IsSpace(rune(rest[0])) {
				return nil, fmt.Errorf("%w: unexpected text after quoted option %q", ErrValidation, key)
			}
		} else {
			value = firstField(rest)
			rest = rest[len(value):]
		}

		if _, dup := opts[key]; dup {
			return nil, fmt.Errorf("%w: option %q given twice", ErrValidation, key)
		}
		opts[key] = value
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
	}

	return opts, nil
}

func firstField(s string) string {
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		return s[:i]
	}
	return s
}
