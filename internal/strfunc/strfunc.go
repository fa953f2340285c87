// Package strfunc holds the string helpers shared by the router and the
// controller: slash normalization for mounted paths and the snake_case <->
// lowerCamelCase conversion applied to every field name crossing the wire.
package strfunc

import (
	"regexp"
	"strings"
)

var duplicateSlashes = regexp.MustCompile(`/{2,}`)

// UntrailingSlash removes every trailing slash.
func UntrailingSlash(s string) string {
	return strings.TrimRight(s, "/")
}

// TrailingSlash guarantees exactly one trailing slash.
func TrailingSlash(s string) string {
	return UntrailingSlash(s) + "/"
}

// UnleadingSlash removes every leading slash.
func UnleadingSlash(s string) string {
	return strings.TrimLeft(s, "/")
}

// LeadingSlash guarantees exactly one leading slash.
func LeadingSlash(s string) string {
	return "/" + UnleadingSlash(s)
}

// UnduplicateSlash collapses runs of slashes into one.
func UnduplicateSlash(s string) string {
	return duplicateSlashes.ReplaceAllString(s, "/")
}

// ProperSlash normalizes a route path: one leading slash, no trailing slash,
// no empty segments. The root path normalizes to "/".
func ProperSlash(s string) string {
	return UnduplicateSlash(LeadingSlash(UntrailingSlash(s)))
}

// CamelCase converts snake_case to UpperCamelCase. Every segment is
// lowercased before its first letter is capitalized.
func CamelCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, part := range strings.Split(strings.ToLower(s), "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

// LowerCamelCase converts snake_case to lowerCamelCase. Leading underscores
// are kept.
func LowerCamelCase(s string) string {
	trimmed := strings.TrimLeft(s, "_")
	prefix := s[:len(s)-len(trimmed)]
	camel := CamelCase(trimmed)
	if camel == "" {
		return prefix
	}
	return prefix + strings.ToLower(camel[:1]) + camel[1:]
}

// SnakeCase converts CamelCase or lowerCamelCase to snake_case by starting a
// new segment at every upper-case letter, so single-letter segments survive
// ("coordXY" -> "coord_x_y"). Acronyms are split letter by letter.
func SnakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch >= 'A' && ch <= 'Z' {
			if i > 0 && s[i-1] != '_' {
				b.WriteByte('_')
			}
			ch += 'a' - 'A'
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// GetParam looks key up in params ignoring case. The second result reports
// whether a match was found.
func GetParam(key string, params map[string]string) (string, bool) {
	if v, ok := params[key]; ok {
		return v, true
	}
	for k, v := range params {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
