// Package expand substitutes ${env.KEY} expressions in configuration text.
package expand

import (
	"os"
	"strings"
	"unicode"
)

const prefix = "${env."

// Env replaces every ${env.KEY} in value with the environment variable KEY.
// Unset variables expand to "". An expression without a closing brace is kept
// verbatim; one whose key is not made of letters, digits or '_' keeps its
// prefix and the rest is scanned again.
func Env(value string) string {
	return With(value, os.Getenv)
}

// With is Env with a custom lookup.
func With(value string, lookup func(string) string) string {
	if !strings.Contains(value, prefix) {
		return value
	}
	var out strings.Builder
	for {
		start := strings.Index(value, prefix)
		if start < 0 {
			out.WriteString(value)
			return out.String()
		}
		out.WriteString(value[:start])
		rest := value[start+len(prefix):]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			out.WriteString(value[start:])
			return out.String()
		}
		key := rest[:end]
		if !validKey(key) {
			out.WriteString(prefix)
			value = rest
			continue
		}
		out.WriteString(lookup(key))
		value = rest[end+1:]
	}
}

func validKey(key string) bool {
	for _, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
