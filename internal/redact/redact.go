// Package redact replaces sensitive field values with a fixed marker before
// they can reach a log sink or a stored confirmation.
package redact

import "strings"

// Marker replaces every redacted value.
const Marker = "[REDACTED]"

// DefaultSensitiveKeys is the standard denylist. Matching is case-insensitive
// substring: a key like "userApiKeyId" matches "apikey".
var DefaultSensitiveKeys = []string{
	"apikey",
	"api_key",
	"password",
	"token",
	"secret",
	"credential",
	"authorization",
}

// IsSensitiveKey reports whether key matches any denylist entry.
func IsSensitiveKey(key string, denylist []string) bool {
	lower := strings.ToLower(key)
	for _, needle := range denylist {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// Value walks v and replaces the value of every sensitive key, at any nesting
// depth, with Marker. The input is never mutated; a redacted copy is returned.
func Value(v any, denylist []string) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for key, item := range val {
			if IsSensitiveKey(key, denylist) {
				out[key] = Marker
				continue
			}
			out[key] = Value(item, denylist)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Value(item, denylist)
		}
		return out
	default:
		return v
	}
}
