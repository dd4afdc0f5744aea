package schema

import "unicode/utf8"

// sanitizeAny is the bounded generic visitor used for values with no declared
// schema: depth, string length, array length, and numeric range are clamped,
// forbidden keys rejected. Recursion carries an explicit depth counter; there
// is no hidden limit beyond MaxDepth.
func (v *Validator) sanitizeAny(value any, field string, depth int) (any, error) {
	if depth > v.limits.MaxDepth {
		return nil, errf(field, "input exceeds maximum nesting depth of %d", v.limits.MaxDepth)
	}

	switch val := value.(type) {
	case nil:
		return nil, nil
	case bool:
		return val, nil
	case string:
		s := stripControlChars(val)
		if len(s) > v.limits.MaxStringLen {
			s = truncateRuneSafe(s, v.limits.MaxStringLen)
		}
		return s, nil
	case []any:
		if len(val) > v.limits.MaxArrayLen {
			val = val[:v.limits.MaxArrayLen]
		}
		out := make([]any, 0, len(val))
		for _, item := range val {
			sanitized, err := v.sanitizeAny(item, field, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, sanitized)
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for key, item := range val {
			if forbiddenKeys[key] {
				return nil, suspectf(field, "forbidden key %q", key)
			}
			sanitized, err := v.sanitizeAny(item, field+"."+key, depth+1)
			if err != nil {
				return nil, err
			}
			out[key] = sanitized
		}
		return out, nil
	default:
		f, ok := toFloat(value)
		if !ok {
			// Unknown scalar type from a decoder we do not control; drop it.
			return nil, nil
		}
		if f < v.limits.MinNumber {
			f = v.limits.MinNumber
		}
		if f > v.limits.MaxNumber {
			f = v.limits.MaxNumber
		}
		return f, nil
	}
}

// SanitizeAny applies the generic bounded sanitizer with no schema.
func (v *Validator) SanitizeAny(value any, field string) (any, error) {
	return v.sanitizeAny(value, field, 0)
}

// truncateRuneSafe cuts s to at most max bytes, backing off to a rune
// boundary so the result is never invalid UTF-8.
func truncateRuneSafe(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
