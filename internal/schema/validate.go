package schema

import (
	"fmt"
	"math"
	"strings"
)

// Limits bounds every dimension of untrusted input. Zero values are
// normalized to defaults by NewValidator.
type Limits struct {
	MaxDepth     int
	MaxStringLen int
	MaxArrayLen  int
	MinNumber    float64
	MaxNumber    float64
	// Production enables restrictions that only make sense outside local
	// development, such as blocking loopback and private URL hosts.
	Production bool
}

const (
	defaultMaxDepth     = 5
	defaultMaxStringLen = 2000
	defaultMaxArrayLen  = 100
	defaultNumberBound  = 10000
)

// Keys that can alter object prototypes or constructors in downstream
// JavaScript consumers. Rejected at every nesting level.
var forbiddenKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// Validator applies a Schema to untrusted input and returns a sanitized copy.
type Validator struct {
	limits Limits
}

// NewValidator creates a Validator, filling unset limits with defaults.
func NewValidator(limits Limits) *Validator {
	if limits.MaxDepth == 0 {
		limits.MaxDepth = defaultMaxDepth
	}
	if limits.MaxStringLen == 0 {
		limits.MaxStringLen = defaultMaxStringLen
	}
	if limits.MaxArrayLen == 0 {
		limits.MaxArrayLen = defaultMaxArrayLen
	}
	if limits.MinNumber == 0 && limits.MaxNumber == 0 {
		limits.MinNumber = -defaultNumberBound
		limits.MaxNumber = defaultNumberBound
	}
	return &Validator{limits: limits}
}

// Limits returns the active bounds.
func (v *Validator) Limits() Limits { return v.limits }

// Validate checks value against s and returns the sanitized value. Any
// violation yields a *ValidationError with StatusCode 400.
func (v *Validator) Validate(value any, s *Schema, field string) (any, error) {
	return v.validate(value, s, field, 0)
}

func (v *Validator) validate(value any, s *Schema, field string, depth int) (any, error) {
	if depth > v.limits.MaxDepth {
		return nil, errf(field, "input exceeds maximum nesting depth of %d", v.limits.MaxDepth)
	}

	if value == nil {
		if s.Required {
			return nil, errf(field, "field is required")
		}
		if s.Default != nil {
			return s.Default, nil
		}
		return nil, nil
	}

	switch s.Type {
	case TypeString:
		return v.validateString(value, s, field)
	case TypeInteger:
		return v.validateNumber(value, s, field, true)
	case TypeNumber:
		return v.validateNumber(value, s, field, false)
	case TypeBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, errf(field, "expected boolean, got %T", value)
		}
		return b, nil
	case TypeArray:
		return v.validateArray(value, s, field, depth)
	case TypeObject:
		return v.validateObject(value, s, field, depth)
	default:
		return nil, errf(field, "unknown schema type %q", s.Type)
	}
}

func (v *Validator) validateString(value any, s *Schema, field string) (any, error) {
	str, ok := value.(string)
	if !ok {
		return nil, errf(field, "expected string, got %T", value)
	}

	// Enum members are a closed set declared by the tool definition; they are
	// trusted as-is and skip sanitization.
	if len(s.Enum) > 0 {
		for _, allowed := range s.Enum {
			if str == allowed {
				return str, nil
			}
		}
		return nil, errf(field, "value not in allowed set")
	}

	str = stripControlChars(str)

	maxLen := s.MaxLength
	if maxLen == 0 || maxLen > v.limits.MaxStringLen {
		maxLen = v.limits.MaxStringLen
	}
	if len(str) > maxLen {
		return nil, errf(field, "string exceeds maximum length of %d", maxLen)
	}
	if len(str) < s.MinLength {
		return nil, errf(field, "string shorter than minimum length of %d", s.MinLength)
	}

	switch s.Format {
	case FormatPath:
		if err := validatePathString(str, field); err != nil {
			return nil, err
		}
	case FormatPattern:
		if err := validateGlobString(str, field); err != nil {
			return nil, err
		}
	case FormatHTML:
		str = encodeHTMLEntities(str)
	default:
		if detail := checkInjection(str); detail != "" {
			return nil, suspectf(field, "input rejected: %s", detail)
		}
	}

	// Schema-declared regex runs last, against the sanitized value.
	if s.Pattern != nil && !s.Pattern.MatchString(str) {
		return nil, errf(field, "value does not match required pattern")
	}

	return str, nil
}

func (v *Validator) validateNumber(value any, s *Schema, field string, integer bool) (any, error) {
	f, ok := toFloat(value)
	if !ok {
		return nil, errf(field, "expected number, got %T", value)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, errf(field, "number is not finite")
	}
	if integer && f != math.Trunc(f) {
		return nil, errf(field, "expected integer, got fractional value")
	}

	// Clamp rather than reject: out-of-range numerics are bounded, matching
	// the clamp-to-limits contract for numeric input.
	lo, hi := v.limits.MinNumber, v.limits.MaxNumber
	if s.Minimum != nil && *s.Minimum > lo {
		lo = *s.Minimum
	}
	if s.Maximum != nil && *s.Maximum < hi {
		hi = *s.Maximum
	}
	if f < lo {
		f = lo
	}
	if f > hi {
		f = hi
	}

	if integer {
		return int(f), nil
	}
	return f, nil
}

func (v *Validator) validateArray(value any, s *Schema, field string, depth int) (any, error) {
	arr, ok := value.([]any)
	if !ok {
		return nil, errf(field, "expected array, got %T", value)
	}

	maxItems := s.MaxItems
	if maxItems == 0 || maxItems > v.limits.MaxArrayLen {
		maxItems = v.limits.MaxArrayLen
	}
	if len(arr) > maxItems {
		return nil, errf(field, "array exceeds maximum of %d items", maxItems)
	}
	if len(arr) < s.MinItems {
		return nil, errf(field, "array has fewer than %d items", s.MinItems)
	}

	out := make([]any, 0, len(arr))
	for i, item := range arr {
		itemField := fmt.Sprintf("%s[%d]", field, i)
		if s.Items != nil {
			sanitized, err := v.validate(item, s.Items, itemField, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, sanitized)
			continue
		}
		sanitized, err := v.sanitizeAny(item, itemField, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, sanitized)
	}
	return out, nil
}

func (v *Validator) validateObject(value any, s *Schema, field string, depth int) (any, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, errf(field, "expected object, got %T", value)
	}

	for key := range obj {
		if forbiddenKeys[key] {
			return nil, suspectf(field, "forbidden key %q", key)
		}
	}

	for _, req := range s.RequiredKeys {
		if _, present := obj[req]; !present {
			return nil, errf(field, "missing required key %q", req)
		}
	}

	out := make(map[string]any, len(obj))
	for key, val := range obj {
		keyField := field + "." + key
		if prop, declared := s.Properties[key]; declared {
			sanitized, err := v.validate(val, prop, keyField, depth+1)
			if err != nil {
				return nil, err
			}
			out[key] = sanitized
			continue
		}
		if !s.AdditionalProperties {
			continue // undeclared keys are dropped, not errors
		}
		sanitized, err := v.sanitizeAny(val, keyField, depth+1)
		if err != nil {
			return nil, err
		}
		out[key] = sanitized
	}

	// Declared-but-absent properties may still contribute defaults or fail
	// their required check.
	for name, prop := range s.Properties {
		if _, present := out[name]; present {
			continue
		}
		sanitized, err := v.validate(nil, prop, field+"."+name, depth+1)
		if err != nil {
			return nil, err
		}
		if sanitized != nil {
			out[name] = sanitized
		}
	}

	return out, nil
}

func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		if r == 0x7f {
			return -1
		}
		return r
	}, s)
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
