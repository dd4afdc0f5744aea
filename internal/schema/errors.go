package schema

import "fmt"

// ValidationError is returned for any input that violates its schema or
// trips an injection check. StatusCode maps directly to the HTTP layer.
type ValidationError struct {
	Field      string
	Reason     string
	StatusCode int
	// Suspicious marks violations that look like deliberate attacks
	// (injection patterns, prototype pollution, traversal) rather than
	// malformed input; callers escalate these to the audit trail.
	Suspicious bool
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func errf(field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Field:      field,
		Reason:     fmt.Sprintf(format, args...),
		StatusCode: 400,
	}
}

func suspectf(field, format string, args ...any) *ValidationError {
	e := errf(field, format, args...)
	e.Suspicious = true
	return e
}
