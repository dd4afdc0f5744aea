// Package audit produces the structured, redacting security audit trail for
// every gateway decision. Entries are immutable once created and flow to two
// independently toggleable sinks: the console and a durable store.
package audit

import "time"

// Level orders audit severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Category names the kind of event being audited. The set is fixed; so is the
// category → level mapping below.
type Category string

const (
	CategoryToolCall           Category = "TOOL_CALL"
	CategoryToolSuccess        Category = "TOOL_SUCCESS"
	CategoryToolError          Category = "TOOL_ERROR"
	CategoryAuth               Category = "AUTH"
	CategoryPermissionDenied   Category = "PERMISSION_DENIED"
	CategoryOwnershipDenied    Category = "OWNERSHIP_DENIED"
	CategoryRateLimited        Category = "RATE_LIMITED"
	CategoryValidationFailed   Category = "VALIDATION_FAILED"
	CategoryConfirmation       Category = "CONFIRMATION"
	CategoryExecutionError     Category = "EXECUTION_ERROR"
	CategorySuspiciousActivity Category = "SUSPICIOUS_ACTIVITY"
)

var categoryLevels = map[Category]Level{
	CategoryToolCall:           LevelInfo,
	CategoryToolSuccess:        LevelInfo,
	CategoryToolError:          LevelError,
	CategoryAuth:               LevelInfo,
	CategoryPermissionDenied:   LevelWarn,
	CategoryOwnershipDenied:    LevelWarn,
	CategoryRateLimited:        LevelWarn,
	CategoryValidationFailed:   LevelWarn,
	CategoryConfirmation:       LevelInfo,
	CategoryExecutionError:     LevelError,
	CategorySuspiciousActivity: LevelCritical,
}

// LevelFor resolves the fixed level for a category.
func LevelFor(c Category) Level {
	if l, ok := categoryLevels[c]; ok {
		return l
	}
	return LevelInfo
}

// Entry is one immutable audit record. Input and Result are serialized,
// redacted, truncated strings — never raw values.
type Entry struct {
	ID        string
	Timestamp time.Time
	Category  Category
	Level     Level
	UserID    string
	SessionID string
	IPAddress string
	UserAgent string
	ToolName  string
	Input     string
	Result    string
	Success   *bool
	Error     string
	ErrorType string
	Page      string
	Duration  time.Duration
	Metadata  map[string]string
}
