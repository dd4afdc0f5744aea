package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veritest-ai/toolgate/internal/redact"
)

const (
	defaultMaxFieldLen = 10000
	truncationMarker   = "...[truncated]"
)

// Config configures the Logger. Zero values take defaults.
type Config struct {
	MinLevel      Level
	MaxFieldLen   int
	SensitiveKeys []string
	// Console enables the human-readable zap sink.
	Console bool
	// Store receives durable writes; nil disables the durable sink.
	Store  Store
	Logger *zap.Logger
}

// Logger builds and dispatches audit entries.
type Logger struct {
	cfg Config
}

// NewLogger creates a Logger.
func NewLogger(cfg Config) *Logger {
	if cfg.MaxFieldLen == 0 {
		cfg.MaxFieldLen = defaultMaxFieldLen
	}
	if cfg.SensitiveKeys == nil {
		cfg.SensitiveKeys = redact.DefaultSensitiveKeys
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Logger{cfg: cfg}
}

// Record carries the caller-supplied fields of an audit event. Input and
// Result are arbitrary values; the Logger serializes, redacts, and truncates
// them.
type Record struct {
	Category  Category
	UserID    string
	SessionID string
	IPAddress string
	UserAgent string
	ToolName  string
	Input     any
	Result    any
	Success   *bool
	Error     string
	ErrorType string
	Page      string
	Duration  time.Duration
	Metadata  map[string]string
}

// Log creates an immutable entry from rec and writes it to the enabled
// sinks. Entries whose category level is below MinLevel are not created at
// all: Log returns nil and neither sink sees them.
func (l *Logger) Log(rec Record) *Entry {
	level := LevelFor(rec.Category)
	if level < l.cfg.MinLevel {
		return nil
	}

	e := &Entry{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Category:  rec.Category,
		Level:     level,
		UserID:    rec.UserID,
		SessionID: rec.SessionID,
		IPAddress: rec.IPAddress,
		UserAgent: rec.UserAgent,
		ToolName:  rec.ToolName,
		Input:     l.sanitizeInput(rec.Input),
		Result:    l.truncateResult(rec.Result),
		Success:   rec.Success,
		Error:     rec.Error,
		ErrorType: rec.ErrorType,
		Page:      rec.Page,
		Duration:  rec.Duration,
		Metadata:  rec.Metadata,
	}

	if l.cfg.Console {
		l.writeConsole(e)
	}
	if l.cfg.Store != nil {
		// Fire-and-forget: the store buffers internally and reports its own
		// failures to the console; a durable-sink outage never blocks or
		// fails the primary action.
		l.cfg.Store.Write(e)
	}
	return e
}

// sanitizeInput serializes input with every sensitive key masked, then
// truncates the serialized form.
func (l *Logger) sanitizeInput(input any) string {
	if input == nil {
		return ""
	}
	redacted := redact.Value(input, l.cfg.SensitiveKeys)
	raw, err := json.Marshal(redacted)
	if err != nil {
		return "[unserializable]"
	}
	return l.truncate(string(raw))
}

func (l *Logger) truncateResult(result any) string {
	if result == nil {
		return ""
	}
	if s, ok := result.(string); ok {
		return l.truncate(s)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return "[unserializable]"
	}
	return l.truncate(string(raw))
}

func (l *Logger) truncate(s string) string {
	if len(s) <= l.cfg.MaxFieldLen {
		return s
	}
	return s[:l.cfg.MaxFieldLen] + truncationMarker
}

func (l *Logger) writeConsole(e *Entry) {
	fields := []zap.Field{
		zap.String("audit_id", e.ID),
		zap.String("category", string(e.Category)),
		zap.String("level", e.Level.String()),
	}
	if e.UserID != "" {
		fields = append(fields, zap.String("user_id", e.UserID))
	}
	if e.ToolName != "" {
		fields = append(fields, zap.String("tool_name", e.ToolName))
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", e.Error))
	}
	if e.Duration > 0 {
		fields = append(fields, zap.Duration("duration", e.Duration))
	}

	switch e.Level {
	case LevelDebug:
		l.cfg.Logger.Debug("audit", fields...)
	case LevelInfo:
		l.cfg.Logger.Info("audit", fields...)
	case LevelWarn:
		l.cfg.Logger.Warn("audit", fields...)
	default:
		l.cfg.Logger.Error("audit", fields...)
	}
}

func boolPtr(b bool) *bool { return &b }

// ToolCall records a tool-call attempt.
func (l *Logger) ToolCall(userID, sessionID, toolName string, input any) *Entry {
	return l.Log(Record{
		Category: CategoryToolCall,
		UserID:   userID, SessionID: sessionID,
		ToolName: toolName, Input: input,
	})
}

// ToolSuccess records a completed tool call with its result and duration.
func (l *Logger) ToolSuccess(userID, toolName string, result any, duration time.Duration) *Entry {
	return l.Log(Record{
		Category: CategoryToolSuccess,
		UserID:   userID, ToolName: toolName,
		Result: result, Success: boolPtr(true), Duration: duration,
	})
}

// ToolError records a tool execution failure.
func (l *Logger) ToolError(userID, toolName string, input any, err error, duration time.Duration) *Entry {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return l.Log(Record{
		Category: CategoryExecutionError,
		UserID:   userID, ToolName: toolName, Input: input,
		Success: boolPtr(false), Error: msg, ErrorType: "execution",
		Duration: duration,
	})
}

// PermissionDenied records a permission check failure.
func (l *Logger) PermissionDenied(userID, toolName, reason string) *Entry {
	return l.Log(Record{
		Category: CategoryPermissionDenied,
		UserID:   userID, ToolName: toolName,
		Success: boolPtr(false), Error: reason, ErrorType: "permission",
	})
}

// OwnershipDenied records an ownership check failure.
func (l *Logger) OwnershipDenied(userID, toolName string, input any, reason string) *Entry {
	return l.Log(Record{
		Category: CategoryOwnershipDenied,
		UserID:   userID, ToolName: toolName, Input: input,
		Success: boolPtr(false), Error: reason, ErrorType: "ownership",
	})
}

// RateLimited records a rate-limit rejection.
func (l *Logger) RateLimited(userID, toolName, reason string) *Entry {
	return l.Log(Record{
		Category: CategoryRateLimited,
		UserID:   userID, ToolName: toolName,
		Success: boolPtr(false), Error: reason, ErrorType: "rate_limit",
	})
}

// ValidationFailed records an input validation rejection.
func (l *Logger) ValidationFailed(userID, toolName string, input any, reason string) *Entry {
	return l.Log(Record{
		Category: CategoryValidationFailed,
		UserID:   userID, ToolName: toolName, Input: input,
		Success: boolPtr(false), Error: reason, ErrorType: "validation",
	})
}

// ConfirmationRequired records that a dangerous call was parked awaiting
// user assent.
func (l *Logger) ConfirmationRequired(userID, toolName, confirmationType string) *Entry {
	return l.Log(Record{
		Category: CategoryConfirmation,
		UserID:   userID, ToolName: toolName,
		ErrorType: "confirmation_required",
		Metadata:  map[string]string{"confirmation_type": confirmationType},
	})
}

// SuspiciousActivity records an injection attempt or other hostile signal.
func (l *Logger) SuspiciousActivity(userID, toolName string, input any, detail string) *Entry {
	return l.Log(Record{
		Category: CategorySuspiciousActivity,
		UserID:   userID, ToolName: toolName, Input: input,
		Error: detail,
	})
}
