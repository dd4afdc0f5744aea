package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Store is the durable audit sink plus its query surface. Write must never
// block the caller and must never surface an error to it.
type Store interface {
	Write(e *Entry)
	UserEntries(ctx context.Context, userID string, limit int) ([]*Entry, error)
	CategoryEntries(ctx context.Context, category Category, limit int) ([]*Entry, error)
	// SecurityEntries returns entries at WARN and above.
	SecurityEntries(ctx context.Context, limit int) ([]*Entry, error)
	UsageStats(ctx context.Context, days int) ([]ToolUsage, error)
	// Cleanup deletes entries older than the retention window.
	Cleanup(ctx context.Context, retention time.Duration) error
	Close()
}

// ToolUsage aggregates per-tool activity over a queried window.
type ToolUsage struct {
	ToolName      string
	Calls         uint64
	Successes     uint64
	Failures      uint64
	AvgDurationMs float64
}

// DefaultRetention is the audit retention window when none is configured.
const DefaultRetention = 90 * 24 * time.Hour

// LogStore is a console-only fallback Store for local development: writes go
// to the zap logger, queries return nothing.
type LogStore struct {
	logger *zap.Logger
}

// NewLogStore creates a LogStore.
func NewLogStore(logger *zap.Logger) *LogStore {
	return &LogStore{logger: logger}
}

func (s *LogStore) Write(e *Entry) {
	s.logger.Info("audit_entry",
		zap.String("audit_id", e.ID),
		zap.String("category", string(e.Category)),
		zap.String("level", e.Level.String()),
		zap.String("user_id", e.UserID),
		zap.String("tool_name", e.ToolName),
		zap.String("error", e.Error),
	)
}

func (s *LogStore) UserEntries(context.Context, string, int) ([]*Entry, error) {
	return nil, nil
}

func (s *LogStore) CategoryEntries(context.Context, Category, int) ([]*Entry, error) {
	return nil, nil
}

func (s *LogStore) SecurityEntries(context.Context, int) ([]*Entry, error) {
	return nil, nil
}

func (s *LogStore) UsageStats(context.Context, int) ([]ToolUsage, error) {
	return nil, nil
}

func (s *LogStore) Cleanup(context.Context, time.Duration) error { return nil }

func (s *LogStore) Close() {}
