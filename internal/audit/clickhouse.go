package audit

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// ClickHouseStore writes audit entries to ClickHouse asynchronously and
// serves the query surface. Write() is non-blocking: entries are buffered and
// batch-inserted in a background goroutine, and a full buffer drops rather
// than stalls the request path.
type ClickHouseStore struct {
	conn    driver.Conn
	buffer  chan *Entry
	done    chan struct{}
	flushed chan struct{}
	logger  *zap.Logger
}

// NewClickHouseStore connects and starts the background flush loop.
func NewClickHouseStore(dsn string, logger *zap.Logger) (*ClickHouseStore, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	s := &ClickHouseStore{
		conn:    conn,
		buffer:  make(chan *Entry, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go s.flushLoop()
	return s, nil
}

func (s *ClickHouseStore) Write(e *Entry) {
	select {
	case s.buffer <- e:
	default:
		s.logger.Warn("audit buffer full, dropping entry",
			zap.String("audit_id", e.ID),
		)
	}
}

// Close signals the flush loop to drain remaining entries.
func (s *ClickHouseStore) Close() {
	close(s.done)
	<-s.flushed
}

func (s *ClickHouseStore) flushLoop() {
	defer close(s.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, flushBatch)

	for {
		select {
		case e := <-s.buffer:
			batch = append(batch, e)
			if len(batch) >= flushBatch {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-s.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case e := <-s.buffer:
					batch = append(batch, e)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

func (s *ClickHouseStore) flush(entries []*Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO audit_log (
			id, timestamp, category, level, user_id, session_id,
			ip_address, user_agent, tool_name, input, result,
			success, error, error_type, page, duration_ms, metadata
		)
	`)
	if err != nil {
		s.logger.Error("audit prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range entries {
		var success *uint8
		if e.Success != nil {
			v := uint8(0)
			if *e.Success {
				v = 1
			}
			success = &v
		}

		if err := batch.Append(
			e.ID,
			e.Timestamp,
			string(e.Category),
			e.Level.String(),
			e.UserID,
			e.SessionID,
			e.IPAddress,
			e.UserAgent,
			e.ToolName,
			e.Input,
			e.Result,
			success,
			e.Error,
			e.ErrorType,
			e.Page,
			float64(e.Duration)/float64(time.Millisecond),
			e.Metadata,
		); err != nil {
			s.logger.Error("audit append entry failed",
				zap.String("audit_id", e.ID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		s.logger.Error("audit batch send failed",
			zap.Int("batch_size", len(entries)),
			zap.Error(err),
		)
	}
}

const selectColumns = `
	id, timestamp, category, level, user_id, session_id,
	ip_address, user_agent, tool_name, input, result,
	success, error, error_type, page, duration_ms, metadata
`

func (s *ClickHouseStore) UserEntries(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+selectColumns+`
		FROM audit_log
		WHERE user_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (s *ClickHouseStore) CategoryEntries(ctx context.Context, category Category, limit int) ([]*Entry, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+selectColumns+`
		FROM audit_log
		WHERE category = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, string(category), limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (s *ClickHouseStore) SecurityEntries(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+selectColumns+`
		FROM audit_log
		WHERE level IN ('WARN', 'ERROR', 'CRITICAL')
		ORDER BY timestamp DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (s *ClickHouseStore) UsageStats(ctx context.Context, days int) ([]ToolUsage, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT
			tool_name,
			count() AS calls,
			countIf(success = 1) AS successes,
			countIf(success = 0) AS failures,
			avgIf(duration_ms, duration_ms > 0) AS avg_duration_ms
		FROM audit_log
		WHERE timestamp >= now() - INTERVAL ? DAY
		  AND tool_name != ''
		GROUP BY tool_name
		ORDER BY calls DESC
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []ToolUsage
	for rows.Next() {
		var u ToolUsage
		if err := rows.Scan(&u.ToolName, &u.Calls, &u.Successes, &u.Failures, &u.AvgDurationMs); err != nil {
			return nil, err
		}
		stats = append(stats, u)
	}
	return stats, rows.Err()
}

func (s *ClickHouseStore) Cleanup(ctx context.Context, retention time.Duration) error {
	if retention == 0 {
		retention = DefaultRetention
	}
	cutoff := time.Now().Add(-retention)
	return s.conn.Exec(ctx, `
		ALTER TABLE audit_log DELETE WHERE timestamp < ?
	`, cutoff)
}

func scanEntries(rows driver.Rows) ([]*Entry, error) {
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e          Entry
			category   string
			level      string
			success    *uint8
			durationMs float64
		)
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &category, &level, &e.UserID, &e.SessionID,
			&e.IPAddress, &e.UserAgent, &e.ToolName, &e.Input, &e.Result,
			&success, &e.Error, &e.ErrorType, &e.Page, &durationMs, &e.Metadata,
		); err != nil {
			return nil, err
		}
		e.Category = Category(category)
		e.Level = levelFromString(level)
		if success != nil {
			v := *success == 1
			e.Success = &v
		}
		e.Duration = time.Duration(durationMs * float64(time.Millisecond))
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func levelFromString(s string) Level {
	switch s {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "CRITICAL":
		return LevelCritical
	default:
		return LevelInfo
	}
}
