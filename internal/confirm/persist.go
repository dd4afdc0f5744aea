package confirm

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/veritest-ai/toolgate/internal/redact"
)

// redactSensitive copies tool input with sensitive values masked before it is
// held in the store or mirrored to durable storage.
func redactSensitive(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out, _ := redact.Value(input, redact.DefaultSensitiveKeys).(map[string]any)
	return out
}

// Persister mirrors confirmation state transitions to durable storage for
// recovery and audit. It is strictly best-effort: the Manager logs and
// swallows every error, and in-memory correctness never depends on it.
type Persister interface {
	Created(ctx context.Context, req *Request) error
	Transitioned(ctx context.Context, id string, status Status, at time.Time) error
	Removed(ctx context.Context, id, reason string) error
}

// PostgresPersister writes confirmation state to the pending_confirmations
// table.
type PostgresPersister struct {
	db *sql.DB
}

// NewPostgresPersister creates a PostgresPersister.
func NewPostgresPersister(db *sql.DB) *PostgresPersister {
	return &PostgresPersister{db: db}
}

func (p *PostgresPersister) Created(ctx context.Context, req *Request) error {
	input, err := json.Marshal(req.Input)
	if err != nil {
		return fmt.Errorf("Created: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO pending_confirmations
			(id, user_id, session_id, tool_name, input, confirmation_type,
			 message, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, req.ID, req.UserID, req.SessionID, req.ToolName, string(input),
		string(req.Type), req.Message, string(req.Status), req.CreatedAt, req.ExpiresAt)
	if err != nil {
		return fmt.Errorf("Created: %w", err)
	}
	return nil
}

func (p *PostgresPersister) Transitioned(ctx context.Context, id string, status Status, at time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE pending_confirmations
		SET status = $2, transitioned_at = $3
		WHERE id = $1
	`, id, string(status), at)
	if err != nil {
		return fmt.Errorf("Transitioned: %w", err)
	}
	return nil
}

func (p *PostgresPersister) Removed(ctx context.Context, id, reason string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE pending_confirmations
		SET status = 'removed', removal_reason = $2, transitioned_at = now()
		WHERE id = $1 AND status NOT IN ('denied', 'executed')
	`, id, reason)
	if err != nil {
		return fmt.Errorf("Removed: %w", err)
	}
	return nil
}
