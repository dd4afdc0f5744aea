// Package confirm manages the lifecycle of dangerous-action confirmation
// tokens: single-use, time-boxed secrets that unlock execution of a gated
// tool call after explicit user assent.
package confirm

import "time"

// Type classifies why a confirmation was demanded.
type Type string

const (
	TypeDestructive Type = "destructive"
	TypeResource    Type = "resource"
	TypeSensitive   Type = "sensitive"
	TypeBulk        Type = "bulk"
)

// Status is the confirmation state. Transitions:
//
//	pending → confirmed → executed (terminal)
//	pending → denied              (terminal)
//	pending → expired             (lazy, enforced on every read)
//
// Once status leaves pending the token is removed from the live lookup maps
// and can never be reused.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDenied    Status = "denied"
	StatusExecuted  Status = "executed"
)

// Request is one confirmation awaiting (or past) user assent. Input holds a
// sanitized, sensitive-key-redacted copy of the original tool input.
type Request struct {
	ID        string
	Token     string
	UserID    string
	SessionID string
	ToolName  string
	Input     map[string]any
	Type      Type
	Message   string
	CreatedAt time.Time
	ExpiresAt time.Time
	Status    Status

	ConfirmedAt time.Time
	DeniedAt    time.Time
	ExecutedAt  time.Time

	Metadata map[string]string

	// seq orders requests with equal CreatedAt so eviction is insertion-stable.
	seq uint64
}

func (r *Request) expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// PendingView is the client-safe projection of a pending request. The stored
// input is deliberately absent.
type PendingView struct {
	ID        string
	Token     string
	ToolName  string
	Type      Type
	Message   string
	ExpiresIn int // seconds
}
