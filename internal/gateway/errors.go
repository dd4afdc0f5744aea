package gateway

import "time"

// Error type discriminators carried in denial responses.
const (
	ErrorTypeValidation           = "validation"
	ErrorTypePermission           = "permission"
	ErrorTypeRateLimit            = "rate_limit"
	ErrorTypeOwnership            = "ownership"
	ErrorTypeConfirmationRequired = "confirmation_required"
	ErrorTypeInternal             = "internal"
)

// Denial is the discriminated result of a refused gateway request.
// StatusCode maps directly onto the HTTP response the routing layer sends:
// 400 validation, 403 permission/ownership, 429 rate limit, 428 confirmation
// required, 500 internal.
type Denial struct {
	StatusCode int
	ErrorType  string
	Error      string

	// Permission denials
	RequiredLevel int
	UserLevel     int

	// Rate-limit denials; the router also emits this as a Retry-After header.
	RetryAfter time.Duration

	// Confirmation-required responses
	RequiresConfirmation bool
	ConfirmationType     string
	ConfirmationMessage  string
	ConfirmationToken    string
	ConfirmationExpires  int // seconds
}

// Response is a successful gateway execution.
type Response struct {
	RequestID string
	Result    any
	Duration  time.Duration
}
