package gateway

import (
	"context"
	"time"

	"github.com/veritest-ai/toolgate/internal/ownership"
	"github.com/veritest-ai/toolgate/internal/registry"
)

// OwnershipChecker is satisfied by *ownership.Verifier.
type OwnershipChecker interface {
	VerifyToolOwnership(ctx context.Context, toolName string, input map[string]any, userID string) ownership.Result
}

// PermissionDecision is the contract of the external permission-level module.
type PermissionDecision struct {
	Allowed       bool
	Reason        string
	RequiredLevel int
	UserLevel     int

	RequiresConfirmation bool
	ConfirmationType     string
	ConfirmationMessage  string
}

// PermissionChecker is implemented by the host application's permission
// module. The gateway only consumes the decision.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, toolName, userID string) PermissionDecision
}

// RateDecision is the contract of the external rate-limiter module.
type RateDecision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// RateLimiter is implemented by the host application's rate-limit module.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, userID, toolName string) RateDecision
}

// Tools resolves tool names to definitions. A nil definition with nil error
// means the tool is not registered.
type Tools interface {
	GetTool(ctx context.Context, toolName string) (*registry.ToolDefinition, error)
}

// Runner executes an authorized tool call. Implementations are external; the
// gateway only sequences authorization around them.
type Runner interface {
	Run(ctx context.Context, toolName string, input map[string]any) (any, error)
}
