// Package gateway sequences the defense-in-depth pipeline around every tool
// execution: validate input, check permission, check rate limit, verify
// ownership, demand confirmation for dangerous calls, then run the tool —
// with an audit entry at every branch.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veritest-ai/toolgate/internal/audit"
	"github.com/veritest-ai/toolgate/internal/confirm"
	"github.com/veritest-ai/toolgate/internal/registry"
	"github.com/veritest-ai/toolgate/internal/schema"
)

// RequestContext carries the acting user's identity into the pipeline.
type RequestContext struct {
	UserID    string
	SessionID string
	IPAddress string
	UserAgent string
}

// Request is the gateway input consumed from the orchestration layer.
type Request struct {
	Tool              string
	Input             map[string]any
	Context           RequestContext
	ConfirmationToken string
}

// Gateway wires the four core subsystems together with the external
// permission and rate-limit collaborators.
type Gateway struct {
	validator *schema.Validator
	owners    OwnershipChecker
	confirms  *confirm.Manager
	audit     *audit.Logger
	perms     PermissionChecker
	limiter   RateLimiter
	tools     Tools
	runner    Runner
	logger    *zap.Logger
}

// Config assembles a Gateway. All fields are required except Logger.
type Config struct {
	Validator     *schema.Validator
	Ownership     OwnershipChecker
	Confirmations *confirm.Manager
	Audit         *audit.Logger
	Permissions   PermissionChecker
	RateLimiter   RateLimiter
	Tools         Tools
	Runner        Runner
	Logger        *zap.Logger
}

// New creates a Gateway.
func New(cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Gateway{
		validator: cfg.Validator,
		owners:    cfg.Ownership,
		confirms:  cfg.Confirmations,
		audit:     cfg.Audit,
		perms:     cfg.Permissions,
		limiter:   cfg.RateLimiter,
		tools:     cfg.Tools,
		runner:    cfg.Runner,
		logger:    cfg.Logger,
	}
}

// Execute runs the full pipeline for one tool call. Exactly one of the
// return values is non-nil.
func (g *Gateway) Execute(ctx context.Context, req Request) (*Response, *Denial) {
	start := time.Now()
	user := req.Context.UserID

	g.audit.ToolCall(user, req.Context.SessionID, req.Tool, req.Input)

	// Fail closed on registry trouble: a tool we cannot resolve is a tool we
	// do not run.
	def, err := g.tools.GetTool(ctx, req.Tool)
	if err != nil {
		g.logger.Error("tool lookup failed", zap.String("tool", req.Tool), zap.Error(err))
		return nil, &Denial{StatusCode: 500, ErrorType: ErrorTypeInternal, Error: "tool lookup failed"}
	}
	if def == nil {
		g.audit.ValidationFailed(user, req.Tool, req.Input, "unknown tool")
		return nil, &Denial{StatusCode: 400, ErrorType: ErrorTypeValidation, Error: "unknown tool"}
	}

	// 1. Validate and sanitize input.
	input, denial := g.validateInput(req, def)
	if denial != nil {
		return nil, denial
	}

	// 2. Permission (external collaborator).
	perm := g.perms.CheckPermission(ctx, req.Tool, user)
	if !perm.Allowed {
		g.audit.PermissionDenied(user, req.Tool, perm.Reason)
		return nil, &Denial{
			StatusCode:    403,
			ErrorType:     ErrorTypePermission,
			Error:         perm.Reason,
			RequiredLevel: perm.RequiredLevel,
			UserLevel:     perm.UserLevel,
		}
	}

	// 3. Rate limit (external collaborator).
	rate := g.limiter.CheckRateLimit(ctx, user, req.Tool)
	if !rate.Allowed {
		g.audit.RateLimited(user, req.Tool, rate.Reason)
		return nil, &Denial{
			StatusCode: 429,
			ErrorType:  ErrorTypeRateLimit,
			Error:      rate.Reason,
			RetryAfter: rate.RetryAfter,
		}
	}

	// 4. Ownership. Fail-closed: any error or mismatch is a denial.
	own := g.owners.VerifyToolOwnership(ctx, req.Tool, input, user)
	if !own.IsOwner {
		g.audit.OwnershipDenied(user, req.Tool, input, own.Err)
		return nil, &Denial{StatusCode: 403, ErrorType: ErrorTypeOwnership, Error: own.Err}
	}

	// 5. Confirmation for dangerous calls. Either the permission module or
	// the tool definition can demand it.
	if perm.RequiresConfirmation || def.RequiresConfirm {
		if req.ConfirmationToken == "" {
			return g.requireConfirmation(ctx, req, input, confirmationDetails(perm, def))
		}
		outcome := g.confirms.Confirm(ctx, req.ConfirmationToken, user, req.Context.SessionID)
		if !outcome.Success {
			g.audit.Log(audit.Record{
				Category: audit.CategoryConfirmation,
				UserID:   user, ToolName: req.Tool,
				Success: failed(), Error: outcome.Error,
				ErrorType: ErrorTypeConfirmationRequired,
			})
			return nil, &Denial{
				StatusCode: 428,
				ErrorType:  ErrorTypeConfirmationRequired,
				Error:      outcome.Error,
			}
		}
		// A token only unlocks the tool it was minted for. The mismatched
		// token stays consumed: it was confirmed under false pretenses.
		if outcome.ToolName != req.Tool {
			g.audit.Log(audit.Record{
				Category: audit.CategoryConfirmation,
				UserID:   user, ToolName: req.Tool,
				Success: failed(), Error: "confirmation token issued for tool " + outcome.ToolName,
				ErrorType: ErrorTypeConfirmationRequired,
			})
			return nil, &Denial{
				StatusCode: 428,
				ErrorType:  ErrorTypeConfirmationRequired,
				Error:      "Confirmation was issued for a different tool",
			}
		}
		// Execute against the input stored at confirmation time, not the
		// caller's resubmission. The token is consumed even when execution
		// fails below; a retried call must obtain fresh assent.
		input = outcome.Input
		defer g.markExecuted(ctx, req.ConfirmationToken)
	}

	// 6. Execute.
	result, err := g.runner.Run(ctx, req.Tool, input)
	duration := time.Since(start)
	if err != nil {
		g.audit.ToolError(user, req.Tool, input, err, duration)
		return nil, &Denial{StatusCode: 500, ErrorType: ErrorTypeInternal, Error: "tool execution failed"}
	}

	g.audit.ToolSuccess(user, req.Tool, result, duration)
	return &Response{
		RequestID: uuid.New().String(),
		Result:    result,
		Duration:  duration,
	}, nil
}

func (g *Gateway) validateInput(req Request, def *registry.ToolDefinition) (map[string]any, *Denial) {
	user := req.Context.UserID

	var (
		sanitized any
		err       error
	)
	if def.InputSchema != nil {
		sanitized, err = g.validator.Validate(req.Input, def.InputSchema, req.Tool)
	} else {
		sanitized, err = g.validator.SanitizeAny(req.Input, req.Tool)
	}
	if err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) && verr.Suspicious {
			g.audit.SuspiciousActivity(user, req.Tool, req.Input, verr.Reason)
		}
		g.audit.ValidationFailed(user, req.Tool, req.Input, err.Error())
		return nil, &Denial{StatusCode: 400, ErrorType: ErrorTypeValidation, Error: err.Error()}
	}

	input, ok := sanitized.(map[string]any)
	if !ok {
		input = map[string]any{}
	}
	return input, nil
}

// confirmation carries the resolved type and message for a gated call.
type confirmation struct {
	Type    string
	Message string
}

func confirmationDetails(perm PermissionDecision, def *registry.ToolDefinition) confirmation {
	c := confirmation{Type: perm.ConfirmationType, Message: perm.ConfirmationMessage}
	if c.Type == "" {
		c.Type = def.ConfirmationType
	}
	if c.Message == "" {
		c.Message = def.ConfirmationMessage
	}
	return c
}

func (g *Gateway) requireConfirmation(ctx context.Context, req Request, input map[string]any, c confirmation) (*Response, *Denial) {
	user := req.Context.UserID

	created, err := g.confirms.Create(ctx, confirm.CreateParams{
		ToolName:  req.Tool,
		Input:     input,
		UserID:    user,
		SessionID: req.Context.SessionID,
		Type:      confirm.Type(c.Type),
		Message:   c.Message,
	})
	if err != nil {
		g.logger.Error("confirmation creation failed",
			zap.String("tool", req.Tool),
			zap.Error(err),
		)
		return nil, &Denial{StatusCode: 500, ErrorType: ErrorTypeInternal, Error: "could not create confirmation"}
	}

	g.audit.ConfirmationRequired(user, req.Tool, c.Type)
	return nil, &Denial{
		StatusCode:           428,
		ErrorType:            ErrorTypeConfirmationRequired,
		Error:                c.Message,
		RequiresConfirmation: true,
		ConfirmationType:     c.Type,
		ConfirmationMessage:  c.Message,
		ConfirmationToken:    created.Token,
		ConfirmationExpires:  int(time.Until(created.ExpiresAt).Seconds()),
	}
}

func (g *Gateway) markExecuted(ctx context.Context, token string) {
	if err := g.confirms.MarkExecuted(ctx, token); err != nil {
		g.logger.Warn("mark executed failed", zap.Error(err))
	}
}

func failed() *bool {
	f := false
	return &f
}
