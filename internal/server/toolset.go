package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/veritest-ai/toolgate/internal/gateway"
	"github.com/veritest-ai/toolgate/internal/registry"
	"github.com/veritest-ai/toolgate/internal/schema"
)

// toolFileEntry is one tool in the definitions file.
type toolFileEntry struct {
	Name                string          `json:"name"`
	Description         string          `json:"description"`
	InputSchema         json.RawMessage `json:"inputSchema"`
	RequiresConfirm     bool            `json:"requiresConfirmation"`
	ConfirmationType    string          `json:"confirmationType"`
	ConfirmationMessage string          `json:"confirmationMessage"`
}

// FileToolset is a static ToolRegistry loaded from a JSON file at startup,
// for deployments that do not manage tool definitions in Postgres.
type FileToolset struct {
	defs map[string]*registry.ToolDefinition
}

// LoadToolset reads and compiles the definitions file. Every schema is
// meta-validated; a malformed definition fails startup rather than silently
// weakening validation.
func LoadToolset(path string) (*FileToolset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadToolset: %w", err)
	}

	var entries []toolFileEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("LoadToolset: %w", err)
	}

	defs := make(map[string]*registry.ToolDefinition, len(entries))
	for _, entry := range entries {
		def := &registry.ToolDefinition{
			ToolName:            entry.Name,
			Description:         entry.Description,
			RequiresConfirm:     entry.RequiresConfirm,
			ConfirmationType:    entry.ConfirmationType,
			ConfirmationMessage: entry.ConfirmationMessage,
		}
		if len(entry.InputSchema) > 0 {
			s, err := schema.ParseSchema(entry.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("LoadToolset: tool %q: %w", entry.Name, err)
			}
			def.InputSchema = s
		}
		defs[entry.Name] = def
	}
	return &FileToolset{defs: defs}, nil
}

func (t *FileToolset) GetTool(_ context.Context, toolName string) (*registry.ToolDefinition, error) {
	return t.defs[toolName], nil
}

// AllowAllPermissions is the permission placeholder for deployments where the
// host application's permission-level module is not wired; confirmation
// gating still applies through tool definitions.
type AllowAllPermissions struct{}

func (AllowAllPermissions) CheckPermission(context.Context, string, string) gateway.PermissionDecision {
	return gateway.PermissionDecision{Allowed: true}
}

// AllowAllLimiter is the rate-limit placeholder for deployments where the
// host application has not wired its limiter yet.
type AllowAllLimiter struct{}

func (AllowAllLimiter) CheckRateLimit(context.Context, string, string) gateway.RateDecision {
	return gateway.RateDecision{Allowed: true}
}
