// Package registry resolves tool definitions: the declared input schema and
// confirmation requirements that drive the gateway pipeline. Definitions live
// in Postgres and are cached with a short TTL.
package registry

import "context"

// ToolRegistry provides tool definitions by name.
type ToolRegistry interface {
	// GetTool returns the ToolDefinition for a tool name.
	// Returns nil, nil if the tool is not registered.
	GetTool(ctx context.Context, toolName string) (*ToolDefinition, error)
}
