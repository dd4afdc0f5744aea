package registry

import "github.com/veritest-ai/toolgate/internal/schema"

// ToolDefinition is one registered tool. Loaded from the tool_definitions
// table and compiled once; the InputSchema is immutable after load.
type ToolDefinition struct {
	ID          string
	ToolName    string
	Description string

	// InputSchema drives validation of the tool's arguments; nil means the
	// generic bounded sanitizer applies.
	InputSchema *schema.Schema

	// Confirmation gating. The permission module can also demand
	// confirmation; either source suffices.
	RequiresConfirm     bool
	ConfirmationType    string
	ConfirmationMessage string
}
