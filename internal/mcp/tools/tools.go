// Package tools defines the shared [Tool] type used by all built-in MCP tool
// packages that expose Rook's memory engine to MCP clients.
package tools

import (
	"context"

	"github.com/rook-mem/rook/pkg/types"
)

// Tool represents a built-in tool ready for registration with an MCP server.
//
// Each Tool carries its LLM-facing schema ([types.ToolDefinition]) together
// with the handler function invoked when the client calls the tool.
type Tool struct {
	// Definition is the tool's LLM-facing schema including its name,
	// description, and JSON Schema parameter specification.
	Definition types.ToolDefinition

	// Handler executes the tool with JSON-encoded args and returns a
	// JSON-encoded result string on success, or a descriptive error.
	// Implementations must be safe for concurrent use and must respect
	// context cancellation.
	Handler func(ctx context.Context, args string) (string, error)
}
