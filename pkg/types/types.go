// Package types defines the shared types used across all Rook packages.
//
// These types form the lingua franca between providers, stores, and engine
// components. They are intentionally minimal — each package defines its own
// domain types, but cross-cutting data structures live here to avoid
// circular imports.
package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Scope is the 4-tuple isolation boundary every Memory, GraphNode, GraphEdge,
// and Intention belongs to. Tenant and Session are optional; User and Agent
// are always required. Two scopes are equal only if all four fields match
// exactly. Nothing is visible across tenant, user or agent; a scope with an
// empty Session sees every session of its (Tenant, User, Agent).
type Scope struct {
	// Tenant identifies the owning organization. Empty for single-tenant
	// deployments.
	Tenant string

	// User identifies the end user the memory belongs to. Always required.
	User string

	// Agent identifies the AI assistant/persona the memory was formed by or
	// for. Always required.
	Agent string

	// Session optionally narrows the scope to a single conversation. Empty
	// means the memory is visible across all sessions for (Tenant, User, Agent).
	Session string
}

// Key returns a stable string encoding of the scope, suitable for use as a
// map key or a store-level partition key. It is not meant to be parsed back.
func (s Scope) Key() string {
	return strings.Join([]string{s.Tenant, s.User, s.Agent, s.Session}, "\x1f")
}

// Contains reports whether other has the same tenant, user and agent as this
// scope; Session is not compared on either side. Used by operations that are
// allowed to read across a session boundary within the same (tenant, user,
// agent) but never across tenant, user, or agent.
func (s Scope) Contains(other Scope) bool {
	return s.Tenant == other.Tenant && s.User == other.User && s.Agent == other.Agent
}

// Validate checks that the required scope fields are populated.
func (s Scope) Validate() error {
	if s.User == "" {
		return fmt.Errorf("scope: user is required")
	}
	if s.Agent == "" {
		return fmt.Errorf("scope: agent is required")
	}
	return nil
}

// String implements fmt.Stringer for logging.
func (s Scope) String() string {
	return fmt.Sprintf("tenant=%q user=%q agent=%q session=%q", s.Tenant, s.User, s.Agent, s.Session)
}

// NewID generates a new opaque identifier for memories, graph nodes, graph
// edges, and intentions. All Rook ids are UUIDv4 strings; callers must treat
// them as opaque rather than parsing structure out of them.
func NewID() string {
	return uuid.NewString()
}

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name (for multi-speaker contexts).
	Name string

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which tool call this responds to.
	ToolCallID string
}

// ToolCall represents a tool/function invocation requested by the LLM.
type ToolCall struct {
	// ID is the unique identifier for this tool call (provider-assigned).
	ID string

	// Name is the tool/function name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// ToolDefinition describes a tool that can be offered to an LLM.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in LLM prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any

	// EstimatedDurationMs is the declared p50 latency, surfaced to callers
	// that budget parallel tool fan-out.
	EstimatedDurationMs int

	// MaxDurationMs is the declared p99 upper bound, used as a hard timeout.
	MaxDurationMs int

	// Idempotent indicates whether the tool can be safely retried.
	Idempotent bool

	// CacheableSeconds is how long results can be cached (0 = never).
	CacheableSeconds int
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsToolCalling indicates native function/tool calling support.
	SupportsToolCalling bool

	// SupportsVision indicates the model can process image inputs.
	SupportsVision bool

	// SupportsStreaming indicates the model supports streaming completions.
	SupportsStreaming bool
}
