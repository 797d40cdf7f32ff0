// Package memorytool provides built-in MCP tools that expose Rook's memory
// engine to LLM-driven clients.
//
// Three tools are exported via [NewTools]:
//   - "remember"           — run the ingestion pipeline over a message batch.
//   - "recall"             — run the hybrid retrieval pipeline for a query.
//   - "register_intention" — register a standing trigger-based intention.
//
// All handlers are safe for concurrent use.
package memorytool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rook-mem/rook/internal/ingest"
	"github.com/rook-mem/rook/internal/mcp/tools"
	"github.com/rook-mem/rook/internal/retriever"
	"github.com/rook-mem/rook/pkg/memory"
	"github.com/rook-mem/rook/pkg/types"
)

// Backend is the subset of [*engine.Engine] this package depends on, kept as
// an interface so handlers can be exercised against fakes in tests.
type Backend interface {
	Remember(ctx context.Context, scope types.Scope, messages []types.Message) ([]ingest.Decision, error)
	Recall(ctx context.Context, q retriever.Query) ([]retriever.Result, error)
	RegisterIntention(in memory.Intention)
}

// ─────────────────────────────────────────────────────────────────────────────
// remember
// ─────────────────────────────────────────────────────────────────────────────

// rememberArgs is the JSON-decoded input for the "remember" tool.
type rememberArgs struct {
	// Scope identifies the tenant/user/agent/session this memory belongs to.
	Scope types.Scope `json:"scope"`

	// Messages is the raw conversation batch to extract candidate memories from.
	Messages []types.Message `json:"messages"`
}

func makeRememberHandler(backend Backend) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		var a rememberArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("memory tool: remember: failed to parse arguments: %w", err)
		}
		if len(a.Messages) == 0 {
			return "", fmt.Errorf("memory tool: remember: messages must not be empty")
		}

		decisions, err := backend.Remember(ctx, a.Scope, a.Messages)
		if err != nil {
			return "", fmt.Errorf("memory tool: remember: %w", err)
		}

		res, err := json.Marshal(decisions)
		if err != nil {
			return "", fmt.Errorf("memory tool: remember: failed to encode result: %w", err)
		}
		return string(res), nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// recall
// ─────────────────────────────────────────────────────────────────────────────

// recallArgs is the JSON-decoded input for the "recall" tool.
type recallArgs struct {
	Scope types.Scope `json:"scope"`
	Text  string      `json:"text"`
	Mode  string      `json:"mode,omitempty"`
	Limit int         `json:"limit,omitempty"`
}

const defaultRecallLimit = 10

func makeRecallHandler(backend Backend) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		var a recallArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("memory tool: recall: failed to parse arguments: %w", err)
		}
		if a.Text == "" {
			return "", fmt.Errorf("memory tool: recall: text must not be empty")
		}

		mode := retriever.Mode(a.Mode)
		if mode == "" {
			mode = retriever.Standard
		}
		limit := a.Limit
		if limit <= 0 {
			limit = defaultRecallLimit
		}

		results, err := backend.Recall(ctx, retriever.Query{
			Scope: a.Scope,
			Text:  a.Text,
			Mode:  mode,
			Limit: limit,
		})
		if err != nil {
			return "", fmt.Errorf("memory tool: recall: %w", err)
		}

		res, err := json.Marshal(results)
		if err != nil {
			return "", fmt.Errorf("memory tool: recall: failed to encode result: %w", err)
		}
		return string(res), nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// register_intention
// ─────────────────────────────────────────────────────────────────────────────

// registerIntentionArgs is the JSON-decoded input for the "register_intention" tool.
type registerIntentionArgs struct {
	ID      string        `json:"id"`
	Trigger memory.Trigger `json:"trigger"`
}

func makeRegisterIntentionHandler(backend Backend) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		var a registerIntentionArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("memory tool: register_intention: failed to parse arguments: %w", err)
		}
		if a.ID == "" {
			return "", fmt.Errorf("memory tool: register_intention: id must not be empty")
		}

		backend.RegisterIntention(memory.Intention{
			ID:        a.ID,
			Trigger:   a.Trigger,
			CreatedAt: time.Now(),
		})

		res, err := json.Marshal(map[string]string{"status": "registered", "id": a.ID})
		if err != nil {
			return "", fmt.Errorf("memory tool: register_intention: failed to encode result: %w", err)
		}
		return string(res), nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// NewTools
// ─────────────────────────────────────────────────────────────────────────────

// NewTools constructs the full set of memory tools, wired to backend.
func NewTools(backend Backend) []tools.Tool {
	return []tools.Tool{
		{
			Definition: types.ToolDefinition{
				Name:        "remember",
				Description: "Extract and store durable facts from a batch of conversation messages, running contradiction detection and merge/supersede logic against existing memories.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"scope": map[string]any{
							"type":        "object",
							"description": "Tenant/user/agent/session isolation boundary for the extracted memories.",
						},
						"messages": map[string]any{
							"type":        "array",
							"description": "Raw conversation messages to extract candidate facts from.",
						},
					},
					"required": []string{"scope", "messages"},
				},
				EstimatedDurationMs: 800,
				MaxDurationMs:       5000,
				Idempotent:          false,
			},
			Handler: makeRememberHandler(backend),
		},
		{
			Definition: types.ToolDefinition{
				Name:        "recall",
				Description: "Run the hybrid retrieval pipeline (vector, keyword, and activation-spread signals fused via reciprocal rank fusion) for a natural-language query. Mode is one of quick, standard, precise, cognitive.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"scope": map[string]any{
							"type":        "object",
							"description": "Tenant/user/agent/session isolation boundary to search within.",
						},
						"text": map[string]any{
							"type":        "string",
							"description": "Natural-language query text.",
						},
						"mode": map[string]any{
							"type":        "string",
							"description": "Retrieval mode: quick, standard, precise, or cognitive. Defaults to standard.",
						},
						"limit": map[string]any{
							"type":        "integer",
							"description": "Maximum number of results to return. Defaults to 10.",
						},
					},
					"required": []string{"scope", "text"},
				},
				EstimatedDurationMs: 150,
				MaxDurationMs:       1000,
				Idempotent:          true,
				CacheableSeconds:    5,
			},
			Handler: makeRecallHandler(backend),
		},
		{
			Definition: types.ToolDefinition{
				Name:        "register_intention",
				Description: "Register a standing intention that fires when its trigger condition is met by a future message (keyword mention, topic discussed, time elapsed, user mentioned, scheduled time, or context entered).",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id": map[string]any{
							"type":        "string",
							"description": "Caller-assigned unique identifier for this intention.",
						},
						"trigger": map[string]any{
							"type":        "object",
							"description": "The trigger condition, as produced by the memory.Trigger constructors.",
						},
					},
					"required": []string{"id", "trigger"},
				},
				EstimatedDurationMs: 10,
				MaxDurationMs:       100,
				Idempotent:          false,
			},
			Handler: makeRegisterIntentionHandler(backend),
		},
	}
}
