// Package mcp exposes Rook's built-in tools as a Model Context Protocol
// server, so any MCP-speaking client (an LLM agent runtime, an IDE
// assistant) can call remember/recall/register_intention directly.
package mcp

import (
	"context"
	"encoding/json"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rook-mem/rook/internal/mcp/tools"
)

// serverName, together with the version passed to NewServer, identifies
// this process to connecting clients during the MCP initialize handshake.
const serverName = "rook"

// NewServer builds an MCP server exposing toolList, ready to be served over
// any [mcpsdk.Transport] (stdio, streamable HTTP, ...).
func NewServer(version string, toolList []tools.Tool) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: version}, nil)

	for _, t := range toolList {
		mcpsdk.AddTool(server, toMCPTool(t), toHandler(t))
	}

	return server
}

// toMCPTool translates a [tools.Tool] definition into the SDK's wire-level
// tool descriptor.
func toMCPTool(t tools.Tool) *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        t.Definition.Name,
		Description: t.Definition.Description,
	}
}

// toHandler adapts a [tools.Tool]'s JSON-string handler to the SDK's
// generic, typed handler signature. Arguments and results both travel as
// raw JSON objects: Rook's tool handlers already do their own
// marshal/unmarshal against concrete Go types, so re-typing them here would
// only duplicate that work.
func toHandler(t tools.Tool) mcpsdk.ToolHandlerFor[map[string]any, map[string]any] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input map[string]any) (*mcpsdk.CallToolResult, map[string]any, error) {
		argsJSON, err := json.Marshal(input)
		if err != nil {
			return nil, nil, err
		}

		resultJSON, err := t.Handler(ctx, string(argsJSON))
		if err != nil {
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
			}, nil, nil
		}

		var out map[string]any
		if err := json.Unmarshal([]byte(resultJSON), &out); err != nil {
			// Non-object results (e.g. a bare array) are returned as text
			// rather than failing the call outright.
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: resultJSON}},
			}, nil, nil
		}

		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: resultJSON}},
		}, out, nil
	}
}
