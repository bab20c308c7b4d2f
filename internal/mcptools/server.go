// Package mcptools exposes the honeypot's local analysis as MCP tools so an
// analyst's assistant can extract, score and sanitize transcripts offline.
//
// Each tool follows the same shape:
// - a struct with its dependencies injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
package mcptools

import (
	"encoding/json"
	"fmt"

	"github.com/ashureev/honeypot/internal/sanitize"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version is reported to MCP clients.
var Version = "dev"

// New builds an MCP server with every analysis tool registered.
func New(sanitizer *sanitize.Sanitizer, keywords []string) *server.MCPServer {
	s := server.NewMCPServer(
		"honeypot",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("Offline scam transcript analysis: indicator extraction, scam scoring and prompt-injection sanitizing."),
	)

	extractTool := NewExtractTool()
	s.AddTool(extractTool.Definition(), extractTool.Handle)

	scoreTool := NewScoreTool(keywords)
	s.AddTool(scoreTool.Definition(), scoreTool.Handle)

	sanitizeTool := NewSanitizeTool(sanitizer)
	s.AddTool(sanitizeTool.Definition(), sanitizeTool.Handle)

	return s
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
