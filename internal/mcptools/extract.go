package mcptools

import (
	"context"

	"github.com/ashureev/honeypot/internal/intel"
	"github.com/mark3labs/mcp-go/mcp"
)

// ExtractTool handles the extract_indicators MCP tool.
type ExtractTool struct{}

// NewExtractTool creates an ExtractTool.
func NewExtractTool() *ExtractTool {
	return &ExtractTool{}
}

// Definition returns the MCP tool definition for extract_indicators.
func (t *ExtractTool) Definition() mcp.Tool {
	return mcp.NewTool("extract_indicators",
		mcp.WithDescription(
			"Extract canonical bank accounts, UPI IDs, IFSC codes, phone numbers, URLs and wallet addresses from scam text.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Message or transcript text to scan"),
		),
	)
}

// Handle processes the extract_indicators tool call.
func (t *ExtractTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if text == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}
	return jsonResult(intel.Extract(text))
}
