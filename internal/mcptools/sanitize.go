package mcptools

import (
	"context"

	"github.com/ashureev/honeypot/internal/domain"
	"github.com/ashureev/honeypot/internal/sanitize"
	"github.com/mark3labs/mcp-go/mcp"
)

// SanitizeTool handles the sanitize_transcript MCP tool.
type SanitizeTool struct {
	sanitizer *sanitize.Sanitizer
}

// NewSanitizeTool creates a SanitizeTool. A nil sanitizer uses the default blocklist.
func NewSanitizeTool(s *sanitize.Sanitizer) *SanitizeTool {
	if s == nil {
		s = sanitize.New()
	}
	return &SanitizeTool{sanitizer: s}
}

// Definition returns the MCP tool definition for sanitize_transcript.
func (t *SanitizeTool) Definition() mcp.Tool {
	return mcp.NewTool("sanitize_transcript",
		mcp.WithDescription(
			"Drop meta-instruction lines and label every remaining line with its role, as done before text reaches the reply generator.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Transcript text; lines may carry role labels such as 'Scammer:'"),
		),
		mcp.WithString("sender",
			mcp.Description("Author of unlabelled lines: scammer (default), user or system"),
		),
	)
}

// Handle processes the sanitize_transcript tool call.
func (t *SanitizeTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if text == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}
	msg := domain.Message{
		Sender: domain.ParseSender(req.GetString("sender", "scammer")),
		Text:   text,
	}
	cleaned := t.sanitizer.Sanitize([]domain.Message{msg})
	if len(cleaned) == 0 {
		return mcp.NewToolResultText(""), nil
	}
	return mcp.NewToolResultText(domain.JoinText(cleaned)), nil
}
