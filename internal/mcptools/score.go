package mcptools

import (
	"context"

	"github.com/ashureev/honeypot/internal/callback"
	"github.com/ashureev/honeypot/internal/intel"
	"github.com/mark3labs/mcp-go/mcp"
)

// ScoreTool handles the score_message MCP tool.
type ScoreTool struct {
	keywords []string
}

// NewScoreTool creates a ScoreTool. Nil keywords use the report defaults.
func NewScoreTool(keywords []string) *ScoreTool {
	if len(keywords) == 0 {
		keywords = callback.DefaultSuspiciousKeywords
	}
	return &ScoreTool{keywords: keywords}
}

// Score is the score_message result.
type Score struct {
	Confidence         float64  `json:"confidence_score"`
	ScamDetected       bool     `json:"scam_detected"`
	SuspiciousKeywords []string `json:"suspicious_keywords"`
	Sophistication     string   `json:"sophistication"`
}

// Definition returns the MCP tool definition for score_message.
func (t *ScoreTool) Definition() mcp.Tool {
	return mcp.NewTool("score_message",
		mcp.WithDescription(
			"Score a message with the local scam heuristic and list the suspicious keywords it contains.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Message text from the suspected scammer"),
		),
	)
}

// Handle processes the score_message tool call.
func (t *ScoreTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if text == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}
	return jsonResult(Evaluate(text, t.keywords))
}

// Evaluate scores text without the generator.
func Evaluate(text string, keywords []string) Score {
	confidence := intel.ScoreMessage(text)
	return Score{
		Confidence:         confidence,
		ScamDetected:       confidence >= intel.ScamThreshold,
		SuspiciousKeywords: callback.SuspiciousKeywords(text, keywords),
		Sophistication:     callback.AssessSophistication(text, intel.Extract(text)),
	}
}
