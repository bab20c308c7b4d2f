// Package agent runs the honeypot engagement pipeline: it keeps the persona
// talking, merges the reply generator's verdict with local extraction and
// decides when a session is reported.
package agent

import (
	"github.com/ashureev/honeypot/internal/domain"
)

// Agent modes reported to callers.
const (
	ModeEngaged    = "engaged"
	ModeMonitoring = "monitoring"
)

// WireMessage is a message as callers send it. Sender strings are free-form
// and mapped with domain.ParseSender.
type WireMessage struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Message converts the wire form to a domain message.
func (m WireMessage) Message() domain.Message {
	return domain.Message{
		Sender:    domain.ParseSender(m.Sender),
		Text:      m.Text,
		Timestamp: m.Timestamp,
	}
}

// MessageRequest is the body of POST /honeypot/message.
type MessageRequest struct {
	SessionID           string         `json:"sessionId"`
	Message             WireMessage    `json:"message"`
	ConversationHistory []WireMessage  `json:"conversationHistory"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// EngagementMetrics describes how long the persona has kept the session going.
type EngagementMetrics struct {
	ConversationTurns         int     `json:"conversation_turns"`
	EngagementDurationSeconds float64 `json:"engagement_duration_seconds"`
}

// MessageResponse is returned for every processed message.
type MessageResponse struct {
	Status                string                       `json:"status"`
	Reply                 string                       `json:"reply"`
	ScamDetected          bool                         `json:"scam_detected"`
	ConfidenceScore       float64                      `json:"confidence_score"`
	AgentMode             string                       `json:"agent_mode"`
	EngagementMetrics     EngagementMetrics            `json:"engagement_metrics"`
	ExtractedIntelligence domain.ExtractedIntelligence `json:"extracted_intelligence"`
	RiskAnalysis          map[string]any               `json:"risk_analysis"`
}

// Result is the canonical merged verdict for one turn.
type Result struct {
	ScamDetected          bool
	ConfidenceScore       float64
	AgentMode             string
	AgentReply            string
	ExtractedIntelligence domain.ExtractedIntelligence
	RiskAnalysis          map[string]any
	// Source records which outcome branch produced the result.
	Source string
}

// Analysis is the locally computed view of a turn, available before the
// generator answers.
type Analysis struct {
	SessionID             string                       `json:"session_id"`
	Confidence            float64                      `json:"confidence_score"`
	ScamDetected          bool                         `json:"scam_detected"`
	Engagement            domain.EngagementState       `json:"engagement"`
	ExtractedIntelligence domain.ExtractedIntelligence `json:"extracted_intelligence"`
	ConversationTurns     int                          `json:"conversation_turns"`
}
