package agent

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ashureev/honeypot/internal/domain"
)

// Outcome is what came back from the reply generator. It is one of
// Structured, PlainText or Failed.
type Outcome interface {
	outcome()
}

// Structured is a generator reply that decoded as a JSON object.
type Structured struct {
	Reply StructuredReply
}

// PlainText is a generator reply without a JSON envelope.
type PlainText struct {
	Text string
}

// Failed means the generator produced nothing usable.
type Failed struct {
	Reason string
}

func (Structured) outcome() {}
func (PlainText) outcome()  {}
func (Failed) outcome()     {}

// StructuredReply holds the fields the generator may set. Every field is
// optional; absent values are nil or empty.
type StructuredReply struct {
	ScamDetected          *bool
	ConfidenceScore       *float64
	AgentMode             string
	AgentReply            string
	ExtractedIntelligence map[domain.IndicatorKind][]string
	RiskAnalysis          map[string]any
}

// ParseOutcome classifies raw generator output. A transport error or blank
// text is Failed; text with a decodable JSON object is Structured; text that
// looks like a broken JSON object is Failed; anything else is PlainText.
func ParseOutcome(text string, err error) Outcome {
	if err != nil {
		return Failed{Reason: err.Error()}
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Failed{Reason: "empty generator response"}
	}

	cleaned := strings.ReplaceAll(trimmed, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 {
		return PlainText{Text: trimmed}
	}
	if end <= start {
		return Failed{Reason: "malformed structured output: unbalanced braces"}
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &raw); err != nil {
		return Failed{Reason: "malformed structured output: " + err.Error()}
	}
	return Structured{Reply: decodeReply(raw)}
}

func decodeReply(raw map[string]any) StructuredReply {
	var reply StructuredReply
	if v, ok := asBool(raw["scam_detected"]); ok {
		reply.ScamDetected = &v
	}
	if v, ok := asFloat(raw["confidence_score"]); ok {
		reply.ConfidenceScore = &v
	}
	reply.AgentMode = asString(raw["agent_mode"])
	reply.AgentReply = asString(raw["agent_reply"])
	if reply.AgentReply == "" {
		reply.AgentReply = asString(raw["reply"])
	}

	if intel, ok := raw["extracted_intelligence"].(map[string]any); ok {
		reply.ExtractedIntelligence = make(map[domain.IndicatorKind][]string)
		for _, kind := range domain.IndicatorKinds {
			if values := asStringList(intel[string(kind)]); len(values) > 0 {
				reply.ExtractedIntelligence[kind] = values
			}
		}
	}
	if risk, ok := raw["risk_analysis"].(map[string]any); ok && len(risk) > 0 {
		reply.RiskAnalysis = risk
	}
	return reply
}

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, err == nil
	case float64:
		return t != 0, true
	}
	return false, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func asStringList(v any) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			switch x := item.(type) {
			case string:
				out = append(out, x)
			case float64:
				out = append(out, strconv.FormatFloat(x, 'f', -1, 64))
			}
		}
		return out
	}
	return nil
}
