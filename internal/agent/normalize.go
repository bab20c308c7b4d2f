package agent

import (
	"math"

	"github.com/ashureev/honeypot/internal/domain"
	"github.com/ashureev/honeypot/internal/intel"
)

// Outcome sources recorded on Result.
const (
	SourceStructured = "structured"
	SourcePlainText  = "plain_text"
	SourceFallback   = "fallback"
)

// Local is what the engine knows about a turn without the generator.
type Local struct {
	Intel      domain.ExtractedIntelligence
	Confidence float64
	History    []domain.Message
}

// Normalize merges a generator outcome with local analysis into one Result.
// Every field is always populated; missing generator fields fall back to
// local values.
func Normalize(outcome Outcome, local Local) Result {
	switch o := outcome.(type) {
	case Structured:
		return normalizeStructured(o.Reply, local)
	case PlainText:
		scam := local.Confidence >= intel.ScamThreshold
		return Result{
			ScamDetected:          scam,
			ConfidenceScore:       local.Confidence,
			AgentMode:             modeFor(scam),
			AgentReply:            o.Text,
			ExtractedIntelligence: copyIntel(local.Intel),
			RiskAnalysis:          defaultRisk("Model reply without JSON envelope; local heuristics only"),
			Source:                SourcePlainText,
		}
	case Failed:
		return fallbackResult(local, "Generator unavailable; local heuristics only")
	default:
		return fallbackResult(local, "Unrecognized generator outcome; local heuristics only")
	}
}

func normalizeStructured(reply StructuredReply, local Local) Result {
	confidence := local.Confidence
	if reply.ConfidenceScore != nil && !math.IsNaN(*reply.ConfidenceScore) {
		confidence = clamp01(*reply.ConfidenceScore)
	}

	scam := local.Confidence >= intel.ScamThreshold
	if reply.ScamDetected != nil {
		scam = *reply.ScamDetected
	}

	mode := reply.AgentMode
	if mode == "" {
		mode = modeFor(scam)
	}

	agentReply := reply.AgentReply
	if agentReply == "" {
		agentReply = FallbackReply(confidence, local.History)
	}

	risk := reply.RiskAnalysis
	if len(risk) == 0 {
		risk = defaultRisk("Generator returned no risk analysis")
	}

	return Result{
		ScamDetected:          scam,
		ConfidenceScore:       confidence,
		AgentMode:             mode,
		AgentReply:            agentReply,
		ExtractedIntelligence: MergeIntelligence(reply.ExtractedIntelligence, local.Intel),
		RiskAnalysis:          risk,
		Source:                SourceStructured,
	}
}

func fallbackResult(local Local, reason string) Result {
	scam := local.Confidence >= intel.ScamThreshold
	return Result{
		ScamDetected:          scam,
		ConfidenceScore:       local.Confidence,
		AgentMode:             modeFor(scam),
		AgentReply:            FallbackReply(local.Confidence, local.History),
		ExtractedIntelligence: copyIntel(local.Intel),
		RiskAnalysis:          defaultRisk(reason),
		Source:                SourceFallback,
	}
}

// MergeIntelligence unions generator claims with local indicators per kind.
// Claims are canonicalized first; values that fail canonicalization are dropped.
func MergeIntelligence(claimed map[domain.IndicatorKind][]string, local domain.ExtractedIntelligence) domain.ExtractedIntelligence {
	merged := domain.NewExtractedIntelligence()
	for _, kind := range domain.IndicatorKinds {
		values := append(intel.Canonicalize(kind, claimed[kind]), local.Values(kind)...)
		merged.Set(kind, values)
	}
	return merged
}

func copyIntel(src domain.ExtractedIntelligence) domain.ExtractedIntelligence {
	return MergeIntelligence(nil, src)
}

func defaultRisk(reason string) map[string]any {
	return map[string]any{
		"exposure_risk": "low",
		"reasoning":     reason,
	}
}

func modeFor(scam bool) string {
	if scam {
		return ModeEngaged
	}
	return ModeMonitoring
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
