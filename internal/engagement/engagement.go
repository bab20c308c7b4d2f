// Package engagement derives the persona's per-turn state from conversation
// history: emotional escalation, counterparty tone, persona facts and reply
// repetition. Everything here is a pure function of the history it is given.
package engagement

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ashureev/honeypot/internal/domain"
)

const (
	confusedMaxTurns  = 2
	concernedMaxTurns = 4

	shoutingUpperChars = 10
	shoutingExclaims   = 2
)

var threatPattern = regexp.MustCompile(`(?i)\b(?:urgent|urgently|immediately|now|asap|blocked|block|suspended|freeze|frozen|police|arrest|arrested|jail|court|legal action|penalty|last warning|final warning)\b`)

// EmotionalState maps the turn count onto confused, concerned and panicked.
// An aggressive counterparty pushes the persona straight to panicked.
func EmotionalState(history []domain.Message) domain.EmotionalLabel {
	return emotionFor(len(history), CounterpartyTone(history))
}

func emotionFor(turns int, tone domain.Tone) domain.EmotionalLabel {
	if tone == domain.ToneAggressive {
		return domain.EmotionPanicked
	}
	switch {
	case turns <= confusedMaxTurns:
		return domain.EmotionConfused
	case turns <= concernedMaxTurns:
		return domain.EmotionConcerned
	default:
		return domain.EmotionPanicked
	}
}

// CounterpartyTone inspects only the most recent counterparty message.
func CounterpartyTone(history []domain.Message) domain.Tone {
	msg, ok := domain.LastFrom(history, domain.SenderCounterparty)
	if !ok {
		return domain.ToneNeutral
	}
	if threatPattern.MatchString(msg.Text) {
		return domain.ToneAggressive
	}
	upper := 0
	for _, r := range msg.Text {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if upper >= shoutingUpperChars || strings.Count(msg.Text, "!") >= shoutingExclaims {
		return domain.ToneAggressive
	}
	return domain.ToneNeutral
}

// RepetitionDetected reports whether the two latest self-authored replies are
// the same, ignoring case and surrounding space, or one contains the other.
func RepetitionDetected(history []domain.Message) bool {
	var recent []string
	for i := len(history) - 1; i >= 0 && len(recent) < 2; i-- {
		if history[i].Sender == domain.SenderUser {
			recent = append(recent, strings.ToLower(strings.TrimSpace(history[i].Text)))
		}
	}
	if len(recent) < 2 || recent[0] == "" || recent[1] == "" {
		return false
	}
	return strings.Contains(recent[0], recent[1]) || strings.Contains(recent[1], recent[0])
}

// Evaluate recomputes the full engagement state for one turn.
func Evaluate(history []domain.Message) domain.EngagementState {
	return EvaluateTurns(history, len(history))
}

// EvaluateTurns is Evaluate with the turn count supplied separately, for
// callers that filtered history before inspecting its text. turns below
// len(history) are raised to it.
func EvaluateTurns(history []domain.Message, turns int) domain.EngagementState {
	turns = max(turns, len(history))
	tone := CounterpartyTone(history)
	return domain.EngagementState{
		EmotionalLabel:     emotionFor(turns, tone),
		CounterpartyTone:   tone,
		RepetitionDetected: RepetitionDetected(history),
		PersonaFacts:       PersonaFacts(history),
	}
}
