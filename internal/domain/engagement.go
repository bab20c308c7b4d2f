package domain

import (
	"time"
)

// EmotionalLabel is the persona's escalation stage.
type EmotionalLabel string

const (
	EmotionConfused  EmotionalLabel = "confused"
	EmotionConcerned EmotionalLabel = "concerned"
	EmotionPanicked  EmotionalLabel = "panicked"
)

// Tone classifies the latest counterparty message.
type Tone string

const (
	ToneNeutral    Tone = "neutral"
	ToneAggressive Tone = "aggressive"
)

// MaxPersonaFacts bounds how many persona facts are carried into prompts.
const MaxPersonaFacts = 6

// EngagementState is recomputed from history on every turn.
type EngagementState struct {
	EmotionalLabel     EmotionalLabel `json:"emotional_label"`
	CounterpartyTone   Tone           `json:"counterparty_tone"`
	RepetitionDetected bool           `json:"repetition_detected"`
	PersonaFacts       []string       `json:"persona_facts"`
}

// SessionProfile is the per-session metadata persisted next to the history.
type SessionProfile struct {
	PersonaFacts   []string       `json:"persona_facts"`
	EmotionalLabel EmotionalLabel `json:"emotional_label"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
