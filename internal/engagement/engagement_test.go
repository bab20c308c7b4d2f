package engagement

import (
	"slices"
	"testing"

	"github.com/ashureev/honeypot/internal/domain"
)

func msgs(pairs ...string) []domain.Message {
	out := make([]domain.Message, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, domain.Message{Sender: domain.Sender(pairs[i]), Text: pairs[i+1], Timestamp: int64(i)})
	}
	return out
}

func TestEmotionalState(t *testing.T) {
	t.Parallel()

	calm := "hello, who is this?"
	tests := []struct {
		name  string
		turns int
		last  string
		want  domain.EmotionalLabel
	}{
		{name: "first turn", turns: 1, last: calm, want: domain.EmotionConfused},
		{name: "second turn", turns: 2, last: calm, want: domain.EmotionConfused},
		{name: "third turn", turns: 3, last: calm, want: domain.EmotionConcerned},
		{name: "fourth turn", turns: 4, last: calm, want: domain.EmotionConcerned},
		{name: "fifth turn", turns: 5, last: calm, want: domain.EmotionPanicked},
		{name: "aggressive overrides turn count", turns: 1, last: "Pay immediately or police will come", want: domain.EmotionPanicked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			history := make([]domain.Message, 0, tt.turns)
			for i := 0; i < tt.turns-1; i++ {
				history = append(history, domain.Message{Sender: domain.SenderUser, Text: "ok"})
			}
			history = append(history, domain.Message{Sender: domain.SenderCounterparty, Text: tt.last})

			if got := EmotionalState(history); got != tt.want {
				t.Fatalf("EmotionalState() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEvaluateTurnsCountsFilteredMessages(t *testing.T) {
	t.Parallel()

	kept := []domain.Message{
		{Sender: domain.SenderCounterparty, Text: "hello madam"},
		{Sender: domain.SenderUser, Text: "who is this?"},
	}

	if got := Evaluate(kept).EmotionalLabel; got != domain.EmotionConfused {
		t.Fatalf("Evaluate() label = %q, want confused for two turns", got)
	}
	state := EvaluateTurns(kept, 5)
	if state.EmotionalLabel != domain.EmotionPanicked {
		t.Fatalf("EvaluateTurns(5) label = %q, want panicked", state.EmotionalLabel)
	}
	if state.CounterpartyTone != domain.ToneNeutral {
		t.Fatalf("EvaluateTurns() tone = %q, want tone from kept text", state.CounterpartyTone)
	}
	if got := EvaluateTurns(kept, 0).EmotionalLabel; got != domain.EmotionConfused {
		t.Fatalf("EvaluateTurns(0) label = %q, want at least len(history) turns", got)
	}
}

func TestCounterpartyTone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		history []domain.Message
		want    domain.Tone
	}{
		{name: "no counterparty", history: msgs("user", "hello"), want: domain.ToneNeutral},
		{name: "polite", history: msgs("counterparty", "Sir, kindly share your details."), want: domain.ToneNeutral},
		{name: "threat term", history: msgs("counterparty", "your account will be blocked"), want: domain.ToneAggressive},
		{name: "shouting", history: msgs("counterparty", "SEND THE MONEY"), want: domain.ToneAggressive},
		{name: "exclamations", history: msgs("counterparty", "pay the fee!!"), want: domain.ToneAggressive},
		{name: "single exclamation", history: msgs("counterparty", "Thank you!"), want: domain.ToneNeutral},
		{name: "know is not now", history: msgs("counterparty", "do you know your branch?"), want: domain.ToneNeutral},
		{
			name:    "only latest counterparty message counts",
			history: msgs("counterparty", "URGENT!!", "user", "what happened", "counterparty", "please tell me your branch name"),
			want:    domain.ToneNeutral,
		},
		{
			name:    "self messages ignored",
			history: msgs("counterparty", "hello sir", "user", "WHAT IS HAPPENING NOW!!"),
			want:    domain.ToneNeutral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CounterpartyTone(tt.history); got != tt.want {
				t.Fatalf("CounterpartyTone() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRepetitionDetected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		history []domain.Message
		want    bool
	}{
		{name: "empty", history: nil, want: false},
		{name: "single reply", history: msgs("user", "hello"), want: false},
		{name: "identical ignoring case", history: msgs("user", "What bank?", "counterparty", "SBI", "user", "  what bank?"), want: true},
		{name: "substring", history: msgs("user", "which branch", "user", "sorry, which branch is it?"), want: true},
		{name: "different", history: msgs("user", "who are you", "user", "what is the link for"), want: false},
		{name: "older repeat ignored", history: msgs("user", "ok", "user", "ok", "user", "tell me more"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := RepetitionDetected(tt.history); got != tt.want {
				t.Fatalf("RepetitionDetected() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPersonaFactsCapAndOrder(t *testing.T) {
	t.Parallel()

	statements := []string{
		"My name is Kamala.",
		"I am 67 years old.",
		"I live in Chennai.",
		"My son is in Dubai.",
		"I work as a tailor.",
		"My daughter lives in Pune.",
		"I'm from Madurai.",
		"My husband was a clerk.",
		"I am a retired nurse.",
		"Call me Amma.",
	}
	var history []domain.Message
	for _, s := range statements {
		history = append(history,
			domain.Message{Sender: domain.SenderCounterparty, Text: "tell me more"},
			domain.Message{Sender: domain.SenderUser, Text: s},
		)
	}

	got := PersonaFacts(history)
	want := []string{
		"name: Kamala",
		"age: 67",
		"location: Chennai",
		"relation: My son is in Dubai",
		"occupation: tailor",
		"relation: My daughter lives in Pune",
	}
	if !slices.Equal(got, want) {
		t.Fatalf("PersonaFacts() = %q, want %q", got, want)
	}
}

func TestPersonaFactsWithinOneMessage(t *testing.T) {
	t.Parallel()

	history := msgs("user", "Hello, my name is Kamala and I am 67 years old, my son works in Dubai!")
	want := []string{"name: Kamala", "age: 67", "relation: my son works in Dubai"}
	if got := PersonaFacts(history); !slices.Equal(got, want) {
		t.Fatalf("PersonaFacts() = %q, want %q", got, want)
	}
}

func TestPersonaFactsIgnoresCounterpartyAndDuplicates(t *testing.T) {
	t.Parallel()

	history := msgs(
		"counterparty", "My name is Rahul from SBI, call me now",
		"user", "My name is Kamala.",
		"user", "my name is KAMALA",
	)
	got := PersonaFacts(history)
	if !slices.Equal(got, []string{"name: Kamala"}) {
		t.Fatalf("PersonaFacts() = %q", got)
	}
	if got == nil {
		t.Fatal("expected non-nil facts")
	}
}

func TestMergeFacts(t *testing.T) {
	t.Parallel()

	got := MergeFacts(
		[]string{"name: Kamala", "age: 67"},
		[]string{"NAME: kamala", "location: Chennai", " "},
	)
	want := []string{"name: Kamala", "age: 67", "location: Chennai"}
	if !slices.Equal(got, want) {
		t.Fatalf("MergeFacts() = %q, want %q", got, want)
	}

	many := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	if got := MergeFacts(many); len(got) != domain.MaxPersonaFacts {
		t.Fatalf("MergeFacts() kept %d facts, want %d", len(got), domain.MaxPersonaFacts)
	}
}

func TestEvaluateScenario(t *testing.T) {
	t.Parallel()

	history := msgs(
		"counterparty", "Hello, this is your bank",
		"user", "Oh, which bank?",
		"counterparty", "State bank. Your KYC is pending",
		"user", "I am 70 years old, I don't understand",
		"user", "what should I do",
		"counterparty", "URGENT your account will be blocked, verify now via http://bit.ly/x and pay to upi@fake",
	)
	got := Evaluate(history)

	if got.CounterpartyTone != domain.ToneAggressive {
		t.Fatalf("CounterpartyTone = %q", got.CounterpartyTone)
	}
	if got.EmotionalLabel != domain.EmotionPanicked {
		t.Fatalf("EmotionalLabel = %q", got.EmotionalLabel)
	}
	if got.RepetitionDetected {
		t.Fatal("unexpected repetition")
	}
	if !slices.Equal(got.PersonaFacts, []string{"age: 70"}) {
		t.Fatalf("PersonaFacts = %q", got.PersonaFacts)
	}
}
