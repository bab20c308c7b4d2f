// Package domain contains core domain types for the honeypot engine.
package domain

import (
	"strings"
)

// Sender identifies who authored a message.
type Sender string

const (
	// SenderUser is the honeypot persona (self-authored messages).
	SenderUser Sender = "user"
	// SenderCounterparty is the suspected scammer.
	SenderCounterparty Sender = "counterparty"
	// SenderSystem is platform-generated text.
	SenderSystem Sender = "system"
)

// ParseSender maps the sender strings used by callers onto a Sender.
// Unknown values are treated as counterparty text, the least trusted source.
func ParseSender(s string) Sender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "agent", "honeypot", "assistant":
		return SenderUser
	case "system":
		return SenderSystem
	default:
		return SenderCounterparty
	}
}

// Message is a single conversation entry. It is never mutated once appended.
type Message struct {
	Sender    Sender `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// JoinText concatenates message texts, one per line.
func JoinText(history []Message) string {
	var b strings.Builder
	for i, m := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Text)
	}
	return b.String()
}

// LastFrom returns the most recent message authored by sender.
func LastFrom(history []Message, sender Sender) (Message, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Sender == sender {
			return history[i], true
		}
	}
	return Message{}, false
}
