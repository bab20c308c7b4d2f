// Package sanitize strips meta-instruction lines from conversation text before
// it is forwarded to the reply generator.
//
// This is a best-effort heuristic filter. It raises the cost of the obvious
// prompt-injection phrasings; it is not a security boundary and callers must
// not treat sanitized text as trusted.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/ashureev/honeypot/internal/domain"
)

// DefaultBlocklist holds the meta-instruction markers every Sanitizer drops.
var DefaultBlocklist = []string{
	"output only",
	"the instructions",
	"final output",
	"ignore previous",
	"ignore all previous",
	"ignore the above",
	"disregard previous",
	"system prompt",
	"return only",
	"respond only with",
	"you are now",
	"new instructions",
}

var (
	labelPattern     = regexp.MustCompile(`(?i)^[\s*#>\[]*(user|agent|assistant|honeypot|system|scammer|counterparty)[\]*\s]*:[\s*]*(.*)$`)
	bareLabelPattern = regexp.MustCompile(`(?i)^[\s*#>\[]*(user|agent|assistant|honeypot|system|scammer|counterparty)[\]*\s]*:?[\s*]*$`)
)

// Sanitizer filters history line by line against a blocklist.
type Sanitizer struct {
	blocklist []string
}

// New returns a Sanitizer using DefaultBlocklist plus any extra phrases.
func New(extra ...string) *Sanitizer {
	blocklist := make([]string, 0, len(DefaultBlocklist)+len(extra))
	blocklist = append(blocklist, DefaultBlocklist...)
	for _, phrase := range extra {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase != "" {
			blocklist = append(blocklist, phrase)
		}
	}
	return &Sanitizer{blocklist: blocklist}
}

// Sanitize returns a filtered copy of history. Blocklisted lines and bare role
// labels are dropped, every remaining line carries a role label, and messages
// left without content are removed. The input is not modified.
func (s *Sanitizer) Sanitize(history []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(history))
	for _, msg := range history {
		if text, ok := s.cleanText(msg); ok {
			msg.Text = text
			out = append(out, msg)
		}
	}
	return out
}

// Blocked reports whether line contains a blocklisted phrase.
func (s *Sanitizer) Blocked(line string) bool {
	lower := strings.ToLower(line)
	for _, phrase := range s.blocklist {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func (s *Sanitizer) cleanText(msg domain.Message) (string, bool) {
	label := string(msg.Sender)
	if label == "" {
		label = string(domain.SenderCounterparty)
	}

	var kept []string
	for _, line := range strings.Split(msg.Text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || s.Blocked(line) {
			continue
		}
		if m := bareLabelPattern.FindStringSubmatch(line); m != nil {
			label = string(domain.ParseSender(m[1]))
			continue
		}
		if m := labelPattern.FindStringSubmatch(line); m != nil {
			label = string(domain.ParseSender(m[1]))
			line = strings.TrimSpace(m[2])
		}
		kept = append(kept, label+": "+line)
	}
	if len(kept) == 0 {
		return "", false
	}
	return strings.Join(kept, "\n"), true
}
