package intel

import (
	"regexp"
	"strings"
)

// ScamThreshold is the heuristic confidence at which a message counts as a scam.
const ScamThreshold = 0.5

var scamSignals = []string{
	"upi", "account", "bank", "verify", "verification",
	"refund", "prize", "lottery", "offer", "limited",
	"click", "link", "payment", "urgent", "kyc",
	"otp", "blocked", "suspended",
}

var paymentTerms = []string{"bank", "upi", "ifsc", "payment", "pay "}

// Urgency markers are matched as whole words so "now" does not fire on "know".
var urgencyPattern = regexp.MustCompile(`(?i)\b(?:urgent|urgently|now|immediately|asap|right away|today)\b`)

// ScoreMessage is the keyword/urgency heuristic used when the generator gives
// no verdict: any scam signal +0.5, an urgency marker +0.3, a banking or
// payment term +0.2, capped at 1.0.
func ScoreMessage(text string) float64 {
	lower := strings.ToLower(text)
	score := 0.0
	if containsAny(lower, scamSignals) {
		score += 0.5
	}
	if urgencyPattern.MatchString(lower) {
		score += 0.3
	}
	if containsAny(lower, paymentTerms) {
		score += 0.2
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
