package agent

import (
	"strings"

	"github.com/ashureev/honeypot/internal/domain"
)

// BaitThreshold is the confidence from which the local fallback baits for
// payment details instead of asking a neutral question.
const BaitThreshold = 0.6

// NeutralReply is the clarifying line used when no better reply exists.
const NeutralReply = "I'm not sure I understand. Can you explain again?"

var baitReplies = []string{
	"Okay sir, but my bank app is slow. Can you send full details again?",
	"I don't understand UPI, can you tell step by step?",
	"Is this account correct? Please send account number and IFSC again",
	"My brother will pay, can you send payment details once more?",
	"I tried but it failed. Which UPI or bank should I use?",
}

// FallbackReply picks a local reply. The bait line rotates with the number of
// persona turns so consecutive fallbacks never repeat the last one sent.
func FallbackReply(confidence float64, history []domain.Message) string {
	if confidence < BaitThreshold {
		return NeutralReply
	}

	turns := 0
	for _, m := range history {
		if m.Sender == domain.SenderUser {
			turns++
		}
	}
	reply := baitReplies[turns%len(baitReplies)]
	if last, ok := domain.LastFrom(history, domain.SenderUser); ok && strings.EqualFold(strings.TrimSpace(last.Text), reply) {
		reply = baitReplies[(turns+1)%len(baitReplies)]
	}
	return reply
}
