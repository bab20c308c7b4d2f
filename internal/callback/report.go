// Package callback decides when a session has gathered enough evidence and
// delivers the one-time case report.
package callback

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ashureev/honeypot/internal/domain"
)

// MinTurns is the history length from which a scam session is reported even
// without extracted indicators.
const MinTurns = 5

// DefaultSuspiciousKeywords are matched case-insensitively against the whole
// history when building a report.
var DefaultSuspiciousKeywords = []string{
	"urgent",
	"verify",
	"verification",
	"account blocked",
	"account suspended",
	"kyc",
	"click",
	"link",
	"payment",
	"upi",
	"bank",
	"refund",
}

var (
	bankingTerms = []string{"kyc", "ifsc", "otp", "account", "bank", "verification"}
	urgencyTerms = []string{"urgent", "immediately", "blocked", "suspended", "2 hours", "limited time"}
)

// State is the merged view of a session after one turn.
type State struct {
	SessionID    string
	ScamDetected bool
	History      []domain.Message
	Intel        domain.ExtractedIntelligence
	RiskAnalysis map[string]any
}

// Turns is the conversation turn count.
func (s State) Turns() int {
	return len(s.History)
}

// ShouldReport reports whether the evidence justifies a case report.
func ShouldReport(s State) bool {
	return s.ScamDetected && (s.Turns() >= MinTurns || !s.Intel.IsEmpty())
}

// ReportIntelligence is the indicator block of a Report.
type ReportIntelligence struct {
	BankAccounts    []string `json:"bankAccounts"`
	UPIIDs          []string `json:"upiIds"`
	IFSCCodes       []string `json:"ifscCodes"`
	PhishingLinks   []string `json:"phishingLinks"`
	PhoneNumbers    []string `json:"phoneNumbers"`
	WalletAddresses []string `json:"walletAddresses"`
}

// Report is the payload sent to the case-management endpoint.
type Report struct {
	SessionID              string             `json:"sessionId"`
	ScamDetected           bool               `json:"scamDetected"`
	TotalMessagesExchanged int                `json:"totalMessagesExchanged"`
	ExtractedIntelligence  ReportIntelligence `json:"extractedIntelligence"`
	SuspiciousKeywords     []string           `json:"suspiciousKeywords"`
	Sophistication         string             `json:"sophistication"`
	AgentNotes             string             `json:"agentNotes"`
}

// BuildReport assembles the report for s. keywords nil uses
// DefaultSuspiciousKeywords.
func BuildReport(s State, keywords []string) Report {
	if keywords == nil {
		keywords = DefaultSuspiciousKeywords
	}
	text := domain.JoinText(s.History)
	found := SuspiciousKeywords(text, keywords)
	sophistication := AssessSophistication(text, s.Intel)

	in := s.Intel
	return Report{
		SessionID:              s.SessionID,
		ScamDetected:           s.ScamDetected,
		TotalMessagesExchanged: s.Turns(),
		ExtractedIntelligence: ReportIntelligence{
			BankAccounts:    nonNil(in.BankAccounts),
			UPIIDs:          nonNil(in.UPIIDs),
			IFSCCodes:       nonNil(in.IFSCCodes),
			PhishingLinks:   nonNil(in.PhishingURLs),
			PhoneNumbers:    nonNil(in.PhoneNumbers),
			WalletAddresses: nonNil(in.WalletAddresses),
		},
		SuspiciousKeywords: found,
		Sophistication:     sophistication,
		AgentNotes:         buildNotes(found, sophistication, s.Intel, s.RiskAnalysis),
	}
}

// SuspiciousKeywords returns the keywords present in text, in keyword order.
func SuspiciousKeywords(text string, keywords []string) []string {
	lowered := strings.ToLower(text)
	found := []string{}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || slices.Contains(found, kw) {
			continue
		}
		if strings.Contains(lowered, kw) {
			found = append(found, kw)
		}
	}
	return found
}

// AssessSophistication rates the scam from links, payment identifiers and
// banking vocabulary.
func AssessSophistication(text string, in domain.ExtractedIntelligence) string {
	lowered := strings.ToLower(text)
	hasLink := len(in.PhishingURLs) > 0
	hasPayment := in.HasPaymentIdentifiers()
	banking := containsAny(lowered, bankingTerms)
	urgency := containsAny(lowered, urgencyTerms)

	switch {
	case hasLink && hasPayment && banking:
		return "high (uses links plus banking/payment identifiers)"
	case hasPayment && banking:
		return "moderate (uses banking/payment identifiers)"
	case urgency || banking:
		return "low-to-moderate (urgency and verification cues)"
	default:
		return "low (generic pressure without specific identifiers)"
	}
}

func buildNotes(keywords []string, sophistication string, in domain.ExtractedIntelligence, risk map[string]any) string {
	var parts []string
	if len(keywords) > 0 {
		sorted := slices.Sorted(slices.Values(keywords))
		parts = append(parts, fmt.Sprintf("Scammer leveraged urgency/verification cues (%s).", strings.Join(sorted, ", ")))
	}
	if phrases := stringList(risk["suspicious_phrases"]); len(phrases) > 0 {
		parts = append(parts, fmt.Sprintf("Session-specific scam phrases: %s.", strings.Join(firstN(phrases, 5), ", ")))
	}
	if in.HasPaymentIdentifiers() {
		parts = append(parts, "Agent attempted to extract payment identifiers through verification-style questions.")
	}
	if len(in.PhishingURLs) > 0 {
		parts = append(parts, "Scammer included a link, indicating potential phishing redirection.")
	}
	if pairs := identifierLinks(risk["identifier_links"]); len(pairs) > 0 {
		parts = append(parts, fmt.Sprintf("Identifier-link pairing observed: %s.", strings.Join(firstN(pairs, 2), "; ")))
	}
	parts = append(parts, fmt.Sprintf("Sophistication assessment: %s.", sophistication))
	return strings.Join(parts, " ")
}

func identifierLinks(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["identifier"].(string)
		link, _ := m["url"].(string)
		if id == "" && link == "" {
			continue
		}
		out = append(out, id+" -> "+link)
	}
	return out
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func firstN(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
