package intel

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ashureev/honeypot/internal/domain"
)

// candidatePattern is a deliberately permissive matcher for one indicator
// kind. Matches are only candidates; the kind's normalizer decides.
type candidatePattern struct {
	name  string
	kind  domain.IndicatorKind
	regex *regexp.Regexp
	// mask blanks accepted spans so later patterns cannot re-read them
	// (digits inside a URL are not a bank account).
	mask   bool
	accept func(c candidate) bool
}

// candidate is one normalized match with the text around it.
type candidate struct {
	raw       string
	canonical string
	before    string
	after     string
}

// candidatePatterns run in order over progressively masked text.
var candidatePatterns = initCandidatePatterns()

func initCandidatePatterns() []candidatePattern {
	return []candidatePattern{
		// http://…, https://…, www.…
		{
			name:  "url",
			kind:  domain.KindURL,
			regex: regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>]+`),
			mask:  true,
		},
		// name@bank, 9876543210@ybl, first.last@okaxis
		{
			name:  "upi",
			kind:  domain.KindUPI,
			regex: regexp.MustCompile(`[A-Za-z0-9._\-]+@[A-Za-z0-9.\-]+`),
			mask:  true,
		},
		// 0x…, bc1…, 1…/3…
		{
			name:   "wallet",
			kind:   domain.KindWallet,
			regex:  regexp.MustCompile(`\b(?:0x[0-9a-fA-F]{40}|bc1[0-9a-zA-Z]{25,59}|[13][1-9A-HJ-NP-Za-km-z]{25,34})\b`),
			mask:   true,
			accept: hasLetter,
		},
		// SBIN0001234, hdfc-0-abc123, HDFCOABC123
		{
			name:   "ifsc",
			kind:   domain.KindIFSC,
			regex:  regexp.MustCompile(`(?i)\b[a-z]{4}[ -]?[0o][ -]?[a-z0-9]{6}\b`),
			mask:   true,
			accept: branchHasDigit,
		},
		// +91 98765 43210, 98765-43210
		{
			name:  "phone",
			kind:  domain.KindPhone,
			regex: regexp.MustCompile(`\+?\b\d(?:[ -]?\d){9,11}\b`),
		},
		// 1234 5678 9012, 123-456-789-012
		{
			name:   "bank_account",
			kind:   domain.KindBankAccount,
			regex:  regexp.MustCompile(`\+?\b\d(?:[ -]?\d){8,17}\b`),
			accept: plausibleAccount,
		},
	}
}

// Extract scans text for every indicator kind and returns sorted, unique
// canonical values. It never fails and has no hidden state.
func Extract(text string) domain.ExtractedIntelligence {
	found := make(map[domain.IndicatorKind][]string, len(domain.IndicatorKinds))
	masked := []byte(text)

	for _, p := range candidatePatterns {
		normalize := Normalizer(p.kind)
		for _, span := range p.regex.FindAllIndex(masked, -1) {
			raw := string(masked[span[0]:span[1]])
			canonical, ok := normalize(raw)
			if !ok {
				continue
			}
			c := candidate{
				raw:       raw,
				canonical: canonical,
				before:    text[max(0, span[0]-contextWindow):span[0]],
				after:     text[span[1]:min(len(text), span[1]+contextWindow)],
			}
			if p.accept != nil && !p.accept(c) {
				continue
			}
			found[p.kind] = append(found[p.kind], canonical)
			if p.mask {
				blank(masked, span[0], span[1])
			}
		}
	}

	out := domain.NewExtractedIntelligence()
	for kind, values := range found {
		out.Set(kind, values)
	}
	return out
}

// ExtractMessages extracts indicators from the concatenated message texts.
func ExtractMessages(history []domain.Message) domain.ExtractedIntelligence {
	return Extract(domain.JoinText(history))
}

// Canonicalize runs values through the normalizer for kind, dropping rejects.
func Canonicalize(kind domain.IndicatorKind, values []string) []string {
	normalize := Normalizer(kind)
	out := make([]string, 0, len(values))
	for _, v := range values {
		if canonical, ok := normalize(v); ok {
			out = append(out, canonical)
		}
	}
	return domain.SortedUnique(out)
}

// contextWindow is how many bytes around a match the accept rules may inspect.
const contextWindow = 12

var (
	currencyBefore = regexp.MustCompile(`(?i)(?:₹|\brs\.?|\binr)\s*$`)
	currencyAfter  = regexp.MustCompile(`(?i)^\s*(?:/-|rs\b|rupees?\b|inr\b|₹)`)
	digitGroup     = regexp.MustCompile(`\d+`)
)

func hasLetter(c candidate) bool {
	return strings.IndexFunc(c.canonical, unicode.IsLetter) >= 0
}

func branchHasDigit(c candidate) bool {
	return strings.ContainsAny(c.canonical[5:], "0123456789")
}

// plausibleAccount rejects runs that read as something other than an account
// number: +<cc> prefixed runs are phones, runs next to a currency marker are
// amounts, and spaced runs of two or more round groups ("1000 2000 3000") are
// a list of amounts.
func plausibleAccount(c candidate) bool {
	if strings.HasPrefix(c.raw, "+") {
		return false
	}
	if currencyBefore.MatchString(c.before) || currencyAfter.MatchString(c.after) {
		return false
	}
	groups := digitGroup.FindAllString(c.raw, -1)
	if len(groups) < 2 {
		return true
	}
	round := 0
	for _, g := range groups {
		if len(g) >= 3 && strings.HasSuffix(g, "00") {
			round++
		}
	}
	return round < 2
}

func blank(b []byte, start, end int) {
	for i := start; i < end; i++ {
		b[i] = ' '
	}
}
