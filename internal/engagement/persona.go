package engagement

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ashureev/honeypot/internal/domain"
)

type factPattern struct {
	kind  string
	regex *regexp.Regexp
	group int
}

var factPatterns = []factPattern{
	{
		kind:  "relation",
		regex: regexp.MustCompile(`(?i)\bmy\s+(?:son|daughter|wife|husband|mother|father|mom|dad|brother|sister|grandson|granddaughter|nephew|niece)\b(?:\s+(?:is|was|lives|works|studies)\b[^.!?,\n]{0,40})?`),
		group: 0,
	},
	{
		kind:  "age",
		regex: regexp.MustCompile(`(?i)\b(?:i am|i'm|im)\s+(\d{1,3})\s*(?:years?|yrs?)(?:\s+old)?\b`),
		group: 1,
	},
	{
		kind:  "name",
		regex: regexp.MustCompile(`(?i)\b(?:my name is|call me)\s+([A-Za-z][A-Za-z .'-]{0,40}?)(?:\s+(?:and|from|here)\b|[.!?,\n]|$)`),
		group: 1,
	},
	{
		kind:  "location",
		regex: regexp.MustCompile(`(?i)\b(?:i live in|i am from|i'm from|i stay in)\s+([A-Za-z][A-Za-z .'-]{1,40}?)(?:\s+(?:and|with)\b|[.!?,\n]|$)`),
		group: 1,
	},
	{
		kind:  "occupation",
		regex: regexp.MustCompile(`(?i)\b(?:i work as(?:\s+an?)?|i am a retired|i'm a retired|i retired as(?:\s+an?)?)\s+([A-Za-z][A-Za-z -]{1,40}?)(?:\s+(?:and|at|in|from)\b|[.!?,\n]|$)`),
		group: 1,
	},
}

// Words that follow "call me" without being a name.
var notNames = map[string]bool{
	"now": true, "back": true, "later": true, "soon": true,
	"immediately": true, "asap": true, "today": true, "tomorrow": true,
}

// PersonaFacts collects the self-referential claims the persona has made in
// its own messages, in first-seen order, deduplicated case-insensitively and
// capped at domain.MaxPersonaFacts.
func PersonaFacts(history []domain.Message) []string {
	facts := make([]string, 0, domain.MaxPersonaFacts)
	for _, msg := range history {
		if msg.Sender != domain.SenderUser {
			continue
		}
		facts = MergeFacts(facts, factsInText(msg.Text))
		if len(facts) >= domain.MaxPersonaFacts {
			break
		}
	}
	return facts
}

// MergeFacts appends facts from each set in order, skipping case-insensitive
// duplicates, until domain.MaxPersonaFacts is reached.
func MergeFacts(sets ...[]string) []string {
	out := make([]string, 0, domain.MaxPersonaFacts)
	seen := make(map[string]bool)
	for _, set := range sets {
		for _, fact := range set {
			key := strings.ToLower(strings.TrimSpace(fact))
			if key == "" || seen[key] {
				continue
			}
			if len(out) == domain.MaxPersonaFacts {
				return out
			}
			seen[key] = true
			out = append(out, strings.TrimSpace(fact))
		}
	}
	return out
}

type positionedFact struct {
	pos  int
	fact string
}

func factsInText(text string) []string {
	var found []positionedFact
	for _, p := range factPatterns {
		for _, m := range p.regex.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2*p.group], m[2*p.group+1]
			value := strings.TrimSpace(text[start:end])
			if value == "" || (p.kind == "name" && notNames[strings.ToLower(value)]) {
				continue
			}
			found = append(found, positionedFact{pos: m[0], fact: p.kind + ": " + value})
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].pos < found[j].pos })

	facts := make([]string, len(found))
	for i, f := range found {
		facts[i] = f.fact
	}
	return facts
}
