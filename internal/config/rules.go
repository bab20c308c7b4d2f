package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules extends the built-in sanitizer blocklist and report keywords.
type Rules struct {
	SanitizerBlocklist []string `yaml:"sanitizer_blocklist"`
	SuspiciousKeywords []string `yaml:"suspicious_keywords"`
}

// LoadRules reads a YAML rules file. An empty path returns empty rules.
func LoadRules(path string) (Rules, error) {
	var rules Rules
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	rules.SanitizerBlocklist = cleanList(rules.SanitizerBlocklist)
	rules.SuspiciousKeywords = cleanList(rules.SuspiciousKeywords)
	return rules, nil
}

func cleanList(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
