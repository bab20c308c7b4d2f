package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/ashureev/honeypot/internal/callback"
	"github.com/ashureev/honeypot/internal/config"
	"github.com/spf13/cobra"
)

// Version is set via ldflags at build time.
var Version = "dev"

type rootOptions struct {
	rulesFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "honeypotctl",
		Short: "Offline analysis for scam honeypot transcripts",
		Long: `honeypotctl runs the honeypot's local analysis without the reply
generator: indicator extraction, scam scoring and prompt-injection
sanitizing. It can also serve the same tools over MCP on stdio and
probe a running server's gRPC health service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	root.PersistentFlags().StringVar(&opts.rulesFile, "rules", "", "YAML rules file with sanitizer_blocklist and suspicious_keywords")

	root.AddCommand(
		newExtractCmd(),
		newScoreCmd(opts),
		newSanitizeCmd(opts),
		newMCPCmd(opts),
		newHealthCmd(),
	)
	return root
}

func (o *rootOptions) rules() (config.Rules, error) {
	rules, err := config.LoadRules(o.rulesFile)
	if err != nil {
		return rules, fmt.Errorf("loading rules: %w", err)
	}
	return rules, nil
}

// reportKeywords extends the default suspicious keywords with the rules file.
func reportKeywords(rules config.Rules) []string {
	return append(append([]string{}, callback.DefaultSuspiciousKeywords...), rules.SuspiciousKeywords...)
}

// inputText joins args, or reads stdin when there are none or the only arg is "-".
func inputText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("no input text")
	}
	return text, nil
}
