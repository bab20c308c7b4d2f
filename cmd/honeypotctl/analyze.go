package main

import (
	"encoding/json"
	"fmt"

	"github.com/ashureev/honeypot/internal/domain"
	"github.com/ashureev/honeypot/internal/intel"
	"github.com/ashureev/honeypot/internal/mcptools"
	"github.com/ashureev/honeypot/internal/sanitize"
	"github.com/spf13/cobra"
)

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract [text...]",
		Short: "Extract canonical indicators from text",
		Example: `  honeypotctl extract "pay to ramesh@okaxis, IFSC SBIN0001234"
  cat transcript.txt | honeypotctl extract`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			return writeJSON(cmd, intel.Extract(text))
		},
	}
}

func newScoreCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "score [text...]",
		Short: "Score text with the local scam heuristic",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			rules, err := opts.rules()
			if err != nil {
				return err
			}
			return writeJSON(cmd, mcptools.Evaluate(text, reportKeywords(rules)))
		},
	}
}

func newSanitizeCmd(opts *rootOptions) *cobra.Command {
	var sender string

	cmd := &cobra.Command{
		Use:   "sanitize [text...]",
		Short: "Drop meta-instruction lines and label the rest by role",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			rules, err := opts.rules()
			if err != nil {
				return err
			}
			s := sanitize.New(rules.SanitizerBlocklist...)
			cleaned := s.Sanitize([]domain.Message{{Sender: domain.ParseSender(sender), Text: text}})
			if len(cleaned) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), domain.JoinText(cleaned))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "scammer", "author of unlabelled lines (scammer, user, system)")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
