package main

import (
	"fmt"
	"os"

	"github.com/ashureev/honeypot/internal/mcptools"
	"github.com/ashureev/honeypot/internal/sanitize"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the analysis tools over MCP on stdio",
		Long:  `Starts a Model Context Protocol server on stdio exposing extract_indicators, score_message and sanitize_transcript.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := opts.rules()
			if err != nil {
				return err
			}

			mcptools.Version = Version
			s := mcptools.New(sanitize.New(rules.SanitizerBlocklist...), reportKeywords(rules))

			// stdout carries the protocol; diagnostics go to stderr.
			fmt.Fprintf(os.Stderr, "honeypotctl MCP server started on stdio\n")
			return server.ServeStdio(s)
		},
	}
}
