package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/honeypot/internal/api"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func newHealthCmd() *cobra.Command {
	var (
		service string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "health <addr>",
		Short: "Probe a server's gRPC health service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			status, err := api.ProbeHealth(ctx, args[0], service)
			if err != nil {
				return fmt.Errorf("probing %s: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.String())
			if status != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("service %q is %s", service, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&service, "service", api.HealthServiceName, "health service name to query")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "probe timeout")
	return cmd
}
