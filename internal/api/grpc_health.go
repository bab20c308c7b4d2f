package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// HealthServiceName is the gRPC health service name reported for the session store.
const HealthServiceName = "honeypot.SessionStore"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// GRPCHealth publishes session store readiness over the standard gRPC health
// protocol for orchestrators that probe gRPC.
type GRPCHealth struct {
	server   *grpc.Server
	health   *health.Server
	store    Pinger
	interval time.Duration
	logger   *slog.Logger
}

// NewGRPCHealth creates the gRPC server and registers the health service.
func NewGRPCHealth(store Pinger, interval time.Duration, logger *slog.Logger) *GRPCHealth {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	hs := health.NewServer()
	srv := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
		Time:    2 * time.Minute,
		Timeout: 10 * time.Second,
	}))
	healthpb.RegisterHealthServer(srv, hs)
	return &GRPCHealth{
		server:   srv,
		health:   hs,
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Server exposes the underlying gRPC server for Serve and Stop.
func (g *GRPCHealth) Server() *grpc.Server {
	return g.server
}

// Check pings the store once and updates the published status.
func (g *GRPCHealth) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("gRPC health: session store not serving", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(HealthServiceName, status)
	return status
}

// Run refreshes the status every interval until ctx is done, then marks the
// service as shutting down.
func (g *GRPCHealth) Run(ctx context.Context) {
	g.Check(ctx)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			g.health.Shutdown()
			return
		case <-ticker.C:
			g.Check(ctx)
		}
	}
}

// ProbeHealth connects to addr and queries the health service. Extra dial
// options are appended after the insecure transport default.
func ProbeHealth(ctx context.Context, addr, service string, opts ...grpc.DialOption) (healthpb.HealthCheckResponse_ServingStatus, error) {
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("create client for %s: %w", addr, err)
	}
	defer conn.Close()

	if err := waitForReady(ctx, conn); err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health endpoint at %s not ready: %w", addr, err)
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check: %w", err)
	}
	return resp.GetStatus(), nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}
