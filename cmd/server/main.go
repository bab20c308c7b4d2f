// Honeypot - scam engagement and intelligence extraction server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/honeypot/internal/agent"
	"github.com/ashureev/honeypot/internal/api"
	"github.com/ashureev/honeypot/internal/callback"
	"github.com/ashureev/honeypot/internal/config"
	"github.com/ashureev/honeypot/internal/identity"
	"github.com/ashureev/honeypot/internal/middleware"
	"github.com/ashureev/honeypot/internal/sanitize"
	"github.com/ashureev/honeypot/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		slog.Error("Failed to load rules file", "path", cfg.RulesFile, "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"store_backend", cfg.Store.Backend,
		"generator", cfg.Generator.Provider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	sessions := store.NewSessions(newBackend(ctx, cfg, logger), cfg.MaxHistory, logger)
	defer func() {
		if closeErr := sessions.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	if err := sessions.Ping(ctx); err != nil {
		slog.Warn("Session store health check failed", "error", err)
	} else {
		slog.Info("Session store connected", "degraded", sessions.Degraded())
	}

	keywords := append(append([]string{}, callback.DefaultSuspiciousKeywords...), rules.SuspiciousKeywords...)
	gate := callback.NewGate(sessions, newSink(cfg, logger), keywords, logger)

	svc, err := agent.NewService(agent.Options{
		Sessions:        sessions,
		Generator:       newGenerator(cfg, logger),
		Gate:            gate,
		Sanitizer:       sanitize.New(rules.SanitizerBlocklist...),
		MaxContextChars: cfg.MaxContextChars,
		Logger:          logger,
	})
	if err != nil {
		slog.Error("Failed to initialize honeypot service", "error", err)
		os.Exit(1)
	}

	// Initialize handlers.
	honeypotHandler := agent.NewHandler(svc, agent.HandlerConfig{
		RateLimitRequests: cfg.RateLimit.Requests,
		RateLimitWindow:   cfg.RateLimit.Window,
		AllowedOrigins:    originPatterns(cfg),
	}, logger)
	defer honeypotHandler.Close()

	healthHandler := api.NewHealthHandler(sessions, 3*time.Second, logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.APIKey))
		honeypotHandler.RegisterRoutes(r)
	})

	// Optional gRPC health service for orchestrators.
	if cfg.GRPCHealthPort != "" {
		startGRPCHealth(ctx, cfg.GRPCHealthPort, sessions, logger)
	}

	// Create server.
	// Note: SSE and websocket connections require long timeouts (no WriteTimeout)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// newBackend opens the configured durable store. A backend that cannot be
// reached at startup is replaced by memory so the service still answers.
func newBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) store.Backend {
	switch cfg.Store.Backend {
	case config.StoreSQLite:
		backend, err := store.NewSQLite(cfg.Store.DBPath)
		if err != nil {
			logger.Warn("SQLite unavailable, using in-memory sessions", "path", cfg.Store.DBPath, "error", err)
			return store.NewMemory()
		}
		return backend
	case config.StoreRedis:
		backend, err := store.NewRedis(ctx, cfg.Store.RedisURL)
		if err != nil {
			logger.Warn("Redis unavailable, using in-memory sessions", "error", err)
			return store.NewMemory()
		}
		return backend
	default:
		return store.NewMemory()
	}
}

func newGenerator(cfg *config.Config, logger *slog.Logger) agent.Generator {
	var gen agent.Generator
	switch cfg.Generator.Provider {
	case config.ProviderGoogle:
		gen = agent.NewGeminiGenerator(cfg.Generator.GeminiAPIKey, cfg.Generator.GeminiModel, "", cfg.Generator.Timeout)
	case config.ProviderOpenAI:
		gen = agent.NewOpenAIGenerator(cfg.Generator.OpenAIAPIKey, cfg.Generator.OpenAIModel, cfg.Generator.OpenAIBaseURL)
	default:
		slog.Info("Reply generator disabled, using local fallback replies")
		return agent.NoopGenerator{}
	}
	if cfg.GeneratorAPIKey() == "" {
		slog.Warn("Generator API key not set, using local fallback replies", "provider", cfg.Generator.Provider)
		return agent.NoopGenerator{}
	}
	slog.Info("Reply generator configured", "generator", gen.Name())
	return agent.NewRetryGenerator(gen, cfg.Generator.RetryDelay, logger)
}

func newSink(cfg *config.Config, logger *slog.Logger) callback.Sink {
	if !cfg.Callback.Enabled {
		slog.Info("Case report delivery disabled, reports are logged only")
		return callback.LogSink{Logger: logger}
	}
	return callback.NewHTTPSink(cfg.Callback.URL, cfg.Callback.Timeout, logger)
}

// originPatterns converts frontend origins to websocket host patterns.
func originPatterns(cfg *config.Config) []string {
	origins := cfg.AllowedOrigins()
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			patterns = append(patterns, o)
			continue
		}
		if host := hostOf(o); host != "" {
			patterns = append(patterns, host)
		}
	}
	return patterns
}

func hostOf(origin string) string {
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return u.Host
}

func startGRPCHealth(ctx context.Context, port string, sessions *store.Sessions, logger *slog.Logger) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		slog.Error("Failed to listen for gRPC health", "port", port, "error", err)
		os.Exit(1)
	}

	health := api.NewGRPCHealth(sessions, 10*time.Second, logger)
	go health.Run(ctx)
	go func() {
		slog.Info("gRPC health listening", "addr", lis.Addr().String())
		if err := health.Server().Serve(lis); err != nil {
			slog.Error("gRPC health server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		health.Server().GracefulStop()
	}()
}
