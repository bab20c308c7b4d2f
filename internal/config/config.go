// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Generator providers.
const (
	ProviderGoogle = "google"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	APIKey          string
	FrontendURL     string
	MaxHistory      int
	MaxContextChars int
	RulesFile       string
	GRPCHealthPort  string
	Store           StoreConfig
	Generator       GeneratorConfig
	Callback        CallbackConfig
	RateLimit       RateLimitConfig
}

// StoreConfig selects the durable session store.
type StoreConfig struct {
	Backend  string
	DBPath   string
	RedisURL string
}

// GeneratorConfig selects the reply generator.
type GeneratorConfig struct {
	Provider      string
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	Timeout       time.Duration
	RetryDelay    time.Duration
}

// CallbackConfig controls the final case report.
type CallbackConfig struct {
	Enabled bool
	URL     string
	Timeout time.Duration
}

// RateLimitConfig bounds requests per client.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		APIKey:          getEnv("HONEYPOT_API_KEY", ""),
		FrontendURL:     getEnv("FRONTEND_URL", ""),
		MaxHistory:      getEnvInt("MAX_HISTORY", 50),
		MaxContextChars: getEnvInt("MAX_CONTEXT_CHARS", 6000),
		RulesFile:       getEnv("RULES_FILE", ""),
		GRPCHealthPort:  getEnv("GRPC_HEALTH_PORT", ""),
		Store: StoreConfig{
			Backend:  strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
			DBPath:   getEnv("DB_PATH", "./data/honeypot.db"),
			RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Generator: GeneratorConfig{
			Provider:      strings.ToLower(getEnv("GENERATOR_PROVIDER", ProviderGoogle)),
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
			GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			Timeout:       getEnvDuration("GENERATOR_TIMEOUT", 30*time.Second),
			RetryDelay:    getEnvDuration("GENERATOR_RETRY_DELAY", time.Second),
		},
		Callback: CallbackConfig{
			Enabled: getEnvBool("CALLBACK_ENABLED", true),
			URL:     getEnv("CALLBACK_URL", "https://hackathon.guvi.in/api/updateHoneyPotFinalResult"),
			Timeout: getEnvDuration("CALLBACK_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.APIKey == "" {
		return fmt.Errorf("HONEYPOT_API_KEY is required")
	}
	if c.MaxHistory <= 0 {
		return fmt.Errorf("MAX_HISTORY must be > 0")
	}
	if c.MaxContextChars <= 0 {
		return fmt.Errorf("MAX_CONTEXT_CHARS must be > 0")
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty when STORE_BACKEND=sqlite")
		}
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("REDIS_URL cannot be empty when STORE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	switch c.Generator.Provider {
	case ProviderGoogle, ProviderOpenAI, ProviderNone:
	default:
		return fmt.Errorf("unknown GENERATOR_PROVIDER %q", c.Generator.Provider)
	}

	if c.Callback.Enabled && c.Callback.URL == "" {
		return fmt.Errorf("CALLBACK_URL cannot be empty when callbacks are enabled")
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	return nil
}

// GeneratorAPIKey returns the key for the configured provider.
func (c *Config) GeneratorAPIKey() string {
	switch c.Generator.Provider {
	case ProviderGoogle:
		return c.Generator.GeminiAPIKey
	case ProviderOpenAI:
		return c.Generator.OpenAIAPIKey
	}
	return ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS and websocket origins for the frontend.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
