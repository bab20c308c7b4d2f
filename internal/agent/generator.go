package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var errGeneratorEmpty = errors.New("generator returned no content")

// Prompt is the input to a reply generator.
type Prompt struct {
	System string
	User   string
}

// Generator produces the persona's next turn, ideally as a JSON object.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// RetryGenerator retries a failed generation at most once after a fixed delay.
type RetryGenerator struct {
	next  Generator
	delay time.Duration
	log   *slog.Logger
}

// NewRetryGenerator wraps next with a single retry.
func NewRetryGenerator(next Generator, delay time.Duration, logger *slog.Logger) *RetryGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryGenerator{next: next, delay: delay, log: logger}
}

// Name returns the wrapped generator's name.
func (r *RetryGenerator) Name() string {
	return r.next.Name()
}

// Generate calls the wrapped generator, retrying once on error or empty text.
func (r *RetryGenerator) Generate(ctx context.Context, prompt Prompt) (string, error) {
	text, err := r.attempt(ctx, prompt)
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", err
	}

	r.log.Warn("generator failed, retrying once", "generator", r.next.Name(), "delay", r.delay, "error", err)
	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}
	return r.attempt(ctx, prompt)
}

func (r *RetryGenerator) attempt(ctx context.Context, prompt Prompt) (string, error) {
	text, err := r.next.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", errGeneratorEmpty
	}
	return text, nil
}

// NoopGenerator always fails, leaving every turn to the local fallback.
type NoopGenerator struct{}

// Name implements Generator.
func (NoopGenerator) Name() string { return "none" }

// Generate implements Generator.
func (NoopGenerator) Generate(context.Context, Prompt) (string, error) {
	return "", errors.New("no generator configured")
}
