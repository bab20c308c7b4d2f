package callback

import (
	"context"
	"fmt"
	"log/slog"
)

// Claimer is the atomic at-most-once primitive the gate relies on.
type Claimer interface {
	ClaimCallback(ctx context.Context, sessionID string) (bool, error)
}

// Sink delivers a report.
type Sink interface {
	Send(ctx context.Context, report Report) error
}

// Gate fires a report at most once per session.
type Gate struct {
	claimer  Claimer
	sink     Sink
	keywords []string
	logger   *slog.Logger
}

// NewGate creates a gate. keywords nil uses DefaultSuspiciousKeywords.
func NewGate(claimer Claimer, sink Sink, keywords []string, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = LogSink{Logger: logger}
	}
	return &Gate{
		claimer:  claimer,
		sink:     sink,
		keywords: keywords,
		logger:   logger,
	}
}

// Evaluate reports s if the evidence suffices and this caller wins the claim.
// It returns true only when the report was handed to the sink. Delivery
// failures are logged and not retried.
func (g *Gate) Evaluate(ctx context.Context, s State) (bool, error) {
	if !ShouldReport(s) {
		return false, nil
	}

	claimed, err := g.claimer.ClaimCallback(ctx, s.SessionID)
	if err != nil {
		return false, fmt.Errorf("claim callback: %w", err)
	}
	if !claimed {
		return false, nil
	}

	// The claim is spent, so delivery must outlive the caller's request.
	report := BuildReport(s, g.keywords)
	if err := g.sink.Send(context.WithoutCancel(ctx), report); err != nil {
		g.logger.Error("Callback delivery failed", "session_id", s.SessionID, "error", err)
		return true, nil
	}
	g.logger.Info("Callback sent",
		"session_id", s.SessionID,
		"turns", report.TotalMessagesExchanged,
		"sophistication", report.Sophistication,
	)
	return true, nil
}
