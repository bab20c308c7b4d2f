package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/honeypot/internal/callback"
	"github.com/ashureev/honeypot/internal/domain"
	"github.com/ashureev/honeypot/internal/engagement"
	"github.com/ashureev/honeypot/internal/intel"
	"github.com/ashureev/honeypot/internal/sanitize"
	"github.com/ashureev/honeypot/internal/store"
)

// ErrInvalidRequest is returned for requests without a session id or text.
var ErrInvalidRequest = errors.New("invalid request")

// Options configures a Service.
type Options struct {
	Sessions        store.SessionStore
	Generator       Generator
	Gate            *callback.Gate
	Sanitizer       *sanitize.Sanitizer
	MaxContextChars int
	Logger          *slog.Logger
}

// Service runs one engagement turn per incoming message.
type Service struct {
	sessions   store.SessionStore
	generator  Generator
	gate       *callback.Gate
	sanitizer  *sanitize.Sanitizer
	maxContext int
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a service. Sessions is required; a nil Generator uses
// NoopGenerator so every reply comes from the local fallback.
func NewService(opts Options) (*Service, error) {
	if opts.Sessions == nil {
		return nil, errors.New("agent service requires a session store")
	}
	if opts.Generator == nil {
		opts.Generator = NoopGenerator{}
	}
	if opts.Sanitizer == nil {
		opts.Sanitizer = sanitize.New()
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = DefaultMaxContextChars
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		sessions:   opts.Sessions,
		generator:  opts.Generator,
		gate:       opts.Gate,
		sanitizer:  opts.Sanitizer,
		maxContext: opts.MaxContextChars,
		logger:     opts.Logger,
		now:        time.Now,
	}, nil
}

// Turn carries the local analysis of one message between Analyze and Respond.
type Turn struct {
	SessionID  string
	History    []domain.Message
	Sanitized  []domain.Message
	State      domain.EngagementState
	Intel      domain.ExtractedIntelligence
	Confidence float64
}

// Analysis returns the locally computed view of the turn.
func (t *Turn) Analysis() Analysis {
	return Analysis{
		SessionID:             t.SessionID,
		Confidence:            t.Confidence,
		ScamDetected:          t.Confidence >= intel.ScamThreshold,
		Engagement:            t.State,
		ExtractedIntelligence: t.Intel,
		ConversationTurns:     len(t.History),
	}
}

// Process runs a full turn and returns the response for the caller.
func (s *Service) Process(ctx context.Context, req MessageRequest) (MessageResponse, error) {
	turn, err := s.Analyze(ctx, req)
	if err != nil {
		return MessageResponse{}, err
	}
	return s.Respond(ctx, turn)
}

// Analyze records the incoming message and computes everything that does not
// need the generator.
func (s *Service) Analyze(ctx context.Context, req MessageRequest) (*Turn, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Message.Text) == "" {
		return nil, fmt.Errorf("%w: message.text is required", ErrInvalidRequest)
	}

	msg := req.Message.Message()
	if msg.Timestamp == 0 {
		msg.Timestamp = s.now().UnixMilli()
	}

	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(history) == 0 && len(req.ConversationHistory) > 0 {
		seed := make([]domain.Message, 0, len(req.ConversationHistory))
		for _, m := range req.ConversationHistory {
			if strings.TrimSpace(m.Text) != "" {
				seed = append(seed, m.Message())
			}
		}
		seeded, err := s.sessions.SeedHistory(ctx, sessionID, seed)
		if err != nil {
			return nil, fmt.Errorf("seed history: %w", err)
		}
		if seeded {
			s.logger.Info("Seeded session history", "session_id", sessionID, "messages", len(seed))
		}
	}

	if err := s.sessions.Append(ctx, sessionID, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	history, err = s.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	sanitized := s.sanitizer.Sanitize(history)
	// Blocked messages still count as turns.
	state := engagement.EvaluateTurns(sanitized, len(history))
	if profile, ok, err := s.sessions.Profile(ctx, sessionID); err != nil {
		s.logger.Warn("Failed to load session profile", "session_id", sessionID, "error", err)
	} else if ok {
		state.PersonaFacts = engagement.MergeFacts(profile.PersonaFacts, state.PersonaFacts)
	}

	latest := msg.Text
	if last, ok := domain.LastFrom(history, domain.SenderCounterparty); ok {
		latest = last.Text
	}

	return &Turn{
		SessionID:  sessionID,
		History:    history,
		Sanitized:  sanitized,
		State:      state,
		Intel:      intel.ExtractMessages(history),
		Confidence: intel.ScoreMessage(latest),
	}, nil
}

// Respond asks the generator for a reply, merges it with the local analysis,
// records the reply and runs the callback gate.
func (s *Service) Respond(ctx context.Context, turn *Turn) (MessageResponse, error) {
	prompt := BuildPrompt(turn.Sanitized, turn.State, s.maxContext)
	text, genErr := s.generator.Generate(ctx, prompt)
	if genErr != nil {
		s.logger.Warn("Generator failed, using local fallback",
			"session_id", turn.SessionID,
			"generator", s.generator.Name(),
			"error", genErr,
		)
	}

	outcome := ParseOutcome(text, genErr)
	result := Normalize(outcome, Local{
		Intel:      turn.Intel,
		Confidence: turn.Confidence,
		History:    turn.History,
	})

	reply := domain.Message{
		Sender:    domain.SenderUser,
		Text:      result.AgentReply,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.sessions.Append(ctx, turn.SessionID, reply); err != nil {
		return MessageResponse{}, fmt.Errorf("append reply: %w", err)
	}
	history, err := s.sessions.History(ctx, turn.SessionID)
	if err != nil {
		return MessageResponse{}, fmt.Errorf("load history: %w", err)
	}

	if err := s.sessions.SaveProfile(ctx, turn.SessionID, domain.SessionProfile{
		PersonaFacts:   turn.State.PersonaFacts,
		EmotionalLabel: turn.State.EmotionalLabel,
		UpdatedAt:      s.now(),
	}); err != nil {
		s.logger.Warn("Failed to save session profile", "session_id", turn.SessionID, "error", err)
	}

	if s.gate != nil {
		if _, err := s.gate.Evaluate(ctx, callback.State{
			SessionID:    turn.SessionID,
			ScamDetected: result.ScamDetected,
			History:      history,
			Intel:        result.ExtractedIntelligence,
			RiskAnalysis: result.RiskAnalysis,
		}); err != nil {
			s.logger.Warn("Callback gate failed", "session_id", turn.SessionID, "error", err)
		}
	}

	s.logger.Info("Processed message",
		"session_id", turn.SessionID,
		"source", result.Source,
		"scam_detected", result.ScamDetected,
		"confidence", result.ConfidenceScore,
		"turns", len(history),
	)

	return MessageResponse{
		Status:          "success",
		Reply:           result.AgentReply,
		ScamDetected:    result.ScamDetected,
		ConfidenceScore: result.ConfidenceScore,
		AgentMode:       result.AgentMode,
		EngagementMetrics: EngagementMetrics{
			ConversationTurns:         len(history),
			EngagementDurationSeconds: s.engagementSeconds(ctx, turn.SessionID),
		},
		ExtractedIntelligence: result.ExtractedIntelligence,
		RiskAnalysis:          result.RiskAnalysis,
	}, nil
}

func (s *Service) engagementSeconds(ctx context.Context, sessionID string) float64 {
	started, ok, err := s.sessions.StartedAt(ctx, sessionID)
	if err != nil || !ok {
		return 0
	}
	elapsed := s.now().Sub(started).Seconds()
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// SessionView is the operator view of a stored session.
type SessionView struct {
	SessionID    string                 `json:"session_id"`
	History      []domain.Message       `json:"history"`
	CallbackSent bool                   `json:"callback_sent"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	Profile      *domain.SessionProfile `json:"profile,omitempty"`
	LiveSocket   bool                   `json:"live_socket"`
}

// Session returns the stored state of a session.
func (s *Service) Session(ctx context.Context, sessionID string) (SessionView, error) {
	view := SessionView{SessionID: sessionID}

	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return view, fmt.Errorf("load history: %w", err)
	}
	view.History = history

	if view.CallbackSent, err = s.sessions.CallbackSent(ctx, sessionID); err != nil {
		return view, fmt.Errorf("load callback flag: %w", err)
	}
	if started, ok, err := s.sessions.StartedAt(ctx, sessionID); err != nil {
		return view, fmt.Errorf("load start time: %w", err)
	} else if ok {
		view.StartedAt = &started
	}
	if profile, ok, err := s.sessions.Profile(ctx, sessionID); err != nil {
		return view, fmt.Errorf("load profile: %w", err)
	} else if ok {
		view.Profile = &profile
	}
	return view, nil
}
