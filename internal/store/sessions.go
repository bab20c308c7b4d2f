package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ashureev/honeypot/internal/domain"
)

// DefaultMaxHistory is used when Sessions is built with a non-positive cap.
const DefaultMaxHistory = 50

// Sessions implements SessionStore on top of a Backend.
//
// The first error from the primary backend switches the store to an
// in-process MemoryBackend for the rest of the process lifetime. From then on
// durability and cross-instance claim exclusivity are best-effort only; the
// switch is logged and reported by Degraded.
type Sessions struct {
	primary    Backend
	fallback   *MemoryBackend
	degraded   atomic.Bool
	maxHistory int
	log        *slog.Logger
	now        func() time.Time
}

// Compile-time check that Sessions implements SessionStore.
var _ SessionStore = (*Sessions)(nil)

// NewSessions wraps primary. A nil primary runs on the memory backend alone.
func NewSessions(primary Backend, maxHistory int, logger *slog.Logger) *Sessions {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		primary:    primary,
		fallback:   NewMemory(),
		maxHistory: maxHistory,
		log:        logger,
		now:        time.Now,
	}
}

// Degraded reports whether the store has fallen back to process memory.
func (s *Sessions) Degraded() bool {
	return s.primary != nil && s.degraded.Load()
}

// Ping checks the primary backend. It fails once the store is degraded so
// readiness probes surface the condition.
func (s *Sessions) Ping(ctx context.Context) error {
	if s.primary == nil {
		return nil
	}
	if s.degraded.Load() {
		return fmt.Errorf("session store degraded to in-memory fallback")
	}
	return s.primary.Ping(ctx)
}

// Close closes the primary backend.
func (s *Sessions) Close() error {
	if s.primary == nil {
		return nil
	}
	return s.primary.Close()
}

// Append stores msg and records the session start time on first write.
func (s *Sessions) Append(ctx context.Context, sessionID string, msg domain.Message) error {
	encoded, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	started := strconv.FormatInt(s.now().UnixMilli(), 10)
	return s.do(ctx, "append", func(b Backend) error {
		if _, err := b.SetIfAbsent(ctx, startedKey(sessionID), started); err != nil {
			return err
		}
		return b.Append(ctx, historyKey(sessionID), string(encoded), s.maxHistory)
	})
}

// History decodes the stored history. Entries that fail to decode are skipped.
func (s *Sessions) History(ctx context.Context, sessionID string) ([]domain.Message, error) {
	var raw []string
	err := s.do(ctx, "history", func(b Backend) error {
		var err error
		raw, err = b.Range(ctx, historyKey(sessionID))
		return err
	})
	if err != nil {
		return nil, err
	}

	history := make([]domain.Message, 0, len(raw))
	for _, item := range raw {
		var msg domain.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			s.log.Warn("skipping undecodable history entry", "session_id", sessionID, "error", err)
			continue
		}
		history = append(history, msg)
	}
	return history, nil
}

// ReplaceHistory overwrites the history with the newest maxHistory of msgs.
func (s *Sessions) ReplaceHistory(ctx context.Context, sessionID string, msgs []domain.Message) error {
	values, started, err := s.encodeHistory(msgs)
	if err != nil {
		return err
	}
	return s.do(ctx, "replace_history", func(b Backend) error {
		if len(values) > 0 {
			if _, err := b.SetIfAbsent(ctx, startedKey(sessionID), started); err != nil {
				return err
			}
		}
		return b.Replace(ctx, historyKey(sessionID), values)
	})
}

// SeedHistory writes msgs only when the session history is still empty.
// Of two concurrent seeds exactly one reports true.
func (s *Sessions) SeedHistory(ctx context.Context, sessionID string, msgs []domain.Message) (bool, error) {
	values, started, err := s.encodeHistory(msgs)
	if err != nil || len(values) == 0 {
		return false, err
	}
	var seeded bool
	err = s.do(ctx, "seed_history", func(b Backend) error {
		// Start time first so a racing Append cannot stamp it with the clock.
		if _, err := b.SetIfAbsent(ctx, startedKey(sessionID), started); err != nil {
			return err
		}
		var err error
		seeded, err = b.ReplaceIfEmpty(ctx, historyKey(sessionID), values)
		return err
	})
	return seeded, err
}

// encodeHistory keeps the newest maxHistory of msgs and derives the start
// time from the first kept message.
func (s *Sessions) encodeHistory(msgs []domain.Message) ([]string, string, error) {
	if len(msgs) > s.maxHistory {
		msgs = msgs[len(msgs)-s.maxHistory:]
	}
	values := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		encoded, err := json.Marshal(msg)
		if err != nil {
			return nil, "", fmt.Errorf("encode message: %w", err)
		}
		values = append(values, string(encoded))
	}
	started := strconv.FormatInt(s.now().UnixMilli(), 10)
	if len(msgs) > 0 && msgs[0].Timestamp > 0 {
		started = strconv.FormatInt(msgs[0].Timestamp, 10)
	}
	return values, started, nil
}

// ClaimCallback atomically marks the session's callback as sent. Claims seen
// on the primary are mirrored into the fallback so a later degrade does not
// hand out a second claim from this process.
func (s *Sessions) ClaimCallback(ctx context.Context, sessionID string) (bool, error) {
	var claimed bool
	stamp := strconv.FormatInt(s.now().UnixMilli(), 10)
	err := s.do(ctx, "claim_callback", func(b Backend) error {
		var err error
		claimed, err = b.SetIfAbsent(ctx, callbackKey(sessionID), stamp)
		if err != nil {
			return err
		}
		s.mirrorClaim(ctx, b, sessionID, stamp)
		return nil
	})
	return claimed, err
}

// CallbackSent reports whether ClaimCallback has succeeded for the session.
func (s *Sessions) CallbackSent(ctx context.Context, sessionID string) (bool, error) {
	var sent bool
	err := s.do(ctx, "callback_sent", func(b Backend) error {
		var (
			stamp string
			err   error
		)
		stamp, sent, err = b.Get(ctx, callbackKey(sessionID))
		if err != nil {
			return err
		}
		if sent {
			s.mirrorClaim(ctx, b, sessionID, stamp)
		}
		return nil
	})
	return sent, err
}

func (s *Sessions) mirrorClaim(ctx context.Context, b Backend, sessionID, stamp string) {
	if b == Backend(s.fallback) {
		return
	}
	// The memory backend does not fail.
	_, _ = s.fallback.SetIfAbsent(ctx, callbackKey(sessionID), stamp)
}

// StartedAt returns the session start time.
func (s *Sessions) StartedAt(ctx context.Context, sessionID string) (time.Time, bool, error) {
	var (
		raw string
		ok  bool
	)
	err := s.do(ctx, "started_at", func(b Backend) error {
		var err error
		raw, ok, err = b.Get(ctx, startedKey(sessionID))
		return err
	})
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse start time: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

// SaveProfile stores the session profile.
func (s *Sessions) SaveProfile(ctx context.Context, sessionID string, profile domain.SessionProfile) error {
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = s.now()
	}
	encoded, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return s.do(ctx, "save_profile", func(b Backend) error {
		return b.Set(ctx, profileKey(sessionID), string(encoded))
	})
}

// Profile returns the stored session profile.
func (s *Sessions) Profile(ctx context.Context, sessionID string) (domain.SessionProfile, bool, error) {
	var (
		raw string
		ok  bool
	)
	err := s.do(ctx, "profile", func(b Backend) error {
		var err error
		raw, ok, err = b.Get(ctx, profileKey(sessionID))
		return err
	})
	if err != nil || !ok {
		return domain.SessionProfile{}, false, err
	}
	var profile domain.SessionProfile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		s.log.Warn("discarding undecodable profile", "session_id", sessionID, "error", err)
		return domain.SessionProfile{}, false, nil
	}
	return profile, true, nil
}

// do runs fn against the active backend. A primary failure that is not caused
// by the caller's context degrades the store and reruns fn on the fallback.
func (s *Sessions) do(ctx context.Context, op string, fn func(Backend) error) error {
	if s.primary == nil || s.degraded.Load() {
		return fn(s.fallback)
	}
	err := fn(s.primary)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if s.degraded.CompareAndSwap(false, true) {
		s.log.Warn("session backend unavailable, falling back to in-memory store; durability is best-effort",
			"op", op,
			"error", err)
	}
	return fn(s.fallback)
}
