// Package store provides session persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/honeypot/internal/domain"
)

// Backend is the key/value and list primitive set a session store needs.
// Implementations must make SetIfAbsent and ReplaceIfEmpty true conditional
// writes.
type Backend interface {
	// Append pushes value onto the list at key, keeping at most maxLen of the
	// newest entries. maxLen <= 0 means unbounded.
	Append(ctx context.Context, key, value string, maxLen int) error

	// Range returns the whole list at key, oldest first.
	Range(ctx context.Context, key string) ([]string, error)

	// Replace swaps the list at key for values in one step.
	Replace(ctx context.Context, key string, values []string) error

	// ReplaceIfEmpty writes values only if the list at key is empty and
	// reports whether it did. The check and the write are atomic.
	ReplaceIfEmpty(ctx context.Context, key string, values []string) (bool, error)

	// SetIfAbsent stores value only if key is unset and reports whether it did.
	SetIfAbsent(ctx context.Context, key, value string) (bool, error)

	// Get returns the value at key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value at key unconditionally.
	Set(ctx context.Context, key, value string) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}

// SessionStore is the per-session state the engagement pipeline reads and writes.
type SessionStore interface {
	// Append adds msg to the session history, evicting the oldest entries past the cap.
	Append(ctx context.Context, sessionID string, msg domain.Message) error

	// History returns the session history, oldest first.
	History(ctx context.Context, sessionID string) ([]domain.Message, error)

	// ReplaceHistory overwrites the session history.
	ReplaceHistory(ctx context.Context, sessionID string, msgs []domain.Message) error

	// SeedHistory stores msgs only if the session has no history yet and
	// reports whether this call wrote them.
	SeedHistory(ctx context.Context, sessionID string, msgs []domain.Message) (bool, error)

	// ClaimCallback returns true exactly once per session.
	ClaimCallback(ctx context.Context, sessionID string) (bool, error)

	// CallbackSent reports whether the callback has been claimed.
	CallbackSent(ctx context.Context, sessionID string) (bool, error)

	// StartedAt returns when the session's first message was stored.
	StartedAt(ctx context.Context, sessionID string) (time.Time, bool, error)

	// SaveProfile stores persona facts and emotional label for the session.
	SaveProfile(ctx context.Context, sessionID string, profile domain.SessionProfile) error

	// Profile returns the stored profile, if any.
	Profile(ctx context.Context, sessionID string) (domain.SessionProfile, bool, error)
}

const keyPrefix = "honeypot:"

func historyKey(sessionID string) string  { return keyPrefix + "history:" + sessionID }
func callbackKey(sessionID string) string { return keyPrefix + "callback_sent:" + sessionID }
func startedKey(sessionID string) string  { return keyPrefix + "started:" + sessionID }
func profileKey(sessionID string) string  { return keyPrefix + "profile:" + sessionID }
