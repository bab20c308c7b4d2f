package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/honeypot/internal/domain"
)

var errUnavailable = errors.New("connection refused")

// failingBackend fails every call, like an unreachable shared store.
type failingBackend struct {
	mu    sync.Mutex
	calls int
}

func (f *failingBackend) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errUnavailable
}

func (f *failingBackend) Append(context.Context, string, string, int) error { return f.fail() }
func (f *failingBackend) Range(context.Context, string) ([]string, error)   { return nil, f.fail() }
func (f *failingBackend) Replace(context.Context, string, []string) error   { return f.fail() }
func (f *failingBackend) ReplaceIfEmpty(context.Context, string, []string) (bool, error) {
	return false, f.fail()
}
func (f *failingBackend) SetIfAbsent(context.Context, string, string) (bool, error) {
	return false, f.fail()
}
func (f *failingBackend) Get(context.Context, string) (string, bool, error) {
	return "", false, f.fail()
}
func (f *failingBackend) Set(context.Context, string, string) error { return f.fail() }
func (f *failingBackend) Ping(context.Context) error                { return f.fail() }
func (f *failingBackend) Close() error                              { return nil }

// switchableBackend serves from memory until down is set, then fails claims.
type switchableBackend struct {
	*MemoryBackend
	down atomic.Bool
}

func (s *switchableBackend) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	if s.down.Load() {
		return false, errUnavailable
	}
	return s.MemoryBackend.SetIfAbsent(ctx, key, value)
}

func (s *switchableBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if s.down.Load() {
		return "", false, errUnavailable
	}
	return s.MemoryBackend.Get(ctx, key)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func message(sender domain.Sender, text string, ts int64) domain.Message {
	return domain.Message{Sender: sender, Text: text, Timestamp: ts}
}

func TestSessionsHistoryCap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSessions(NewMemory(), 3, quietLogger())

	for i := 1; i <= 5; i++ {
		if err := s.Append(ctx, "s1", message(domain.SenderCounterparty, fmt.Sprintf("m%d", i), int64(i))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	history, err := s.History(ctx, "s1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(history))
	}
	if history[0].Text != "m3" || history[2].Text != "m5" {
		t.Fatalf("history = %+v, want oldest evicted first", history)
	}
	if history[0].Sender != domain.SenderCounterparty || history[0].Timestamp != 3 {
		t.Fatalf("message fields not preserved: %+v", history[0])
	}
}

func TestSessionsReplaceHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSessions(NewMemory(), 2, quietLogger())

	seed := []domain.Message{
		message(domain.SenderCounterparty, "a", 1000),
		message(domain.SenderUser, "b", 2000),
		message(domain.SenderCounterparty, "c", 3000),
	}
	if err := s.ReplaceHistory(ctx, "s1", seed); err != nil {
		t.Fatalf("ReplaceHistory() error = %v", err)
	}
	history, _ := s.History(ctx, "s1")
	if len(history) != 2 || history[0].Text != "b" || history[1].Text != "c" {
		t.Fatalf("history = %+v", history)
	}

	started, ok, err := s.StartedAt(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("StartedAt() = %v, %v, %v", started, ok, err)
	}
	if !started.Equal(time.UnixMilli(2000)) {
		t.Fatalf("StartedAt() = %v, want first kept message timestamp", started)
	}
}

func TestSessionsSeedHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSessions(NewMemory(), 10, quietLogger())

	if ok, err := s.SeedHistory(ctx, "s1", nil); err != nil || ok {
		t.Fatalf("SeedHistory(nil) = %v, %v", ok, err)
	}
	seeded, err := s.SeedHistory(ctx, "s1", []domain.Message{message(domain.SenderCounterparty, "hello", 1000)})
	if err != nil || !seeded {
		t.Fatalf("first SeedHistory() = %v, %v", seeded, err)
	}
	_ = s.Append(ctx, "s1", message(domain.SenderCounterparty, "msg-A", 2000))

	seeded, err = s.SeedHistory(ctx, "s1", []domain.Message{message(domain.SenderCounterparty, "hello", 1000)})
	if err != nil || seeded {
		t.Fatalf("second SeedHistory() = %v, %v", seeded, err)
	}
	history, _ := s.History(ctx, "s1")
	if len(history) != 2 || history[0].Text != "hello" || history[1].Text != "msg-A" {
		t.Fatalf("history = %+v, want seed then appended message", history)
	}
	started, ok, _ := s.StartedAt(ctx, "s1")
	if !ok || !started.Equal(time.UnixMilli(1000)) {
		t.Fatalf("StartedAt() = %v, %v, want seed timestamp", started, ok)
	}
}

func TestSessionsSeedHistoryRace(t *testing.T) {
	t.Parallel()

	for _, bc := range backends {
		t.Run(bc.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := NewSessions(bc.new(t), 10, quietLogger())
			seed := []domain.Message{message(domain.SenderCounterparty, "hello", 1)}

			var (
				wg   sync.WaitGroup
				wins atomic.Int32
			)
			start := make(chan struct{})
			for _, text := range []string{"msg-A", "msg-B"} {
				wg.Add(1)
				go func(text string) {
					defer wg.Done()
					<-start
					ok, err := s.SeedHistory(ctx, "race", seed)
					if err != nil {
						t.Errorf("SeedHistory() error = %v", err)
						return
					}
					if ok {
						wins.Add(1)
					}
					if err := s.Append(ctx, "race", message(domain.SenderCounterparty, text, 2)); err != nil {
						t.Errorf("Append() error = %v", err)
					}
				}(text)
			}
			close(start)
			wg.Wait()

			if got := wins.Load(); got != 1 {
				t.Fatalf("expected exactly one seed, got %d", got)
			}
			history, _ := s.History(ctx, "race")
			if len(history) != 3 || history[0].Text != "hello" {
				t.Fatalf("history = %+v, want seed plus both messages", history)
			}
		})
	}
}

func TestSessionsStartedAtSetOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSessions(NewMemory(), 10, quietLogger())
	clock := time.UnixMilli(1_700_000_000_000)
	s.now = func() time.Time { return clock }

	if _, ok, _ := s.StartedAt(ctx, "s1"); ok {
		t.Fatal("new session should have no start time")
	}
	_ = s.Append(ctx, "s1", message(domain.SenderCounterparty, "hi", 1))
	clock = clock.Add(time.Minute)
	_ = s.Append(ctx, "s1", message(domain.SenderUser, "hello", 2))

	started, ok, err := s.StartedAt(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("StartedAt() = %v, %v", ok, err)
	}
	if !started.Equal(time.UnixMilli(1_700_000_000_000)) {
		t.Fatalf("StartedAt() = %v, want first append time", started)
	}
}

func TestSessionsClaimCallbackOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSessions(NewMemory(), 10, quietLogger())

	if sent, _ := s.CallbackSent(ctx, "s1"); sent {
		t.Fatal("callback should not be sent for a new session")
	}
	first, err := s.ClaimCallback(ctx, "s1")
	if err != nil || !first {
		t.Fatalf("first ClaimCallback() = %v, %v", first, err)
	}
	second, err := s.ClaimCallback(ctx, "s1")
	if err != nil || second {
		t.Fatalf("second ClaimCallback() = %v, %v", second, err)
	}
	if sent, _ := s.CallbackSent(ctx, "s1"); !sent {
		t.Fatal("CallbackSent() should stay true after claim")
	}
	if other, _ := s.ClaimCallback(ctx, "s2"); !other {
		t.Fatal("claim for another session should succeed")
	}
}

func TestSessionsConcurrentClaim(t *testing.T) {
	t.Parallel()

	for _, bc := range backends {
		t.Run(bc.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := NewSessions(bc.new(t), 10, quietLogger())

			var (
				wg   sync.WaitGroup
				wins atomic.Int32
			)
			start := make(chan struct{})
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					ok, err := s.ClaimCallback(ctx, "race")
					if err != nil {
						t.Errorf("ClaimCallback() error = %v", err)
						return
					}
					if ok {
						wins.Add(1)
					}
				}()
			}
			close(start)
			wg.Wait()

			if got := wins.Load(); got != 1 {
				t.Fatalf("expected exactly one successful claim, got %d", got)
			}
		})
	}
}

func TestSessionsFallbackOnBackendFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	primary := &failingBackend{}
	s := NewSessions(primary, 10, quietLogger())

	if s.Degraded() {
		t.Fatal("store should start healthy")
	}
	if err := s.Append(ctx, "s1", message(domain.SenderCounterparty, "pay now", 1)); err != nil {
		t.Fatalf("Append() should not surface backend failure, got %v", err)
	}
	if !s.Degraded() {
		t.Fatal("store should be degraded after backend failure")
	}

	history, err := s.History(ctx, "s1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].Text != "pay now" {
		t.Fatalf("history = %+v", history)
	}

	if ok, _ := s.ClaimCallback(ctx, "s1"); !ok {
		t.Fatal("first claim on fallback should succeed")
	}
	if ok, _ := s.ClaimCallback(ctx, "s1"); ok {
		t.Fatal("second claim on fallback should fail")
	}
	if err := s.Ping(ctx); err == nil {
		t.Fatal("Ping() should report degraded store")
	}

	primary.mu.Lock()
	calls := primary.calls
	primary.mu.Unlock()
	if calls != 1 {
		t.Fatalf("primary called %d times, want 1 before degrading", calls)
	}
}

func TestSessionsClaimSurvivesDegrade(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	primary := &switchableBackend{MemoryBackend: NewMemory()}
	s := NewSessions(primary, 10, quietLogger())

	if ok, err := s.ClaimCallback(ctx, "s1"); err != nil || !ok {
		t.Fatalf("ClaimCallback() on primary = %v, %v", ok, err)
	}
	// Claimed elsewhere; this process only observes it through CallbackSent.
	_, _ = primary.MemoryBackend.SetIfAbsent(ctx, callbackKey("s2"), "1")
	if sent, _ := s.CallbackSent(ctx, "s2"); !sent {
		t.Fatal("CallbackSent() should see the primary claim")
	}

	primary.down.Store(true)
	if ok, err := s.ClaimCallback(ctx, "s1"); err != nil || ok {
		t.Fatalf("ClaimCallback() after degrade = %v, %v, want no second claim", ok, err)
	}
	if !s.Degraded() {
		t.Fatal("store should be degraded")
	}
	if ok, _ := s.ClaimCallback(ctx, "s2"); ok {
		t.Fatal("claim observed on the primary should hold after degrade")
	}
	if ok, _ := s.ClaimCallback(ctx, "s3"); !ok {
		t.Fatal("unclaimed session should still be claimable on the fallback")
	}
}

func TestSessionsCanceledContextDoesNotDegrade(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSessions(&failingBackend{}, 10, quietLogger())

	if err := s.Append(ctx, "s1", message(domain.SenderUser, "hi", 1)); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if s.Degraded() {
		t.Fatal("canceled request should not degrade the store")
	}
}

func TestSessionsProfile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSessions(nil, 10, quietLogger())

	if _, ok, err := s.Profile(ctx, "s1"); ok || err != nil {
		t.Fatalf("Profile(missing) = %v, %v", ok, err)
	}
	want := domain.SessionProfile{
		PersonaFacts:   []string{"name: Kamala", "age: 67"},
		EmotionalLabel: domain.EmotionConcerned,
		UpdatedAt:      time.UnixMilli(1_700_000_000_000).UTC(),
	}
	if err := s.SaveProfile(ctx, "s1", want); err != nil {
		t.Fatalf("SaveProfile() error = %v", err)
	}
	got, ok, err := s.Profile(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("Profile() = %v, %v", ok, err)
	}
	if got.EmotionalLabel != want.EmotionalLabel || len(got.PersonaFacts) != 2 || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Fatalf("Profile() = %+v, want %+v", got, want)
	}
}

func TestSessionsSkipsUndecodableEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := NewMemory()
	s := NewSessions(mem, 10, quietLogger())

	_ = mem.Append(ctx, historyKey("s1"), "{not json", 10)
	_ = s.Append(ctx, "s1", message(domain.SenderCounterparty, "ok", 1))

	history, err := s.History(ctx, "s1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].Text != "ok" {
		t.Fatalf("history = %+v", history)
	}
}
