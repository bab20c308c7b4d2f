package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/honeypot/internal/api"
	"github.com/ashureev/honeypot/internal/identity"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20 // 1MB

// HandlerConfig holds transport limits for Handler.
type HandlerConfig struct {
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	MaxRequestBodySize int64
	AllowedOrigins     []string
}

// Handler serves the honeypot HTTP, SSE and websocket endpoints.
type Handler struct {
	svc         *Service
	rateLimiter *RateLimiter
	sockets     *socketRegistry
	maxBody     int64
	origins     []string
	logger      *slog.Logger
}

// NewHandler creates a handler around svc.
func NewHandler(svc *Service, cfg HandlerConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = 30
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = defaultMaxRequestBodySize
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return &Handler{
		svc:         svc,
		rateLimiter: NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		sockets:     newSocketRegistry(logger),
		maxBody:     cfg.MaxRequestBodySize,
		origins:     cfg.AllowedOrigins,
		logger:      logger,
	}
}

// RateLimiter implements a per-client sliding window limiter.
// The key is the caller, not the session id, so clients cannot bypass
// throttling by rotating session ids.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	done     chan struct{}
	once     sync.Once
}

// NewRateLimiter creates a new rate limiter and starts the background eviction goroutine.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		done:     make(chan struct{}),
	}
	rl.startEviction()
	return rl
}

// Allow checks if a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Stop ends the eviction goroutine.
func (r *RateLimiter) Stop() {
	r.once.Do(func() { close(r.done) })
}

// startEviction periodically removes expired keys from the requests map.
func (r *RateLimiter) startEviction() {
	go func() {
		ticker := time.NewTicker(r.window)
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				return
			case <-ticker.C:
			}
			r.mu.Lock()
			cutoff := time.Now().Add(-r.window)
			for key, times := range r.requests {
				var fresh []time.Time
				for _, t := range times {
					if t.After(cutoff) {
						fresh = append(fresh, t)
					}
				}
				if len(fresh) == 0 {
					delete(r.requests, key)
				} else {
					r.requests[key] = fresh
				}
			}
			r.mu.Unlock()
		}
	}()
}

// RegisterRoutes registers the honeypot routes. Authentication is applied by
// the caller's middleware stack.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/honeypot", func(r chi.Router) {
		r.Post("/message", h.HandleMessage)
		r.Post("/stream", h.HandleStream)
		r.Get("/ws", h.HandleWebSocket)
		r.Get("/sessions/{sessionID}", h.HandleSession)
	})
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.rateLimiter.Stop()
	h.sockets.closeAll()
}

func (h *Handler) allow(w http.ResponseWriter, r *http.Request) bool {
	client := identity.ClientIDFromContext(r.Context())
	if client == "" {
		client = identity.IPFromRequest(r)
	}
	if !h.rateLimiter.Allow(client) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request) (MessageRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return req, false
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if id, ok := identity.SanitizeSessionID(req.SessionID); ok {
		req.SessionID = id
	} else {
		api.Error(w, http.StatusBadRequest, "sessionId is required and must match [A-Za-z0-9._:-]{1,128}")
		return req, false
	}
	return req, true
}

// HandleMessage handles POST /honeypot/message.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	h.logger.Info("Honeypot message",
		"session_id", req.SessionID,
		"sender", req.Message.Sender,
		"message_length", len(req.Message.Text),
		"request_id", chiMiddleware.GetReqID(r.Context()),
	)

	resp, err := h.svc.Process(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, req.SessionID, err)
		return
	}
	api.JSON(w, http.StatusOK, resp)
}

// HandleStream handles POST /honeypot/stream. It emits the local analysis as
// an "analysis" event and the merged reply as a "message" event.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	turn, err := h.svc.Analyze(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, req.SessionID, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeSSEJSON(w, "analysis", turn.Analysis()); err != nil {
		h.logger.Warn("failed to write SSE analysis event", "session_id", req.SessionID, "error", err)
		return
	}
	flusher.Flush()

	resp, err := h.svc.Respond(r.Context(), turn)
	if err != nil {
		h.logger.Error("Honeypot stream failed", "session_id", req.SessionID, "error", err)
		if writeErr := writeSSE(w, "error", `{"error":"failed to process message"}`); writeErr != nil {
			h.logger.Warn("failed to write SSE error event", "error", writeErr)
		}
		flusher.Flush()
		return
	}
	if err := writeSSEJSON(w, "message", resp); err != nil {
		h.logger.Warn("failed to write SSE message event", "session_id", req.SessionID, "error", err)
		return
	}
	flusher.Flush()
}

// HandleSession handles GET /honeypot/sessions/{sessionID}.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := identity.SanitizeSessionID(chi.URLParam(r, "sessionID"))
	if !ok {
		api.Error(w, http.StatusBadRequest, "invalid session id")
		return
	}
	view, err := h.svc.Session(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to load session", "session_id", sessionID, "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if len(view.History) == 0 && view.StartedAt == nil {
		api.Error(w, http.StatusNotFound, "session not found")
		return
	}
	view.LiveSocket = h.sockets.get(sessionID) != nil
	api.JSON(w, http.StatusOK, view)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, sessionID string, err error) {
	if errors.Is(err, ErrInvalidRequest) {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error("Failed to process message", "session_id", sessionID, "error", err)
	api.Error(w, http.StatusInternalServerError, "failed to process message")
}

func writeSSEJSON(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	return writeSSE(w, event, string(data))
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
