package agent

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/honeypot/internal/identity"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// wsFrame is one websocket reply. Errors are sent in-band so the socket
// survives a bad frame.
type wsFrame struct {
	SessionID string `json:"sessionId"`
	Error     string `json:"error,omitempty"`
	*MessageResponse
}

// socketRegistry tracks the live socket per honeypot session. A new socket
// for a session replaces the previous one.
type socketRegistry struct {
	mu     sync.Mutex
	active map[string]*websocket.Conn
	logger *slog.Logger
}

func newSocketRegistry(logger *slog.Logger) *socketRegistry {
	return &socketRegistry{
		active: make(map[string]*websocket.Conn),
		logger: logger,
	}
}

func (m *socketRegistry) register(sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[sessionID]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	m.active[sessionID] = conn
	m.logger.Info("Honeypot socket registered", "session_id", sessionID)
}

func (m *socketRegistry) unregister(sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[sessionID]; ok && current == conn {
		delete(m.active, sessionID)
		m.logger.Info("Honeypot socket unregistered", "session_id", sessionID)
	}
}

func (m *socketRegistry) get(sessionID string) *websocket.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[sessionID]
}

func (m *socketRegistry) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sid, conn := range m.active {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(m.active, sid)
	}
}

// HandleWebSocket handles GET /honeypot/ws. Every text frame is a message
// request; frames without a sessionId use an id generated for the socket.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	ws.SetReadLimit(h.maxBody)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	client := identity.ClientIDFromContext(r.Context())
	if client == "" {
		client = identity.IPFromRequest(r)
	}
	socketSession := uuid.NewString()
	registered := make(map[string]bool)
	defer func() {
		for sid := range registered {
			h.sockets.unregister(sid, ws)
		}
	}()

	ctx := r.Context()
	for {
		var req MessageRequest
		if err := wsjson.Read(ctx, ws, &req); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, ctx.Err()) {
				h.logger.Debug("WebSocket closed by client", "client", client)
			} else {
				h.logger.Warn("WebSocket read error", "error", err, "client", client)
			}
			return
		}

		if req.SessionID == "" {
			req.SessionID = socketSession
		}
		sessionID, ok := identity.SanitizeSessionID(req.SessionID)
		if !ok {
			if err := wsjson.Write(ctx, ws, wsFrame{SessionID: req.SessionID, Error: "invalid session id"}); err != nil {
				return
			}
			continue
		}
		req.SessionID = sessionID

		if !h.rateLimiter.Allow(client) {
			if err := wsjson.Write(ctx, ws, wsFrame{SessionID: sessionID, Error: "rate limit exceeded"}); err != nil {
				return
			}
			continue
		}

		if !registered[sessionID] {
			h.sockets.register(sessionID, ws)
			registered[sessionID] = true
		}

		frame := wsFrame{SessionID: sessionID}
		resp, err := h.svc.Process(ctx, req)
		switch {
		case errors.Is(err, ErrInvalidRequest):
			frame.Error = err.Error()
		case err != nil:
			h.logger.Error("Failed to process websocket message", "session_id", sessionID, "error", err)
			frame.Error = "failed to process message"
		default:
			frame.MessageResponse = &resp
		}
		if err := wsjson.Write(ctx, ws, frame); err != nil {
			h.logger.Debug("WebSocket write failed", "session_id", sessionID, "error", err)
			return
		}
	}
}
