package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/quizduel-backend/internal/obslog"
)

// Hub tracks live sessions and routes server-initiated events to them. It
// implements the notifier interface the match core emits through.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	onConnect    func(s *Session)
	onDisconnect func(ctx context.Context, sessionID string)
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[string]*Session)}
}

// OnConnect installs the hook that wires protocol handlers onto every new
// session. Must be set before the hub starts accepting connections.
func (h *Hub) OnConnect(fn func(s *Session)) { h.onConnect = fn }

// OnDisconnect installs the hook fired after a session's read loop ends.
// It runs on its own goroutine with a background context, so a grace-window
// sleep inside it does not block accepting.
func (h *Hub) OnDisconnect(fn func(ctx context.Context, sessionID string)) { h.onDisconnect = fn }

// Emit pushes an event to one session by id. An unknown id means the player
// is no longer connected.
func (h *Hub) Emit(ctx context.Context, sessionID, event string, data map[string]any) error {
	h.mu.RLock()
	s := h.sessions[sessionID]
	h.mu.RUnlock()
	if s == nil {
		return fmt.Errorf("session %s not connected", sessionID)
	}
	return s.Emit(ctx, event, data)
}

// Count reports the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Attach registers a wire as a new session and runs its read loop until the
// connection drops. It blocks, so callers run it from the connection's own
// goroutine (the HTTP handler for websockets, the test body for fakes).
func (h *Hub) Attach(ctx context.Context, wire Wire) {
	s := newSession(uuid.NewString(), wire)

	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()

	if h.onConnect != nil {
		h.onConnect(s)
	}
	if err := s.Emit(ctx, EventSessionReady, map[string]any{"sessionId": s.id}); err != nil {
		obslog.L().Debug("session-ready write failed", zap.String("session", s.id), zap.Error(err))
	}

	obslog.L().Info("session connected", zap.String("session", s.id))
	s.run(ctx)

	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()
	obslog.L().Info("session disconnected", zap.String("session", s.id))

	if h.onDisconnect != nil {
		go h.onDisconnect(context.Background(), s.id)
	}
}
