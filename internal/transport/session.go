package transport

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/quizduel-backend/internal/obslog"
)

// Session is one connected client. Handlers are installed per session when
// the connection arrives, so each connection carries its own protocol state.
type Session struct {
	id   string
	wire Wire

	handlerM sync.RWMutex
	handlers map[string]Handler

	writeM sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(id string, wire Wire) *Session {
	return &Session{
		id:       id,
		wire:     wire,
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// Handle installs the handler for one client event name. Installing a second
// handler for the same event replaces the first.
func (s *Session) Handle(event string, h Handler) {
	s.handlerM.Lock()
	defer s.handlerM.Unlock()
	s.handlers[event] = h
}

// Emit writes one frame to this session. Writes are serialized; a dead
// connection surfaces as an error the caller may ignore for best-effort
// notifications.
func (s *Session) Emit(ctx context.Context, event string, data map[string]any) error {
	s.writeM.Lock()
	defer s.writeM.Unlock()
	return s.wire.WriteJSON(ctx, Frame{Event: event, Data: data})
}

// Close tears the connection down once; subsequent calls are no-ops.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.wire.Close()
	})
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// run reads frames until the wire fails, dispatching each event's handler on
// its own goroutine so a slow operation (like a matchmaking search) never
// blocks the read loop.
func (s *Session) run(ctx context.Context) {
	defer s.Close()
	for {
		var f Frame
		if err := s.wire.ReadJSON(ctx, &f); err != nil {
			return
		}
		s.handlerM.RLock()
		h := s.handlers[f.Event]
		s.handlerM.RUnlock()
		if h == nil {
			obslog.L().Debug("unhandled event",
				zap.String("session", s.id), zap.String("event", f.Event))
			continue
		}
		go h(ctx, s, f.Data)
	}
}
