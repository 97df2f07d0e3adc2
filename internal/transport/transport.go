// Package transport carries the event protocol between connected players and
// the backend: JSON frames over a websocket, one Session per connection, and
// a Hub that routes server-initiated events to whichever session a player is
// currently on.
package transport

import "context"

// Frame is the unit of the wire protocol in both directions.
type Frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// EventSessionReady is the first frame every connection receives; it carries
// the session id the client echoes into room operations.
const EventSessionReady = "session-ready"

// Handler reacts to one client event on one session.
type Handler func(ctx context.Context, s *Session, data map[string]any)

// Wire is the minimal connection surface the hub needs. The production
// implementation wraps a websocket; tests use an in-memory pipe.
type Wire interface {
	ReadJSON(ctx context.Context, v any) error
	WriteJSON(ctx context.Context, v any) error
	Close() error
}
