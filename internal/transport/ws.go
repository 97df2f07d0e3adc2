package transport

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/quizduel-backend/internal/obslog"
)

const pingInterval = 30 * time.Second

// wsWire adapts a websocket connection to the Wire surface.
type wsWire struct {
	conn *websocket.Conn
}

func (w *wsWire) ReadJSON(ctx context.Context, v any) error {
	return wsjson.Read(ctx, w.conn, v)
}

func (w *wsWire) WriteJSON(ctx context.Context, v any) error {
	return wsjson.Write(ctx, w.conn, v)
}

func (w *wsWire) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "bye")
}

// Handler returns the HTTP handler that upgrades requests to websocket
// sessions on this hub.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			CompressionMode: websocket.CompressionNoContextTakeover,
			OriginPatterns:  []string{"*"},
		})
		if err != nil {
			obslog.L().Warn("websocket accept failed", zap.Error(err))
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go pingLoop(ctx, conn, cancel)

		h.Attach(ctx, &wsWire{conn: conn})
	})
}

// pingLoop probes the connection and cancels the session after two missed
// pings, so half-open connections release their slot.
func pingLoop(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, pcancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				failures++
				if failures >= 2 {
					cancel()
					return
				}
				continue
			}
			failures = 0
		}
	}
}
