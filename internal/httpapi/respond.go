package httpapi

import (
	"encoding/json"
	"errors"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/quizduel-backend/internal/match"
	"github.com/park285/quizduel-backend/internal/obslog"
)

func writeJSON(ctx *fasthttp.RequestCtx, status int, body any) {
	ctx.SetStatusCode(status)
	if err := json.NewEncoder(ctx).Encode(body); err != nil {
		obslog.L().Error("response encode failed", zap.Error(err))
	}
}

func okData(ctx *fasthttp.RequestCtx, status int, data any) {
	writeJSON(ctx, status, map[string]any{"success": true, "data": data})
}

func okMessage(ctx *fasthttp.RequestCtx, message string) {
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{"success": true, "message": message})
}

func fail(ctx *fasthttp.RequestCtx, status int, message string) {
	writeJSON(ctx, status, map[string]any{"success": false, "message": message})
}

// failErr maps the shared error taxonomy onto HTTP statuses.
func (s *Server) failErr(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, match.ErrValidation):
		fail(ctx, fasthttp.StatusNotFound, s.messages.Text("payload.invalid", nil))
	case errors.Is(err, match.ErrNotFound):
		fail(ctx, fasthttp.StatusNotFound, s.messages.Text("room.not_found", nil))
	case errors.Is(err, match.ErrRoomExpired):
		fail(ctx, fasthttp.StatusBadRequest, s.messages.Text("room.expired", nil))
	default:
		obslog.L().Error("request failed", zap.Error(err))
		fail(ctx, fasthttp.StatusBadRequest, "Something went wrong")
	}
}

func parseBody(ctx *fasthttp.RequestCtx, v any) bool {
	if err := json.Unmarshal(ctx.PostBody(), v); err != nil {
		fail(ctx, fasthttp.StatusNotFound, "Payload is not correct!")
		return false
	}
	return true
}
