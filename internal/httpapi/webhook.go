package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/quizduel-backend/internal/obslog"
	"github.com/park285/quizduel-backend/internal/users"
)

// handleWebhook ingests identity-provider events to keep the local user
// cache current. When a signing secret is configured, requests must present
// it in the X-Signing-Secret header.
func (s *Server) handleWebhook(c context.Context, ctx *fasthttp.RequestCtx) {
	if s.webhookSecret != "" {
		presented := ctx.Request.Header.Peek("X-Signing-Secret")
		if subtle.ConstantTimeCompare(presented, []byte(s.webhookSecret)) != 1 {
			fail(ctx, fasthttp.StatusUnauthorized, s.messages.Text("webhook.rejected", nil))
			return
		}
	}

	var ev users.IdentityEvent
	if err := json.Unmarshal(ctx.PostBody(), &ev); err != nil {
		fail(ctx, fasthttp.StatusBadRequest, "Payload is not correct!")
		return
	}
	if err := s.users.ApplyIdentityEvent(c, &ev); err != nil {
		obslog.L().Error("identity event failed", zap.String("type", ev.Type), zap.Error(err))
		fail(ctx, fasthttp.StatusBadRequest, "Something went wrong")
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{"message": "Webhook Completed"})
}
