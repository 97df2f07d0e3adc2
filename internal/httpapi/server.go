// Package httpapi exposes the REST surface: solo rooms, catalog listing,
// online room reads, history polling, and the identity webhook.
package httpapi

import (
	"context"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/park285/quizduel-backend/internal/content"
	"github.com/park285/quizduel-backend/internal/history"
	"github.com/park285/quizduel-backend/internal/match"
	"github.com/park285/quizduel-backend/internal/msgcat"
	"github.com/park285/quizduel-backend/internal/solo"
	"github.com/park285/quizduel-backend/internal/users"
)

type Server struct {
	solo     *solo.Service
	content  content.Store
	rooms    *match.Store
	users    *users.Directory
	results  *history.Reconciler
	messages *msgcat.Catalog

	webhookSecret string
}

func New(
	soloSvc *solo.Service,
	cs content.Store,
	rooms *match.Store,
	dir *users.Directory,
	rec *history.Reconciler,
	cat *msgcat.Catalog,
	webhookSecret string,
) *Server {
	return &Server{
		solo:          soloSvc,
		content:       cs,
		rooms:         rooms,
		users:         dir,
		results:       rec,
		messages:      cat,
		webhookSecret: webhookSecret,
	}
}

// Handler routes requests by method and path. Path parameters follow the
// fixed segment counts of each route, so no router dependency is needed
// beyond fasthttp itself. Handlers get a plain context for store calls:
// RequestCtx's own Done channel belongs to the server's connection plumbing
// and is not a usable cancellation signal.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/json; charset=utf-8")
		c := context.Background()
		method := string(ctx.Method())
		path := string(ctx.Path())

		if method == fasthttp.MethodPost && path == "/api/clerk/webhook" {
			s.handleWebhook(c, ctx)
			return
		}

		rest, ok := strings.CutPrefix(path, "/api/quiz/")
		if !ok {
			fail(ctx, fasthttp.StatusNotFound, "Route not found")
			return
		}
		parts := strings.Split(rest, "/")

		switch {
		case method == fasthttp.MethodGet && len(parts) == 2 && parts[0] == "get-all":
			s.handleGetAll(c, ctx, parts[1])
		case method == fasthttp.MethodPost && rest == "solo-player":
			s.handleCreateSoloRoom(c, ctx)
		case method == fasthttp.MethodGet && len(parts) == 2 && parts[0] == "get-room":
			s.handleGetSoloRoom(c, ctx, parts[1])
		case method == fasthttp.MethodPut && rest == "leave-solo-room":
			s.handleLeaveSoloRoom(c, ctx)
		case method == fasthttp.MethodPut && rest == "reactive-solo-room":
			s.handleReactivateSoloRoom(c, ctx)
		case method == fasthttp.MethodPost && rest == "submit-solo-quiz":
			s.handleSubmitSoloQuiz(c, ctx)
		case method == fasthttp.MethodGet && len(parts) == 2 && parts[0] == "get-solo-result":
			s.handleGetSoloResult(c, ctx, parts[1])
		case method == fasthttp.MethodPut && rest == "leave-online-room":
			s.handleLeaveOnlineRoom(c, ctx)
		case method == fasthttp.MethodGet && len(parts) == 3 && parts[0] == "get-online-room":
			s.handleGetOnlineRoom(c, ctx, parts[1], parts[2])
		case method == fasthttp.MethodGet && len(parts) == 3 && parts[0] == "get-online-history":
			s.handleGetOnlineHistory(c, ctx, parts[1], parts[2])
		default:
			fail(ctx, fasthttp.StatusNotFound, "Route not found")
		}
	}
}
