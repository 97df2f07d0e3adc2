package httpapi

import (
	"context"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/quizduel-backend/internal/match"
	"github.com/park285/quizduel-backend/internal/obslog"
)

// handleLeaveOnlineRoom ends an online room from outside the socket flow,
// for clients that navigate away without resigning. Leaving twice is a
// no-op: the pairing key may already belong to a rematch.
func (s *Server) handleLeaveOnlineRoom(c context.Context, ctx *fasthttp.RequestCtx) {
	var body roomIDBody
	if !parseBody(ctx, &body) {
		return
	}
	roomID := body.id()
	if roomID == "" {
		fail(ctx, fasthttp.StatusNotFound, "Online Room Id not exist!")
		return
	}

	var alreadyEnded bool
	room, err := s.rooms.UpdateRoom(c, roomID, func(r *match.Room) error {
		alreadyEnded = r.Ended
		if r.Ended {
			return nil
		}
		r.Player1Alive = false
		r.Player2Alive = false
		r.Ended = true
		return nil
	})
	if err != nil {
		s.failErr(ctx, err)
		return
	}
	if !alreadyEnded {
		if err := s.rooms.ReleasePair(c, room.UniqueKey); err != nil {
			obslog.L().Warn("release pair failed", zap.String("room", roomID), zap.Error(err))
		}
	}
	okMessage(ctx, "Online room is shut down")
}

func (s *Server) handleGetOnlineRoom(c context.Context, ctx *fasthttp.RequestCtx, roomID, userID string) {
	room, err := s.rooms.GetRoom(c, roomID)
	if err != nil {
		s.failErr(ctx, err)
		return
	}
	if room == nil {
		fail(ctx, fasthttp.StatusNotFound, s.messages.Text("room.not_found", nil))
		return
	}
	if room.Ended {
		fail(ctx, fasthttp.StatusBadRequest, s.messages.Text("room.expired", nil))
		return
	}
	if room.Player1ID == "" || room.Player2ID == "" {
		fail(ctx, fasthttp.StatusBadRequest, "One user is missing in online room")
		return
	}

	opponentID, _ := room.Opponent(userID)
	if opponentID == "" {
		fail(ctx, fasthttp.StatusBadRequest, "Can't find your opponent")
		return
	}
	opponent, err := s.users.Get(c, opponentID)
	if err != nil {
		s.failErr(ctx, err)
		return
	}
	if opponent == nil {
		fail(ctx, fasthttp.StatusBadRequest, "Can't find your opponent")
		return
	}

	okData(ctx, fasthttp.StatusOK, map[string]any{
		"onlineRoomData": room,
		"opponent":       opponent,
	})
}

// handleGetOnlineHistory is the HTTP polling twin of the socket history
// event: one snapshot per request, isPending until the opponent submits. The
// pending snapshot still carries the opponent's profile and the room's
// allotted time so the client can render the waiting screen.
func (s *Server) handleGetOnlineHistory(c context.Context, ctx *fasthttp.RequestCtx, resultID, roomID string) {
	view, err := s.results.Lookup(c, resultID, roomID)
	if err != nil {
		s.failErr(ctx, err)
		return
	}
	if view.Pending {
		body := map[string]any{
			"success":      true,
			"isPending":    true,
			"message":      s.messages.Text("history.pending", nil),
			"totalSeconds": view.TotalSeconds,
		}
		if p := s.results.OpponentProfile(c, view); p != nil {
			body["opponentUser"] = p
		}
		writeJSON(ctx, fasthttp.StatusOK, body)
		return
	}

	data := map[string]any{
		"myHistory":       view.Mine,
		"opponentHistory": view.Opponent,
		"totalSeconds":    view.TotalSeconds,
	}
	if p := s.results.OpponentProfile(c, view); p != nil {
		data["opponentUser"] = p
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"success":   true,
		"isPending": false,
		"data":      data,
	})
}
