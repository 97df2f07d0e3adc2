// Package gateway binds the websocket event protocol to the match core:
// it parses client frames, calls the matchmaker, coordinator, and result
// reconciler, and answers with the protocol's reply events.
package gateway

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/park285/quizduel-backend/internal/history"
	"github.com/park285/quizduel-backend/internal/match"
	"github.com/park285/quizduel-backend/internal/msgcat"
	"github.com/park285/quizduel-backend/internal/obslog"
	"github.com/park285/quizduel-backend/internal/quiz"
	"github.com/park285/quizduel-backend/internal/transport"
)

// Client→server event names.
const (
	eventCreateRoom    = "create-online-room"
	eventJoinRoom      = "join-online-room"
	eventSubmit        = "online-submit"
	eventResign        = "online-resign"
	eventRemainingTime = "update-remaining-time"
	eventGetHistory    = "get-online-history"
)

type Gateway struct {
	matchmaker *match.Matchmaker
	coord      *match.Coordinator
	results    *history.Reconciler
	messages   *msgcat.Catalog
}

func New(m *match.Matchmaker, c *match.Coordinator, r *history.Reconciler, cat *msgcat.Catalog) *Gateway {
	return &Gateway{matchmaker: m, coord: c, results: r, messages: cat}
}

// Install wires the gateway onto a hub: protocol handlers on every new
// session and forfeit resolution on every drop.
func (g *Gateway) Install(hub *transport.Hub) {
	hub.OnConnect(g.bindSession)
	hub.OnDisconnect(g.coord.HandleDisconnect)
}

func (g *Gateway) bindSession(s *transport.Session) {
	s.Handle(eventCreateRoom, g.createRoom)
	s.Handle(eventJoinRoom, g.joinRoom)
	s.Handle(eventSubmit, g.submit)
	s.Handle(eventResign, g.resign)
	s.Handle(eventRemainingTime, g.saveRemainingTime)
	s.Handle(eventGetHistory, g.getHistory)
}

func (g *Gateway) createRoom(ctx context.Context, s *transport.Session, data map[string]any) {
	quizType, ok := quiz.ParseType(str(data, "quizType"))
	if !ok {
		g.payloadError(ctx, s)
		return
	}
	bucket := quiz.BucketRef{
		SubjectID: str(data, "subjectId"),
		Type:      quizType,
		RefID:     str(data, "yearIdOrTopicId"),
	}
	count := intval(data, "quizLimit")
	if count <= 0 {
		count = 10
	}
	req := match.Request{
		Bucket:    bucket,
		Count:     count,
		Seconds:   intval(data, "seconds"),
		UserID:    str(data, "userId"),
		SessionID: s.ID(),
	}

	res, err := g.matchmaker.Match(ctx, req)
	switch {
	case err == nil:
		g.emit(ctx, s, match.EventStudentFind, map[string]any{
			"roomId":   res.Room.ID,
			"opponent": profilePayload(res),
		})
	case errors.Is(err, match.ErrValidation):
		g.payloadError(ctx, s)
	default:
		obslog.L().Info("matchmaking ended without a pairing",
			zap.String("session", s.ID()), zap.Error(err))
		g.emit(ctx, s, match.EventNoStudentFound, map[string]any{
			"error":   "failed-to-find-student",
			"message": g.messages.Text("match.none", nil),
		})
	}
}

func (g *Gateway) joinRoom(ctx context.Context, s *transport.Session, data map[string]any) {
	res, err := g.coord.Bind(ctx, str(data, "roomId"), str(data, "userId"), s.ID())
	switch {
	case err == nil:
		g.emit(ctx, s, match.EventJoinRoomData, map[string]any{
			"room":             roomPayload(res.Room),
			"opponent":         opponentPayload(res),
			"remainingSeconds": res.RemainingSec,
		})
	case errors.Is(err, match.ErrValidation):
		g.payloadError(ctx, s)
	case errors.Is(err, match.ErrOpponentLeft):
		g.emit(ctx, s, match.EventOpponentLeft, map[string]any{
			"message": g.messages.Text("room.opponent_left", nil),
		})
	default:
		g.emit(ctx, s, match.EventRoomExpired, map[string]any{
			"message": g.messages.Text("room.expired", nil),
		})
	}
}

func (g *Gateway) submit(ctx context.Context, s *transport.Session, data map[string]any) {
	sub := history.Submission{
		RoomID:     str(data, "roomId"),
		UserID:     str(data, "userId"),
		Answers:    answers(data, "selectedStates"),
		ElapsedSec: num(data, "completeTime"),
	}
	res, err := g.results.Submit(ctx, sub)
	if err != nil {
		obslog.L().Info("submit rejected", zap.String("session", s.ID()), zap.Error(err))
		g.emit(ctx, s, match.EventSubmitError, map[string]any{
			"error":   "payload-not-correct",
			"message": g.messages.Text("submit.failed", nil),
		})
		return
	}
	g.emit(ctx, s, match.EventCompleteResponse, map[string]any{
		"_id":              res.EntryID,
		"roomEnded":        res.RoomEnded,
		"opponentResigned": res.OpponentResigned,
	})
}

func (g *Gateway) resign(ctx context.Context, s *transport.Session, data map[string]any) {
	roomID, userID := str(data, "roomId"), str(data, "userId")
	if roomID == "" || userID == "" {
		g.payloadError(ctx, s)
		return
	}
	if err := g.coord.Resign(ctx, roomID, userID); err != nil {
		obslog.L().Warn("resign failed", zap.String("room", roomID), zap.Error(err))
	}
}

func (g *Gateway) saveRemainingTime(ctx context.Context, s *transport.Session, data map[string]any) {
	roomID, userID := str(data, "roomId"), str(data, "userId")
	if roomID == "" || userID == "" {
		g.payloadError(ctx, s)
		return
	}
	if err := g.coord.SaveRemainingTime(ctx, roomID, userID, num(data, "remainingSeconds")); err != nil {
		obslog.L().Warn("remaining time checkpoint failed", zap.String("room", roomID), zap.Error(err))
	}
}

func (g *Gateway) getHistory(ctx context.Context, s *transport.Session, data map[string]any) {
	resultID, roomID := str(data, "resultId"), str(data, "roomId")
	if resultID == "" || roomID == "" {
		g.emit(ctx, s, match.EventHistoryError, map[string]any{"error": "payload-error"})
		return
	}

	view, err := g.results.AwaitResults(ctx, resultID, roomID, func(v *history.LookupResult) {
		pending := map[string]any{
			"pending":      true,
			"message":      g.messages.Text("history.pending", nil),
			"totalSeconds": v.TotalSeconds,
		}
		if p := g.results.OpponentProfile(ctx, v); p != nil {
			pending["opponentUser"] = map[string]any{
				"fullName": p.FullName,
				"imageUrl": p.ImageURL,
			}
		}
		g.emit(ctx, s, match.EventHistoryData, pending)
	})
	if err != nil {
		g.emit(ctx, s, match.EventHistoryError, map[string]any{
			"error":   "not-found",
			"message": g.messages.Text("history.failed", nil),
		})
		return
	}

	payload := map[string]any{
		"pending":      false,
		"mine":         entryPayload(view.Mine),
		"opponent":     entryPayload(view.Opponent),
		"totalSeconds": view.TotalSeconds,
	}
	if p := g.results.OpponentProfile(ctx, view); p != nil {
		payload["opponentProfile"] = map[string]any{
			"fullName": p.FullName,
			"imageUrl": p.ImageURL,
		}
	}
	g.emit(ctx, s, match.EventHistoryData, payload)
}

func (g *Gateway) payloadError(ctx context.Context, s *transport.Session) {
	g.emit(ctx, s, match.EventPayloadError, map[string]any{
		"error":   "payload is not correct",
		"message": g.messages.Text("payload.invalid", nil),
	})
}

func (g *Gateway) emit(ctx context.Context, s *transport.Session, event string, data map[string]any) {
	if err := s.Emit(ctx, event, data); err != nil {
		obslog.L().Debug("emit failed",
			zap.String("session", s.ID()), zap.String("event", event), zap.Error(err))
	}
}

// --- payload helpers ---

func str(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}

func num(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func intval(data map[string]any, key string) int {
	return int(num(data, key))
}

func answers(data map[string]any, key string) map[string]string {
	raw, _ := data[key].(map[string]any)
	if raw == nil {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func profilePayload(res *match.Result) map[string]any {
	if res.Opponent == nil {
		return nil
	}
	return map[string]any{
		"fullName": res.Opponent.FullName,
		"imageUrl": res.Opponent.ImageURL,
	}
}

func opponentPayload(res *match.BindResult) map[string]any {
	if res.Opponent == nil {
		return nil
	}
	return map[string]any{
		"fullName": res.Opponent.FullName,
		"imageUrl": res.Opponent.ImageURL,
	}
}

func roomPayload(r *match.Room) map[string]any {
	return map[string]any{
		"id":         r.ID,
		"subjectId":  r.Bucket.SubjectID,
		"quizType":   string(r.Bucket.Type),
		"refId":      r.Bucket.RefID,
		"quizes":     r.QuestionIDs,
		"seconds":    r.DurationSec,
		"user1":      r.Player1ID,
		"user2":      r.Player2ID,
		"resignedBy": r.ResignedBy,
		"isEnded":    r.Ended,
	}
}

func entryPayload(e *history.Entry) map[string]any {
	if e == nil {
		return nil
	}
	return map[string]any{
		"_id":      e.ID,
		"roomId":   e.RoomID,
		"user":     e.UserID,
		"roomType": e.RoomType,
		"mcqs":     e.QuestionIDs,
		"answers":  e.Answers,
		"time":     e.ElapsedSec,
	}
}
