package httpapi

import (
	"context"

	"github.com/valyala/fasthttp"

	"github.com/park285/quizduel-backend/internal/quiz"
	"github.com/park285/quizduel-backend/internal/solo"
)

func (s *Server) handleGetAll(c context.Context, ctx *fasthttp.RequestCtx, quizType string) {
	qt, ok := quiz.ParseType(quizType)
	if !ok {
		fail(ctx, fasthttp.StatusNotFound, "Quiz Type is not correct!")
		return
	}
	subjects, err := s.content.Subjects(c, qt)
	if err != nil {
		s.failErr(ctx, err)
		return
	}
	okData(ctx, fasthttp.StatusOK, subjects)
}

type createSoloBody struct {
	SubjectID       string `json:"subjectId"`
	YearIDOrTopicID string `json:"yearIdOrTopicId"`
	QuizLimit       int    `json:"quizLimit"`
	QuizType        string `json:"quizType"`
	Seconds         int    `json:"seconds"`
}

func (s *Server) handleCreateSoloRoom(c context.Context, ctx *fasthttp.RequestCtx) {
	var body createSoloBody
	if !parseBody(ctx, &body) {
		return
	}
	qt, okType := quiz.ParseType(body.QuizType)
	if !okType {
		fail(ctx, fasthttp.StatusNotFound, "Quiz Type is not correct!")
		return
	}
	id, err := s.solo.Create(c, solo.CreateRequest{
		Bucket:  quiz.BucketRef{SubjectID: body.SubjectID, Type: qt, RefID: body.YearIDOrTopicID},
		Count:   body.QuizLimit,
		Seconds: body.Seconds,
	})
	if err != nil {
		s.failErr(ctx, err)
		return
	}
	okData(ctx, fasthttp.StatusCreated, id)
}

func (s *Server) handleGetSoloRoom(c context.Context, ctx *fasthttp.RequestCtx, roomID string) {
	room, err := s.solo.Get(c, roomID)
	if err != nil {
		s.failErr(ctx, err)
		return
	}
	okData(ctx, fasthttp.StatusOK, room)
}

type roomIDBody struct {
	RoomID     string `json:"roomId"`
	SoloRoomID string `json:"soloRoomId"`
}

func (b roomIDBody) id() string {
	if b.RoomID != "" {
		return b.RoomID
	}
	return b.SoloRoomID
}

func (s *Server) handleLeaveSoloRoom(c context.Context, ctx *fasthttp.RequestCtx) {
	var body roomIDBody
	if !parseBody(ctx, &body) {
		return
	}
	if err := s.solo.Leave(c, body.id()); err != nil {
		s.failErr(ctx, err)
		return
	}
	okMessage(ctx, s.messages.Text("solo.closed", nil))
}

func (s *Server) handleReactivateSoloRoom(c context.Context, ctx *fasthttp.RequestCtx) {
	var body roomIDBody
	if !parseBody(ctx, &body) {
		return
	}
	if err := s.solo.Reactivate(c, body.id()); err != nil {
		s.failErr(ctx, err)
		return
	}
	okMessage(ctx, s.messages.Text("solo.reactivated", nil))
}

type submitSoloBody struct {
	RoomID string            `json:"roomId"`
	Type   string            `json:"type"`
	States map[string]string `json:"states"`
	UserID string            `json:"userId"`
	Time   float64           `json:"time"`
}

func (s *Server) handleSubmitSoloQuiz(c context.Context, ctx *fasthttp.RequestCtx) {
	var body submitSoloBody
	if !parseBody(ctx, &body) {
		return
	}
	resultID, err := s.solo.Submit(c, solo.SubmitRequest{
		RoomID:     body.RoomID,
		UserID:     body.UserID,
		RoomType:   body.Type,
		Answers:    body.States,
		ElapsedSec: body.Time,
	})
	if err != nil {
		s.failErr(ctx, err)
		return
	}
	okData(ctx, fasthttp.StatusCreated, resultID)
}

func (s *Server) handleGetSoloResult(c context.Context, ctx *fasthttp.RequestCtx, resultID string) {
	res, err := s.solo.Result(c, resultID)
	if err != nil {
		s.failErr(ctx, err)
		return
	}
	okData(ctx, fasthttp.StatusOK, res)
}
