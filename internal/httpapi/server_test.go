package httpapi

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"

	"github.com/park285/quizduel-backend/internal/content"
	"github.com/park285/quizduel-backend/internal/history"
	"github.com/park285/quizduel-backend/internal/match"
	"github.com/park285/quizduel-backend/internal/msgcat"
	"github.com/park285/quizduel-backend/internal/quiz"
	"github.com/park285/quizduel-backend/internal/solo"
	"github.com/park285/quizduel-backend/internal/users"
)

type testEnv struct {
	srv     *Server
	handler fasthttp.RequestHandler
	rooms   *match.Store
	results *history.Reconciler
	users   *users.Directory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	cs := content.NewRedisStore(rdb)
	if err := cs.SeedSubject(ctx, "chem", "Chemistry"); err != nil {
		t.Fatalf("seed subject: %v", err)
	}
	bucket := quiz.NewYearlyBucket("chem", "2023")
	if err := cs.SeedBucket(ctx, bucket, "2023", []string{"q1", "q2", "q3", "q4", "q5", "q6"}); err != nil {
		t.Fatalf("seed bucket: %v", err)
	}

	rooms := match.NewStore(rdb)
	dir := users.NewDirectory(rdb)
	rec := history.NewReconciler(rooms, history.NewStore(rdb), dir, nil, history.ReconcilerConfig{
		PollInterval: 5 * time.Millisecond, PollRetryMax: 5,
	})
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	srv := New(solo.NewService(solo.NewStore(rdb), cs), cs, rooms, dir, rec, cat, "hook-secret")
	return &testEnv{srv: srv, handler: srv.Handler(), rooms: rooms, results: rec, users: dir}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		ctx.Request.SetBody(raw)
	}
	for k, v := range headers {
		ctx.Request.Header.Set(k, v)
	}
	e.handler(&ctx)

	var out map[string]any
	if len(ctx.Response.Body()) > 0 {
		if err := json.Unmarshal(ctx.Response.Body(), &out); err != nil {
			t.Fatalf("decode response %q: %v", ctx.Response.Body(), err)
		}
	}
	return ctx.Response.StatusCode(), out
}

func TestSoloLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t)

	status, res := e.do(t, "POST", "/api/quiz/solo-player", map[string]any{
		"subjectId": "chem", "yearIdOrTopicId": "2023",
		"quizLimit": 4, "quizType": "Yearly", "seconds": 240,
	}, nil)
	if status != fasthttp.StatusCreated || res["success"] != true {
		t.Fatalf("create: %d %+v", status, res)
	}
	roomID, _ := res["data"].(string)
	if roomID == "" {
		t.Fatalf("no room id: %+v", res)
	}

	status, res = e.do(t, "GET", "/api/quiz/get-room/"+roomID, nil, nil)
	if status != fasthttp.StatusOK {
		t.Fatalf("get-room: %d %+v", status, res)
	}
	room, _ := res["data"].(map[string]any)
	if qs, _ := room["question_ids"].([]any); len(qs) != 4 {
		t.Fatalf("room questions: %+v", room)
	}

	if status, _ := e.do(t, "PUT", "/api/quiz/leave-solo-room", map[string]any{"roomId": roomID}, nil); status != fasthttp.StatusOK {
		t.Fatalf("leave: %d", status)
	}
	if status, _ := e.do(t, "GET", "/api/quiz/get-room/"+roomID, nil, nil); status != fasthttp.StatusBadRequest {
		t.Fatalf("left room should be 400, got %d", status)
	}
	if status, _ := e.do(t, "PUT", "/api/quiz/reactive-solo-room", map[string]any{"soloRoomId": roomID}, nil); status != fasthttp.StatusOK {
		t.Fatalf("reactivate: %d", status)
	}
	if status, _ := e.do(t, "GET", "/api/quiz/get-room/"+roomID, nil, nil); status != fasthttp.StatusOK {
		t.Fatalf("reactivated room should be 200, got %d", status)
	}

	status, res = e.do(t, "POST", "/api/quiz/submit-solo-quiz", map[string]any{
		"roomId": roomID, "type": "solo-room", "userId": "u1",
		"states": map[string]string{"q1": "A"}, "time": 120.5,
	}, nil)
	if status != fasthttp.StatusCreated {
		t.Fatalf("submit: %d %+v", status, res)
	}
	resultID, _ := res["data"].(string)

	status, res = e.do(t, "GET", "/api/quiz/get-solo-result/"+resultID, nil, nil)
	if status != fasthttp.StatusOK {
		t.Fatalf("get-solo-result: %d %+v", status, res)
	}
	result, _ := res["data"].(map[string]any)
	if result["room_id"] != roomID || result["elapsed_sec"] != 120.5 {
		t.Fatalf("result payload: %+v", result)
	}

	if status, _ := e.do(t, "GET", "/api/quiz/get-solo-result/nope", nil, nil); status != fasthttp.StatusNotFound {
		t.Fatalf("missing result should be 404, got %d", status)
	}
}

func TestGetAllSubjects(t *testing.T) {
	e := newTestEnv(t)

	status, res := e.do(t, "GET", "/api/quiz/get-all/Yearly", nil, nil)
	if status != fasthttp.StatusOK {
		t.Fatalf("get-all: %d %+v", status, res)
	}
	subjects, _ := res["data"].([]any)
	if len(subjects) != 1 {
		t.Fatalf("subjects: %+v", res)
	}
	subj, _ := subjects[0].(map[string]any)
	if subj["name"] != "Chemistry" {
		t.Fatalf("subject payload: %+v", subj)
	}
	buckets, _ := subj["buckets"].([]any)
	if len(buckets) != 1 {
		t.Fatalf("buckets: %+v", subj)
	}

	if status, _ := e.do(t, "GET", "/api/quiz/get-all/Bogus", nil, nil); status != fasthttp.StatusNotFound {
		t.Fatalf("bad quiz type should be 404, got %d", status)
	}
}

func seedOnlineRoom(t *testing.T, e *testEnv) *match.Room {
	t.Helper()
	ctx := context.Background()
	r := &match.Room{
		ID: "or1", UniqueKey: match.PairKey("u1", "u2"),
		Bucket:      quiz.NewYearlyBucket("chem", "2023"),
		QuestionIDs: []string{"q1", "q2"}, DurationSec: 300,
		Player1ID: "u1", Player2ID: "u2",
		Player1Alive: true, Player2Alive: true,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := e.rooms.SaveRoom(ctx, r); err != nil {
		t.Fatalf("SaveRoom: %v", err)
	}
	for _, p := range []*users.Profile{
		{ID: "u1", FullName: "Player One"},
		{ID: "u2", FullName: "Player Two"},
	} {
		if err := e.users.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	return r
}

func TestGetOnlineRoom(t *testing.T) {
	e := newTestEnv(t)
	seedOnlineRoom(t, e)

	status, res := e.do(t, "GET", "/api/quiz/get-online-room/or1/u1", nil, nil)
	if status != fasthttp.StatusOK {
		t.Fatalf("get-online-room: %d %+v", status, res)
	}
	data, _ := res["data"].(map[string]any)
	opp, _ := data["opponent"].(map[string]any)
	if opp["full_name"] != "Player Two" {
		t.Fatalf("opponent: %+v", data)
	}

	if status, _ := e.do(t, "GET", "/api/quiz/get-online-room/or1/stranger", nil, nil); status != fasthttp.StatusBadRequest {
		t.Fatalf("stranger should get 400, got %d", status)
	}

	if status, _ := e.do(t, "PUT", "/api/quiz/leave-online-room", map[string]any{"roomId": "or1"}, nil); status != fasthttp.StatusOK {
		t.Fatalf("leave-online-room failed")
	}
	if status, _ := e.do(t, "GET", "/api/quiz/get-online-room/or1/u1", nil, nil); status != fasthttp.StatusBadRequest {
		t.Fatalf("ended room should be 400, got %d", status)
	}
}

func TestLeaveOnlineRoomTwiceKeepsRematchPair(t *testing.T) {
	e := newTestEnv(t)
	r := seedOnlineRoom(t, e)
	ctx := context.Background()

	if _, _, err := e.rooms.ReservePair(ctx, r.UniqueKey, r.ID); err != nil {
		t.Fatalf("ReservePair: %v", err)
	}
	if status, _ := e.do(t, "PUT", "/api/quiz/leave-online-room", map[string]any{"roomId": "or1"}, nil); status != fasthttp.StatusOK {
		t.Fatalf("first leave failed")
	}

	// the pair slot is free again and a rematch claims it
	won, _, err := e.rooms.ReservePair(ctx, r.UniqueKey, "or2")
	if err != nil || !won {
		t.Fatalf("rematch reservation: %v %v", won, err)
	}

	// leaving the old room again must not steal the rematch's reservation
	if status, _ := e.do(t, "PUT", "/api/quiz/leave-online-room", map[string]any{"roomId": "or1"}, nil); status != fasthttp.StatusOK {
		t.Fatalf("second leave failed")
	}
	won, existing, err := e.rooms.ReservePair(ctx, r.UniqueKey, "or3")
	if err != nil || won || existing != "or2" {
		t.Fatalf("rematch reservation lost: won=%v existing=%q err=%v", won, existing, err)
	}
}

func TestGetOnlineHistoryPendingThenFinal(t *testing.T) {
	e := newTestEnv(t)
	seedOnlineRoom(t, e)
	ctx := context.Background()

	first, err := e.results.Submit(ctx, history.Submission{RoomID: "or1", UserID: "u1", ElapsedSec: 90})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	status, res := e.do(t, "GET", "/api/quiz/get-online-history/"+first.EntryID+"/or1", nil, nil)
	if status != fasthttp.StatusOK || res["isPending"] != true {
		t.Fatalf("expected pending view: %d %+v", status, res)
	}
	if res["totalSeconds"] != float64(300) {
		t.Fatalf("pending view missing allotted time: %+v", res)
	}
	pendingOpp, _ := res["opponentUser"].(map[string]any)
	if pendingOpp["full_name"] != "Player Two" {
		t.Fatalf("pending view missing opponent profile: %+v", res)
	}

	if _, err := e.results.Submit(ctx, history.Submission{RoomID: "or1", UserID: "u2", ElapsedSec: 110}); err != nil {
		t.Fatalf("second submit: %v", err)
	}

	status, res = e.do(t, "GET", "/api/quiz/get-online-history/"+first.EntryID+"/or1", nil, nil)
	if status != fasthttp.StatusOK || res["isPending"] != false {
		t.Fatalf("expected final view: %d %+v", status, res)
	}
	data, _ := res["data"].(map[string]any)
	oppHist, _ := data["opponentHistory"].(map[string]any)
	if oppHist["user_id"] != "u2" {
		t.Fatalf("opponent history: %+v", data)
	}
	oppUser, _ := data["opponentUser"].(map[string]any)
	if oppUser["full_name"] != "Player Two" {
		t.Fatalf("opponent user: %+v", data)
	}
}

func TestWebhook(t *testing.T) {
	e := newTestEnv(t)

	event := map[string]any{
		"type": "user.created",
		"data": map[string]any{
			"id": "u9", "first_name": "New", "last_name": "User",
			"image_url":       "http://img/u9",
			"email_addresses": []map[string]string{{"email_address": "new@user.io"}},
		},
	}

	if status, _ := e.do(t, "POST", "/api/clerk/webhook", event, nil); status != fasthttp.StatusUnauthorized {
		t.Fatalf("missing secret should be 401")
	}
	status, _ := e.do(t, "POST", "/api/clerk/webhook", event, map[string]string{"X-Signing-Secret": "hook-secret"})
	if status != fasthttp.StatusOK {
		t.Fatalf("webhook: %d", status)
	}

	p, err := e.users.Get(context.Background(), "u9")
	if err != nil || p == nil || p.FullName != "New User" {
		t.Fatalf("profile after webhook: %+v %v", p, err)
	}
}

func TestUnknownRoute(t *testing.T) {
	e := newTestEnv(t)
	if status, _ := e.do(t, "GET", "/api/quiz/nope", nil, nil); status != fasthttp.StatusNotFound {
		t.Fatalf("unknown route should be 404")
	}
}
