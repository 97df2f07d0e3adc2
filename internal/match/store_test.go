package match

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/quizduel-backend/internal/quiz"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	return NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func testBucket() quiz.BucketRef {
	return quiz.BucketRef{SubjectID: "math", Type: quiz.TypeYearly, RefID: "2024"}
}

func TestHandshakeLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	h := &Handshake{
		ID: "hs1", Bucket: testBucket(),
		UserID: "u1", SessionID: "sess1",
		Count: 10, Seconds: 600, Alive: true, CreatedAt: time.Now(),
	}
	if err := s.SaveHandshake(ctx, h); err != nil {
		t.Fatalf("SaveHandshake: %v", err)
	}

	got, err := s.GetHandshake(ctx, "hs1")
	if err != nil || got == nil {
		t.Fatalf("GetHandshake: %v %v", got, err)
	}
	if got.UserID != "u1" || !got.Alive {
		t.Fatalf("unexpected handshake: %+v", got)
	}

	// own session is excluded from the search
	found, err := s.FindCounterpart(ctx, testBucket(), "sess1")
	if err != nil {
		t.Fatalf("FindCounterpart: %v", err)
	}
	if found != nil {
		t.Fatalf("expected no counterpart, got %+v", found)
	}

	// a different session sees it
	found, err = s.FindCounterpart(ctx, testBucket(), "sess2")
	if err != nil || found == nil {
		t.Fatalf("FindCounterpart: %v %v", found, err)
	}
	if found.ID != "hs1" {
		t.Fatalf("unexpected counterpart: %+v", found)
	}

	if err := s.RetireHandshake(ctx, "hs1"); err != nil {
		t.Fatalf("RetireHandshake: %v", err)
	}
	found, err = s.FindCounterpart(ctx, testBucket(), "sess2")
	if err != nil {
		t.Fatalf("FindCounterpart after retire: %v", err)
	}
	if found != nil {
		t.Fatalf("retired handshake still visible: %+v", found)
	}

	// retiring again is a no-op
	if err := s.RetireHandshake(ctx, "hs1"); err != nil {
		t.Fatalf("second RetireHandshake: %v", err)
	}
	if err := s.RetireHandshake(ctx, "missing"); err != nil {
		t.Fatalf("RetireHandshake on missing id: %v", err)
	}
}

func TestReservePairSingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	uk := PairKey("u2", "u1")

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			roomID := "room-" + string(rune('a'+n))
			won, existing, err := s.ReservePair(ctx, uk, roomID)
			if err != nil {
				t.Errorf("ReservePair: %v", err)
				return
			}
			if won {
				wins <- roomID
			} else if existing == "" {
				t.Errorf("loser got empty room id")
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for id := range wins {
		winners = append(winners, id)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one reservation winner, got %d", len(winners))
	}

	// every loser resolves to the winner's room
	_, existing, err := s.ReservePair(ctx, uk, "room-late")
	if err != nil {
		t.Fatalf("ReservePair: %v", err)
	}
	if existing != winners[0] {
		t.Fatalf("loser resolved to %q, winner was %q", existing, winners[0])
	}
}

func TestReleasePairAllowsRematch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	uk := PairKey("u1", "u2")

	won, _, err := s.ReservePair(ctx, uk, "room-1")
	if err != nil || !won {
		t.Fatalf("first reservation should win: %v %v", won, err)
	}
	if err := s.ReleasePair(ctx, uk); err != nil {
		t.Fatalf("ReleasePair: %v", err)
	}
	won, _, err = s.ReservePair(ctx, uk, "room-2")
	if err != nil || !won {
		t.Fatalf("reservation after release should win: %v %v", won, err)
	}
}

func TestRoomUpdateAndBind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &Room{
		ID: "r1", UniqueKey: PairKey("u1", "u2"), Bucket: testBucket(),
		QuestionIDs: []string{"q1", "q2"}, DurationSec: 600,
		Player1ID: "u1", Player1SessionID: "sess1",
		Player1Alive: true, Player2Alive: true,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := s.SaveRoom(ctx, r); err != nil {
		t.Fatalf("SaveRoom: %v", err)
	}

	got, err := s.BindPlayer2(ctx, "r1", "u2", "sess2")
	if err != nil {
		t.Fatalf("BindPlayer2: %v", err)
	}
	if got.Player2ID != "u2" || got.Player2SessionID != "sess2" {
		t.Fatalf("unexpected room after bind: %+v", got)
	}

	// same user rebinding with a new session refreshes it
	got, err = s.BindPlayer2(ctx, "r1", "u2", "sess2b")
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if got.Player2SessionID != "sess2b" {
		t.Fatalf("session not refreshed: %+v", got)
	}

	// a third user cannot steal the slot
	if _, err := s.BindPlayer2(ctx, "r1", "u3", "sess3"); !errors.Is(err, ErrRaceLost) {
		t.Fatalf("expected ErrRaceLost, got %v", err)
	}

	// mutate errors pass through without writing
	wantErr := errors.New("boom")
	if _, err := s.UpdateRoom(ctx, "r1", func(*Room) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("expected mutate error, got %v", err)
	}

	if _, err := s.UpdateRoom(ctx, "nope", func(*Room) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	ended, err := s.UpdateRoom(ctx, "r1", func(r *Room) error {
		r.Ended = true
		return nil
	})
	if err != nil || !ended.Ended {
		t.Fatalf("end room: %+v %v", ended, err)
	}
	if _, err := s.BindPlayer2(ctx, "r1", "u2", "sess2c"); !errors.Is(err, ErrRoomExpired) {
		t.Fatalf("expected ErrRoomExpired on ended room, got %v", err)
	}
}

func TestSessionIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if id, err := s.RoomIDBySession(ctx, "ghost"); err != nil || id != "" {
		t.Fatalf("unbound session: %q %v", id, err)
	}
	if err := s.BindSession(ctx, "sess1", "r1"); err != nil {
		t.Fatalf("BindSession: %v", err)
	}
	id, err := s.RoomIDBySession(ctx, "sess1")
	if err != nil || id != "r1" {
		t.Fatalf("RoomIDBySession: %q %v", id, err)
	}
}
