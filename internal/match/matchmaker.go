package match

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/quizduel-backend/internal/content"
	"github.com/park285/quizduel-backend/internal/obslog"
	"github.com/park285/quizduel-backend/internal/quiz"
	"github.com/park285/quizduel-backend/internal/users"
)

// MatchmakerConfig bounds the polling loops. Zero values fall back to the
// production defaults; tests inject millisecond intervals.
type MatchmakerConfig struct {
	SearchRetryMax int
	SearchInterval time.Duration
	VerifyRetryMax int
	VerifyDelay    time.Duration
}

func (c MatchmakerConfig) withDefaults() MatchmakerConfig {
	if c.SearchRetryMax <= 0 {
		c.SearchRetryMax = 10
	}
	if c.SearchInterval <= 0 {
		c.SearchInterval = time.Second
	}
	if c.VerifyRetryMax <= 0 {
		c.VerifyRetryMax = 10
	}
	if c.VerifyDelay <= 0 {
		c.VerifyDelay = 500 * time.Millisecond
	}
	return c
}

// Request is one player's attempt to find an opponent on a question bucket.
type Request struct {
	Bucket    quiz.BucketRef
	Count     int
	Seconds   int
	UserID    string
	SessionID string
}

// Result is a fully formed pairing: the room both players share and the
// opponent's cached profile (nil when the directory has no entry).
type Result struct {
	Room     *Room
	Opponent *users.Profile
}

// Matchmaker runs the search-and-pair protocol. Each connected player runs
// its own Match call; the two calls converge on one room through the store's
// pair reservation.
type Matchmaker struct {
	store   *Store
	content content.Store
	users   *users.Directory
	cfg     MatchmakerConfig
}

func NewMatchmaker(store *Store, cs content.Store, dir *users.Directory, cfg MatchmakerConfig) *Matchmaker {
	return &Matchmaker{store: store, content: cs, users: dir, cfg: cfg.withDefaults()}
}

// Match searches for a waiting counterpart, pairs with it, and returns the
// shared room once both players are bound. No counterpart within the retry
// budget, or a pairing that never completes, returns ErrTimeout.
func (m *Matchmaker) Match(ctx context.Context, req Request) (*Result, error) {
	if err := m.validate(ctx, &req); err != nil {
		return nil, err
	}

	h := &Handshake{
		ID:        uuid.NewString(),
		Bucket:    req.Bucket,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Count:     req.Count,
		Seconds:   req.Seconds,
		Alive:     true,
		CreatedAt: time.Now(),
	}
	if err := m.store.SaveHandshake(ctx, h); err != nil {
		return nil, err
	}
	defer func() {
		// retire with a fresh context so cleanup survives caller cancellation
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.store.RetireHandshake(cctx, h.ID); err != nil {
			obslog.L().Warn("retire handshake failed", zap.String("handshake", h.ID), zap.Error(err))
		}
	}()

	other, err := m.search(ctx, h)
	if err != nil {
		return nil, err
	}
	if other == nil {
		return nil, fmt.Errorf("%w: no opponent found", ErrTimeout)
	}

	room, err := m.pair(ctx, h, other)
	if err != nil {
		return nil, err
	}

	room, err = m.verify(ctx, room.ID)
	if err != nil {
		return nil, err
	}

	if err := m.store.RetireHandshake(ctx, other.ID); err != nil {
		obslog.L().Warn("retire counterpart handshake failed", zap.String("handshake", other.ID), zap.Error(err))
	}

	opponentID, _ := room.Opponent(req.UserID)
	var profile *users.Profile
	if m.users != nil && opponentID != "" {
		profile, err = m.users.Get(ctx, opponentID)
		if err != nil {
			obslog.L().Warn("opponent profile lookup failed", zap.String("user", opponentID), zap.Error(err))
			profile = nil
		}
	}

	obslog.L().Info("matched",
		zap.String("room", room.ID),
		zap.String("user", req.UserID),
		zap.String("opponent", opponentID),
	)
	return &Result{Room: room, Opponent: profile}, nil
}

func (m *Matchmaker) validate(ctx context.Context, req *Request) error {
	if err := req.Bucket.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.Count <= 0 {
		return fmt.Errorf("%w: question count must be positive", ErrValidation)
	}
	if req.Seconds <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	if req.UserID == "" || req.SessionID == "" {
		return fmt.Errorf("%w: user id and session id are required", ErrValidation)
	}
	pool, err := m.content.QuestionIDs(ctx, req.Bucket)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(pool) < req.Count {
		return fmt.Errorf("%w: bucket %s holds %d questions, %d requested",
			ErrValidation, req.Bucket.Key(), len(pool), req.Count)
	}
	return nil
}

// search polls the bucket index until a counterpart shows up or the retry
// budget runs out.
func (m *Matchmaker) search(ctx context.Context, h *Handshake) (*Handshake, error) {
	for attempt := 0; attempt < m.cfg.SearchRetryMax; attempt++ {
		other, err := m.store.FindCounterpart(ctx, h.Bucket, h.SessionID)
		if err != nil {
			return nil, err
		}
		if other != nil {
			return other, nil
		}
		if err := sleepCtx(ctx, m.cfg.SearchInterval); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// pair converges both players on one room. The reservation winner creates
// the room document as player1; the loser binds into the winner's room.
func (m *Matchmaker) pair(ctx context.Context, mine, other *Handshake) (*Room, error) {
	uniqueKey := PairKey(mine.UserID, other.UserID)

	for attempt := 0; attempt < 2; attempt++ {
		roomID := uuid.NewString()
		won, existingID, err := m.store.ReservePair(ctx, uniqueKey, roomID)
		if err != nil {
			return nil, err
		}
		if won {
			return m.createRoom(ctx, roomID, uniqueKey, mine, other)
		}
		if existingID == "" {
			continue
		}
		room, err := m.joinRoom(ctx, existingID, mine)
		if err == nil {
			return room, nil
		}
		// a leftover reservation from a finished rematch: clear it and retry
		if room == nil && attempt == 0 {
			existing, gerr := m.store.GetRoom(ctx, existingID)
			if gerr == nil && (existing == nil || existing.Ended) {
				_ = m.store.ReleasePair(ctx, uniqueKey)
				continue
			}
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: pairing never settled", ErrTimeout)
}

func (m *Matchmaker) createRoom(ctx context.Context, roomID, uniqueKey string, mine, other *Handshake) (*Room, error) {
	pool, err := m.content.QuestionIDs(ctx, mine.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	questions, err := quiz.Draw(pool, mine.Count)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	now := time.Now()
	room := &Room{
		ID:               roomID,
		UniqueKey:        uniqueKey,
		Bucket:           mine.Bucket,
		QuestionIDs:      questions,
		DurationSec:      mine.Seconds,
		Player1ID:        mine.UserID,
		Player1SessionID: mine.SessionID,
		Player1Alive:     true,
		Player2Alive:     true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.store.SaveRoom(ctx, room); err != nil {
		return nil, err
	}
	if err := m.store.BindSession(ctx, mine.SessionID, roomID); err != nil {
		return nil, err
	}
	return room, nil
}

// joinRoom binds the reservation loser as player2, waiting briefly for the
// winner's room document to appear first.
func (m *Matchmaker) joinRoom(ctx context.Context, roomID string, mine *Handshake) (*Room, error) {
	var room *Room
	for attempt := 0; attempt < m.cfg.VerifyRetryMax; attempt++ {
		r, err := m.store.GetRoom(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if r != nil {
			room = r
			break
		}
		if err := sleepCtx(ctx, m.cfg.VerifyDelay); err != nil {
			return nil, err
		}
	}
	if room == nil {
		return nil, fmt.Errorf("%w: reserved room %s never appeared", ErrTimeout, roomID)
	}

	bound, err := m.store.BindPlayer2(ctx, roomID, mine.UserID, mine.SessionID)
	if err != nil {
		return nil, err
	}
	if err := m.store.BindSession(ctx, mine.SessionID, roomID); err != nil {
		return nil, err
	}
	return bound, nil
}

// verify waits until both slots of the room are filled, so neither player
// reports a match the other side never completed.
func (m *Matchmaker) verify(ctx context.Context, roomID string) (*Room, error) {
	for attempt := 0; attempt < m.cfg.VerifyRetryMax; attempt++ {
		room, err := m.store.GetRoom(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if room != nil && room.Player1ID != "" && room.Player2ID != "" {
			return room, nil
		}
		if err := sleepCtx(ctx, m.cfg.VerifyDelay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: room %s never fully formed", ErrTimeout, roomID)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
