package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/quizduel-backend/internal/obslog"
	"github.com/park285/quizduel-backend/internal/users"
)

// Coordinator handles the life of a room after pairing: session rebinding on
// join, remaining-time checkpoints, resignations, and disconnects.
type Coordinator struct {
	store    *Store
	users    *users.Directory
	notifier Notifier
	grace    time.Duration
}

// NewCoordinator wires the coordinator. grace is how long a dropped session
// may stay silent before it is treated as abandonment; zero uses 30s.
func NewCoordinator(store *Store, dir *users.Directory, n Notifier, grace time.Duration) *Coordinator {
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return &Coordinator{store: store, users: dir, notifier: n, grace: grace}
}

// BindResult is what a player needs to (re)enter a room: the room document,
// the opponent's profile, and the clock to resume from.
type BindResult struct {
	Room         *Room
	Opponent     *users.Profile
	RemainingSec float64
}

// Bind attaches a (possibly fresh) transport session to the player's slot in
// the room. A missing, finished, or already-forfeited room is ErrRoomExpired;
// a room whose other slot cannot be resolved is ErrOpponentLeft.
func (c *Coordinator) Bind(ctx context.Context, roomID, userID, sessionID string) (*BindResult, error) {
	if roomID == "" || userID == "" || sessionID == "" {
		return nil, fmt.Errorf("%w: room id, user id and session id are required", ErrValidation)
	}

	room, err := c.store.UpdateRoom(ctx, roomID, func(r *Room) error {
		if r.Ended {
			return ErrRoomExpired
		}
		if !r.Player1Alive && !r.Player2Alive {
			return ErrRoomExpired
		}
		if r.SlotOf(userID) == 0 {
			return ErrRoomExpired
		}
		if !r.AliveFor(userID) {
			return ErrRoomExpired
		}
		r.setSession(userID, sessionID)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: room %s", ErrRoomExpired, roomID)
		}
		return nil, err
	}
	if err := c.store.BindSession(ctx, sessionID, roomID); err != nil {
		return nil, err
	}

	opponentID, _ := room.Opponent(userID)
	if opponentID == "" {
		return nil, fmt.Errorf("%w: room %s has no opponent slot for %s", ErrOpponentLeft, roomID, userID)
	}
	var profile *users.Profile
	if c.users != nil {
		profile, err = c.users.Get(ctx, opponentID)
		if err != nil {
			obslog.L().Warn("opponent profile lookup failed", zap.String("user", opponentID), zap.Error(err))
			profile = nil
		}
	}

	return &BindResult{
		Room:         room,
		Opponent:     profile,
		RemainingSec: room.RemainingFor(userID),
	}, nil
}

// SaveRemainingTime checkpoints a player's clock so a reconnect resumes where
// the player left off rather than from the full duration.
func (c *Coordinator) SaveRemainingTime(ctx context.Context, roomID, userID string, remaining float64) error {
	if remaining < 0 {
		remaining = 0
	}
	_, err := c.store.UpdateRoom(ctx, roomID, func(r *Room) error {
		if r.Ended {
			return nil
		}
		if r.SlotOf(userID) == 0 {
			return fmt.Errorf("%w: user %s not in room %s", ErrNotFound, userID, roomID)
		}
		r.setRemaining(userID, remaining)
		return nil
	})
	return err
}

// Resign forfeits the match for userID: the room ends for both players and
// the opponent is told, if still connected. Resigning an already-ended room
// is a no-op.
func (c *Coordinator) Resign(ctx context.Context, roomID, userID string) error {
	var alreadyEnded bool
	room, err := c.store.UpdateRoom(ctx, roomID, func(r *Room) error {
		if r.Ended {
			alreadyEnded = true
			return nil
		}
		if r.SlotOf(userID) == 0 {
			return fmt.Errorf("%w: user %s not in room %s", ErrNotFound, userID, roomID)
		}
		r.Player1Alive = false
		r.Player2Alive = false
		r.ResignedBy = userID
		r.Ended = true
		return nil
	})
	if err != nil {
		return err
	}
	if alreadyEnded {
		return nil
	}

	if err := c.store.ReleasePair(ctx, room.UniqueKey); err != nil {
		obslog.L().Warn("release pair failed", zap.String("room", roomID), zap.Error(err))
	}

	_, opponentSession := room.Opponent(userID)
	if c.notifier != nil && opponentSession != "" {
		if err := c.notifier.Emit(ctx, opponentSession, EventOpponentResign, map[string]any{
			"roomId":     roomID,
			"resignedBy": userID,
		}); err != nil {
			obslog.L().Debug("opponent resign notify failed", zap.String("session", opponentSession), zap.Error(err))
		}
	}

	obslog.L().Info("player resigned", zap.String("room", roomID), zap.String("user", userID))
	return nil
}

// HandleDisconnect resolves a dropped transport session. The player gets a
// grace window to reconnect; if after it the room still carries the stale
// session id, the player is treated as having abandoned the match.
func (c *Coordinator) HandleDisconnect(ctx context.Context, sessionID string) {
	roomID, err := c.store.RoomIDBySession(ctx, sessionID)
	if err != nil {
		obslog.L().Warn("disconnect lookup failed", zap.String("session", sessionID), zap.Error(err))
		return
	}
	if roomID == "" {
		return
	}

	if err := sleepCtx(ctx, c.grace); err != nil {
		return
	}

	room, err := c.store.GetRoom(ctx, roomID)
	if err != nil {
		obslog.L().Warn("disconnect room load failed", zap.String("room", roomID), zap.Error(err))
		return
	}
	if room == nil || room.Ended {
		return
	}

	var staleUser string
	switch sessionID {
	case room.Player1SessionID:
		staleUser = room.Player1ID
	case room.Player2SessionID:
		staleUser = room.Player2ID
	default:
		// the player came back on a fresh session
		return
	}
	if staleUser == "" || !room.AliveFor(staleUser) {
		return
	}

	obslog.L().Info("session abandoned, forfeiting",
		zap.String("room", roomID),
		zap.String("user", staleUser),
		zap.String("session", sessionID),
	)
	if err := c.Resign(ctx, roomID, staleUser); err != nil {
		obslog.L().Warn("disconnect resign failed", zap.String("room", roomID), zap.Error(err))
	}
}
