package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/quizduel-backend/internal/match"
	"github.com/park285/quizduel-backend/internal/obslog"
	"github.com/park285/quizduel-backend/internal/users"
)

// ReconcilerConfig bounds the result polling loop on the lookup side.
type ReconcilerConfig struct {
	PollInterval time.Duration
	PollRetryMax int
}

func (c ReconcilerConfig) withDefaults() ReconcilerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.PollRetryMax <= 0 {
		c.PollRetryMax = 10
	}
	return c
}

// Reconciler accepts each player's submission and folds the two sides of a
// room into one final result. The slower player's submission (or the lookup
// that observes both) ends the room and triggers the archive.
type Reconciler struct {
	rooms    *match.Store
	results  *Store
	users    *users.Directory
	notifier match.Notifier
	archive  *Archive
	cfg      ReconcilerConfig
}

func NewReconciler(rooms *match.Store, results *Store, dir *users.Directory, n match.Notifier, cfg ReconcilerConfig) *Reconciler {
	return &Reconciler{rooms: rooms, results: results, users: dir, notifier: n, cfg: cfg.withDefaults()}
}

// AttachArchive enables durable persistence of finished matches. Without it
// results live only in Redis for their TTL.
func (r *Reconciler) AttachArchive(a *Archive) { r.archive = a }

// Submission is one player's finished run in an online room.
type Submission struct {
	RoomID     string
	UserID     string
	Answers    map[string]string
	ElapsedSec float64
}

// SubmitResult tells the submitting player what to do next: poll for the
// opponent's result, or render a forfeit immediately.
type SubmitResult struct {
	EntryID          string
	RoomEnded        bool
	OpponentResigned bool
}

// Submit records a player's run. The first submission marks the player's slot
// done and pings the opponent; the second one ends the room. Submitting twice
// returns the original entry id without side effects.
func (r *Reconciler) Submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	if sub.RoomID == "" || sub.UserID == "" {
		return nil, fmt.Errorf("%w: room id and user id are required", match.ErrValidation)
	}
	room, err := r.rooms.GetRoom(ctx, sub.RoomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, fmt.Errorf("%w: room %s", match.ErrRoomExpired, sub.RoomID)
	}
	if room.SlotOf(sub.UserID) == 0 {
		return nil, fmt.Errorf("%w: user %s not in room %s", match.ErrValidation, sub.UserID, sub.RoomID)
	}

	entry := &Entry{
		ID:          uuid.NewString(),
		RoomID:      sub.RoomID,
		UserID:      sub.UserID,
		RoomType:    RoomTypeOnline,
		QuestionIDs: room.QuestionIDs,
		Answers:     sub.Answers,
		ElapsedSec:  sub.ElapsedSec,
		CreatedAt:   time.Now(),
	}
	entryID, err := r.results.Save(ctx, entry)
	if errors.Is(err, ErrDuplicate) {
		return &SubmitResult{EntryID: entryID, RoomEnded: room.Ended}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", match.ErrStore, err)
	}

	res := &SubmitResult{EntryID: entryID, RoomEnded: room.Ended}

	if !room.Ended {
		var endedMeanwhile bool
		room, err = r.rooms.UpdateRoom(ctx, sub.RoomID, func(rm *match.Room) error {
			// a resignation may land between the read above and this write
			endedMeanwhile = rm.Ended
			if rm.Ended {
				return nil
			}
			switch rm.SlotOf(sub.UserID) {
			case 1:
				rm.Player1Alive = false
			case 2:
				rm.Player2Alive = false
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if endedMeanwhile {
			res.RoomEnded = true
		} else {
			_, opponentSession := room.Opponent(sub.UserID)
			if r.notifier != nil && opponentSession != "" {
				if err := r.notifier.Emit(ctx, opponentSession, match.EventOpponentCompleted, map[string]any{
					"roomId": sub.RoomID,
					"time":   sub.ElapsedSec,
				}); err != nil {
					obslog.L().Debug("opponent completed notify failed",
						zap.String("session", opponentSession), zap.Error(err))
				}
			}
		}
	}

	res.OpponentResigned = room.Ended && room.ResignedBy != "" && room.ResignedBy != sub.UserID
	if res.OpponentResigned {
		_, opponentSession := room.Opponent(sub.UserID)
		if r.notifier != nil && opponentSession != "" {
			if err := r.notifier.Emit(ctx, opponentSession, match.EventOpponentResign, map[string]any{
				"roomId":     sub.RoomID,
				"resignedBy": room.ResignedBy,
			}); err != nil {
				obslog.L().Debug("resign outcome notify failed",
					zap.String("session", opponentSession), zap.Error(err))
			}
		}
	}

	ended, err := r.finalizeIfComplete(ctx, room)
	if err != nil {
		obslog.L().Warn("finalize after submit failed", zap.String("room", sub.RoomID), zap.Error(err))
	} else if ended {
		res.RoomEnded = true
	}
	return res, nil
}

// Lookup assembles the reconciled view for one player's result id. While the
// opponent is still playing the result is Pending; once the room ended (by
// second submission or forfeit) the view is final.
func (r *Reconciler) Lookup(ctx context.Context, resultID, roomID string) (*LookupResult, error) {
	mine, err := r.results.Get(ctx, resultID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", match.ErrStore, err)
	}
	if mine == nil {
		return nil, fmt.Errorf("%w: result %s", match.ErrNotFound, resultID)
	}
	if roomID == "" {
		roomID = mine.RoomID
	}

	entries, err := r.results.ByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", match.ErrStore, err)
	}
	var opponent *Entry
	for _, e := range entries {
		if e.ID != mine.ID && e.UserID != mine.UserID {
			opponent = e
			break
		}
	}

	room, err := r.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	out := &LookupResult{Mine: mine, Opponent: opponent}
	if room != nil {
		out.TotalSeconds = room.DurationSec
		out.OpponentID, _ = room.Opponent(mine.UserID)
	}
	if out.OpponentID == "" && opponent != nil {
		out.OpponentID = opponent.UserID
	}
	if opponent == nil {
		// a forfeited room never gets a second entry; that view is final
		out.Pending = room != nil && !room.Ended
		return out, nil
	}

	if room != nil && !room.Ended {
		if _, err := r.finalizeIfComplete(ctx, room); err != nil {
			obslog.L().Warn("finalize during lookup failed", zap.String("room", roomID), zap.Error(err))
		}
	}
	return out, nil
}

// AwaitResults polls Lookup until the view is final. onPending fires once,
// on the first pending observation, with that pending snapshot so the caller
// can tell the player who they are waiting on and for how long.
func (r *Reconciler) AwaitResults(ctx context.Context, resultID, roomID string, onPending func(*LookupResult)) (*LookupResult, error) {
	notified := false
	for attempt := 0; attempt < r.cfg.PollRetryMax; attempt++ {
		res, err := r.Lookup(ctx, resultID, roomID)
		if err != nil {
			return nil, err
		}
		if !res.Pending {
			return res, nil
		}
		if !notified && onPending != nil {
			onPending(res)
			notified = true
		}
		if err := sleepCtx(ctx, r.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: opponent result never arrived for room %s", match.ErrTimeout, roomID)
}

// OpponentProfile resolves the cached profile of the view's other player.
func (r *Reconciler) OpponentProfile(ctx context.Context, view *LookupResult) *users.Profile {
	if view == nil || view.OpponentID == "" || r.users == nil {
		return nil
	}
	p, err := r.users.Get(ctx, view.OpponentID)
	if err != nil {
		obslog.L().Warn("opponent profile lookup failed", zap.String("user", view.OpponentID), zap.Error(err))
		return nil
	}
	return p
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

// finalizeIfComplete ends the room once both entries exist, frees the pairing
// key, and hands the match to the archive.
func (r *Reconciler) finalizeIfComplete(ctx context.Context, room *match.Room) (bool, error) {
	entries, err := r.results.ByRoom(ctx, room.ID)
	if err != nil {
		return false, err
	}
	if len(entries) < 2 {
		return false, nil
	}

	if !room.Ended {
		room, err = r.rooms.UpdateRoom(ctx, room.ID, func(rm *match.Room) error {
			rm.Player1Alive = false
			rm.Player2Alive = false
			rm.Ended = true
			return nil
		})
		if err != nil {
			return false, err
		}
		if err := r.rooms.ReleasePair(ctx, room.UniqueKey); err != nil {
			obslog.L().Warn("release pair failed", zap.String("room", room.ID), zap.Error(err))
		}
	}

	if r.archive != nil {
		snapshot := room
		go func() {
			actx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.archive.SaveMatch(actx, snapshot, entries); err != nil {
				obslog.L().Error("archive match failed", zap.String("room", snapshot.ID), zap.Error(err))
			}
		}()
	}
	return true, nil
}
