package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/quizduel-backend/internal/quiz"
)

const (
	ttlHandshake = 5 * time.Minute
	ttlRoom      = 24 * time.Hour

	// casRetryMax bounds optimistic-concurrency retries on one document.
	casRetryMax = 5
)

// Store persists handshakes and rooms as JSON documents in Redis, with
// secondary-index sets for bucket search and session lookup. Every mutation
// that depends on prior state runs as a single WATCH/EXEC conditional write.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func keyHandshake(id string) string { return "hs:" + strings.TrimSpace(id) }
func keyHandshakeIndex(b quiz.BucketRef) string {
	return "hs:index:" + b.Key()
}
func keyRoom(id string) string         { return "room:" + strings.TrimSpace(id) }
func keyPair(uniqueKey string) string  { return "room:pair:" + uniqueKey }
func keySessionRoom(sid string) string { return "room:index:session:" + strings.TrimSpace(sid) }

// --- handshakes ---

func (s *Store) SaveHandshake(ctx context.Context, h *Handshake) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("%w: encode handshake: %v", ErrStore, err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, keyHandshake(h.ID), raw, ttlHandshake)
	pipe.SAdd(ctx, keyHandshakeIndex(h.Bucket), h.ID)
	pipe.Expire(ctx, keyHandshakeIndex(h.Bucket), ttlHandshake)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: save handshake: %v", ErrStore, err)
	}
	return nil
}

func (s *Store) GetHandshake(ctx context.Context, id string) (*Handshake, error) {
	raw, err := s.rdb.Get(ctx, keyHandshake(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load handshake: %v", ErrStore, err)
	}
	var h Handshake
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("%w: decode handshake: %v", ErrStore, err)
	}
	return &h, nil
}

// FindCounterpart returns another alive handshake on the same bucket with a
// different session id, or nil when none is waiting. Stale index entries are
// pruned as they are encountered.
func (s *Store) FindCounterpart(ctx context.Context, bucket quiz.BucketRef, excludeSessionID string) (*Handshake, error) {
	idxKey := keyHandshakeIndex(bucket)
	ids, err := s.rdb.SMembers(ctx, idxKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: scan handshake index: %v", ErrStore, err)
	}
	sort.Strings(ids)
	for _, id := range ids {
		h, err := s.GetHandshake(ctx, id)
		if err != nil {
			return nil, err
		}
		if h == nil || !h.Alive {
			_ = s.rdb.SRem(ctx, idxKey, id).Err()
			continue
		}
		if h.SessionID == excludeSessionID {
			continue
		}
		return h, nil
	}
	return nil, nil
}

// RetireHandshake marks a handshake not-alive and drops it from the bucket
// index. Retiring an already-retired or missing handshake is a no-op.
func (s *Store) RetireHandshake(ctx context.Context, id string) error {
	key := keyHandshake(id)
	var bucket quiz.BucketRef
	err := s.withCAS(ctx, key, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: load handshake: %v", ErrStore, err)
		}
		var h Handshake
		if err := json.Unmarshal(raw, &h); err != nil {
			return fmt.Errorf("%w: decode handshake: %v", ErrStore, err)
		}
		bucket = h.Bucket
		if !h.Alive {
			return nil
		}
		h.Alive = false
		newRaw, err := json.Marshal(&h)
		if err != nil {
			return fmt.Errorf("%w: encode handshake: %v", ErrStore, err)
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, newRaw, ttlHandshake)
		_, err = pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if bucket.SubjectID != "" {
		_ = s.rdb.SRem(ctx, keyHandshakeIndex(bucket), id).Err()
	}
	return nil
}

// --- rooms ---

// ReservePair claims the canonical pairing key with a single SETNX. The
// winner becomes player1 and must create the room document under roomID; the
// loser receives the already-reserved room id instead. This is the only
// mutual-exclusion point preventing duplicate rooms for one pairing.
func (s *Store) ReservePair(ctx context.Context, uniqueKey, roomID string) (won bool, existingRoomID string, err error) {
	ok, err := s.rdb.SetNX(ctx, keyPair(uniqueKey), roomID, ttlRoom).Result()
	if err != nil {
		return false, "", fmt.Errorf("%w: reserve pair: %v", ErrStore, err)
	}
	if ok {
		return true, "", nil
	}
	existing, err := s.rdb.Get(ctx, keyPair(uniqueKey)).Result()
	if err == redis.Nil {
		// reservation vanished between SETNX and GET; caller retries
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("%w: read pair reservation: %v", ErrStore, err)
	}
	return false, existing, nil
}

// ReleasePair frees the pairing key once its room ends, so a rematch between
// the same two players can create a fresh room.
func (s *Store) ReleasePair(ctx context.Context, uniqueKey string) error {
	if strings.TrimSpace(uniqueKey) == "" {
		return nil
	}
	if err := s.rdb.Del(ctx, keyPair(uniqueKey)).Err(); err != nil {
		return fmt.Errorf("%w: release pair: %v", ErrStore, err)
	}
	return nil
}

// SaveRoom writes a freshly created room document. Only the ReservePair
// winner may call this; everyone else goes through conditional updates.
func (s *Store) SaveRoom(ctx context.Context, r *Room) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: encode room: %v", ErrStore, err)
	}
	if err := s.rdb.Set(ctx, keyRoom(r.ID), raw, ttlRoom).Err(); err != nil {
		return fmt.Errorf("%w: save room: %v", ErrStore, err)
	}
	return nil
}

func (s *Store) GetRoom(ctx context.Context, id string) (*Room, error) {
	raw, err := s.rdb.Get(ctx, keyRoom(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load room: %v", ErrStore, err)
	}
	var r Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: decode room: %v", ErrStore, err)
	}
	return &r, nil
}

// UpdateRoom applies mutate to the room under WATCH and writes the result in
// one transaction. An error returned by mutate aborts the write and is
// passed through; losing the watch casRetryMax times yields ErrRaceLost.
func (s *Store) UpdateRoom(ctx context.Context, roomID string, mutate func(*Room) error) (*Room, error) {
	key := keyRoom(roomID)
	var updated *Room
	err := s.withCAS(ctx, key, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: load room: %v", ErrStore, err)
		}
		var r Room
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("%w: decode room: %v", ErrStore, err)
		}
		if err := mutate(&r); err != nil {
			return err
		}
		r.UpdatedAt = time.Now()
		newRaw, err := json.Marshal(&r)
		if err != nil {
			return fmt.Errorf("%w: encode room: %v", ErrStore, err)
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, newRaw, ttlRoom)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		updated = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// BindPlayer2 fills the second slot of a reserved room. Rebinding the same
// user refreshes its session id; a room already claimed by a third user is a
// lost race.
func (s *Store) BindPlayer2(ctx context.Context, roomID, userID, sessionID string) (*Room, error) {
	return s.UpdateRoom(ctx, roomID, func(r *Room) error {
		if r.Ended {
			return ErrRoomExpired
		}
		switch {
		case r.Player2ID == "":
			r.Player2ID = userID
			r.Player2SessionID = sessionID
		case r.Player2ID == userID:
			r.Player2SessionID = sessionID
		default:
			return fmt.Errorf("%w: player2 slot taken by %s", ErrRaceLost, r.Player2ID)
		}
		return nil
	})
}

// --- session index ---

// BindSession records which room a transport session is attached to, for
// disconnect resolution.
func (s *Store) BindSession(ctx context.Context, sessionID, roomID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	if err := s.rdb.Set(ctx, keySessionRoom(sessionID), roomID, ttlRoom).Err(); err != nil {
		return fmt.Errorf("%w: bind session: %v", ErrStore, err)
	}
	return nil
}

// RoomIDBySession resolves the room a session was bound to, or "".
func (s *Store) RoomIDBySession(ctx context.Context, sessionID string) (string, error) {
	id, err := s.rdb.Get(ctx, keySessionRoom(sessionID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: resolve session: %v", ErrStore, err)
	}
	return id, nil
}

// withCAS runs fn under WATCH on key, retrying a bounded number of times
// when a concurrent writer invalidates the transaction.
func (s *Store) withCAS(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for attempt := 0; attempt < casRetryMax; attempt++ {
		err := s.rdb.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrRaceLost
}
