package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const ttlEntry = 24 * time.Hour

// Store keeps result entries in Redis: one JSON document per entry plus a
// per-room set of entry ids and a per-(room,user) claim key that makes
// submission exactly-once.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func keyEntry(id string) string       { return "history:" + id }
func keyRoomIndex(roomID string) string { return "history:index:room:" + roomID }
func keyClaim(roomID, userID string) string {
	return "history:claim:" + roomID + ":" + userID
}

// Save writes the entry if this user has not submitted for the room yet.
// A second submission returns ErrDuplicate along with the original entry id.
func (s *Store) Save(ctx context.Context, e *Entry) (string, error) {
	claimed, err := s.rdb.SetNX(ctx, keyClaim(e.RoomID, e.UserID), e.ID, ttlEntry).Result()
	if err != nil {
		return "", fmt.Errorf("claim result slot: %w", err)
	}
	if !claimed {
		existing, err := s.rdb.Get(ctx, keyClaim(e.RoomID, e.UserID)).Result()
		if err != nil && err != redis.Nil {
			return "", fmt.Errorf("read result claim: %w", err)
		}
		return existing, ErrDuplicate
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode entry: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, keyEntry(e.ID), raw, ttlEntry)
	pipe.SAdd(ctx, keyRoomIndex(e.RoomID), e.ID)
	pipe.Expire(ctx, keyRoomIndex(e.RoomID), ttlEntry)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("save entry: %w", err)
	}
	return e.ID, nil
}

// Get loads one entry, nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	raw, err := s.rdb.Get(ctx, keyEntry(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &e, nil
}

// ByRoom returns every entry submitted for a room, at most one per player.
func (s *Store) ByRoom(ctx context.Context, roomID string) ([]*Entry, error) {
	ids, err := s.rdb.SMembers(ctx, keyRoomIndex(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("scan room index: %w", err)
	}
	out := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		e, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}
