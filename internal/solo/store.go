package solo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const ttlDoc = 24 * time.Hour

// Store keeps solo rooms and results as JSON documents in Redis.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func keyRoom(id string) string   { return "solo:room:" + id }
func keyResult(id string) string { return "solo:result:" + id }

func (s *Store) SaveRoom(ctx context.Context, r *Room) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode solo room: %w", err)
	}
	if err := s.rdb.Set(ctx, keyRoom(r.ID), raw, ttlDoc).Err(); err != nil {
		return fmt.Errorf("save solo room: %w", err)
	}
	return nil
}

func (s *Store) GetRoom(ctx context.Context, id string) (*Room, error) {
	raw, err := s.rdb.Get(ctx, keyRoom(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load solo room: %w", err)
	}
	var r Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode solo room: %w", err)
	}
	return &r, nil
}

// SetAlive flips the room's alive flag, reporting whether the room exists.
func (s *Store) SetAlive(ctx context.Context, id string, alive bool) (bool, error) {
	r, err := s.GetRoom(ctx, id)
	if err != nil {
		return false, err
	}
	if r == nil {
		return false, nil
	}
	r.Alive = alive
	r.UpdatedAt = time.Now()
	return true, s.SaveRoom(ctx, r)
}

func (s *Store) SaveResult(ctx context.Context, res *Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode solo result: %w", err)
	}
	if err := s.rdb.Set(ctx, keyResult(res.ID), raw, ttlDoc).Err(); err != nil {
		return fmt.Errorf("save solo result: %w", err)
	}
	return nil
}

func (s *Store) GetResult(ctx context.Context, id string) (*Result, error) {
	raw, err := s.rdb.Get(ctx, keyResult(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load solo result: %w", err)
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode solo result: %w", err)
	}
	return &r, nil
}
