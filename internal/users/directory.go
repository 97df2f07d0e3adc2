// Package users caches public player profiles synced from the external
// identity provider. The core never calls the provider; the webhook keeps
// this cache current.
package users

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/quizduel-backend/internal/obslog"
)

// Profile is the public identity shown to an opponent.
type Profile struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	ImageURL string `json:"image_url"`
	Email    string `json:"email,omitempty"`
}

type Directory struct {
	rdb *redis.Client
}

func NewDirectory(rdb *redis.Client) *Directory { return &Directory{rdb: rdb} }

func keyUser(id string) string { return "user:" + strings.TrimSpace(id) }

// Get returns the cached profile, or nil when the user is unknown.
func (d *Directory) Get(ctx context.Context, id string) (*Profile, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	raw, err := d.rdb.Get(ctx, keyUser(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	return &p, nil
}

func (d *Directory) Upsert(ctx context.Context, p *Profile) error {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("nil or unidentified profile")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode user %s: %w", p.ID, err)
	}
	if err := d.rdb.Set(ctx, keyUser(p.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("save user %s: %w", p.ID, err)
	}
	obslog.L().Info("user_upsert", zap.String("user_id", p.ID))
	return nil
}

func (d *Directory) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	if err := d.rdb.Del(ctx, keyUser(id)).Err(); err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	obslog.L().Info("user_delete", zap.String("user_id", id))
	return nil
}
