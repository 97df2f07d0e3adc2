package users

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	return NewDirectory(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestUpsertGetDelete(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	if err := d.Upsert(ctx, &Profile{ID: "u1", FullName: "Ada Lovelace", ImageURL: "http://img/u1"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	p, err := d.Get(ctx, "u1")
	if err != nil || p == nil {
		t.Fatalf("Get: %v %v", p, err)
	}
	if p.FullName != "Ada Lovelace" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if err := d.Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if p, _ := d.Get(ctx, "u1"); p != nil {
		t.Fatalf("expected nil after delete, got %+v", p)
	}
}

func TestGetUnknownUser(t *testing.T) {
	d := newTestDirectory(t)
	p, err := d.Get(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil profile, got %+v", p)
	}
}

func TestApplyIdentityEvents(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	created := &IdentityEvent{
		Type: EventUserCreated,
		Data: IdentityPatch{
			ID: "u7", FirstName: "Grace", LastName: "Hopper",
			ImageURL:       "http://img/u7",
			EmailAddresses: []IdentityEmail{{EmailAddress: "grace@navy.mil"}},
		},
	}
	if err := d.ApplyIdentityEvent(ctx, created); err != nil {
		t.Fatalf("apply created: %v", err)
	}
	p, _ := d.Get(ctx, "u7")
	if p == nil || p.FullName != "Grace Hopper" || p.Email != "grace@navy.mil" {
		t.Fatalf("unexpected profile after create: %+v", p)
	}

	updated := &IdentityEvent{Type: EventUserUpdated, Data: IdentityPatch{ID: "u7", FirstName: "Amazing", LastName: "Grace"}}
	if err := d.ApplyIdentityEvent(ctx, updated); err != nil {
		t.Fatalf("apply updated: %v", err)
	}
	p, _ = d.Get(ctx, "u7")
	if p == nil || p.FullName != "Amazing Grace" {
		t.Fatalf("unexpected profile after update: %+v", p)
	}

	if err := d.ApplyIdentityEvent(ctx, &IdentityEvent{Type: EventUserDeleted, Data: IdentityPatch{ID: "u7"}}); err != nil {
		t.Fatalf("apply deleted: %v", err)
	}
	if p, _ := d.Get(ctx, "u7"); p != nil {
		t.Fatalf("expected nil after delete, got %+v", p)
	}

	// unknown kinds are a no-op
	if err := d.ApplyIdentityEvent(ctx, &IdentityEvent{Type: "session.created"}); err != nil {
		t.Fatalf("unknown event kind should be ignored: %v", err)
	}
}
