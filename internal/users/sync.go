package users

import (
	"context"
	"fmt"
	"strings"
)

// Identity event types delivered by the provider webhook.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// IdentityEvent mirrors the provider's webhook payload shape.
type IdentityEvent struct {
	Type string        `json:"type"`
	Data IdentityPatch `json:"data"`
}

type IdentityPatch struct {
	ID             string          `json:"id"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	ImageURL       string          `json:"image_url"`
	EmailAddresses []IdentityEmail `json:"email_addresses"`
}

type IdentityEmail struct {
	EmailAddress string `json:"email_address"`
}

// ApplyIdentityEvent folds one webhook event into the cache. Unknown event
// types are ignored so the provider can add kinds without breaking us.
func (d *Directory) ApplyIdentityEvent(ctx context.Context, ev *IdentityEvent) error {
	if ev == nil {
		return fmt.Errorf("nil identity event")
	}
	switch ev.Type {
	case EventUserCreated, EventUserUpdated:
		return d.Upsert(ctx, ev.Data.toProfile())
	case EventUserDeleted:
		return d.Delete(ctx, ev.Data.ID)
	default:
		return nil
	}
}

func (p IdentityPatch) toProfile() *Profile {
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	email := ""
	if len(p.EmailAddresses) > 0 {
		email = p.EmailAddresses[0].EmailAddress
	}
	return &Profile{
		ID:       strings.TrimSpace(p.ID),
		FullName: name,
		ImageURL: strings.TrimSpace(p.ImageURL),
		Email:    email,
	}
}
