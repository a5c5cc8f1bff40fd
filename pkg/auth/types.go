package auth

import (
	"context"
	"time"

	"github.com/platinummonkey/stockroom/pkg/contextkeys"
)

// User is a directory record keyed by the identity provider's subject
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email,omitempty"`
	FirstName       string    `json:"firstName,omitempty"`
	LastName        string    `json:"lastName,omitempty"`
	ProfileImageURL string    `json:"profileImageUrl,omitempty"`
	Role            Role      `json:"role"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Profile holds the identity claims refreshed on every login.
// It deliberately has no role field.
type Profile struct {
	Subject         string
	Email           string
	FirstName       string
	LastName        string
	ProfileImageURL string
}

// Identity is the authenticated caller attached to a request
type Identity struct {
	User User
}

// UserID returns the caller's subject
func (i *Identity) UserID() string {
	return i.User.ID
}

// Role returns the caller's role at the time the request was resolved
func (i *Identity) Role() Role {
	return i.User.Role
}

// WithIdentity attaches a copy of the resolved user to ctx
func WithIdentity(ctx context.Context, user *User) context.Context {
	ctx = contextkeys.WithUserID(ctx, user.ID)
	return context.WithValue(ctx, contextkeys.IdentityKey, &Identity{User: *user})
}

// IdentityFromContext returns the resolved caller, or nil for anonymous requests
func IdentityFromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(contextkeys.IdentityKey).(*Identity); ok {
		return id
	}
	return nil
}
