// Package users is the user directory: profile claims refreshed from the
// identity provider, and an authorization role that only an explicit role
// update can change.
package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/platinummonkey/stockroom/pkg/auth"
)

// Directory stores users keyed by identity-provider subject
type Directory interface {
	// Get fails with auth.ErrNotFound for unknown ids
	Get(ctx context.Context, id string) (*auth.User, error)
	// Upsert creates the user as a viewer, or refreshes profile fields only
	Upsert(ctx context.Context, profile auth.Profile) (*auth.User, error)
	// UpdateRole returns the updated user and the role it replaced
	UpdateRole(ctx context.Context, id string, role auth.Role) (*auth.User, auth.Role, error)
	// List returns all users ordered by creation time
	List(ctx context.Context) ([]*auth.User, error)
}

func validateProfile(p auth.Profile) error {
	if strings.TrimSpace(p.Subject) == "" {
		return fmt.Errorf("profile subject is required")
	}
	return nil
}

func validateRole(role auth.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %d", auth.ErrInvalidRole, uint8(role))
	}
	return nil
}
