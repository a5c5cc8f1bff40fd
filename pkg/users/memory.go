package users

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/stockroom/pkg/auth"
)

// MemoryDirectory is an in-process Directory
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]*auth.User
	now   func() time.Time
}

// NewMemoryDirectory creates an empty directory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]*auth.User), now: time.Now}
}

func (d *MemoryDirectory) Get(ctx context.Context, id string) (*auth.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, auth.ErrNotFound)
	}
	c := *u
	return &c, nil
}

func (d *MemoryDirectory) Upsert(ctx context.Context, p auth.Profile) (*auth.User, error) {
	if err := validateProfile(p); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now().UTC()
	u, ok := d.users[p.Subject]
	if !ok {
		u = &auth.User{ID: p.Subject, Role: auth.RoleViewer, CreatedAt: now}
		d.users[p.Subject] = u
	}
	u.Email = p.Email
	u.FirstName = p.FirstName
	u.LastName = p.LastName
	u.ProfileImageURL = p.ProfileImageURL
	u.UpdatedAt = now

	c := *u
	return &c, nil
}

func (d *MemoryDirectory) UpdateRole(ctx context.Context, id string, role auth.Role) (*auth.User, auth.Role, error) {
	if err := validateRole(role); err != nil {
		return nil, 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[id]
	if !ok {
		return nil, 0, fmt.Errorf("user %s: %w", id, auth.ErrNotFound)
	}
	previous := u.Role
	u.Role = role
	u.UpdatedAt = d.now().UTC()

	c := *u
	return &c, previous, nil
}

func (d *MemoryDirectory) List(ctx context.Context) ([]*auth.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*auth.User, 0, len(d.users))
	for _, u := range d.users {
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
