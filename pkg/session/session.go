package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// DefaultLifetime is the fixed session lifetime. It is never extended by activity.
const DefaultLifetime = 30 * 24 * time.Hour

// ErrSessionNotFound is returned for ids that are unknown or expired
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionContended is returned when concurrent writers keep an Update from
// committing
var ErrSessionContended = errors.New("session is being updated concurrently")

// PendingLogin holds the PKCE verifier and anti-forgery state between a login
// redirect and its callback
type PendingLogin struct {
	CodeVerifier string `json:"codeVerifier"`
	State        string `json:"state"`
}

// Session is the server-side record behind a session cookie
type Session struct {
	ID           string        `json:"id"`
	PendingLogin *PendingLogin `json:"pendingLogin,omitempty"`
	UserID       string        `json:"userId,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	ExpiresAt    time.Time     `json:"expiresAt"`
}

// Authenticated reports whether a user has completed login on this session
func (s *Session) Authenticated() bool {
	return s.UserID != ""
}

// Expired reports whether the session is past its fixed expiry at now
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (s *Session) clone() *Session {
	c := *s
	if s.PendingLogin != nil {
		p := *s.PendingLogin
		c.PendingLogin = &p
	}
	return &c
}

// Store persists sessions. Implementations must run Update's mutate function
// with exclusive access to the record for that id, and must treat expired
// records as absent.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, mutate func(*Session) error) (*Session, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// NewID returns 32 random bytes, base64url encoded without padding
func NewID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// New builds a fresh anonymous session starting at now
func New(now time.Time, lifetime time.Duration) (*Session, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	now = now.UTC()
	return &Session{ID: id, CreatedAt: now, ExpiresAt: now.Add(lifetime)}, nil
}
