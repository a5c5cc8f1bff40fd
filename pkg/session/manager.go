package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/stockroom/pkg/auth"
	"github.com/platinummonkey/stockroom/pkg/contextkeys"
	"github.com/platinummonkey/stockroom/pkg/httputil"
	"github.com/platinummonkey/stockroom/pkg/observability"
)

// DefaultCookieName is the name of the session cookie
const DefaultCookieName = "stockroom.sid"

// Config controls the session cookie
type Config struct {
	CookieName string
	Lifetime   time.Duration
	// AlwaysSecure marks the cookie Secure even on plain HTTP requests
	AlwaysSecure bool
	// TrustForwardedProto honours X-Forwarded-Proto from a TLS-terminating proxy
	TrustForwardedProto bool
}

// Snapshot is the read-only view of the current session handed to handlers
type Snapshot struct {
	ID              string
	UserID          string
	HasPendingLogin bool
	ExpiresAt       time.Time
}

// Authenticated reports whether the session carries a user id
func (s Snapshot) Authenticated() bool {
	return s.UserID != ""
}

var errNoPendingLogin = errors.New("session has no pending login")

// Manager ties sessions to cookies. It is the only component that mutates sessions.
type Manager struct {
	store  Store
	cfg    Config
	logger *observability.Logger
	now    func() time.Time
}

// NewManager creates a session manager over store
func NewManager(store Store, cfg Config, logger *observability.Logger) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultLifetime
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Manager{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Store returns the backing store, for the janitor and operator tooling
func (m *Manager) Store() Store {
	return m.store
}

// Middleware resolves the session cookie into a Snapshot on the request context.
// Missing, expired and unknown ids leave the request anonymous.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(m.cfg.CookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		s, err := m.store.Get(r.Context(), cookie.Value)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			next.ServeHTTP(w, r)
		case err != nil:
			observability.FromContext(r.Context(), m.logger).WithError(err).Error("Failed to load session")
			httputil.WriteInternalError(w)
		default:
			ctx := context.WithValue(r.Context(), contextkeys.SessionKey, snapshotOf(s))
			next.ServeHTTP(w, r.WithContext(ctx))
		}
	})
}

// FromContext returns the current session, if the request carried a live one
func FromContext(ctx context.Context) (Snapshot, bool) {
	s, ok := ctx.Value(contextkeys.SessionKey).(Snapshot)
	return s, ok
}

func snapshotOf(s *Session) Snapshot {
	return Snapshot{
		ID:              s.ID,
		UserID:          s.UserID,
		HasPendingLogin: s.PendingLogin != nil,
		ExpiresAt:       s.ExpiresAt,
	}
}

// BeginLogin stores pending as the session's pending login, replacing any
// earlier one. A session is created (and its cookie set) if the request has none.
func (m *Manager) BeginLogin(w http.ResponseWriter, r *http.Request, pending PendingLogin) error {
	ctx := r.Context()
	set := func(s *Session) error {
		p := pending
		s.PendingLogin = &p
		return nil
	}

	if current, ok := FromContext(ctx); ok {
		_, err := m.store.Update(ctx, current.ID, set)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrSessionNotFound) {
			return err
		}
		// expired between middleware and here; fall through to a new session
	}

	s, err := New(m.now(), m.cfg.Lifetime)
	if err != nil {
		return err
	}
	set(s)
	if err := m.store.Create(ctx, s); err != nil {
		return err
	}
	m.setCookie(w, r, s)
	return nil
}

// TakePendingLogin atomically reads and clears the pending login, so each one
// is handed out at most once. Without one it fails with auth.ErrInvalidSession.
func (m *Manager) TakePendingLogin(ctx context.Context) (*PendingLogin, error) {
	current, ok := FromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("no session cookie: %w", auth.ErrInvalidSession)
	}

	var taken *PendingLogin
	_, err := m.store.Update(ctx, current.ID, func(s *Session) error {
		if s.PendingLogin == nil {
			return errNoPendingLogin
		}
		taken = s.PendingLogin
		s.PendingLogin = nil
		return nil
	})
	// a contended update means another callback raced this one for the same login
	if errors.Is(err, errNoPendingLogin) || errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionContended) {
		return nil, fmt.Errorf("%v: %w", err, auth.ErrInvalidSession)
	}
	if err != nil {
		return nil, err
	}
	return taken, nil
}

// Authenticate binds userID to a brand-new session and retires the pre-login
// one, so an id planted before login is worthless afterwards.
func (m *Manager) Authenticate(w http.ResponseWriter, r *http.Request, userID string) error {
	ctx := r.Context()

	s, err := New(m.now(), m.cfg.Lifetime)
	if err != nil {
		return err
	}
	s.UserID = userID
	if err := m.store.Create(ctx, s); err != nil {
		return err
	}

	if previous, ok := FromContext(ctx); ok {
		if err := m.store.Delete(ctx, previous.ID); err != nil {
			observability.FromContext(ctx, m.logger).WithError(err).Warn("Failed to delete pre-login session")
		}
	}

	m.setCookie(w, r, s)
	return nil
}

// Destroy deletes the current session, if any, and expires the cookie.
// Calling it on an anonymous request is a successful no-op.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	if current, ok := FromContext(r.Context()); ok {
		if err := m.store.Delete(r.Context(), current.ID); err != nil {
			return err
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *Manager) setCookie(w http.ResponseWriter, r *http.Request, s *Session) {
	maxAge := int(s.ExpiresAt.Sub(m.now()).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    s.ID,
		Path:     "/",
		Expires:  s.ExpiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) secure(r *http.Request) bool {
	if m.cfg.AlwaysSecure || r.TLS != nil {
		return true
	}
	return m.cfg.TrustForwardedProto && r.Header.Get("X-Forwarded-Proto") == "https"
}
