package middleware

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/stockroom/pkg/auth"
	"github.com/platinummonkey/stockroom/pkg/httputil"
	"github.com/platinummonkey/stockroom/pkg/observability"
	"github.com/platinummonkey/stockroom/pkg/rbac"
	"github.com/platinummonkey/stockroom/pkg/session"
	"github.com/platinummonkey/stockroom/pkg/users"
)

// Denial reasons used as metric labels
const (
	reasonNoSession   = "no_session"
	reasonUnknownUser = "unknown_user"
	reasonNoIdentity  = "no_identity"
	reasonRole        = "role"
)

// Authorizer resolves callers and enforces route policy
type Authorizer struct {
	directory users.Directory
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewAuthorizer creates an authorizer. metrics may be nil.
func NewAuthorizer(directory users.Directory, logger *observability.Logger, metrics *observability.Metrics) *Authorizer {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Authorizer{directory: directory, logger: logger, metrics: metrics}
}

// ResolveIdentity loads the session's user and attaches it to the request.
// Requests without a session user, or whose user no longer exists, get 401.
func (a *Authorizer) ResolveIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := session.FromContext(r.Context())
		if !ok || !s.Authenticated() {
			a.deny(w, reasonNoSession, http.StatusUnauthorized)
			return
		}

		user, err := a.directory.Get(r.Context(), s.UserID)
		if errors.Is(err, auth.ErrNotFound) {
			a.deny(w, reasonUnknownUser, http.StatusUnauthorized)
			return
		}
		if err != nil {
			observability.FromContext(r.Context(), a.logger).WithError(err).Error("Failed to resolve session user")
			httputil.WriteInternalError(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), user)))
	})
}

// RequireRole admits callers whose role is in allowed. It must run after
// ResolveIdentity; a missing identity is still rejected with 401.
func (a *Authorizer) RequireRole(allowed rbac.RoleSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := auth.IdentityFromContext(r.Context())
			if identity == nil {
				a.deny(w, reasonNoIdentity, http.StatusUnauthorized)
				return
			}
			if !allowed.Contains(identity.Role()) {
				observability.FromContext(r.Context(), a.logger).
					WithField("role", identity.Role().String()).
					WithField("path", r.URL.Path).
					Info("Request denied by role policy")
				a.deny(w, reasonRole, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Protect composes ResolveIdentity and RequireRole(allowed)
func (a *Authorizer) Protect(allowed rbac.RoleSet) func(http.Handler) http.Handler {
	return httputil.Chain(a.ResolveIdentity, a.RequireRole(allowed))
}

func (a *Authorizer) deny(w http.ResponseWriter, reason string, status int) {
	if a.metrics != nil {
		a.metrics.AuthzDenialsTotal.WithLabelValues(reason).Inc()
	}
	if status == http.StatusForbidden {
		httputil.WriteForbidden(w)
		return
	}
	httputil.WriteUnauthorized(w)
}
