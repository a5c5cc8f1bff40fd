package sso

import (
	"fmt"
	"net/http"

	"github.com/platinummonkey/stockroom/pkg/audit"
	"github.com/platinummonkey/stockroom/pkg/auth"
	"github.com/platinummonkey/stockroom/pkg/httputil"
	"github.com/platinummonkey/stockroom/pkg/observability"
	"github.com/platinummonkey/stockroom/pkg/session"
	"github.com/platinummonkey/stockroom/pkg/users"
)

// postLoginRedirect is where the browser lands after login and logout
const postLoginRedirect = "/"

// Handlers handles login, callback, logout and current-user requests
type Handlers struct {
	idp       IdentityProvider
	sessions  *session.Manager
	directory users.Directory
	recorder  *audit.Recorder
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewHandlers creates a new SSO handlers instance. metrics may be nil.
func NewHandlers(
	idp IdentityProvider,
	sessions *session.Manager,
	directory users.Directory,
	recorder *audit.Recorder,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Handlers {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Handlers{
		idp:       idp,
		sessions:  sessions,
		directory: directory,
		recorder:  recorder,
		logger:    logger,
		metrics:   metrics,
	}
}

// Login handles GET /api/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	authURL, pending, err := h.idp.BeginLogin(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.sessions.BeginLogin(w, r, pending); err != nil {
		h.fail(w, r, fmt.Errorf("failed to store pending login: %w", err))
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback handles GET /api/auth/callback. The pending login is consumed
// before anything else, so a callback can be completed at most once.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pending, err := h.sessions.TakePendingLogin(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	query := r.URL.Query()
	if idpError := query.Get("error"); idpError != "" {
		h.fail(w, r, fmt.Errorf("identity provider returned %q: %w", idpError, auth.ErrAuthenticationFailed))
		return
	}

	profile, err := h.idp.CompleteLogin(ctx, query.Get("code"), query.Get("state"), *pending)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.directory.Upsert(ctx, profile)
	if err != nil {
		h.fail(w, r, fmt.Errorf("failed to upsert user: %w", err))
		return
	}

	if err := h.sessions.Authenticate(w, r, user.ID); err != nil {
		h.fail(w, r, fmt.Errorf("failed to authenticate session: %w", err))
		return
	}

	h.countLogin(observability.OutcomeSuccess)
	h.recorder.RecordActor(r, user.ID, audit.ActionLogin, nil)
	observability.FromContext(ctx, h.logger).
		WithField("user_id", user.ID).
		WithField("role", user.Role.String()).
		Info("User signed in")

	http.Redirect(w, r, postLoginRedirect, http.StatusFound)
}

// Logout handles GET /api/logout. Logging out without a session succeeds.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	current, hasSession := session.FromContext(r.Context())

	if err := h.sessions.Destroy(w, r); err != nil {
		observability.FromContext(r.Context(), h.logger).WithError(err).Error("Failed to destroy session")
		httputil.WriteInternalError(w)
		return
	}

	if hasSession && current.Authenticated() {
		h.recorder.RecordActor(r, current.UserID, audit.ActionLogout, nil)
	}

	http.Redirect(w, r, postLoginRedirect, http.StatusFound)
}

// CurrentUser handles GET /api/auth/user. It runs behind identity resolution.
func (h *Handlers) CurrentUser(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		httputil.WriteUnauthorized(w)
		return
	}
	httputil.WriteSuccess(w, identity.User)
}

// fail logs err and writes its classified response
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.countLogin(observability.OutcomeFailure)

	log := observability.FromContext(r.Context(), h.logger).WithError(err).WithField("path", r.URL.Path)
	if auth.HTTPStatus(err) >= http.StatusInternalServerError {
		log.Error("Login flow failed")
	} else {
		log.Warn("Login flow rejected")
	}
	httputil.WriteFailure(w, err)
}

func (h *Handlers) countLogin(outcome string) {
	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}
