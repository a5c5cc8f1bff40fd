package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/stockroom/pkg/audit"
	"github.com/platinummonkey/stockroom/pkg/httputil"
	"github.com/platinummonkey/stockroom/pkg/inventory"
	"github.com/platinummonkey/stockroom/pkg/middleware"
	"github.com/platinummonkey/stockroom/pkg/observability"
	"github.com/platinummonkey/stockroom/pkg/rbac"
	"github.com/platinummonkey/stockroom/pkg/session"
	"github.com/platinummonkey/stockroom/pkg/sso"
	"github.com/platinummonkey/stockroom/pkg/swagger"
	"github.com/platinummonkey/stockroom/pkg/users"
)

// maxRequestBody caps JSON request bodies
const maxRequestBody = 1 << 20

// Dependencies are the collaborators the server routes to. LoginLimiter and
// Metrics may be nil.
type Dependencies struct {
	IdP          sso.IdentityProvider
	Sessions     *session.Manager
	Directory    users.Directory
	AuditStore   audit.Logger
	Dispatcher   *audit.Dispatcher
	Inventory    inventory.Store
	LoginLimiter *middleware.LoginRateLimiter
	// TrustProxy takes the client address from X-Forwarded-For in audit records
	TrustProxy bool
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// Server represents our API server
type Server struct {
	router     *mux.Router
	deps       Dependencies
	authorizer *middleware.Authorizer
	recorder   *audit.Recorder
}

// NewServer creates a new API server
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewNopLogger()
	}

	s := &Server{
		router:     mux.NewRouter(),
		deps:       deps,
		authorizer: middleware.NewAuthorizer(deps.Directory, deps.Logger, deps.Metrics),
		recorder:   audit.NewRecorder(deps.Dispatcher, deps.TrustProxy),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Recorder returns the recorder shared by the audited routes
func (s *Server) Recorder() *audit.Recorder {
	return s.recorder
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	logger := s.deps.Logger
	s.router.Use(
		httputil.RequestIDMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
	)
	if s.deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}
	s.router.Use(
		httputil.MaxBytesMiddleware(maxRequestBody),
		httputil.ContentTypeMiddleware,
		s.deps.Sessions.Middleware,
	)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	d := s.deps

	// Login flow
	authHandlers := sso.NewHandlers(d.IdP, d.Sessions, d.Directory, s.recorder, d.Logger, d.Metrics)
	s.router.Handle("/api/login", s.limited(authHandlers.Login)).Methods(http.MethodGet)
	s.router.Handle("/api/auth/callback", s.limited(authHandlers.Callback)).Methods(http.MethodGet)
	s.router.HandleFunc("/api/logout", authHandlers.Logout).Methods(http.MethodGet)
	s.protect(http.MethodGet, "/api/auth/user", rbac.AnyRole, "", authHandlers.CurrentUser)

	// Activity feed
	auditHandlers := audit.NewHandlers(d.AuditStore, d.Logger)
	s.protect(http.MethodGet, "/api/audit-logs", rbac.AnyRole, "", auditHandlers.RecentEntries)

	// User administration
	userHandlers := users.NewHandlers(d.Directory, d.Logger)
	s.protect(http.MethodGet, "/api/users", rbac.Administrators, "", userHandlers.ListUsers)
	s.protect(http.MethodPatch, "/api/users/{id}/role", rbac.Administrators, audit.ActionUpdateUserRole, userHandlers.UpdateRole)

	// Warehouses
	inv := inventory.NewHandlers(d.Inventory, d.Logger)
	s.protect(http.MethodGet, "/api/warehouses", rbac.AnyRole, "", inv.ListWarehouses)
	s.protect(http.MethodPost, "/api/warehouses", rbac.Editors, audit.ActionCreateWarehouse, inv.CreateWarehouse)
	s.protect(http.MethodPatch, "/api/warehouses/{id}", rbac.Editors, audit.ActionUpdateWarehouse, inv.UpdateWarehouse)
	s.protect(http.MethodDelete, "/api/warehouses/{id}", rbac.Administrators, audit.ActionDeleteWarehouse, inv.DeleteWarehouse)

	// Inventory
	s.protect(http.MethodGet, "/api/inventory", rbac.AnyRole, "", inv.ListItems)
	s.protect(http.MethodPost, "/api/inventory", rbac.Editors, audit.ActionCreateInventory, inv.CreateItem)
	s.protect(http.MethodPatch, "/api/inventory/{id}", rbac.Editors, audit.ActionUpdateInventory, inv.UpdateItem)
	s.protect(http.MethodDelete, "/api/inventory/{id}", rbac.Administrators, audit.ActionDeleteInventory, inv.DeleteItem)

	// API documentation
	docs, err := swagger.NewSwaggerHandlers()
	if err != nil {
		d.Logger.WithError(err).Error("API documentation disabled")
		return
	}
	docs.RegisterRoutes(s.router)
}

// protect registers a route behind identity resolution and the allow-set. A
// non-empty action audits successful responses.
func (s *Server) protect(method, path string, allowed rbac.RoleSet, action string, h http.HandlerFunc) {
	var handler http.Handler = h
	if action != "" {
		handler = s.recorder.Audited(action)(handler)
	}
	s.router.Handle(path, s.authorizer.Protect(allowed)(handler)).Methods(method)
}

func (s *Server) limited(h http.HandlerFunc) http.Handler {
	if s.deps.LoginLimiter == nil {
		return h
	}
	return s.deps.LoginLimiter.Handler(h)
}
