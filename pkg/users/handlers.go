package users

import (
	"net/http"

	"github.com/platinummonkey/stockroom/pkg/audit"
	"github.com/platinummonkey/stockroom/pkg/auth"
	"github.com/platinummonkey/stockroom/pkg/httputil"
	"github.com/platinummonkey/stockroom/pkg/observability"
	"github.com/platinummonkey/stockroom/pkg/rbac"
)

// Handlers serves user administration
type Handlers struct {
	directory Directory
	logger    *observability.Logger
}

// NewHandlers creates user handlers
func NewHandlers(directory Directory, logger *observability.Logger) *Handlers {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Handlers{directory: directory, logger: logger}
}

// ListUsers handles GET /api/users
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.directory.List(r.Context())
	if err != nil {
		observability.FromContext(r.Context(), h.logger).WithError(err).Error("Failed to list users")
		httputil.WriteInternalError(w)
		return
	}
	if list == nil {
		list = []*auth.User{}
	}
	httputil.WriteSuccess(w, list)
}

// UpdateRoleRequest is the body of PATCH /api/users/{id}/role
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateRole handles PATCH /api/users/{id}/role. The route policy admits
// admins; assigning super_admin additionally requires a super_admin caller.
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		httputil.WriteUnauthorized(w)
		return
	}

	id, err := httputil.PathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	var req UpdateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := auth.ParseRole(req.Role)
	if err != nil {
		httputil.WriteFailure(w, err)
		return
	}

	log := observability.FromContext(r.Context(), h.logger).
		WithField("target_user_id", id).
		WithField("role", role.String())

	if err := rbac.CheckRoleAssignment(identity.Role(), role); err != nil {
		log.WithField("actor_role", identity.Role().String()).Warn("Role assignment denied")
		httputil.WriteFailure(w, err)
		return
	}

	user, previous, err := h.directory.UpdateRole(r.Context(), id, role)
	if err != nil {
		if auth.HTTPStatus(err) == http.StatusInternalServerError {
			log.WithError(err).Error("Failed to update user role")
		}
		httputil.WriteFailure(w, err)
		return
	}

	audit.Annotate(r.Context(), "targetUserId", user.ID)
	audit.Annotate(r.Context(), "role", role.String())
	audit.Annotate(r.Context(), "previousRole", previous.String())

	log.WithField("previous_role", previous.String()).Info("User role updated")
	httputil.WriteSuccess(w, user)
}
