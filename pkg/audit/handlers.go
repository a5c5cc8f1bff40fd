package audit

import (
	"net/http"

	"github.com/platinummonkey/stockroom/pkg/httputil"
	"github.com/platinummonkey/stockroom/pkg/observability"
)

// Activity feed page sizes
const (
	DefaultRecentLimit = 20
	MaxRecentLimit     = 100
)

// Handlers provides HTTP handlers for the audit log API
type Handlers struct {
	store  Logger
	logger *observability.Logger
}

// NewHandlers creates new audit handlers
func NewHandlers(store Logger, logger *observability.Logger) *Handlers {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Handlers{
		store:  store,
		logger: logger,
	}
}

// RecentEntries handles GET /api/audit-logs?limit=N
func (h *Handlers) RecentEntries(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", DefaultRecentLimit, 1, MaxRecentLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	entries, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		observability.FromContext(r.Context(), h.logger).WithError(err).Error("Failed to load audit entries")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, entries)
}
