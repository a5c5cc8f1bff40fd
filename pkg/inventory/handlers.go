package inventory

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/stockroom/pkg/audit"
	"github.com/platinummonkey/stockroom/pkg/auth"
	"github.com/platinummonkey/stockroom/pkg/httputil"
	"github.com/platinummonkey/stockroom/pkg/observability"
)

// Handlers serves the warehouse and inventory routes. Authorization and
// auditing are applied by the router; handlers only annotate audit metadata.
type Handlers struct {
	store  Store
	logger *observability.Logger
}

// NewHandlers creates inventory handlers
func NewHandlers(store Store, logger *observability.Logger) *Handlers {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Handlers{store: store, logger: logger}
}

// ListWarehouses handles GET /api/warehouses
func (h *Handlers) ListWarehouses(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListWarehouses(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// CreateWarehouse handles POST /api/warehouses
func (h *Handlers) CreateWarehouse(w http.ResponseWriter, r *http.Request) {
	var in WarehouseInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	wh, err := h.store.CreateWarehouse(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	audit.Annotate(r.Context(), "warehouseId", wh.ID)
	httputil.WriteCreated(w, wh)
}

// UpdateWarehouse handles PATCH /api/warehouses/{id}
func (h *Handlers) UpdateWarehouse(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	var patch WarehousePatch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}
	wh, err := h.store.UpdateWarehouse(r.Context(), id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	audit.Annotate(r.Context(), "warehouseId", wh.ID)
	httputil.WriteSuccess(w, wh)
}

// DeleteWarehouse handles DELETE /api/warehouses/{id}
func (h *Handlers) DeleteWarehouse(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err := h.store.DeleteWarehouse(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	audit.Annotate(r.Context(), "warehouseId", id)
	httputil.WriteNoContent(w)
}

// ListItems handles GET /api/inventory?warehouseId=
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListItems(r.Context(), r.URL.Query().Get("warehouseId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, items)
}

// CreateItem handles POST /api/inventory
func (h *Handlers) CreateItem(w http.ResponseWriter, r *http.Request) {
	var in ItemInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	item, err := h.store.CreateItem(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	audit.Annotate(r.Context(), "itemId", item.ID)
	httputil.WriteCreated(w, item)
}

// UpdateItem handles PATCH /api/inventory/{id}
func (h *Handlers) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	var patch ItemPatch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}
	item, err := h.store.UpdateItem(r.Context(), id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	audit.Annotate(r.Context(), "itemId", item.ID)
	httputil.WriteSuccess(w, item)
}

// DeleteItem handles DELETE /api/inventory/{id}
func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err := h.store.DeleteItem(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	audit.Annotate(r.Context(), "itemId", id)
	httputil.WriteNoContent(w)
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrInvalidInput) {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if auth.HTTPStatus(err) == http.StatusInternalServerError {
		observability.FromContext(r.Context(), h.logger).WithError(err).Error("Inventory request failed")
	}
	httputil.WriteFailure(w, err)
}
