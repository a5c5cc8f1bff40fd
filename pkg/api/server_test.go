package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/stockroom/pkg/audit"
	"github.com/platinummonkey/stockroom/pkg/auth"
	"github.com/platinummonkey/stockroom/pkg/inventory"
	"github.com/platinummonkey/stockroom/pkg/middleware"
	"github.com/platinummonkey/stockroom/pkg/observability"
	"github.com/platinummonkey/stockroom/pkg/session"
	"github.com/platinummonkey/stockroom/pkg/users"
)

type stubIdP struct{}

func (stubIdP) BeginLogin(ctx context.Context) (string, session.PendingLogin, error) {
	return "https://idp.example/authorize", session.PendingLogin{CodeVerifier: "v", State: "s"}, nil
}

func (stubIdP) CompleteLogin(ctx context.Context, code, state string, pending session.PendingLogin) (auth.Profile, error) {
	return auth.Profile{}, auth.ErrAuthenticationFailed
}

type failingSink struct{}

func (failingSink) Log(ctx context.Context, entry *audit.Entry) error {
	return errors.New("disk full")
}

func (failingSink) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	return nil, errors.New("disk full")
}

type harness struct {
	server     *Server
	sessions   *session.MemoryStore
	directory  *users.MemoryDirectory
	auditStore *audit.MemoryLogger
	dispatcher *audit.Dispatcher
	inventory  *inventory.MemoryStore
}

func newHarness(t *testing.T, sink audit.Logger, limiter *middleware.LoginRateLimiter) *harness {
	t.Helper()
	ctx := context.Background()

	h := &harness{
		sessions:   session.NewMemoryStore(),
		directory:  users.NewMemoryDirectory(),
		auditStore: audit.NewMemoryLogger(),
		inventory:  inventory.NewMemoryStore(),
	}
	if sink == nil {
		sink = h.auditStore
	}
	h.dispatcher = audit.NewDispatcher(sink, 64, nil, nil)
	t.Cleanup(func() { _ = h.dispatcher.Close(context.Background()) })

	for id, role := range map[string]auth.Role{
		"viewer":  auth.RoleViewer,
		"manager": auth.RoleManager,
		"admin":   auth.RoleAdmin,
		"root":    auth.RoleSuperAdmin,
	} {
		_, err := h.directory.Upsert(ctx, auth.Profile{Subject: id})
		require.NoError(t, err)
		_, _, err = h.directory.UpdateRole(ctx, id, role)
		require.NoError(t, err)
	}

	h.server = NewServer(Dependencies{
		IdP:          stubIdP{},
		Sessions:     session.NewManager(h.sessions, session.Config{}, nil),
		Directory:    h.directory,
		AuditStore:   h.auditStore,
		Dispatcher:   h.dispatcher,
		Inventory:    h.inventory,
		LoginLimiter: limiter,
		Metrics:      observability.NewTestMetrics(),
	})
	return h
}

// signIn stores an authenticated session for userID and returns its cookie
func (h *harness) signIn(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	s, err := session.New(time.Now(), 0)
	require.NoError(t, err)
	s.UserID = userID
	require.NoError(t, h.sessions.Create(context.Background(), s))
	return &http.Cookie{Name: session.DefaultCookieName, Value: s.ID}
}

func (h *harness) do(t *testing.T, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

// entries drains the dispatcher and returns everything recorded, newest first
func (h *harness) entries(t *testing.T) []audit.Entry {
	t.Helper()
	require.NoError(t, h.dispatcher.Close(context.Background()))
	list, err := h.auditStore.Recent(context.Background(), 100)
	require.NoError(t, err)
	return list
}

func (h *harness) createWarehouse(t *testing.T, name string) *inventory.Warehouse {
	t.Helper()
	wh, err := h.inventory.CreateWarehouse(context.Background(), inventory.WarehouseInput{Name: name})
	require.NoError(t, err)
	return wh
}

func TestServer_DeleteWarehouseRequiresAdministrator(t *testing.T) {
	h := newHarness(t, nil, nil)
	wh := h.createWarehouse(t, "North")

	rec := h.do(t, http.MethodDelete, "/api/warehouses/"+wh.ID, "", h.signIn(t, "manager"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"insufficient permissions"}`, rec.Body.String())

	list, err := h.inventory.ListWarehouses(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1, "a denied request must not reach the handler")

	rec = h.do(t, http.MethodDelete, "/api/warehouses/"+wh.ID, "", h.signIn(t, "admin"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	entries := h.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionDeleteWarehouse, entries[0].Action)
	assert.Equal(t, wh.ID, entries[0].Metadata["warehouseId"])
	require.NotNil(t, entries[0].UserID)
	assert.Equal(t, "admin", *entries[0].UserID)
}

func TestServer_CreateInventoryAuditsOnce(t *testing.T) {
	h := newHarness(t, nil, nil)
	wh := h.createWarehouse(t, "North")

	rec := h.do(t, http.MethodPost, "/api/inventory",
		`{"warehouseId":"`+wh.ID+`","sku":"B-1","name":"Bolt","quantity":3}`, h.signIn(t, "manager"))
	require.Equal(t, http.StatusCreated, rec.Code)

	var item inventory.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.NotEmpty(t, item.ID)

	entries := h.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionCreateInventory, entries[0].Action)
	assert.Equal(t, item.ID, entries[0].Metadata["itemId"])
	assert.Equal(t, "/api/inventory", entries[0].Endpoint)
	assert.Equal(t, http.MethodPost, entries[0].Method)
}

func TestServer_CreateInventorySucceedsWhenAuditSinkFails(t *testing.T) {
	h := newHarness(t, failingSink{}, nil)
	wh := h.createWarehouse(t, "North")

	rec := h.do(t, http.MethodPost, "/api/inventory",
		`{"warehouseId":"`+wh.ID+`","sku":"B-1","name":"Bolt","quantity":3}`, h.signIn(t, "admin"))
	assert.Equal(t, http.StatusCreated, rec.Code)

	require.NoError(t, h.dispatcher.Close(context.Background()))
	assert.Equal(t, uint64(1), h.dispatcher.Failed())
}

func TestServer_FailedMutationIsNotAudited(t *testing.T) {
	h := newHarness(t, nil, nil)

	rec := h.do(t, http.MethodPost, "/api/inventory",
		`{"warehouseId":"missing","sku":"B-1","name":"Bolt"}`, h.signIn(t, "manager"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodDelete, "/api/inventory/missing", "", h.signIn(t, "admin"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Empty(t, h.entries(t))
}

func TestServer_RoleAssignmentEscalationGuard(t *testing.T) {
	h := newHarness(t, nil, nil)

	rec := h.do(t, http.MethodPatch, "/api/users/viewer/role", `{"role":"super_admin"}`, h.signIn(t, "admin"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	u, err := h.directory.Get(context.Background(), "viewer")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleViewer, u.Role)

	rec = h.do(t, http.MethodPatch, "/api/users/viewer/role", `{"role":"super_admin"}`, h.signIn(t, "root"))
	require.Equal(t, http.StatusOK, rec.Code)

	u, err = h.directory.Get(context.Background(), "viewer")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleSuperAdmin, u.Role)

	entries := h.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionUpdateUserRole, entries[0].Action)
	assert.Equal(t, "viewer", entries[0].Metadata["targetUserId"])
}

func TestServer_ManagerCannotAdministerUsers(t *testing.T) {
	h := newHarness(t, nil, nil)

	rec := h.do(t, http.MethodGet, "/api/users", "", h.signIn(t, "manager"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPatch, "/api/users/viewer/role", `{"role":"manager"}`, h.signIn(t, "manager"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/users", "", h.signIn(t, "admin"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_LogoutInvalidatesCookie(t *testing.T) {
	h := newHarness(t, nil, nil)
	cookie := h.signIn(t, "viewer")

	rec := h.do(t, http.MethodGet, "/api/auth/user", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/logout", "", cookie)
	assert.Equal(t, http.StatusFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/auth/user", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_ViewerAccess(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.createWarehouse(t, "North")
	cookie := h.signIn(t, "viewer")

	rec := h.do(t, http.MethodGet, "/api/warehouses", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/audit-logs", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/warehouses", `{"name":"South"}`, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Empty(t, h.entries(t))
}

func TestServer_AnonymousRequests(t *testing.T) {
	h := newHarness(t, nil, nil)

	for _, path := range []string{"/api/auth/user", "/api/warehouses", "/api/inventory", "/api/audit-logs", "/api/users"} {
		rec := h.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String(), path)
	}

	rec := h.do(t, http.MethodGet, "/api/auth/user", "", &http.Cookie{Name: session.DefaultCookieName, Value: "forged"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_DeletedUserLosesAccess(t *testing.T) {
	h := newHarness(t, nil, nil)

	rec := h.do(t, http.MethodGet, "/api/auth/user", "", h.signIn(t, "ghost"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_UnknownRoute(t *testing.T) {
	h := newHarness(t, nil, nil)

	rec := h.do(t, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())

	rec = h.do(t, http.MethodPut, "/api/warehouses", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_RequestID(t *testing.T) {
	h := newHarness(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	rec = h.do(t, http.MethodGet, "/api/auth/user", "", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_LoginRateLimited(t *testing.T) {
	limiter := middleware.NewLoginRateLimiter(middleware.RateLimitConfig{RequestsPerMinute: 1, Burst: 1}, nil)
	h := newHarness(t, nil, limiter)

	rec := h.do(t, http.MethodGet, "/api/login", "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://idp.example/authorize", rec.Header().Get("Location"))

	rec = h.do(t, http.MethodGet, "/api/login", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = h.do(t, http.MethodGet, "/api/auth/callback?code=c&state=s", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestServer_DocumentationIsPublic(t *testing.T) {
	h := newHarness(t, nil, nil)

	rec := h.do(t, http.MethodGet, "/openapi.json", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"/api/users/{id}/role"`)

	rec = h.do(t, http.MethodGet, "/swagger-ui", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
