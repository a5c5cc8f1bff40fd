package swagger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *mux.Router {
	t.Helper()
	handlers, err := NewSwaggerHandlers()
	require.NoError(t, err)
	router := mux.NewRouter()
	handlers.RegisterRoutes(router)
	return router
}

func TestRouteIntegration(t *testing.T) {
	router := newRouter(t)

	tests := []struct {
		name                 string
		path                 string
		expectedContentType  string
		expectedBodyContains []string
	}{
		{
			name:                 "YAML document",
			path:                 "/openapi.yaml",
			expectedContentType:  "application/x-yaml",
			expectedBodyContains: []string{"openapi: 3.0.3", "/api/auth/callback"},
		},
		{
			name:                 "JSON document",
			path:                 "/openapi.json",
			expectedContentType:  "application/json",
			expectedBodyContains: []string{`"openapi"`, `"paths"`},
		},
		{
			name:                 "Swagger UI returns HTML",
			path:                 "/swagger-ui",
			expectedContentType:  "text/html; charset=utf-8",
			expectedBodyContains: []string{"<!DOCTYPE html>", "Stockroom API - Swagger UI", "/openapi.yaml"},
		},
		{
			name:                 "API docs alias works",
			path:                 "/api-docs",
			expectedContentType:  "text/html; charset=utf-8",
			expectedBodyContains: []string{"<!DOCTYPE html>", "swagger-ui"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.expectedContentType, w.Header().Get("Content-Type"))
			for _, expected := range tt.expectedBodyContains {
				assert.Contains(t, w.Body.String(), expected)
			}
		})
	}
}

func TestOpenAPIJSONListsEveryRoute(t *testing.T) {
	router := newRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		OpenAPI string                            `json:"openapi"`
		Paths   map[string]map[string]interface{} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc.OpenAPI)

	expected := map[string][]string{
		"/api/login":           {"get"},
		"/api/auth/callback":   {"get"},
		"/api/logout":          {"get"},
		"/api/auth/user":       {"get"},
		"/api/audit-logs":      {"get"},
		"/api/users":           {"get"},
		"/api/users/{id}/role": {"patch"},
		"/api/warehouses":      {"get", "post"},
		"/api/warehouses/{id}": {"patch", "delete"},
		"/api/inventory":       {"get", "post"},
		"/api/inventory/{id}":  {"patch", "delete"},
	}
	assert.Len(t, doc.Paths, len(expected))
	for path, methods := range expected {
		require.Contains(t, doc.Paths, path)
		for _, m := range methods {
			assert.Contains(t, doc.Paths[path], m, "%s %s", m, path)
		}
	}
}

func TestYAMLToJSON(t *testing.T) {
	out, err := yamlToJSON([]byte("a: 1\nnested:\n  200: ok\nlist: [x, {k: v}]\n"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"nested":{"200":"ok"},"list":["x",{"k":"v"}]}`, string(out))

	_, err = yamlToJSON([]byte("a: [unclosed"))
	assert.Error(t, err)
}

func TestOpenAPIDocumentEmbedded(t *testing.T) {
	assert.NotEmpty(t, openapiSpec, "embedded OpenAPI document is empty")
}
