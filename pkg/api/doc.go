// Package api assembles the stockroom HTTP surface.
//
// # Overview
//
// Server owns a gorilla/mux router carrying the login flow, the current-user
// endpoint, user administration, the audit activity feed and the warehouse and
// inventory routes. The OpenAPI document and Swagger UI are served without a
// session at /openapi.yaml, /openapi.json and /swagger-ui. Every request passes through the same global chain:
//
//	RequestID -> Logging -> Recovery -> HTTP metrics -> session resolution
//
// # Route policy
//
// Business routes are registered with an explicit allow-set and, when they
// mutate state, an audit action:
//
//	s.protect(http.MethodDelete, "/api/warehouses/{id}", rbac.Administrators,
//		audit.ActionDeleteWarehouse, inv.DeleteWarehouse)
//
// which expands to Protect(allowed) wrapping Audited(action) wrapping the
// handler. The role check therefore runs before the handler, and exactly one
// audit record follows a 2xx response.
//
// # Usage
//
//	server := api.NewServer(api.Dependencies{
//		IdP:        oidcClient,
//		Sessions:   sessionManager,
//		Directory:  directory,
//		AuditStore: auditStore,
//		Dispatcher: dispatcher,
//		Inventory:  inventory.NewMemoryStore(),
//		Logger:     logger,
//		Metrics:    metrics,
//	})
//	http.ListenAndServe(":8080", server)
package api
