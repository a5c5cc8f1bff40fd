// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// Typed accessors live next to the types they carry (auth.IdentityFromContext,
// session.FromContext, audit.Annotate) so this package stays dependency free.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *auth.Identity
	// Set by: middleware.ResolveIdentity (pkg/middleware/auth.go)
	// Required by: all protected endpoints, RequireRole, audit.Recorder
	IdentityKey Key = "identity"

	// SessionKey contains a read-only session.Snapshot
	// Set by: session.Manager.Middleware (pkg/session/manager.go)
	// Required by: ResolveIdentity, the login callback
	SessionKey Key = "session"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated user's subject
	// Set by: auth.WithIdentity
	// Used by: logger
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	LoggerKey Key = "logger"

	// AuditAnnotationsKey contains the metadata collector for the current audited request
	// Set by: audit.Recorder.Audited (pkg/audit/middleware.go)
	// Used by: handlers calling audit.Annotate
	AuditAnnotationsKey Key = "audit_annotations"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
