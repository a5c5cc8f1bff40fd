// Package httputil provides HTTP utilities for standardized request/response handling.
//
// Every error leaves the service as a JSON object with a single message:
//
//	{"error": "insufficient permissions"}
//
// Handlers that fail with a classified error from pkg/auth use WriteFailure,
// which picks the status and a client-safe message:
//
//	if err := directory.UpdateRole(ctx, id, role); err != nil {
//		httputil.WriteFailure(w, err)
//		return
//	}
//
// The middlewares (RequestIDMiddleware, LoggingMiddleware, RecoveryMiddleware,
// MaxBytesMiddleware, ContentTypeMiddleware) are composed with Chain.
package httputil
