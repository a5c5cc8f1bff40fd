// Package middleware contains the HTTP middleware that guards protected routes.
//
// A protected route is wrapped, outermost first, as
//
//	ResolveIdentity -> RequireRole(allowSet) -> handler
//
// ResolveIdentity turns the session's user id into an auth.Identity on the
// request context, and RequireRole checks the identity's role against the
// route's explicit allow-set. LoginRateLimiter throttles the public login
// endpoints per client address.
package middleware
