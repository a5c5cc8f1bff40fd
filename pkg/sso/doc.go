// Package sso implements OpenID Connect sign-in for stockroom.
//
// # Overview
//
// The flow is the authorization-code grant with PKCE against a single
// identity provider:
//
//	GET /api/login          -> pending login stored in the session, 302 to the IdP
//	GET /api/auth/callback  -> code exchanged, user upserted, session rotated, 302 to /
//	GET /api/logout         -> session destroyed, cookie dropped, 302 to /
//	GET /api/auth/user      -> the signed-in user
//
// # Discovery
//
// Provider metadata is discovered lazily on the first login and cached for the
// life of the process. Concurrent first callers share one fetch. A failed
// discovery is not cached; every login fails with auth.ErrConfiguration until
// the issuer answers.
//
// # Usage Example
//
//	client, err := sso.NewOIDCClient(sso.OIDCConfig{
//		IssuerURL:    "https://accounts.example.com",
//		ClientID:     "stockroom",
//		ClientSecret: secret,
//		RedirectURL:  "https://stockroom.example.com/api/auth/callback",
//	}, logger, metrics)
//
//	handlers := sso.NewHandlers(client, sessions, directory, recorder, logger, metrics)
//	router.HandleFunc("/api/login", handlers.Login).Methods("GET")
package sso
