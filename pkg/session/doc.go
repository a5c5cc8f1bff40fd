// Package session keeps per-browser login state on the server.
//
// The browser only ever holds an opaque, random session id in an HttpOnly,
// SameSite=Lax cookie with a fixed lifetime. Everything else (the pending PKCE
// login and the authenticated user id) lives in a Store:
//
//   - MemoryStore for a single process and for tests
//   - RedisStore, mutating records under WATCH/MULTI
//   - PostgresStore, mutating records under SELECT ... FOR UPDATE
//
// Every Store serializes Update calls for the same id, so a callback that
// takes the pending login can never observe it half written, and two
// callbacks racing on one session cannot both take it.
//
// Manager owns the cookie and is the only thing that mutates sessions.
// Handlers see a read-only Snapshot through FromContext.
package session
