// Package cli implements the stockroom-admin operator commands.
//
// # Commands
//
// grant-role: bootstrap or repair roles without going through the web UI.
// The change is written straight to the audit log with a null actor.
//
//	stockroom-admin grant-role -user 00u1abc -role super_admin -create -email ops@example.com
//
// list-users: show every user and role
//
//	stockroom-admin list-users [-json]
//
// audit-recent: show the newest audit entries
//
//	stockroom-admin audit-recent -limit 50
//
// purge-sessions: delete expired sessions immediately
//
//	stockroom-admin -session-backend postgres purge-sessions
package cli
