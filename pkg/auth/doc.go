// Package auth defines the identity types shared by the stockroom subsystems.
//
// # Overview
//
// The package owns three things:
//
//   - Role, a closed enumeration of the four authorization roles
//     (viewer, manager, admin, super_admin)
//   - User and Profile, the directory record and the identity-provider claims
//     that feed it
//   - the error taxonomy used by login, session and authorization code paths,
//     together with its HTTP status mapping
//
// # Roles
//
// Role values outside the enumeration cannot be constructed from text or from a
// database column:
//
//	role, err := auth.ParseRole("manager")
//	if err != nil {
//		// errors.Is(err, auth.ErrInvalidRole)
//	}
//
// # Errors
//
// Handlers classify failures with errors.Is and never echo wrapped detail to
// the client:
//
//	status := auth.HTTPStatus(err)       // 401, 403, 404, 400 or 500
//	message := auth.PublicMessage(err)   // safe, generic text
//
// # Identity
//
// The authorization middleware attaches the resolved caller to the request
// context. Downstream handlers read it with IdentityFromContext; there is no
// way to reach the session store from the identity value.
package auth
