package rbac

import (
	"strings"

	"github.com/platinummonkey/stockroom/pkg/auth"
)

// RoleSet is an explicit set of roles allowed through a route
type RoleSet uint8

// Roles builds a RoleSet from its members. Invalid roles are ignored.
func Roles(roles ...auth.Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		if r.Valid() {
			s |= 1 << r
		}
	}
	return s
}

// Contains reports whether r is a member of the set
func (s RoleSet) Contains(r auth.Role) bool {
	return r.Valid() && s&(1<<r) != 0
}

// Members returns the roles in the set in ascending order of privilege
func (s RoleSet) Members() []auth.Role {
	var out []auth.Role
	for _, r := range auth.AllRoles() {
		if s.Contains(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s RoleSet) String() string {
	names := make([]string, 0, 4)
	for _, r := range s.Members() {
		names = append(names, r.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}

// Allow-sets used by the API routes
var (
	// Everyone signed in, including viewers
	AnyRole = Roles(auth.RoleViewer, auth.RoleManager, auth.RoleAdmin, auth.RoleSuperAdmin)
	// Inventory and warehouse editors
	Editors = Roles(auth.RoleManager, auth.RoleAdmin, auth.RoleSuperAdmin)
	// Destructive operations and user administration
	Administrators = Roles(auth.RoleAdmin, auth.RoleSuperAdmin)
)
