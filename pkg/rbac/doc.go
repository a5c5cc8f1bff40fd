// Package rbac holds the route authorization policy: explicit role allow-sets
// per route, plus the one hierarchy-sensitive rule for assigning roles.
//
// Allow-sets are values, not hierarchies. A route open to managers and above
// lists all three roles:
//
//	rbac.Roles(auth.RoleManager, auth.RoleAdmin, auth.RoleSuperAdmin)
//
// The predefined sets below cover every route the API registers.
package rbac
