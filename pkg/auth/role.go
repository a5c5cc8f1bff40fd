package auth

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Role is an authorization role. The zero value is not a valid role.
type Role uint8

const (
	RoleViewer Role = iota + 1
	RoleManager
	RoleAdmin
	RoleSuperAdmin
)

var roleNames = [...]string{
	RoleViewer:     "viewer",
	RoleManager:    "manager",
	RoleAdmin:      "admin",
	RoleSuperAdmin: "super_admin",
}

// AllRoles returns every valid role in ascending order of privilege
func AllRoles() []Role {
	return []Role{RoleViewer, RoleManager, RoleAdmin, RoleSuperAdmin}
}

// ParseRole converts the wire name of a role into a Role
func ParseRole(s string) (Role, error) {
	name := strings.TrimSpace(s)
	for _, r := range AllRoles() {
		if roleNames[r] == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Valid reports whether r is one of the four recognized roles
func (r Role) Valid() bool {
	return r >= RoleViewer && r <= RoleSuperAdmin
}

func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
	return roleNames[r]
}

// MarshalText implements encoding.TextMarshaler
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRole, uint8(r))
	}
	return []byte(roleNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value implements driver.Valuer so roles are stored by name
func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRole, uint8(r))
	}
	return roleNames[r], nil
}

// Scan implements sql.Scanner
func (r *Role) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	default:
		return fmt.Errorf("%w: cannot scan %T into Role", ErrInvalidRole, src)
	}
}
