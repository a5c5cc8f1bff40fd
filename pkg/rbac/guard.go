package rbac

import (
	"fmt"

	"github.com/platinummonkey/stockroom/pkg/auth"
)

// CheckRoleAssignment applies the escalation guard on top of the route's
// allow-set: only a super_admin may hand out super_admin. Any other target role
// is allowed once the route policy has admitted the actor.
func CheckRoleAssignment(actor, target auth.Role) error {
	if !target.Valid() {
		return fmt.Errorf("%w: %d", auth.ErrInvalidRole, uint8(target))
	}
	if target == auth.RoleSuperAdmin && actor != auth.RoleSuperAdmin {
		return fmt.Errorf("%s assigning %s: %w", actor, target, auth.ErrPrivilegeEscalationDenied)
	}
	return nil
}
