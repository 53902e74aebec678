package auth

import (
	"fmt"

	"github.com/upb/authvault/internal/shared"
	"github.com/upb/authvault/models"
)

// RequireRole fails with shared.ErrUnauthenticated when there is no identity
// and with shared.ErrForbidden when the identity's role is insufficient.
// Admin satisfies user.
func RequireRole(identity *models.Identity, role models.Role) error {
	if identity == nil {
		return shared.ErrUnauthenticated
	}
	if !identity.Role.Satisfies(role) {
		return fmt.Errorf("%w: %s required, caller is %s", shared.ErrForbidden, role, identity.Role)
	}
	return nil
}

// RequireAdmin is RequireRole(identity, admin)
func RequireAdmin(identity *models.Identity) error {
	return RequireRole(identity, models.RoleAdmin)
}
