// Package policy decides which roles may message which. The table is
// static; there is no per-user override.
package policy

import (
	"context"

	"crewdesk/internal/database"
	"crewdesk/internal/models"

	"github.com/google/uuid"
)

// eligiblePartners maps a sender's role to the roles they may open
// conversations with. Guests are categorically barred from messaging.
var eligiblePartners = map[models.Role][]models.Role{
	models.RoleAdmin:  {models.RoleAdmin, models.RoleStaff, models.RoleClient},
	models.RoleStaff:  {models.RoleAdmin, models.RoleStaff, models.RoleClient},
	models.RoleClient: {models.RoleStaff},
	models.RoleGuest:  {},
}

// EligiblePartnerRoles returns the set of roles the given role may
// initiate conversations with. Unknown roles get the guest treatment.
func EligiblePartnerRoles(role models.Role) []models.Role {
	roles := eligiblePartners[role]
	out := make([]models.Role, len(roles))
	copy(out, roles)
	return out
}

// CanMessage reports whether the role may send messages at all.
func CanMessage(role models.Role) bool {
	return len(eligiblePartners[role]) > 0
}

// Directory is the slice of the store the policy needs.
type Directory interface {
	ListUsers(ctx context.Context, filter database.UserFilter) ([]*models.User, error)
}

// EligibleRecipients lists every user the caller may message, excluding
// the caller. Guests short-circuit to an empty list without a directory
// query. Search, when non-empty, narrows by name or email.
func EligibleRecipients(ctx context.Context, dir Directory, userID uuid.UUID, role models.Role, search string) ([]*models.User, error) {
	roles := EligiblePartnerRoles(role)
	if len(roles) == 0 {
		return []*models.User{}, nil
	}
	return dir.ListUsers(ctx, database.UserFilter{
		Roles:   roles,
		Exclude: userID,
		Search:  search,
	})
}
