package policy

import (
	"context"
	"testing"

	"crewdesk/internal/database"
	"crewdesk/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// countingDirectory records how often the policy reaches for the store.
type countingDirectory struct {
	calls  int
	filter database.UserFilter
	users  []*models.User
}

func (d *countingDirectory) ListUsers(ctx context.Context, filter database.UserFilter) ([]*models.User, error) {
	d.calls++
	d.filter = filter
	return d.users, nil
}

func TestEligiblePartnerRoles(t *testing.T) {
	assert.ElementsMatch(t,
		[]models.Role{models.RoleAdmin, models.RoleStaff, models.RoleClient},
		EligiblePartnerRoles(models.RoleAdmin))
	assert.ElementsMatch(t,
		[]models.Role{models.RoleAdmin, models.RoleStaff, models.RoleClient},
		EligiblePartnerRoles(models.RoleStaff))
	assert.ElementsMatch(t,
		[]models.Role{models.RoleStaff},
		EligiblePartnerRoles(models.RoleClient))
	assert.Empty(t, EligiblePartnerRoles(models.RoleGuest))
	assert.Empty(t, EligiblePartnerRoles(models.Role("intern")))
}

func TestCanMessage(t *testing.T) {
	assert.True(t, CanMessage(models.RoleAdmin))
	assert.True(t, CanMessage(models.RoleStaff))
	assert.True(t, CanMessage(models.RoleClient))
	assert.False(t, CanMessage(models.RoleGuest))
	assert.False(t, CanMessage(models.Role("intern")))
}

func TestEligibleRecipientsFiltersByRoleAndSelf(t *testing.T) {
	selfID := uuid.New()
	dir := &countingDirectory{users: []*models.User{
		{ID: uuid.New(), FullName: "Sam Staff", Role: models.RoleStaff},
	}}

	recipients, err := EligibleRecipients(context.Background(), dir, selfID, models.RoleClient, "sam")
	assert.NoError(t, err)
	assert.Len(t, recipients, 1)

	assert.Equal(t, 1, dir.calls)
	assert.ElementsMatch(t, []models.Role{models.RoleStaff}, dir.filter.Roles)
	assert.Equal(t, selfID, dir.filter.Exclude)
	assert.Equal(t, "sam", dir.filter.Search)
}

func TestEligibleRecipientsGuestSkipsDirectory(t *testing.T) {
	dir := &countingDirectory{users: []*models.User{
		{ID: uuid.New(), FullName: "Sam Staff", Role: models.RoleStaff},
	}}

	recipients, err := EligibleRecipients(context.Background(), dir, uuid.New(), models.RoleGuest, "")
	assert.NoError(t, err)
	assert.Empty(t, recipients)
	assert.NotNil(t, recipients)

	// Guests never hit the user directory at all.
	assert.Equal(t, 0, dir.calls)
}
