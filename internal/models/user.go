package models

import (
	"github.com/google/uuid"
)

// Role classifies a user in the directory. Messaging eligibility is
// decided purely from this value.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
	RoleClient Role = "client"
	RoleGuest  Role = "guest"
)

// ValidRole reports whether r is one of the four known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleClient, RoleGuest:
		return true
	}
	return false
}

// User is a directory entry. The directory is owned by the user/auth
// collaborator; this core only reads it.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	FullName  string    `json:"fullName" db:"full_name"`
	Email     string    `json:"email" db:"email"`
	Role      Role      `json:"role" db:"role"`
	AvatarURL *string   `json:"avatarUrl,omitempty" db:"avatar_url"`
}
