package models

import "time"

// Actor is the caller of an operation as resolved by the auth collaborator.
type Actor struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

// IsStaffLike reports roles that act on behalf of a warehouse.
func (a Actor) IsStaffLike() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin
}

// SystemActor is used for transitions driven by other services.
var SystemActor = Actor{ID: 0, Role: RoleSystem}

// Customer is the booking owner as known to the directory.
type Customer struct {
	ID             int64          `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Email          string         `json:"email" yaml:"email"`
	MembershipTier MembershipTier `json:"membership_tier" yaml:"membership_tier"`
	CreatedAt      time.Time      `json:"created_at" yaml:"-"`
}
