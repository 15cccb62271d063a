package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role classifies what a user may do in the escrow lifecycle.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleVendor Role = "vendor"
	RoleAdmin  Role = "admin"
)

// ParseRole converts an external role label into a Role.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleBuyer, RoleVendor, RoleAdmin:
		return Role(s), true
	}
	return "", false
}

// User is the projection of an externally verified identity. The identity
// provider owns authentication; the engine only reads id, role and the
// active flag.
type User struct {
	ID          uuid.UUID `json:"id"`
	ExternalUID string    `json:"-"` // Subject identifier from the token issuer
	Email       *string   `json:"email,omitempty"`
	Role        Role      `json:"role"`
	IsActive    bool      `json:"is_active"`
	KYCVerified bool      `json:"kyc_verified"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsAdmin returns true for platform administrators.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
