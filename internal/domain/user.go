package domain

import "time"

// Role enumerates the account roles known to the platform.
type Role string

const (
	RolePlatformAdmin Role = "ADMIN"
	RoleClientAdmin   Role = "CLIENT_ADMIN"
	RoleClientUser    Role = "CLIENT_USER"
	RoleSupplierAdmin Role = "SUPPLIER_ADMIN"
	RoleSupplierUser  Role = "SUPPLIER_USER"
	RoleSystem        Role = "SYSTEM"
)

var knownRoles = map[Role]struct{}{
	RolePlatformAdmin: {},
	RoleClientAdmin:   {},
	RoleClientUser:    {},
	RoleSupplierAdmin: {},
	RoleSupplierUser:  {},
	RoleSystem:        {},
}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

// User is the credential record owned by the auth service.
// PasswordHash never leaves the repository/service boundary; use Profile for outward projections.
type User struct {
	ID             string
	OrganizationID string
	Email          string
	PasswordHash   string
	Name           string
	Title          *string
	Phone          *string
	Timezone       *string
	Role           Role
	Permissions    []Permission
	IsActive       bool
	LastLogin      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UserProfile is the public projection of a User.
type UserProfile struct {
	ID             string       `json:"id"`
	OrganizationID string       `json:"organization_id"`
	Email          string       `json:"email"`
	Name           string       `json:"name"`
	Title          *string      `json:"title,omitempty"`
	Phone          *string      `json:"phone,omitempty"`
	Timezone       *string      `json:"timezone,omitempty"`
	Role           Role         `json:"role"`
	Permissions    []Permission `json:"permissions"`
	IsActive       bool         `json:"is_active"`
	LastLogin      *time.Time   `json:"last_login,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Profile strips the password hash.
func (u *User) Profile() *UserProfile {
	if u == nil {
		return nil
	}
	perms := make([]Permission, len(u.Permissions))
	copy(perms, u.Permissions)
	return &UserProfile{
		ID:             u.ID,
		OrganizationID: u.OrganizationID,
		Email:          u.Email,
		Name:           u.Name,
		Title:          u.Title,
		Phone:          u.Phone,
		Timezone:       u.Timezone,
		Role:           u.Role,
		Permissions:    perms,
		IsActive:       u.IsActive,
		LastLogin:      u.LastLogin,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

// UserUpdate carries a partial update. Nil fields are left untouched.
type UserUpdate struct {
	Email        *string
	PasswordHash *string
	Name         *string
	Title        *string
	Phone        *string
	Timezone     *string
	Role         *Role
	Permissions  *[]Permission
	IsActive     *bool
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.Email == nil && u.PasswordHash == nil && u.Name == nil && u.Title == nil &&
		u.Phone == nil && u.Timezone == nil && u.Role == nil && u.Permissions == nil && u.IsActive == nil
}
