package dto

import (
	"strings"

	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/service"
)

// UpdateUserRequest payload for profile edits.
type UpdateUserRequest struct {
	Email    *string `json:"email,omitempty"`
	Name     *string `json:"name,omitempty"`
	Title    *string `json:"title,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Timezone *string `json:"timezone,omitempty"`
}

// Validate checks provided fields and converts them into a profile update.
func (r UpdateUserRequest) Validate() (service.ProfileUpdate, error) {
	var errs []FieldError
	if r.Email != nil {
		errs = validateEmail(errs, "email", *r.Email)
	}
	if r.Name != nil {
		errs = requireString(errs, "name", *r.Name)
	}
	errs = optionalString(errs, "title", r.Title)
	errs = optionalString(errs, "phone", r.Phone)
	errs = optionalString(errs, "timezone", r.Timezone)
	if r.Email == nil && r.Name == nil && r.Title == nil && r.Phone == nil && r.Timezone == nil {
		errs = append(errs, FieldError{Field: "body", Message: "at least one field is required"})
	}
	if err := ValidationError(errs); err != nil {
		return service.ProfileUpdate{}, err
	}

	update := service.ProfileUpdate{Email: r.Email, Title: r.Title, Phone: r.Phone, Timezone: r.Timezone}
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		update.Name = &name
	}
	return update, nil
}

// UpdatePermissionsRequest replaces a permission set.
type UpdatePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// Validate normalizes the permission list.
func (r UpdatePermissionsRequest) Validate() ([]domain.Permission, error) {
	if r.Permissions == nil {
		return nil, ValidationError([]FieldError{{Field: "permissions", Message: "permissions is required"}})
	}
	perms, err := domain.NormalizePermissions(r.Permissions)
	if err != nil {
		return nil, ValidationError([]FieldError{{Field: "permissions", Message: err.Error()}})
	}
	return perms, nil
}

// UpdateRoleRequest changes a role.
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// Validate parses the role.
func (r UpdateRoleRequest) Validate() (domain.Role, error) {
	role := domain.Role(strings.ToUpper(strings.TrimSpace(r.Role)))
	if !role.Valid() {
		return "", ValidationError([]FieldError{{Field: "role", Message: "role is not recognized"}})
	}
	return role, nil
}
