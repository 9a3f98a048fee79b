package dto

import (
	"strings"

	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/service"
)

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	OrganizationID string   `json:"organization_id"`
	Email          string   `json:"email"`
	Password       string   `json:"password"`
	Name           string   `json:"name"`
	Title          *string  `json:"title,omitempty"`
	Phone          *string  `json:"phone,omitempty"`
	Timezone       *string  `json:"timezone,omitempty"`
	Role           string   `json:"role"`
	Permissions    []string `json:"permissions"`
}

// Validate checks the payload and converts it into service input.
func (r RegisterRequest) Validate() (service.RegisterInput, error) {
	var errs []FieldError
	errs = requireString(errs, "organization_id", r.OrganizationID)
	errs = validateEmail(errs, "email", r.Email)
	errs = validateNewPassword(errs, "password", r.Password)
	errs = requireString(errs, "name", r.Name)
	errs = optionalString(errs, "title", r.Title)
	errs = optionalString(errs, "phone", r.Phone)
	errs = optionalString(errs, "timezone", r.Timezone)

	role := domain.Role(strings.ToUpper(strings.TrimSpace(r.Role)))
	if !role.Valid() {
		errs = append(errs, FieldError{Field: "role", Message: "role is not recognized"})
	}
	perms, err := domain.NormalizePermissions(r.Permissions)
	if err != nil {
		errs = append(errs, FieldError{Field: "permissions", Message: err.Error()})
	}
	if err := ValidationError(errs); err != nil {
		return service.RegisterInput{}, err
	}

	return service.RegisterInput{
		OrganizationID: strings.TrimSpace(r.OrganizationID),
		Email:          r.Email,
		Password:       r.Password,
		Name:           strings.TrimSpace(r.Name),
		Title:          r.Title,
		Phone:          r.Phone,
		Timezone:       r.Timezone,
		Role:           role,
		Permissions:    perms,
	}, nil
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks required fields.
func (r LoginRequest) Validate() error {
	var errs []FieldError
	errs = validateEmail(errs, "email", r.Email)
	if r.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "password is required"})
	}
	return ValidationError(errs)
}

// RefreshTokenRequest carries a refresh token for refresh and logout.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Validate checks required fields.
func (r RefreshTokenRequest) Validate() error {
	var errs []FieldError
	if strings.TrimSpace(r.RefreshToken) == "" {
		errs = append(errs, FieldError{Field: "refresh_token", Message: "refresh_token is required"})
	}
	return ValidationError(errs)
}

// ChangePasswordRequest payload for authenticated password changes.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Validate checks required fields.
func (r ChangePasswordRequest) Validate() error {
	var errs []FieldError
	if r.CurrentPassword == "" {
		errs = append(errs, FieldError{Field: "current_password", Message: "current_password is required"})
	}
	errs = validateNewPassword(errs, "new_password", r.NewPassword)
	return ValidationError(errs)
}

// ResetPasswordRequest starts a password reset.
type ResetPasswordRequest struct {
	Email string `json:"email"`
}

// Validate checks required fields.
func (r ResetPasswordRequest) Validate() error {
	return ValidationError(validateEmail(nil, "email", r.Email))
}

// ConfirmResetPasswordRequest completes a password reset.
type ConfirmResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// Validate checks required fields.
func (r ConfirmResetPasswordRequest) Validate() error {
	var errs []FieldError
	if strings.TrimSpace(r.Token) == "" {
		errs = append(errs, FieldError{Field: "token", Message: "token is required"})
	}
	errs = validateNewPassword(errs, "new_password", r.NewPassword)
	return ValidationError(errs)
}

// AckResponse acknowledges operations without a payload.
type AckResponse struct {
	Success bool `json:"success"`
}
