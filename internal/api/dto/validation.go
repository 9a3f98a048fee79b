package dto

import (
	"net/mail"
	"strings"

	"github.com/spec-kit/auth-service/pkg/util/errorutil"
)

// MinPasswordLength is the shortest password accepted on registration and password changes.
const MinPasswordLength = 8

const maxFieldLength = 255

// FieldError describes a single invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError folds field errors into a VALIDATION_FAILED domain error, or nil when there are none.
func ValidationError(errs []FieldError) error {
	if len(errs) == 0 {
		return nil
	}
	details := make(map[string]any, len(errs))
	for _, e := range errs {
		details[e.Field] = e.Message
	}
	return errorutil.NewValidationError("request validation failed", details)
}

func requireString(errs []FieldError, field, value string) []FieldError {
	v := strings.TrimSpace(value)
	switch {
	case v == "":
		return append(errs, FieldError{Field: field, Message: field + " is required"})
	case len(v) > maxFieldLength:
		return append(errs, FieldError{Field: field, Message: field + " must be at most 255 characters"})
	}
	return errs
}

func optionalString(errs []FieldError, field string, value *string) []FieldError {
	if value != nil && len(*value) > maxFieldLength {
		return append(errs, FieldError{Field: field, Message: field + " must be at most 255 characters"})
	}
	return errs
}

func validateEmail(errs []FieldError, field, value string) []FieldError {
	if strings.TrimSpace(value) == "" {
		return append(errs, FieldError{Field: field, Message: field + " is required"})
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return append(errs, FieldError{Field: field, Message: field + " must be a valid email address"})
	}
	return errs
}

func validateNewPassword(errs []FieldError, field, value string) []FieldError {
	if len(value) < MinPasswordLength {
		return append(errs, FieldError{Field: field, Message: field + " must be at least 8 characters"})
	}
	// bcrypt ignores input beyond 72 bytes.
	if len(value) > 72 {
		return append(errs, FieldError{Field: field, Message: field + " must be at most 72 bytes"})
	}
	return errs
}
