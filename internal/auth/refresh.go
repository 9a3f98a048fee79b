package auth

import "github.com/google/uuid"

// NewRefreshTokenValue returns an opaque capability token: a random v4 UUID (122 bits of entropy).
// It is looked up by exact match and carries no structure of its own.
func NewRefreshTokenValue() string {
	return uuid.NewString()
}
