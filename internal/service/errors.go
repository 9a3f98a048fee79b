package service

import (
	"net/http"

	"github.com/spec-kit/auth-service/pkg/util/errorutil"
)

// Session and user service failures. Compare with errors.Is.
var (
	ErrDuplicateEmail               = errorutil.NewDomainError("DUPLICATE_EMAIL", "email already registered", http.StatusConflict, nil)
	ErrInvalidCredentials           = errorutil.NewDomainError("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, nil)
	ErrAccountInactive              = errorutil.NewDomainError("ACCOUNT_INACTIVE", "account is inactive", http.StatusForbidden, nil)
	ErrInvalidRefreshToken          = errorutil.NewDomainError("INVALID_REFRESH_TOKEN", "invalid refresh token", http.StatusUnauthorized, nil)
	ErrRefreshTokenExpiredOrRevoked = errorutil.NewDomainError("REFRESH_TOKEN_EXPIRED_OR_REVOKED", "refresh token expired or revoked", http.StatusUnauthorized, nil)
	ErrUserNotFound                 = errorutil.NewDomainError("USER_NOT_FOUND", "user not found", http.StatusNotFound, nil)
	ErrIncorrectCurrentPassword     = errorutil.NewDomainError("INCORRECT_CURRENT_PASSWORD", "current password is incorrect", http.StatusUnauthorized, nil)
	ErrInvalidOrExpiredToken        = errorutil.NewDomainError("INVALID_OR_EXPIRED_TOKEN", "invalid or expired token", http.StatusUnauthorized, nil)
	ErrWrongTokenType               = errorutil.NewDomainError("WRONG_TOKEN_TYPE", "wrong token type", http.StatusUnauthorized, nil)
)

// outcome labels an operation result for metrics: "success" or the error code.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return errorutil.ToDomainError(err).Code
}
