package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/auth-service/internal/domain"
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess        = "access"
	TokenTypePasswordReset = "password_reset"
)

// ErrInvalidToken is the umbrella error for every verification failure.
var ErrInvalidToken = errors.New("invalid token")

// Distinguishable verification failures. All of them satisfy errors.Is(err, ErrInvalidToken).
var (
	ErrTokenExpired   = fmt.Errorf("%w: expired", ErrInvalidToken)
	ErrTokenMalformed = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrTokenSignature = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
)

// Claims describes the signed envelope payload.
type Claims struct {
	OrganizationID string              `json:"org,omitempty"`
	Role           domain.Role         `json:"role,omitempty"`
	Permissions    []domain.Permission `json:"permissions,omitempty"`
	Type           string              `json:"type"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 envelopes.
type TokenManager struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	now       func() time.Time
}

// TokenOption customises a TokenManager.
type TokenOption func(*TokenManager)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) TokenOption {
	return func(tm *TokenManager) {
		if now != nil {
			tm.now = now
		}
	}
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret, issuer string, accessTTL time.Duration, opts ...TokenOption) *TokenManager {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	tm := &TokenManager{secret: []byte(secret), issuer: issuer, accessTTL: accessTTL, now: time.Now}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// AccessTTL returns the lifetime of access tokens.
func (tm *TokenManager) AccessTTL() time.Duration {
	return tm.accessTTL
}

// IssueAccessToken signs identity and authorization claims. It returns the token and its lifetime in seconds.
func (tm *TokenManager) IssueAccessToken(userID, orgID string, role domain.Role, permissions []domain.Permission) (string, int64, error) {
	if strings.TrimSpace(userID) == "" {
		return "", 0, errors.New("user id is required")
	}
	perms := make([]domain.Permission, len(permissions))
	copy(perms, permissions)

	now := tm.now()
	claims := &Claims{
		OrganizationID: orgID,
		Role:           role,
		Permissions:    perms,
		Type:           TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tm.issuer,
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.accessTTL)),
		},
	}
	signed, err := tm.sign(claims)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(tm.accessTTL / time.Second), nil
}

// IssueResetToken signs a short-lived password reset envelope. It returns the token, its jti and its expiry.
func (tm *TokenManager) IssueResetToken(userID string, ttl time.Duration) (string, string, time.Time, error) {
	if ttl <= 0 {
		return "", "", time.Time{}, errors.New("reset ttl must be positive")
	}
	now := tm.now()
	expiresAt := now.Add(ttl)
	jti := uuid.NewString()
	claims := &Claims{
		Type: TokenTypePasswordReset,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tm.issuer,
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := tm.sign(claims)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, jti, expiresAt, nil
}

// Verify checks signature, issuer and expiry and returns the claims of any token type.
func (tm *TokenManager) Verify(tokenStr string) (*Claims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrTokenMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(tm.now),
	)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return tm.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// VerifyAccessToken verifies a token and requires it to be an access token.
func (tm *TokenManager) VerifyAccessToken(tokenStr string) (*Claims, error) {
	claims, err := tm.Verify(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeAccess {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.Type)
	}
	return claims, nil
}

func (tm *TokenManager) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrTokenSignature
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
