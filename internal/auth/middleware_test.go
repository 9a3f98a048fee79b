package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/auth-service/internal/domain"
	apperrors "github.com/spec-kit/auth-service/pkg/util/errorutil"
)

type stubVerifier struct {
	profiles map[string]*domain.UserProfile
}

func (s stubVerifier) VerifyToken(_ context.Context, token string) (*domain.UserProfile, error) {
	if p, ok := s.profiles[token]; ok {
		return p, nil
	}
	return nil, apperrors.NewUnauthorized("invalid token")
}

func newGuardedApp(guards ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{"code": de.Code})
		},
	})
	verifier := stubVerifier{profiles: map[string]*domain.UserProfile{
		"admin":    {ID: "u-1", Role: domain.RolePlatformAdmin},
		"manager":  {ID: "u-2", Role: domain.RoleClientAdmin, Permissions: []domain.Permission{domain.PermissionManageUsers}},
		"employee": {ID: "u-3", Role: domain.RoleClientUser, Permissions: []domain.Permission{domain.PermissionViewRequests}},
	}}
	handlers := append([]fiber.Handler{NewAuthMiddleware(verifier).Handle}, guards...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		p, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.ErrInternalServerError
		}
		return c.SendString(p.User.ID)
	})
	app.Get("/", handlers...)
	return app
}

func doGet(t *testing.T, app *fiber.App, header string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(fiber.HeaderAuthorization, header)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestAuthMiddleware_Header(t *testing.T) {
	app := newGuardedApp()

	assert.Equal(t, http.StatusUnauthorized, doGet(t, app, ""))
	assert.Equal(t, http.StatusUnauthorized, doGet(t, app, "Basic abc"))
	assert.Equal(t, http.StatusUnauthorized, doGet(t, app, "Bearer "))
	assert.Equal(t, http.StatusUnauthorized, doGet(t, app, "Bearer unknown"))
	assert.Equal(t, http.StatusOK, doGet(t, app, "Bearer employee"))
	assert.Equal(t, http.StatusOK, doGet(t, app, "bearer employee"))
}

func TestRequirePermission(t *testing.T) {
	app := newGuardedApp(RequirePermission(domain.PermissionManageUsers))

	assert.Equal(t, http.StatusOK, doGet(t, app, "Bearer admin"))
	assert.Equal(t, http.StatusOK, doGet(t, app, "Bearer manager"))
	assert.Equal(t, http.StatusForbidden, doGet(t, app, "Bearer employee"))
}

func TestRequireRole(t *testing.T) {
	app := newGuardedApp(RequireRole(domain.RolePlatformAdmin))

	assert.Equal(t, http.StatusOK, doGet(t, app, "Bearer admin"))
	assert.Equal(t, http.StatusForbidden, doGet(t, app, "Bearer manager"))
}

func TestRequireAuthenticated_WithoutMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/", RequireAuthenticated(), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBearerToken(t *testing.T) {
	tok, err := BearerToken("Bearer  abc ")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = BearerToken("abc")
	assert.Error(t, err)
}
