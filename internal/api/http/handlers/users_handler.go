package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-service/internal/api/dto"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/service"
)

// platformOnlyPermissions may only be granted by platform principals.
var platformOnlyPermissions = []domain.Permission{
	domain.PermissionManageOrganizations,
	domain.PermissionManageSystem,
}

// UsersHandler exposes account administration endpoints.
// Callers outside the platform roles only see users of their own organization.
type UsersHandler struct {
	users    *service.UserService
	sessions *service.SessionService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(users *service.UserService, sessions *service.SessionService) *UsersHandler {
	return &UsersHandler{users: users, sessions: sessions}
}

// Get handles GET /api/v1/users/:id.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	profile, err := h.target(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": profile})
}

// ListByOrganization handles GET /api/v1/organizations/:organizationId/users.
func (h *UsersHandler) ListByOrganization(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}
	orgID := c.Params("organizationId")
	if !auth.IsPlatformPrincipal(principal) && orgID != principal.User.OrganizationID {
		return fiber.NewError(http.StatusForbidden, "organization not accessible")
	}

	profiles, err := h.users.ListByOrganization(c.UserContext(), orgID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": profiles})
}

// Create handles POST /api/v1/users.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	input, err := req.Validate()
	if err != nil {
		return err
	}
	if !auth.IsPlatformPrincipal(principal) {
		if input.OrganizationID != principal.User.OrganizationID {
			return fiber.NewError(http.StatusForbidden, "organization not accessible")
		}
		if err := checkGrant(input.Role, input.Permissions); err != nil {
			return err
		}
	}

	profile, err := h.sessions.Register(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": profile})
}

// Update handles PUT /api/v1/users/:id.
func (h *UsersHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	update, err := req.Validate()
	if err != nil {
		return err
	}
	return h.mutate(c, func(ctx context.Context, id string) (*domain.UserProfile, error) {
		return h.users.UpdateProfile(ctx, id, update)
	})
}

// SetPermissions handles PUT /api/v1/users/:id/permissions.
func (h *UsersHandler) SetPermissions(c *fiber.Ctx) error {
	var req dto.UpdatePermissionsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	perms, err := req.Validate()
	if err != nil {
		return err
	}
	if principal, ok := auth.PrincipalFromContext(c); ok && !auth.IsPlatformPrincipal(principal) {
		if err := checkGrant("", perms); err != nil {
			return err
		}
	}
	return h.mutate(c, func(ctx context.Context, id string) (*domain.UserProfile, error) {
		return h.users.SetPermissions(ctx, id, perms)
	})
}

// SetRole handles PUT /api/v1/users/:id/role.
func (h *UsersHandler) SetRole(c *fiber.Ctx) error {
	var req dto.UpdateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	role, err := req.Validate()
	if err != nil {
		return err
	}
	if principal, ok := auth.PrincipalFromContext(c); ok && !auth.IsPlatformPrincipal(principal) {
		if err := checkGrant(role, nil); err != nil {
			return err
		}
	}
	return h.mutate(c, func(ctx context.Context, id string) (*domain.UserProfile, error) {
		return h.users.SetRole(ctx, id, role)
	})
}

// Activate handles PUT /api/v1/users/:id/activate.
func (h *UsersHandler) Activate(c *fiber.Ctx) error {
	return h.mutate(c, h.users.Activate)
}

// Deactivate handles PUT /api/v1/users/:id/deactivate.
func (h *UsersHandler) Deactivate(c *fiber.Ctx) error {
	return h.mutate(c, h.users.Deactivate)
}

func (h *UsersHandler) mutate(c *fiber.Ctx, fn func(context.Context, string) (*domain.UserProfile, error)) error {
	target, err := h.target(c)
	if err != nil {
		return err
	}
	profile, err := fn(c.UserContext(), target.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": profile})
}

// target loads the :id user and hides users of other organizations behind a not-found.
func (h *UsersHandler) target(c *fiber.Ctx) (*domain.UserProfile, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, fiber.ErrUnauthorized
	}
	profile, err := h.users.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if !auth.IsPlatformPrincipal(principal) && profile.OrganizationID != principal.User.OrganizationID {
		return nil, service.ErrUserNotFound
	}
	return profile, nil
}

func checkGrant(role domain.Role, perms []domain.Permission) error {
	if role == domain.RolePlatformAdmin || role == domain.RoleSystem {
		return fiber.NewError(http.StatusForbidden, "role "+string(role)+" cannot be granted")
	}
	for _, p := range platformOnlyPermissions {
		if domain.HasPermission(perms, p) {
			return fiber.NewError(http.StatusForbidden, "permission "+string(p)+" cannot be granted")
		}
	}
	return nil
}
