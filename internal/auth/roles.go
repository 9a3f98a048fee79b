package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-service/internal/domain"
)

// RequireAuthenticated ensures a principal is present.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		return c.Next()
	}
}

// RequireRole ensures the principal has one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.User.Role]; !exists {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}

// RequirePermission ensures the principal carries every listed permission.
// Platform admins and the system role pass unconditionally.
func RequirePermission(required ...domain.Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if IsPlatformPrincipal(principal) {
			return c.Next()
		}
		for _, perm := range required {
			if !principal.HasPermission(perm) {
				return fiber.NewError(http.StatusForbidden, "missing permission "+string(perm))
			}
		}
		return c.Next()
	}
}

// IsPlatformPrincipal reports whether the caller acts across organizations.
func IsPlatformPrincipal(p *Principal) bool {
	if p == nil || p.User == nil {
		return false
	}
	return p.User.Role == domain.RolePlatformAdmin || p.User.Role == domain.RoleSystem
}
