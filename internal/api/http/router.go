package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/auth-service/internal/api/http/handlers"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
	// CredentialLimiter throttles login, registration and reset endpoints per client IP. Nil disables it.
	CredentialLimiter *IPRateLimiter
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api/v1")
	throttled := cfg.CredentialLimiter.Handler()

	authGroup := api.Group("/auth")
	authGroup.Post("/register", throttled, cfg.Auth.Register)
	authGroup.Post("/login", throttled, cfg.Auth.Login)
	authGroup.Post("/refresh-token", cfg.Auth.RefreshToken)
	authGroup.Post("/logout", cfg.Auth.Logout)
	authGroup.Post("/reset-password", throttled, cfg.Auth.ResetPassword)
	authGroup.Post("/confirm-reset-password", throttled, cfg.Auth.ConfirmResetPassword)

	authenticated := cfg.AuthMiddleware.Handle
	authGroup.Post("/logout-all", authenticated, cfg.Auth.LogoutAll)
	authGroup.Post("/change-password", throttled, authenticated, cfg.Auth.ChangePassword)
	authGroup.Post("/verify", authenticated, cfg.Auth.Verify)
	authGroup.Get("/sessions", authenticated, cfg.Auth.Sessions)

	admin := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequirePermission(domain.PermissionManageUsers)}

	users := api.Group("/users", admin...)
	users.Post("/", cfg.Users.Create)
	users.Get("/:id", cfg.Users.Get)
	users.Put("/:id", cfg.Users.Update)
	users.Put("/:id/permissions", cfg.Users.SetPermissions)
	users.Put("/:id/role", cfg.Users.SetRole)
	users.Put("/:id/activate", cfg.Users.Activate)
	users.Put("/:id/deactivate", cfg.Users.Deactivate)

	orgs := api.Group("/organizations", admin...)
	orgs.Get("/:organizationId/users", cfg.Users.ListByOrganization)
}
