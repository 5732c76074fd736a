package handlers

import (
	"github.com/gofiber/fiber/v2"

	"circulation/internal/domain"
	applog "circulation/internal/log"
	"circulation/internal/services"
)

// AttachUser puts the session user, if any, into Locals("user") and Locals("user_id").
func AttachUser(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sid := c.Cookies("sid"); sid != "" {
			if u, err := auth.CurrentUser(c.UserContext(), sid); err == nil && u != nil {
				c.Locals("user", u)
				c.Locals("user_id", u.ID)
			}
		}
		return c.Next()
	}
}

func currentUser(c *fiber.Ctx) *domain.User {
	u, _ := c.Locals("user").(*domain.User)
	return u
}

// RequireUser rejects anonymous callers with 401.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if currentUser(c) == nil {
			applog.Security(c, "access.denied.user", nil)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": services.ErrNotAuthenticated.Error()})
		}
		return c.Next()
	}
}

// RequireAdmin rejects anonymous callers with 401 and non-staff with 403.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		u := currentUser(c)
		if u == nil {
			applog.Security(c, "access.denied.admin", map[string]any{"reason": "anonymous"})
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": services.ErrNotAuthenticated.Error()})
		}
		if !u.IsAdmin() {
			applog.Security(c, "access.denied.admin", map[string]any{"role": u.Role})
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "access denied"})
		}
		return c.Next()
	}
}
