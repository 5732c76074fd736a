package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"circulation/internal/log"
	"circulation/internal/services"
	"circulation/internal/validate"
)

type AuthHandler struct {
	Auth *services.AuthService
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func ensureSID(c *fiber.Ctx) string {
	sid := c.Cookies("sid")
	if sid == "" {
		sid = uuid.NewString()
		c.Cookie(&fiber.Cookie{
			Name:     "sid",
			Value:    sid,
			Path:     "/",
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
			Secure:   false,
		})
	}
	return sid
}

// POST /api/v1/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var in loginBody
	if err := c.BodyParser(&in); err != nil {
		return badInput(c, "auth.login", "body")
	}
	email, okEmail := validate.Email(in.Email)
	if !okEmail || !validate.Password(in.Password) {
		log.Security(c, "auth.login.fail", map[string]any{"email": in.Email, "reason": "bad_format"})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": services.ErrBadCreds.Error()})
	}

	sid := ensureSID(c)
	u, err := h.Auth.Login(c.UserContext(), sid, email, in.Password)
	if err != nil {
		log.Security(c, "auth.login.fail", map[string]any{"email": email})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": services.ErrBadCreds.Error()})
	}

	c.Locals("user_id", u.ID)
	log.Audit(c, "auth.login.success", map[string]any{"email": email})
	return ok(c, fiber.Map{"id": u.ID, "name": u.Name, "code": u.Code, "role": u.Role})
}

// POST /api/v1/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	sid := c.Cookies("sid")
	if sid != "" {
		if err := h.Auth.Logout(c.UserContext(), sid); err != nil {
			log.Error(c, "auth.logout.fail", err, nil)
		}
	}
	c.Cookie(&fiber.Cookie{
		Name:     "sid",
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Secure:   false,
		Expires:  time.Now().Add(-1 * time.Hour),
	})
	log.Audit(c, "auth.logout", nil)
	return ok(c, nil)
}

// GET /api/v1/csrf hands the token to clients that cannot read the cookie.
func (h *AuthHandler) CSRF(c *fiber.Ctx) error {
	tok, _ := c.Locals("csrf").(string)
	if tok == "" {
		tok = c.Cookies("csrf_")
	}
	return ok(c, fiber.Map{"csrfToken": tok})
}
