package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	jsoniter "github.com/json-iterator/go"

	applog "circulation/internal/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Limits tunes the rate limiters.
type Limits struct {
	RequestsPerMinute int // per IP, all routes
	LoginAttempts     int // per IP per 10 minutes
	AccessLog         bool
}

var DefaultLimits = Limits{RequestsPerMinute: 60, LoginAttempts: 5, AccessLog: true}

// NewApp builds the fiber app with middleware and every route.
func NewApp(d *Deps, lim Limits) *fiber.App {
	app := fiber.New(fiber.Config{
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
		BodyLimit:   1 << 20, // 1 MiB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "something went wrong, please try again"
			var fe *fiber.Error
			if errors.As(err, &fe) && fe.Code < 500 {
				code, msg = fe.Code, fe.Message
			}
			if code >= 500 {
				applog.Error(c, "server.error", err, nil)
			}
			return c.Status(code).JSON(fiber.Map{"error": msg})
		},
	})

	// ---------- Middlewares ----------
	app.Use(requestid.New())
	if lim.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
		}))
	}
	app.Use(helmet.New())
	app.Use(AttachUser(d.Auth))
	app.Use(limiter.New(limiter.Config{
		Max:        lim.RequestsPerMinute,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			p := c.Path()
			return p == "/healthz" || p == "/metrics"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.global.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	}))
	app.Use(csrf.New(csrf.Config{
		KeyLookup:      "header:X-CSRF-Token",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		CookieSecure:   false, // set true behind HTTPS
		ContextKey:     "csrf",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Security(c, "csrf.fail", map[string]any{"error": err.Error()})
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "security check failed, refresh and try again"})
		},
	}))

	// ---------- Ops ----------
	app.Get("/healthz", func(c *fiber.Ctx) error {
		out := fiber.Map{"ok": true}
		if hc, ok := d.Events.(interface{ IsHealthy() bool }); ok {
			out["events"] = hc.IsHealthy()
		}
		return c.JSON(out)
	})
	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))
	}

	// ---------- API ----------
	api := app.Group("/api/v1")
	api.Get("/csrf", d.AuthHandler.CSRF)
	api.Post("/login", limiter.New(limiter.Config{
		Max:        lim.LoginAttempts,
		Expiration: 10 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.login.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too many attempts, please try again later"})
		},
	}), d.AuthHandler.Login)
	api.Post("/logout", d.AuthHandler.Logout)
	api.Get("/availability", d.InventoryHandler.Check)

	borrow := api.Group("/borrow", RequireUser())
	borrow.Post("/borrow", d.BorrowHandler.Borrow)
	borrow.Post("/return", d.BorrowHandler.Return)
	borrow.Post("/renew", d.BorrowHandler.Renew)
	borrow.Get("/current", d.BorrowHandler.Current)

	// ---------- Admin ----------
	admin := app.Group("/admin", RequireAdmin())
	admin.Get("/borrows", d.AdminHandler.Records)
	admin.Post("/borrows/borrow", d.AdminHandler.StaffBorrow)
	admin.Post("/borrows/return", d.AdminHandler.StaffReturn)
	admin.Put("/books/:id/total", d.AdminHandler.AdjustTotal)
	admin.Delete("/books/:id", d.AdminHandler.RemoveBook)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	})
	return app
}
