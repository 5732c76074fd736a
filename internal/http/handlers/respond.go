package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	applog "circulation/internal/log"
	"circulation/internal/services"
)

// public lists the errors whose text may reach the client, most specific first.
var public = []error{
	services.ErrNotAuthenticated,
	services.ErrBadCreds,
	services.ErrInvalidInput,
	services.ErrReaderNotFound,
	services.ErrBookNotFound,
	services.ErrRecordNotFound,
	services.ErrNotFound,
	services.ErrLimitReached,
	services.ErrBookUnavailable,
	services.ErrOutOfStock,
	services.ErrAlreadyReturned,
	services.ErrRenewalNotAllowed,
	services.ErrTotalBelowLoaned,
	services.ErrBookHasActiveLoans,
	services.ErrPolicyNotFound,
	services.ErrBorrowFailed,
}

func statusFor(err error) int {
	switch services.Kind(err) {
	case "not_authenticated":
		return fiber.StatusUnauthorized
	case "invalid_input":
		return fiber.StatusUnprocessableEntity
	case "not_found":
		return fiber.StatusNotFound
	case "limit_reached", "book_unavailable", "out_of_stock", "already_returned",
		"renewal_not_allowed", "total_below_loaned", "book_has_active_loans":
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

func messageFor(err error) string {
	for _, e := range public {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return "something went wrong, please try again"
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"ok": true, "data": data})
}

// fail writes the rejection for err and logs it under action.
func fail(c *fiber.Ctx, action string, err error) error {
	status := statusFor(err)
	c.Status(status)
	switch {
	case status == fiber.StatusInternalServerError && !services.IsIntegrity(err):
		applog.Error(c, action+".fail", err, nil)
	case status == fiber.StatusUnauthorized:
		applog.Security(c, action+".fail", map[string]any{"reason": services.Kind(err)})
	case status != fiber.StatusInternalServerError:
		applog.Info(c, action+".reject", map[string]any{"reason": services.Kind(err)})
	}
	return c.JSON(fiber.Map{"error": messageFor(err)})
}

func badInput(c *fiber.Ctx, action, field string) error {
	applog.Security(c, "validation.fail", map[string]any{"action": action, "field": field})
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid " + field})
}
