package handlers

import (
	"github.com/gofiber/fiber/v2"

	"circulation/internal/services"
	"circulation/internal/validate"
)

type InventoryHandler struct {
	Inv *services.InventoryService
}

// GET /api/v1/availability?bookId=
func (h *InventoryHandler) Check(c *fiber.Ctx) error {
	bookID, okID := validate.ID(c.Query("bookId"))
	if !okID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing or invalid bookId",
		})
	}

	avail, err := h.Inv.CheckAvailability(c.UserContext(), bookID)
	if err != nil {
		return fail(c, "availability", err)
	}
	return ok(c, avail)
}
