package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"circulation/internal/events"
	applog "circulation/internal/log"
	"circulation/internal/services"
	"circulation/internal/validate"
)

// BorrowHandler serves the self-service reader flow. The caller identity
// always comes from the session, never from the body.
type BorrowHandler struct {
	Circ *services.CirculationService
}

type bookBody struct {
	BookID string `json:"bookId"`
}

type recordBody struct {
	RecordID string `json:"recordId"`
}

// requestContext carries the request id into published events.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
		ctx = events.WithCorrelationID(ctx, rid)
	}
	return ctx
}

// POST /api/v1/borrow/borrow
func (h *BorrowHandler) Borrow(c *fiber.Ctx) error {
	var in bookBody
	if err := c.BodyParser(&in); err != nil {
		return badInput(c, "borrow", "body")
	}
	bookID, okID := validate.ID(in.BookID)
	if !okID {
		return badInput(c, "borrow", "bookId")
	}

	u := currentUser(c)
	id, err := h.Circ.Borrow(requestContext(c), services.BorrowRequest{ReaderID: u.ID, BookID: bookID})
	if err != nil {
		return fail(c, "borrow", err)
	}
	applog.Audit(c, "borrow", map[string]any{"record_id": id, "book_id": bookID})
	return ok(c, fiber.Map{"recordId": id})
}

// POST /api/v1/borrow/return
func (h *BorrowHandler) Return(c *fiber.Ctx) error {
	recordID, okID := h.recordID(c)
	if !okID {
		return badInput(c, "return", "recordId")
	}

	u := currentUser(c)
	if err := h.Circ.Return(requestContext(c), services.ReturnRequest{ReaderID: u.ID, RecordID: recordID}); err != nil {
		return fail(c, "return", err)
	}
	applog.Audit(c, "return", map[string]any{"record_id": recordID})
	return ok(c, nil)
}

// POST /api/v1/borrow/renew
func (h *BorrowHandler) Renew(c *fiber.Ctx) error {
	recordID, okID := h.recordID(c)
	if !okID {
		return badInput(c, "renew", "recordId")
	}

	u := currentUser(c)
	if err := h.Circ.Renew(requestContext(c), u.ID, recordID); err != nil {
		return fail(c, "renew", err)
	}
	applog.Audit(c, "renew", map[string]any{"record_id": recordID})
	return ok(c, nil)
}

// GET /api/v1/borrow/current
func (h *BorrowHandler) Current(c *fiber.Ctx) error {
	list, err := h.Circ.ListActiveLoans(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return fail(c, "borrow.current", err)
	}
	return ok(c, list)
}

func (h *BorrowHandler) recordID(c *fiber.Ctx) (string, bool) {
	var in recordBody
	if err := c.BodyParser(&in); err != nil {
		return "", false
	}
	return validate.ID(in.RecordID)
}
