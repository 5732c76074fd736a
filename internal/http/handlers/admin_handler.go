package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"circulation/internal/domain"
	applog "circulation/internal/log"
	"circulation/internal/repos"
	"circulation/internal/services"
	"circulation/internal/validate"
)

// AdminHandler is the circulation desk: staff-assisted loans, the record
// listing and inventory maintenance.
type AdminHandler struct {
	Circ *services.CirculationService
	Inv  *services.InventoryService
}

type staffBorrowBody struct {
	UserCode string `json:"userCode"`
	BookID   string `json:"bookId"`
}

type staffReturnBody struct {
	RecordID   string   `json:"recordId"`
	FineAmount *float64 `json:"fineAmount"`
}

type totalBody struct {
	TotalQty *int `json:"totalQty"`
}

// GET /admin/borrows?status=&keyword=&page=&pageSize=
func (h *AdminHandler) Records(c *fiber.Ctx) error {
	status, okStatus := validate.Status(c.Query("status"))
	if !okStatus {
		return badInput(c, "admin.borrows.list", "status")
	}
	keyword, okKw := validate.Keyword(c.Query("keyword"))
	if !okKw {
		return badInput(c, "admin.borrows.list", "keyword")
	}
	size, _ := strconv.Atoi(c.Query("pageSize"))

	f := repos.RecordFilter{
		Status:   domain.LoanStatus(status),
		Keyword:  keyword,
		Page:     validate.Page(c.Query("page")),
		PageSize: size,
	}.Normalize()
	list, total, err := h.Circ.ListRecords(c.UserContext(), f)
	if err != nil {
		return fail(c, "admin.borrows.list", err)
	}

	rows := make([]fiber.Map, 0, len(list))
	for _, r := range list {
		rows = append(rows, recordJSON(r))
	}
	return ok(c, fiber.Map{"records": rows, "total": total, "page": f.Page, "pageSize": f.PageSize})
}

func recordJSON(r domain.LoanRecordView) fiber.Map {
	m := fiber.Map{
		"recordId":   r.RecordID,
		"userId":     r.ReaderID,
		"userName":   r.ReaderName,
		"userCode":   r.ReaderCode,
		"bookId":     r.BookID,
		"bookTitle":  r.BookTitle,
		"borrowAt":   r.BorrowAt,
		"dueAt":      r.DueAt,
		"renewCount": r.RenewCount,
		"status":     r.Status,
		"returnAt":   nil,
		"fineAmount": nil,
		"handledBy":  nil,
	}
	if r.ReturnAt.Valid {
		m["returnAt"] = r.ReturnAt.Time
	}
	if r.FineAmount.Valid {
		m["fineAmount"] = r.FineAmount.Float64
	}
	if r.HandledBy.Valid {
		m["handledBy"] = r.HandledBy.String
		m["handledByName"] = r.HandledByName.String
	}
	return m
}

// POST /admin/borrows/borrow
func (h *AdminHandler) StaffBorrow(c *fiber.Ctx) error {
	var in staffBorrowBody
	if err := c.BodyParser(&in); err != nil {
		return badInput(c, "admin.borrow", "body")
	}
	code, okCode := validate.Code(in.UserCode)
	if !okCode {
		return badInput(c, "admin.borrow", "userCode")
	}
	bookID, okID := validate.ID(in.BookID)
	if !okID {
		return badInput(c, "admin.borrow", "bookId")
	}

	staff := currentUser(c)
	id, err := h.Circ.StaffBorrow(requestContext(c), code, bookID, staff.ID)
	if err != nil {
		return fail(c, "admin.borrow", err)
	}
	applog.Audit(c, "admin.borrow", map[string]any{"record_id": id, "user_code": code, "book_id": bookID})
	return ok(c, fiber.Map{"recordId": id})
}

// POST /admin/borrows/return
func (h *AdminHandler) StaffReturn(c *fiber.Ctx) error {
	var in staffReturnBody
	if err := c.BodyParser(&in); err != nil {
		return badInput(c, "admin.return", "body")
	}
	recordID, okID := validate.ID(in.RecordID)
	if !okID {
		return badInput(c, "admin.return", "recordId")
	}
	if !validate.Fine(in.FineAmount) {
		return badInput(c, "admin.return", "fineAmount")
	}

	staff := currentUser(c)
	err := h.Circ.Return(requestContext(c), services.ReturnRequest{
		RecordID:   recordID,
		FineAmount: in.FineAmount,
		HandledBy:  staff.ID,
	})
	if err != nil {
		return fail(c, "admin.return", err)
	}
	fields := map[string]any{"record_id": recordID}
	if in.FineAmount != nil {
		fields["fine_amount"] = *in.FineAmount
	}
	applog.Audit(c, "admin.return", fields)
	return ok(c, nil)
}

// PUT /admin/books/:id/total
func (h *AdminHandler) AdjustTotal(c *fiber.Ctx) error {
	bookID, okID := validate.ID(c.Params("id"))
	if !okID {
		return badInput(c, "admin.books.total", "id")
	}
	var in totalBody
	if err := c.BodyParser(&in); err != nil || in.TotalQty == nil {
		return badInput(c, "admin.books.total", "totalQty")
	}
	total, okTotal := validate.Total(*in.TotalQty)
	if !okTotal {
		return badInput(c, "admin.books.total", "totalQty")
	}

	b, err := h.Inv.AdjustBookTotal(c.UserContext(), bookID, total)
	if err != nil {
		return fail(c, "admin.books.total", err)
	}
	applog.Audit(c, "admin.books.total", map[string]any{"book_id": bookID, "total_qty": b.TotalQty, "available_qty": b.AvailableQty})
	return ok(c, fiber.Map{"bookId": b.ID, "totalQty": b.TotalQty, "availableQty": b.AvailableQty})
}

// DELETE /admin/books/:id
func (h *AdminHandler) RemoveBook(c *fiber.Ctx) error {
	bookID, okID := validate.ID(c.Params("id"))
	if !okID {
		return badInput(c, "admin.books.delete", "id")
	}
	if err := h.Inv.RemoveBook(c.UserContext(), bookID); err != nil {
		return fail(c, "admin.books.delete", err)
	}
	applog.Audit(c, "admin.books.delete", map[string]any{"book_id": bookID})
	return ok(c, nil)
}
