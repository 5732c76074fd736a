package domain

import (
	"database/sql"
	"time"
)

// BookState is the lifecycle of a catalog entry. DELETED is a soft delete:
// the row stays for loan history but can no longer be lent.
type BookState string

const (
	BookEnabled  BookState = "ENABLED"
	BookDisabled BookState = "DISABLED"
	BookDeleted  BookState = "DELETED"
)

type Book struct {
	ID           string    `db:"id"`
	Title        string    `db:"title"`
	Author       string    `db:"author"`
	Location     string    `db:"location"`
	TotalQty     int       `db:"total_qty"`
	AvailableQty int       `db:"available_qty"`
	State        BookState `db:"state"`
}

// Loaned is the number of copies currently out.
func (b Book) Loaned() int { return b.TotalQty - b.AvailableQty }

func (b Book) Lendable() bool { return b.State == BookEnabled }

type LoanStatus string

const (
	LoanActive   LoanStatus = "ACTIVE"
	LoanReturned LoanStatus = "RETURNED"
	// LoanOverdue is only ever derived (ACTIVE with due_at in the past), never stored.
	LoanOverdue LoanStatus = "OVERDUE"
)

type LoanRecord struct {
	ID         string          `db:"id"`
	ReaderID   string          `db:"reader_id"`
	BookID     string          `db:"book_id"`
	BorrowAt   time.Time       `db:"borrow_at"`
	DueAt      time.Time       `db:"due_at"`
	ReturnAt   sql.NullTime    `db:"return_at"`
	RenewCount int             `db:"renew_count"`
	Status     LoanStatus      `db:"status"`
	FineAmount sql.NullFloat64 `db:"fine_amount"`
	HandledBy  sql.NullString  `db:"handled_by"`
}

// EffectiveStatus folds the derived overdue state into the stored one.
func EffectiveStatus(stored LoanStatus, dueAt, now time.Time) LoanStatus {
	if stored == LoanActive && dueAt.Before(now) {
		return LoanOverdue
	}
	return stored
}

// LoanSummary is one line of a reader's "currently borrowed" list.
type LoanSummary struct {
	RecordID   string     `db:"record_id" json:"recordId"`
	BookID     string     `db:"book_id" json:"bookId"`
	Title      string     `db:"title" json:"title"`
	Author     string     `db:"author" json:"author"`
	Location   string     `db:"location" json:"location"`
	BorrowAt   time.Time  `db:"borrow_at" json:"borrowAt"`
	DueAt      time.Time  `db:"due_at" json:"dueAt"`
	RenewCount int        `db:"renew_count" json:"renewCount"`
	Status     LoanStatus `db:"status" json:"status"`
}

// LoanRecordView is the staff-facing row, joined with reader and book names.
type LoanRecordView struct {
	RecordID      string          `db:"record_id" json:"recordId"`
	ReaderID      string          `db:"reader_id" json:"userId"`
	ReaderName    string          `db:"reader_name" json:"userName"`
	ReaderCode    string          `db:"reader_code" json:"userCode"`
	BookID        string          `db:"book_id" json:"bookId"`
	BookTitle     string          `db:"book_title" json:"bookTitle"`
	BorrowAt      time.Time       `db:"borrow_at" json:"borrowAt"`
	DueAt         time.Time       `db:"due_at" json:"dueAt"`
	ReturnAt      sql.NullTime    `db:"return_at" json:"-"`
	RenewCount    int             `db:"renew_count" json:"renewCount"`
	Status        LoanStatus      `db:"status" json:"status"`
	FineAmount    sql.NullFloat64 `db:"fine_amount" json:"-"`
	HandledBy     sql.NullString  `db:"handled_by" json:"-"`
	HandledByName sql.NullString  `db:"handled_by_name" json:"-"`
}

// Availability is the shelf status shown to readers.
type Availability struct {
	Status string `json:"status"` // AVAILABLE / LOW / OUT / UNAVAILABLE
	Qty    int    `json:"qty"`
	Total  int    `json:"total"`
}
