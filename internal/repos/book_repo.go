package repos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"circulation/internal/domain"
)

// BookRepo is the inventory ledger. It is the only code that writes
// available_qty, and every write is a single conditional UPDATE whose
// affected-row count is the success signal.
type BookRepo struct{ q sqlx.ExtContext }

// NewBookRepo binds the ledger to a *sqlx.DB or a *sqlx.Tx.
func NewBookRepo(q sqlx.ExtContext) *BookRepo { return &BookRepo{q: q} }

// Get returns the book row, deleted ones included.
// If no row exists it returns sql.ErrNoRows.
func (r *BookRepo) Get(ctx context.Context, bookID string) (domain.Book, error) {
	var b domain.Book
	err := sqlx.GetContext(ctx, r.q, &b, r.q.Rebind(`
		SELECT id, title, author, location, total_qty, available_qty, state
		FROM books
		WHERE id = ?
	`), bookID)
	return b, err
}

// Lock holds the book's row until the transaction ends. Callers that read
// loans of a book before changing its state take it first.
func (r *BookRepo) Lock(ctx context.Context, bookID string) error {
	var got string
	return sqlx.GetContext(ctx, r.q, &got, r.q.Rebind(`SELECT id FROM books WHERE id = ?`+forUpdate(r.q)), bookID)
}

// TryDecrementAvailable takes one copy off the shelf if at least one is there.
// Two callers racing for the last copy cannot both get true.
func (r *BookRepo) TryDecrementAvailable(ctx context.Context, bookID string) (bool, error) {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`
		UPDATE books
		SET available_qty = available_qty - 1
		WHERE id = ? AND available_qty >= 1 AND state <> 'DELETED'
	`), bookID)
	return affectedOne(res, err)
}

// IncrementAvailable puts one copy back. It never lifts available_qty above total_qty.
func (r *BookRepo) IncrementAvailable(ctx context.Context, bookID string) (bool, error) {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`
		UPDATE books
		SET available_qty = available_qty + 1
		WHERE id = ? AND available_qty < total_qty
	`), bookID)
	return affectedOne(res, err)
}

// AdjustTotal sets total_qty while keeping the loaned count, refusing totals
// below what is currently out.
func (r *BookRepo) AdjustTotal(ctx context.Context, bookID string, total int) (bool, error) {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`
		UPDATE books
		SET available_qty = ? - (total_qty - available_qty),
		    total_qty = ?
		WHERE id = ? AND state <> 'DELETED' AND ? >= total_qty - available_qty
	`), total, total, bookID, total)
	return affectedOne(res, err)
}

// SoftDelete moves the book to DELETED unless a loan on it is still active.
func (r *BookRepo) SoftDelete(ctx context.Context, bookID string) (bool, error) {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`
		UPDATE books
		SET state = 'DELETED'
		WHERE id = ? AND state <> 'DELETED'
		  AND NOT EXISTS (
		    SELECT 1 FROM borrow_records br
		    WHERE br.book_id = books.id AND br.status = 'ACTIVE'
		  )
	`), bookID)
	return affectedOne(res, err)
}
