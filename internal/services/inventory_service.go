package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"circulation/internal/domain"
	"circulation/internal/repos"
)

// lowShelf is the copy count at or below which a title shows as LOW.
const lowShelf = 1

// InventoryService is the staff side of the ledger: shelf status, total
// adjustments and removal. Lending never goes through here.
type InventoryService struct {
	DB *sqlx.DB
}

func NewInventoryService(db *sqlx.DB) *InventoryService {
	return &InventoryService{DB: db}
}

// CheckAvailability converts available_qty to AVAILABLE / LOW / OUT.
// Disabled titles report UNAVAILABLE whatever their shelf count.
func (s *InventoryService) CheckAvailability(ctx context.Context, bookID string) (domain.Availability, error) {
	b, err := repos.NewBookRepo(s.DB).Get(ctx, bookID)
	if errors.Is(err, sql.ErrNoRows) || b.State == domain.BookDeleted {
		return domain.Availability{}, ErrBookNotFound
	}
	if err != nil {
		return domain.Availability{}, err
	}

	status := "OUT"
	switch {
	case !b.Lendable():
		status = "UNAVAILABLE"
	case b.AvailableQty > lowShelf:
		status = "AVAILABLE"
	case b.AvailableQty > 0:
		status = "LOW"
	}
	return domain.Availability{Status: status, Qty: b.AvailableQty, Total: b.TotalQty}, nil
}

// AdjustBookTotal sets the number of owned copies. Copies on loan stay on
// loan, so the new total may not drop below them.
func (s *InventoryService) AdjustBookTotal(ctx context.Context, bookID string, total int) (domain.Book, error) {
	if total < 0 {
		return domain.Book{}, ErrInvalidInput
	}
	var out domain.Book
	err := repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		books := repos.NewBookRepo(tx)
		ok, err := books.AdjustTotal(ctx, bookID, total)
		if err != nil {
			return fmt.Errorf("adjust total: %w", err)
		}
		b, err := books.Get(ctx, bookID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && b.State == domain.BookDeleted) {
			return ErrBookNotFound
		}
		if err != nil {
			return err
		}
		if !ok {
			return ErrTotalBelowLoaned
		}
		out = b
		return nil
	})
	return out, err
}

// RemoveBook soft-deletes a title once every copy is back.
func (s *InventoryService) RemoveBook(ctx context.Context, bookID string) error {
	return repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		books := repos.NewBookRepo(tx)
		// waits out a borrow in flight on this book, whose loan the delete must see
		err := books.Lock(ctx, bookID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBookNotFound
		}
		if err != nil {
			return fmt.Errorf("lock book: %w", err)
		}
		ok, err := books.SoftDelete(ctx, bookID)
		if err != nil {
			return fmt.Errorf("soft delete: %w", err)
		}
		if ok {
			return nil
		}
		b, err := books.Get(ctx, bookID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && b.State == domain.BookDeleted) {
			return ErrBookNotFound
		}
		if err != nil {
			return err
		}
		n, err := repos.NewLoanRepo(tx).CountActiveByBook(ctx, bookID)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrBookHasActiveLoans
		}
		return fmt.Errorf("soft delete %s: no row changed", bookID)
	})
}
