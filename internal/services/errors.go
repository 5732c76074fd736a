package services

import (
	"errors"
	"fmt"
)

// Rejections. All of them reach the caller as a message; none is retried.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrBadCreds         = errors.New("invalid email or password")
	ErrInvalidInput     = errors.New("invalid input")

	ErrNotFound       = errors.New("not found")
	ErrReaderNotFound = fmt.Errorf("reader %w", ErrNotFound)
	ErrBookNotFound   = fmt.Errorf("book %w", ErrNotFound)
	ErrRecordNotFound = fmt.Errorf("borrow record %w", ErrNotFound)

	ErrLimitReached      = errors.New("borrow limit reached")
	ErrBookUnavailable   = errors.New("book is not available for lending")
	ErrOutOfStock        = errors.New("no copies available")
	ErrAlreadyReturned   = errors.New("record already returned")
	ErrRenewalNotAllowed = errors.New("renewal not allowed")

	ErrTotalBelowLoaned   = errors.New("total quantity below loaned copies")
	ErrBookHasActiveLoans = errors.New("book has unreturned loans")

	// Integrity failures: bad reference data or a storage bug. Alerted.
	ErrPolicyNotFound = errors.New("reader type not found")
	ErrBorrowFailed   = errors.New("borrow failed")
)

// Kind labels err for metrics and responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotAuthenticated), errors.Is(err, ErrBadCreds):
		return "not_authenticated"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrPolicyNotFound):
		return "policy_not_found"
	case errors.Is(err, ErrBorrowFailed):
		return "borrow_failed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrLimitReached):
		return "limit_reached"
	case errors.Is(err, ErrBookUnavailable):
		return "book_unavailable"
	case errors.Is(err, ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, ErrAlreadyReturned):
		return "already_returned"
	case errors.Is(err, ErrRenewalNotAllowed):
		return "renewal_not_allowed"
	case errors.Is(err, ErrTotalBelowLoaned):
		return "total_below_loaned"
	case errors.Is(err, ErrBookHasActiveLoans):
		return "book_has_active_loans"
	}
	return "internal"
}

// IsIntegrity reports failures that point at corrupt data rather than user input.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrPolicyNotFound) || errors.Is(err, ErrBorrowFailed)
}
