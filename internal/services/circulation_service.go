package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"circulation/internal/domain"
	"circulation/internal/events"
	applog "circulation/internal/log"
	"circulation/internal/metrics"
	"circulation/internal/repos"
	"circulation/internal/validate"
)

type BorrowRequest struct {
	ReaderID  string
	BookID    string
	HandledBy string // staff id for desk loans
}

type ReturnRequest struct {
	ReaderID   string // caller scope for self-service; empty at the staff desk
	RecordID   string
	FineAmount *float64
	HandledBy  string
}

// CirculationService coordinates the ledger, the loan store and the policy
// resolver. Every operation runs in a single transaction: decrement then
// insert for borrow, mark then increment for return.
type CirculationService struct {
	DB      *sqlx.DB
	Events  events.Publisher
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func NewCirculationService(db *sqlx.DB, pub events.Publisher, m *metrics.Metrics) *CirculationService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &CirculationService{DB: db, Events: pub, Metrics: m, Now: time.Now}
}

func (s *CirculationService) now() time.Time {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return now().UTC().Truncate(time.Second)
}

// Borrow lends one copy of req.BookID to req.ReaderID and returns the new record id.
func (s *CirculationService) Borrow(ctx context.Context, req BorrowRequest) (string, error) {
	started := time.Now()
	at := s.now()

	var recordID string
	err := repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		id, err := s.borrowTx(ctx, tx, req, at)
		recordID = id
		return err
	})
	s.finish("borrow", started, err, map[string]any{"reader_id": req.ReaderID, "book_id": req.BookID})
	if err != nil {
		return "", err
	}

	s.publish(ctx, events.LoanBorrowed, map[string]any{
		"record_id":  recordID,
		"reader_id":  req.ReaderID,
		"book_id":    req.BookID,
		"borrow_at":  at,
		"handled_by": req.HandledBy,
	})
	return recordID, nil
}

func (s *CirculationService) borrowTx(ctx context.Context, tx *sqlx.Tx, req BorrowRequest, at time.Time) (string, error) {
	readers := repos.NewReaderRepo(tx)
	reader, err := readers.ByID(ctx, req.ReaderID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrReaderNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load reader: %w", err)
	}
	if !reader.Enabled || reader.Role != domain.RoleReader {
		return "", ErrReaderNotFound
	}

	// concurrent borrows by one reader queue here, so the count below is current
	if err := readers.Lock(ctx, reader.ID); err != nil {
		return "", fmt.Errorf("lock reader: %w", err)
	}

	policy, err := NewPolicyService(readers).Resolve(ctx, reader.ID)
	if err != nil {
		return "", err
	}

	loans := repos.NewLoanRepo(tx)
	active, err := loans.CountActive(ctx, reader.ID)
	if err != nil {
		return "", fmt.Errorf("count active loans: %w", err)
	}
	if active >= policy.MaxBorrow {
		return "", ErrLimitReached
	}

	books := repos.NewBookRepo(tx)
	book, err := books.Get(ctx, req.BookID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrBookNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load book: %w", err)
	}
	if !book.Lendable() {
		return "", ErrBookUnavailable
	}

	// admission control: the only gate against lending a copy that is not there
	ok, err := books.TryDecrementAvailable(ctx, book.ID)
	if err != nil {
		return "", fmt.Errorf("decrement available: %w", err)
	}
	if !ok {
		// the row may have been deleted after it was read above
		if b, err := books.Get(ctx, book.ID); err == nil && !b.Lendable() {
			return "", ErrBookUnavailable
		}
		return "", ErrOutOfStock
	}

	id, err := loans.CreateActive(ctx, repos.NewLoan{
		ReaderID:  reader.ID,
		BookID:    book.ID,
		BorrowAt:  at,
		LoanDays:  policy.BorrowDays,
		HandledBy: req.HandledBy,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBorrowFailed, err)
	}
	return id, nil
}

// StaffBorrow lends a book to the reader holding card code, recording staffID.
func (s *CirculationService) StaffBorrow(ctx context.Context, code, bookID, staffID string) (string, error) {
	reader, err := repos.NewReaderRepo(s.DB).ByCode(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrReaderNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load reader by code: %w", err)
	}
	return s.Borrow(ctx, BorrowRequest{ReaderID: reader.ID, BookID: bookID, HandledBy: staffID})
}

// Return closes an ACTIVE loan and puts the copy back on the shelf.
func (s *CirculationService) Return(ctx context.Context, req ReturnRequest) error {
	if !validate.Fine(req.FineAmount) {
		return ErrInvalidInput
	}
	started := time.Now()
	at := s.now()

	var bookID string
	err := repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		loans := repos.NewLoanRepo(tx)
		id, err := loans.BookIDForRecord(ctx, req.RecordID, req.ReaderID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRecordNotFound
		}
		if err != nil {
			return fmt.Errorf("resolve record: %w", err)
		}
		bookID = id

		ok, err := loans.MarkReturned(ctx, repos.ReturnLoan{
			RecordID:   req.RecordID,
			ReaderID:   req.ReaderID,
			FineAmount: req.FineAmount,
			HandledBy:  req.HandledBy,
			At:         at,
		})
		if err != nil {
			return fmt.Errorf("mark returned: %w", err)
		}
		if !ok {
			return ErrAlreadyReturned
		}

		ok, err = repos.NewBookRepo(tx).IncrementAvailable(ctx, bookID)
		if err != nil {
			return fmt.Errorf("increment available: %w", err)
		}
		if !ok {
			// The ledger already shows every copy on the shelf. The return itself
			// is legitimate, so it commits; the drift is flagged for staff.
			s.alert("return.ledger_drift", nil, map[string]any{"record_id": req.RecordID, "book_id": bookID})
		}
		return nil
	})
	s.finish("return", started, err, map[string]any{"record_id": req.RecordID})
	if err != nil {
		return err
	}

	payload := map[string]any{
		"record_id":  req.RecordID,
		"book_id":    bookID,
		"return_at":  at,
		"handled_by": req.HandledBy,
	}
	if req.FineAmount != nil {
		payload["fine_amount"] = *req.FineAmount
	}
	s.publish(ctx, events.LoanReturned, payload)
	return nil
}

// Renew extends an ACTIVE loan by the reader type's loan length. Unknown,
// foreign, returned and maxed-out records all yield ErrRenewalNotAllowed.
func (s *CirculationService) Renew(ctx context.Context, readerID, recordID string) error {
	started := time.Now()

	err := repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		readers := repos.NewReaderRepo(tx)
		if _, err := readers.ByID(ctx, readerID); errors.Is(err, sql.ErrNoRows) {
			return ErrReaderNotFound
		} else if err != nil {
			return fmt.Errorf("load reader: %w", err)
		}

		policy, err := NewPolicyService(readers).Resolve(ctx, readerID)
		if err != nil {
			return err
		}

		ok, err := repos.NewLoanRepo(tx).Renew(ctx, repos.RenewLoan{
			RecordID: recordID,
			ReaderID: readerID,
			LoanDays: policy.BorrowDays,
			MaxRenew: policy.MaxRenew,
		})
		if err != nil {
			return fmt.Errorf("renew: %w", err)
		}
		if !ok {
			return ErrRenewalNotAllowed
		}
		return nil
	})
	s.finish("renew", started, err, map[string]any{"reader_id": readerID, "record_id": recordID})
	if err != nil {
		return err
	}

	s.publish(ctx, events.LoanRenewed, map[string]any{"record_id": recordID, "reader_id": readerID})
	return nil
}

// ListActiveLoans returns the reader's open loans with OVERDUE derived.
func (s *CirculationService) ListActiveLoans(ctx context.Context, readerID string) ([]domain.LoanSummary, error) {
	list, err := repos.NewLoanRepo(s.DB).ListActiveByReader(ctx, readerID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range list {
		list[i].Status = domain.EffectiveStatus(list[i].Status, list[i].DueAt, now)
	}
	return list, nil
}

// ListRecords is the staff listing; the returned int is the total match count.
func (s *CirculationService) ListRecords(ctx context.Context, f repos.RecordFilter) ([]domain.LoanRecordView, int, error) {
	f.Now = s.now()
	list, total, err := repos.NewLoanRepo(s.DB).List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	for i := range list {
		list[i].Status = domain.EffectiveStatus(list[i].Status, list[i].DueAt, f.Now)
	}
	return list, total, nil
}

func (s *CirculationService) finish(op string, started time.Time, err error, fields map[string]any) {
	s.Metrics.Observe(op, Kind(err), time.Since(started))
	if IsIntegrity(err) {
		s.alert(op+"."+Kind(err), err, fields)
	}
}

func (s *CirculationService) alert(action string, err error, fields map[string]any) {
	s.Metrics.Alert(action)
	applog.Alert(nil, action, err, fields)
}

// publish runs after commit; a broker failure never undoes the transaction.
func (s *CirculationService) publish(ctx context.Context, eventType string, payload map[string]any) {
	if err := s.Events.Publish(ctx, events.New(ctx, eventType, payload)); err != nil {
		applog.L().Warn("event.publish.fail", zap.String("event_type", eventType), zap.Error(err))
	}
}
