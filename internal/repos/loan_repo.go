package repos

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"circulation/internal/domain"
)

// ErrNotInserted is returned when an INSERT reports zero affected rows.
var ErrNotInserted = errors.New("insert affected no rows")

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// LoanRepo is the loan record store.
type LoanRepo struct {
	q       sqlx.ExtContext
	dialect goqu.DialectWrapper
}

// NewLoanRepo binds the store to a *sqlx.DB or a *sqlx.Tx.
func NewLoanRepo(q sqlx.ExtContext) *LoanRepo {
	return &LoanRepo{q: q, dialect: goqu.Dialect(goquDialect(q.DriverName()))}
}

func goquDialect(driver string) string {
	if driver == "postgres" {
		return "postgres"
	}
	return "sqlite3"
}

type NewLoan struct {
	ID        string // generated when empty
	ReaderID  string
	BookID    string
	BorrowAt  time.Time
	LoanDays  int
	HandledBy string // staff id, empty for self-service
}

type ReturnLoan struct {
	RecordID   string
	ReaderID   string // scope; empty means any reader (staff desk)
	FineAmount *float64
	HandledBy  string
	At         time.Time
}

type RenewLoan struct {
	RecordID string
	ReaderID string
	LoanDays int
	MaxRenew int
}

// RecordFilter narrows the staff listing. Status is ACTIVE, RETURNED,
// OVERDUE or empty for all.
type RecordFilter struct {
	Status   domain.LoanStatus
	Keyword  string
	Page     int
	PageSize int
	Now      time.Time
}

// Normalize clamps paging the way the circulation desk expects it.
func (f RecordFilter) Normalize() RecordFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	f.Keyword = strings.TrimSpace(f.Keyword)
	return f
}

func (r *LoanRepo) CountActive(ctx context.Context, readerID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.q, &n, r.q.Rebind(`
		SELECT COUNT(*) FROM borrow_records WHERE reader_id = ? AND status = 'ACTIVE'
	`), readerID)
	return n, err
}

func (r *LoanRepo) CountActiveByBook(ctx context.Context, bookID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.q, &n, r.q.Rebind(`
		SELECT COUNT(*) FROM borrow_records WHERE book_id = ? AND status = 'ACTIVE'
	`), bookID)
	return n, err
}

// CreateActive inserts a new ACTIVE record due LoanDays after BorrowAt.
func (r *LoanRepo) CreateActive(ctx context.Context, n NewLoan) (string, error) {
	id := n.ID
	if id == "" {
		id = uuid.NewString()
	}
	due := n.BorrowAt.AddDate(0, 0, n.LoanDays)
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`
		INSERT INTO borrow_records(id, reader_id, book_id, borrow_at, due_at, renew_count, status, handled_by)
		VALUES (?, ?, ?, ?, ?, 0, 'ACTIVE', ?)
	`), id, n.ReaderID, n.BookID, n.BorrowAt, due, nullString(n.HandledBy))
	ok, err := affectedOne(res, err)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotInserted
	}
	return id, nil
}

// Get returns one record; sql.ErrNoRows if absent.
func (r *LoanRepo) Get(ctx context.Context, recordID string) (domain.LoanRecord, error) {
	var rec domain.LoanRecord
	err := sqlx.GetContext(ctx, r.q, &rec, r.q.Rebind(`
		SELECT id, reader_id, book_id, borrow_at, due_at, return_at, renew_count, status, fine_amount, handled_by
		FROM borrow_records
		WHERE id = ?
	`), recordID)
	return rec, err
}

// BookIDForRecord resolves the book a record lends, scoped to readerID when
// it is not empty. Returns sql.ErrNoRows when nothing matches.
func (r *LoanRepo) BookIDForRecord(ctx context.Context, recordID, readerID string) (string, error) {
	query := `SELECT book_id FROM borrow_records WHERE id = ?`
	args := []any{recordID}
	if readerID != "" {
		query += ` AND reader_id = ?`
		args = append(args, readerID)
	}
	var bookID string
	err := sqlx.GetContext(ctx, r.q, &bookID, r.q.Rebind(query), args...)
	return bookID, err
}

// MarkReturned moves an ACTIVE record to RETURNED. It reports false, not an
// error, when the record is already returned or outside the reader scope.
func (r *LoanRepo) MarkReturned(ctx context.Context, in ReturnLoan) (bool, error) {
	query := `
		UPDATE borrow_records
		SET status = 'RETURNED', return_at = ?, fine_amount = ?, handled_by = COALESCE(?, handled_by)
		WHERE id = ? AND status = 'ACTIVE'`
	args := []any{in.At, in.FineAmount, nullString(in.HandledBy), in.RecordID}
	if in.ReaderID != "" {
		query += ` AND reader_id = ?`
		args = append(args, in.ReaderID)
	}
	res, err := r.q.ExecContext(ctx, r.q.Rebind(query), args...)
	return affectedOne(res, err)
}

// Renew extends due_at by LoanDays and bumps renew_count. The write is
// conditioned on the renew_count that was read, so two racing renewals of
// the same record cannot both land. Any failed precondition yields false.
func (r *LoanRepo) Renew(ctx context.Context, in RenewLoan) (bool, error) {
	var cur struct {
		DueAt      time.Time `db:"due_at"`
		RenewCount int       `db:"renew_count"`
	}
	err := sqlx.GetContext(ctx, r.q, &cur, r.q.Rebind(`
		SELECT due_at, renew_count FROM borrow_records
		WHERE id = ? AND reader_id = ? AND status = 'ACTIVE'
	`), in.RecordID, in.ReaderID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if cur.RenewCount >= in.MaxRenew {
		return false, nil
	}

	res, err := r.q.ExecContext(ctx, r.q.Rebind(`
		UPDATE borrow_records
		SET due_at = ?, renew_count = renew_count + 1
		WHERE id = ? AND reader_id = ? AND status = 'ACTIVE'
		  AND renew_count < ? AND renew_count = ?
	`), cur.DueAt.AddDate(0, 0, in.LoanDays), in.RecordID, in.ReaderID, in.MaxRenew, cur.RenewCount)
	return affectedOne(res, err)
}

// ListActiveByReader returns the reader's open loans, soonest due first.
// Status carries the stored value; callers derive OVERDUE.
func (r *LoanRepo) ListActiveByReader(ctx context.Context, readerID string) ([]domain.LoanSummary, error) {
	query, args, err := r.dialect.
		From(goqu.T("borrow_records").As("r")).
		InnerJoin(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("r.book_id")))).
		Select(
			goqu.I("r.id").As("record_id"),
			goqu.I("r.book_id"),
			goqu.I("b.title"),
			goqu.I("b.author"),
			goqu.I("b.location"),
			goqu.I("r.borrow_at"),
			goqu.I("r.due_at"),
			goqu.I("r.renew_count"),
			goqu.I("r.status"),
		).
		Where(
			goqu.I("r.reader_id").Eq(readerID),
			goqu.I("r.status").Eq(string(domain.LoanActive)),
		).
		Order(goqu.I("r.due_at").Asc(), goqu.I("r.id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, err
	}
	out := []domain.LoanSummary{}
	err = sqlx.SelectContext(ctx, r.q, &out, query, args...)
	return out, err
}

// List is the staff view over all records with filter and paging; it also
// returns the total number of matching rows.
func (r *LoanRepo) List(ctx context.Context, f RecordFilter) ([]domain.LoanRecordView, int, error) {
	f = f.Normalize()

	base := r.dialect.
		From(goqu.T("borrow_records").As("r")).
		InnerJoin(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("r.reader_id")))).
		InnerJoin(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("r.book_id")))).
		LeftJoin(goqu.T("users").As("h"), goqu.On(goqu.I("h.id").Eq(goqu.I("r.handled_by")))).
		Where(recordConditions(f)...)

	countSQL, countArgs, err := base.Select(goqu.COUNT(goqu.Star())).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, countSQL, countArgs...); err != nil {
		return nil, 0, err
	}
	out := []domain.LoanRecordView{}
	if total == 0 {
		return out, 0, nil
	}

	listSQL, listArgs, err := base.
		Select(
			goqu.I("r.id").As("record_id"),
			goqu.I("r.reader_id"),
			goqu.I("u.name").As("reader_name"),
			goqu.I("u.code").As("reader_code"),
			goqu.I("r.book_id"),
			goqu.I("b.title").As("book_title"),
			goqu.I("r.borrow_at"),
			goqu.I("r.due_at"),
			goqu.I("r.return_at"),
			goqu.I("r.renew_count"),
			goqu.I("r.status"),
			goqu.I("r.fine_amount"),
			goqu.I("r.handled_by"),
			goqu.I("h.name").As("handled_by_name"),
		).
		Order(goqu.I("r.borrow_at").Desc(), goqu.I("r.id").Desc()).
		Limit(uint(f.PageSize)).
		Offset(uint((f.Page - 1) * f.PageSize)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, 0, err
	}
	if err := sqlx.SelectContext(ctx, r.q, &out, listSQL, listArgs...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// likeEscaper makes keyword wildcards match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func recordConditions(f RecordFilter) []exp.Expression {
	var where []exp.Expression
	switch f.Status {
	case domain.LoanActive:
		where = append(where, goqu.I("r.status").Eq(string(domain.LoanActive)))
	case domain.LoanReturned:
		where = append(where, goqu.I("r.status").Eq(string(domain.LoanReturned)))
	case domain.LoanOverdue:
		where = append(where,
			goqu.I("r.status").Eq(string(domain.LoanActive)),
			goqu.I("r.due_at").Lt(f.Now),
		)
	}
	if f.Keyword != "" {
		pat := "%" + likeEscaper.Replace(strings.ToLower(f.Keyword)) + "%"
		where = append(where, goqu.Or(
			goqu.L(`LOWER(u.name) LIKE ? ESCAPE '\'`, pat),
			goqu.L(`LOWER(u.code) LIKE ? ESCAPE '\'`, pat),
			goqu.L(`LOWER(b.title) LIKE ? ESCAPE '\'`, pat),
		))
	}
	return where
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
