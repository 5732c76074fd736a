package repos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"circulation/internal/domain"
)

const userColumns = `u.id, u.email, u.name, u.code, u.password_hash, u.role, u.reader_type_id, u.enabled`

// ReaderRepo reads readers, their reader-type policy and login sessions.
type ReaderRepo struct{ q sqlx.ExtContext }

func NewReaderRepo(q sqlx.ExtContext) *ReaderRepo { return &ReaderRepo{q: q} }

func (r *ReaderRepo) ByID(ctx context.Context, id string) (*domain.User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = ?`, id)
}

func (r *ReaderRepo) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users u WHERE LOWER(u.email) = LOWER(?)`, email)
}

// ByCode finds a reader by library card code, as typed at the circulation desk.
func (r *ReaderRepo) ByCode(ctx context.Context, code string) (*domain.User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users u WHERE u.code = ? AND u.role = 'READER'`, code)
}

// Lock holds the reader's row until the transaction ends, so loan-limit
// checks for one reader run one at a time. sql.ErrNoRows if the reader is gone.
func (r *ReaderRepo) Lock(ctx context.Context, id string) error {
	var got string
	return sqlx.GetContext(ctx, r.q, &got, r.q.Rebind(`SELECT id FROM users WHERE id = ?`+forUpdate(r.q)), id)
}

func (r *ReaderRepo) one(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var u domain.User
	if err := sqlx.GetContext(ctx, r.q, &u, r.q.Rebind(query), args...); err != nil {
		return nil, err
	}
	return &u, nil
}

// PolicyFor joins the reader to its reader type. sql.ErrNoRows when the
// reader has no type or the type row is missing.
func (r *ReaderRepo) PolicyFor(ctx context.Context, readerID string) (domain.Policy, error) {
	var p domain.Policy
	err := sqlx.GetContext(ctx, r.q, &p, r.q.Rebind(`
		SELECT rt.id, rt.name, rt.max_borrow, rt.borrow_days, rt.max_renew
		FROM users u
		JOIN reader_types rt ON rt.id = u.reader_type_id
		WHERE u.id = ?
	`), readerID)
	return p, err
}

func (r *ReaderRepo) BindSession(ctx context.Context, sid, userID string) error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`
		INSERT INTO sessions(id, user_id, last_seen)
		VALUES(?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, last_seen = CURRENT_TIMESTAMP
	`), sid, userID)
	return err
}

// SessionUser returns the enabled user bound to sid.
func (r *ReaderRepo) SessionUser(ctx context.Context, sid string) (*domain.User, error) {
	return r.one(ctx, `
		SELECT `+userColumns+`
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = ? AND u.enabled = 1`, sid)
}

func (r *ReaderRepo) UnbindSession(ctx context.Context, sid string) error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`
		UPDATE sessions SET user_id = NULL, last_seen = CURRENT_TIMESTAMP WHERE id = ?
	`), sid)
	return err
}
