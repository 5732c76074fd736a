package domain

const (
	RoleReader = "READER"
	RoleAdmin  = "ADMIN"
)

type User struct {
	ID           string  `db:"id"`
	Email        string  `db:"email"`
	Name         string  `db:"name"`
	Code         string  `db:"code"` // library card / staff number
	Hash         string  `db:"password_hash"`
	Role         string  `db:"role"`
	ReaderTypeID *string `db:"reader_type_id"`
	Enabled      bool    `db:"enabled"`
}

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

// Policy holds the borrowing limits of a reader type.
type Policy struct {
	ReaderTypeID string `db:"id"`
	Name         string `db:"name"`
	MaxBorrow    int    `db:"max_borrow"`
	BorrowDays   int    `db:"borrow_days"`
	MaxRenew     int    `db:"max_renew"`
}
