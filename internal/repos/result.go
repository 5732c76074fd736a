package repos

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// affectedOne turns a conditional UPDATE/INSERT result into "did exactly one row change".
func affectedOne(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// forUpdate is the row-lock suffix for a locking read. PostgreSQL needs it
// under READ COMMITTED; SQLite holds the database write lock for the whole tx.
func forUpdate(q sqlx.ExtContext) string {
	if q.DriverName() == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}
