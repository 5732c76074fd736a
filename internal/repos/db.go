package repos

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	applog "circulation/internal/log"
)

// OpenDB connects with the given driver ("sqlite" or "postgres"), creates the
// schema and makes sure the reference reader types exist.
func OpenDB(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// SQLite serialises writers; one connection also keeps ":memory:" a single database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(10)
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := seedReaderTypes(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed reader types: %w", err)
	}
	return db, nil
}

func ensureSchema(db *sqlx.DB) error {
	if db.DriverName() == "sqlite" {
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			return err
		}
	}
	schema := `
-- Reader types (borrowing policy)
CREATE TABLE IF NOT EXISTS reader_types(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  max_borrow INTEGER NOT NULL CHECK (max_borrow >= 0),
  borrow_days INTEGER NOT NULL CHECK (borrow_days > 0),
  max_renew INTEGER NOT NULL CHECK (max_renew >= 0)
);

-- Users (readers and staff) & sessions
CREATE TABLE IF NOT EXISTS users(
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  code TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL CHECK (role IN ('READER','ADMIN')),
  reader_type_id TEXT NULL REFERENCES reader_types(id),
  enabled INTEGER NOT NULL DEFAULT 1,
  created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(LOWER(email));

CREATE TABLE IF NOT EXISTS sessions(
  id TEXT PRIMARY KEY,
  user_id TEXT NULL REFERENCES users(id) ON DELETE SET NULL,
  created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
  last_seen TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

-- Books (inventory ledger)
CREATE TABLE IF NOT EXISTS books(
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  author TEXT NOT NULL DEFAULT '',
  location TEXT NOT NULL DEFAULT '',
  total_qty INTEGER NOT NULL DEFAULT 0 CHECK (total_qty >= 0),
  available_qty INTEGER NOT NULL DEFAULT 0 CHECK (available_qty >= 0 AND available_qty <= total_qty),
  state TEXT NOT NULL DEFAULT 'ENABLED' CHECK (state IN ('ENABLED','DISABLED','DELETED'))
);
CREATE INDEX IF NOT EXISTS idx_books_title ON books(LOWER(title));

-- Loan records
CREATE TABLE IF NOT EXISTS borrow_records(
  id TEXT PRIMARY KEY,
  reader_id TEXT NOT NULL REFERENCES users(id),
  book_id TEXT NOT NULL REFERENCES books(id),
  borrow_at TIMESTAMP NOT NULL,
  due_at TIMESTAMP NOT NULL,
  return_at TIMESTAMP NULL,
  renew_count INTEGER NOT NULL DEFAULT 0 CHECK (renew_count >= 0),
  status TEXT NOT NULL CHECK (status IN ('ACTIVE','RETURNED')),
  fine_amount NUMERIC NULL,
  handled_by TEXT NULL REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_borrow_records_reader ON borrow_records(reader_id, status);
CREATE INDEX IF NOT EXISTS idx_borrow_records_book   ON borrow_records(book_id, status);
CREATE INDEX IF NOT EXISTS idx_borrow_records_borrow ON borrow_records(borrow_at);
`
	_, err := db.Exec(schema)
	return err
}

// seedReaderTypes inserts the baseline reader categories (idempotent).
func seedReaderTypes(db *sqlx.DB) error {
	_, err := db.Exec(`
		INSERT INTO reader_types(id, name, max_borrow, borrow_days, max_renew) VALUES
		  ('rt-student', 'Student', 5, 30, 1),
		  ('rt-faculty', 'Faculty', 10, 60, 2)
		ON CONFLICT(id) DO NOTHING
	`)
	return err
}

// DemoPassword is the password of every seeded account.
const DemoPassword = "Passw0rd!"

// SeedDemo inserts demo readers, one admin and a few books (idempotent).
func SeedDemo(db *sqlx.DB) error {
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM users`); err != nil {
		return err
	}

	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()

	if n == 0 {
		applog.L().Info("seed.demo", zap.String("what", "readers/admin"))
		h, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		hash := string(h)
		users := []struct {
			ID, Email, Name, Code, Role string
			ReaderType                  *string
			Enabled                     bool
		}{
			{"u-alice", "alice@library.test", "Alice", "S1001", "READER", ptr("rt-student"), true},
			{"u-bob", "bob@library.test", "Bob", "S1002", "READER", ptr("rt-student"), true},
			{"u-carol", "carol@library.test", "Carol", "T2001", "READER", ptr("rt-faculty"), true},
			{"u-dave", "dave@library.test", "Dave", "S1003", "READER", ptr("rt-student"), false},
			{"u-admin", "admin@library.test", "Admin", "A0001", "ADMIN", nil, true},
		}
		for _, u := range users {
			if _, err := tx.Exec(tx.Rebind(`
				INSERT INTO users(id, email, name, code, password_hash, role, reader_type_id, enabled)
				VALUES(?,?,?,?,?,?,?,?)
				ON CONFLICT(email) DO NOTHING
			`), u.ID, u.Email, u.Name, u.Code, hash, u.Role, u.ReaderType, boolInt(u.Enabled)); err != nil {
				return err
			}
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO books(id, title, author, location, total_qty, available_qty, state) VALUES
		  ('bk-gopl',  'The Go Programming Language', 'Donovan & Kernighan', 'A-1-03', 3, 3, 'ENABLED'),
		  ('bk-sicp',  'Structure and Interpretation of Computer Programs', 'Abelson & Sussman', 'A-2-11', 1, 1, 'ENABLED'),
		  ('bk-taocp', 'The Art of Computer Programming', 'Knuth', 'B-0-01', 2, 2, 'DISABLED')
		ON CONFLICT(id) DO NOTHING
	`); err != nil {
		return err
	}

	return tx.Commit()
}

// InTx runs fn inside one transaction; any error (or panic) rolls everything back.
func InTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func ptr(s string) *string { return &s }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
