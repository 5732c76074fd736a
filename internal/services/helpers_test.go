package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"circulation/internal/events"
	"circulation/internal/metrics"
	"circulation/internal/repos"
	"circulation/internal/services"
)

var t0 = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	got  []events.Event
	fail bool
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broker down")
	}
	r.got = append(r.got, e)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.got))
	for _, e := range r.got {
		out = append(out, e.EventType)
	}
	return out
}

type fixture struct {
	db    *sqlx.DB
	svc   *services.CirculationService
	inv   *services.InventoryService
	pub   *recorder
	reg   *prometheus.Registry
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repos.OpenDB("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repos.SeedDemo(db))

	f := &fixture{db: db, pub: &recorder{}, reg: prometheus.NewRegistry(), clock: t0}
	f.svc = services.NewCirculationService(db, f.pub, metrics.New(f.reg))
	f.svc.Now = func() time.Time { return f.clock }
	f.inv = services.NewInventoryService(db)
	return f
}

func (f *fixture) available(t *testing.T, bookID string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.Get(&n, `SELECT available_qty FROM books WHERE id = ?`, bookID))
	return n
}

// ledgerSane checks 0 <= available <= total for every book.
func (f *fixture) ledgerSane(t *testing.T) {
	t.Helper()
	var bad int
	require.NoError(t, f.db.Get(&bad, `SELECT COUNT(*) FROM books WHERE available_qty < 0 OR available_qty > total_qty`))
	require.Zero(t, bad)
}

func (f *fixture) addReader(t *testing.T, id, code string, readerType *string) {
	t.Helper()
	_, err := f.db.Exec(`
		INSERT INTO users(id, email, name, code, password_hash, role, reader_type_id, enabled)
		VALUES(?, ?, ?, ?, 'x', 'READER', ?, 1)`, id, id+"@library.test", id, code, readerType)
	require.NoError(t, err)
}
