package repos_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circulation/internal/domain"
	"circulation/internal/repos"
)

func TestBookRepo_DecrementStopsAtZero(t *testing.T) {
	db := memdb(t)
	books := repos.NewBookRepo(db)
	ctx := context.Background()

	ok, err := books.TryDecrementAvailable(ctx, "bk-sicp")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, availableQty(t, db, "bk-sicp"))

	ok, err = books.TryDecrementAvailable(ctx, "bk-sicp")
	require.NoError(t, err)
	assert.False(t, ok, "no copy left")
	assert.Equal(t, 0, availableQty(t, db, "bk-sicp"))
}

func TestBookRepo_DecrementUnknownBook(t *testing.T) {
	db := memdb(t)
	ok, err := repos.NewBookRepo(db).TryDecrementAvailable(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBookRepo_IncrementCappedAtTotal(t *testing.T) {
	db := memdb(t)
	books := repos.NewBookRepo(db)
	ctx := context.Background()

	ok, err := books.IncrementAvailable(ctx, "bk-gopl")
	require.NoError(t, err)
	assert.False(t, ok, "all copies already on the shelf")
	assert.Equal(t, 3, availableQty(t, db, "bk-gopl"))

	_, err = books.TryDecrementAvailable(ctx, "bk-gopl")
	require.NoError(t, err)
	ok, err = books.IncrementAvailable(ctx, "bk-gopl")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, availableQty(t, db, "bk-gopl"))
}

func TestBookRepo_Get(t *testing.T) {
	db := memdb(t)
	books := repos.NewBookRepo(db)

	b, err := books.Get(context.Background(), "bk-taocp")
	require.NoError(t, err)
	assert.Equal(t, domain.BookDisabled, b.State)
	assert.Equal(t, 2, b.TotalQty)
	assert.False(t, b.Lendable())

	_, err = books.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestBookRepo_AdjustTotalKeepsLoanedCount(t *testing.T) {
	db := memdb(t)
	books := repos.NewBookRepo(db)
	ctx := context.Background()

	// two copies out
	for i := 0; i < 2; i++ {
		ok, err := books.TryDecrementAvailable(ctx, "bk-gopl")
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := books.AdjustTotal(ctx, "bk-gopl", 1)
	require.NoError(t, err)
	assert.False(t, ok, "total below loaned count")

	ok, err = books.AdjustTotal(ctx, "bk-gopl", 2)
	require.NoError(t, err)
	assert.True(t, ok)
	b, err := books.Get(ctx, "bk-gopl")
	require.NoError(t, err)
	assert.Equal(t, 2, b.TotalQty)
	assert.Equal(t, 0, b.AvailableQty)

	ok, err = books.AdjustTotal(ctx, "bk-gopl", 7)
	require.NoError(t, err)
	assert.True(t, ok)
	b, err = books.Get(ctx, "bk-gopl")
	require.NoError(t, err)
	assert.Equal(t, 7, b.TotalQty)
	assert.Equal(t, 5, b.AvailableQty)
	assert.Equal(t, 2, b.Loaned())
}

func TestBookRepo_SoftDeleteBlockedByActiveLoan(t *testing.T) {
	db := memdb(t)
	books := repos.NewBookRepo(db)
	loans := repos.NewLoanRepo(db)
	ctx := context.Background()

	_, err := loans.CreateActive(ctx, repos.NewLoan{ReaderID: "u-alice", BookID: "bk-gopl", BorrowAt: t0, LoanDays: 30})
	require.NoError(t, err)

	ok, err := books.SoftDelete(ctx, "bk-gopl")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = books.SoftDelete(ctx, "bk-taocp")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = books.SoftDelete(ctx, "bk-taocp")
	require.NoError(t, err)
	assert.False(t, ok, "already deleted")

	ok, err = books.TryDecrementAvailable(ctx, "bk-taocp")
	require.NoError(t, err)
	assert.False(t, ok, "deleted books are never lent")
}

func TestRowLocksInsideTx(t *testing.T) {
	db := memdb(t)
	ctx := context.Background()

	err := repos.InTx(ctx, db, func(tx *sqlx.Tx) error {
		require.NoError(t, repos.NewBookRepo(tx).Lock(ctx, "bk-gopl"))
		require.NoError(t, repos.NewReaderRepo(tx).Lock(ctx, "u-alice"))
		assert.ErrorIs(t, repos.NewBookRepo(tx).Lock(ctx, "bk-none"), sql.ErrNoRows)
		assert.ErrorIs(t, repos.NewReaderRepo(tx).Lock(ctx, "u-none"), sql.ErrNoRows)
		return nil
	})
	require.NoError(t, err)
}
