package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dvloznov/bankbatch/internal/config"
	"github.com/dvloznov/bankbatch/internal/domain"
)

// openTestStore backs the store with a file SQLite database. The transactional
// and duplicate-key behavior under test is shared with the MySQL dialect
// through TranslateError.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	require.NoError(t, err)

	s := New(db)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func mustDate(t *testing.T, s string) civil.Date {
	t.Helper()
	d, err := civil.ParseDate(s)
	require.NoError(t, err)
	return d
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testTx(t *testing.T, id, customer, date, amount string) domain.Transaction {
	t.Helper()
	return domain.Transaction{
		TransactionID:      id,
		CustomerID:         customer,
		CustomerDOB:        mustDate(t, "1994-01-10"),
		CustGender:         "F",
		CustLocation:       "MUMBAI",
		CustAccountBalance: dec("17819.05"),
		TransactionDate:    mustDate(t, date),
		TransactionTime:    143207,
		TransactionAmount:  dec(amount),
	}
}

// Cancelling the caller's context ends the connect backoff instead of waiting
// out the remaining attempts.
func TestOpen_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := config.Default()
	cfg.DBHost = "127.0.0.1"
	cfg.DBPort = "1" // nothing listens here

	start := time.Now()
	_, err := Open(ctx, cfg, zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), connectBaseWait, "cancelled open must not sleep out the backoff")
}

func TestInsertChunk_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	in := testTx(t, "T1", "C1001", "2016-08-02", "25.00")
	inserted, dups, err := s.InsertChunk(ctx, []domain.Transaction{in, testTx(t, "T2", "C1002", "2016-08-02", "100.50")})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Empty(t, dups)

	got, err := s.GetTransaction(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, in.TransactionID, got.TransactionID)
	assert.Equal(t, in.CustomerID, got.CustomerID)
	assert.Equal(t, in.CustomerDOB, got.CustomerDOB)
	assert.Equal(t, in.CustGender, got.CustGender)
	assert.Equal(t, in.CustLocation, got.CustLocation)
	assert.True(t, got.CustAccountBalance.Equal(in.CustAccountBalance), "balance = %s", got.CustAccountBalance)
	assert.Equal(t, in.TransactionDate, got.TransactionDate)
	assert.Equal(t, in.TransactionTime, got.TransactionTime)
	assert.True(t, got.TransactionAmount.Equal(in.TransactionAmount), "amount = %s", got.TransactionAmount)
	assert.False(t, got.ProcessedAt.IsZero())

	n, err := s.CountTransactions(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestInsertChunk_EmptyChunk(t *testing.T) {
	s := openTestStore(t)
	inserted, dups, err := s.InsertChunk(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, inserted)
	assert.Empty(t, dups)
}

// Re-delivered records must not fail the chunk and must leave the stored rows
// untouched.
func TestInsertChunk_DuplicatesSkipped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	original := testTx(t, "T1", "C1001", "2016-08-02", "25.00")
	_, _, err := s.InsertChunk(ctx, []domain.Transaction{original})
	require.NoError(t, err)

	// Same id, different payload: the original must win.
	redelivered := testTx(t, "T1", "C9999", "2016-08-03", "999.99")
	inserted, dups, err := s.InsertChunk(ctx, []domain.Transaction{redelivered, testTx(t, "T2", "C1002", "2016-08-02", "50.00")})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, []string{"T1"}, dups)

	got, err := s.GetTransaction(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "C1001", got.CustomerID)
	assert.True(t, got.TransactionAmount.Equal(dec("25.00")))

	n, err := s.CountTransactions(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestDailyTotals(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, _, err := s.InsertChunk(ctx, []domain.Transaction{
		testTx(t, "T1", "C1", "2016-08-01", "10.00"),
		testTx(t, "T2", "C1", "2016-08-01", "20.00"),
		testTx(t, "T3", "C2", "2016-08-01", "30.00"),
		testTx(t, "T4", "C2", "2016-08-02", "5.50"),
		testTx(t, "T5", "C3", "2016-09-01", "99.00"), // outside range
	})
	require.NoError(t, err)

	rows, err := s.DailyTotals(ctx, mustDate(t, "2016-08-01"), mustDate(t, "2016-08-31"))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, mustDate(t, "2016-08-01"), rows[0].AggregationDate)
	assert.EqualValues(t, 3, rows[0].TotalTransactions)
	assert.True(t, rows[0].TotalAmount.Equal(dec("60.00")), "total = %s", rows[0].TotalAmount)
	assert.EqualValues(t, 2, rows[0].UniqueCustomers)

	assert.Equal(t, mustDate(t, "2016-08-02"), rows[1].AggregationDate)
	assert.EqualValues(t, 1, rows[1].TotalTransactions)
	assert.True(t, rows[1].TotalAmount.Equal(dec("5.50")))
	assert.EqualValues(t, 1, rows[1].UniqueCustomers)
}

func TestCustomerTotals(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, _, err := s.InsertChunk(ctx, []domain.Transaction{
		testTx(t, "T1", "C1", "2016-08-01", "10.00"),
		testTx(t, "T2", "C1", "2016-08-01", "20.00"),
		testTx(t, "T3", "C1", "2016-08-02", "40.00"),
		testTx(t, "T4", "C2", "2016-08-01", "7.25"),
	})
	require.NoError(t, err)

	rows, err := s.CustomerTotals(ctx, mustDate(t, "2016-08-01"), mustDate(t, "2016-08-02"))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "C1", rows[0].CustomerID)
	assert.Equal(t, mustDate(t, "2016-08-01"), rows[0].AggregationDate)
	assert.EqualValues(t, 2, rows[0].TotalTransactions)
	assert.True(t, rows[0].TotalSpent.Equal(dec("30.00")), "spent = %s", rows[0].TotalSpent)

	assert.Equal(t, "C1", rows[1].CustomerID)
	assert.Equal(t, mustDate(t, "2016-08-02"), rows[1].AggregationDate)
	assert.True(t, rows[1].TotalSpent.Equal(dec("40.00")))

	assert.Equal(t, "C2", rows[2].CustomerID)
	assert.True(t, rows[2].TotalSpent.Equal(dec("7.25")))
}

func TestUpsertDailyAggregates_ReplacesRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	date := mustDate(t, "2016-08-01")

	require.NoError(t, s.UpsertDailyAggregates(ctx, []domain.DailyAggregate{{
		AggregationDate:   date,
		TotalTransactions: 3,
		TotalAmount:       dec("60.00"),
		AvgAmount:         dec("20.00"),
		UniqueCustomers:   2,
	}}))

	// Recomputation writes the whole row again with new values.
	require.NoError(t, s.UpsertDailyAggregates(ctx, []domain.DailyAggregate{{
		AggregationDate:   date,
		TotalTransactions: 4,
		TotalAmount:       dec("65.50"),
		AvgAmount:         dec("16.38"),
		UniqueCustomers:   3,
	}}))

	got, err := s.GetDailyAggregate(ctx, date)
	require.NoError(t, err)
	assert.EqualValues(t, 4, got.TotalTransactions)
	assert.True(t, got.TotalAmount.Equal(dec("65.50")), "total = %s", got.TotalAmount)
	assert.True(t, got.AvgAmount.Equal(dec("16.38")))
	assert.EqualValues(t, 3, got.UniqueCustomers)
}

func TestUpsertCustomerAggregates_ReplacesRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	date := mustDate(t, "2016-08-01")

	require.NoError(t, s.UpsertCustomerAggregates(ctx, []domain.CustomerAggregate{{
		CustomerID:        "C1",
		AggregationDate:   date,
		TotalTransactions: 2,
		TotalSpent:        dec("30.00"),
		AvgAmount:         dec("15.00"),
	}}))
	require.NoError(t, s.UpsertCustomerAggregates(ctx, []domain.CustomerAggregate{{
		CustomerID:        "C1",
		AggregationDate:   date,
		TotalTransactions: 3,
		TotalSpent:        dec("45.00"),
		AvgAmount:         dec("15.00"),
	}}))

	got, err := s.GetCustomerAggregate(ctx, "C1", date)
	require.NoError(t, err)
	assert.EqualValues(t, 3, got.TotalTransactions)
	assert.True(t, got.TotalSpent.Equal(dec("45.00")), "spent = %s", got.TotalSpent)

	// Distinct customers on the same date stay independent rows.
	require.NoError(t, s.UpsertCustomerAggregates(ctx, []domain.CustomerAggregate{{
		CustomerID:        "C2",
		AggregationDate:   date,
		TotalTransactions: 1,
		TotalSpent:        dec("7.25"),
		AvgAmount:         dec("7.25"),
	}}))
	got2, err := s.GetCustomerAggregate(ctx, "C2", date)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got2.TotalTransactions)
}
