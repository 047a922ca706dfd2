package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enel-control/enel-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresStore_Insert(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	raw := []byte("pdf")

	mock.ExpectExec(`INSERT INTO invoices .* ON CONFLICT \(attachment_hash\) DO NOTHING`).
		WithArgs(anyArgs(len(recordColumns))...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO invoices`).
		WithArgs(anyArgs(len(recordColumns))...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	res, err := s.Insert(context.Background(), testRecord("12345678", 2, 2025, 850), "msg-1", raw)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.NotEmpty(t, res.ID)

	res, err = s.Insert(context.Background(), testRecord("12345678", 2, 2025, 850), "msg-2", raw)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, ContentHash(raw), res.Hash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Insert_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO invoices`).
		WithArgs(anyArgs(len(recordColumns))...).
		WillReturnError(errors.New("connection lost"))

	_, err := s.Insert(context.Background(), testRecord("12345678", 2, 2025, 850), "msg-1", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: insert invoice 12345678")
}

func TestPostgresStore_HistoryFor(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT period_month, period_year, consumption_kwh FROM invoices`).
		WithArgs("12345678").
		WillReturnRows(mock.NewRows([]string{"period_month", "period_year", "consumption_kwh"}).
			AddRow(2, 2025, 850.0).
			AddRow(1, 2025, 700.0).
			AddRow(1, 2025, 650.0))

	h, err := s.HistoryFor(context.Background(), "12345678")
	require.NoError(t, err)
	assert.Equal(t, []model.HistoryEntry{
		{Period: model.Period{Month: 2, Year: 2025}, ConsumptionKWh: 850},
		{Period: model.Period{Month: 1, Year: 2025}, ConsumptionKWh: 700},
	}, h)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Statistics(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(amount_due\)`).
		WillReturnRows(mock.NewRows([]string{"total", "resolved", "periods", "units"}).
			AddRow(10, 9, 3, 4))

	st, err := s.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Statistics{TotalRecords: 10, ResolvedAmountCount: 9, DistinctPeriods: 3, DistinctUnits: 4}, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Statistics_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT`).WillReturnError(pgx.ErrNoRows)

	_, err := s.Statistics(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: statistics")
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS invoices`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Import(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	recs := []model.InvoiceRecord{*testRecord("12345678", 1, 2025, 900), *testRecord("22222222", 1, 2025, 100)}
	recs[0].SourceAttachmentHash = "h1"
	recs[1].SourceAttachmentHash = "h2"
	recs = append(recs, *testRecord("33333333", 1, 2025, 1)) // no hash, skipped

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_insert_invoices"}, recordColumns).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("attachment_hash"\) DO NOTHING`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := s.Import(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCopyArgs(t *testing.T) {
	t.Parallel()

	args := recordArgs("id", "hash", "msg", testRecord("12345678", 2, 2025, 850), testRecord("x", 1, 2025, 1).DueDate)
	out := copyArgs(args)

	for i, col := range recordColumns {
		switch col {
		case "due_date":
			assert.IsType(t, testRecord("x", 1, 2025, 1).DueDate, out[i])
		case "issue_date":
			assert.Nil(t, out[i])
		case "amount_due", "total_compensation":
			assert.NotNil(t, out[i])
			_, isString := out[i].(string)
			assert.False(t, isString, col)
		case "installation_id":
			assert.Equal(t, "12345678", out[i])
		}
	}
	assert.Equal(t, "2025-02-15", args[9], "insert path keeps text dates")
}
