package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/enel-control/enel-cli/internal/db"
	"github.com/enel-control/enel-cli/internal/model"
)

// PostgresStore implements RecordStore using pgxpool. It is the alternative
// to the mirrored SQLite file when a shared database is available.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var (
	pgInsertQuery = `INSERT INTO invoices (` + strings.Join(recordColumns, ", ") + `) VALUES (` +
		placeholders(len(recordColumns)) + `) ON CONFLICT (attachment_hash) DO NOTHING`
	pgHistoryQuery = `SELECT period_month, period_year, consumption_kwh FROM invoices
		WHERE installation_id = $1 AND period_key > 0
		ORDER BY period_key DESC, created_at DESC`
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS invoices (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	attachment_hash       TEXT NOT NULL UNIQUE,
	message_id            TEXT NOT NULL DEFAULT '',
	filename              TEXT NOT NULL DEFAULT '',
	installation_id       TEXT NOT NULL,
	period_month          INTEGER NOT NULL DEFAULT 0,
	period_year           INTEGER NOT NULL DEFAULT 0,
	period_key            INTEGER NOT NULL DEFAULT 0,
	issue_date            DATE,
	due_date              DATE,
	invoice_number        TEXT NOT NULL DEFAULT '',
	amount_due            NUMERIC(14,2),
	consumption_kwh       DOUBLE PRECISION NOT NULL DEFAULT 0,
	injected_kwh          DOUBLE PRECISION NOT NULL DEFAULT 0,
	compensated_kwh       DOUBLE PRECISION NOT NULL DEFAULT 0,
	credit_balance_kwh    DOUBLE PRECISION NOT NULL DEFAULT 0,
	compensation_tusd     NUMERIC(14,2),
	compensation_te       NUMERIC(14,2),
	total_compensation    NUMERIC(14,2),
	has_offset_generation BOOLEAN NOT NULL DEFAULT false,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_invoices_installation_period ON invoices(installation_id, period_key DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Ping checks connectivity for the health endpoint.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Insert(ctx context.Context, rec *model.InvoiceRecord, messageID string, raw []byte) (InsertResult, error) {
	hash := ContentHash(raw)
	id := uuid.New().String()

	tag, err := s.pool.Exec(ctx, pgInsertQuery, recordArgs(id, hash, messageID, rec, time.Now().UTC())...)
	if err != nil {
		return InsertResult{}, eris.Wrapf(err, "postgres: insert invoice %s", rec.InstallationID)
	}
	if tag.RowsAffected() == 0 {
		return InsertResult{Hash: hash, Duplicate: true}, nil
	}
	return InsertResult{ID: id, Hash: hash}, nil
}

func (s *PostgresStore) HistoryFor(ctx context.Context, installation string) ([]model.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, pgHistoryQuery, installation)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: history for %s", installation)
	}
	defer rows.Close()

	var h historyCollector
	for rows.Next() {
		var (
			month, year int
			kwh         float64
		)
		if err := rows.Scan(&month, &year, &kwh); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		h.add(month, year, kwh)
	}
	return h.entries, eris.Wrap(rows.Err(), "postgres: history iterate")
}

func (s *PostgresStore) Statistics(ctx context.Context) (Statistics, error) {
	var st Statistics
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(amount_due),
			COUNT(DISTINCT period_key) FILTER (WHERE period_key > 0),
			COUNT(DISTINCT installation_id)
		FROM invoices`,
	).Scan(&st.TotalRecords, &st.ResolvedAmountCount, &st.DistinctPeriods, &st.DistinctUnits)
	if err != nil {
		return Statistics{}, eris.Wrap(err, "postgres: statistics")
	}
	return st, nil
}

const pgRecordColumns = `attachment_hash, message_id, filename, installation_id, period_month, period_year,
	issue_date::text, due_date::text, invoice_number, amount_due::text,
	consumption_kwh, injected_kwh, compensated_kwh, credit_balance_kwh,
	compensation_tusd::text, compensation_te::text, total_compensation::text, has_offset_generation`

func (s *PostgresStore) Records(ctx context.Context) ([]model.InvoiceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRecordColumns+` FROM invoices ORDER BY period_key, installation_id, created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var out []model.InvoiceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

// Import bulk-copies records, typically read from the SQLite file, skipping
// hashes already present. It returns the number of rows inserted.
func (s *PostgresStore) Import(ctx context.Context, recs []model.InvoiceRecord) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		if rec.SourceAttachmentHash == "" {
			continue
		}
		args := recordArgs(uuid.New().String(), rec.SourceAttachmentHash, rec.SourceMessageID, rec, now)
		rows = append(rows, copyArgs(args))
	}

	n, err := db.InsertIgnore(ctx, s.pool, db.InsertConfig{
		Table:        "invoices",
		Columns:      recordColumns,
		ConflictKeys: []string{"attachment_hash"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import records")
	}
	zap.L().Info("postgres: imported records", zap.Int("offered", len(rows)), zap.Int64("inserted", n))
	return n, nil
}

// copyArgs converts the text-encoded date and numeric arguments used by the
// INSERT path into values COPY can encode in binary.
func copyArgs(args []any) []any {
	out := make([]any, len(args))
	copy(out, args)
	for i, col := range recordColumns {
		s, ok := args[i].(string)
		if !ok {
			continue
		}
		switch col {
		case "issue_date", "due_date":
			if t, err := time.Parse(dateLayout, s); err == nil {
				out[i] = t
			}
		case "amount_due", "compensation_tusd", "compensation_te", "total_compensation":
			out[i] = pgNumeric(s)
		}
	}
	return out
}

func placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(ph, ", ")
}

func pgNumeric(s string) any {
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return nil
	}
	return n
}
