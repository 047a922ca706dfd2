package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/enel-control/enel-cli/internal/collab"
	"github.com/enel-control/enel-cli/internal/model"
)

// SQLiteStore implements RecordStore using modernc.org/sqlite. When opened
// with OpenMirrored the database file is copied back to the blob store after
// every insert, so the blob copy is the durable one.
type SQLiteStore struct {
	db   *sql.DB
	path string

	blob     collab.BlobStore
	blobPath string
	flushMu  sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, path: dsn}, nil
}

// OpenMirrored downloads blobPath to localPath, opens it, and mirrors it
// back after each insert. A missing remote file means a first run and
// starts an empty database. A nil blob opens localPath without mirroring.
func OpenMirrored(ctx context.Context, localPath string, blob collab.BlobStore, blobPath string) (*SQLiteStore, error) {
	if localPath == "" {
		return nil, eris.New("sqlite: local path is required")
	}
	if dir := filepath.Dir(localPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "sqlite: create %s", dir)
		}
	}
	if blob == nil {
		return NewSQLite(localPath)
	}

	data, err := blob.Read(ctx, blobPath)
	switch {
	case errors.Is(err, collab.ErrNotFound):
		zap.L().Info("sqlite: no remote database, starting empty", zap.String("blob_path", blobPath))
	case err != nil:
		return nil, eris.Wrapf(err, "sqlite: download %s", blobPath)
	default:
		// stale WAL files would be replayed over the downloaded copy
		for _, suffix := range []string{"-wal", "-shm"} {
			_ = os.Remove(localPath + suffix)
		}
		if err := os.WriteFile(localPath, data, 0o600); err != nil {
			return nil, eris.Wrapf(err, "sqlite: write %s", localPath)
		}
		zap.L().Info("sqlite: downloaded database",
			zap.String("blob_path", blobPath),
			zap.Int("bytes", len(data)),
		)
	}

	st, err := NewSQLite(localPath)
	if err != nil {
		return nil, err
	}
	st.blob = blob
	st.blobPath = blobPath
	return st, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS invoices (
	id                    TEXT PRIMARY KEY,
	attachment_hash       TEXT NOT NULL UNIQUE,
	message_id            TEXT NOT NULL DEFAULT '',
	filename              TEXT NOT NULL DEFAULT '',
	installation_id       TEXT NOT NULL,
	period_month          INTEGER NOT NULL DEFAULT 0,
	period_year           INTEGER NOT NULL DEFAULT 0,
	period_key            INTEGER NOT NULL DEFAULT 0,
	issue_date            TEXT,
	due_date              TEXT,
	invoice_number        TEXT NOT NULL DEFAULT '',
	amount_due            TEXT,
	consumption_kwh       REAL NOT NULL DEFAULT 0,
	injected_kwh          REAL NOT NULL DEFAULT 0,
	compensated_kwh       REAL NOT NULL DEFAULT 0,
	credit_balance_kwh    REAL NOT NULL DEFAULT 0,
	compensation_tusd     TEXT,
	compensation_te       TEXT,
	total_compensation    TEXT,
	has_offset_generation INTEGER NOT NULL DEFAULT 0,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_invoices_installation_period ON invoices(installation_id, period_key);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Insert stores rec and mirrors the database. It succeeds only once the
// mirror upload has; on a failed upload the row is removed again.
func (s *SQLiteStore) Insert(ctx context.Context, rec *model.InvoiceRecord, messageID string, raw []byte) (InsertResult, error) {
	hash := ContentHash(raw)
	id := uuid.New().String()

	query := `INSERT INTO invoices (` + strings.Join(recordColumns, ", ") + `) VALUES (` +
		strings.TrimSuffix(strings.Repeat("?, ", len(recordColumns)), ", ") +
		`) ON CONFLICT(attachment_hash) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query, recordArgs(id, hash, messageID, rec, time.Now().UTC())...)
	if err != nil {
		return InsertResult{}, eris.Wrapf(err, "sqlite: insert invoice %s", rec.InstallationID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return InsertResult{}, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return InsertResult{Hash: hash, Duplicate: true}, nil
	}

	if err := s.Flush(ctx); err != nil {
		// The row must not outlive a failed mirror, or a retry would see it
		// as a duplicate and the blob copy would never receive it.
		if _, derr := s.db.ExecContext(context.WithoutCancel(ctx), `DELETE FROM invoices WHERE id = ?`, id); derr != nil {
			zap.L().Error("sqlite: undo insert after failed flush",
				zap.String("id", id),
				zap.Error(derr),
			)
		}
		return InsertResult{}, err
	}
	return InsertResult{ID: id, Hash: hash}, nil
}

// Flush checkpoints the WAL and uploads the database file. It is a no-op
// for stores opened without a blob store.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	if s.blob == nil {
		return nil
	}
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return eris.Wrap(err, "sqlite: checkpoint")
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return eris.Wrapf(err, "sqlite: read %s", s.path)
	}
	if err := s.blob.Write(ctx, s.blobPath, data); err != nil {
		return eris.Wrapf(err, "sqlite: upload %s", s.blobPath)
	}
	zap.L().Debug("sqlite: database mirrored", zap.String("blob_path", s.blobPath), zap.Int("bytes", len(data)))
	return nil
}

func (s *SQLiteStore) HistoryFor(ctx context.Context, installation string) ([]model.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT period_month, period_year, consumption_kwh FROM invoices
		WHERE installation_id = ? AND period_key > 0
		ORDER BY period_key DESC, created_at DESC`,
		installation,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: history for %s", installation)
	}
	defer rows.Close() //nolint:errcheck

	var h historyCollector
	for rows.Next() {
		var (
			month, year int
			kwh         float64
		)
		if err := rows.Scan(&month, &year, &kwh); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history")
		}
		h.add(month, year, kwh)
	}
	return h.entries, eris.Wrap(rows.Err(), "sqlite: history iterate")
}

func (s *SQLiteStore) Statistics(ctx context.Context) (Statistics, error) {
	var st Statistics
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(amount_due),
			COUNT(DISTINCT CASE WHEN period_key > 0 THEN period_key END),
			COUNT(DISTINCT installation_id)
		FROM invoices`,
	).Scan(&st.TotalRecords, &st.ResolvedAmountCount, &st.DistinctPeriods, &st.DistinctUnits)
	if err != nil {
		return Statistics{}, eris.Wrap(err, "sqlite: statistics")
	}
	return st, nil
}

const sqliteRecordColumns = `attachment_hash, message_id, filename, installation_id, period_month, period_year,
	issue_date, due_date, invoice_number, amount_due,
	consumption_kwh, injected_kwh, compensated_kwh, credit_balance_kwh,
	compensation_tusd, compensation_te, total_compensation, has_offset_generation`

func (s *SQLiteStore) Records(ctx context.Context) ([]model.InvoiceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRecordColumns+` FROM invoices ORDER BY period_key, installation_id, created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.InvoiceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}
