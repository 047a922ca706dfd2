// Package store persists extracted invoice records and answers history
// queries for the consumption average.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/enel-control/enel-cli/internal/collab"
	"github.com/enel-control/enel-cli/internal/model"
)

// InsertResult reports what Insert did. Duplicate is set when a record with
// the same attachment content already exists; ID is then empty.
type InsertResult struct {
	ID        string `json:"id,omitempty"`
	Hash      string `json:"hash"`
	Duplicate bool   `json:"duplicate"`
}

// Statistics summarizes the stored records.
type Statistics struct {
	TotalRecords        int `json:"total_records"`
	ResolvedAmountCount int `json:"resolved_amount_count"`
	DistinctPeriods     int `json:"distinct_periods"`
	DistinctUnits       int `json:"distinct_units"`
}

// RecordStore is the persistent record store. Records are keyed by the
// SHA-256 of the attachment bytes they were extracted from.
type RecordStore interface {
	// Insert stores rec unless its attachment content was stored before.
	Insert(ctx context.Context, rec *model.InvoiceRecord, messageID string, raw []byte) (InsertResult, error)
	// HistoryFor returns one entry per period for the installation, most
	// recent first. Records without a billing period are left out.
	HistoryFor(ctx context.Context, installation string) ([]model.HistoryEntry, error)
	Statistics(ctx context.Context) (Statistics, error)
	// Records returns every stored record ordered by period then installation.
	Records(ctx context.Context) ([]model.InvoiceRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Options selects and configures a RecordStore.
type Options struct {
	Driver      string // "sqlite" (default) or "postgres"
	DatabaseURL string
	LocalPath   string
	BlobPath    string
	Pool        *PoolConfig
}

// NewRecordStore opens and migrates the configured store. For SQLite the
// database file is pulled from and mirrored back to blob.
func NewRecordStore(ctx context.Context, opts Options, blob collab.BlobStore) (RecordStore, error) {
	var (
		st  RecordStore
		err error
	)
	switch opts.Driver {
	case "", "sqlite":
		st, err = OpenMirrored(ctx, opts.LocalPath, blob, opts.BlobPath)
	case "postgres":
		st, err = NewPostgres(ctx, opts.DatabaseURL, opts.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// ContentHash is the hex SHA-256 of an attachment.
func ContentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// recordColumns is the insert column order shared by both drivers.
var recordColumns = []string{
	"id", "attachment_hash", "message_id", "filename",
	"installation_id", "period_month", "period_year", "period_key",
	"issue_date", "due_date", "invoice_number", "amount_due",
	"consumption_kwh", "injected_kwh", "compensated_kwh", "credit_balance_kwh",
	"compensation_tusd", "compensation_te", "total_compensation",
	"has_offset_generation", "created_at",
}

const dateLayout = "2006-01-02"

func recordArgs(id, hash, messageID string, rec *model.InvoiceRecord, now time.Time) []any {
	var amount any
	if d, ok := rec.AmountDue.Decimal(); ok {
		amount = d.StringFixed(2)
	}
	return []any{
		id, hash, messageID, rec.SourceFilename,
		rec.InstallationID, rec.BillingPeriod.Month, rec.BillingPeriod.Year, rec.BillingPeriod.Key(),
		dateArg(rec.IssueDate), dateArg(rec.DueDate), rec.InvoiceNumber, amount,
		rec.ConsumptionKWh, rec.InjectedKWh, rec.CompensatedKWh, rec.CreditBalanceKWh,
		rec.CompensationTUSD.StringFixed(2), rec.CompensationTE.StringFixed(2), rec.TotalCompensation.StringFixed(2),
		rec.HasOffsetGeneration, now,
	}
}

func dateArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(dateLayout)
}

type scannable interface {
	Scan(dest ...any) error
}

// scanRecord reads the column list shared by both drivers' record queries.
func scanRecord(row scannable) (model.InvoiceRecord, error) {
	var (
		rec                model.InvoiceRecord
		issue, due, amount *string
		tusd, te, total    *string
		month, year        int
	)
	err := row.Scan(
		&rec.SourceAttachmentHash, &rec.SourceMessageID, &rec.SourceFilename,
		&rec.InstallationID, &month, &year,
		&issue, &due, &rec.InvoiceNumber, &amount,
		&rec.ConsumptionKWh, &rec.InjectedKWh, &rec.CompensatedKWh, &rec.CreditBalanceKWh,
		&tusd, &te, &total, &rec.HasOffsetGeneration,
	)
	if err != nil {
		return rec, eris.Wrap(err, "store: scan record")
	}

	rec.BillingPeriod = model.Period{Month: month, Year: year}
	rec.IssueDate = parseDate(issue)
	rec.DueDate = parseDate(due)
	rec.AmountDue = model.UnresolvedAmount()
	if amount != nil {
		if d, err := decimal.NewFromString(*amount); err == nil {
			rec.AmountDue = model.NewAmount(d)
		}
	}
	rec.CompensationTUSD = parseDecimal(tusd)
	rec.CompensationTE = parseDecimal(te)
	rec.TotalCompensation = parseDecimal(total)
	return rec, nil
}

func parseDate(s *string) time.Time {
	if s == nil || len(*s) < len(dateLayout) {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, (*s)[:len(dateLayout)])
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseDecimal(s *string) decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// historyCollector keeps the first row seen per period; queries order rows
// newest first, so that is the latest stored record for the period.
type historyCollector struct {
	seen    map[int]bool
	entries []model.HistoryEntry
}

func (h *historyCollector) add(month, year int, kwh float64) {
	p := model.Period{Month: month, Year: year}
	if h.seen == nil {
		h.seen = make(map[int]bool)
	}
	if h.seen[p.Key()] {
		return
	}
	h.seen[p.Key()] = true
	h.entries = append(h.entries, model.HistoryEntry{Period: p, ConsumptionKWh: kwh})
}
