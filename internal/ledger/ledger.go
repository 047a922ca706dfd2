// Package ledger tracks which installations have delivered their invoice for
// a billing period.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/enel-control/enel-cli/internal/model"
)

// Status is a row's completion state.
type Status string

const (
	StatusOutstanding Status = "Faltando"
	StatusReceived    Status = "Recebida"
)

// AcceptOutcome is the result of Accept.
type AcceptOutcome string

const (
	Accepted            AcceptOutcome = "accepted"
	DuplicateRejected   AcceptOutcome = "duplicate_rejected"
	UnknownInstallation AcceptOutcome = "unknown_installation"
)

// DefaultDueDay is used when a unit has no valid due day.
const DefaultDueDay = 15

// Row is one (installation, period) slot.
type Row struct {
	Unit            model.Unit
	ExpectedDueDate time.Time
	Status          Status
	// Record is nil until the row is received.
	Record     *model.InvoiceRecord
	Analysis   model.Analysis
	ReceivedAt time.Time
}

// Received reports whether the row has been filled.
func (r *Row) Received() bool {
	return r.Status == StatusReceived
}

// Ledger holds the rows of one period. It is owned by a single run and is
// not safe for concurrent use.
type Ledger struct {
	period  model.Period
	rows    []*Row
	index   map[string]*Row
	grouper Grouper
	dueDay  int
	now     func() time.Time

	duplicateEmails   int
	duplicateInvoices int
	unknown           int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithGrouper sets how rows are grouped in the export.
func WithGrouper(g Grouper) Option {
	return func(l *Ledger) { l.grouper = g }
}

// WithDefaultDueDay sets the due day used for units without one.
func WithDefaultDueDay(day int) Option {
	return func(l *Ledger) {
		if day >= 1 && day <= 31 {
			l.dueDay = day
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Initialize builds one Outstanding row per mapped installation.
func Initialize(period model.Period, units []model.Unit, opts ...Option) *Ledger {
	l := &Ledger{
		period:  period,
		index:   make(map[string]*Row, len(units)),
		grouper: DefaultGrouper(),
		dueDay:  DefaultDueDay,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	for _, u := range units {
		if u.InstallationID == "" {
			continue
		}
		if _, dup := l.index[u.InstallationID]; dup {
			continue
		}
		day := u.DueDay
		if day < 1 || day > 31 {
			day = l.dueDay
		}
		row := &Row{
			Unit:            u,
			ExpectedDueDate: period.Day(day),
			Status:          StatusOutstanding,
		}
		l.rows = append(l.rows, row)
		l.index[u.InstallationID] = row
	}
	return l
}

// Period returns the ledger's billing period.
func (l *Ledger) Period() model.Period {
	return l.period
}

// Accept moves the installation's row from Outstanding to Received. A second
// acceptance in the same period is rejected and counted; the stored fields
// keep the first record's values.
func (l *Ledger) Accept(rec *model.InvoiceRecord, analysis model.Analysis) AcceptOutcome {
	return l.AcceptWith(rec, func() model.Analysis { return analysis })
}

// AcceptWith is Accept with the evaluation deferred: analyze runs only when
// the row moves from Outstanding to Received.
func (l *Ledger) AcceptWith(rec *model.InvoiceRecord, analyze func() model.Analysis) AcceptOutcome {
	row, ok := l.index[rec.InstallationID]
	if !ok {
		l.unknown++
		zap.L().Warn("ledger: installation not in mapping",
			zap.String("installation", rec.InstallationID),
			zap.String("period", l.period.String()),
		)
		return UnknownInstallation
	}
	if row.Received() {
		l.duplicateInvoices++
		zap.L().Info("ledger: duplicate invoice rejected",
			zap.String("installation", rec.InstallationID),
			zap.String("unit", row.Unit.Label),
		)
		return DuplicateRejected
	}

	cp := *rec
	row.Record = &cp
	row.Analysis = analyze()
	row.Status = StatusReceived
	row.ReceivedAt = l.now().UTC()
	return Accepted
}

// MarkDuplicateEmail counts an email skipped as already handled.
func (l *Ledger) MarkDuplicateEmail() {
	l.duplicateEmails++
}

// Row returns the row for an installation.
func (l *Ledger) Row(installation string) (*Row, bool) {
	r, ok := l.index[installation]
	return r, ok
}

// Rows returns all rows in mapping order.
func (l *Ledger) Rows() []*Row {
	return l.rows
}

// ReceivedRows returns the rows already filled.
func (l *Ledger) ReceivedRows() []*Row {
	var out []*Row
	for _, r := range l.rows {
		if r.Received() {
			out = append(out, r)
		}
	}
	return out
}

// Statistics summarizes a ledger.
type Statistics struct {
	Period               model.Period    `json:"period"`
	Total                int             `json:"total"`
	Received             int             `json:"received"`
	Outstanding          int             `json:"outstanding"`
	PercentComplete      float64         `json:"percent_complete"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	UnresolvedAmounts    int             `json:"unresolved_amounts"`
	DuplicateEmails      int             `json:"duplicate_emails"`
	DuplicateInvoices    int             `json:"duplicate_invoices"`
	UnknownInstallations int             `json:"unknown_installations"`
}

// Snapshot aggregates the rows. TotalAmount sums resolved amounts only.
func (l *Ledger) Snapshot() Statistics {
	s := Statistics{
		Period:               l.period,
		Total:                len(l.rows),
		TotalAmount:          decimal.Zero,
		DuplicateEmails:      l.duplicateEmails,
		DuplicateInvoices:    l.duplicateInvoices,
		UnknownInstallations: l.unknown,
	}
	for _, r := range l.rows {
		if !r.Received() {
			s.Outstanding++
			continue
		}
		s.Received++
		if amt, ok := r.Record.AmountDue.Decimal(); ok {
			s.TotalAmount = s.TotalAmount.Add(amt)
		} else {
			s.UnresolvedAmounts++
		}
	}
	if s.Total > 0 {
		s.PercentComplete = float64(s.Received) / float64(s.Total) * 100
	}
	return s
}
