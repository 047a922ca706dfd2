// Package extract turns raw invoice text into a model.InvoiceRecord.
package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/enel-control/enel-cli/internal/model"
	"github.com/enel-control/enel-cli/internal/textnorm"
)

// Outcome reports what the extractor could not resolve. It is not an error:
// an invoice with an unresolved amount is still a valid record.
type Outcome struct {
	AmountUnresolved bool     `json:"amount_unresolved"`
	Missing          []string `json:"missing,omitempty"`
}

// OK reports whether the record can be reconciled, i.e. the installation was found.
func (o Outcome) OK() bool {
	return !o.has(FieldInstallation)
}

func (o Outcome) has(field string) bool {
	for _, m := range o.Missing {
		if m == field {
			return true
		}
	}
	return false
}

// Extractor applies ordered patterns to invoice text.
type Extractor struct {
	patterns Patterns
}

// New creates an Extractor with the default patterns.
func New() *Extractor {
	return &Extractor{patterns: DefaultPatterns()}
}

// NewWithPatterns creates an Extractor with custom patterns.
func NewWithPatterns(p Patterns) *Extractor {
	return &Extractor{patterns: p}
}

// Extract parses text into a record. A missing amount yields the unresolved
// sentinel and Outcome.AmountUnresolved, never a zero amount.
func (e *Extractor) Extract(text string) (*model.InvoiceRecord, Outcome) {
	folded := textnorm.Fold(text)
	rec := &model.InvoiceRecord{AmountDue: model.UnresolvedAmount()}
	var out Outcome
	miss := func(field string) { out.Missing = append(out.Missing, field) }

	if v, ok := first(folded, e.patterns.Installation); ok {
		rec.InstallationID = v
	} else {
		miss(FieldInstallation)
	}

	if v, ok := first(folded, e.patterns.Amount); ok {
		if d, err := NormalizeNumber(v); err == nil && !d.IsNegative() {
			rec.AmountDue = model.NewAmount(d)
		} else {
			zap.L().Warn("extract: unparsable amount", zap.String("raw", v), zap.Error(err))
		}
	}
	if !rec.AmountDue.IsResolved() {
		out.AmountUnresolved = true
		miss(FieldAmount)
	}

	if t, ok := e.date(folded, e.patterns.DueDate); ok {
		rec.DueDate = t
	} else {
		miss(FieldDueDate)
	}
	if t, ok := e.date(folded, e.patterns.IssueDate); ok {
		rec.IssueDate = t
	} else {
		miss(FieldIssueDate)
	}

	if v, ok := first(folded, e.patterns.InvoiceNumber); ok {
		rec.InvoiceNumber = strings.ReplaceAll(v, ".", "")
	} else {
		miss(FieldInvoiceNumber)
	}

	if v, ok := first(folded, e.patterns.Consumption); ok {
		if f, err := normalizeFloat(v); err == nil && f >= 0 {
			rec.ConsumptionKWh = f
		} else {
			miss(FieldConsumption)
		}
	} else {
		miss(FieldConsumption)
	}

	if v, ok := first(folded, e.patterns.Period); ok {
		if p, err := model.ParsePeriod(v); err == nil {
			rec.BillingPeriod = p
		} else {
			miss(FieldPeriod)
		}
	} else {
		miss(FieldPeriod)
	}

	rec.InjectedKWh = e.quantity(folded, e.patterns.InjectedKWh)
	rec.CompensatedKWh = e.quantity(folded, e.patterns.CompensatedKWh)
	rec.CreditBalanceKWh = e.quantity(folded, e.patterns.CreditBalanceKWh)
	rec.CompensationTUSD = e.money(folded, e.patterns.CompensationTUSD)
	rec.CompensationTE = e.money(folded, e.patterns.CompensationTE)
	rec.TotalCompensation = e.money(folded, e.patterns.TotalCompensation)
	if rec.TotalCompensation.IsZero() {
		rec.TotalCompensation = rec.CompensationTUSD.Add(rec.CompensationTE)
	}
	rec.HasOffsetGeneration = rec.DetectOffsetGeneration()

	return rec, out
}

func (e *Extractor) date(text string, patterns []*regexp.Regexp) (time.Time, bool) {
	v, ok := first(text, patterns)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse("02/01/2006", v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// quantity returns the absolute value of the first match, or 0.
func (e *Extractor) quantity(text string, patterns []*regexp.Regexp) float64 {
	v, ok := first(text, patterns)
	if !ok {
		return 0
	}
	f, err := normalizeFloat(v)
	if err != nil {
		return 0
	}
	if f < 0 {
		return -f
	}
	return f
}

// money returns the absolute value of the first match, or zero. Invoices
// print compensation lines as credits (negative).
func (e *Extractor) money(text string, patterns []*regexp.Regexp) decimal.Decimal {
	v, ok := first(text, patterns)
	if !ok {
		return decimal.Zero
	}
	d, err := NormalizeNumber(v)
	if err != nil {
		return decimal.Zero
	}
	return d.Abs()
}

// ArchiveFilename is the canonical name an accepted invoice PDF is stored under.
func ArchiveFilename(installation string, p model.Period) string {
	return fmt.Sprintf("UC-%s-%04d-%02d-ENEL.pdf", installation, p.Year, p.Month)
}
