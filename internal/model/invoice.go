package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceRecord is one parsed invoice. It is built once by the extractor and
// never mutated afterwards.
type InvoiceRecord struct {
	InstallationID string    `json:"installation_id"`
	BillingPeriod  Period    `json:"billing_period"`
	IssueDate      time.Time `json:"issue_date,omitzero"`
	DueDate        time.Time `json:"due_date,omitzero"`
	InvoiceNumber  string    `json:"invoice_number,omitempty"`

	AmountDue      Amount  `json:"amount_due"`
	ConsumptionKWh float64 `json:"consumption_kwh"`

	// Offset generation signals.
	InjectedKWh       float64         `json:"injected_kwh,omitempty"`
	CompensatedKWh    float64         `json:"compensated_kwh,omitempty"`
	CreditBalanceKWh  float64         `json:"credit_balance_kwh,omitempty"`
	CompensationTUSD  decimal.Decimal `json:"compensation_tusd"`
	CompensationTE    decimal.Decimal `json:"compensation_te"`
	TotalCompensation decimal.Decimal `json:"total_compensation"`

	HasOffsetGeneration bool `json:"has_offset_generation"`

	SourceAttachmentHash string `json:"source_attachment_hash,omitempty"`
	SourceMessageID      string `json:"source_message_id,omitempty"`
	SourceFilename       string `json:"source_filename,omitempty"`
}

// IntegralAmountWithoutOffset is what the invoice would cost without offset
// compensation: amount due plus total compensation. It is unresolved when the
// amount due is.
func (r *InvoiceRecord) IntegralAmountWithoutOffset() Amount {
	amt, ok := r.AmountDue.Decimal()
	if !ok {
		return UnresolvedAmount()
	}
	return NewAmount(amt.Add(r.TotalCompensation))
}

// OffsetSavingsPercent is total compensation as a share of the integral amount,
// rounded to two decimals. Zero when the integral amount is zero or unresolved.
func (r *InvoiceRecord) OffsetSavingsPercent() float64 {
	integral, ok := r.IntegralAmountWithoutOffset().Decimal()
	if !ok || !integral.IsPositive() {
		return 0
	}
	return r.TotalCompensation.Div(integral).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}

// DetectOffsetGeneration reports whether any of the four offset signals is
// strictly positive.
func (r *InvoiceRecord) DetectOffsetGeneration() bool {
	return r.InjectedKWh > 0 ||
		r.CompensatedKWh > 0 ||
		r.TotalCompensation.IsPositive() ||
		r.CreditBalanceKWh > 0
}

// HistoryEntry is one (period, consumption) sample for an installation.
type HistoryEntry struct {
	Period         Period  `json:"period"`
	ConsumptionKWh float64 `json:"consumption_kwh"`
}

// Unit is one row of the relationship mapping.
type Unit struct {
	Label          string `json:"label"`
	InstallationID string `json:"installation_id"`
	DueDay         int    `json:"due_day"`
}

// Recipient is a notification target.
type Recipient struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}
