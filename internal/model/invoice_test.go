package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestInvoiceRecord_IntegralAmountWithoutOffset(t *testing.T) {
	t.Parallel()

	rec := &InvoiceRecord{
		AmountDue:         NewAmount(decimal.RequireFromString("150.40")),
		TotalCompensation: decimal.RequireFromString("49.60"),
	}
	d, ok := rec.IntegralAmountWithoutOffset().Decimal()
	assert.True(t, ok)
	assert.True(t, d.Equal(decimal.NewFromInt(200)))
	assert.InDelta(t, 24.8, rec.OffsetSavingsPercent(), 0.0001)
}

func TestInvoiceRecord_UnresolvedAmount(t *testing.T) {
	t.Parallel()

	rec := &InvoiceRecord{
		AmountDue:         UnresolvedAmount(),
		TotalCompensation: decimal.NewFromInt(30),
	}
	assert.False(t, rec.IntegralAmountWithoutOffset().IsResolved())
	assert.Zero(t, rec.OffsetSavingsPercent())
}

func TestInvoiceRecord_OffsetSavingsZeroIntegral(t *testing.T) {
	t.Parallel()

	rec := &InvoiceRecord{AmountDue: NewAmount(decimal.Zero)}
	assert.Zero(t, rec.OffsetSavingsPercent())
}

func TestInvoiceRecord_DetectOffsetGeneration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rec  InvoiceRecord
		want bool
	}{
		{name: "none", rec: InvoiceRecord{}, want: false},
		{name: "injected", rec: InvoiceRecord{InjectedKWh: 120}, want: true},
		{name: "compensated", rec: InvoiceRecord{CompensatedKWh: 80}, want: true},
		{name: "credit balance", rec: InvoiceRecord{CreditBalanceKWh: 5}, want: true},
		{name: "total compensation", rec: InvoiceRecord{TotalCompensation: decimal.RequireFromString("0.01")}, want: true},
		{name: "negative ignored", rec: InvoiceRecord{InjectedKWh: -3, TotalCompensation: decimal.NewFromInt(-1)}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.DetectOffsetGeneration())
		})
	}
}

func TestTier_LabelAndParse(t *testing.T) {
	t.Parallel()

	for _, tier := range Tiers {
		assert.NotEmpty(t, tier.Label())

		got, ok := ParseTier(string(tier))
		assert.True(t, ok)
		assert.Equal(t, tier, got)

		got, ok = ParseTier(tier.Label())
		assert.True(t, ok)
		assert.Equal(t, tier, got)
	}

	_, ok := ParseTier("unknown")
	assert.False(t, ok)
	assert.Equal(t, "unknown", Tier("unknown").Label())
}

func TestTier_Urgent(t *testing.T) {
	t.Parallel()

	assert.True(t, TierCritical.Urgent())
	assert.True(t, TierHigh.Urgent())
	assert.False(t, TierAboveAverage.Urgent())
	assert.False(t, TierNoHistory.Urgent())
}
