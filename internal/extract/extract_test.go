package extract

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enel-control/enel-cli/internal/model"
)

const sampleInvoice = `ENEL DISTRIBUIÇÃO SÃO PAULO
Nº DA INSTALAÇÃO: 12345678
Nota Fiscal Nº 718.968.230   Data de Emissão: 10/06/2025
Mês de Referência: 06/2025
Vencimento: 14/07/2025
Consumo Faturado 280 kWh
Energia Injetada 120 kWh
Energia Compensada 95 kWh
Saldo de Créditos 40 kWh
Compensação TUSD R$ -12,50
Compensação TE R$ -8,20
TOTAL A PAGAR R$ 1.126,37
`

func TestNormalizeNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"1.126,37", "1126.37"},
		{"126,37", "126.37"},
		{"126.37", "126.37"},
		{"1.126", "1126"},
		{"280", "280"},
		{"1.234.567", "1234567"},
		{"1.234.567,89", "1234567.89"},
		{"12.5", "125"},
		{"126,37.", "126.37"},
		{"-12,50", "-12.5"},
		{",50", "0.5"},
		{".50", "0.5"},
		{"-,75", "-0.75"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeNumber(tt.in)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestNormalizeNumber_Invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", ".", "1,2,3", "abc"} {
		_, err := NormalizeNumber(in)
		assert.Error(t, err, in)
	}
}

func TestExtract_FullInvoice(t *testing.T) {
	t.Parallel()

	rec, out := New().Extract(sampleInvoice)
	require.True(t, out.OK())
	assert.False(t, out.AmountUnresolved)
	assert.Empty(t, out.Missing)

	assert.Equal(t, "12345678", rec.InstallationID)
	assert.Equal(t, "718968230", rec.InvoiceNumber)
	assert.Equal(t, model.Period{Month: 6, Year: 2025}, rec.BillingPeriod)
	assert.Equal(t, time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC), rec.DueDate)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), rec.IssueDate)
	assert.InDelta(t, 280.0, rec.ConsumptionKWh, 0.001)

	amt, ok := rec.AmountDue.Decimal()
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("1126.37").Equal(amt))

	assert.InDelta(t, 120.0, rec.InjectedKWh, 0.001)
	assert.InDelta(t, 95.0, rec.CompensatedKWh, 0.001)
	assert.InDelta(t, 40.0, rec.CreditBalanceKWh, 0.001)
	assert.True(t, decimal.RequireFromString("12.50").Equal(rec.CompensationTUSD))
	assert.True(t, decimal.RequireFromString("8.20").Equal(rec.CompensationTE))
	assert.True(t, decimal.RequireFromString("20.70").Equal(rec.TotalCompensation))
	assert.True(t, rec.HasOffsetGeneration)
}

func TestExtract_MissingAmountIsUnresolved(t *testing.T) {
	t.Parallel()

	text := "Instalação: 12345678\nVencimento: 14/07/2025\nConsumo 300 kWh\nReferência 06/2025\n"
	rec, out := New().Extract(text)

	assert.True(t, out.OK())
	assert.True(t, out.AmountUnresolved)
	assert.Contains(t, out.Missing, FieldAmount)
	assert.False(t, rec.AmountDue.IsResolved())
	assert.Equal(t, model.UnresolvedMarker, rec.AmountDue.Display())
	assert.False(t, rec.HasOffsetGeneration)
}

func TestExtract_PatternPrecedence(t *testing.T) {
	t.Parallel()

	// "Total a pagar" outranks the first bare R$ in the text.
	text := "Tarifa R$ 0,85\nTotal a pagar: R$ 126,37\nUC 87654321\n"
	rec, _ := New().Extract(text)

	amt, ok := rec.AmountDue.Decimal()
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("126.37").Equal(amt))
	assert.Equal(t, "87654321", rec.InstallationID)
}

func TestExtract_NoInstallation(t *testing.T) {
	t.Parallel()

	_, out := New().Extract("Total a pagar R$ 10,00")
	assert.False(t, out.OK())
	assert.Contains(t, out.Missing, FieldInstallation)
}

func TestExtract_PeriodIgnoresDateFragments(t *testing.T) {
	t.Parallel()

	rec, out := New().Extract("Instalação 12345678\nVencimento 14/07/2025\n")
	assert.Contains(t, out.Missing, FieldPeriod)
	assert.True(t, rec.BillingPeriod.IsZero())
}

func TestExtract_TotalCompensationTakesPrecedence(t *testing.T) {
	t.Parallel()

	text := "Instalação 12345678\nCompensação TUSD R$ 10,00\nTotal da Compensação R$ 25,00\n"
	rec, _ := New().Extract(text)
	assert.True(t, decimal.NewFromInt(25).Equal(rec.TotalCompensation))
	assert.True(t, rec.HasOffsetGeneration)
}

func TestArchiveFilename(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "UC-12345678-2025-06-ENEL.pdf", ArchiveFilename("12345678", model.Period{Month: 6, Year: 2025}))
}
