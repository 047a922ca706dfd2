package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enel-control/enel-cli/internal/model"
)

func criticalAnalysis() model.Analysis {
	return model.Analysis{
		Current:          500,
		TrailingAverage:  180,
		DeviationPercent: 177.78,
		Samples:          6,
		Classification: model.ClassificationResult{
			Tier:              model.TierCritical,
			DeviationPercent:  177.78,
			DeviationAbsolute: 320,
			PercentOfAverage:  277.78,
		},
	}
}

func testRecord() *model.InvoiceRecord {
	return &model.InvoiceRecord{
		InstallationID: "12345678",
		BillingPeriod:  model.Period{Month: 2, Year: 2025},
		DueDate:        time.Date(2025, 2, 12, 0, 0, 0, 0, time.UTC),
		AmountDue:      model.NewAmount(decimal.RequireFromString("1126.37")),
		ConsumptionKWh: 500,
	}
}

func TestDefaultTemplates_CoverEveryTier(t *testing.T) {
	t.Parallel()

	for _, tier := range model.Tiers {
		_, ok := DefaultTemplates[string(tier)]
		assert.True(t, ok, "missing template for %s", tier)
	}
	assert.Contains(t, DefaultTemplates, KeySummary)
	assert.Contains(t, DefaultTemplates, KeyDuplicates)
}

func TestRender_EveryTier(t *testing.T) {
	t.Parallel()

	tpl, err := NewTemplates(nil)
	require.NoError(t, err)

	data := InvoiceData(criticalAnalysis(), testRecord(), "BR 21-0270 - CENTRO")
	for _, tier := range model.Tiers {
		out, err := tpl.Render(string(tier), data)
		require.NoError(t, err, tier)
		assert.Contains(t, out, "A Paz de Deus!")
		assert.Contains(t, out, "BR 21-0270 - CENTRO")
		assert.Contains(t, out, "Deus abençoe!")
	}
}

func TestRender_Critical(t *testing.T) {
	t.Parallel()

	tpl, err := NewTemplates(nil)
	require.NoError(t, err)

	out, err := tpl.Render(string(model.TierCritical), InvoiceData(criticalAnalysis(), testRecord(), "CENTRO"))
	require.NoError(t, err)

	assert.Contains(t, out, "CONSUMO CRÍTICO")
	assert.Contains(t, out, "Instalação ENEL: 12345678")
	assert.Contains(t, out, "Vencimento: 12/02/2025")
	assert.Contains(t, out, "R$ 1.126,37")
	assert.Contains(t, out, "Consumo Atual: 500 kWh")
	assert.Contains(t, out, "Média (6 meses): 180 kWh")
	assert.Contains(t, out, "+320 kWh")
	assert.Contains(t, out, "AÇÃO URGENTE")
	assert.NotContains(t, out, "Fotovoltaico mascarando")
}

func TestRender_CriticalWithOffset(t *testing.T) {
	t.Parallel()

	tpl, err := NewTemplates(nil)
	require.NoError(t, err)

	rec := testRecord()
	rec.HasOffsetGeneration = true
	rec.TotalCompensation = decimal.RequireFromString("200")

	out, err := tpl.Render(string(model.TierCritical), InvoiceData(criticalAnalysis(), rec, "CENTRO"))
	require.NoError(t, err)

	assert.Contains(t, out, "Fotovoltaico mascarando consumo")
	assert.Contains(t, out, "Sem fotovoltaico seria: R$ 1.326,37")
	assert.Contains(t, out, "Economia atual: R$ 200,00")
}

func TestRender_UnresolvedAmount(t *testing.T) {
	t.Parallel()

	tpl, err := NewTemplates(nil)
	require.NoError(t, err)

	rec := testRecord()
	rec.AmountDue = model.UnresolvedAmount()

	out, err := tpl.Render(string(model.TierHigh), InvoiceData(criticalAnalysis(), rec, "CENTRO"))
	require.NoError(t, err)
	assert.Contains(t, out, model.UnresolvedMarker)
	assert.NotContains(t, out, "R$ 0,00")
}

func TestRender_Summary(t *testing.T) {
	t.Parallel()

	tpl, err := NewTemplates(nil)
	require.NoError(t, err)

	out, err := tpl.Render(KeySummary, TemplateData{Period: "02/2025", Received: 10, Outstanding: 0, TotalAmount: "R$ 5,00"})
	require.NoError(t, err)
	assert.Contains(t, out, "RESUMO MENSAL ENEL - 02/2025")
	assert.Contains(t, out, "Processamento completo")

	out, err = tpl.Render(KeySummary, TemplateData{Period: "02/2025", Received: 8, Outstanding: 2})
	require.NoError(t, err)
	assert.Contains(t, out, "2 fatura(s) pendente(s)")
}

func TestRender_UnknownKey(t *testing.T) {
	t.Parallel()

	tpl, err := NewTemplates(nil)
	require.NoError(t, err)
	_, err = tpl.Render("nope", TemplateData{})
	assert.Error(t, err)
}

func TestNewTemplates_Override(t *testing.T) {
	t.Parallel()

	tpl, err := NewTemplates(map[string]string{
		string(model.TierHigh): "alto {{.Unit}}",
	})
	require.NoError(t, err)

	out, err := tpl.Render(string(model.TierHigh), TemplateData{Unit: "CENTRO"})
	require.NoError(t, err)
	assert.Equal(t, "alto CENTRO", out)

	out, err = tpl.Render(string(model.TierCritical), TemplateData{Unit: "CENTRO"})
	require.NoError(t, err)
	assert.Contains(t, out, "CONSUMO CRÍTICO")
}

func TestNewTemplates_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewTemplates(map[string]string{"bogus": "x"})
	assert.Error(t, err)

	_, err = NewTemplates(map[string]string{KeySummary: "{{.Unit"})
	assert.Error(t, err)
}

func TestLoadTemplates(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("duplicates: \"dups {{.DuplicateEmails}}\"\n"), 0o600))

	tpl, err := LoadTemplates(path)
	require.NoError(t, err)
	out, err := tpl.Render(KeyDuplicates, TemplateData{DuplicateEmails: 3})
	require.NoError(t, err)
	assert.Equal(t, "dups 3", out)

	_, err = LoadTemplates(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	tpl, err = LoadTemplates("")
	require.NoError(t, err)
	assert.NotNil(t, tpl)
}

func TestFormatNumber(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "250", model.FormatNumber(250, 0))
	assert.Equal(t, "87,5", model.FormatNumber(87.5, 1))
}
