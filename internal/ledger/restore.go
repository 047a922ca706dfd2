package ledger

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/enel-control/enel-cli/internal/extract"
	"github.com/enel-control/enel-cli/internal/model"
	"github.com/enel-control/enel-cli/internal/sheet"
)

// Restore marks rows Received from a workbook previously written by Export,
// so an interrupted period resumes where it stopped. Rows for installations
// no longer in the mapping are ignored. It returns the number of rows restored.
func (l *Ledger) Restore(data []byte) (int, error) {
	rows, err := sheet.Read(data, sheet.Options{SheetName: InvoiceSheet})
	if err != nil {
		return 0, eris.Wrap(err, "ledger: read previous export")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	h := sheet.NewHeader(rows[0])
	col := make(map[string]int, len(Columns))
	for _, name := range Columns {
		i, ok := h.Index(name)
		if !ok {
			return 0, eris.Errorf("ledger: previous export missing column %q", name)
		}
		col[name] = i
	}
	get := func(row []string, name string) string {
		return sheet.Cell(row, col[name])
	}

	restored := 0
	for _, row := range rows[1:] {
		if Status(get(row, "Status")) != StatusReceived {
			continue
		}
		r, ok := l.index[get(row, "Numero_Instalacao")]
		if !ok || r.Received() {
			continue
		}

		rec := &model.InvoiceRecord{
			InstallationID: r.Unit.InstallationID,
			InvoiceNumber:  get(row, "Nota_Fiscal"),
			AmountDue:      parseAmount(get(row, "Valor")),
			ConsumptionKWh: parseFloat(get(row, "Consumo_kWh")),
			IssueDate:      parseDate(get(row, "Data_Emissao")),
			DueDate:        parseDate(get(row, "Vencimento")),
		}
		if p, err := model.ParsePeriod(get(row, "Competencia")); err == nil {
			rec.BillingPeriod = p
		}
		rec.CompensationTUSD = parseDecimal(get(row, "Compensacao_TUSD"))
		rec.CompensationTE = parseDecimal(get(row, "Compensacao_TE"))
		rec.TotalCompensation = parseDecimal(get(row, "Total_Compensacao"))
		rec.HasOffsetGeneration = strings.EqualFold(get(row, "Sistema_Fotovoltaico"), "Sim")

		avg := parseFloat(get(row, "Media_6_Meses"))
		analysis := model.Analysis{
			Current:          rec.ConsumptionKWh,
			TrailingAverage:  avg,
			DeviationPercent: parseFloat(get(row, "Diferenca_Percentual")),
		}
		analysis.Classification = model.ClassificationResult{
			Tier:             tierFromLabel(get(row, "Alerta_Consumo")),
			DeviationPercent: analysis.DeviationPercent,
			PercentOfAverage: parseFloat(get(row, "Porcentagem_Consumo")),
		}
		if avg > 0 {
			analysis.Classification.DeviationAbsolute = round2(rec.ConsumptionKWh - avg)
		}

		r.Record = rec
		r.Analysis = analysis
		r.Status = StatusReceived
		r.ReceivedAt = l.now().UTC()
		restored++
	}

	l.restoreCounters(data)

	zap.L().Info("ledger: restored previous export",
		zap.String("period", l.period.String()),
		zap.Int("restored", restored),
	)
	return restored, nil
}

// restoreCounters carries the duplicate counters over from the summary sheet.
// A missing sheet leaves them untouched.
func (l *Ledger) restoreCounters(data []byte) {
	rows, err := sheet.Read(data, sheet.Options{SheetName: SummarySheet})
	if err != nil {
		return
	}
	for _, row := range rows {
		n, err := strconv.Atoi(sheet.Cell(row, 1))
		if err != nil {
			continue
		}
		switch sheet.Cell(row, 0) {
		case labelDuplicateEmails:
			l.duplicateEmails = n
		case labelDuplicateInvs:
			l.duplicateInvoices = n
		}
	}
}

func tierFromLabel(label string) model.Tier {
	if t, ok := model.ParseTier(label); ok {
		return t
	}
	return model.TierNoData
}

func parseAmount(s string) model.Amount {
	if s == "" || s == model.UnresolvedMarker {
		return model.UnresolvedAmount()
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, "R$"))
	d, err := extract.NormalizeNumber(s)
	if err != nil {
		return model.UnresolvedAmount()
	}
	return model.NewAmount(d)
}

// parseDecimal reads numeric cells, which come back in plain "775.5" form.
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d
	}
	if d, err := extract.NormalizeNumber(s); err == nil {
		return d
	}
	return decimal.Zero
}

func parseFloat(s string) float64 {
	return parseDecimal(s).InexactFloat64()
}

func parseDate(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
