package ledger

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/enel-control/enel-cli/internal/model"
)

// Sheet names in the exported workbook.
const (
	InvoiceSheet = "Faturas ENEL"
	SummarySheet = "Resumo"
)

const dateLayout = "02/01/2006"

// Columns of the invoice sheet, in order.
var Columns = []string{
	"Casa de Oração",
	"Competencia",
	"Data_Emissao",
	"Nota_Fiscal",
	"Vencimento",
	"Valor",
	"Consumo_kWh",
	"Media_6_Meses",
	"Diferenca_Percentual",
	"Porcentagem_Consumo",
	"Alerta_Consumo",
	"Sistema_Fotovoltaico",
	"Compensacao_TUSD",
	"Compensacao_TE",
	"Total_Compensacao",
	"Valor_Integral_Sem_FV",
	"Percentual_Economia_FV",
	"Numero_Instalacao",
	"Status",
}

// Summary sheet labels.
const (
	labelProcessedAt     = "Processado em:"
	labelPeriod          = "Mês/Ano:"
	labelTotal           = "Total de Instalações:"
	labelReceived        = "Faturas Recebidas:"
	labelOutstanding     = "Faturas Faltando:"
	labelPercent         = "Percentual Concluído:"
	labelAmount          = "Valor Total:"
	labelUnresolved      = "Valores com Erro de Extração:"
	labelDuplicateEmails = "Emails Duplicados Ignorados:"
	labelDuplicateInvs   = "Faturas Duplicadas Ignoradas:"
)

// Filename is the workbook name for a period.
func Filename(p model.Period) string {
	return fmt.Sprintf("Faturas_ENEL_%04d%02d.xlsx", p.Year, p.Month)
}

// ExportPath is where the period's workbook lives in the blob store.
func ExportPath(p model.Period) string {
	return fmt.Sprintf("Controle/%04d/%02d/%s", p.Year, p.Month, Filename(p))
}

// Export renders the ledger as a workbook: the invoice sheet grouped with
// subtotals and a grand total, and a summary sheet.
func (l *Ledger) Export() ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", InvoiceSheet); err != nil {
		return nil, eris.Wrap(err, "ledger: rename sheet")
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return nil, eris.Wrap(err, "ledger: create summary sheet")
	}

	if err := l.writeInvoices(f); err != nil {
		return nil, err
	}
	if err := l.writeSummary(f); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "ledger: write workbook")
	}
	return buf.Bytes(), nil
}

func (l *Ledger) writeInvoices(f *excelize.File) error {
	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := setRow(f, InvoiceSheet, 1, header); err != nil {
		return err
	}

	grouped := make(map[string][]*Row)
	for _, r := range l.rows {
		g := l.grouper.Group(r.Unit.Label)
		grouped[g] = append(grouped[g], r)
	}

	line := 2
	total := decimal.Zero
	for _, g := range l.grouper.Groups() {
		rows := grouped[g]
		if len(rows) == 0 {
			continue
		}
		if err := setRow(f, InvoiceSheet, line, []any{fmt.Sprintf("=== GRUPO %s ===", g)}); err != nil {
			return err
		}
		line++

		subtotal := decimal.Zero
		for _, r := range rows {
			if err := setRow(f, InvoiceSheet, line, l.rowValues(r)); err != nil {
				return err
			}
			line++
			if r.Received() {
				if amt, ok := r.Record.AmountDue.Decimal(); ok {
					subtotal = subtotal.Add(amt)
				}
			}
		}

		if err := setRow(f, InvoiceSheet, line, totalRow("SUBTOTAL "+g, subtotal)); err != nil {
			return err
		}
		line += 2
		total = total.Add(subtotal)
	}

	return setRow(f, InvoiceSheet, line, totalRow("TOTAL GERAL", total))
}

// totalRow places the label in the first column and the amount under Valor.
func totalRow(label string, amount decimal.Decimal) []any {
	vals := make([]any, 6)
	vals[0] = label
	vals[5] = model.NewAmount(amount).Display()
	return vals
}

func (l *Ledger) rowValues(r *Row) []any {
	vals := make([]any, len(Columns))
	for i := range vals {
		vals[i] = ""
	}
	vals[0] = r.Unit.Label
	vals[1] = l.period.String()
	vals[4] = formatDate(r.ExpectedDueDate)
	vals[17] = r.Unit.InstallationID
	vals[18] = string(r.Status)
	if !r.Received() {
		return vals
	}

	rec := r.Record
	a := r.Analysis
	if !rec.BillingPeriod.IsZero() {
		vals[1] = rec.BillingPeriod.String()
	}
	vals[2] = formatDate(rec.IssueDate)
	vals[3] = rec.InvoiceNumber
	if !rec.DueDate.IsZero() {
		vals[4] = formatDate(rec.DueDate)
	}
	vals[5] = rec.AmountDue.Display()
	vals[6] = round2(rec.ConsumptionKWh)
	vals[7] = round2(a.TrailingAverage)
	vals[8] = round2(a.DeviationPercent)
	vals[9] = round2(a.Classification.PercentOfAverage)
	vals[10] = a.Classification.Tier.Label()
	vals[11] = yesNo(rec.HasOffsetGeneration)
	vals[12] = rec.CompensationTUSD.Round(2).InexactFloat64()
	vals[13] = rec.CompensationTE.Round(2).InexactFloat64()
	vals[14] = rec.TotalCompensation.Round(2).InexactFloat64()
	vals[15] = rec.IntegralAmountWithoutOffset().Display()
	vals[16] = rec.OffsetSavingsPercent()
	return vals
}

func (l *Ledger) writeSummary(f *excelize.File) error {
	s := l.Snapshot()
	rows := [][]any{
		{"Resumo do Processamento"},
		{},
		{labelProcessedAt, l.now().Format("02/01/2006 15:04:05")},
		{labelPeriod, l.period.String()},
		{labelTotal, s.Total},
		{labelReceived, s.Received},
		{labelOutstanding, s.Outstanding},
		{labelPercent, fmt.Sprintf("%.1f%%", s.PercentComplete)},
		{labelAmount, model.NewAmount(s.TotalAmount).Display()},
		{labelUnresolved, s.UnresolvedAmounts},
		{labelDuplicateEmails, s.DuplicateEmails},
		{labelDuplicateInvs, s.DuplicateInvoices},
	}
	for i, r := range rows {
		if len(r) == 0 {
			continue
		}
		if err := setRow(f, SummarySheet, i+1, r); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, line int, vals []any) error {
	cell, err := excelize.CoordinatesToCellName(1, line)
	if err != nil {
		return eris.Wrap(err, "ledger: cell name")
	}
	if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
		return eris.Wrapf(err, "ledger: write %s row %d", sheet, line)
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func yesNo(b bool) string {
	if b {
		return "Sim"
	}
	return "Não"
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
