package ledger

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/rotisserie/eris"

	"github.com/enel-control/enel-cli/internal/model"
)

// SummaryPDF renders a one-page report of the period: the statistics block
// and the outstanding installations.
func (l *Ledger) SummaryPDF() ([]byte, error) {
	s := l.Snapshot()

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "B", 14)
	pdf.AddPage()

	pdf.Cell(0, 8, tr(fmt.Sprintf("Faturas ENEL - %s", l.period)))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	lines := []string{
		fmt.Sprintf("%s %s", labelProcessedAt, l.now().Format("02/01/2006 15:04")),
		fmt.Sprintf("%s %d", labelTotal, s.Total),
		fmt.Sprintf("%s %d", labelReceived, s.Received),
		fmt.Sprintf("%s %d", labelOutstanding, s.Outstanding),
		fmt.Sprintf("%s %.1f%%", labelPercent, s.PercentComplete),
		fmt.Sprintf("%s %s", labelAmount, model.NewAmount(s.TotalAmount).Display()),
		fmt.Sprintf("%s %d", labelUnresolved, s.UnresolvedAmounts),
		fmt.Sprintf("%s %d", labelDuplicateEmails, s.DuplicateEmails),
		fmt.Sprintf("%s %d", labelDuplicateInvs, s.DuplicateInvoices),
	}
	for _, line := range lines {
		pdf.Cell(0, 6, tr(line))
		pdf.Ln(5)
	}

	var outstanding []*Row
	for _, r := range l.rows {
		if !r.Received() {
			outstanding = append(outstanding, r)
		}
	}
	if len(outstanding) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(100, 6, tr("Casa de Oração"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, tr("Instalação"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, "Vencimento", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
		for _, r := range outstanding {
			pdf.CellFormat(100, 6, tr(r.Unit.Label), "1", 0, "L", false, 0, "")
			pdf.CellFormat(45, 6, r.Unit.InstallationID, "1", 0, "C", false, 0, "")
			pdf.CellFormat(35, 6, formatDate(r.ExpectedDueDate), "1", 0, "C", false, 0, "")
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, eris.Wrap(err, "ledger: render summary pdf")
	}
	return buf.Bytes(), nil
}
