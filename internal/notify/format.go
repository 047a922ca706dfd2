package notify

import (
	"time"

	"github.com/enel-control/enel-cli/internal/model"
)

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "não informado"
	}
	return t.Format("02/01/2006")
}

// InvoiceData builds the template data for one analyzed invoice.
func InvoiceData(a model.Analysis, rec *model.InvoiceRecord, unitLabel string) TemplateData {
	d := TemplateData{
		Unit:              unitLabel,
		ConsumptionKWh:    a.Current,
		AverageKWh:        a.TrailingAverage,
		DeviationAbsolute: a.Classification.DeviationAbsolute,
		DeviationPercent:  a.DeviationPercent,
		Amount:            model.UnresolvedAmount().Display(),
		DueDate:           formatDate(time.Time{}),
	}
	if rec == nil {
		return d
	}
	d.Installation = rec.InstallationID
	d.DueDate = formatDate(rec.DueDate)
	d.Amount = rec.AmountDue.Display()
	d.HasOffset = rec.HasOffsetGeneration
	d.Compensation = model.NewAmount(rec.TotalCompensation).Display()
	d.WithoutOffset = rec.IntegralAmountWithoutOffset().Display()
	d.SavingsPercent = rec.OffsetSavingsPercent()
	if d.ConsumptionKWh == 0 {
		d.ConsumptionKWh = rec.ConsumptionKWh
	}
	return d
}
