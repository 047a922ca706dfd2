package processor

import (
	"context"
	"math"
	"path"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/enel-control/enel-cli/internal/consumption"
	"github.com/enel-control/enel-cli/internal/ledger"
	"github.com/enel-control/enel-cli/internal/model"
	"github.com/enel-control/enel-cli/internal/notify"
	"github.com/enel-control/enel-cli/internal/store"
)

// Reasons an installation was not alerted.
const (
	SkipUnknownInstallation = "unknown_installation"
	SkipNoRecords           = "no_records"
	SkipBelowThreshold      = "below_threshold"
	SkipNoRecipients        = "no_recipients"
	SkipNotificationsOff    = "notifications_disabled"
)

// AlertItem is the sweep outcome for one installation.
type AlertItem struct {
	Installation string                 `json:"installation"`
	Unit         string                 `json:"unit,omitempty"`
	Analysis     model.Analysis         `json:"analysis"`
	Triggered    bool                   `json:"triggered"`
	Skipped      string                 `json:"skipped,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Delivery     *notify.DeliveryReport `json:"delivery,omitempty"`
}

// NotificationBatchReport summarizes a ClassifyAndNotify call.
type NotificationBatchReport struct {
	ThresholdPercent float64     `json:"threshold_percent"`
	Evaluated        int         `json:"evaluated"`
	Triggered        int         `json:"triggered"`
	Sent             int         `json:"sent"`
	Failed           int         `json:"failed"`
	Items            []AlertItem `json:"items"`
}

// ClassifyAndNotify evaluates stored consumption and alerts the responsibles
// of each installation whose deviation reaches threshold, or whose tier is
// critical. An empty installation sweeps every unit in the mapping; a
// threshold of zero uses the configured one.
func (p *Processor) ClassifyAndNotify(ctx context.Context, installation string, threshold float64) (*NotificationBatchReport, error) {
	if threshold <= 0 {
		threshold = p.cfg.ThresholdPercent
	}
	units, err := p.loadUnits(ctx)
	if err != nil {
		return nil, err
	}

	targets := units
	report := &NotificationBatchReport{ThresholdPercent: threshold}
	if installation != "" {
		targets = nil
		for _, u := range units {
			if u.InstallationID == installation {
				targets = append(targets, u)
			}
		}
		if len(targets) == 0 {
			report.Items = append(report.Items, AlertItem{Installation: installation, Skipped: SkipUnknownInstallation})
			return report, nil
		}
	}

	latest, err := p.latestRecords(ctx)
	if err != nil {
		return nil, err
	}

	for _, u := range targets {
		if ctx.Err() != nil {
			return report, eris.Wrap(ctx.Err(), "processor: alert sweep interrupted")
		}
		item := p.evaluate(ctx, u, latest[u.InstallationID], threshold)
		report.Evaluated++
		if item.Triggered {
			report.Triggered++
		}
		if item.Delivery != nil {
			report.Sent += item.Delivery.Sent()
			report.Failed += item.Delivery.Failed()
		}
		report.Items = append(report.Items, item)
	}

	zap.L().Info("processor: alert sweep complete",
		zap.Float64("threshold", threshold),
		zap.Int("evaluated", report.Evaluated),
		zap.Int("triggered", report.Triggered),
		zap.Int("sent", report.Sent),
	)
	return report, nil
}

// latestRecords indexes the most recent stored record per installation.
func (p *Processor) latestRecords(ctx context.Context) (map[string]*model.InvoiceRecord, error) {
	recs, err := p.deps.Store.Records(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "processor: load records")
	}
	out := make(map[string]*model.InvoiceRecord, len(recs))
	for i := range recs {
		rec := &recs[i]
		prev, ok := out[rec.InstallationID]
		if !ok || prev.BillingPeriod.Key() <= rec.BillingPeriod.Key() {
			out[rec.InstallationID] = rec
		}
	}
	return out, nil
}

func (p *Processor) evaluate(ctx context.Context, u model.Unit, rec *model.InvoiceRecord, threshold float64) AlertItem {
	item := AlertItem{Installation: u.InstallationID, Unit: u.Label}
	if rec == nil {
		item.Skipped = SkipNoRecords
		return item
	}

	a, err := p.analyze(ctx, rec)
	if err != nil {
		item.Error = err.Error()
	}
	item.Analysis = a
	item.Triggered = Triggers(a, threshold)
	if !item.Triggered {
		item.Skipped = SkipBelowThreshold
		return item
	}
	if !p.canNotify() {
		item.Skipped = SkipNotificationsOff
		return item
	}

	recipients, err := p.deps.Directory.RecipientsFor(ctx, p.deps.Keys.Key(u.Label))
	if err != nil {
		item.Error = err.Error()
		return item
	}
	if len(recipients) == 0 {
		item.Skipped = SkipNoRecipients
		return item
	}

	archive := ArchivePath(rec.InstallationID, rec.BillingPeriod)
	att := &notify.Attachment{
		Filename: path.Base(archive),
		Load: func(ctx context.Context) ([]byte, error) {
			return p.deps.Blob.Read(ctx, archive)
		},
	}
	d := p.deps.Dispatcher.Notify(ctx, a, rec, u.Label, recipients, att)
	item.Delivery = &d
	return item
}

// Triggers reports whether an analysis warrants a sweep alert.
func Triggers(a model.Analysis, threshold float64) bool {
	if a.Classification.Tier == model.TierCritical {
		return true
	}
	if a.TrailingAverage <= 0 {
		return false
	}
	return math.Abs(a.DeviationPercent) >= threshold
}

// SendMonthlySummary sends the admins the statistics of a period, read back
// from its export, with the summary PDF attached.
func (p *Processor) SendMonthlySummary(ctx context.Context, period model.Period) (*notify.DeliveryReport, error) {
	if !period.Valid() {
		return nil, eris.Errorf("processor: invalid period %s", period)
	}
	if !p.canNotify() {
		return nil, eris.New("processor: notifications are not configured")
	}

	units, err := p.loadUnits(ctx)
	if err != nil {
		return nil, err
	}
	l := p.newLedger(period, units)
	data, err := p.deps.Blob.Read(ctx, ledger.ExportPath(period))
	if err != nil {
		return nil, eris.Wrapf(err, "processor: read export for %s", period)
	}
	if _, err := l.Restore(data); err != nil {
		return nil, err
	}

	admins, err := p.deps.Directory.Admins(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "processor: load admins")
	}
	if len(admins) == 0 {
		return nil, eris.New("processor: no admins to notify")
	}

	pdf, err := l.SummaryPDF()
	if err != nil {
		zap.L().Warn("processor: summary pdf failed, sending text only", zap.Error(err))
		pdf = nil
	}
	report := p.deps.Dispatcher.NotifySummary(ctx, l.Snapshot(), admins, pdf)
	return &report, nil
}

// AnalyzeInstallation runs the shared evaluation over one installation's
// stored history. The newest entry is the current reading.
func AnalyzeInstallation(ctx context.Context, st store.RecordStore, installation string) ([]model.HistoryEntry, model.Analysis, error) {
	history, err := st.HistoryFor(ctx, installation)
	if err != nil {
		return nil, model.Analysis{}, eris.Wrap(err, "processor: history")
	}
	if len(history) == 0 {
		return history, consumption.Analyze(nil), nil
	}
	return history, consumption.Analyze(consumption.PrepareHistory(history[0], history)), nil
}
