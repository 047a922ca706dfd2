package processor

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/enel-control/enel-cli/internal/collab"
	"github.com/enel-control/enel-cli/internal/consumption"
	"github.com/enel-control/enel-cli/internal/dedupe"
	"github.com/enel-control/enel-cli/internal/ledger"
	"github.com/enel-control/enel-cli/internal/metrics"
	"github.com/enel-control/enel-cli/internal/model"
	"github.com/enel-control/enel-cli/internal/notify"
	"github.com/enel-control/enel-cli/internal/store"
)

// Processing stages reported in ItemError.
const (
	StageAttachments = "attachments"
	StageDownload    = "download"
	StageText        = "text"
	StageExtract     = "extract"
	StageStore       = "store"
	StageHistory     = "history"
	StageArchive     = "archive"
	StageRecipients  = "recipients"
	StageRestore     = "restore"
	StageExport      = "export"
)

// Options controls one batch run.
type Options struct {
	// Limit caps the messages listed; zero uses the configured batch limit.
	Limit int `json:"limit"`
	// DryRun reconciles in memory without writing or sending anything.
	DryRun bool `json:"dry_run"`
	// Notify sends the tier message for each accepted invoice.
	Notify bool `json:"notify"`
	// Since overrides the start of the message window, which defaults to the
	// first day of the period.
	Since time.Time `json:"since,omitzero"`
}

// ItemError is a per-message problem that did not abort the run.
type ItemError struct {
	MessageID  string `json:"message_id,omitempty"`
	Attachment string `json:"attachment,omitempty"`
	Stage      string `json:"stage"`
	Error      string `json:"error"`
}

// ProcessingReport summarizes a batch run. Every anomaly is counted here;
// per-record problems never surface as an error from ProcessPeriodBatch.
type ProcessingReport struct {
	RunID      string       `json:"run_id"`
	Period     model.Period `json:"period"`
	DryRun     bool         `json:"dry_run"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`

	MessagesProcessed    int `json:"messages_processed"`
	DuplicatesSkipped    int `json:"duplicates_skipped"`
	AttachmentsProcessed int `json:"attachments_processed"`
	RecordsAccepted      int `json:"records_accepted"`
	RowsRestored         int `json:"rows_restored"`
	ExtractionFailures   int `json:"extraction_failures"`
	AmountsUnresolved    int `json:"amounts_unresolved"`
	UnknownInstallations int `json:"unknown_installations"`
	StoreDuplicates      int `json:"store_duplicates"`
	LedgerDuplicates     int `json:"ledger_duplicates"`
	Notifications        int `json:"notifications"`
	NotificationFailures int `json:"notification_failures"`

	Errors     []ItemError       `json:"errors,omitempty"`
	Ledger     ledger.Statistics `json:"ledger"`
	ExportPath string            `json:"export_path,omitempty"`
}

func (r *ProcessingReport) addError(msgID, attachment, stage string, err error) {
	r.Errors = append(r.Errors, ItemError{MessageID: msgID, Attachment: attachment, Stage: stage, Error: err.Error()})
}

// run carries the state of one ProcessPeriodBatch call.
type run struct {
	opts   Options
	ledger *ledger.Ledger
	guard  *dedupe.Guard
	report *ProcessingReport
	log    *zap.Logger
}

// ProcessPeriodBatch reconciles the invoice emails of a period against its
// ledger. It returns an error only when the run cannot start: the mapping or
// the mailbox listing is unavailable.
func (p *Processor) ProcessPeriodBatch(ctx context.Context, period model.Period, opts Options) (report *ProcessingReport, err error) {
	if !period.Valid() {
		return nil, eris.Errorf("processor: invalid period %s", period)
	}
	if p.deps.Mailbox == nil {
		return nil, eris.New("processor: mailbox is required for a batch run")
	}
	if p.deps.PDF == nil {
		return nil, eris.New("processor: pdf text extractor is required for a batch run")
	}

	unlock := p.lockPeriod(period)
	defer unlock()

	start := p.deps.Now()
	defer func() { metrics.ObserveBatch(err, time.Since(start)) }()

	r := &run{
		opts:  opts,
		guard: dedupe.NewGuard(),
		report: &ProcessingReport{
			RunID:     uuid.NewString(),
			Period:    period,
			DryRun:    opts.DryRun,
			StartedAt: start.UTC(),
		},
	}
	r.log = zap.L().With(zap.String("run_id", r.report.RunID), zap.String("period", period.String()))
	r.log.Info("processor: starting batch", zap.Bool("dry_run", opts.DryRun), zap.Bool("notify", opts.Notify))

	units, err := p.loadUnits(ctx)
	if err != nil {
		return nil, err
	}
	r.ledger = p.newLedger(period, units)
	p.restore(ctx, r)

	msgs, err := p.deps.Mailbox.ListCandidateMessages(ctx, p.messageFilter(period, opts))
	if err != nil {
		return nil, eris.Wrap(err, "processor: list messages")
	}
	r.log.Info("processor: candidate messages", zap.Int("count", len(msgs)))

	for _, msg := range msgs {
		if ctx.Err() != nil {
			r.report.addError(msg.ID, "", StageDownload, ctx.Err())
			break
		}
		p.handleMessage(ctx, r, msg)
	}

	if !opts.DryRun {
		p.export(ctx, r)
		if opts.Notify && p.canNotify() && r.report.DuplicatesSkipped+r.report.LedgerDuplicates > 0 {
			p.notifyDuplicates(ctx, r)
		}
	}

	r.report.Ledger = r.ledger.Snapshot()
	r.report.FinishedAt = p.deps.Now().UTC()
	metrics.SetCompletion(period.String(), r.report.Ledger.PercentComplete/100)
	if !opts.DryRun {
		if err := metrics.WriteTextfile(p.cfg.MetricsTextfile); err != nil {
			r.log.Warn("processor: metrics textfile", zap.Error(err))
		}
	}

	r.log.Info("processor: batch complete",
		zap.Int("messages", r.report.MessagesProcessed),
		zap.Int("accepted", r.report.RecordsAccepted),
		zap.Int("received", r.report.Ledger.Received),
		zap.Int("outstanding", r.report.Ledger.Outstanding),
		zap.Int("errors", len(r.report.Errors)),
	)
	return r.report, nil
}

func (p *Processor) messageFilter(period model.Period, opts Options) collab.MessageFilter {
	limit := opts.Limit
	if limit <= 0 {
		limit = p.cfg.BatchLimit
	}
	since := opts.Since
	if since.IsZero() {
		since = period.FirstDay()
	}
	return collab.MessageFilter{
		Since:               since,
		Until:               period.LastDay().Add(24*time.Hour - time.Nanosecond),
		SenderContains:      p.cfg.SenderFilter,
		SubjectContains:     p.cfg.SubjectFilter,
		OnlyWithAttachments: true,
		Limit:               limit,
	}
}

// restore resumes from the period's previous export when there is one.
func (p *Processor) restore(ctx context.Context, r *run) {
	data, err := p.deps.Blob.Read(ctx, ledger.ExportPath(r.ledger.Period()))
	if errors.Is(err, collab.ErrNotFound) {
		return
	}
	if err != nil {
		r.report.addError("", "", StageRestore, err)
		r.log.Warn("processor: previous export unavailable", zap.Error(err))
		return
	}
	n, err := r.ledger.Restore(data)
	if err != nil {
		r.report.addError("", "", StageRestore, err)
		r.log.Warn("processor: previous export unreadable", zap.Error(err))
		return
	}
	r.report.RowsRestored = n
}

func (p *Processor) handleMessage(ctx context.Context, r *run, msg collab.Message) {
	if r.guard.CheckAndMark(msg.ID) {
		r.report.DuplicatesSkipped++
		r.ledger.MarkDuplicateEmail()
		return
	}
	r.report.MessagesProcessed++

	refs, err := p.deps.Mailbox.ListAttachments(ctx, msg.ID)
	if err != nil {
		r.report.addError(msg.ID, "", StageAttachments, err)
		r.log.Warn("processor: list attachments failed", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	for _, ref := range refs {
		if !isPDF(ref) {
			continue
		}
		p.handleAttachment(ctx, r, msg, ref)
	}
}

func isPDF(ref collab.AttachmentRef) bool {
	return strings.EqualFold(ref.ContentType, "application/pdf") ||
		strings.HasSuffix(strings.ToLower(ref.Name), ".pdf")
}

func (p *Processor) handleAttachment(ctx context.Context, r *run, msg collab.Message, ref collab.AttachmentRef) {
	log := r.log.With(zap.String("message_id", msg.ID), zap.String("attachment", ref.Name))
	r.report.AttachmentsProcessed++

	raw, err := p.deps.Mailbox.FetchAttachment(ctx, msg.ID, ref.ID)
	if err != nil {
		r.report.addError(msg.ID, ref.Name, StageDownload, err)
		log.Warn("processor: download failed", zap.Error(err))
		return
	}

	text, err := p.deps.PDF.Text(ctx, raw)
	if err != nil {
		r.report.ExtractionFailures++
		r.report.addError(msg.ID, ref.Name, StageText, err)
		metrics.IncInvoice(metrics.OutcomeExtractionError)
		log.Warn("processor: pdf text failed", zap.Error(err))
		return
	}

	rec, outcome := p.deps.Extractor.Extract(text)
	if !outcome.OK() {
		r.report.ExtractionFailures++
		r.report.addError(msg.ID, ref.Name, StageExtract, eris.Errorf("processor: missing fields %v", outcome.Missing))
		metrics.IncInvoice(metrics.OutcomeExtractionError)
		log.Warn("processor: installation not found in invoice", zap.Strings("missing", outcome.Missing))
		return
	}
	if outcome.AmountUnresolved {
		r.report.AmountsUnresolved++
	}
	rec.SourceMessageID = msg.ID
	rec.SourceFilename = ref.Name
	rec.SourceAttachmentHash = store.ContentHash(raw)

	storeDuplicate := false
	if !r.opts.DryRun {
		res, err := p.deps.Store.Insert(ctx, rec, msg.ID, raw)
		if err != nil {
			r.report.addError(msg.ID, ref.Name, StageStore, err)
			log.Error("processor: store insert failed", zap.Error(err))
			return
		}
		storeDuplicate = res.Duplicate
	}
	if storeDuplicate {
		r.report.StoreDuplicates++
		metrics.IncInvoice(metrics.OutcomeStoreDuplicate)
		// Seen in an earlier run. Only fill the row if that run's export was
		// lost; it was already notified then.
		if row, ok := r.ledger.Row(rec.InstallationID); !ok || row.Received() {
			return
		}
	}

	var analysis model.Analysis
	accepted := r.ledger.AcceptWith(rec, func() model.Analysis {
		a, err := p.analyze(ctx, rec)
		if err != nil {
			r.report.addError(msg.ID, ref.Name, StageHistory, err)
			log.Warn("processor: history unavailable, classifying without it", zap.Error(err))
		}
		analysis = a
		return a
	})
	switch accepted {
	case ledger.UnknownInstallation:
		r.report.UnknownInstallations++
		metrics.IncInvoice(metrics.OutcomeUnknownUnit)
		return
	case ledger.DuplicateRejected:
		r.report.LedgerDuplicates++
		metrics.IncInvoice(metrics.OutcomeLedgerDuplicate)
		return
	}
	r.report.RecordsAccepted++
	metrics.IncInvoice(metrics.OutcomeAccepted)
	log.Info("processor: invoice accepted",
		zap.String("installation", rec.InstallationID),
		zap.String("tier", string(analysis.Classification.Tier)),
		zap.String("amount", rec.AmountDue.Display()),
	)

	if r.opts.DryRun {
		return
	}
	archived := p.archive(ctx, r, rec, raw, msg.ID, ref.Name)
	if r.opts.Notify && !storeDuplicate {
		p.notifyAccepted(ctx, r, rec, analysis, raw, archived)
	}
}

// analyze runs the shared evaluation over the stored history plus the
// current reading.
func (p *Processor) analyze(ctx context.Context, rec *model.InvoiceRecord) (model.Analysis, error) {
	current := model.HistoryEntry{Period: rec.BillingPeriod, ConsumptionKWh: rec.ConsumptionKWh}
	stored, err := p.deps.Store.HistoryFor(ctx, rec.InstallationID)
	if err != nil {
		return consumption.Analyze([]model.HistoryEntry{current}), err
	}
	return consumption.Analyze(consumption.PrepareHistory(current, stored)), nil
}

func (p *Processor) archive(ctx context.Context, r *run, rec *model.InvoiceRecord, raw []byte, msgID, name string) string {
	period := rec.BillingPeriod
	if !period.Valid() {
		period = r.ledger.Period()
	}
	dest := ArchivePath(rec.InstallationID, period)
	if err := p.deps.Blob.Write(ctx, dest, raw); err != nil {
		r.report.addError(msgID, name, StageArchive, err)
		r.log.Warn("processor: archive failed", zap.String("path", dest), zap.Error(err))
		return ""
	}
	return dest
}

func (p *Processor) notifyAccepted(ctx context.Context, r *run, rec *model.InvoiceRecord, a model.Analysis, raw []byte, archived string) {
	if !p.canNotify() {
		return
	}
	row, ok := r.ledger.Row(rec.InstallationID)
	if !ok {
		return
	}
	key := p.deps.Keys.Key(row.Unit.Label)
	recipients, err := p.deps.Directory.RecipientsFor(ctx, key)
	if err != nil {
		r.report.addError(rec.SourceMessageID, rec.SourceFilename, StageRecipients, err)
		return
	}
	if len(recipients) == 0 {
		r.log.Info("processor: no recipients for unit", zap.String("unit", row.Unit.Label), zap.String("key", key))
		return
	}

	filename := rec.SourceFilename
	if archived != "" {
		filename = path.Base(archived)
	}
	att := &notify.Attachment{
		Filename: filename,
		Load:     func(context.Context) ([]byte, error) { return raw, nil },
	}
	report := p.deps.Dispatcher.Notify(ctx, a, rec, row.Unit.Label, recipients, att)
	r.report.recordDeliveries(report)
}

func (p *Processor) notifyDuplicates(ctx context.Context, r *run) {
	admins, err := p.deps.Directory.Admins(ctx)
	if err != nil || len(admins) == 0 {
		return
	}
	stats := r.ledger.Snapshot()
	report := p.deps.Dispatcher.NotifyDuplicates(ctx, stats, r.report.StoreDuplicates, admins)
	r.report.recordDeliveries(report)
}

func (r *ProcessingReport) recordDeliveries(d notify.DeliveryReport) {
	for _, del := range d.Deliveries {
		switch {
		case !del.Sent:
			r.NotificationFailures++
			metrics.IncNotification(d.Template, metrics.ResultFailed)
		case del.Fallback:
			r.Notifications++
			metrics.IncNotification(d.Template, metrics.ResultFallback)
		default:
			r.Notifications++
			metrics.IncNotification(d.Template, metrics.ResultSent)
		}
	}
}

func (p *Processor) export(ctx context.Context, r *run) {
	data, err := r.ledger.Export()
	if err != nil {
		r.report.addError("", "", StageExport, err)
		r.log.Error("processor: export failed", zap.Error(err))
		return
	}
	dest := ledger.ExportPath(r.ledger.Period())
	if err := p.deps.Blob.Write(ctx, dest, data); err != nil {
		r.report.addError("", "", StageExport, err)
		r.log.Error("processor: export upload failed", zap.String("path", dest), zap.Error(err))
		return
	}
	r.report.ExportPath = dest
}
