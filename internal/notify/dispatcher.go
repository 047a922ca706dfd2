package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/enel-control/enel-cli/internal/collab"
	"github.com/enel-control/enel-cli/internal/ledger"
	"github.com/enel-control/enel-cli/internal/model"
)

// DefaultMaxAttachmentBytes is the Telegram document ceiling.
const DefaultMaxAttachmentBytes = 50 << 20

// DefaultSendInterval spaces consecutive sends.
const DefaultSendInterval = time.Second

// Attachment is a document sent alongside the text. Load is only called when
// a recipient is about to receive it, and at most once per Notify.
type Attachment struct {
	Filename string
	Load     func(ctx context.Context) ([]byte, error)
}

// Delivery is the outcome for one recipient.
type Delivery struct {
	Recipient model.Recipient `json:"recipient"`
	Sent      bool            `json:"sent"`
	Fallback  bool            `json:"fallback,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// DeliveryReport collects the per-recipient outcomes of one dispatch.
type DeliveryReport struct {
	Template   string     `json:"template"`
	Deliveries []Delivery `json:"deliveries"`
}

// Sent counts successful deliveries.
func (r *DeliveryReport) Sent() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Sent {
			n++
		}
	}
	return n
}

// Failed counts deliveries that did not go out.
func (r *DeliveryReport) Failed() int {
	return len(r.Deliveries) - r.Sent()
}

// Dispatcher renders templates and sends them through a Messenger.
type Dispatcher struct {
	messenger     collab.Messenger
	templates     *Templates
	limiter       *rate.Limiter
	maxAttachment int
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithTemplates replaces the default templates.
func WithTemplates(t *Templates) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.templates = t
		}
	}
}

// WithSendInterval sets the minimum spacing between sends. Zero disables it.
func WithSendInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval <= 0 {
			d.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		d.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// WithMaxAttachmentBytes sets the size above which documents fall back to text.
func WithMaxAttachmentBytes(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttachment = n
		}
	}
}

// NewDispatcher creates a Dispatcher over messenger.
func NewDispatcher(messenger collab.Messenger, opts ...Option) (*Dispatcher, error) {
	if messenger == nil {
		return nil, eris.New("notify: messenger is required")
	}
	d := &Dispatcher{
		messenger:     messenger,
		limiter:       rate.NewLimiter(rate.Every(DefaultSendInterval), 1),
		maxAttachment: DefaultMaxAttachmentBytes,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.templates == nil {
		t, err := NewTemplates(nil)
		if err != nil {
			return nil, err
		}
		d.templates = t
	}
	return d, nil
}

// Notify sends the tier message for one analyzed invoice to each recipient.
// A failure for one recipient is recorded and the rest still go out.
func (d *Dispatcher) Notify(ctx context.Context, a model.Analysis, rec *model.InvoiceRecord, unitLabel string, recipients []model.Recipient, att *Attachment) DeliveryReport {
	key := string(a.Classification.Tier)
	if key == "" {
		key = string(model.TierNoData)
	}
	data := InvoiceData(a, rec, unitLabel)
	return d.dispatch(ctx, key, data, recipients, att)
}

// NotifySummary sends the monthly summary of a period to the admins, with the
// summary PDF attached when one is given.
func (d *Dispatcher) NotifySummary(ctx context.Context, stats ledger.Statistics, admins []model.Recipient, pdf []byte) DeliveryReport {
	data := TemplateData{
		Period:            stats.Period.String(),
		Received:          stats.Received,
		Outstanding:       stats.Outstanding,
		TotalAmount:       model.NewAmount(stats.TotalAmount).Display(),
		DuplicateEmails:   stats.DuplicateEmails,
		DuplicateInvoices: stats.DuplicateInvoices,
	}
	var att *Attachment
	if len(pdf) > 0 {
		att = &Attachment{
			Filename: fmt.Sprintf("Resumo_ENEL_%04d%02d.pdf", stats.Period.Year, stats.Period.Month),
			Load:     func(context.Context) ([]byte, error) { return pdf, nil },
		}
	}
	return d.dispatch(ctx, KeySummary, data, admins, att)
}

// NotifyDuplicates sends the duplicate-control counters to the admins.
func (d *Dispatcher) NotifyDuplicates(ctx context.Context, stats ledger.Statistics, reprocessed int, admins []model.Recipient) DeliveryReport {
	data := TemplateData{
		Period:            stats.Period.String(),
		DuplicateEmails:   stats.DuplicateEmails,
		DuplicateInvoices: stats.DuplicateInvoices,
		Reprocessed:       reprocessed,
	}
	return d.dispatch(ctx, KeyDuplicates, data, admins, nil)
}

func (d *Dispatcher) dispatch(ctx context.Context, key string, data TemplateData, recipients []model.Recipient, att *Attachment) DeliveryReport {
	report := DeliveryReport{Template: key, Deliveries: make([]Delivery, 0, len(recipients))}
	log := zap.L().With(zap.String("template", key), zap.String("unit", data.Unit))

	doc := &lazyDoc{att: att, max: d.maxAttachment}
	for _, r := range recipients {
		delivery := Delivery{Recipient: r}

		data.Recipient = r.Name
		text, err := d.templates.Render(key, data)
		if err != nil {
			delivery.Error = err.Error()
			report.Deliveries = append(report.Deliveries, delivery)
			log.Error("notify: render failed", zap.String("recipient", r.ID), zap.Error(err))
			continue
		}

		if err := d.limiter.Wait(ctx); err != nil {
			delivery.Error = eris.Wrap(err, "notify: wait for send slot").Error()
			report.Deliveries = append(report.Deliveries, delivery)
			continue
		}

		delivery.Sent, delivery.Fallback, err = d.send(ctx, r, text, doc)
		if err != nil {
			delivery.Error = err.Error()
			log.Warn("notify: delivery failed", zap.String("recipient", r.ID), zap.Error(err))
		}
		report.Deliveries = append(report.Deliveries, delivery)
	}

	log.Info("notify: dispatch complete",
		zap.Int("recipients", len(recipients)),
		zap.Int("sent", report.Sent()),
	)
	return report
}

// send delivers to one recipient, preferring the document and falling back to
// plain text when the document cannot be loaded or sent.
func (d *Dispatcher) send(ctx context.Context, r model.Recipient, text string, doc *lazyDoc) (sent, fallback bool, err error) {
	if data, ok := doc.get(ctx); ok {
		err := d.messenger.SendDocument(ctx, r.ID, text, data, doc.att.Filename)
		if err == nil {
			return true, false, nil
		}
		zap.L().Warn("notify: document send failed, falling back to text",
			zap.String("recipient", r.ID),
			zap.Error(err),
		)
		fallback = true
	} else if doc.att != nil {
		fallback = true
	}

	if err := d.messenger.SendText(ctx, r.ID, text); err != nil {
		return false, fallback, eris.Wrapf(err, "notify: send to %s", r.ID)
	}
	return true, fallback, nil
}

// lazyDoc loads an attachment on first use and remembers the outcome.
type lazyDoc struct {
	att    *Attachment
	max    int
	loaded bool
	data   []byte
	ok     bool
}

func (l *lazyDoc) get(ctx context.Context) ([]byte, bool) {
	if l.att == nil || l.att.Load == nil {
		return nil, false
	}
	if l.loaded {
		return l.data, l.ok
	}
	l.loaded = true

	data, err := l.att.Load(ctx)
	switch {
	case err != nil:
		zap.L().Warn("notify: attachment unavailable", zap.String("file", l.att.Filename), zap.Error(err))
	case len(data) == 0:
		zap.L().Warn("notify: attachment empty", zap.String("file", l.att.Filename))
	case len(data) > l.max:
		zap.L().Warn("notify: attachment too large",
			zap.String("file", l.att.Filename),
			zap.Int("bytes", len(data)),
			zap.Int("max", l.max),
		)
	default:
		l.data, l.ok = data, true
	}
	return l.data, l.ok
}
