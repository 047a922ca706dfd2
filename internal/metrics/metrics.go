// Package metrics exposes Prometheus counters for invoice processing and
// notification delivery.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

const metricPrefix = "enel_"

// Invoice outcomes.
const (
	OutcomeAccepted        = "accepted"
	OutcomeStoreDuplicate  = "store_duplicate"
	OutcomeLedgerDuplicate = "ledger_duplicate"
	OutcomeUnknownUnit     = "unknown_installation"
	OutcomeExtractionError = "extraction_failed"
)

// Notification results.
const (
	ResultSent     = "sent"
	ResultFallback = "fallback"
	ResultFailed   = "failed"
)

var (
	registerOnce sync.Once

	invoicesTotal      *prometheus.CounterVec
	extractionFailures prometheus.Counter
	notificationsTotal *prometheus.CounterVec
	batchDuration      *prometheus.HistogramVec
	ledgerCompletion   *prometheus.GaugeVec
)

// Init registers the metrics with the default registry. Safe to call more
// than once; recording before Init is a no-op.
func Init() {
	registerOnce.Do(func() {
		invoicesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoices_total",
				Help: "Invoice attachments processed by outcome",
			},
			[]string{"outcome"},
		)
		extractionFailures = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "extraction_failures_total",
				Help: "Attachments whose text or fields could not be extracted",
			},
		)
		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Notification deliveries by template and result",
			},
			[]string{"tier", "result"},
		)
		batchDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "batch_duration_seconds",
				Help:    "Period batch duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"result"},
		)
		ledgerCompletion = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "ledger_completion_ratio",
				Help: "Share of expected invoices received for the period",
			},
			[]string{"period"},
		)

		prometheus.MustRegister(
			invoicesTotal,
			extractionFailures,
			notificationsTotal,
			batchDuration,
			ledgerCompletion,
		)
	})
}

// IncInvoice counts one processed attachment.
func IncInvoice(outcome string) {
	if invoicesTotal != nil {
		invoicesTotal.WithLabelValues(outcome).Inc()
	}
	if outcome == OutcomeExtractionError && extractionFailures != nil {
		extractionFailures.Inc()
	}
}

// IncNotification counts one delivery attempt.
func IncNotification(tier, result string) {
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(tier, result).Inc()
	}
}

// ObserveBatch records a batch run.
func ObserveBatch(err error, duration time.Duration) {
	if batchDuration == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	batchDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// SetCompletion sets the received share, 0..1, for a period label.
func SetCompletion(period string, ratio float64) {
	if ledgerCompletion != nil {
		ledgerCompletion.WithLabelValues(period).Set(ratio)
	}
}

// WriteTextfile dumps the default registry in the node-exporter textfile
// format. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return eris.Wrapf(err, "metrics: write textfile %s", path)
	}
	return nil
}
