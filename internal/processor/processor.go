// Package processor runs the period batch: it pulls invoice emails, extracts
// and stores their records, reconciles them against the period ledger and
// dispatches consumption alerts.
package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/enel-control/enel-cli/internal/collab"
	"github.com/enel-control/enel-cli/internal/extract"
	"github.com/enel-control/enel-cli/internal/ledger"
	"github.com/enel-control/enel-cli/internal/mapping"
	"github.com/enel-control/enel-cli/internal/model"
	"github.com/enel-control/enel-cli/internal/notify"
	"github.com/enel-control/enel-cli/internal/pdftext"
	"github.com/enel-control/enel-cli/internal/store"
)

// DefaultThresholdPercent is the deviation that triggers a sweep alert.
const DefaultThresholdPercent = 150.0

// DefaultBatchLimit caps the messages listed per run.
const DefaultBatchLimit = 200

// Config holds the processor settings.
type Config struct {
	RelationshipFile string
	SenderFilter     string
	SubjectFilter    string
	ThresholdPercent float64
	BatchLimit       int
	MetricsTextfile  string
}

// Deps are the collaborators a Processor works with. Dispatcher and Directory
// are optional; without either, runs reconcile but send nothing.
type Deps struct {
	Mailbox    collab.Mailbox
	Blob       collab.BlobStore
	Store      store.RecordStore
	PDF        pdftext.Extractor
	Extractor  *extract.Extractor
	Directory  collab.RecipientDirectory
	Dispatcher *notify.Dispatcher
	Keys       ledger.KeyMapper

	LedgerOptions []ledger.Option
	Now           func() time.Time
}

// Processor owns the lifecycle of a batch run.
type Processor struct {
	cfg  Config
	deps Deps

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

// New validates deps and fills defaults.
func New(cfg Config, deps Deps) (*Processor, error) {
	if deps.Blob == nil {
		return nil, eris.New("processor: blob store is required")
	}
	if deps.Store == nil {
		return nil, eris.New("processor: record store is required")
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.New()
	}
	if deps.Keys == nil {
		deps.Keys = ledger.CodeKeyMapper{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.ThresholdPercent <= 0 {
		cfg.ThresholdPercent = DefaultThresholdPercent
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultBatchLimit
	}
	if cfg.RelationshipFile == "" {
		cfg.RelationshipFile = "relacionamento.xlsx"
	}
	return &Processor{cfg: cfg, deps: deps, locks: make(map[int]*sync.Mutex)}, nil
}

// lockPeriod serializes runs for the same period within this process.
func (p *Processor) lockPeriod(period model.Period) func() {
	p.mu.Lock()
	l, ok := p.locks[period.Key()]
	if !ok {
		l = &sync.Mutex{}
		p.locks[period.Key()] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (p *Processor) canNotify() bool {
	return p.deps.Dispatcher != nil && p.deps.Directory != nil
}

func (p *Processor) loadUnits(ctx context.Context) ([]model.Unit, error) {
	units, err := mapping.Load(ctx, p.deps.Blob, p.cfg.RelationshipFile)
	if err != nil {
		return nil, eris.Wrap(err, "processor: load relationship mapping")
	}
	return units, nil
}

func (p *Processor) newLedger(period model.Period, units []model.Unit) *ledger.Ledger {
	opts := append([]ledger.Option{ledger.WithClock(p.deps.Now)}, p.deps.LedgerOptions...)
	return ledger.Initialize(period, units, opts...)
}

// ArchivePath is where an accepted invoice PDF is stored.
func ArchivePath(installation string, period model.Period) string {
	return fmt.Sprintf("Faturas/%04d/%02d/%s", period.Year, period.Month, extract.ArchiveFilename(installation, period))
}
