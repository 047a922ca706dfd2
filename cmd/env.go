package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/enel-control/enel-cli/internal/collab"
	"github.com/enel-control/enel-cli/internal/ledger"
	"github.com/enel-control/enel-cli/internal/metrics"
	"github.com/enel-control/enel-cli/internal/notify"
	"github.com/enel-control/enel-cli/internal/pdftext"
	"github.com/enel-control/enel-cli/internal/processor"
	"github.com/enel-control/enel-cli/internal/recipients"
	"github.com/enel-control/enel-cli/internal/resilience"
	"github.com/enel-control/enel-cli/internal/store"
	"github.com/enel-control/enel-cli/pkg/msauth"
	"github.com/enel-control/enel-cli/pkg/msgraph"
	"github.com/enel-control/enel-cli/pkg/telegram"
)

// appEnv holds the initialized collaborators shared by the commands.
type appEnv struct {
	Graph      msgraph.Client // nil when Graph is not configured
	Store      store.RecordStore
	Directory  collab.RecipientDirectory // nil when notifications are off
	Dispatcher *notify.Dispatcher        // nil when notifications are off
	Processor  *processor.Processor      // nil without Graph
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// initEnv validates the config for mode and builds the collaborators. The
// record store and the recipients directory are fetched concurrently.
// Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	metrics.Init()

	env := &appEnv{}
	retry := resilience.FromRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)

	var blob collab.BlobStore
	if cfg.Graph.ClientID != "" {
		graph, err := initGraph(retry)
		if err != nil {
			return nil, err
		}
		env.Graph = graph
		blob = graph
	} else {
		zap.L().Warn("graph not configured, using the local store only")
	}

	messenger := initMessenger(retry)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, err := store.NewRecordStore(gctx, store.Options{
			Driver:      cfg.Store.Driver,
			DatabaseURL: cfg.Store.DatabaseURL,
			LocalPath:   cfg.Store.LocalPath,
			BlobPath:    cfg.Store.BlobPath,
			Pool: &store.PoolConfig{
				MaxConns: cfg.Store.MaxConns,
				MinConns: cfg.Store.MinConns,
			},
		}, blob)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		env.Store = st
		return nil
	})
	if messenger != nil && blob != nil {
		g.Go(func() error {
			dir, err := recipients.Load(gctx, blob, cfg.Blob.RecipientsFile,
				recipients.WithAdminIDs(cfg.Notify.AdminIDs))
			if err != nil {
				return eris.Wrap(err, "load recipients")
			}
			env.Directory = dir
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		env.Close()
		return nil, err
	}

	if messenger != nil && env.Directory != nil {
		d, err := initDispatcher(messenger)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Dispatcher = d
	}

	if blob == nil {
		return env, nil
	}

	keys := ledger.CodeKeyMapper{AdminKeywords: cfg.Ledger.AdminKeywords}
	proc, err := processor.New(processor.Config{
		RelationshipFile: cfg.Blob.RelationshipFile,
		SenderFilter:     cfg.Graph.SenderFilter,
		SubjectFilter:    cfg.Graph.SubjectFilter,
		ThresholdPercent: cfg.Notify.ThresholdPercent,
		BatchLimit:       cfg.Batch.Limit,
		MetricsTextfile:  cfg.Metrics.TextfilePath,
	}, processor.Deps{
		Mailbox:    env.Graph,
		Blob:       blob,
		Store:      env.Store,
		PDF:        pdftext.NewPdfToText(cfg.PDF.PdfToTextPath, cfg.PDF.Passwords),
		Directory:  env.Directory,
		Dispatcher: env.Dispatcher,
		Keys:       keys,
		LedgerOptions: []ledger.Option{
			ledger.WithGrouper(ledger.KeywordGrouper{Keyword: cfg.Ledger.GroupKeyword}),
			ledger.WithDefaultDueDay(cfg.Ledger.DefaultDueDay),
		},
	})
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Processor = proc
	return env, nil
}

func initGraph(retry resilience.RetryConfig) (msgraph.Client, error) {
	cred, err := msauth.NewSource(msauth.Config{
		TenantID:     cfg.Graph.TenantID,
		ClientID:     cfg.Graph.ClientID,
		ClientSecret: cfg.Graph.ClientSecret,
		RefreshToken: cfg.Graph.RefreshToken,
		TokenURL:     cfg.Graph.TokenURL,
		TokenFile:    cfg.Graph.TokenFile,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init graph credential")
	}

	return msgraph.NewClient(cred,
		msgraph.WithBaseURL(cfg.Graph.BaseURL),
		msgraph.WithUser(cfg.Graph.MailboxUser),
		msgraph.WithRoot(cfg.Blob.Root),
		msgraph.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Graph.TimeoutSecs) * time.Second}),
		msgraph.WithRetry(retry),
		msgraph.WithRateLimit(cfg.Graph.RateLimit),
		msgraph.WithBreaker(resilience.NewBreaker("msgraph", 5, 30*time.Second)),
	), nil
}

// initMessenger returns nil when no bot token is configured; runs then
// reconcile without sending anything.
func initMessenger(retry resilience.RetryConfig) collab.Messenger {
	if cfg.Telegram.Token == "" {
		zap.L().Warn("ENEL_TELEGRAM_TOKEN not set, notifications disabled")
		return nil
	}
	return telegram.NewClient(cfg.Telegram.Token,
		telegram.WithBaseURL(cfg.Telegram.BaseURL),
		telegram.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Telegram.TimeoutSecs) * time.Second}),
		telegram.WithRetry(retry),
		telegram.WithBreaker(resilience.NewBreaker("telegram", 5, time.Minute)),
	)
}

func initDispatcher(messenger collab.Messenger) (*notify.Dispatcher, error) {
	tpl, err := notify.LoadTemplates(cfg.Notify.TemplatesFile)
	if err != nil {
		return nil, eris.Wrap(err, "load notification templates")
	}
	return notify.NewDispatcher(messenger,
		notify.WithTemplates(tpl),
		notify.WithSendInterval(time.Duration(cfg.Notify.SendIntervalMs)*time.Millisecond),
		notify.WithMaxAttachmentBytes(cfg.Notify.MaxAttachmentBytes),
	)
}
