package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/enel-control/enel-cli/internal/model"
	"github.com/enel-control/enel-cli/internal/processor"
	"github.com/enel-control/enel-cli/internal/store"
)

var servePort int

// serveBackend is the part of the processor the HTTP API drives.
type serveBackend interface {
	ProcessPeriodBatch(ctx context.Context, period model.Period, opts processor.Options) (*processor.ProcessingReport, error)
	ClassifyAndNotify(ctx context.Context, installation string, threshold float64) (*processor.NotificationBatchReport, error)
}

// apiServer holds the handlers' dependencies. Period runs outlive their
// request and are tracked in runs so shutdown can wait for them.
type apiServer struct {
	backend serveBackend
	store   store.RecordStore
	baseCtx context.Context
	runs    sync.WaitGroup
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for period runs, alerts and record queries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		s := &apiServer{backend: env.Processor, store: env.Store, baseCtx: ctx}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(s, cfg.Server.AllowedOrigins, time.Duration(cfg.Server.RequestTimeoutSecs)*time.Second),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			err := srv.Shutdown(shutdownCtx)
			s.runs.Wait()
			return err
		})
		return g.Wait()
	},
}

func buildRouter(s *apiServer, origins []string, timeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/process", s.handleProcess)
		r.Post("/alerts", s.handleAlerts)
		r.Get("/records/stats", s.handleStats)
		r.Get("/records/{installation}/history", s.handleHistory)
	})
	return r
}

type processRequest struct {
	Period string `json:"period"`
	Limit  int    `json:"limit"`
	DryRun bool   `json:"dry_run"`
	Notify *bool  `json:"notify"`
}

// handleProcess validates the request and starts the period run in the
// background. The report is logged when the run finishes.
func (s *apiServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	period, err := resolvePeriod(req.Period, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "period must be MM/YYYY")
		return
	}
	opts := processor.Options{Limit: req.Limit, DryRun: req.DryRun, Notify: true}
	if req.Notify != nil {
		opts.Notify = *req.Notify
	}

	requestID := middleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		report, err := s.backend.ProcessPeriodBatch(s.baseCtx, period, opts)
		if err != nil {
			zap.L().Error("api: period run failed",
				zap.String("request_id", requestID),
				zap.Stringer("period", period),
				zap.Error(err),
			)
			return
		}
		zap.L().Info("api: period run complete",
			zap.String("request_id", requestID),
			zap.String("run_id", report.RunID),
			zap.Stringer("period", period),
			zap.Int("accepted", report.RecordsAccepted),
		)
	}()

	writeResponse(w, http.StatusAccepted, map[string]string{
		"status":     "accepted",
		"period":     period.String(),
		"request_id": requestID,
	})
}

type alertsRequest struct {
	Installation     string  `json:"installation"`
	ThresholdPercent float64 `json:"threshold_percent"`
}

func (s *apiServer) handleAlerts(w http.ResponseWriter, r *http.Request) {
	var req alertsRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.ThresholdPercent < 0 {
		writeError(w, http.StatusBadRequest, "threshold_percent must be >= 0")
		return
	}
	report, err := s.backend.ClassifyAndNotify(r.Context(), req.Installation, req.ThresholdPercent)
	if err != nil {
		zap.L().Error("api: alerts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "alerts failed")
		return
	}
	writeResponse(w, http.StatusOK, report)
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Statistics(r.Context())
	if err != nil {
		zap.L().Error("api: record statistics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "statistics unavailable")
		return
	}
	writeResponse(w, http.StatusOK, stats)
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	installation := chi.URLParam(r, "installation")
	history, analysis, err := processor.AnalyzeInstallation(r.Context(), s.store, installation)
	if err != nil {
		zap.L().Error("api: installation history", zap.String("installation", installation), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if len(history) == 0 {
		writeError(w, http.StatusNotFound, "no records for installation")
		return
	}
	writeResponse(w, http.StatusOK, map[string]any{
		"installation": installation,
		"history":      history,
		"analysis":     analysis,
	})
}

func writeResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeResponse(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
