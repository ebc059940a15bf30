package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/storerecon/reconciler/internal/api"
	"github.com/storerecon/reconciler/internal/app"
	"github.com/storerecon/reconciler/internal/config"
	"github.com/storerecon/reconciler/internal/jobs"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	logger.WithField("db_path", cfg.DBPath).Info("initializing database")
	a, err := app.New(sigCtx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("startup failed")
	}
	defer a.Close()

	tracker := jobs.NewTracker(a.Jobs, a.Generator, jobs.Options{
		Workers:    cfg.Workers,
		StaleAfter: cfg.JobStaleAfter,
	}, logger)
	if n, err := tracker.ReapStale(sigCtx); err != nil {
		logger.WithError(err).Error("initial reap")
	} else if n > 0 {
		logger.WithField("jobs", n).Info("failed jobs left pending by a previous run")
	}
	go tracker.RunReaper(sigCtx, cfg.ReaperInterval)

	router := api.NewRouter(api.Deps{
		Ingester:       a.Ingestion,
		Reconciler:     a.Reconciliation,
		Jobs:           tracker,
		Summaries:      a.Summarizer,
		Quarantine:     a.Quarantine,
		Reports:        a.Reports,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.WithFields(logrus.Fields{
			"port":    cfg.Port,
			"workers": cfg.Workers,
			"storage": cfg.ReportStorage,
		}).Info("store reconciliation server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-sigCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
	if err := tracker.Wait(shutdownCtx); err != nil {
		logger.WithError(err).Warn("report jobs still running at exit")
	}
}
