// Package app wires the stores and services shared by the server and the CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/storerecon/reconciler/internal/config"
	"github.com/storerecon/reconciler/internal/domain"
	"github.com/storerecon/reconciler/internal/fees"
	"github.com/storerecon/reconciler/internal/ingestion"
	"github.com/storerecon/reconciler/internal/loader"
	"github.com/storerecon/reconciler/internal/reconciliation"
	"github.com/storerecon/reconciler/internal/report"
	"github.com/storerecon/reconciler/internal/repository"
	"github.com/storerecon/reconciler/internal/storage"
)

type App struct {
	DB             *sql.DB
	Jobs           *repository.JobRepo
	Results        *repository.ResultRepo
	Quarantine     *repository.QuarantineRepo
	Ingestion      *ingestion.Service
	Reconciliation *reconciliation.Service
	Emitter        *report.Emitter
	Generator      *report.Generator
	Summarizer     *report.Summarizer
	Reports        storage.Store

	closers []func() error
}

// New opens the database and report storage and builds every service.
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}
	a := &App{DB: db, closers: []func() error{db.Close}}

	reports, err := openStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Reports = reports

	mode, err := report.ParseMode(cfg.SummaryMode)
	if err != nil {
		a.Close()
		return nil, err
	}

	bulk := loader.New(db, loader.NewSchemaCache(db, ""), log)
	a.Jobs = repository.NewJobRepo(db)
	a.Results = repository.NewResultRepo(db)
	a.Quarantine = repository.NewQuarantineRepo(db)

	a.Ingestion = ingestion.NewService(bulk, a.Quarantine, cfg.ChunkSize, cfg.Workers, log)

	engine := reconciliation.NewEngine(reconciliation.Options{
		Tolerance:       cfg.Tolerance,
		OrderIDPrefixes: cfg.OrderIDPrefixes,
	}, log)
	a.Reconciliation = reconciliation.NewService(repository.NewSourceRepo(db), bulk, a.Results, engine, cfg.ChunkSize, log)

	a.Emitter = report.NewEmitter(report.Options{
		Mode:        mode,
		MaxColWidth: float64(cfg.MaxColWidth),
		Aggregators: fees.Aggregators(),
	}, log)
	a.Generator = report.NewGenerator(a.Reconciliation, a.OpenResults, a.Emitter, reports, log)
	a.Summarizer = report.NewSummarizer(a.OpenResults, fees.Aggregators())

	if closer, ok := reports.(interface{ Close() error }); ok {
		a.closers = append(a.closers, closer.Close)
	}
	return a, nil
}

// OpenResults opens a cursor over the stored result sets of a window.
func (a *App) OpenResults(ctx context.Context, scope domain.Scope) (report.Cursor, error) {
	cur, err := a.Results.Open(ctx, scope)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.ReportStorage == "gcs" {
		s, err := storage.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSPrefix, cfg.GCSCredentialsJSON)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := storage.NewLocalStore(cfg.ReportDir)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
