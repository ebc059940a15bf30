package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/storerecon/reconciler/internal/app"
	"github.com/storerecon/reconciler/internal/config"
	"github.com/storerecon/reconciler/internal/domain"
	"github.com/storerecon/reconciler/internal/ingestion"
	"github.com/storerecon/reconciler/internal/repository"
	"github.com/storerecon/reconciler/internal/storage"
)

func main() {
	dbPath := flag.String("db", "", "Path to the SQLite database (defaults to DB_PATH)")
	startDate := flag.String("start", "", "Start date for reconciliation (YYYY-MM-DD) (required)")
	endDate := flag.String("end", "", "End date for reconciliation (YYYY-MM-DD) (required)")
	stores := flag.String("stores", "", "Comma-separated store codes (default: all stores)")
	out := flag.String("out", "", "Write the report workbook to this .xlsx path")
	mode := flag.String("mode", "", "Summary sheet mode: static or formula (defaults to SUMMARY_MODE)")
	posFile := flag.String("pos", "", "POS export to load before reconciling")
	aggFiles := flag.String("aggregator", "", "Comma-separated aggregator settlement files to load before reconciling")
	adjFile := flag.String("adjustments", "", "Adjustments file to load before reconciling")
	flag.Parse()

	if *startDate == "" || *endDate == "" {
		fmt.Println("Error: -start and -end are required.")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *mode != "" {
		cfg.SummaryMode = *mode
	}
	cfg.ReportStorage = "local"
	logger := config.NewLogger(cfg.LogLevel, "text", os.Stderr)

	scope, err := domain.NewScope(*startDate, *endDate, strings.Split(*stores, ","))
	if err != nil {
		logger.Fatalf("invalid window: %v", err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("startup: %v", err)
	}
	defer a.Close()

	uploads := []struct {
		table string
		files string
	}{
		{repository.TablePOS, *posFile},
		{repository.TableAggregator, *aggFiles},
		{repository.TableAdjustments, *adjFile},
	}
	for _, u := range uploads {
		for _, path := range strings.Split(u.files, ",") {
			if path = strings.TrimSpace(path); path == "" {
				continue
			}
			res, err := ingest(ctx, a, u.table, path)
			if err != nil {
				logger.Fatalf("load %s: %v", path, err)
			}
			logger.WithFields(logrus.Fields{
				"file":        path,
				"inserted":    res.RowsInserted,
				"quarantined": res.RowsQuarantined,
			}).Info("file loaded")
		}
	}

	run, err := a.Reconciliation.Run(ctx, scope)
	if err != nil {
		logger.Fatalf("reconciliation failed: %v", err)
	}

	output := map[string]any{"run": run}
	if *out != "" {
		summary, err := writeReport(ctx, a, scope, *out)
		if err != nil {
			logger.Fatalf("write report: %v", err)
		}
		output["summary"] = summary
		output["report"] = *out
	}

	b, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		logger.Fatalf("encode output: %v", err)
	}
	fmt.Println(string(b))
}

func ingest(ctx context.Context, a *app.App, table, path string) (*ingestion.IngestResult, error) {
	format, err := ingestion.ParseFormat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return a.Ingestion.Ingest(ctx, table, format, filepath.Base(path), f)
}

func writeReport(ctx context.Context, a *app.App, scope domain.Scope, path string) (any, error) {
	store, err := storage.NewLocalStore(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	cur, err := a.OpenResults(ctx, scope)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var summary any
	err = store.Save(ctx, filepath.Base(path), func(w io.Writer) error {
		s, err := a.Emitter.Render(ctx, cur, scope, w, nil)
		summary = s
		return err
	})
	return summary, err
}
