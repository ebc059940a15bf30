package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/storerecon/reconciler/internal/cleaner"
	"github.com/storerecon/reconciler/internal/domain"
	"github.com/storerecon/reconciler/internal/loader"
)

var ErrUnknownTable = errors.New("unknown upload table")

const defaultChunkSize = 1000

// ChunkInserter loads one chunk of cleaned rows, skipping existing keys.
type ChunkInserter interface {
	InsertChunk(ctx context.Context, table string, rows []map[string]any) (int, error)
}

// Quarantine keeps rows and chunks that could not be loaded.
type Quarantine interface {
	Put(ctx context.Context, entries []domain.QuarantineEntry) error
}

// IngestResult is returned from an ingestion.
type IngestResult struct {
	Table             string `json:"table"`
	Format            Format `json:"format"`
	Source            string `json:"source"`
	RowsRead          int    `json:"rows_read"`
	RowsInserted      int    `json:"rows_inserted"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
	RowsQuarantined   int    `json:"rows_quarantined"`
	Chunks            int    `json:"chunks"`
	ChunksFailed      int    `json:"chunks_failed"`
}

// Service loads uploaded POS, aggregator and adjustment files.
type Service struct {
	loader     ChunkInserter
	quarantine Quarantine
	chunkSize  int
	workers    int
	log        logrus.FieldLogger
}

func NewService(inserter ChunkInserter, quarantine Quarantine, chunkSize, workers int, log logrus.FieldLogger) *Service {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if workers <= 0 {
		workers = 1
	}
	return &Service{
		loader:     inserter,
		quarantine: quarantine,
		chunkSize:  chunkSize,
		workers:    workers,
		log:        log.WithField("component", "ingestion"),
	}
}

// Ingest reads rows from r and loads them into table chunk by chunk. Invalid
// rows are quarantined and the rest of their chunk is loaded; a chunk the
// loader rejects is quarantined whole and ingestion moves on. Only read
// errors, quarantine failures and cancellation stop an ingestion.
func (s *Service) Ingest(ctx context.Context, table string, format Format, source string, r io.Reader) (*IngestResult, error) {
	p, err := ProfileFor(table)
	if err != nil {
		return nil, err
	}
	rows, err := newRowReader(format, r, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", format, err)
	}
	defer rows.Close()

	log := s.log.WithFields(logrus.Fields{"table": table, "format": format, "source": source})
	res := &IngestResult{Table: table, Format: format, Source: source}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	dispatch := func(index int, chunk []cleaner.Row) {
		g.Go(func() error {
			stats, err := s.loadChunk(gctx, p, source, index, chunk, log)
			mu.Lock()
			res.add(stats)
			mu.Unlock()
			return err
		})
	}

	chunk := make([]cleaner.Row, 0, s.chunkSize)
	index := 0
	var readErr error
	for {
		if err := gctx.Err(); err != nil {
			break
		}
		row, err := rows.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr = fmt.Errorf("%s: %w", format, err)
			break
		}
		res.RowsRead++
		chunk = append(chunk, row)
		if len(chunk) == s.chunkSize {
			dispatch(index, chunk)
			index++
			chunk = make([]cleaner.Row, 0, s.chunkSize)
		}
	}
	if readErr == nil && len(chunk) > 0 {
		dispatch(index, chunk)
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if readErr != nil {
		log.WithField("rows_inserted", res.RowsInserted).WithError(readErr).Error("ingestion stopped")
		return nil, readErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"rows_read":        res.RowsRead,
		"rows_inserted":    res.RowsInserted,
		"rows_quarantined": res.RowsQuarantined,
		"chunks_failed":    res.ChunksFailed,
	}).Info("ingestion finished")
	return res, nil
}

type chunkStats struct {
	inserted, skipped, quarantined int
	failed                         bool
}

func (r *IngestResult) add(s chunkStats) {
	r.Chunks++
	r.RowsInserted += s.inserted
	r.DuplicatesSkipped += s.skipped
	r.RowsQuarantined += s.quarantined
	if s.failed {
		r.ChunksFailed++
	}
}

func (s *Service) loadChunk(ctx context.Context, p *Profile, source string, index int, chunk []cleaner.Row, log logrus.FieldLogger) (chunkStats, error) {
	var stats chunkStats
	log = log.WithField("chunk", index)

	valid, rejected := cleaner.Validate(chunk, p.Rules)
	entries := make([]domain.QuarantineEntry, 0, len(rejected)+1)
	for _, re := range rejected {
		rowIndex := re.Index
		entries = append(entries, domain.QuarantineEntry{
			Table:      p.Table,
			Source:     source,
			ChunkIndex: index,
			RowIndex:   &rowIndex,
			Payload:    payload(re.Row),
			Error:      re.Error(),
		})
	}
	stats.quarantined = len(rejected)
	if len(rejected) > 0 {
		log.WithField("rows", len(rejected)).Warn("rows failed validation")
	}

	if len(valid) > 0 {
		n, err := s.loader.InsertChunk(ctx, p.Table, cleaner.Clean(valid, p.Rules))
		switch {
		case err != nil && ctx.Err() != nil:
			return stats, ctx.Err()
		case err != nil:
			entry := log.WithError(err)
			var schemaErr *loader.SchemaError
			if errors.As(err, &schemaErr) {
				entry = entry.WithField("missing_columns", schemaErr.Missing)
			}
			entry.Error("chunk quarantined")
			entries = append(entries, domain.QuarantineEntry{
				Table:      p.Table,
				Source:     source,
				ChunkIndex: index,
				Payload:    payload(valid),
				Error:      err.Error(),
			})
			stats.quarantined += len(valid)
			stats.failed = true
		default:
			stats.inserted = n
			stats.skipped = len(valid) - n
		}
	}

	if err := s.quarantine.Put(ctx, entries); err != nil {
		return stats, fmt.Errorf("quarantine chunk %d: %w", index, err)
	}
	return stats, nil
}

func payload(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
