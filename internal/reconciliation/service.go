package reconciliation

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/storerecon/reconciler/internal/domain"
)

const defaultChunkSize = 1000

// RunResult summarises a reconciliation run.
type RunResult struct {
	StartDate  string         `json:"start_date"`
	EndDate    string         `json:"end_date"`
	StoreCodes []string       `json:"store_codes"`
	Counts     map[string]int `json:"counts"`
	Pruned     int            `json:"pruned"`
	Rejected   int            `json:"rejected_source_rows"`
	Skipped    int            `json:"skipped_records"`

	Result *Result `json:"-"`
}

// Service runs the engine over stored source data and persists the result
// sets.
type Service struct {
	sources   SourceReader
	writer    ChunkWriter
	pruner    ResultPruner
	engine    *Engine
	chunkSize int
	log       logrus.FieldLogger
}

func NewService(sources SourceReader, writer ChunkWriter, pruner ResultPruner, engine *Engine, chunkSize int, log logrus.FieldLogger) *Service {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Service{
		sources:   sources,
		writer:    writer,
		pruner:    pruner,
		engine:    engine,
		chunkSize: chunkSize,
		log:       log.WithField("component", "reconciliation"),
	}
}

// Run reconciles one window. Result rows are upserted by their deterministic
// id, so re-running a window refreshes it in place; rows the run no longer
// produces are pruned afterwards.
func (s *Service) Run(ctx context.Context, scope domain.Scope) (*RunResult, error) {
	log := s.log.WithFields(logrus.Fields{
		"start_date":  scope.StartDate(),
		"end_date":    scope.EndDate(),
		"store_codes": scope.StoreLabel(),
	})

	snap, err := s.sources.Snapshot(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	for _, r := range snap.Rejected {
		log.WithFields(logrus.Fields{"table": r.Table, "order_id": r.Key}).
			Warn("source row excluded: " + r.Reason)
	}

	res := s.engine.Reconcile(scope, snap)

	out := &RunResult{
		StartDate:  scope.StartDate(),
		EndDate:    scope.EndDate(),
		StoreCodes: scope.StoreCodes,
		Counts:     res.Counts(),
		Rejected:   len(snap.Rejected),
		Skipped:    len(res.Skipped),
		Result:     res,
	}

	for _, v := range domain.Variants() {
		records := res.Records(v)
		if err := s.persist(ctx, v, records); err != nil {
			return nil, fmt.Errorf("persist %s: %w", v.Table(), err)
		}

		keep := make([]string, len(records))
		for i := range records {
			keep[i] = records[i].ID
		}
		n, err := s.pruner.Prune(ctx, v, scope, keep)
		if err != nil {
			return nil, fmt.Errorf("prune %s: %w", v.Table(), err)
		}
		out.Pruned += n
	}

	log.WithFields(logrus.Fields{
		"counts":   out.Counts,
		"pruned":   out.Pruned,
		"rejected": out.Rejected,
		"skipped":  out.Skipped,
	}).Info("reconciliation finished")

	return out, nil
}

func (s *Service) persist(ctx context.Context, v domain.Variant, records []domain.MatchRecord) error {
	for start := 0; start < len(records); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(records) {
			end = len(records)
		}
		rows := make([]map[string]any, 0, end-start)
		for i := start; i < end; i++ {
			rows = append(rows, records[i].Row())
		}
		if _, err := s.writer.UpsertChunk(ctx, v.Table(), rows, "created_at"); err != nil {
			return fmt.Errorf("chunk %d-%d: %w", start, end, err)
		}
	}
	return nil
}
