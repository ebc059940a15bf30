package reconciliation

import (
	"context"

	"github.com/storerecon/reconciler/internal/domain"
)

// SourceReader loads the POS, aggregator and adjustment records of a window.
//
//go:generate mockgen -destination=mocks/mock_interface.go -source=interface.go
type SourceReader interface {
	Snapshot(ctx context.Context, scope domain.Scope) (*domain.Snapshot, error)
}

// ChunkWriter persists result rows, overwriting earlier runs by primary key.
type ChunkWriter interface {
	UpsertChunk(ctx context.Context, table string, rows []map[string]any, preserve ...string) (int, error)
}

// ResultPruner deletes result rows of a window that a run no longer produces.
type ResultPruner interface {
	Prune(ctx context.Context, v domain.Variant, scope domain.Scope, keep []string) (int, error)
}
