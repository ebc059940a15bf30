package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/storerecon/reconciler/internal/domain"
)

// QuarantineRepo is the sink for rows and chunks the ingestion pipeline could
// not load.
type QuarantineRepo struct {
	db *sql.DB
}

func NewQuarantineRepo(db *sql.DB) *QuarantineRepo {
	return &QuarantineRepo{db: db}
}

// Put stores entries in one transaction, filling in ids and timestamps.
func (r *QuarantineRepo) Put(ctx context.Context, entries []domain.QuarantineEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO quarantined_chunks
		(id, table_name, source, chunk_index, row_index, payload, error, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range entries {
		e := &entries[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		var rowIndex any
		if e.RowIndex != nil {
			rowIndex = *e.RowIndex
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.Table, e.Source, e.ChunkIndex, rowIndex,
			e.Payload, e.Error, e.CreatedAt.Format(domain.TimestampLayout)); err != nil {
			return fmt.Errorf("insert entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// List returns the newest entries, optionally for one table only.
func (r *QuarantineRepo) List(ctx context.Context, table string, limit int) ([]domain.QuarantineEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, table_name, source, chunk_index, row_index, payload, error, created_at
		FROM quarantined_chunks`
	var args []any
	if table != "" {
		query += " WHERE table_name = ?"
		args = append(args, table)
	}
	query += " ORDER BY created_at DESC, chunk_index, row_index LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.QuarantineEntry
	for rows.Next() {
		var e domain.QuarantineEntry
		var rowIndex sql.NullInt64
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Table, &e.Source, &e.ChunkIndex, &rowIndex,
			&e.Payload, &e.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if rowIndex.Valid {
			idx := int(rowIndex.Int64)
			e.RowIndex = &idx
		}
		e.CreatedAt, _ = time.Parse(domain.TimestampLayout, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
