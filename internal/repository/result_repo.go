package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/storerecon/reconciler/internal/domain"
)

// ResultRepo reads and prunes the five reconciliation result tables. Writes go
// through the bulk loader.
type ResultRepo struct {
	db *sql.DB
}

func NewResultRepo(db *sql.DB) *ResultRepo {
	return &ResultRepo{db: db}
}

// ResultCursor streams result rows of one window. It holds a connection and
// the window's store filter until Close.
type ResultCursor struct {
	conn   *sql.Conn
	filter *storeFilter
	scope  domain.Scope
}

// Open prepares a cursor over the window. Callers must Close it.
func (r *ResultRepo) Open(ctx context.Context, scope domain.Scope) (*ResultCursor, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire conn: %w", err)
	}
	filter, err := newStoreFilter(ctx, conn, scope.StoreCodes)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &ResultCursor{conn: conn, filter: filter, scope: scope}, nil
}

// Close drops the store filter and releases the connection.
func (c *ResultCursor) Close() error {
	c.filter.close()
	return c.conn.Close()
}

func selectColumns(v domain.Variant) string {
	cols := v.Columns()
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return strings.Join(names, ", ")
}

// Each calls fn for every row of the variant in the window, ordered by order
// date then id.
func (c *ResultCursor) Each(ctx context.Context, v domain.Variant, fn func(*domain.MatchRecord) error) error {
	where, args := windowWhere("", c.scope.StartDate(), c.scope.EndDate(), c.filter)
	rows, err := c.conn.QueryContext(ctx,
		"SELECT "+selectColumns(v)+" FROM "+v.Table()+where+" ORDER BY order_date, id", args...)
	if err != nil {
		return fmt.Errorf("query %s: %w", v.Table(), err)
	}
	defer rows.Close()

	cols := v.Columns()
	raw := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan %s: %w", v.Table(), err)
		}
		rec := domain.MatchRecord{Variant: v}
		for i, col := range cols {
			var value *string
			if raw[i].Valid {
				s := raw[i].String
				value = &s
			}
			if err := col.Set(&rec, value); err != nil {
				return fmt.Errorf("%s row %s: %w", v.Table(), raw[0].String, err)
			}
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of rows of the variant in the window.
func (c *ResultCursor) Count(ctx context.Context, v domain.Variant) (int, error) {
	where, args := windowWhere("", c.scope.StartDate(), c.scope.EndDate(), c.filter)
	var n int
	if err := c.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+v.Table()+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", v.Table(), err)
	}
	return n, nil
}

// Count returns the number of rows of every variant in the window.
func (r *ResultRepo) Count(ctx context.Context, scope domain.Scope) (map[string]int, error) {
	cur, err := r.Open(ctx, scope)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	out := make(map[string]int, len(domain.Variants()))
	for _, v := range domain.Variants() {
		n, err := cur.Count(ctx, v)
		if err != nil {
			return nil, err
		}
		out[v.Table()] = n
	}
	return out, nil
}

// Prune deletes rows of the variant in the window whose id is not in keep.
func (r *ResultRepo) Prune(ctx context.Context, v domain.Variant, scope domain.Scope, keep []string) (int, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Close()

	filter, err := newStoreFilter(ctx, conn, scope.StoreCodes)
	if err != nil {
		return 0, err
	}
	defer filter.close()

	kept, err := newTempSet(ctx, conn, "keep_ids", keep)
	if err != nil {
		return 0, err
	}
	defer kept.drop()

	where, args := windowWhere("", scope.StartDate(), scope.EndDate(), filter)
	res, err := conn.ExecContext(ctx,
		"DELETE FROM "+v.Table()+where+" AND id NOT IN ("+kept.subquery()+")", args...)
	if err != nil {
		return 0, fmt.Errorf("prune %s: %w", v.Table(), err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
