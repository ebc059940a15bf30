package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// tempSet is a single-column TEMP table of strings. TEMP tables only exist on
// the connection that created them, so callers hold a dedicated *sql.Conn for
// the lifetime of the set.
type tempSet struct {
	conn *sql.Conn
	name string
}

// newTempSet creates a uniquely named TEMP table holding values. The name
// carries a timestamp and a random token so concurrent runs never collide.
func newTempSet(ctx context.Context, conn *sql.Conn, prefix string, values []string) (*tempSet, error) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	s := &tempSet{
		conn: conn,
		name: fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), token),
	}

	if _, err := conn.ExecContext(ctx,
		fmt.Sprintf(`CREATE TEMP TABLE %s (v TEXT PRIMARY KEY)`, s.name)); err != nil {
		return nil, fmt.Errorf("create %s: %w", s.name, err)
	}

	if err := s.fill(ctx, values); err != nil {
		s.drop()
		return nil, err
	}
	return s, nil
}

func (s *tempSet) fill(ctx context.Context, values []string) error {
	if len(values) == 0 {
		return nil
	}
	stmt, err := s.conn.PrepareContext(ctx,
		fmt.Sprintf(`INSERT OR IGNORE INTO temp.%s (v) VALUES (?)`, s.name))
	if err != nil {
		return fmt.Errorf("prepare %s: %w", s.name, err)
	}
	defer stmt.Close()

	for _, v := range values {
		if _, err := stmt.ExecContext(ctx, v); err != nil {
			return fmt.Errorf("fill %s: %w", s.name, err)
		}
	}
	return nil
}

// subquery selects the set's values.
func (s *tempSet) subquery() string {
	return fmt.Sprintf("SELECT v FROM temp.%s", s.name)
}

// drop removes the table. It ignores the caller's context so a cancelled run
// still cleans up.
func (s *tempSet) drop() {
	_, _ = s.conn.ExecContext(context.Background(), fmt.Sprintf(`DROP TABLE IF EXISTS temp.%s`, s.name))
}

// storeFilter is the store-code part of a scoped query.
type storeFilter struct {
	set *tempSet
}

// newStoreFilter loads the scope's store codes into a temp table. With no
// codes every store matches.
func newStoreFilter(ctx context.Context, conn *sql.Conn, codes []string) (*storeFilter, error) {
	if len(codes) == 0 {
		return &storeFilter{}, nil
	}
	set, err := newTempSet(ctx, conn, "store_filter", codes)
	if err != nil {
		return nil, err
	}
	return &storeFilter{set: set}, nil
}

// clause returns the WHERE fragment for the given store column. Rows without
// a store are always included.
func (f *storeFilter) clause(column string) string {
	if f.set == nil {
		return ""
	}
	return fmt.Sprintf("(%s IS NULL OR %s IN (%s))", column, column, f.set.subquery())
}

func (f *storeFilter) close() {
	if f.set != nil {
		f.set.drop()
	}
}

// windowWhere builds the WHERE clause for an inclusive order-date range plus
// the optional store filter.
func windowWhere(prefix string, start, end string, f *storeFilter) (string, []any) {
	col := func(name string) string {
		if prefix == "" {
			return name
		}
		return prefix + "." + name
	}
	clauses := []string{col("order_date") + " >= ?", col("order_date") + " <= ?"}
	args := []any{start, end}
	if c := f.clause(col("store_name")); c != "" {
		clauses = append(clauses, c)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
