package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// ColumnInfo is what the loader needs to know about a destination column.
type ColumnInfo struct {
	Name       string
	Type       string
	NotNull    bool
	HasDefault bool
	// PrimaryKey is the 1-based position in the primary key, 0 if not part of it.
	PrimaryKey int
	// Generated marks computed (virtual/stored) columns.
	Generated bool
}

// StringTyped reports whether the declared type has text affinity.
func (c ColumnInfo) StringTyped() bool {
	t := strings.ToUpper(c.Type)
	return strings.Contains(t, "CHAR") || strings.Contains(t, "TEXT") || strings.Contains(t, "CLOB")
}

// TableSchema describes one destination table.
type TableSchema struct {
	Database string
	Table    string
	Columns  []ColumnInfo
}

// PrimaryKey returns the key columns in key order.
func (s *TableSchema) PrimaryKey() []string {
	var pk []string
	for pos := 1; ; pos++ {
		found := false
		for _, c := range s.Columns {
			if c.PrimaryKey == pos {
				pk = append(pk, c.Name)
				found = true
			}
		}
		if !found {
			return pk
		}
	}
}

// AutoGenerated reports whether the database fills the column itself: generated
// columns and the INTEGER PRIMARY KEY rowid alias.
func (s *TableSchema) AutoGenerated(c ColumnInfo) bool {
	if c.Generated {
		return true
	}
	return c.PrimaryKey > 0 && len(s.PrimaryKey()) == 1 && strings.EqualFold(c.Type, "INTEGER")
}

// SchemaCache holds table metadata per (database, table) for the lifetime of
// the cache. Entries are filled on first use and only dropped by Invalidate or
// InvalidateAll: a schema change is not seen until one of those is called or
// the process restarts.
type SchemaCache struct {
	db       *sql.DB
	database string

	mu     sync.Mutex
	tables map[string]*TableSchema
}

// NewSchemaCache creates a cache over the given attached database name
// ("main" for the primary SQLite file).
func NewSchemaCache(db *sql.DB, database string) *SchemaCache {
	if database == "" {
		database = "main"
	}
	return &SchemaCache{db: db, database: database, tables: make(map[string]*TableSchema)}
}

func (c *SchemaCache) key(table string) string {
	return c.database + "." + table
}

// Get returns the cached schema of table, loading it on first access.
func (c *SchemaCache) Get(ctx context.Context, table string) (*TableSchema, error) {
	c.mu.Lock()
	s, ok := c.tables[c.key(table)]
	c.mu.Unlock()
	if ok {
		return s, nil
	}

	s, err := c.load(ctx, table)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.tables[c.key(table)]; ok {
		return existing, nil
	}
	c.tables[c.key(table)] = s
	return s, nil
}

// Invalidate drops one table so the next Get reloads it.
func (c *SchemaCache) Invalidate(table string) {
	c.mu.Lock()
	delete(c.tables, c.key(table))
	c.mu.Unlock()
}

// InvalidateAll drops every cached table.
func (c *SchemaCache) InvalidateAll() {
	c.mu.Lock()
	c.tables = make(map[string]*TableSchema)
	c.mu.Unlock()
}

func (c *SchemaCache) load(ctx context.Context, table string) (*TableSchema, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name, type, "notnull", dflt_value, pk, hidden FROM pragma_table_xinfo(?, ?)`,
		table, c.database,
	)
	if err != nil {
		return nil, fmt.Errorf("read schema of %s: %w", table, err)
	}
	defer rows.Close()

	s := &TableSchema{Database: c.database, Table: table}
	for rows.Next() {
		var col ColumnInfo
		var notNull, pk, hidden int
		var dflt sql.NullString
		if err := rows.Scan(&col.Name, &col.Type, &notNull, &dflt, &pk, &hidden); err != nil {
			return nil, fmt.Errorf("scan schema of %s: %w", table, err)
		}
		col.NotNull = notNull == 1
		col.HasDefault = dflt.Valid
		col.PrimaryKey = pk
		// hidden: 1 = virtual-table hidden column, 2/3 = generated column.
		col.Generated = hidden == 2 || hidden == 3
		s.Columns = append(s.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read schema of %s: %w", table, err)
	}
	if len(s.Columns) == 0 {
		return nil, fmt.Errorf("table %s.%s does not exist", c.database, table)
	}
	return s, nil
}
