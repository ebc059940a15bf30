// Package loader bulk-inserts chunks of loosely typed rows into whatever
// table they are addressed to, deriving the insert plan from the live schema.
package loader

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SchemaError is returned when a chunk cannot satisfy the destination table:
// required columns are absent from the data and the loader cannot fill them.
type SchemaError struct {
	Table   string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("table %s: required columns missing from data: %s",
		e.Table, strings.Join(e.Missing, ", "))
}

type Loader struct {
	db      *sql.DB
	schemas *SchemaCache
	log     logrus.FieldLogger
	newID   func() string
}

func New(db *sql.DB, schemas *SchemaCache, log logrus.FieldLogger) *Loader {
	return &Loader{
		db:      db,
		schemas: schemas,
		log:     log.WithField("component", "loader"),
		newID:   uuid.NewString,
	}
}

// InsertChunk writes rows into table in one transaction. Rows whose primary
// key already exists are skipped, so loading the same chunk twice leaves the
// table unchanged. It returns the number of rows actually inserted.
func (l *Loader) InsertChunk(ctx context.Context, table string, rows []map[string]any) (int, error) {
	return l.load(ctx, table, rows, false, nil)
}

// UpsertChunk is InsertChunk, except that on a primary-key conflict every
// inserted column other than the key and the preserved ones is overwritten.
func (l *Loader) UpsertChunk(ctx context.Context, table string, rows []map[string]any, preserve ...string) (int, error) {
	return l.load(ctx, table, rows, true, preserve)
}

type plan struct {
	columns  []string
	generate map[string]bool
	conflict []string
}

func (l *Loader) plan(schema *TableSchema, rows []map[string]any) (*plan, error) {
	present := make(map[string]bool)
	for _, row := range rows {
		for k := range row {
			present[k] = true
		}
	}

	p := &plan{generate: make(map[string]bool)}
	known := make(map[string]bool, len(schema.Columns))
	var missing []string

	for _, c := range schema.Columns {
		known[c.Name] = true
		if schema.AutoGenerated(c) {
			continue
		}
		required := (c.NotNull || c.PrimaryKey > 0) && !c.HasDefault
		generated := required && c.PrimaryKey > 0 && c.StringTyped()
		switch {
		case present[c.Name]:
			p.columns = append(p.columns, c.Name)
			p.generate[c.Name] = generated
		case !required:
		case generated:
			p.columns = append(p.columns, c.Name)
			p.generate[c.Name] = true
		default:
			missing = append(missing, c.Name)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Table: schema.Table, Missing: missing}
	}
	if len(p.columns) == 0 {
		return nil, fmt.Errorf("table %s: no insertable columns in data", schema.Table)
	}

	var unknown []string
	for k := range present {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		l.log.WithFields(logrus.Fields{"table": schema.Table, "columns": unknown}).
			Debug("ignoring fields with no matching column")
	}

	inserted := make(map[string]bool, len(p.columns))
	for _, c := range p.columns {
		inserted[c] = true
	}
	pk := schema.PrimaryKey()
	for _, c := range pk {
		if !inserted[c] {
			return p, nil
		}
	}
	p.conflict = pk
	return p, nil
}

func (l *Loader) load(ctx context.Context, table string, rows []map[string]any, upsert bool, preserve []string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	schema, err := l.schemas.Get(ctx, table)
	if err != nil {
		return 0, err
	}
	p, err := l.plan(schema, rows)
	if err != nil {
		return 0, err
	}
	if len(p.conflict) == 0 {
		l.log.WithField("table", table).
			Warn("no primary key among inserted columns; inserting without conflict handling")
	}

	query := buildInsert(table, p, upsert, preserve)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()

	inserted := 0
	args := make([]any, len(p.columns))
	for i, row := range rows {
		for j, c := range p.columns {
			v, ok := row[c]
			if p.generate[c] && (!ok || v == nil || v == "") {
				v = l.newID()
			}
			args[j] = v
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, fmt.Errorf("insert row %d into %s: %w", i, table, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func buildInsert(table string, p *plan, upsert bool, preserve []string) string {
	quoted := make([]string, len(p.columns))
	marks := make([]string, len(p.columns))
	for i, c := range p.columns {
		quoted[i] = quote(c)
		marks[i] = "?"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		quote(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
	if len(p.conflict) == 0 {
		return b.String()
	}

	conflict := make([]string, len(p.conflict))
	skip := make(map[string]bool, len(p.conflict)+len(preserve))
	for i, c := range p.conflict {
		conflict[i] = quote(c)
		skip[c] = true
	}
	for _, c := range preserve {
		skip[c] = true
	}

	var set []string
	if upsert {
		for _, c := range p.columns {
			if !skip[c] {
				set = append(set, fmt.Sprintf("%s = excluded.%s", quote(c), quote(c)))
			}
		}
	}

	fmt.Fprintf(&b, " ON CONFLICT (%s) DO ", strings.Join(conflict, ", "))
	if len(set) == 0 {
		b.WriteString("NOTHING")
	} else {
		b.WriteString("UPDATE SET " + strings.Join(set, ", "))
	}
	return b.String()
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
