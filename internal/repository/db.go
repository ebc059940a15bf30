package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/storerecon/reconciler/internal/domain"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) the SQLite database file at path and ensures all
// tables exist. Every pooled connection gets the same pragmas through the DSN.
func InitDB(path string) (*sql.DB, error) {
	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

// Source tables. Amounts are stored as decimal text so nothing is lost to
// floating point; NULL means the source did not report the value.
const (
	TablePOS         = "pos_transactions"
	TableAggregator  = "aggregator_settlements"
	TableAdjustments = "order_adjustments"
)

func amountColumns() string {
	var b strings.Builder
	for _, d := range domain.Dimensions() {
		fmt.Fprintf(&b, "\t\t\t%s TEXT,\n", d.Field())
	}
	return b.String()
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pos_transactions (
			order_id TEXT PRIMARY KEY,
			order_date TEXT NOT NULL,
			store_name TEXT,
			order_status TEXT,
			aggregator TEXT,
` + amountColumns() + `
			ingested_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pos_transactions_date ON pos_transactions(order_date)`,
		`CREATE INDEX IF NOT EXISTS idx_pos_transactions_store ON pos_transactions(store_name)`,

		`CREATE TABLE IF NOT EXISTS aggregator_settlements (
			settlement_id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			aggregator TEXT NOT NULL,
			order_date TEXT NOT NULL,
			store_name TEXT,
			order_status TEXT,
			transaction_type TEXT NOT NULL DEFAULT 'sale',
` + amountColumns() + `
			ingested_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_aggregator_settlements_date ON aggregator_settlements(order_date)`,
		`CREATE INDEX IF NOT EXISTS idx_aggregator_settlements_order ON aggregator_settlements(order_id)`,

		`CREATE TABLE IF NOT EXISTS order_adjustments (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			credit_note TEXT,
			promo_passthrough TEXT,
			discount TEXT,
			penalty TEXT,
			note TEXT,
			ingested_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_adjustments_order ON order_adjustments(order_id)`,

		`CREATE TABLE IF NOT EXISTS report_jobs (
			id TEXT PRIMARY KEY,
			store_code TEXT NOT NULL DEFAULT '',
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			filename TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_report_jobs_status ON report_jobs(status, created_at)`,

		`CREATE TABLE IF NOT EXISTS quarantined_chunks (
			id TEXT PRIMARY KEY,
			table_name TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			chunk_index INTEGER NOT NULL,
			row_index INTEGER,
			payload TEXT NOT NULL,
			error TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quarantined_chunks_table ON quarantined_chunks(table_name, created_at)`,
	}

	for _, v := range domain.Variants() {
		stmts = append(stmts, resultTableDDL(v),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_date ON %s(order_date)`, v.Table(), v.Table()),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_store ON %s(store_name)`, v.Table(), v.Table()),
		)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", head(stmt), err)
		}
	}

	return nil
}

// resultTableDDL derives a result table from the variant's column layout.
func resultTableDDL(v domain.Variant) string {
	cols := v.Columns()
	defs := make([]string, len(cols))
	for i, c := range cols {
		def := c.Name + " TEXT"
		switch c.Name {
		case "id":
			def += " PRIMARY KEY"
		case "order_date", "reconciled_status", "reconciled_amount", "unreconciled_amount", "created_at", "updated_at":
			def += " NOT NULL"
		}
		defs[i] = def
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", v.Table(), strings.Join(defs, ",\n\t"))
}

func head(stmt string) string {
	s := strings.Join(strings.Fields(stmt), " ")
	if len(s) > 60 {
		return s[:60]
	}
	return s
}
