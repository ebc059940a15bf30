package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/storerecon/reconciler/internal/domain"
)

// SourceRepo reads the POS, aggregator and adjustment tables.
type SourceRepo struct {
	db *sql.DB
}

func NewSourceRepo(db *sql.DB) *SourceRepo {
	return &SourceRepo{db: db}
}

// Snapshot loads every source record of the window inside one read
// transaction. Rows whose amounts do not parse are returned as rejected
// instead of failing the whole window.
func (r *SourceRepo) Snapshot(ctx context.Context, scope domain.Scope) (*domain.Snapshot, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Close()

	filter, err := newStoreFilter(ctx, conn, scope.StoreCodes)
	if err != nil {
		return nil, err
	}
	defer filter.close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	snap := &domain.Snapshot{}
	if err := r.loadPOS(ctx, tx, scope, filter, snap); err != nil {
		return nil, fmt.Errorf("pos: %w", err)
	}
	if err := r.loadAggregator(ctx, tx, scope, filter, snap); err != nil {
		return nil, fmt.Errorf("aggregator: %w", err)
	}
	if err := r.loadAdjustments(ctx, tx, scope, filter, snap); err != nil {
		return nil, fmt.Errorf("adjustments: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return snap, nil
}

func amountSelect() string {
	fields := make([]string, domain.DimensionCount)
	for i, d := range domain.Dimensions() {
		fields[i] = d.Field()
	}
	return strings.Join(fields, ", ")
}

// scanAmounts parses the raw amount columns; the error names the column.
func scanAmounts(raw []sql.NullString) (domain.Amounts, error) {
	var a domain.Amounts
	for i, s := range raw {
		if !s.Valid || strings.TrimSpace(s.String) == "" {
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(s.String))
		if err != nil {
			return a, fmt.Errorf("%s: %q is not a number", domain.Dimension(i).Field(), s.String)
		}
		a[i] = domain.Money(d)
	}
	return a, nil
}

func amountDest(raw []sql.NullString) []any {
	dest := make([]any, len(raw))
	for i := range raw {
		dest[i] = &raw[i]
	}
	return dest
}

func (r *SourceRepo) loadPOS(ctx context.Context, tx *sql.Tx, scope domain.Scope, f *storeFilter, snap *domain.Snapshot) error {
	where, args := windowWhere("", scope.StartDate(), scope.EndDate(), f)
	rows, err := tx.QueryContext(ctx,
		"SELECT order_id, order_date, store_name, order_status, aggregator, "+amountSelect()+
			" FROM pos_transactions"+where+" ORDER BY order_date, order_id", args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	raw := make([]sql.NullString, domain.DimensionCount)
	for rows.Next() {
		var p domain.POSRecord
		var store, status, aggregator sql.NullString
		dest := append([]any{&p.OrderID, &p.OrderDate, &store, &status, &aggregator}, amountDest(raw)...)
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		amounts, err := scanAmounts(raw)
		if err != nil {
			snap.Rejected = append(snap.Rejected, domain.RejectedRow{Table: TablePOS, Key: p.OrderID, Reason: err.Error()})
			continue
		}
		p.Amounts = amounts
		p.StoreName = nullString(store)
		p.OrderStatus = nullString(status)
		p.Aggregator = nullString(aggregator)
		snap.POS = append(snap.POS, p)
	}
	return rows.Err()
}

func (r *SourceRepo) loadAggregator(ctx context.Context, tx *sql.Tx, scope domain.Scope, f *storeFilter, snap *domain.Snapshot) error {
	where, args := windowWhere("", scope.StartDate(), scope.EndDate(), f)
	rows, err := tx.QueryContext(ctx,
		"SELECT settlement_id, order_id, aggregator, order_date, store_name, order_status, transaction_type, "+
			amountSelect()+" FROM aggregator_settlements"+where+" ORDER BY order_date, order_id, settlement_id", args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	raw := make([]sql.NullString, domain.DimensionCount)
	for rows.Next() {
		var a domain.AggregatorRecord
		var store, status sql.NullString
		var txType string
		dest := append([]any{&a.SettlementID, &a.OrderID, &a.Aggregator, &a.OrderDate, &store, &status, &txType},
			amountDest(raw)...)
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		amounts, err := scanAmounts(raw)
		if err != nil {
			snap.Rejected = append(snap.Rejected, domain.RejectedRow{Table: TableAggregator, Key: a.OrderID, Reason: err.Error()})
			continue
		}
		a.Amounts = amounts
		a.StoreName = nullString(store)
		a.OrderStatus = nullString(status)
		a.Type = domain.TransactionType(strings.ToLower(strings.TrimSpace(txType)))
		if a.Type != domain.TransactionRefund {
			a.Type = domain.TransactionSale
		}
		snap.Aggregator = append(snap.Aggregator, a)
	}
	return rows.Err()
}

// loadAdjustments reads adjustments whose order id appears verbatim on a POS
// or aggregator row of the window.
func (r *SourceRepo) loadAdjustments(ctx context.Context, tx *sql.Tx, scope domain.Scope, f *storeFilter, snap *domain.Snapshot) error {
	posWhere, posArgs := windowWhere("", scope.StartDate(), scope.EndDate(), f)
	aggWhere, aggArgs := windowWhere("", scope.StartDate(), scope.EndDate(), f)
	query := `SELECT order_id, credit_note, promo_passthrough, discount, penalty, note
		FROM order_adjustments
		WHERE order_id IN (SELECT order_id FROM pos_transactions` + posWhere + `)
		   OR order_id IN (SELECT order_id FROM aggregator_settlements` + aggWhere + `)
		ORDER BY order_id, id`
	rows, err := tx.QueryContext(ctx, query, append(posArgs, aggArgs...)...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	raw := make([]sql.NullString, 4)
	for rows.Next() {
		var a domain.Adjustment
		var note sql.NullString
		if err := rows.Scan(&a.OrderID, &raw[0], &raw[1], &raw[2], &raw[3], &note); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		values := make([]decimal.NullDecimal, len(raw))
		var bad error
		for i, s := range raw {
			if !s.Valid || strings.TrimSpace(s.String) == "" {
				continue
			}
			d, err := decimal.NewFromString(strings.TrimSpace(s.String))
			if err != nil {
				bad = fmt.Errorf("adjustment %q is not a number", s.String)
				break
			}
			values[i] = domain.Money(d)
		}
		if bad != nil {
			snap.Rejected = append(snap.Rejected, domain.RejectedRow{Table: TableAdjustments, Key: a.OrderID, Reason: bad.Error()})
			continue
		}
		a.CreditNote, a.PromoPassthrough, a.Discount, a.Penalty = values[0], values[1], values[2], values[3]
		a.Note = nullString(note)
		snap.Adjustments = append(snap.Adjustments, a)
	}
	return rows.Err()
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return domain.StringPtr(s.String)
}
