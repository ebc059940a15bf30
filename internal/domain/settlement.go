package domain

import "github.com/shopspring/decimal"

type TransactionType string

const (
	TransactionSale   TransactionType = "sale"
	TransactionRefund TransactionType = "refund"
)

// AggregatorRecord is one line of an aggregator settlement report.
type AggregatorRecord struct {
	SettlementID string
	OrderID      string
	Aggregator   string
	OrderDate    string
	StoreName    *string
	OrderStatus  *string
	Type         TransactionType
	Amounts      Amounts
}

// IsRefund reports whether the line reverses an earlier sale.
func (r *AggregatorRecord) IsRefund() bool {
	return r.Type == TransactionRefund
}

// Adjustment holds manually curated amounts that explain part of the gap
// between what POS expected and what the aggregator paid out.
type Adjustment struct {
	OrderID          string
	CreditNote       decimal.NullDecimal
	PromoPassthrough decimal.NullDecimal
	Discount         decimal.NullDecimal
	Penalty          decimal.NullDecimal
	Note             *string
}

// Total sums the non-null adjustment amounts.
func (a *Adjustment) Total() decimal.Decimal {
	if a == nil {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, v := range []decimal.NullDecimal{a.CreditNote, a.PromoPassthrough, a.Discount, a.Penalty} {
		if v.Valid {
			total = total.Add(v.Decimal)
		}
	}
	return total
}
