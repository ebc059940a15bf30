package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Date and timestamp text layouts used in storage. Timestamps are fixed width
// so they compare correctly as strings.
const (
	DateLayout      = "2006-01-02"
	TimestampLayout = "2006-01-02T15:04:05.000000Z"
)

type ColumnKind int

const (
	KindText ColumnKind = iota
	KindMoney
	KindDate
	KindTimestamp
)

// Column describes one persisted/rendered field of a result variant. The same
// layout drives the table DDL, loader rows, scanning and spreadsheet headers,
// so column order only has to be kept in one place.
type Column struct {
	Name   string
	Header string
	Kind   ColumnKind
	// Get returns nil, a string or a decimal.Decimal.
	Get func(r *MatchRecord) any
	// Set assigns a stored value; nil means SQL NULL.
	Set func(r *MatchRecord, raw *string) error
}

var layouts = map[Variant][]Column{}

func init() {
	for _, v := range Variants() {
		layouts[v] = buildLayout(v)
	}
}

// Columns returns the fixed column list of the variant.
func (v Variant) Columns() []Column { return layouts[v] }

// ColumnIndex returns the zero-based position of the named column, or -1.
func (v Variant) ColumnIndex(name string) int {
	for i, c := range layouts[v] {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func buildLayout(v Variant) []Column {
	cols := []Column{
		{
			Name: "id", Header: "Record ID", Kind: KindText,
			Get: func(r *MatchRecord) any { return r.ID },
			Set: func(r *MatchRecord, raw *string) error {
				r.ID = Deref(raw)
				return nil
			},
		},
		textCol("pos_order_id", "POS Order ID", func(r *MatchRecord) **string { return &r.POSOrderID }),
		textCol("aggregator_order_id", "Aggregator Order ID", func(r *MatchRecord) **string { return &r.AggregatorOrderID }),
		textCol("aggregator", "Aggregator", func(r *MatchRecord) **string { return &r.Aggregator }),
		{
			Name: "order_date", Header: "Order Date", Kind: KindDate,
			Get: func(r *MatchRecord) any { return r.OrderDate },
			Set: func(r *MatchRecord, raw *string) error {
				r.OrderDate = Deref(raw)
				return nil
			},
		},
		textCol("store_name", "Store Name", func(r *MatchRecord) **string { return &r.StoreName }),
		textCol("order_status_pos", "Order Status POS", func(r *MatchRecord) **string { return &r.OrderStatusPOS }),
		textCol("order_status_aggregator", "Order Status Aggregator", func(r *MatchRecord) **string { return &r.OrderStatusAggregator }),
	}

	switch v {
	case VariantMissingInPOS:
		for _, d := range Dimensions() {
			cols = append(cols, aggregatorCol(d))
		}
	case VariantMissingInAggregator:
		for _, d := range Dimensions() {
			cols = append(cols, posCol(d))
		}
	default:
		for _, d := range Dimensions() {
			cols = append(cols, posCol(d), aggregatorCol(d), deltaCol(d))
		}
		if v.HasCalculated() {
			cols = append(cols, calculatedCols()...)
		}
		cols = append(cols, fixedCols()...)
	}

	cols = append(cols,
		Column{
			Name: "reconciled_status", Header: "Reconciled Status", Kind: KindText,
			Get: func(r *MatchRecord) any { return string(r.Status) },
			Set: func(r *MatchRecord, raw *string) error {
				r.Status = Status(Deref(raw))
				return nil
			},
		},
		decimalCol("reconciled_amount", "Reconciled Amount", func(r *MatchRecord) *decimal.Decimal { return &r.ReconciledAmount }),
		decimalCol("unreconciled_amount", "Unreconciled Amount", func(r *MatchRecord) *decimal.Decimal { return &r.UnreconciledAmount }),
		textCol("reason", "Reason", func(r *MatchRecord) **string { return &r.Reason }),
		timestampCol("created_at", "Created At", func(r *MatchRecord) *time.Time { return &r.CreatedAt }),
		timestampCol("updated_at", "Updated At", func(r *MatchRecord) *time.Time { return &r.UpdatedAt }),
	)
	return cols
}

func textCol(name, header string, field func(r *MatchRecord) **string) Column {
	return Column{
		Name: name, Header: header, Kind: KindText,
		Get: func(r *MatchRecord) any {
			if p := field(r); *p != nil {
				return **p
			}
			return nil
		},
		Set: func(r *MatchRecord, raw *string) error {
			*field(r) = raw
			return nil
		},
	}
}

// moneyField returns the addressed value; with alloc unset it may return nil
// when the optional group holding the field is absent.
type moneyField func(r *MatchRecord, alloc bool) *decimal.NullDecimal

func moneyCol(name, header string, field moneyField) Column {
	return Column{
		Name: name, Header: header, Kind: KindMoney,
		Get: func(r *MatchRecord) any {
			v := field(r, false)
			if v == nil || !v.Valid {
				return nil
			}
			return v.Decimal
		},
		Set: func(r *MatchRecord, raw *string) error {
			v, err := parseMoney(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if v.Valid || field(r, false) != nil {
				*field(r, true) = v
			}
			return nil
		},
	}
}

func decimalCol(name, header string, field func(r *MatchRecord) *decimal.Decimal) Column {
	return Column{
		Name: name, Header: header, Kind: KindMoney,
		Get: func(r *MatchRecord) any { return *field(r) },
		Set: func(r *MatchRecord, raw *string) error {
			v, err := parseMoney(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field(r) = v.Decimal
			return nil
		},
	}
}

func timestampCol(name, header string, field func(r *MatchRecord) *time.Time) Column {
	return Column{
		Name: name, Header: header, Kind: KindTimestamp,
		Get: func(r *MatchRecord) any { return field(r).UTC().Format(TimestampLayout) },
		Set: func(r *MatchRecord, raw *string) error {
			if raw == nil {
				return nil
			}
			t, err := time.Parse(TimestampLayout, *raw)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field(r) = t
			return nil
		},
	}
}

func posCol(d Dimension) Column {
	return moneyCol("pos_"+d.Field(), "POS "+d.Label(),
		func(r *MatchRecord, _ bool) *decimal.NullDecimal { return &r.Pairs[d].POS })
}

func aggregatorCol(d Dimension) Column {
	return moneyCol("aggregator_"+d.Field(), "Aggregator "+d.Label(),
		func(r *MatchRecord, _ bool) *decimal.NullDecimal { return &r.Pairs[d].Aggregator })
}

func deltaCol(d Dimension) Column {
	return moneyCol("delta_"+d.Field(), "Delta "+d.Label(),
		func(r *MatchRecord, _ bool) *decimal.NullDecimal { return &r.Pairs[d].Delta })
}

func calculatedCols() []Column {
	calc := func(pick func(c *Calculated) *decimal.NullDecimal) moneyField {
		return func(r *MatchRecord, alloc bool) *decimal.NullDecimal {
			if r.Calculated == nil {
				if !alloc {
					return nil
				}
				r.Calculated = &Calculated{}
			}
			return pick(r.Calculated)
		}
	}
	return []Column{
		moneyCol("calculated_commission_value", "Calculated Commission Value",
			calc(func(c *Calculated) *decimal.NullDecimal { return &c.CommissionValue })),
		moneyCol("calculated_pg_charge", "Calculated PG Charge",
			calc(func(c *Calculated) *decimal.NullDecimal { return &c.PGCharge })),
		moneyCol("calculated_taxes_aggregator_fee", "Calculated Taxes Aggregator Fee",
			calc(func(c *Calculated) *decimal.NullDecimal { return &c.TaxesAggregatorFee })),
		moneyCol("calculated_tds_amount", "Calculated TDS Amount",
			calc(func(c *Calculated) *decimal.NullDecimal { return &c.TDSAmount })),
		moneyCol("calculated_final_amount", "Calculated Final Amount",
			calc(func(c *Calculated) *decimal.NullDecimal { return &c.FinalAmount })),
	}
}

func fixedCols() []Column {
	fixed := func(pick func(a *Adjustment) *decimal.NullDecimal) moneyField {
		return func(r *MatchRecord, alloc bool) *decimal.NullDecimal {
			if r.Fixed == nil {
				if !alloc {
					return nil
				}
				r.Fixed = &Adjustment{}
			}
			return pick(r.Fixed)
		}
	}
	return []Column{
		moneyCol("fixed_credit_note", "Fixed Credit Note",
			fixed(func(a *Adjustment) *decimal.NullDecimal { return &a.CreditNote })),
		moneyCol("fixed_promo_passthrough", "Fixed Promo Passthrough",
			fixed(func(a *Adjustment) *decimal.NullDecimal { return &a.PromoPassthrough })),
		moneyCol("fixed_discount", "Fixed Discount",
			fixed(func(a *Adjustment) *decimal.NullDecimal { return &a.Discount })),
		moneyCol("fixed_penalty", "Fixed Penalty",
			fixed(func(a *Adjustment) *decimal.NullDecimal { return &a.Penalty })),
	}
}

func parseMoney(raw *string) (decimal.NullDecimal, error) {
	if raw == nil || *raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return Money(d), nil
}
