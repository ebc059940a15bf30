package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusReconciled   Status = "RECONCILED"
	StatusUnreconciled Status = "UNRECONCILED"
)

// Variant identifies one of the five reconciliation result sets.
type Variant int

const (
	VariantPOSVsAggregator Variant = iota
	VariantAggregatorVsPOS
	VariantRefund
	VariantMissingInPOS
	VariantMissingInAggregator
)

// Variants returns every result set in report sheet order.
func Variants() []Variant {
	return []Variant{
		VariantPOSVsAggregator,
		VariantAggregatorVsPOS,
		VariantRefund,
		VariantMissingInPOS,
		VariantMissingInAggregator,
	}
}

var variantTables = map[Variant]string{
	VariantPOSVsAggregator:     "pos_vs_aggregator",
	VariantAggregatorVsPOS:     "aggregator_vs_pos",
	VariantRefund:              "aggregator_vs_pos_refund",
	VariantMissingInPOS:        "orders_missing_in_pos",
	VariantMissingInAggregator: "orders_missing_in_aggregator",
}

// Sheet names are referenced literally by Summary formulas; renaming one
// breaks the formula-mode Summary of every workbook written afterwards.
var variantSheets = map[Variant]string{
	VariantPOSVsAggregator:     "POS vs Aggregator",
	VariantAggregatorVsPOS:     "Aggregator vs POS",
	VariantRefund:              "Aggregator vs POS Refund",
	VariantMissingInPOS:        "Missing in POS",
	VariantMissingInAggregator: "Missing in Aggregator",
}

// Table is the result table the variant is persisted to.
func (v Variant) Table() string { return variantTables[v] }

// SheetName is the workbook sheet the variant is rendered to.
func (v Variant) SheetName() string { return variantSheets[v] }

func (v Variant) String() string { return v.Table() }

// Orientation is the delta sign used by the variant.
func (v Variant) Orientation() Orientation {
	if v == VariantPOSVsAggregator {
		return POSMinusAggregator
	}
	return AggregatorMinusPOS
}

// Matched reports whether records of the variant carry both sides.
func (v Variant) Matched() bool {
	return v == VariantPOSVsAggregator || v == VariantAggregatorVsPOS || v == VariantRefund
}

// HasCalculated reports whether the variant carries recomputed platform fees.
func (v Variant) HasCalculated() bool { return v == VariantAggregatorVsPOS }

// ParseVariant maps a table name back to its variant.
func ParseVariant(table string) (Variant, bool) {
	for v, t := range variantTables {
		if t == table {
			return v, true
		}
	}
	return 0, false
}

// Paired is one dimension of a matched record.
type Paired struct {
	POS        decimal.NullDecimal
	Aggregator decimal.NullDecimal
	Delta      decimal.NullDecimal
}

// Calculated holds aggregator-side values recomputed from POS inputs with the
// platform's published fee formulas.
type Calculated struct {
	CommissionValue    decimal.NullDecimal
	PGCharge           decimal.NullDecimal
	TaxesAggregatorFee decimal.NullDecimal
	TDSAmount          decimal.NullDecimal
	FinalAmount        decimal.NullDecimal
}

// MatchRecord is a row of any of the five result sets. The core fields are
// shared; Pairs, Calculated and Fixed are populated according to Variant.
type MatchRecord struct {
	ID                    string
	Variant               Variant
	POSOrderID            *string
	AggregatorOrderID     *string
	Aggregator            *string
	OrderDate             string
	StoreName             *string
	OrderStatusPOS        *string
	OrderStatusAggregator *string

	Pairs      [DimensionCount]Paired
	Calculated *Calculated
	Fixed      *Adjustment

	Status             Status
	ReconciledAmount   decimal.Decimal
	UnreconciledAmount decimal.Decimal
	Reason             *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NetAmount is the order value the reconciled/unreconciled split is taken
// from: the variant's own side first, the opposite side when that is null.
func (r *MatchRecord) NetAmount() decimal.Decimal {
	p := r.Pairs[NetAmount]
	first, second := p.POS, p.Aggregator
	if r.Variant.Orientation() == AggregatorMinusPOS {
		first, second = p.Aggregator, p.POS
	}
	switch {
	case first.Valid:
		return first.Decimal
	case second.Valid:
		return second.Decimal
	default:
		return decimal.Zero
	}
}

// Row renders the record as column → value for the bulk loader.
func (r *MatchRecord) Row() map[string]any {
	cols := r.Variant.Columns()
	row := make(map[string]any, len(cols))
	for _, c := range cols {
		row[c.Name] = c.Get(r)
	}
	return row
}

var recordNamespace = uuid.MustParse("6f1c2a7e-3b9d-4c55-9a1e-0d4b7f3c2e81")

// RecordID derives the stable primary key of a result row from the variant
// and the source order ids, so re-running a window upserts instead of
// duplicating.
func RecordID(v Variant, parts ...string) string {
	seed := v.Table() + "|" + strings.Join(parts, "|")
	return uuid.NewSHA1(recordNamespace, []byte(seed)).String()
}

// StringPtr returns nil for blank strings.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
