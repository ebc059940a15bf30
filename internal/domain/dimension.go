package domain

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Dimension is one of the financial fields compared between POS and aggregator.
// The numeric order of the constants is the canonical reason order.
type Dimension int

const (
	NetAmount Dimension = iota
	TaxPaidByCustomer
	CommissionValue
	PGAppliedOn
	PGCharge
	TaxesAggregatorFee
	TDSAmount
	FinalAmount
)

// DimensionCount is the number of tracked financial dimensions.
const DimensionCount = int(FinalAmount) + 1

var dimensionFields = [DimensionCount]string{
	"net_amount",
	"tax_paid_by_customer",
	"commission_value",
	"pg_applied_on",
	"pg_charge",
	"taxes_aggregator_fee",
	"tds_amount",
	"final_amount",
}

var dimensionLabels = [DimensionCount]string{
	"Net Amount",
	"Tax Paid By Customer",
	"Commission Value",
	"PG Applied On",
	"PG Charge",
	"Taxes Aggregator Fee",
	"TDS Amount",
	"Final Amount",
}

// Dimensions returns all dimensions in canonical order.
func Dimensions() []Dimension {
	dims := make([]Dimension, DimensionCount)
	for i := range dims {
		dims[i] = Dimension(i)
	}
	return dims
}

// Field is the snake_case column stem, e.g. "commission_value".
func (d Dimension) Field() string { return dimensionFields[d] }

// Label is the spreadsheet header stem, e.g. "Commission Value".
func (d Dimension) Label() string { return dimensionLabels[d] }

// Orientation fixes the sign of a delta and the wording of reason tags.
type Orientation int

const (
	// POSMinusAggregator: delta = pos - aggregator.
	POSMinusAggregator Orientation = iota
	// AggregatorMinusPOS: delta = aggregator - pos.
	AggregatorMinusPOS
)

func (o Orientation) tag() string {
	if o == AggregatorMinusPOS {
		return "AGGREGATOR_VS_POS"
	}
	return "POS_VS_AGGREGATOR"
}

// Delta subtracts in the given orientation. A null operand yields a null delta.
func (o Orientation) Delta(pos, agg decimal.NullDecimal) decimal.NullDecimal {
	if !pos.Valid || !agg.Valid {
		return decimal.NullDecimal{}
	}
	if o == AggregatorMinusPOS {
		return decimal.NullDecimal{Decimal: agg.Decimal.Sub(pos.Decimal), Valid: true}
	}
	return decimal.NullDecimal{Decimal: pos.Decimal.Sub(agg.Decimal), Valid: true}
}

// Tag is the reason-code vocabulary entry for a mismatch on d,
// e.g. COMMISSION_VALUE_POS_VS_AGGREGATOR_MISMATCH.
func (d Dimension) Tag(o Orientation) string {
	return strings.ToUpper(d.Field()) + "_" + o.tag() + "_MISMATCH"
}

// JoinReasons renders mismatched dimensions as the reason string. Input order
// does not matter: tags are deduplicated and emitted in canonical order.
func JoinReasons(dims []Dimension, o Orientation) string {
	if len(dims) == 0 {
		return ""
	}
	sorted := make([]Dimension, len(dims))
	copy(sorted, dims)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	tags := make([]string, 0, len(sorted))
	for i, d := range sorted {
		if i > 0 && sorted[i-1] == d {
			continue
		}
		tags = append(tags, d.Tag(o))
	}
	return strings.Join(tags, ",")
}

// Amounts holds one nullable value per dimension.
type Amounts [DimensionCount]decimal.NullDecimal

// Get returns the value for d.
func (a Amounts) Get(d Dimension) decimal.NullDecimal { return a[d] }

// Negated flips the sign of every non-null value.
func (a Amounts) Negated() Amounts {
	var out Amounts
	for i, v := range a {
		if v.Valid {
			out[i] = decimal.NullDecimal{Decimal: v.Decimal.Neg(), Valid: true}
		}
	}
	return out
}

// Money builds a valid NullDecimal rounded to two places.
func Money(v decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: v.Round(2), Valid: true}
}
