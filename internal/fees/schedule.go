package fees

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/storerecon/reconciler/internal/domain"
)

// Schedule is the fee structure an aggregator publishes in its merchant
// agreement. Rates are fractions, e.g. 0.18 for 18%.
type Schedule struct {
	Aggregator string
	// Commission is charged on the order's net amount.
	Commission decimal.Decimal
	// PaymentGateway is charged on the pg_applied_on base.
	PaymentGateway decimal.Decimal
	// FeeTax is GST levied on commission plus payment gateway charges.
	FeeTax decimal.Decimal
	// TDS is withheld on the net amount.
	TDS decimal.Decimal
}

// Approximate 2024 published rates.
var schedules = map[string]Schedule{
	"zomato": {
		Aggregator:     "zomato",
		Commission:     decimal.RequireFromString("0.18"),
		PaymentGateway: decimal.RequireFromString("0.0184"),
		FeeTax:         decimal.RequireFromString("0.18"),
		TDS:            decimal.RequireFromString("0.01"),
	},
	"swiggy": {
		Aggregator:     "swiggy",
		Commission:     decimal.RequireFromString("0.20"),
		PaymentGateway: decimal.RequireFromString("0.02"),
		FeeTax:         decimal.RequireFromString("0.18"),
		TDS:            decimal.RequireFromString("0.01"),
	},
}

// Lookup returns the schedule for an aggregator name, case-insensitively.
func Lookup(aggregator string) (Schedule, error) {
	s, ok := schedules[strings.ToLower(strings.TrimSpace(aggregator))]
	if !ok {
		return Schedule{}, fmt.Errorf("no fee schedule for aggregator %q", aggregator)
	}
	return s, nil
}

// Aggregators lists the platforms with a known schedule.
func Aggregators() []string {
	return []string{"swiggy", "zomato"}
}

// Calculate recomputes what the aggregator should have charged for an order
// from the POS amounts. Each value is rounded to two places and is null when
// one of its inputs is null.
func (s Schedule) Calculate(pos domain.Amounts) *domain.Calculated {
	net := pos.Get(domain.NetAmount)
	base := pos.Get(domain.PGAppliedOn)

	commission := mul(net, s.Commission)
	pg := mul(base, s.PaymentGateway)
	feeTax := mul(add(commission, pg), s.FeeTax)
	tds := mul(net, s.TDS)

	final := net
	for _, v := range []decimal.NullDecimal{commission, pg, feeTax, tds} {
		final = sub(final, v)
	}

	return &domain.Calculated{
		CommissionValue:    commission,
		PGCharge:           pg,
		TaxesAggregatorFee: feeTax,
		TDSAmount:          tds,
		FinalAmount:        final,
	}
}

func mul(v decimal.NullDecimal, rate decimal.Decimal) decimal.NullDecimal {
	if !v.Valid {
		return v
	}
	return domain.Money(v.Decimal.Mul(rate))
}

func add(a, b decimal.NullDecimal) decimal.NullDecimal {
	if !a.Valid || !b.Valid {
		return decimal.NullDecimal{}
	}
	return domain.Money(a.Decimal.Add(b.Decimal))
}

func sub(a, b decimal.NullDecimal) decimal.NullDecimal {
	if !a.Valid || !b.Valid {
		return decimal.NullDecimal{}
	}
	return domain.Money(a.Decimal.Sub(b.Decimal))
}
