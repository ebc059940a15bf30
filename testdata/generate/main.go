package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storerecon/reconciler/internal/domain"
	"github.com/storerecon/reconciler/internal/fees"
)

type order struct {
	ID         string
	Date       string
	Store      string
	Aggregator string
	Amounts    domain.Amounts
}

func main() {
	rng := rand.New(rand.NewSource(42))
	baseDir := findTestdataDir()

	// Date range: 2024-03-01 to 2024-03-14.
	startDate := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	endDate := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	dayRange := int(endDate.Sub(startDate).Hours()/24) + 1

	stores := []string{"BLR-01", "BLR-02", "DEL-01", "MUM-01", "MUM-02"}
	aggregators := fees.Aggregators()

	var orders []order
	for i := 1; i <= 240; i++ {
		agg := aggregators[rng.Intn(len(aggregators))]
		sched, err := fees.Lookup(agg)
		if err != nil {
			panic(err)
		}

		// Net between 150 and 2500.
		net := decimal.NewFromInt(int64(150 + rng.Intn(2350))).Add(decimal.New(int64(rng.Intn(100)), -2))
		var a domain.Amounts
		a[domain.NetAmount] = domain.Money(net)
		a[domain.TaxPaidByCustomer] = domain.Money(net.Mul(decimal.RequireFromString("0.05")))
		a[domain.PGAppliedOn] = domain.Money(net.Add(a[domain.TaxPaidByCustomer].Decimal))

		calc := sched.Calculate(a)
		a[domain.CommissionValue] = calc.CommissionValue
		a[domain.PGCharge] = calc.PGCharge
		a[domain.TaxesAggregatorFee] = calc.TaxesAggregatorFee
		a[domain.TDSAmount] = calc.TDSAmount
		a[domain.FinalAmount] = calc.FinalAmount

		orders = append(orders, order{
			ID:         fmt.Sprintf("%s-%05d", prefixFor(agg), 10000+i),
			Date:       startDate.AddDate(0, 0, rng.Intn(dayRange)).Format(domain.DateLayout),
			Store:      stores[rng.Intn(len(stores))],
			Aggregator: agg,
			Amounts:    a,
		})
	}

	generatePOSCSV(rng, orders, baseDir)
	for _, agg := range aggregators {
		generateAggregatorFile(rng, orders, agg, baseDir)
	}
	generateAdjustmentsJSON(rng, orders, baseDir)

	fmt.Println("Test data generation complete.")
}

func prefixFor(aggregator string) string {
	if aggregator == "zomato" {
		return "ZO"
	}
	return "SW"
}

func amountHeader() []string {
	out := make([]string, 0, domain.DimensionCount)
	for _, d := range domain.Dimensions() {
		out = append(out, d.Field())
	}
	return out
}

func amountRow(a domain.Amounts) []string {
	out := make([]string, 0, domain.DimensionCount)
	for _, v := range a {
		if !v.Valid {
			out = append(out, "")
			continue
		}
		out = append(out, v.Decimal.StringFixed(2))
	}
	return out
}

func generatePOSCSV(rng *rand.Rand, orders []order, baseDir string) {
	filePath := filepath.Join(baseDir, "pos_transactions.csv")
	f, err := os.Create(filePath)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write(append([]string{"order_no", "bill_date", "outlet", "status", "channel"}, amountHeader()...))

	count := 0
	for _, o := range orders {
		// 3% missing from POS.
		if rng.Float64() < 0.03 {
			continue
		}
		w.Write(append([]string{o.ID, o.Date, o.Store, "delivered", o.Aggregator}, amountRow(o.Amounts)...))
		count++
	}

	fmt.Printf("Generated %d POS rows -> pos_transactions.csv\n", count)
}

// generateAggregatorFile writes zomato as CSV and swiggy as a pipe-delimited
// export, the way each platform ships them.
func generateAggregatorFile(rng *rand.Rand, orders []order, aggregator, baseDir string) {
	name := "aggregator_" + aggregator + ".csv"
	delim := ','
	if aggregator == "swiggy" {
		name = "aggregator_" + aggregator + ".psv"
		delim = '|'
	}

	f, err := os.Create(filepath.Join(baseDir, name))
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = delim
	defer w.Flush()

	w.Write(append([]string{"utr", "platform_order_id", "platform", "date", "store", "status", "type"}, amountHeader()...))

	count := 0
	for i, o := range orders {
		if o.Aggregator != aggregator {
			continue
		}
		roll := rng.Float64()

		// 5% missing from the aggregator.
		if roll > 0.95 {
			continue
		}

		a := o.Amounts
		// 6% commission overcharged by 1-3%.
		if roll > 0.89 && roll <= 0.95 {
			pct := decimal.NewFromFloat(1.01 + rng.Float64()*0.02)
			a[domain.CommissionValue] = domain.Money(a[domain.CommissionValue].Decimal.Mul(pct))
			a[domain.FinalAmount] = domain.Money(a[domain.FinalAmount].Decimal.Sub(
				a[domain.CommissionValue].Decimal.Sub(o.Amounts[domain.CommissionValue].Decimal)))
		}
		// 2% TDS not reported.
		if roll > 0.87 && roll <= 0.89 {
			a[domain.TDSAmount] = decimal.NullDecimal{}
		}

		orderID := o.ID
		// Two orphaned settlements per platform.
		if count < 2 {
			orderID = fmt.Sprintf("%s-FAKE-%03d", prefixFor(aggregator), count+1)
		}

		settlementID := fmt.Sprintf("%s-UTR-%05d", prefixFor(aggregator), i+1)
		w.Write(append([]string{settlementID, orderID, aggregator, o.Date, o.Store, "settled", "sale"}, amountRow(a)...))
		count++

		// 3% refunded after settlement.
		if rng.Float64() < 0.03 {
			w.Write(append([]string{settlementID + "-R", o.ID, aggregator, o.Date, o.Store, "refunded", "refund"},
				amountRow(o.Amounts.Negated())...))
			count++
		}
	}

	fmt.Printf("Generated %d %s settlement rows -> %s\n", count, aggregator, name)
}

func generateAdjustmentsJSON(rng *rand.Rand, orders []order, baseDir string) {
	type record struct {
		OrderID          string `json:"order_no"`
		CreditNote       string `json:"credit_note,omitempty"`
		PromoPassthrough string `json:"promo,omitempty"`
		Discount         string `json:"discount,omitempty"`
		Penalty          string `json:"penalty,omitempty"`
		Note             string `json:"remarks"`
	}
	type fileFormat struct {
		GeneratedAt string   `json:"generated_at"`
		Records     []record `json:"records"`
	}

	var records []record
	for _, o := range orders {
		roll := rng.Float64()
		switch {
		case roll < 0.04:
			records = append(records, record{
				OrderID:    o.ID,
				CreditNote: decimal.NewFromInt(int64(20 + rng.Intn(80))).StringFixed(2),
				Note:       "customer complaint credit",
			})
		case roll < 0.07:
			records = append(records, record{
				OrderID: o.ID,
				Penalty: decimal.NewFromInt(int64(10 + rng.Intn(40))).StringFixed(2),
				Note:    "late handover penalty",
			})
		case roll < 0.09:
			records = append(records, record{
				OrderID:          o.ID,
				PromoPassthrough: decimal.NewFromInt(int64(25 + rng.Intn(50))).StringFixed(2),
				Discount:         "0.00",
				Note:             "platform funded promo",
			})
		}
	}

	writeJSONFile(filepath.Join(baseDir, "order_adjustments.json"), fileFormat{
		GeneratedAt: "2024-03-15T06:00:00+05:30",
		Records:     records,
	})
	fmt.Printf("Generated %d adjustments -> order_adjustments.json\n", len(records))
}

func writeJSONFile(path string, v any) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
}

func findTestdataDir() string {
	for _, c := range []string{"testdata", "../testdata", "../../testdata"} {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "testdata"
}
