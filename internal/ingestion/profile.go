package ingestion

import (
	"fmt"
	"sort"

	"github.com/storerecon/reconciler/internal/cleaner"
	"github.com/storerecon/reconciler/internal/domain"
	"github.com/storerecon/reconciler/internal/repository"
)

// Profile describes how uploads for one source table are read and checked.
type Profile struct {
	Table string
	Rules cleaner.Rules
	// Aliases maps normalised export headers to column names.
	Aliases map[string]string
}

// Column resolves a normalised header to its destination column.
func (p *Profile) Column(header string) string {
	if c, ok := p.Aliases[header]; ok {
		return c
	}
	return header
}

func amountFields() []string {
	fields := make([]string, 0, domain.DimensionCount)
	for _, d := range domain.Dimensions() {
		fields = append(fields, d.Field())
	}
	return fields
}

// Header spellings seen in POS and aggregator exports.
var amountAliases = map[string]string{
	"net":           "net_amount",
	"net_sales":     "net_amount",
	"subtotal":      "net_amount",
	"sub_total":     "net_amount",
	"tax":           "tax_paid_by_customer",
	"gst":           "tax_paid_by_customer",
	"tax_amount":    "tax_paid_by_customer",
	"commission":    "commission_value",
	"pg_charges":    "pg_charge",
	"gateway_fee":   "pg_charge",
	"gst_on_fees":   "taxes_aggregator_fee",
	"taxes_on_fees": "taxes_aggregator_fee",
	"tds":           "tds_amount",
	"final":         "final_amount",
	"payout":        "final_amount",
	"net_payout":    "final_amount",
}

func withAmounts(aliases map[string]string) map[string]string {
	for k, v := range amountAliases {
		aliases[k] = v
	}
	return aliases
}

var profiles = map[string]*Profile{
	repository.TablePOS: {
		Table: repository.TablePOS,
		Rules: cleaner.Rules{
			Required:  []string{"order_id", "order_date"},
			Currency:  amountFields(),
			DateField: "order_date",
		},
		Aliases: withAmounts(map[string]string{
			"order_no":     "order_id",
			"order_number": "order_id",
			"bill_no":      "order_id",
			"invoice_no":   "order_id",
			"date":         "order_date",
			"bill_date":    "order_date",
			"store":        "store_name",
			"outlet":       "store_name",
			"outlet_name":  "store_name",
			"store_code":   "store_name",
			"status":       "order_status",
			"channel":      "aggregator",
			"platform":     "aggregator",
			"source":       "aggregator",
		}),
	},
	repository.TableAggregator: {
		Table: repository.TableAggregator,
		Rules: cleaner.Rules{
			Required:  []string{"order_id", "aggregator", "order_date"},
			Currency:  amountFields(),
			DateField: "order_date",
		},
		Aliases: withAmounts(map[string]string{
			"settlement_ref":    "settlement_id",
			"utr":               "settlement_id",
			"transaction_id":    "settlement_id",
			"order_no":          "order_id",
			"platform_order_id": "order_id",
			"platform":          "aggregator",
			"channel":           "aggregator",
			"date":              "order_date",
			"store":             "store_name",
			"outlet":            "store_name",
			"store_code":        "store_name",
			"status":            "order_status",
			"type":              "transaction_type",
			"txn_type":          "transaction_type",
		}),
	},
	repository.TableAdjustments: {
		Table: repository.TableAdjustments,
		Rules: cleaner.Rules{
			Required: []string{"order_id"},
			Currency: []string{"credit_note", "promo_passthrough", "discount", "penalty"},
		},
		Aliases: map[string]string{
			"order_no":           "order_id",
			"credit":             "credit_note",
			"credit_note_amount": "credit_note",
			"promo":              "promo_passthrough",
			"promo_amount":       "promo_passthrough",
			"remarks":            "note",
			"comment":            "note",
		},
	},
}

// Tables lists the tables uploads can target.
func Tables() []string {
	out := make([]string, 0, len(profiles))
	for t := range profiles {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ProfileFor returns the upload profile of a source table.
func ProfileFor(table string) (*Profile, error) {
	p, ok := profiles[table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return p, nil
}
