// Package cleaner validates and normalises chunks of uploaded tabular rows
// before they reach the bulk loader.
package cleaner

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/storerecon/reconciler/internal/domain"
)

// Row is one record keyed by normalised column name.
type Row = map[string]any

// Rules configures validation and cleaning for one destination table.
type Rules struct {
	Required []string
	// Currency fields may be negative, e.g. "(45.00)".
	Currency []string
	// Numeric fields must parse and must not be negative.
	Numeric   []string
	DateField string
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RowError collects every problem found on one row.
type RowError struct {
	Index  int          `json:"row_index"`
	Fields []FieldError `json:"field_errors"`
	Row    Row          `json:"raw_row"`
}

func (e RowError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return fmt.Sprintf("row %d: %s", e.Index, strings.Join(parts, "; "))
}

var currencyTokens = []string{"INR", "Rs.", "Rs", "₹", "$", "€", "£", "¥"}

// ParseCurrency turns a currency-formatted string into a decimal. Symbols,
// thousands separators and spaces are stripped, "(123.45)" means -123.45 and
// a blank value is zero.
func ParseCurrency(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, nil
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	for _, tok := range currencyTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("not a number: %q", raw)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %q", raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

var dateLayouts = []string{
	domain.DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"02-Jan-2006",
	"Jan 2, 2006",
}

// ParseDate accepts the date formats aggregators and POS exports use and
// returns the business date.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

// Validate splits rows into those that pass and a RowError for each that
// does not. Row indexes are positions in the input slice.
func Validate(rows []Row, rules Rules) ([]Row, []RowError) {
	valid := make([]Row, 0, len(rows))
	var rejected []RowError

	for i, row := range rows {
		var errs []FieldError

		for _, f := range rules.Required {
			if s, ok := text(row[f]); !ok || s == "" {
				errs = append(errs, FieldError{Field: f, Message: "required field is missing"})
			}
		}
		for _, f := range rules.Currency {
			if s, ok := text(row[f]); ok && s != "" {
				if _, err := ParseCurrency(s); err != nil {
					errs = append(errs, FieldError{Field: f, Message: err.Error()})
				}
			}
		}
		for _, f := range rules.Numeric {
			s, ok := text(row[f])
			if !ok || s == "" {
				continue
			}
			d, err := ParseCurrency(s)
			switch {
			case err != nil:
				errs = append(errs, FieldError{Field: f, Message: err.Error()})
			case d.IsNegative():
				errs = append(errs, FieldError{Field: f, Message: "must not be negative"})
			}
		}
		if rules.DateField != "" {
			if s, ok := text(row[rules.DateField]); ok && s != "" {
				if _, err := ParseDate(s); err != nil {
					errs = append(errs, FieldError{Field: rules.DateField, Message: err.Error()})
				}
			}
		}

		if len(errs) > 0 {
			rejected = append(rejected, RowError{Index: i, Fields: errs, Row: row})
			continue
		}
		valid = append(valid, row)
	}
	return valid, rejected
}

// Clean returns normalised copies of rows: strings trimmed, currency and
// numeric fields converted to decimals (blank becomes zero), other blank
// values set to nil, the date field rewritten as YYYY-MM-DD. Values that do
// not parse are left untouched; run Validate first to reject them.
func Clean(rows []Row, rules Rules) []Row {
	amountFields := make(map[string]bool, len(rules.Currency)+len(rules.Numeric))
	for _, f := range rules.Currency {
		amountFields[f] = true
	}
	for _, f := range rules.Numeric {
		amountFields[f] = true
	}

	out := make([]Row, len(rows))
	for i, row := range rows {
		cleaned := make(Row, len(row))
		for k, v := range row {
			s, ok := text(v)
			switch {
			case amountFields[k] && ok:
				if d, err := ParseCurrency(s); err == nil {
					cleaned[k] = d
				} else {
					cleaned[k] = s
				}
			case !ok || s == "":
				cleaned[k] = nil
			case k == rules.DateField:
				if t, err := ParseDate(s); err == nil {
					cleaned[k] = t.Format(domain.DateLayout)
				} else {
					cleaned[k] = s
				}
			default:
				cleaned[k] = s
			}
		}
		out[i] = cleaned
	}
	return out
}

// text stringifies a cell; ok is false for nil.
func text(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v), true
	}
	return strings.TrimSpace(s), true
}
