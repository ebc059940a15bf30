package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/storerecon/reconciler/internal/domain"
)

// summaryCell is one cell of the Summary sheet: a literal, or a formula when
// the workbook is rendered in formula mode.
type summaryCell struct {
	value   any
	formula string
	money   bool
}

type summaryRow []summaryCell

func text(s string) summaryCell { return summaryCell{value: s} }

func (e *Emitter) writeSummary(f *excelize.File, s *Summary, st styles) error {
	formula := e.opts.Mode == ModeFormula
	rows := summaryRows(s, formula)
	for r, row := range rows {
		for c, cell := range row {
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			switch {
			case cell.formula != "":
				if err := f.SetCellFormula(SummarySheet, name, cell.formula); err != nil {
					return err
				}
			case cell.value != nil:
				if err := f.SetCellValue(SummarySheet, name, cell.value); err != nil {
					return err
				}
			}
			if cell.money {
				if err := f.SetCellStyle(SummarySheet, name, name, st.money); err != nil {
					return err
				}
			}
		}
	}

	for _, r := range summaryHeaderRows(s) {
		if err := f.SetRowStyle(SummarySheet, r, r, st.bold); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(SummarySheet, "A", "A", 44); err != nil {
		return err
	}
	return f.SetColWidth(SummarySheet, "B", "G", 22)
}

// Fixed layout rows (1-based) of the Summary sheet.
const (
	rowTitle     = 1
	rowSetHeader = 5
)

func aggregatorHeaderRow(s *Summary) int { return rowSetHeader + len(s.Sets) + 2 }

func mismatchHeaderRow(s *Summary) int {
	return aggregatorHeaderRow(s) + len(s.Aggregators) + 2
}

func summaryHeaderRows(s *Summary) []int {
	return []int{rowTitle, rowSetHeader, aggregatorHeaderRow(s), mismatchHeaderRow(s)}
}

// ref is an absolute whole-column reference into a data sheet.
func ref(v domain.Variant, column string) string {
	name, err := excelize.ColumnNumberToName(v.ColumnIndex(column) + 1)
	if err != nil {
		panic(fmt.Sprintf("column %s of %s: %v", column, v.Table(), err))
	}
	return fmt.Sprintf("'%s'!$%s:$%s", strings.ReplaceAll(v.SheetName(), "'", "''"), name, name)
}

func quoted(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func summaryRows(s *Summary, formula bool) []summaryRow {
	stores := strings.Join(s.StoreCodes, ", ")
	if stores == "" {
		stores = "All stores"
	}
	rows := make([]summaryRow, mismatchHeaderRow(s))
	rows[rowTitle-1] = summaryRow{text("Reconciliation Summary")}
	rows[1] = summaryRow{text("Period"), text(s.StartDate + " to " + s.EndDate)}
	rows[2] = summaryRow{text("Stores"), text(stores)}

	rows[rowSetHeader-1] = summaryRow{
		text("Result Set"), text("Records"), text("Reconciled"), text("Unreconciled"),
		text("Reconciled Amount"), text("Unreconciled Amount"),
	}
	for i, set := range s.Sets {
		v, _ := domain.ParseVariant(set.Table)
		row := summaryRow{text(set.Sheet)}
		if formula {
			status := ref(v, "reconciled_status")
			row = append(row,
				summaryCell{formula: fmt.Sprintf("COUNTA(%s)-1", ref(v, "id"))},
				summaryCell{formula: fmt.Sprintf("COUNTIF(%s,%s)", status, quoted(string(domain.StatusReconciled)))},
				summaryCell{formula: fmt.Sprintf("COUNTIF(%s,%s)", status, quoted(string(domain.StatusUnreconciled)))},
				summaryCell{formula: fmt.Sprintf("SUM(%s)", ref(v, "reconciled_amount")), money: true},
				summaryCell{formula: fmt.Sprintf("SUM(%s)", ref(v, "unreconciled_amount")), money: true},
			)
		} else {
			row = append(row,
				summaryCell{value: set.Records},
				summaryCell{value: set.Reconciled},
				summaryCell{value: set.Unreconciled},
				summaryCell{value: set.ReconciledAmount.InexactFloat64(), money: true},
				summaryCell{value: set.UnreconciledAmount.InexactFloat64(), money: true},
			)
		}
		rows[rowSetHeader+i] = row
	}

	aggHeader := aggregatorHeaderRow(s)
	rows[aggHeader-1] = summaryRow{
		text("Aggregator (" + domain.VariantPOSVsAggregator.SheetName() + ")"),
		text("Orders"), text("Unreconciled"), text("Unreconciled Amount"),
	}
	v := domain.VariantPOSVsAggregator
	for i, agg := range s.Aggregators {
		row := summaryRow{text(agg.Aggregator)}
		if formula {
			match := fmt.Sprintf("%s,%s", ref(v, "aggregator"), quoted(agg.Aggregator))
			row = append(row,
				summaryCell{formula: fmt.Sprintf("COUNTIFS(%s)", match)},
				summaryCell{formula: fmt.Sprintf("COUNTIFS(%s,%s,%s)", match, ref(v, "reconciled_status"), quoted(string(domain.StatusUnreconciled)))},
				summaryCell{formula: fmt.Sprintf("SUMIFS(%s,%s)", ref(v, "unreconciled_amount"), match), money: true},
			)
		} else {
			row = append(row,
				summaryCell{value: agg.Orders},
				summaryCell{value: agg.Unreconciled},
				summaryCell{value: agg.UnreconciledAmount.InexactFloat64(), money: true},
			)
		}
		rows[aggHeader+i] = row
	}

	rows[mismatchHeaderRow(s)-1] = summaryRow{text("Mismatch Reason"), text("Result Set"), text("Records")}
	for _, set := range s.Sets {
		v, _ := domain.ParseVariant(set.Table)
		if !v.Matched() {
			continue
		}
		for _, d := range domain.Dimensions() {
			tag := d.Tag(v.Orientation())
			row := summaryRow{text(tag), text(set.Sheet)}
			if formula {
				row = append(row, summaryCell{formula: fmt.Sprintf("COUNTIF(%s,%s)", ref(v, "reason"), quoted("*"+tag+"*"))})
			} else {
				row = append(row, summaryCell{value: set.Mismatches[tag]})
			}
			rows = append(rows, row)
		}
	}
	return rows
}
