package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/storerecon/reconciler/internal/domain"
)

type fakeSource map[domain.Variant][]domain.MatchRecord

func (s fakeSource) Each(_ context.Context, v domain.Variant, fn func(*domain.MatchRecord) error) error {
	for i := range s[v] {
		if err := fn(&s[v][i]); err != nil {
			return err
		}
	}
	return nil
}

var created = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

func money(s string) decimal.NullDecimal { return domain.Money(decimal.RequireFromString(s)) }

func matched(orderID, aggregator string, status domain.Status, reconciled, unreconciled string, reason string) domain.MatchRecord {
	r := domain.MatchRecord{
		ID:                 domain.RecordID(domain.VariantPOSVsAggregator, orderID),
		Variant:            domain.VariantPOSVsAggregator,
		POSOrderID:         domain.StringPtr(orderID),
		AggregatorOrderID:  domain.StringPtr(orderID),
		Aggregator:         domain.StringPtr(aggregator),
		OrderDate:          "2024-03-02",
		StoreName:          domain.StringPtr("S1"),
		Status:             status,
		ReconciledAmount:   decimal.RequireFromString(reconciled),
		UnreconciledAmount: decimal.RequireFromString(unreconciled),
		Reason:             domain.StringPtr(reason),
		CreatedAt:          created,
		UpdatedAt:          created,
	}
	r.Pairs[domain.NetAmount] = domain.Paired{POS: money("100"), Aggregator: money("100"), Delta: money("0")}
	return r
}

func testScope(t *testing.T) domain.Scope {
	t.Helper()
	s, err := domain.NewScope("2024-03-01", "2024-03-31", []string{"S1"})
	require.NoError(t, err)
	return s
}

func render(t *testing.T, opts Options, src Source) (*excelize.File, *Summary) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	var buf bytes.Buffer
	summary, err := NewEmitter(opts, logger).Render(context.Background(), src, testScope(t), &buf, nil)
	require.NoError(t, err)
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f, summary
}

func raw(t *testing.T, f *excelize.File, sheet, cell string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, cell, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	return v
}

func sampleSource() fakeSource {
	return fakeSource{
		domain.VariantPOSVsAggregator: {
			matched("O1", "zomato", domain.StatusUnreconciled, "98", "2", "COMMISSION_VALUE_POS_VS_AGGREGATOR_MISMATCH"),
			matched("O2", "zomato", domain.StatusReconciled, "100", "0", ""),
		},
	}
}

func TestRenderSheetOrderAndHeaders(t *testing.T) {
	f, _ := render(t, Options{}, sampleSource())

	want := []string{SummarySheet}
	for _, v := range domain.Variants() {
		want = append(want, v.SheetName())
	}
	assert.Equal(t, want, f.GetSheetList())

	for _, v := range domain.Variants() {
		rows, err := f.GetRows(v.SheetName())
		require.NoError(t, err)
		require.NotEmpty(t, rows, v.SheetName())
		require.Len(t, rows[0], len(v.Columns()))
		for i, c := range v.Columns() {
			assert.Equal(t, c.Header, rows[0][i])
		}
		style, err := f.GetCellStyle(v.SheetName(), "A1")
		require.NoError(t, err)
		assert.NotZero(t, style, "header is styled")
	}
}

func TestRenderDataRows(t *testing.T) {
	f, _ := render(t, Options{}, sampleSource())
	sheet := domain.VariantPOSVsAggregator.SheetName()
	v := domain.VariantPOSVsAggregator

	cell := func(row int, column string) string {
		name, err := excelize.CoordinatesToCellName(v.ColumnIndex(column)+1, row)
		require.NoError(t, err)
		return raw(t, f, sheet, name)
	}

	assert.Equal(t, "O1", cell(2, "pos_order_id"))
	assert.Equal(t, "2024-03-02", cell(2, "order_date"))
	assert.Equal(t, "100", cell(2, "pos_net_amount"))
	assert.Equal(t, "98", cell(2, "reconciled_amount"))
	assert.Equal(t, "", cell(2, "pos_commission_value"), "null stays empty")
	assert.Equal(t, "UNRECONCILED", cell(2, "reconciled_status"))
	assert.Equal(t, "O2", cell(3, "pos_order_id"))
	assert.Equal(t, "", cell(3, "reason"))
}

func TestRenderColumnWidths(t *testing.T) {
	src := sampleSource()
	long := strings.Repeat("X", 200)
	src[domain.VariantPOSVsAggregator][0].Reason = &long

	f, _ := render(t, Options{MaxColWidth: 60}, src)
	sheet := domain.VariantPOSVsAggregator.SheetName()
	v := domain.VariantPOSVsAggregator

	width := func(column string) float64 {
		name, err := excelize.ColumnNumberToName(v.ColumnIndex(column) + 1)
		require.NoError(t, err)
		w, err := f.GetColWidth(sheet, name)
		require.NoError(t, err)
		return w
	}
	assert.Equal(t, float64(38), width("id"), "uuid plus padding")
	assert.Equal(t, float64(60), width("reason"), "capped")
	assert.Equal(t, float64(len("POS Order ID")+2), width("pos_order_id"), "header wider than values")
}

func TestRenderStreamsPastSample(t *testing.T) {
	var recs []domain.MatchRecord
	for i := 0; i < 7; i++ {
		recs = append(recs, matched(fmt.Sprintf("O%d", i), "swiggy", domain.StatusReconciled, "100", "0", ""))
	}
	f, summary := render(t, Options{SampleRows: 3}, fakeSource{domain.VariantPOSVsAggregator: recs})

	rows, err := f.GetRows(domain.VariantPOSVsAggregator.SheetName())
	require.NoError(t, err)
	require.Len(t, rows, 8)
	col := domain.VariantPOSVsAggregator.ColumnIndex("pos_order_id")
	for i := 0; i < 7; i++ {
		assert.Equal(t, fmt.Sprintf("O%d", i), rows[i+1][col])
	}
	assert.Equal(t, 7, summary.Sets[0].Records)
}

func TestRenderStaticSummary(t *testing.T) {
	f, summary := render(t, Options{Aggregators: []string{"swiggy", "zomato"}}, sampleSource())

	set := summary.Sets[0]
	assert.Equal(t, domain.VariantPOSVsAggregator.Table(), set.Table)
	assert.Equal(t, 2, set.Records)
	assert.Equal(t, 1, set.Reconciled)
	assert.Equal(t, 1, set.Unreconciled)
	assert.True(t, decimal.RequireFromString("198").Equal(set.ReconciledAmount))
	assert.Equal(t, 1, set.Mismatches["COMMISSION_VALUE_POS_VS_AGGREGATOR_MISMATCH"])
	assert.Nil(t, summary.Sets[3].Mismatches, "one-sided sets have no reasons")

	require.Len(t, summary.Aggregators, 2)
	assert.Equal(t, "swiggy", summary.Aggregators[0].Aggregator)
	assert.Equal(t, 0, summary.Aggregators[0].Orders)
	assert.Equal(t, 2, summary.Aggregators[1].Orders)
	assert.Equal(t, 1, summary.Aggregators[1].Unreconciled)

	assert.Equal(t, "Reconciliation Summary", raw(t, f, SummarySheet, "A1"))
	assert.Equal(t, "2024-03-01 to 2024-03-31", raw(t, f, SummarySheet, "B2"))
	assert.Equal(t, "S1", raw(t, f, SummarySheet, "B3"))
	assert.Equal(t, "POS vs Aggregator", raw(t, f, SummarySheet, "A6"))
	assert.Equal(t, "2", raw(t, f, SummarySheet, "B6"))
	assert.Equal(t, "1", raw(t, f, SummarySheet, "C6"))
	assert.Equal(t, "198", raw(t, f, SummarySheet, "E6"))
	assert.Equal(t, "2", raw(t, f, SummarySheet, "F6"))

	assert.Equal(t, "zomato", raw(t, f, SummarySheet, "A14"))
	assert.Equal(t, "2", raw(t, f, SummarySheet, "B14"))

	formula, err := f.GetCellFormula(SummarySheet, "B6")
	require.NoError(t, err)
	assert.Empty(t, formula)
}

func TestRenderFormulaSummary(t *testing.T) {
	f, summary := render(t, Options{Mode: ModeFormula, Aggregators: []string{"zomato"}}, sampleSource())
	assert.Equal(t, 2, summary.Sets[0].Records, "metrics are still computed in-process")

	formula := func(cell string) string {
		v, err := f.GetCellFormula(SummarySheet, cell)
		require.NoError(t, err)
		return v
	}
	v := domain.VariantPOSVsAggregator
	status, _ := excelize.ColumnNumberToName(v.ColumnIndex("reconciled_status") + 1)
	unrec, _ := excelize.ColumnNumberToName(v.ColumnIndex("unreconciled_amount") + 1)
	agg, _ := excelize.ColumnNumberToName(v.ColumnIndex("aggregator") + 1)
	reason, _ := excelize.ColumnNumberToName(v.ColumnIndex("reason") + 1)
	sheet := "'POS vs Aggregator'!"

	assert.Equal(t, "COUNTA("+sheet+"$A:$A)-1", formula("B6"))
	assert.Equal(t, fmt.Sprintf(`COUNTIF(%s$%s:$%s,"RECONCILED")`, sheet, status, status), formula("C6"))
	assert.Equal(t, fmt.Sprintf("SUM(%s$%s:$%s)", sheet, unrec, unrec), formula("F6"))
	assert.Equal(t, fmt.Sprintf(`SUMIFS(%s$%s:$%s,%s$%s:$%s,"zomato")`, sheet, unrec, unrec, sheet, agg, agg), formula("D13"))

	// First mismatch row follows the aggregator block.
	assert.Equal(t, "NET_AMOUNT_POS_VS_AGGREGATOR_MISMATCH", raw(t, f, SummarySheet, "A16"))
	assert.Equal(t, fmt.Sprintf(`COUNTIF(%s$%s:$%s,"*NET_AMOUNT_POS_VS_AGGREGATOR_MISMATCH*")`, sheet, reason, reason), formula("C16"))
}

func TestRenderSourceError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	boom := errors.New("cursor failed")
	var buf bytes.Buffer
	_, err := NewEmitter(Options{}, logger).Render(context.Background(), failingSource{boom}, testScope(t), &buf, nil)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, buf.Len(), "nothing written on failure")
}

func TestRenderProgress(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var calls []int
	_, err := NewEmitter(Options{}, logger).Render(context.Background(), sampleSource(), testScope(t), &bytes.Buffer{},
		func(done, total int) {
			assert.Equal(t, 5, total)
			calls = append(calls, done)
		})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, calls)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeStatic, m)
	m, err = ParseMode(" Formula ")
	require.NoError(t, err)
	assert.Equal(t, ModeFormula, m)
	_, err = ParseMode("pivot")
	assert.Error(t, err)
}

type failingSource struct{ err error }

func (s failingSource) Each(context.Context, domain.Variant, func(*domain.MatchRecord) error) error {
	return s.err
}
