package report

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/storerecon/reconciler/internal/domain"
)

// Source streams stored result records of one window.
type Source interface {
	Each(ctx context.Context, v domain.Variant, fn func(*domain.MatchRecord) error) error
}

// SetSummary aggregates one result set.
type SetSummary struct {
	Table              string          `json:"table"`
	Sheet              string          `json:"sheet"`
	Records            int             `json:"records"`
	Reconciled         int             `json:"reconciled"`
	Unreconciled       int             `json:"unreconciled"`
	ReconciledAmount   decimal.Decimal `json:"reconciled_amount"`
	UnreconciledAmount decimal.Decimal `json:"unreconciled_amount"`
	// Mismatches counts records per reason tag. Matched sets only.
	Mismatches map[string]int `json:"mismatches,omitempty"`
}

// AggregatorSummary breaks the POS vs Aggregator set down by platform.
type AggregatorSummary struct {
	Aggregator         string          `json:"aggregator"`
	Orders             int             `json:"orders"`
	Unreconciled       int             `json:"unreconciled"`
	UnreconciledAmount decimal.Decimal `json:"unreconciled_amount"`
}

// Summary holds the metrics shown on the Summary sheet.
type Summary struct {
	StartDate   string              `json:"start_date"`
	EndDate     string              `json:"end_date"`
	StoreCodes  []string            `json:"store_codes"`
	Sets        []SetSummary        `json:"sets"`
	Aggregators []AggregatorSummary `json:"aggregators"`
}

// accumulator builds a Summary one record at a time.
type accumulator struct {
	scope domain.Scope
	sets  map[domain.Variant]*SetSummary
	aggs  map[string]*AggregatorSummary
}

func newAccumulator(scope domain.Scope, aggregators []string) *accumulator {
	a := &accumulator{
		scope: scope,
		sets:  make(map[domain.Variant]*SetSummary),
		aggs:  make(map[string]*AggregatorSummary),
	}
	for _, v := range domain.Variants() {
		set := &SetSummary{Table: v.Table(), Sheet: v.SheetName()}
		if v.Matched() {
			set.Mismatches = make(map[string]int, domain.DimensionCount)
			for _, d := range domain.Dimensions() {
				set.Mismatches[d.Tag(v.Orientation())] = 0
			}
		}
		a.sets[v] = set
	}
	for _, name := range aggregators {
		a.aggs[name] = &AggregatorSummary{Aggregator: name}
	}
	return a
}

func (a *accumulator) add(r *domain.MatchRecord) {
	s := a.sets[r.Variant]
	s.Records++
	if r.Status == domain.StatusReconciled {
		s.Reconciled++
	} else {
		s.Unreconciled++
	}
	s.ReconciledAmount = s.ReconciledAmount.Add(r.ReconciledAmount)
	s.UnreconciledAmount = s.UnreconciledAmount.Add(r.UnreconciledAmount)
	if s.Mismatches != nil && r.Reason != nil {
		for _, tag := range strings.Split(*r.Reason, ",") {
			if _, ok := s.Mismatches[tag]; ok {
				s.Mismatches[tag]++
			}
		}
	}

	if r.Variant != domain.VariantPOSVsAggregator || r.Aggregator == nil {
		return
	}
	agg, ok := a.aggs[*r.Aggregator]
	if !ok {
		agg = &AggregatorSummary{Aggregator: *r.Aggregator}
		a.aggs[*r.Aggregator] = agg
	}
	agg.Orders++
	if r.Status == domain.StatusUnreconciled {
		agg.Unreconciled++
	}
	agg.UnreconciledAmount = agg.UnreconciledAmount.Add(r.UnreconciledAmount)
}

func (a *accumulator) summary() *Summary {
	s := &Summary{
		StartDate:  a.scope.StartDate(),
		EndDate:    a.scope.EndDate(),
		StoreCodes: a.scope.StoreCodes,
	}
	for _, v := range domain.Variants() {
		s.Sets = append(s.Sets, *a.sets[v])
	}
	names := make([]string, 0, len(a.aggs))
	for name := range a.aggs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.Aggregators = append(s.Aggregators, *a.aggs[name])
	}
	return s
}

// Summarize computes the Summary metrics without rendering a workbook.
func Summarize(ctx context.Context, src Source, scope domain.Scope, aggregators []string) (*Summary, error) {
	acc := newAccumulator(scope, aggregators)
	for _, v := range domain.Variants() {
		err := src.Each(ctx, v, func(r *domain.MatchRecord) error {
			acc.add(r)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return acc.summary(), nil
}

// Summarizer computes Summary metrics straight from stored results.
type Summarizer struct {
	open        OpenFunc
	aggregators []string
}

func NewSummarizer(open OpenFunc, aggregators []string) *Summarizer {
	return &Summarizer{open: open, aggregators: aggregators}
}

func (s *Summarizer) Summary(ctx context.Context, scope domain.Scope) (*Summary, error) {
	cur, err := s.open(ctx, scope)
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	return Summarize(ctx, cur, scope, s.aggregators)
}
