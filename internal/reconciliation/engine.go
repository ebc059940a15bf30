package reconciliation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/storerecon/reconciler/internal/domain"
	"github.com/storerecon/reconciler/internal/fees"
)

// DefaultTolerance is the largest absolute delta still treated as equal.
var DefaultTolerance = decimal.Zero

type Options struct {
	Tolerance       decimal.Decimal
	OrderIDPrefixes []string
}

// Engine matches POS orders with aggregator settlement lines and computes
// per-dimension deltas. It does no I/O: the same snapshot always yields the
// same result sets, apart from the created/updated timestamps.
type Engine struct {
	tolerance decimal.Decimal
	keys      KeyDeriver
	now       func() time.Time
	log       logrus.FieldLogger
}

func NewEngine(opts Options, log logrus.FieldLogger) *Engine {
	tol := opts.Tolerance.Abs()
	return &Engine{
		tolerance: tol,
		keys:      NewKeyDeriver(opts.OrderIDPrefixes),
		now:       time.Now,
		log:       log.WithField("component", "reconciliation"),
	}
}

// Skipped is a record left out of the result sets because its amounts did not
// add up.
type Skipped struct {
	Variant           domain.Variant
	POSOrderID        string
	AggregatorOrderID string
	Reason            string
}

// Result holds the five result sets of one run.
type Result struct {
	Scope   domain.Scope
	sets    map[domain.Variant][]domain.MatchRecord
	Skipped []Skipped
}

// Records returns the result set of one variant.
func (r *Result) Records(v domain.Variant) []domain.MatchRecord {
	return r.sets[v]
}

// Counts returns the number of records per result table.
func (r *Result) Counts() map[string]int {
	out := make(map[string]int, len(r.sets))
	for _, v := range domain.Variants() {
		out[v.Table()] = len(r.sets[v])
	}
	return out
}

func (r *Result) add(rec domain.MatchRecord) {
	r.sets[rec.Variant] = append(r.sets[rec.Variant], rec)
}

// Reconcile computes every result set for the snapshot. Refund lines are
// compared against the reversal of the POS sale and never enter the sale sets.
func (e *Engine) Reconcile(scope domain.Scope, snap *domain.Snapshot) *Result {
	log := e.log.WithFields(logrus.Fields{
		"start_date":  scope.StartDate(),
		"end_date":    scope.EndDate(),
		"store_codes": scope.StoreLabel(),
	})
	now := e.now().UTC().Truncate(time.Microsecond)
	res := &Result{Scope: scope, sets: make(map[domain.Variant][]domain.MatchRecord)}

	pos := make(map[string]*domain.POSRecord, len(snap.POS))
	var posOrder []string
	for i := range snap.POS {
		p := &snap.POS[i]
		key := e.keys.Key(p.OrderID)
		if _, dup := pos[key]; dup {
			log.WithField("order_id", p.OrderID).Warn("duplicate POS order, keeping the first")
			continue
		}
		pos[key] = p
		posOrder = append(posOrder, key)
	}

	sales := make(map[string]*domain.AggregatorRecord, len(snap.Aggregator))
	var saleOrder []string
	var refunds []*domain.AggregatorRecord
	for i := range snap.Aggregator {
		a := &snap.Aggregator[i]
		if a.IsRefund() {
			refunds = append(refunds, a)
			continue
		}
		key := e.keys.Key(a.OrderID)
		if _, dup := sales[key]; dup {
			log.WithFields(logrus.Fields{"order_id": a.OrderID, "settlement_id": a.SettlementID}).
				Warn("duplicate aggregator sale, keeping the first")
			continue
		}
		sales[key] = a
		saleOrder = append(saleOrder, key)
	}

	adjustments := make(map[string]*domain.Adjustment, len(snap.Adjustments))
	for i := range snap.Adjustments {
		a := &snap.Adjustments[i]
		key := e.keys.Key(a.OrderID)
		if _, dup := adjustments[key]; !dup {
			adjustments[key] = a
		}
	}

	for _, key := range posOrder {
		p := pos[key]
		a, ok := sales[key]
		if !ok {
			e.keep(res, log, e.missingInAggregator(p, now))
			continue
		}
		adj := adjustments[key]
		e.keep(res, log, e.pair(domain.VariantPOSVsAggregator, p, a, p.Amounts, adj, now))
		e.keep(res, log, e.pair(domain.VariantAggregatorVsPOS, p, a, p.Amounts, adj, now))
	}

	for _, key := range saleOrder {
		if _, ok := pos[key]; !ok {
			e.keep(res, log, e.missingInPOS(sales[key], false, now))
		}
	}

	for _, a := range refunds {
		p, ok := pos[e.keys.Key(a.OrderID)]
		if !ok {
			e.keep(res, log, e.missingInPOS(a, true, now))
			continue
		}
		e.keep(res, log, e.pair(domain.VariantRefund, p, a, p.Amounts.Negated(), nil, now))
	}

	if len(res.Skipped) > 0 {
		log.WithField("skipped", len(res.Skipped)).Warn("records excluded from results")
	}
	return res
}

// keep adds rec to its result set unless its amounts break
// reconciled + unreconciled = net, in which case it is logged and skipped.
func (e *Engine) keep(res *Result, log logrus.FieldLogger, rec domain.MatchRecord) {
	net := rec.NetAmount()
	if rec.ReconciledAmount.Add(rec.UnreconciledAmount).Equal(net) {
		res.add(rec)
		return
	}
	s := Skipped{
		Variant:           rec.Variant,
		POSOrderID:        domain.Deref(rec.POSOrderID),
		AggregatorOrderID: domain.Deref(rec.AggregatorOrderID),
		Reason: fmt.Sprintf("reconciled %s + unreconciled %s != net %s",
			rec.ReconciledAmount, rec.UnreconciledAmount, net),
	}
	log.WithFields(logrus.Fields{
		"variant":             s.Variant.String(),
		"pos_order_id":        s.POSOrderID,
		"aggregator_order_id": s.AggregatorOrderID,
	}).Error(s.Reason)
	res.Skipped = append(res.Skipped, s)
}

func (e *Engine) pair(v domain.Variant, p *domain.POSRecord, a *domain.AggregatorRecord, posAmounts domain.Amounts, adj *domain.Adjustment, now time.Time) domain.MatchRecord {
	o := v.Orientation()
	rec := domain.MatchRecord{
		Variant:               v,
		POSOrderID:            domain.StringPtr(p.OrderID),
		AggregatorOrderID:     domain.StringPtr(a.OrderID),
		Aggregator:            domain.StringPtr(a.Aggregator),
		OrderStatusPOS:        p.OrderStatus,
		OrderStatusAggregator: a.OrderStatus,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if o == domain.POSMinusAggregator {
		rec.OrderDate, rec.StoreName = p.OrderDate, firstNonNil(p.StoreName, a.StoreName)
	} else {
		rec.OrderDate, rec.StoreName = a.OrderDate, firstNonNil(a.StoreName, p.StoreName)
	}
	if v == domain.VariantRefund {
		rec.ID = domain.RecordID(v, p.OrderID, a.OrderID, a.SettlementID)
	} else {
		rec.ID = domain.RecordID(v, p.OrderID, a.OrderID)
	}

	for _, d := range domain.Dimensions() {
		rec.Pairs[d] = domain.Paired{
			POS:        posAmounts.Get(d),
			Aggregator: a.Amounts.Get(d),
			Delta:      o.Delta(posAmounts.Get(d), a.Amounts.Get(d)),
		}
	}

	if v.HasCalculated() {
		if schedule, err := fees.Lookup(a.Aggregator); err == nil {
			rec.Calculated = schedule.Calculate(p.Amounts)
		} else {
			e.log.WithField("order_id", a.OrderID).Debug(err.Error())
		}
	}
	if adj != nil {
		fixed := *adj
		rec.Fixed = &fixed
	}

	var mismatched []domain.Dimension
	total := decimal.Zero
	for _, d := range domain.Dimensions() {
		delta := rec.Pairs[d].Delta
		if !delta.Valid {
			continue
		}
		eff := delta.Decimal
		if d == domain.FinalAmount && adj != nil {
			// Adjustments explain money the aggregator kept back (or paid
			// extra) on the payout.
			if o == domain.POSMinusAggregator {
				eff = eff.Sub(adj.Total())
			} else {
				eff = eff.Add(adj.Total())
			}
		}
		if eff.Abs().GreaterThan(e.tolerance) {
			mismatched = append(mismatched, d)
			total = total.Add(eff.Abs())
		}
	}

	net := rec.NetAmount()
	if len(mismatched) == 0 {
		rec.Status = domain.StatusReconciled
		rec.ReconciledAmount = net
		rec.UnreconciledAmount = decimal.Zero
		return rec
	}

	unreconciled := decimal.Min(net.Abs(), total)
	if net.IsNegative() {
		unreconciled = unreconciled.Neg()
	}
	reason := domain.JoinReasons(mismatched, o)
	rec.Status = domain.StatusUnreconciled
	rec.UnreconciledAmount = unreconciled
	rec.ReconciledAmount = net.Sub(unreconciled)
	rec.Reason = &reason
	return rec
}

func (e *Engine) missingInAggregator(p *domain.POSRecord, now time.Time) domain.MatchRecord {
	v := domain.VariantMissingInAggregator
	rec := domain.MatchRecord{
		ID:             domain.RecordID(v, p.OrderID),
		Variant:        v,
		POSOrderID:     domain.StringPtr(p.OrderID),
		Aggregator:     p.Aggregator,
		OrderDate:      p.OrderDate,
		StoreName:      p.StoreName,
		OrderStatusPOS: p.OrderStatus,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, d := range domain.Dimensions() {
		rec.Pairs[d].POS = p.Amounts.Get(d)
	}
	return oneSided(rec)
}

func (e *Engine) missingInPOS(a *domain.AggregatorRecord, refund bool, now time.Time) domain.MatchRecord {
	v := domain.VariantMissingInPOS
	id := domain.RecordID(v, a.OrderID)
	if refund {
		id = domain.RecordID(v, "refund", a.OrderID, a.SettlementID)
	}
	rec := domain.MatchRecord{
		ID:                    id,
		Variant:               v,
		AggregatorOrderID:     domain.StringPtr(a.OrderID),
		Aggregator:            domain.StringPtr(a.Aggregator),
		OrderDate:             a.OrderDate,
		StoreName:             a.StoreName,
		OrderStatusAggregator: a.OrderStatus,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	for _, d := range domain.Dimensions() {
		rec.Pairs[d].Aggregator = a.Amounts.Get(d)
	}
	return oneSided(rec)
}

// oneSided marks a record with no counterpart: nothing of it is reconciled.
func oneSided(rec domain.MatchRecord) domain.MatchRecord {
	rec.Status = domain.StatusUnreconciled
	rec.ReconciledAmount = decimal.Zero
	rec.UnreconciledAmount = rec.NetAmount()
	return rec
}

func firstNonNil(a, b *string) *string {
	if a != nil {
		return a
	}
	return b
}
