package domain

// POSRecord is an order as booked by a store's point-of-sale system.
type POSRecord struct {
	OrderID     string
	OrderDate   string // YYYY-MM-DD
	StoreName   *string
	OrderStatus *string
	Aggregator  *string // platform the order came through, when known
	Amounts     Amounts
}

// RejectedRow is a source row that could not be turned into a record. It is
// left out of the run and logged.
type RejectedRow struct {
	Table  string
	Key    string
	Reason string
}

// Snapshot is the source data of one reconciliation window, read in a single
// pass so every result set is computed from the same view.
type Snapshot struct {
	POS         []POSRecord
	Aggregator  []AggregatorRecord
	Adjustments []Adjustment
	Rejected    []RejectedRow
}
