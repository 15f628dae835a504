package aggregator

import (
	"github.com/shopspring/decimal"

	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

// Rejection is a quote discarded by the outlier filter with its deviation ratio from the median.
type Rejection struct {
	Quote sources.Quote   `json:"quote"`
	Ratio decimal.Decimal `json:"ratio"`
}

// FilterResult partitions the successful quotes of one request.
// Survivors and Rejected keep the input order.
type FilterResult struct {
	Survivors []sources.Quote
	Rejected  []Rejection
	Median    decimal.Decimal
	// Relaxed is set when no quote was within tolerance and the survivors are only
	// the quotes nearest the median. Such survivors do not agree on a price.
	Relaxed bool
}

// Consensus is the calculator output for one request.
type Consensus struct {
	Price         decimal.Decimal
	HasData       bool
	Confidence    float64
	SurvivorRatio float64
	Spread        decimal.Decimal
	Survivors     int
	Attempted     int
}
