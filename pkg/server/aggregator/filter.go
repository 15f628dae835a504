package aggregator

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/quote-consensus/pkg/logging"
	"github.com/StrathCole/quote-consensus/pkg/metrics"
	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

const (
	// DefaultOutlierTolerance is the default maximum deviation ratio from the median.
	DefaultOutlierTolerance = 0.02
)

var two = decimal.NewFromInt(2)

// OutlierFilter drops quotes that deviate from the median by more than a tolerance ratio.
type OutlierFilter struct {
	tolerance decimal.Decimal
	logger    *logging.Logger
}

// NewOutlierFilter creates a new outlier filter. tolerance must be in (0,1).
func NewOutlierFilter(tolerance float64, logger *logging.Logger) (*OutlierFilter, error) {
	if !(tolerance > 0 && tolerance < 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTolerance, tolerance)
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &OutlierFilter{
		tolerance: decimal.NewFromFloat(tolerance),
		logger:    logger,
	}, nil
}

// Filter splits quotes into survivors and rejections.
// A quote survives when |price-median|/median <= tolerance; a lone quote always survives
// and survivors is empty only for empty input. When every quote exceeds the tolerance
// the nearest ones are kept and the result is marked Relaxed.
func (f *OutlierFilter) Filter(symbol string, quotes []sources.Quote) FilterResult {
	if len(quotes) == 0 {
		return FilterResult{}
	}

	prices := make([]decimal.Decimal, len(quotes))
	for i, q := range quotes {
		prices[i] = q.Price
	}
	median := Median(prices)

	ratios := make([]decimal.Decimal, len(quotes))
	closest := decimal.Zero
	for i, q := range quotes {
		ratios[i] = DeviationRatio(q.Price, median)
		if i == 0 || ratios[i].LessThan(closest) {
			closest = ratios[i]
		}
	}

	// With an even count the median sits between two quotes, so every quote can exceed
	// the tolerance.
	limit := f.tolerance
	relaxed := closest.GreaterThan(limit)
	if relaxed {
		f.logger.Warn("All quotes exceed outlier tolerance, keeping those nearest the median",
			"symbol", symbol,
			"quotes", len(quotes),
			"min_deviation", closest.String())
		limit = closest
	}

	result := FilterResult{
		Survivors: make([]sources.Quote, 0, len(quotes)),
		Median:    median,
		Relaxed:   relaxed,
	}
	for i, q := range quotes {
		ratio := ratios[i]
		if ratio.GreaterThan(limit) {
			f.logger.Debug("Rejecting outlier",
				"symbol", symbol,
				"source", q.Source,
				"price", q.Price.String(),
				"median", median.String(),
				"deviation_pct", ratio.Mul(decimal.NewFromInt(100)).StringFixed(3))

			metrics.RecordOutlierRejection(symbol)
			result.Rejected = append(result.Rejected, Rejection{Quote: q, Ratio: ratio})
			continue
		}
		result.Survivors = append(result.Survivors, q)
	}

	return result
}

// Median returns the standard median: the middle value, or the mean of the two middle values.
func Median(prices []decimal.Decimal) decimal.Decimal {
	n := len(prices)
	if n == 0 {
		return decimal.Zero
	}

	sorted := make([]decimal.Decimal, n)
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LessThan(sorted[j])
	})

	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(two)
}

// DeviationRatio returns |price-median|/median, or zero for a non-positive median.
func DeviationRatio(price, median decimal.Decimal) decimal.Decimal {
	if !median.IsPositive() {
		return decimal.Zero
	}
	return price.Sub(median).Abs().Div(median)
}
