package aggregator

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/quote-consensus/pkg/logging"
	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

const (
	// DefaultSpreadCap is the relative survivor spread at which confidence reaches zero.
	DefaultSpreadCap = 0.05
)

// Calculator computes the consensus price as the arithmetic mean of survivors
// and scores it by survivor ratio and spread.
type Calculator struct {
	spreadCap float64
	logger    *logging.Logger
}

// NewCalculator creates a new consensus calculator. spreadCap must be positive.
func NewCalculator(spreadCap float64, logger *logging.Logger) (*Calculator, error) {
	if !(spreadCap > 0) || math.IsInf(spreadCap, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpreadCap, spreadCap)
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Calculator{
		spreadCap: spreadCap,
		logger:    logger,
	}, nil
}

// Compute returns the mean of survivors and
// confidence = survivors/attempted * (1 - min(spread/spreadCap, 1)), clamped to [0,1].
// attempted is the number of sources queried; with no survivors there is no data and confidence is 0.
func (c *Calculator) Compute(survivors []sources.Quote, attempted int) Consensus {
	if attempted < len(survivors) {
		attempted = len(survivors)
	}
	if len(survivors) == 0 {
		return Consensus{Attempted: attempted}
	}

	price := computeAverage(survivors)

	lo, hi := survivors[0].Price, survivors[0].Price
	for _, q := range survivors[1:] {
		lo = decimal.Min(lo, q.Price)
		hi = decimal.Max(hi, q.Price)
	}
	spread := hi.Sub(lo).Div(price)

	ratio := float64(len(survivors)) / float64(attempted)
	penalty := math.Min(spread.InexactFloat64()/c.spreadCap, 1)
	confidence := clamp01(ratio * (1 - penalty))

	c.logger.Debug("Computed consensus",
		"price", price.String(),
		"survivors", len(survivors),
		"attempted", attempted,
		"spread", spread.StringFixed(6),
		"confidence", confidence)

	return Consensus{
		Price:         price,
		HasData:       true,
		Confidence:    confidence,
		SurvivorRatio: ratio,
		Spread:        spread,
		Survivors:     len(survivors),
		Attempted:     attempted,
	}
}

// ApplyReliability scales confidence by the mean reliability score of the survivors.
// Sources without a score count as prior.
func ApplyReliability(c Consensus, survivors []sources.Quote, scores map[string]float64, prior float64) Consensus {
	if !c.HasData || len(survivors) == 0 {
		return c
	}
	sum := 0.0
	for _, q := range survivors {
		score, ok := scores[q.Source]
		if !ok {
			score = prior
		}
		sum += clamp01(score)
	}
	c.Confidence = clamp01(c.Confidence * sum / float64(len(survivors)))
	return c
}

// computeAverage calculates the arithmetic mean of quote prices
func computeAverage(quotes []sources.Quote) decimal.Decimal {
	if len(quotes) == 0 {
		return decimal.Zero
	}

	sum := decimal.Zero
	for _, q := range quotes {
		sum = sum.Add(q.Price)
	}

	count := decimal.NewFromInt(int64(len(quotes)))
	return sum.Div(count)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
