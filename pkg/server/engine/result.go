package engine

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/quote-consensus/pkg/server/aggregator"
	"github.com/StrathCole/quote-consensus/pkg/server/market"
	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

// SourceState is the final disposition of one source in a result.
type SourceState string

const (
	SourceOK       SourceState = "ok"
	SourceFailed   SourceState = "failed"
	SourceRejected SourceState = "rejected"
)

// SourceStatus explains what one source contributed to a result.
type SourceStatus struct {
	Source string      `json:"source"`
	State  SourceState `json:"state"`
	// Reason and Detail are set for failed sources.
	Reason sources.Reason `json:"reason,omitempty"`
	Detail string         `json:"detail,omitempty"`
	// Quote is set for ok and rejected sources.
	Quote *sources.Quote `json:"quote,omitempty"`
	// Deviation is the ratio from the median, set for rejected sources.
	Deviation *decimal.Decimal `json:"deviation,omitempty"`
	Latency   time.Duration    `json:"-"`
	Attempts  int              `json:"attempts"`
}

func (s SourceStatus) clone() SourceStatus {
	if s.Quote != nil {
		q := *s.Quote
		s.Quote = &q
	}
	if s.Deviation != nil {
		d := *s.Deviation
		s.Deviation = &d
	}
	return s
}

// Result is the immutable outcome of one consensus request. A caller can tell
// from it alone why the price is what it is.
type Result struct {
	symbol       string
	price        decimal.Decimal
	hasData      bool
	sufficient   bool
	confidence   float64
	spread       decimal.Decimal
	median       decimal.Decimal
	marketStatus market.Status
	statuses     []SourceStatus
	survivors    []sources.Quote
	rejected     []aggregator.Rejection
	minQuorum    int
	attempted    int
	computedAt   time.Time
	err          *Error
}

// Symbol returns the normalized symbol.
func (r *Result) Symbol() string { return r.symbol }

// Price returns the consensus price. It reports false when data is insufficient,
// in which case no price is exposed.
func (r *Result) Price() (decimal.Decimal, bool) {
	if !r.sufficient {
		return decimal.Decimal{}, false
	}
	return r.price, true
}

// Confidence returns a score in [0,1]. It is 0 when data is insufficient.
func (r *Result) Confidence() float64 { return r.confidence }

// HasData reports whether any quote survived filtering.
func (r *Result) HasData() bool { return r.hasData }

// SufficientData reports whether survivors reached the minimum quorum.
func (r *Result) SufficientData() bool { return r.sufficient }

// MarketStatus returns the session state.
func (r *Result) MarketStatus() market.Status { return r.marketStatus }

// Spread returns (max-min)/price over survivors.
func (r *Result) Spread() decimal.Decimal { return r.spread }

// Median returns the median of all successful quotes.
func (r *Result) Median() decimal.Decimal { return r.median }

// MinQuorum returns the quorum the result was checked against.
func (r *Result) MinQuorum() int { return r.minQuorum }

// Attempted returns how many sources were queried.
func (r *Result) Attempted() int { return r.attempted }

// ComputedAt returns when the result was assembled.
func (r *Result) ComputedAt() time.Time { return r.computedAt }

// SourceStatuses returns per-source statuses in configured order.
func (r *Result) SourceStatuses() []SourceStatus {
	out := make([]SourceStatus, len(r.statuses))
	for i, s := range r.statuses {
		out[i] = s.clone()
	}
	return out
}

// SourceStatus returns the status for one source.
func (r *Result) SourceStatus(source string) (SourceStatus, bool) {
	for _, s := range r.statuses {
		if s.Source == source {
			return s.clone(), true
		}
	}
	return SourceStatus{}, false
}

// Survivors returns the quotes the price was computed from.
func (r *Result) Survivors() []sources.Quote {
	return append([]sources.Quote(nil), r.survivors...)
}

// Rejected returns the outliers with their deviation ratios.
func (r *Result) Rejected() []aggregator.Rejection {
	return append([]aggregator.Rejection(nil), r.rejected...)
}

// Err returns an insufficient_quorum *Error when the quorum was not met, nil otherwise.
func (r *Result) Err() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

type resultJSON struct {
	Symbol         string           `json:"symbol"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	Confidence     float64          `json:"confidence"`
	SufficientData bool             `json:"sufficient_data"`
	HasData        bool             `json:"has_data"`
	MarketStatus   market.Status    `json:"market_status"`
	Median         *decimal.Decimal `json:"median,omitempty"`
	Spread         *decimal.Decimal `json:"spread,omitempty"`
	Survivors      int              `json:"survivors"`
	Attempted      int              `json:"attempted"`
	MinQuorum      int              `json:"min_quorum"`
	Sources        []SourceStatus   `json:"sources"`
	ComputedAt     time.Time        `json:"computed_at"`
	Error          *errorJSON       `json:"error,omitempty"`
}

type errorJSON struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// MarshalJSON renders the result for display.
func (r *Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Symbol:         r.symbol,
		Confidence:     r.confidence,
		SufficientData: r.sufficient,
		HasData:        r.hasData,
		MarketStatus:   r.marketStatus,
		Survivors:      len(r.survivors),
		Attempted:      r.attempted,
		MinQuorum:      r.minQuorum,
		Sources:        r.SourceStatuses(),
		ComputedAt:     r.computedAt,
	}
	if price, ok := r.Price(); ok {
		out.Price = &price
	}
	if r.hasData {
		median, spread := r.median, r.spread
		out.Median = &median
		out.Spread = &spread
	}
	if r.err != nil {
		out.Error = &errorJSON{Kind: r.err.Kind, Message: r.err.Error()}
	}
	return json.Marshal(out)
}
