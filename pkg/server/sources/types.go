package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SourceType represents the type of price source
type SourceType string

const (
	// SourceTypeEquity covers public equity quote endpoints.
	SourceTypeEquity SourceType = "equity"
)

// MarketState is the trading session state a provider reports alongside a quote.
type MarketState string

const (
	MarketOpen    MarketState = "open"
	MarketClosed  MarketState = "closed"
	MarketUnknown MarketState = "unknown"
)

// Quote is a single source's reported price for a symbol at a point in time.
type Quote struct {
	Source      string          `json:"source"`
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	Timestamp   time.Time       `json:"timestamp"`
	Currency    string          `json:"currency,omitempty"`
	MarketState MarketState     `json:"market_state,omitempty"`
}

// NewQuote builds a quote, refusing non-positive prices.
func NewQuote(source, symbol string, price decimal.Decimal, ts time.Time, currency string, state MarketState) (Quote, error) {
	if !price.IsPositive() {
		return Quote{}, fmt.Errorf("%w: non-positive price %s", ErrMalformedResponse, price.String())
	}
	if state == "" {
		state = MarketUnknown
	}
	return Quote{
		Source:      source,
		Symbol:      symbol,
		Price:       price,
		Timestamp:   ts,
		Currency:    currency,
		MarketState: state,
	}, nil
}

// Adapter fetches a quote for one symbol from one external provider.
// Implementations make a single outbound call per Fetch and never retry.
type Adapter interface {
	// Name returns the unique name of this source
	Name() string

	// Fetch returns the provider's current quote for symbol, or a typed failure
	Fetch(ctx context.Context, symbol string) Outcome
}

// AdapterFactory is a function that creates a new Adapter instance
type AdapterFactory func(config map[string]interface{}) (Adapter, error)
