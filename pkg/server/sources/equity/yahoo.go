package equity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

const (
	yahooBaseURL      = "https://query1.finance.yahoo.com"
	yahooNotFoundCode = "Not Found"
)

// YahooAdapter fetches quotes from the Yahoo Finance chart endpoint.
type YahooAdapter struct {
	*sources.BaseAdapter

	baseURL string
}

// Ensure YahooAdapter implements Adapter interface.
var _ sources.Adapter = (*YahooAdapter)(nil)

// yahooChartResponse is the subset of /v8/finance/chart we read.
type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta yahooMeta `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type yahooMeta struct {
	Currency             string   `json:"currency"`
	Symbol               string   `json:"symbol"`
	RegularMarketPrice   *float64 `json:"regularMarketPrice"`
	PostMarketPrice      *float64 `json:"postMarketPrice"`
	PreMarketPrice       *float64 `json:"preMarketPrice"`
	RegularMarketTime    int64    `json:"regularMarketTime"`
	CurrentTradingPeriod struct {
		Regular struct {
			Start int64 `json:"start"`
			End   int64 `json:"end"`
		} `json:"regular"`
	} `json:"currentTradingPeriod"`
}

// NewYahooAdapter creates a new Yahoo Finance adapter
func NewYahooAdapter(config map[string]interface{}) (sources.Adapter, error) {
	base, err := sources.NewBaseAdapter("yahoo", sources.SourceTypeEquity, config)
	if err != nil {
		return nil, fmt.Errorf("yahoo: %w", err)
	}
	baseURL, err := parseBaseURL(config, yahooBaseURL)
	if err != nil {
		return nil, fmt.Errorf("yahoo: %w", err)
	}
	return &YahooAdapter{BaseAdapter: base, baseURL: baseURL}, nil
}

// Fetch returns the latest regular-session price, falling back to post and pre market prices.
func (a *YahooAdapter) Fetch(ctx context.Context, symbol string) sources.Outcome {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", a.baseURL, url.PathEscape(symbol))

	status, body, err := a.Get(ctx, endpoint)
	if err != nil {
		return a.TransportFailure(err)
	}

	var resp yahooChartResponse
	decodeErr := json.Unmarshal(body, &resp)

	// Unknown symbols come back as 404 with a structured error body.
	if decodeErr == nil && resp.Chart.Error != nil && resp.Chart.Error.Code == yahooNotFoundCode {
		return a.NotFound(symbol)
	}
	if out, failed := a.StatusFailure(status); failed {
		return out
	}
	if decodeErr != nil {
		return a.Malformed("failed to decode response: %v", decodeErr)
	}
	if resp.Chart.Error != nil {
		return a.Malformed("%s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return a.NotFound(symbol)
	}

	meta := resp.Chart.Result[0].Meta
	raw := meta.RegularMarketPrice
	if raw == nil {
		raw = meta.PostMarketPrice
	}
	if raw == nil {
		raw = meta.PreMarketPrice
	}
	price, err := sources.PriceFromFloat(raw)
	if err != nil {
		return a.Malformed("%v", err)
	}

	var ts time.Time
	if meta.RegularMarketTime > 0 {
		ts = time.Unix(meta.RegularMarketTime, 0).UTC()
	}

	return a.Finish(symbol, price, ts, meta.Currency, a.marketState(meta))
}

// marketState compares the fetch time with the regular trading period Yahoo reports.
func (a *YahooAdapter) marketState(meta yahooMeta) sources.MarketState {
	period := meta.CurrentTradingPeriod.Regular
	if period.Start == 0 || period.End == 0 {
		return sources.MarketUnknown
	}
	now := a.Now().Unix()
	if now >= period.Start && now < period.End {
		return sources.MarketOpen
	}
	return sources.MarketClosed
}
