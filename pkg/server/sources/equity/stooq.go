package equity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

const (
	stooqBaseURL       = "https://stooq.com"
	stooqDefaultSuffix = ".us"
	stooqTimezone      = "Europe/Warsaw"
)

// StooqAdapter fetches end-of-day and delayed quotes from Stooq's light quote endpoint.
type StooqAdapter struct {
	*sources.BaseAdapter

	baseURL  string
	suffix   string
	location *time.Location
}

// Ensure StooqAdapter implements Adapter interface.
var _ sources.Adapter = (*StooqAdapter)(nil)

// stooqResponse mirrors f=sd2t2ohlcv&e=json. Missing fields are reported as the string "N/D".
type stooqResponse struct {
	Symbols []struct {
		Symbol string          `json:"symbol"`
		Date   string          `json:"date"`
		Time   string          `json:"time"`
		Close  json.RawMessage `json:"close"`
	} `json:"symbols"`
}

// NewStooqAdapter creates a new Stooq adapter
func NewStooqAdapter(config map[string]interface{}) (sources.Adapter, error) {
	base, err := sources.NewBaseAdapter("stooq", sources.SourceTypeEquity, config)
	if err != nil {
		return nil, fmt.Errorf("stooq: %w", err)
	}
	baseURL, err := parseBaseURL(config, stooqBaseURL)
	if err != nil {
		return nil, fmt.Errorf("stooq: %w", err)
	}

	return &StooqAdapter{
		BaseAdapter: base,
		baseURL:     baseURL,
		suffix:      sources.GetString(config, "suffix", stooqDefaultSuffix),
		location:    loadLocation(stooqTimezone),
	}, nil
}

// Fetch returns the last close Stooq reports for the symbol.
func (a *StooqAdapter) Fetch(ctx context.Context, symbol string) sources.Outcome {
	query := url.Values{}
	query.Set("s", strings.ToLower(symbol)+a.suffix)
	query.Set("f", "sd2t2ohlcv")
	query.Set("e", "json")
	endpoint := fmt.Sprintf("%s/q/l/?%s&h", a.baseURL, query.Encode())

	status, body, err := a.Get(ctx, endpoint)
	if err != nil {
		return a.TransportFailure(err)
	}
	if out, failed := a.StatusFailure(status); failed {
		return out
	}

	var resp stooqResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return a.Malformed("failed to decode response: %v", err)
	}
	if len(resp.Symbols) == 0 {
		return a.NotFound(symbol)
	}

	row := resp.Symbols[0]
	closeText := strings.Trim(string(bytes.TrimSpace(row.Close)), `"`)
	switch closeText {
	case "N/D", "N/A":
		return a.NotFound(symbol)
	case "", "null":
		return a.Malformed("missing close price")
	}
	price, err := decimal.NewFromString(closeText)
	if err != nil {
		return a.Malformed("close %q is not a number", closeText)
	}

	return a.Finish(symbol, price, a.timestamp(row.Date, row.Time), "USD", sources.MarketUnknown)
}

// timestamp parses Stooq's local date and time; unparseable values yield the zero time.
func (a *StooqAdapter) timestamp(date, clock string) time.Time {
	if clock == "" || clock == "N/D" {
		clock = "00:00:00"
	}
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", date+" "+clock, a.location)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}
