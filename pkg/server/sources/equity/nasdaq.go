package equity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

const (
	nasdaqBaseURL  = "https://api.nasdaq.com"
	nasdaqTimezone = "America/New_York"
)

// nasdaqTimestampLayouts are tried in order against lastTradeTimestamp.
var nasdaqTimestampLayouts = []string{
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
}

// NasdaqAdapter fetches quotes from the public Nasdaq quote API.
type NasdaqAdapter struct {
	*sources.BaseAdapter

	baseURL  string
	location *time.Location
}

// Ensure NasdaqAdapter implements Adapter interface.
var _ sources.Adapter = (*NasdaqAdapter)(nil)

type nasdaqResponse struct {
	Data *struct {
		Symbol      string `json:"symbol"`
		PrimaryData struct {
			LastSalePrice      string `json:"lastSalePrice"`
			LastTradeTimestamp string `json:"lastTradeTimestamp"`
		} `json:"primaryData"`
		MarketStatus string `json:"marketStatus"`
	} `json:"data"`
	Status struct {
		RCode        int `json:"rCode"`
		BCodeMessage []struct {
			Code         int    `json:"code"`
			ErrorMessage string `json:"errorMessage"`
		} `json:"bCodeMessage"`
	} `json:"status"`
}

// NewNasdaqAdapter creates a new Nasdaq adapter
func NewNasdaqAdapter(config map[string]interface{}) (sources.Adapter, error) {
	base, err := sources.NewBaseAdapter("nasdaq", sources.SourceTypeEquity, config)
	if err != nil {
		return nil, fmt.Errorf("nasdaq: %w", err)
	}
	baseURL, err := parseBaseURL(config, nasdaqBaseURL)
	if err != nil {
		return nil, fmt.Errorf("nasdaq: %w", err)
	}

	return &NasdaqAdapter{
		BaseAdapter: base,
		baseURL:     baseURL,
		location:    loadLocation(nasdaqTimezone),
	}, nil
}

// Fetch returns the last sale price for the symbol.
func (a *NasdaqAdapter) Fetch(ctx context.Context, symbol string) sources.Outcome {
	endpoint := fmt.Sprintf("%s/api/quote/%s/info?assetclass=stocks", a.baseURL, url.PathEscape(symbol))

	status, body, err := a.Get(ctx, endpoint)
	if err != nil {
		return a.TransportFailure(err)
	}
	if out, failed := a.StatusFailure(status); failed {
		return out
	}

	var resp nasdaqResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return a.Malformed("failed to decode response: %v", err)
	}

	// Nasdaq answers 200 with data=null and a business error for unknown symbols.
	if resp.Data == nil {
		for _, msg := range resp.Status.BCodeMessage {
			if strings.Contains(strings.ToLower(msg.ErrorMessage), "not exist") {
				return a.NotFound(symbol)
			}
		}
		if resp.Status.RCode == 400 || resp.Status.RCode == 404 {
			return a.NotFound(symbol)
		}
		return a.Malformed("response carries no data (rCode %d)", resp.Status.RCode)
	}

	price, err := sources.ParsePrice(resp.Data.PrimaryData.LastSalePrice)
	if err != nil {
		return a.Malformed("%v", err)
	}

	return a.Finish(symbol, price, a.timestamp(resp.Data.PrimaryData.LastTradeTimestamp), "USD", marketStateFromText(resp.Data.MarketStatus))
}

// timestamp parses strings like "DATA AS OF Jan 5, 2024 4:00 PM ET".
// A date without a time is taken as the 16:00 close of that day.
func (a *NasdaqAdapter) timestamp(raw string) time.Time {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "DATA AS OF ")
	s = strings.TrimSuffix(s, " ET")
	for _, layout := range nasdaqTimestampLayouts {
		ts, err := time.ParseInLocation(layout, s, a.location)
		if err != nil {
			continue
		}
		if layout == "Jan 2, 2006" {
			ts = ts.Add(16 * time.Hour)
		}
		return ts.UTC()
	}
	return time.Time{}
}

func marketStateFromText(status string) sources.MarketState {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "":
		return sources.MarketUnknown
	case "open", "market open":
		return sources.MarketOpen
	default:
		return sources.MarketClosed
	}
}
