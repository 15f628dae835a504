package equity

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

var fixedNow = time.Date(2024, 1, 5, 18, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func newTestServer(t *testing.T, status int, body string, check func(*http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newYahoo(t *testing.T, apiURL string) sources.Adapter {
	t.Helper()
	a, err := NewYahooAdapter(map[string]interface{}{
		"api_url": apiURL,
		"clock":   clock,
	})
	require.NoError(t, err)
	return a
}

func TestYahooAdapter_NewAdapter(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]interface{}
		wantErr bool
	}{
		{name: "defaults", config: map[string]interface{}{}},
		{name: "custom url", config: map[string]interface{}{"api_url": "http://localhost:9999/"}},
		{name: "relative url", config: map[string]interface{}{"api_url": "/chart"}, wantErr: true},
		{name: "bad timeout", config: map[string]interface{}{"timeout": "soon"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewYahooAdapter(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "yahoo", a.Name())
		})
	}
}

func TestYahooAdapter_Fetch(t *testing.T) {
	marketTime := fixedNow.Add(-2 * time.Hour).Unix()
	openStart := fixedNow.Add(-4 * time.Hour).Unix()
	openEnd := fixedNow.Add(2 * time.Hour).Unix()

	tests := []struct {
		name       string
		status     int
		body       string
		wantReason sources.Reason
		wantPrice  string
		wantMarket sources.MarketState
	}{
		{
			name:   "regular market price",
			status: http.StatusOK,
			body: fmt.Sprintf(`{"chart":{"result":[{"meta":{"currency":"USD","symbol":"AAPL","regularMarketPrice":181.18,"regularMarketTime":%d,
				"currentTradingPeriod":{"regular":{"start":%d,"end":%d}}}}],"error":null}}`, marketTime, openStart, openEnd),
			wantPrice:  "181.18",
			wantMarket: sources.MarketOpen,
		},
		{
			name:       "falls back to post market price",
			status:     http.StatusOK,
			body:       fmt.Sprintf(`{"chart":{"result":[{"meta":{"currency":"USD","postMarketPrice":180.5,"regularMarketTime":%d}}],"error":null}}`, marketTime),
			wantPrice:  "180.5",
			wantMarket: sources.MarketUnknown,
		},
		{
			name:       "falls back to pre market price",
			status:     http.StatusOK,
			body:       fmt.Sprintf(`{"chart":{"result":[{"meta":{"currency":"USD","preMarketPrice":179.25,"regularMarketTime":%d}}],"error":null}}`, marketTime),
			wantPrice:  "179.25",
			wantMarket: sources.MarketUnknown,
		},
		{
			name:       "unknown symbol",
			status:     http.StatusNotFound,
			body:       `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`,
			wantReason: sources.ReasonSymbolNotFound,
		},
		{
			name:       "empty result",
			status:     http.StatusOK,
			body:       `{"chart":{"result":[],"error":null}}`,
			wantReason: sources.ReasonSymbolNotFound,
		},
		{
			name:       "missing price",
			status:     http.StatusOK,
			body:       fmt.Sprintf(`{"chart":{"result":[{"meta":{"currency":"USD","regularMarketTime":%d}}],"error":null}}`, marketTime),
			wantReason: sources.ReasonMalformed,
		},
		{
			name:       "zero price",
			status:     http.StatusOK,
			body:       fmt.Sprintf(`{"chart":{"result":[{"meta":{"regularMarketPrice":0,"regularMarketTime":%d}}],"error":null}}`, marketTime),
			wantReason: sources.ReasonMalformed,
		},
		{
			name:       "negative price",
			status:     http.StatusOK,
			body:       fmt.Sprintf(`{"chart":{"result":[{"meta":{"regularMarketPrice":-4.2,"regularMarketTime":%d}}],"error":null}}`, marketTime),
			wantReason: sources.ReasonMalformed,
		},
		{
			name:       "NaN literal is not JSON",
			status:     http.StatusOK,
			body:       `{"chart":{"result":[{"meta":{"regularMarketPrice":NaN}}],"error":null}}`,
			wantReason: sources.ReasonMalformed,
		},
		{
			name:       "stale quote",
			status:     http.StatusOK,
			body:       fmt.Sprintf(`{"chart":{"result":[{"meta":{"regularMarketPrice":100,"regularMarketTime":%d}}],"error":null}}`, fixedNow.Add(-48*time.Hour).Unix()),
			wantReason: sources.ReasonStale,
		},
		{
			name:       "rate limited",
			status:     http.StatusTooManyRequests,
			body:       `Too Many Requests`,
			wantReason: sources.ReasonRateLimited,
		},
		{
			name:       "server error",
			status:     http.StatusBadGateway,
			body:       `<html>bad gateway</html>`,
			wantReason: sources.ReasonNetwork,
		},
		{
			name:       "other API error",
			status:     http.StatusOK,
			body:       `{"chart":{"result":null,"error":{"code":"Bad Request","description":"Invalid input"}}}`,
			wantReason: sources.ReasonMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.status, tt.body, func(r *http.Request) {
				assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
				assert.NotEmpty(t, r.Header.Get("User-Agent"))
			})
			out := newYahoo(t, srv.URL).Fetch(context.Background(), "AAPL")

			if tt.wantReason != sources.ReasonNone {
				require.False(t, out.OK(), "expected failure, got %+v", out)
				assert.Equal(t, tt.wantReason, out.Reason())
				assert.Equal(t, "yahoo", out.Source())
				return
			}

			q, ok := out.Quote()
			require.True(t, ok, "unexpected failure: %v", out.Err())
			assert.True(t, q.Price.Equal(decimal.RequireFromString(tt.wantPrice)), "price %s", q.Price)
			assert.Equal(t, "AAPL", q.Symbol)
			assert.Equal(t, "yahoo", q.Source)
			assert.Equal(t, "USD", q.Currency)
			assert.Equal(t, time.Unix(marketTime, 0).UTC(), q.Timestamp)
			assert.Equal(t, tt.wantMarket, q.MarketState)
		})
	}
}

func TestYahooAdapter_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out := newYahoo(t, srv.URL).Fetch(ctx, "AAPL")
	assert.Equal(t, sources.ReasonTimeout, out.Reason())
}

func TestYahooAdapter_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	apiURL := srv.URL
	srv.Close()

	out := newYahoo(t, apiURL).Fetch(context.Background(), "AAPL")
	assert.Equal(t, sources.ReasonNetwork, out.Reason())
}

func TestYahooAdapter_LiveFetch(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	a, err := NewYahooAdapter(map[string]interface{}{"max_quote_age": "168h"})
	require.NoError(t, err)

	out := a.Fetch(context.Background(), "AAPL")
	if !out.OK() {
		t.Skipf("provider unavailable: %v", out.Err())
	}
	q, _ := out.Quote()
	assert.True(t, q.Price.IsPositive())
}
