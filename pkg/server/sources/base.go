package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/quote-consensus/pkg/logging"
)

const (
	// DefaultUserAgent mimics a desktop browser; several public quote endpoints reject bare clients.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	// DefaultMaxQuoteAge is the default freshness threshold for quotes.
	DefaultMaxQuoteAge = 24 * time.Hour
	// DefaultRequestTimeout bounds a single HTTP request when the caller sets no deadline.
	DefaultRequestTimeout = 5 * time.Second

	maxBodyBytes = 1 << 20
)

// BaseAdapter provides common functionality for HTTP quote adapters
type BaseAdapter struct {
	name       string
	sourceType SourceType
	client     *http.Client
	userAgent  string
	maxAge     time.Duration
	now        func() time.Time
	logger     *logging.Logger
}

// NewBaseAdapter creates a base adapter from the shared config keys:
// logger, http_client, user_agent, timeout, max_quote_age and clock.
// A max_quote_age of zero disables the freshness check.
func NewBaseAdapter(name string, sourceType SourceType, config map[string]interface{}) (*BaseAdapter, error) {
	timeout, err := GetDuration(config, "timeout", DefaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	maxAge, err := GetDuration(config, "max_quote_age", DefaultMaxQuoteAge)
	if err != nil {
		return nil, err
	}
	if maxAge < 0 {
		return nil, fmt.Errorf("%w: max_quote_age must not be negative", ErrInvalidConfig)
	}

	client, ok := config["http_client"].(*http.Client)
	if !ok || client == nil {
		client = NewHTTPClient(timeout)
	}

	now := time.Now
	if clock, ok := config["clock"].(func() time.Time); ok && clock != nil {
		now = clock
	}

	return &BaseAdapter{
		name:       name,
		sourceType: sourceType,
		client:     client,
		userAgent:  GetString(config, "user_agent", DefaultUserAgent),
		maxAge:     maxAge,
		now:        now,
		logger:     GetLoggerFromConfig(config).With("source", name, "type", string(sourceType)),
	}, nil
}

// NewHTTPClient returns an http.Client with a tuned transport.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Name returns the source name
func (b *BaseAdapter) Name() string {
	return b.name
}

// Logger returns the logger
func (b *BaseAdapter) Logger() *logging.Logger {
	return b.logger
}

// Now returns the adapter's clock reading.
func (b *BaseAdapter) Now() time.Time {
	return b.now()
}

// Get performs the single outbound request of an invocation and returns status and body.
// The error is non-nil only for transport failures.
func (b *BaseAdapter) Get(ctx context.Context, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", b.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// TransportFailure maps a transport error to a failed outcome.
func (b *BaseAdapter) TransportFailure(err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return Failure(b.name, ReasonTimeout, err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Failure(b.name, ReasonTimeout, err.Error())
	}
	return Failure(b.name, ReasonNetwork, err.Error())
}

// StatusFailure maps a non-2xx HTTP status to a failed outcome.
// It returns false when the status is a success.
func (b *BaseAdapter) StatusFailure(status int) (Outcome, bool) {
	switch {
	case status >= 200 && status < 300:
		return Outcome{}, false
	case status == http.StatusNotFound:
		return Failure(b.name, ReasonSymbolNotFound, "HTTP 404"), true
	case status == http.StatusTooManyRequests:
		return Failure(b.name, ReasonRateLimited, "HTTP 429"), true
	default:
		return Failure(b.name, ReasonNetwork, fmt.Sprintf("HTTP %d", status)), true
	}
}

// Malformed builds a malformed-response failure.
func (b *BaseAdapter) Malformed(format string, args ...interface{}) Outcome {
	return Failure(b.name, ReasonMalformed, fmt.Sprintf(format, args...))
}

// NotFound builds a symbol-not-found failure.
func (b *BaseAdapter) NotFound(symbol string) Outcome {
	return Failure(b.name, ReasonSymbolNotFound, symbol)
}

// Finish validates price and freshness and returns the final outcome.
// A zero timestamp is replaced by the fetch time.
func (b *BaseAdapter) Finish(symbol string, price decimal.Decimal, ts time.Time, currency string, state MarketState) Outcome {
	now := b.now()
	if ts.IsZero() {
		ts = now
	}
	if age := now.Sub(ts); b.maxAge > 0 && age > b.maxAge {
		return Failure(b.name, ReasonStale, fmt.Sprintf("quote is %s old", age.Truncate(time.Second)))
	}

	q, err := NewQuote(b.name, symbol, price, ts, currency, state)
	if err != nil {
		return Failure(b.name, ReasonMalformed, err.Error())
	}

	b.logger.Debug("Fetched quote", "symbol", symbol, "price", q.Price.String(), "timestamp", q.Timestamp)
	return Success(q)
}

// PriceFromFloat converts a decoded JSON number, rejecting missing, NaN and infinite values.
func PriceFromFloat(v *float64) (decimal.Decimal, error) {
	if v == nil {
		return decimal.Zero, fmt.Errorf("%w: missing price", ErrMalformedResponse)
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return decimal.Zero, fmt.Errorf("%w: price is %v", ErrMalformedResponse, *v)
	}
	return decimal.NewFromFloat(*v), nil
}

// ParsePrice parses a textual price such as "$1,234.50".
func ParsePrice(s string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("%w: missing price", ErrMalformedResponse)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrMalformedResponse, s)
	}
	return d, nil
}
