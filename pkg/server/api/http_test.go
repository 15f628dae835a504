package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/quote-consensus/pkg/logging"
	"github.com/StrathCole/quote-consensus/pkg/metrics"
	"github.com/StrathCole/quote-consensus/pkg/server/engine"
	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

type stubAdapter struct {
	name  string
	price string
	fail  bool
	gate  <-chan struct{}
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Fetch(_ context.Context, symbol string) sources.Outcome {
	if s.gate != nil {
		<-s.gate
	}
	if s.fail {
		return sources.Failure(s.name, sources.ReasonNetwork, "stub")
	}
	return sources.Success(sources.Quote{
		Source:    s.name,
		Symbol:    symbol,
		Price:     decimal.RequireFromString(s.price),
		Timestamp: time.Now(),
	})
}

// countingEngine counts requests that reach the engine.
type countingEngine struct {
	*engine.Engine
	calls atomic.Int32
}

func (c *countingEngine) GetConsensus(ctx context.Context, symbol string) (*engine.Result, error) {
	c.calls.Add(1)
	return c.Engine.GetConsensus(ctx, symbol)
}

func newCountingEngine(t *testing.T, minQuorum int, adapters ...sources.Adapter) *countingEngine {
	t.Helper()
	opts := engine.DefaultOptions()
	opts.PerSourceTimeout = 2 * time.Second
	opts.MinQuorum = minQuorum
	e, err := engine.New(adapters, opts, logging.NewNoopLogger())
	require.NoError(t, err)
	return &countingEngine{Engine: e}
}

func get(t *testing.T, h http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	s := NewServer(newCountingEngine(t, 1, &stubAdapter{name: "a", price: "1"}), Options{}, nil)
	rec := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestConsensus_OK(t *testing.T) {
	eng := newCountingEngine(t, 1,
		&stubAdapter{name: "a", price: "100.00"},
		&stubAdapter{name: "b", price: "100.50"},
		&stubAdapter{name: "c", price: "150.00"})
	s := NewServer(eng, Options{}, nil)

	rec := get(t, s.Handler(), "/v1/consensus/aapl", "X-Request-ID", "req-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode(t, rec)
	assert.Equal(t, "AAPL", body["symbol"])
	assert.Equal(t, "100.25", body["price"])
	assert.Equal(t, true, body["sufficient_data"])
	assert.InDelta(t, 0.60, body["confidence"].(float64), 0.005)

	srcs := body["sources"].([]interface{})
	require.Len(t, srcs, 3)
	assert.Equal(t, "rejected", srcs[2].(map[string]interface{})["state"])
}

func TestConsensus_InsufficientQuorum(t *testing.T) {
	eng := newCountingEngine(t, 2,
		&stubAdapter{name: "a", price: "75"},
		&stubAdapter{name: "b", fail: true})
	s := NewServer(eng, Options{}, nil)

	rec := get(t, s.Handler(), "/v1/consensus/MSFT")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decode(t, rec)
	assert.NotContains(t, body, "price")
	assert.Equal(t, false, body["sufficient_data"])
	assert.Equal(t, "insufficient_quorum", body["error"].(map[string]interface{})["kind"])
	assert.Len(t, body["sources"], 2)
}

func TestConsensus_InvalidSymbol(t *testing.T) {
	eng := newCountingEngine(t, 1, &stubAdapter{name: "a", price: "1"})
	s := NewServer(eng, Options{}, nil)

	rec := get(t, s.Handler(), "/v1/consensus/BRK.B")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_symbol", decode(t, rec)["kind"])
}

func TestConsensus_Cache(t *testing.T) {
	eng := newCountingEngine(t, 1, &stubAdapter{name: "a", price: "10"})
	s := NewServer(eng, Options{CacheTTL: time.Minute}, nil)
	now := time.Date(2024, 1, 5, 18, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	assert.Equal(t, "miss", get(t, s.Handler(), "/v1/consensus/AAPL").Header().Get("X-Cache"))
	assert.Equal(t, "hit", get(t, s.Handler(), "/v1/consensus/aapl").Header().Get("X-Cache"))
	assert.Equal(t, int32(1), eng.calls.Load())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, "miss", get(t, s.Handler(), "/v1/consensus/AAPL").Header().Get("X-Cache"))
	assert.Equal(t, int32(2), eng.calls.Load())
}

func TestConsensus_NoCacheWhenDisabled(t *testing.T) {
	eng := newCountingEngine(t, 1, &stubAdapter{name: "a", price: "10"})
	s := NewServer(eng, Options{}, nil)

	get(t, s.Handler(), "/v1/consensus/AAPL")
	get(t, s.Handler(), "/v1/consensus/AAPL")
	assert.Equal(t, int32(2), eng.calls.Load())
}

func TestConsensus_ConcurrentRequestsShareOneRun(t *testing.T) {
	gate := make(chan struct{})
	eng := newCountingEngine(t, 1, &stubAdapter{name: "a", price: "10", gate: gate})
	s := NewServer(eng, Options{}, nil)

	const n = 10
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = get(t, s.Handler(), "/v1/consensus/AAPL").Code
		}(i)
	}

	require.Eventually(t, func() bool { return eng.calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for _, code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
	assert.Less(t, eng.calls.Load(), int32(n))
}

func TestSources(t *testing.T) {
	eng := newCountingEngine(t, 1, &stubAdapter{name: "yahoo", price: "1"}, &stubAdapter{name: "stooq", price: "1"})
	s := NewServer(eng, Options{}, nil)

	rec := get(t, s.Handler(), "/v1/sources")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"yahoo", "stooq"}, decode(t, rec)["sources"])
}

type panickingEngine struct{}

func (panickingEngine) GetConsensus(context.Context, string) (*engine.Result, error) {
	panic("boom")
}

func (panickingEngine) Sources() []string { return nil }

func TestRecoverer(t *testing.T) {
	s := NewServer(panickingEngine{}, Options{}, nil)
	rec := get(t, s.Handler(), "/v1/consensus/AAPL")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStopWithoutStart(t *testing.T) {
	s := NewServer(panickingEngine{}, Options{}, nil)
	assert.NoError(t, s.Stop(context.Background()))
}

func TestStartStopFromAnotherGoroutine(t *testing.T) {
	s := NewServer(panickingEngine{}, Options{Addr: "127.0.0.1:0"}, nil)

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestAccessLog_UnmatchedRoutesShareOneSeries(t *testing.T) {
	s := NewServer(panickingEngine{}, Options{}, nil)
	h := s.Handler()

	unmatched := metrics.HTTPRequestsTotal.WithLabelValues(unmatchedRoute, "404")
	before := testutil.ToFloat64(unmatched)
	seriesBefore := testutil.CollectAndCount(metrics.HTTPRequestsTotal)

	for i := 0; i < 20; i++ {
		rec := get(t, h, fmt.Sprintf("/scan/%d", i))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, before+20, testutil.ToFloat64(unmatched))
	assert.Equal(t, seriesBefore, testutil.CollectAndCount(metrics.HTTPRequestsTotal))

	health := metrics.HTTPRequestsTotal.WithLabelValues("/health", "200")
	healthBefore := testutil.ToFloat64(health)
	get(t, h, "/health")
	assert.Equal(t, healthBefore+1, testutil.ToFloat64(health))
}
