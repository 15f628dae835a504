// Package api exposes the consensus engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/StrathCole/quote-consensus/pkg/logging"
	"github.com/StrathCole/quote-consensus/pkg/server/engine"
	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

// Consensus is the engine surface the API serves.
type Consensus interface {
	GetConsensus(ctx context.Context, symbol string) (*engine.Result, error)
	Sources() []string
}

// Options configures the HTTP server.
type Options struct {
	Addr string
	// CacheTTL keeps a symbol's result for this long. Zero disables caching.
	CacheTTL     time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type cacheEntry struct {
	result  *engine.Result
	expires time.Time
}

// Server represents the HTTP API server.
type Server struct {
	opts    Options
	engine  Consensus
	logger  *logging.Logger
	server  *http.Server
	router  http.Handler
	flights singleflight.Group
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewServer creates a new HTTP API server.
func NewServer(eng Consensus, opts Options, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	s := &Server{
		opts:   opts,
		engine: eng,
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]cacheEntry),
	}
	s.router = s.routes()
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID())
	r.Use(accessLog(s.logger))
	r.Use(recoverer(s.logger))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/consensus/{symbol}", s.handleConsensus)
		r.Get("/sources", s.handleSources)
	})
	return r
}

// Handler returns the router, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.opts.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server. It is safe to call from another
// goroutine than Start, and before Start.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles /health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleSources lists the configured sources in query order.
func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string][]string{"sources": s.engine.Sources()})
}

// handleConsensus returns the consensus for one symbol. A missed quorum is
// served as 503 with the full result so clients can see why.
func (s *Server) handleConsensus(w http.ResponseWriter, r *http.Request) {
	symbol := sources.NormalizeSymbol(chi.URLParam(r, "symbol"))

	if result, ok := s.cached(symbol); ok {
		w.Header().Set("X-Cache", "hit")
		s.sendResult(w, result)
		return
	}

	// Concurrent requests for the same symbol share one engine run. The run is
	// detached from the first caller so its disconnect cannot fail the others.
	ctx := context.WithoutCancel(r.Context())
	v, err, shared := s.flights.Do(symbol, func() (interface{}, error) {
		result, err := s.engine.GetConsensus(ctx, symbol)
		if err != nil {
			return nil, err
		}
		s.store(symbol, result)
		return result, nil
	})
	if err != nil {
		s.sendError(w, err)
		return
	}

	w.Header().Set("X-Cache", "miss")
	w.Header().Set("X-Shared", strconv.FormatBool(shared))
	s.sendResult(w, v.(*engine.Result))
}

func (s *Server) cached(symbol string) (*engine.Result, bool) {
	if s.opts.CacheTTL <= 0 {
		return nil, false
	}
	s.mu.RLock()
	entry, ok := s.cache[symbol]
	s.mu.RUnlock()
	if !ok || !s.now().Before(entry.expires) {
		return nil, false
	}
	return entry.result, true
}

func (s *Server) store(symbol string, result *engine.Result) {
	if s.opts.CacheTTL <= 0 {
		return
	}
	s.mu.Lock()
	s.cache[symbol] = cacheEntry{result: result, expires: s.now().Add(s.opts.CacheTTL)}
	s.mu.Unlock()
}

func (s *Server) sendResult(w http.ResponseWriter, result *engine.Result) {
	status := http.StatusOK
	if !result.SufficientData() {
		status = http.StatusServiceUnavailable
	}
	s.sendJSON(w, status, result)
}

type errorResponse struct {
	Error string           `json:"error"`
	Kind  engine.ErrorKind `json:"kind,omitempty"`
}

func (s *Server) sendError(w http.ResponseWriter, err error) {
	kind := engine.KindOf(err)
	status := http.StatusInternalServerError
	if kind == engine.KindInvalidSymbol {
		status = http.StatusBadRequest
	} else {
		s.logger.Error("Consensus request failed", "error", err)
	}
	s.sendJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}
