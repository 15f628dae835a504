package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/StrathCole/quote-consensus/pkg/logging"
	"github.com/StrathCole/quote-consensus/pkg/metrics"
	"github.com/StrathCole/quote-consensus/pkg/server/aggregator"
	"github.com/StrathCole/quote-consensus/pkg/server/coordinator"
	"github.com/StrathCole/quote-consensus/pkg/server/market"
	"github.com/StrathCole/quote-consensus/pkg/server/reliability"
	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

// Engine answers consensus requests over a fixed set of adapters.
// It is safe for concurrent use; requests share only the reliability store.
type Engine struct {
	adapters map[string]sources.Adapter
	order    []string
	opts     Options
	logger   *logging.Logger
	store    reliability.Store
	clock    func() time.Time
	schedule *market.Schedule
}

// Option customizes an Engine.
type Option func(*Engine)

// WithReliabilityStore records every request's source outcomes in store and,
// when Options.ReliabilityWeighting is set, weights confidence by it.
func WithReliabilityStore(store reliability.Store) Option {
	return func(e *Engine) { e.store = store }
}

// WithClock overrides the time source used for timestamps, staleness and market hours.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithSchedule overrides the market schedule used when providers report no state.
func WithSchedule(schedule *market.Schedule) Option {
	return func(e *Engine) { e.schedule = schedule }
}

// New creates an engine. Adapter names must be unique and opts must be valid.
func New(adapters []sources.Adapter, opts Options, logger *logging.Logger, options ...Option) (*Engine, error) {
	if len(adapters) == 0 {
		return nil, configError(ErrNoSources)
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	e := &Engine{
		adapters: make(map[string]sources.Adapter, len(adapters)),
		order:    make([]string, 0, len(adapters)),
		logger:   logger,
		clock:    time.Now,
	}
	for _, a := range adapters {
		name := a.Name()
		if _, exists := e.adapters[name]; exists {
			return nil, configError(fmt.Errorf("%w: %s", ErrDuplicateSource, name))
		}
		e.adapters[name] = a
		e.order = append(e.order, name)
	}

	if err := opts.Validate(); err != nil {
		return nil, configError(err)
	}
	if _, err := e.resolve(opts.Sources); err != nil {
		return nil, configError(err)
	}
	e.opts = opts

	for _, o := range options {
		o(e)
	}
	if e.schedule == nil {
		e.schedule = market.DefaultSchedule()
	}
	return e, nil
}

// Options returns the engine's default request options.
func (e *Engine) Options() Options {
	opts := e.opts
	opts.Sources = append([]string(nil), e.opts.Sources...)
	if e.opts.SourceMaxQuoteAge != nil {
		opts.SourceMaxQuoteAge = make(map[string]time.Duration, len(e.opts.SourceMaxQuoteAge))
		for name, age := range e.opts.SourceMaxQuoteAge {
			opts.SourceMaxQuoteAge[name] = age
		}
	}
	return opts
}

// Sources returns the names of all adapters in configured order.
func (e *Engine) Sources() []string {
	return append([]string(nil), e.order...)
}

// GetConsensus runs a request with the engine's options.
func (e *Engine) GetConsensus(ctx context.Context, symbol string) (*Result, error) {
	return e.GetConsensusWith(ctx, symbol, e.opts)
}

// GetConsensusWith runs a request with explicit options.
//
// An invalid symbol or invalid options return a nil Result and an *Error before any
// source is contacted. Otherwise a Result is always returned with a nil error; when
// quorum is not met, Result.Err reports it and every source status is still present.
// Cancelling ctx does not abort a request in flight.
func (e *Engine) GetConsensusWith(ctx context.Context, symbol string, opts Options) (*Result, error) {
	symbol = sources.NormalizeSymbol(symbol)
	if err := sources.ValidateSymbol(symbol); err != nil {
		return nil, &Error{Kind: KindInvalidSymbol, Symbol: symbol, Err: err}
	}
	if err := opts.Validate(); err != nil {
		return nil, configError(err)
	}
	order, err := e.resolve(opts.Sources)
	if err != nil {
		return nil, configError(err)
	}

	filter, err := aggregator.NewOutlierFilter(opts.OutlierTolerance, e.logger)
	if err != nil {
		return nil, configError(err)
	}
	calc, err := aggregator.NewCalculator(opts.SpreadCap, e.logger)
	if err != nil {
		return nil, configError(err)
	}
	coord, err := coordinator.New(coordinator.Policy{Timeout: opts.PerSourceTimeout, Retries: opts.Retries}, e.logger)
	if err != nil {
		return nil, configError(err)
	}

	adapters := make([]sources.Adapter, len(order))
	for i, name := range order {
		adapters[i] = e.adapters[name]
	}

	t := newTracker(symbol, e.logger)

	t.advance(StageCollecting)
	outcomes := coord.Collect(ctx, symbol, adapters)
	now := e.clock()
	e.expireStale(outcomes, opts, now)

	t.advance(StageFiltering)
	filtered := filter.Filter(symbol, outcomes.Quotes())

	t.advance(StageComputing)
	cons := calc.Compute(filtered.Survivors, len(order))
	if opts.ReliabilityWeighting && e.store != nil && cons.HasData {
		cons = e.weight(ctx, cons, filtered.Survivors)
	}
	status := market.Resolve(filtered.Survivors, e.schedule, now)

	result := Assemble(Assembly{
		Symbol:       symbol,
		Order:        order,
		Outcomes:     outcomes,
		Filtered:     filtered,
		Consensus:    cons,
		MinQuorum:    opts.MinQuorum,
		MarketStatus: status,
		ComputedAt:   now,
	})
	t.advance(StageAssembled)

	e.recordReliability(ctx, result)
	e.report(result)
	return result, nil
}

// resolve maps requested source names to configured adapters, defaulting to all.
func (e *Engine) resolve(names []string) ([]string, error) {
	if len(names) == 0 {
		return e.order, nil
	}
	for _, name := range names {
		if _, ok := e.adapters[name]; !ok {
			return nil, fmt.Errorf("%w: %s", sources.ErrUnknownSource, name)
		}
	}
	return names, nil
}

// expireStale turns successful quotes older than their source's max age into stale failures.
func (e *Engine) expireStale(outcomes coordinator.Outcomes, opts Options, now time.Time) {
	for name, out := range outcomes {
		maxAge := opts.maxQuoteAge(name)
		q, ok := out.Quote()
		if !ok || maxAge <= 0 {
			continue
		}
		if age := now.Sub(q.Timestamp); age > maxAge {
			outcomes[name] = sources.Failure(name, sources.ReasonStale,
				fmt.Sprintf("quote from %s is %s old", q.Timestamp.UTC().Format(time.RFC3339), age.Round(time.Second))).
				WithTiming(out.Latency(), out.Attempts())
		}
	}
}

func (e *Engine) weight(ctx context.Context, cons aggregator.Consensus, survivors []sources.Quote) aggregator.Consensus {
	names := make([]string, len(survivors))
	for i, q := range survivors {
		names[i] = q.Source
	}
	scores, err := e.store.Scores(context.WithoutCancel(ctx), names)
	if err != nil {
		e.logger.Warn("Reliability scores unavailable, using unweighted confidence", "error", err)
		return cons
	}
	return aggregator.ApplyReliability(cons, survivors, scores, reliability.Stats{}.Score())
}

// recordReliability counts a source as successful only when its quote survived.
func (e *Engine) recordReliability(ctx context.Context, r *Result) {
	if e.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, s := range r.statuses {
		if err := e.store.Record(ctx, s.Source, s.State == SourceOK); err != nil {
			e.logger.Warn("Failed to record source reliability", "source", s.Source, "error", err)
		}
	}
}

func (e *Engine) report(r *Result) {
	label := "ok"
	if r.err != nil {
		label = string(r.err.Kind)
	}
	metrics.RecordConsensus(r.symbol, label, r.confidence)

	price, _ := r.Price()
	e.logger.Info("Consensus computed",
		"symbol", r.symbol,
		"price", price.String(),
		"confidence", r.confidence,
		"survivors", len(r.survivors),
		"attempted", r.attempted,
		"market", string(r.marketStatus),
		"sufficient", r.sufficient)
}
