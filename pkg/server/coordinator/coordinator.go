package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/StrathCole/quote-consensus/pkg/logging"
	"github.com/StrathCole/quote-consensus/pkg/metrics"
	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

//go:generate mockgen -package=coordinator -destination=mock_adapter_test.go github.com/StrathCole/quote-consensus/pkg/server/sources Adapter

const (
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = time.Second
)

// Policy bounds how long and how often each source is tried.
type Policy struct {
	// Timeout is the per-source deadline, covering all retries.
	Timeout time.Duration
	// Retries is the number of additional attempts after a transient failure.
	Retries        int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Coordinator runs adapters concurrently under a per-source timeout.
type Coordinator struct {
	policy Policy
	logger *logging.Logger
}

type attemptResult struct {
	outcome  sources.Outcome
	attempts int
}

// New creates a coordinator for the given policy.
func New(policy Policy, logger *logging.Logger) (*Coordinator, error) {
	if policy.Timeout <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimeout, policy.Timeout)
	}
	if policy.Retries < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRetries, policy.Retries)
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = defaultInitialBackoff
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = defaultMaxBackoff
		if policy.MaxBackoff < policy.InitialBackoff {
			policy.MaxBackoff = policy.InitialBackoff
		}
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Coordinator{policy: policy, logger: logger}, nil
}

// Collect dispatches symbol to every adapter concurrently and waits for all of them.
// Each source gets its own deadline; a source that misses it is recorded as a timeout
// whether or not its adapter later returns. Cancelling ctx does not abort the collection.
// Adapters are keyed by Name, so names must be unique.
func (c *Coordinator) Collect(ctx context.Context, symbol string, adapters []sources.Adapter) Outcomes {
	results := make([]sources.Outcome, len(adapters))

	var g errgroup.Group
	for i, adapter := range adapters {
		g.Go(func() error {
			results[i] = c.collectOne(ctx, symbol, adapter)
			return nil
		})
	}
	_ = g.Wait()

	outcomes := make(Outcomes, len(adapters))
	for i, adapter := range adapters {
		outcomes[adapter.Name()] = results[i]
	}

	c.logger.Debug("Collected outcomes",
		"symbol", symbol,
		"sources", len(outcomes),
		"failed", outcomes.Failed())
	return outcomes
}

// collectOne waits for a single source until it answers or its deadline passes.
func (c *Coordinator) collectOne(parent context.Context, symbol string, adapter sources.Adapter) sources.Outcome {
	name := adapter.Name()
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.policy.Timeout)
	defer cancel()

	// Buffered so an adapter that outlives its deadline can still deliver and exit.
	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{
					outcome:  sources.Failure(name, sources.ReasonMalformed, fmt.Sprintf("adapter panicked: %v", r)),
					attempts: 1,
				}
			}
		}()
		done <- c.fetchWithRetry(ctx, symbol, adapter)
	}()

	var out sources.Outcome
	select {
	case res := <-done:
		out = res.outcome
		if out.Source() != name {
			out = relabel(name, out)
		}
		out = out.WithTiming(time.Since(start), res.attempts)
	case <-ctx.Done():
		out = sources.Failure(name, sources.ReasonTimeout, fmt.Sprintf("no response within %s", c.policy.Timeout)).
			WithTiming(time.Since(start), 0)
	}

	metrics.RecordSourceFetch(name, out.Label(), out.Latency())
	if out.OK() {
		c.logger.Debug("Source returned quote", "source", name, "symbol", symbol, "latency", out.Latency())
	} else {
		c.logger.Warn("Source failed", "source", name, "symbol", symbol, "reason", string(out.Reason()), "detail", out.Detail())
	}
	return out
}

// fetchWithRetry retries transient failures with exponential backoff until the deadline.
func (c *Coordinator) fetchWithRetry(ctx context.Context, symbol string, adapter sources.Adapter) attemptResult {
	if c.policy.Retries == 0 {
		return attemptResult{outcome: adapter.Fetch(ctx, symbol), attempts: 1}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.policy.InitialBackoff
	bo.MaxInterval = c.policy.MaxBackoff
	bo.MaxElapsedTime = 0

	var (
		out      sources.Outcome
		attempts int
	)
	operation := func() error {
		attempts++
		out = adapter.Fetch(ctx, symbol)
		if out.OK() {
			return nil
		}
		if !out.Reason().Transient() {
			return backoff.Permanent(out.Err())
		}
		return out.Err()
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("Retrying source", "source", adapter.Name(), "attempt", attempts, "wait", wait, "error", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.policy.Retries)), ctx)
	_ = backoff.RetryNotify(operation, policy, notify)

	return attemptResult{outcome: out, attempts: attempts}
}

// relabel keys an outcome by the adapter that produced it.
func relabel(name string, out sources.Outcome) sources.Outcome {
	if q, ok := out.Quote(); ok {
		q.Source = name
		return sources.Success(q)
	}
	return sources.Failure(name, out.Reason(), out.Detail())
}
