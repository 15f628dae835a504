package sources

import (
	"fmt"
	"time"
)

// Reason classifies why a source failed to produce a quote.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNetwork        Reason = "network"
	ReasonTimeout        Reason = "timeout"
	ReasonMalformed      Reason = "malformed_response"
	ReasonSymbolNotFound Reason = "symbol_not_found"
	ReasonRateLimited    Reason = "rate_limited"
	ReasonStale          Reason = "stale_quote"
)

// Err returns the sentinel error for the reason.
func (r Reason) Err() error {
	switch r {
	case ReasonNetwork:
		return ErrNetwork
	case ReasonTimeout:
		return ErrTimeout
	case ReasonMalformed:
		return ErrMalformedResponse
	case ReasonSymbolNotFound:
		return ErrSymbolNotFound
	case ReasonRateLimited:
		return ErrRateLimited
	case ReasonStale:
		return ErrStaleQuote
	default:
		return nil
	}
}

// Transient reports whether a retry has a chance of a different result.
func (r Reason) Transient() bool {
	return r == ReasonNetwork || r == ReasonRateLimited
}

// Outcome is the result of one adapter invocation: either a quote or a failure.
type Outcome struct {
	source   string
	quote    Quote
	ok       bool
	reason   Reason
	detail   string
	latency  time.Duration
	attempts int
}

// Success wraps a quote in a successful outcome.
func Success(q Quote) Outcome {
	return Outcome{source: q.Source, quote: q, ok: true, attempts: 1}
}

// Failure builds a failed outcome for source.
func Failure(source string, reason Reason, detail string) Outcome {
	return Outcome{source: source, reason: reason, detail: detail, attempts: 1}
}

// Source returns the source identifier.
func (o Outcome) Source() string { return o.source }

// OK reports whether the outcome carries a quote.
func (o Outcome) OK() bool { return o.ok }

// Quote returns the quote and whether the outcome was a success.
func (o Outcome) Quote() (Quote, bool) { return o.quote, o.ok }

// Reason returns the failure reason, empty on success.
func (o Outcome) Reason() Reason { return o.reason }

// Detail returns the failure detail, empty on success.
func (o Outcome) Detail() string { return o.detail }

// Latency returns how long the coordinator waited on this source.
func (o Outcome) Latency() time.Duration { return o.latency }

// Attempts returns how many fetches were made for this outcome.
func (o Outcome) Attempts() int { return o.attempts }

// Err returns nil on success, otherwise the reason's sentinel wrapped with the detail.
func (o Outcome) Err() error {
	if o.ok {
		return nil
	}
	if o.detail == "" {
		return fmt.Errorf("%s: %w", o.source, o.reason.Err())
	}
	return fmt.Errorf("%s: %w: %s", o.source, o.reason.Err(), o.detail)
}

// WithTiming returns a copy carrying coordinator bookkeeping.
func (o Outcome) WithTiming(latency time.Duration, attempts int) Outcome {
	o.latency = latency
	o.attempts = attempts
	return o
}

// Label returns "ok" or the failure reason, suitable for metrics.
func (o Outcome) Label() string {
	if o.ok {
		return "ok"
	}
	return string(o.reason)
}
