package engine

import (
	"fmt"
	"time"

	"github.com/StrathCole/quote-consensus/pkg/server/aggregator"
	"github.com/StrathCole/quote-consensus/pkg/server/coordinator"
	"github.com/StrathCole/quote-consensus/pkg/server/market"
	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

// Assembly collects everything Assemble merges into a Result.
type Assembly struct {
	Symbol       string
	Order        []string
	Outcomes     coordinator.Outcomes
	Filtered     aggregator.FilterResult
	Consensus    aggregator.Consensus
	MinQuorum    int
	MarketStatus market.Status
	ComputedAt   time.Time
}

// Assemble merges the pipeline outputs into an immutable Result. Sources appear in
// Order; successful quotes the filter dropped are marked rejected.
func Assemble(a Assembly) *Result {
	rejected := make(map[string]aggregator.Rejection, len(a.Filtered.Rejected))
	for _, rej := range a.Filtered.Rejected {
		rejected[rej.Quote.Source] = rej
	}

	statuses := make([]SourceStatus, 0, len(a.Order))
	for _, name := range a.Order {
		statuses = append(statuses, sourceStatus(name, a.Outcomes, rejected))
	}

	sufficient := a.Consensus.HasData && !a.Filtered.Relaxed && len(a.Filtered.Survivors) >= a.MinQuorum
	r := &Result{
		symbol:       a.Symbol,
		hasData:      a.Consensus.HasData,
		sufficient:   sufficient,
		spread:       a.Consensus.Spread,
		median:       a.Filtered.Median,
		marketStatus: a.MarketStatus,
		statuses:     statuses,
		survivors:    append([]sources.Quote(nil), a.Filtered.Survivors...),
		rejected:     append([]aggregator.Rejection(nil), a.Filtered.Rejected...),
		minQuorum:    a.MinQuorum,
		attempted:    len(a.Order),
		computedAt:   a.ComputedAt,
	}
	if sufficient {
		r.price = a.Consensus.Price
		r.confidence = a.Consensus.Confidence
	} else if a.Filtered.Relaxed {
		r.err = &Error{
			Kind:   KindLowConfidence,
			Symbol: a.Symbol,
			Err:    fmt.Errorf("%w: no quote within outlier tolerance of median %s", ErrInsufficientQuorum, a.Filtered.Median),
		}
	} else {
		r.err = quorumError(a.Symbol, len(a.Filtered.Survivors), a.MinQuorum, statuses)
	}
	return r
}

func sourceStatus(name string, outcomes coordinator.Outcomes, rejected map[string]aggregator.Rejection) SourceStatus {
	out, ok := outcomes[name]
	if !ok {
		return SourceStatus{Source: name, State: SourceFailed, Reason: sources.ReasonNetwork, Detail: "no outcome recorded"}
	}

	status := SourceStatus{Source: name, Latency: out.Latency(), Attempts: out.Attempts()}
	q, ok := out.Quote()
	if !ok {
		status.State = SourceFailed
		status.Reason = out.Reason()
		status.Detail = out.Detail()
		return status
	}

	status.Quote = &q
	if rej, isRejected := rejected[name]; isRejected {
		ratio := rej.Ratio
		status.State = SourceRejected
		status.Deviation = &ratio
		return status
	}
	status.State = SourceOK
	return status
}

// quorumError reports a missed quorum. When every source failed for the same
// reason, the error kind names that reason and also wraps its sentinel.
func quorumError(symbol string, survivors, minQuorum int, statuses []SourceStatus) *Error {
	base := fmt.Errorf("%w: %d of %d required quotes survived", ErrInsufficientQuorum, survivors, minQuorum)
	if reason, ok := commonFailure(statuses); ok {
		return &Error{
			Kind:   kindForReason(reason),
			Symbol: symbol,
			Err:    fmt.Errorf("%w: every source failed: %w", base, reason.Err()),
		}
	}
	return &Error{Kind: KindInsufficientQuorum, Symbol: symbol, Err: base}
}

func commonFailure(statuses []SourceStatus) (sources.Reason, bool) {
	if len(statuses) == 0 {
		return sources.ReasonNone, false
	}
	reason := statuses[0].Reason
	for _, s := range statuses {
		if s.State != SourceFailed || s.Reason != reason {
			return sources.ReasonNone, false
		}
	}
	return reason, reason != sources.ReasonNone
}
