// Package engine turns per-source quotes into a single consensus price with a confidence score.
package engine

import (
	"errors"
	"fmt"

	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

var (
	// ErrInsufficientQuorum indicates fewer survivors than the configured minimum quorum.
	ErrInsufficientQuorum = errors.New("insufficient quorum")
	// ErrConfiguration indicates invalid engine options.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrDuplicateSource indicates two adapters sharing a name.
	ErrDuplicateSource = errors.New("duplicate source")
	// ErrNoSources indicates a request with no sources to query.
	ErrNoSources = errors.New("no sources configured")
)

// ErrorKind classifies engine errors for callers that render them.
type ErrorKind string

const (
	KindNetworkFailure     ErrorKind = "network_failure"
	KindTimeout            ErrorKind = "timeout"
	KindMalformedResponse  ErrorKind = "malformed_response"
	KindSymbolNotFound     ErrorKind = "symbol_not_found"
	KindInsufficientQuorum ErrorKind = "insufficient_quorum"
	KindLowConfidence      ErrorKind = "low_confidence"
	KindConfiguration      ErrorKind = "configuration"
	KindInvalidSymbol      ErrorKind = "invalid_symbol"
)

// Error is a request-level engine failure.
type Error struct {
	Kind   ErrorKind
	Symbol string
	Err    error
}

func (e *Error) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Symbol, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of an *Error anywhere in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// kindForReason maps a per-source failure reason onto the engine taxonomy.
func kindForReason(r sources.Reason) ErrorKind {
	switch r {
	case sources.ReasonTimeout:
		return KindTimeout
	case sources.ReasonMalformed, sources.ReasonStale:
		return KindMalformedResponse
	case sources.ReasonSymbolNotFound:
		return KindSymbolNotFound
	default:
		return KindNetworkFailure
	}
}

func configError(err error) *Error {
	return &Error{Kind: KindConfiguration, Err: fmt.Errorf("%w: %w", ErrConfiguration, err)}
}
