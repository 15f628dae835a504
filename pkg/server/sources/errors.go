// Package sources provides the quote adapter interface, outcome types and shared plumbing.
package sources

import "errors"

var (
	// ErrNetwork indicates a transport failure or an unexpected HTTP status.
	ErrNetwork = errors.New("network failure")
	// ErrTimeout indicates the request did not complete in time.
	ErrTimeout = errors.New("timeout")
	// ErrMalformedResponse indicates a response that could not be turned into a valid quote.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrSymbolNotFound indicates the provider does not know the symbol.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrRateLimited indicates the provider refused the request due to rate limiting.
	ErrRateLimited = errors.New("rate limited")
	// ErrStaleQuote indicates the quote timestamp is older than the freshness threshold.
	ErrStaleQuote = errors.New("stale quote")
	// ErrInvalidConfig indicates that the source configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInvalidSymbol indicates a symbol that fails format validation.
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrUnknownSource indicates that no factory is registered under the requested key.
	ErrUnknownSource = errors.New("unknown source")
)
