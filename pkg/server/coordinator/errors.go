// Package coordinator fans a quote request out to every adapter and collects one outcome per source.
package coordinator

import "errors"

var (
	// ErrInvalidTimeout indicates a non-positive per-source timeout.
	ErrInvalidTimeout = errors.New("per-source timeout must be positive")
	// ErrInvalidRetries indicates a negative retry count.
	ErrInvalidRetries = errors.New("retries must be >= 0")
)
