// Package market derives the trading session status for a consensus result.
package market

import "errors"

var (
	// ErrUnknownTimezone indicates the schedule's zone could not be loaded.
	ErrUnknownTimezone = errors.New("unknown timezone")
	// ErrInvalidSession indicates malformed or inverted session hours.
	ErrInvalidSession = errors.New("invalid session hours")
)
