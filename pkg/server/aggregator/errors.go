// Package aggregator provides outlier filtering and consensus computation over quotes.
package aggregator

import "errors"

var (
	// ErrInvalidTolerance indicates an outlier tolerance outside (0,1).
	ErrInvalidTolerance = errors.New("outlier tolerance must be in (0,1)")
	// ErrInvalidSpreadCap indicates a non-positive spread cap.
	ErrInvalidSpreadCap = errors.New("spread cap must be positive")
)
