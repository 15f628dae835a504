// Package reliability keeps a per-source success history used to weight consensus confidence.
package reliability

import "errors"

var (
	// ErrEmptySource indicates a record without a source identifier.
	ErrEmptySource = errors.New("source identifier is empty")
	// ErrUnavailable indicates the backing store could not be reached.
	ErrUnavailable = errors.New("reliability store unavailable")
)
