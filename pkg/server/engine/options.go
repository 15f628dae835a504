package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/StrathCole/quote-consensus/pkg/server/aggregator"
	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

const (
	DefaultPerSourceTimeout = 5 * time.Second
	DefaultMinQuorum        = 1
)

// Options controls a single consensus request.
type Options struct {
	// Sources lists the adapters to query, in display order. Empty means every adapter.
	Sources          []string
	PerSourceTimeout time.Duration
	OutlierTolerance float64
	MinQuorum        int
	SpreadCap        float64
	// MaxQuoteAge marks older successful quotes as stale. Zero disables the check.
	MaxQuoteAge time.Duration
	// SourceMaxQuoteAge overrides MaxQuoteAge for the named sources.
	SourceMaxQuoteAge map[string]time.Duration
	// Retries is the number of extra attempts for transient source failures.
	Retries int
	// ReliabilityWeighting scales confidence by the survivors' reliability history.
	ReliabilityWeighting bool
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		PerSourceTimeout: DefaultPerSourceTimeout,
		OutlierTolerance: aggregator.DefaultOutlierTolerance,
		MinQuorum:        DefaultMinQuorum,
		SpreadCap:        aggregator.DefaultSpreadCap,
		MaxQuoteAge:      sources.DefaultMaxQuoteAge,
	}
}

func (o Options) maxQuoteAge(source string) time.Duration {
	if age, ok := o.SourceMaxQuoteAge[source]; ok {
		return age
	}
	return o.MaxQuoteAge
}

// Validate reports the first invalid option.
func (o Options) Validate() error {
	if o.PerSourceTimeout <= 0 {
		return fmt.Errorf("per-source timeout must be positive, got %s", o.PerSourceTimeout)
	}
	if !(o.OutlierTolerance > 0 && o.OutlierTolerance < 1) {
		return fmt.Errorf("outlier tolerance must be in (0,1), got %v", o.OutlierTolerance)
	}
	if o.MinQuorum < 1 {
		return fmt.Errorf("min quorum must be >= 1, got %d", o.MinQuorum)
	}
	if !(o.SpreadCap > 0) || math.IsInf(o.SpreadCap, 0) {
		return fmt.Errorf("spread cap must be positive, got %v", o.SpreadCap)
	}
	if o.MaxQuoteAge < 0 {
		return fmt.Errorf("max quote age must be >= 0, got %s", o.MaxQuoteAge)
	}
	for name, age := range o.SourceMaxQuoteAge {
		if age < 0 {
			return fmt.Errorf("max quote age of %s must be >= 0, got %s", name, age)
		}
	}
	if o.Retries < 0 {
		return fmt.Errorf("retries must be >= 0, got %d", o.Retries)
	}
	seen := make(map[string]bool, len(o.Sources))
	for _, name := range o.Sources {
		if name == "" {
			return fmt.Errorf("empty source name")
		}
		if seen[name] {
			return fmt.Errorf("%w: %s", ErrDuplicateSource, name)
		}
		seen[name] = true
	}
	return nil
}
