// Package equity implements quote adapters for public equity price endpoints.
package equity

import (
	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

func init() {
	// Register all equity adapters
	sources.Register("equity.yahoo", NewYahooAdapter)
	sources.Register("equity.stooq", NewStooqAdapter)
	sources.Register("equity.nasdaq", NewNasdaqAdapter)
}
