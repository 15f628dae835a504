package coordinator

import (
	"sort"

	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

// Outcomes maps source name to the outcome of its fetch.
type Outcomes map[string]sources.Outcome

// Names returns the source names in sorted order.
func (o Outcomes) Names() []string {
	names := make([]string, 0, len(o))
	for name := range o {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Quotes returns the successful quotes ordered by source name.
func (o Outcomes) Quotes() []sources.Quote {
	quotes := make([]sources.Quote, 0, len(o))
	for _, name := range o.Names() {
		if q, ok := o[name].Quote(); ok {
			quotes = append(quotes, q)
		}
	}
	return quotes
}

// Failed returns how many sources produced no quote.
func (o Outcomes) Failed() int {
	n := 0
	for _, out := range o {
		if !out.OK() {
			n++
		}
	}
	return n
}
