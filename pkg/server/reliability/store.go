package reliability

import "context"

// Stats is the recorded history for one source.
type Stats struct {
	Attempts  int64 `json:"attempts"`
	Successes int64 `json:"successes"`
}

// Score returns the Laplace-smoothed success rate (successes+1)/(attempts+2).
// A source with no history scores 0.5.
func (s Stats) Score() float64 {
	return float64(s.Successes+1) / float64(s.Attempts+2)
}

// Store records per-source outcomes. Updates for one source are serialized.
type Store interface {
	// Record adds one attempt for source, counting it as a success when ok is true.
	Record(ctx context.Context, source string, ok bool) error
	// Scores returns the score of every listed source that has history.
	Scores(ctx context.Context, sources []string) (map[string]float64, error)
}
