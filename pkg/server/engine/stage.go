package engine

import (
	"time"

	"github.com/StrathCole/quote-consensus/pkg/logging"
	"github.com/StrathCole/quote-consensus/pkg/metrics"
)

// Stage is a step of the per-request state machine.
type Stage int

const (
	StageDispatched Stage = iota
	StageCollecting
	StageFiltering
	StageComputing
	StageAssembled
)

func (s Stage) String() string {
	switch s {
	case StageDispatched:
		return "dispatched"
	case StageCollecting:
		return "collecting"
	case StageFiltering:
		return "filtering"
	case StageComputing:
		return "computing"
	case StageAssembled:
		return "assembled"
	default:
		return "unknown"
	}
}

// tracker moves a request forward through the stages and times each one.
type tracker struct {
	symbol  string
	stage   Stage
	entered time.Time
	logger  *logging.Logger
}

func newTracker(symbol string, logger *logging.Logger) *tracker {
	return &tracker{symbol: symbol, stage: StageDispatched, entered: time.Now(), logger: logger}
}

// advance enters next, which must come after the current stage.
func (t *tracker) advance(next Stage) {
	if next <= t.stage {
		panic("engine: stage " + next.String() + " does not follow " + t.stage.String())
	}
	now := time.Now()
	elapsed := now.Sub(t.entered)
	metrics.RecordStage(t.stage.String(), elapsed)
	t.logger.Debug("Stage transition",
		"symbol", t.symbol,
		"from", t.stage.String(),
		"to", next.String(),
		"elapsed", elapsed)
	t.stage = next
	t.entered = now
}
