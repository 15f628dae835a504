package market

import (
	"fmt"
	"time"

	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

// Status is the market session state reported on a consensus result.
type Status string

const (
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
	StatusUnknown Status = "unknown"
)

const (
	// DefaultTimezone is the zone of the US equity session.
	DefaultTimezone = "America/New_York"
	DefaultOpen     = "09:30"
	DefaultClose    = "16:00"
)

// Schedule is a weekday trading session in a fixed timezone. Exchange holidays are not modelled.
type Schedule struct {
	location *time.Location
	opensAt  time.Duration
	closesAt time.Duration
}

// NewSchedule builds a schedule from a zone name and "HH:MM" open and close times.
func NewSchedule(timezone, opens, closes string) (*Schedule, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnknownTimezone, timezone, err)
	}
	o, err := parseClock(opens)
	if err != nil {
		return nil, err
	}
	c, err := parseClock(closes)
	if err != nil {
		return nil, err
	}
	if c <= o {
		return nil, fmt.Errorf("%w: close %s is not after open %s", ErrInvalidSession, closes, opens)
	}
	return &Schedule{location: loc, opensAt: o, closesAt: c}, nil
}

// DefaultSchedule returns the US equity session. Without a tz database the
// returned schedule reports StatusUnknown for every instant.
func DefaultSchedule() *Schedule {
	s, err := NewSchedule(DefaultTimezone, DefaultOpen, DefaultClose)
	if err != nil {
		return &Schedule{}
	}
	return s
}

// StatusAt reports whether the session is open at t.
func (s *Schedule) StatusAt(t time.Time) Status {
	if s == nil || s.location == nil {
		return StatusUnknown
	}
	local := t.In(s.location)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return StatusClosed
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	offset := local.Sub(midnight)
	if offset >= s.opensAt && offset < s.closesAt {
		return StatusOpen
	}
	return StatusClosed
}

// FromQuotes returns the majority state reported by the quotes. It reports false
// when no quote carries a state or open and closed are tied.
func FromQuotes(quotes []sources.Quote) (Status, bool) {
	var open, closed int
	for _, q := range quotes {
		switch q.MarketState {
		case sources.MarketOpen:
			open++
		case sources.MarketClosed:
			closed++
		}
	}
	switch {
	case open > closed:
		return StatusOpen, true
	case closed > open:
		return StatusClosed, true
	default:
		return StatusUnknown, false
	}
}

// Resolve prefers what the providers report and falls back to the schedule.
func Resolve(quotes []sources.Quote, schedule *Schedule, now time.Time) Status {
	if status, ok := FromQuotes(quotes); ok {
		return status
	}
	return schedule.StatusAt(now)
}

func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSession, v)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
