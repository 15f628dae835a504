package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

func newYork(t *testing.T) *Schedule {
	t.Helper()
	s, err := NewSchedule(DefaultTimezone, DefaultOpen, DefaultClose)
	if err != nil {
		t.Skip("tz database not available")
	}
	return s
}

func TestSchedule_StatusAt(t *testing.T) {
	s := newYork(t)

	tests := []struct {
		name string
		at   time.Time
		want Status
	}{
		// January: EST, UTC-5.
		{"before open", time.Date(2024, 1, 5, 14, 29, 0, 0, time.UTC), StatusClosed},
		{"at open", time.Date(2024, 1, 5, 14, 30, 0, 0, time.UTC), StatusOpen},
		{"midday", time.Date(2024, 1, 5, 18, 0, 0, 0, time.UTC), StatusOpen},
		{"at close", time.Date(2024, 1, 5, 21, 0, 0, 0, time.UTC), StatusClosed},
		{"saturday", time.Date(2024, 1, 6, 18, 0, 0, 0, time.UTC), StatusClosed},
		{"sunday", time.Date(2024, 1, 7, 18, 0, 0, 0, time.UTC), StatusClosed},
		// July: EDT, UTC-4.
		{"summer open", time.Date(2024, 7, 10, 13, 30, 0, 0, time.UTC), StatusOpen},
		{"summer pre-market", time.Date(2024, 7, 10, 13, 29, 0, 0, time.UTC), StatusClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.StatusAt(tt.at))
		})
	}
}

func TestNewSchedule_Errors(t *testing.T) {
	_, err := NewSchedule("Mars/Olympus_Mons", DefaultOpen, DefaultClose)
	assert.ErrorIs(t, err, ErrUnknownTimezone)

	_, err = NewSchedule("UTC", "9am", DefaultClose)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = NewSchedule("UTC", "16:00", "09:30")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSchedule_WithoutLocation(t *testing.T) {
	var nilSchedule *Schedule
	assert.Equal(t, StatusUnknown, nilSchedule.StatusAt(time.Now()))
	assert.Equal(t, StatusUnknown, (&Schedule{}).StatusAt(time.Now()))
}

func quoteWithState(state sources.MarketState) sources.Quote {
	return sources.Quote{Source: string(state), Price: decimal.NewFromInt(1), MarketState: state}
}

func TestFromQuotes(t *testing.T) {
	status, ok := FromQuotes(nil)
	assert.False(t, ok)
	assert.Equal(t, StatusUnknown, status)

	status, ok = FromQuotes([]sources.Quote{quoteWithState(sources.MarketUnknown)})
	assert.False(t, ok)
	assert.Equal(t, StatusUnknown, status)

	status, ok = FromQuotes([]sources.Quote{
		quoteWithState(sources.MarketOpen),
		quoteWithState(sources.MarketOpen),
		quoteWithState(sources.MarketClosed),
	})
	require.True(t, ok)
	assert.Equal(t, StatusOpen, status)

	_, ok = FromQuotes([]sources.Quote{quoteWithState(sources.MarketOpen), quoteWithState(sources.MarketClosed)})
	assert.False(t, ok, "a tie is not a majority")
}

func TestResolve(t *testing.T) {
	s := newYork(t)
	saturday := time.Date(2024, 1, 6, 18, 0, 0, 0, time.UTC)

	assert.Equal(t, StatusOpen, Resolve([]sources.Quote{quoteWithState(sources.MarketOpen)}, s, saturday),
		"provider state wins over the schedule")
	assert.Equal(t, StatusClosed, Resolve([]sources.Quote{quoteWithState(sources.MarketUnknown)}, s, saturday))
	assert.Equal(t, StatusUnknown, Resolve(nil, nil, saturday))
}
