package domain

import "time"

// Instrument identifies a tradable symbol and its price geometry.
type Instrument struct {
	Symbol string // broker symbol, e.g. "EUR_USD", "NAS100_USD"

	// TickSize is the minimum price increment. Distance thresholds are
	// expressed in multiples of it.
	TickSize float64

	// SessionOffset shifts the daily session boundary away from midnight UTC.
	// Brokers that roll sessions at 17:00 New York use a negative offset.
	SessionOffset time.Duration
}

// SessionDate returns the session day that t belongs to, after applying
// the instrument's boundary offset.
func (i Instrument) SessionDate(t time.Time) time.Time {
	shifted := t.Add(-i.SessionOffset)
	return time.Date(shifted.Year(), shifted.Month(), shifted.Day(), 0, 0, 0, 0, time.UTC)
}

// Timeframe is a candle aggregation interval.
type Timeframe string

const (
	TimeframeM1  Timeframe = "M1"
	TimeframeM3  Timeframe = "M3"
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeH1  Timeframe = "H1"
	TimeframeD1  Timeframe = "D1"
)

// Duration returns the wall-clock length of one candle.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TimeframeM1:
		return time.Minute
	case TimeframeM3:
		return 3 * time.Minute
	case TimeframeM5:
		return 5 * time.Minute
	case TimeframeM15:
		return 15 * time.Minute
	case TimeframeH1:
		return time.Hour
	case TimeframeD1:
		return 24 * time.Hour
	default:
		return 0
	}
}
