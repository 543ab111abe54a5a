package domain

import "time"

// Candle is one OHLC bar for an instrument/timeframe.
// Detection logic only ever consumes candles with Closed == true;
// an in-progress bar can still change and must not confirm anything.
type Candle struct {
	Instrument string
	Timeframe  Timeframe
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Time       time.Time // bar open time
	Closed     bool
}

// CloseTime returns the instant the bar completed.
func (c Candle) CloseTime() time.Time {
	return c.Time.Add(c.Timeframe.Duration())
}

// Touches reports whether the bar's range reached level without the
// close passing it on the given side.
func (c Candle) Touches(level float64, fromBelow bool) bool {
	if fromBelow {
		return c.High >= level && c.Close <= level
	}
	return c.Low <= level && c.Close >= level
}
