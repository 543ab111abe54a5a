package domain

import "time"

// SwingType distinguishes local extremes.
type SwingType string

const (
	SwingHigh SwingType = "SWING_HIGH"
	SwingLow  SwingType = "SWING_LOW"
)

// SwingPoint is a local price extreme used as a confirmation trigger.
type SwingPoint struct {
	Type  SwingType
	Price float64
	Time  time.Time // open time of the candle that formed the extreme
}
