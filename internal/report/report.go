// Package report summarizes trading performance from stored trades.
package report

import "time"

// Summary is a performance report over a closed-trade window.
type Summary struct {
	GeneratedAt time.Time
	PeriodStart time.Time
	PeriodEnd   time.Time

	Overall Stats

	// BySetup breaks performance down per setup type, sorted by setup.
	BySetup []GroupStats

	// ByInstrument breaks performance down per instrument, sorted by
	// instrument.
	ByInstrument []GroupStats

	// OpenTrades counts positions still running at generation time,
	// with their combined unrealized PnL.
	OpenTrades        int
	OpenUnrealizedPnL float64
}

// Stats is one block of performance numbers.
type Stats struct {
	Trades  int
	Wins    int
	Losses  int
	WinRate float64

	TotalPnL float64
	AvgWin   float64
	AvgLoss  float64

	// ProfitFactor is gross profit over gross loss. Zero when there are
	// no losses.
	ProfitFactor float64

	MaxConsecutiveLosses int
}

// GroupStats is Stats for one grouping key.
type GroupStats struct {
	Key string
	Stats
}
