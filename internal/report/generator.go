package report

import (
	"context"
	"sort"
	"time"

	"sst-bot/internal/domain"
	"sst-bot/internal/storage"
)

// Generator produces performance summaries from stored trades.
type Generator struct {
	trades storage.TradeStore
	now    func() time.Time // injectable clock for deterministic output
}

// NewGenerator creates a report generator.
func NewGenerator(trades storage.TradeStore) *Generator {
	return &Generator{
		trades: trades,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds a Summary for closed trades in [start, end].
func (g *Generator) Generate(ctx context.Context, start, end time.Time) (*Summary, error) {
	closed, err := g.trades.GetClosedInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	open, err := g.trades.GetByStatus(ctx, domain.TradeOpen)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		GeneratedAt: g.now(),
		PeriodStart: start,
		PeriodEnd:   end,
		Overall:     computeStats(closed),
	}

	s.BySetup = groupStats(closed, func(t *domain.Trade) string { return string(t.Setup) })
	s.ByInstrument = groupStats(closed, func(t *domain.Trade) string { return t.Instrument })

	s.OpenTrades = len(open)
	for _, t := range open {
		s.OpenUnrealizedPnL += t.UnrealizedPnL
	}

	return s, nil
}

// computeStats aggregates one block. Trades are assumed ordered by
// close time, which GetClosedInRange guarantees; the consecutive-loss
// streak depends on it.
func computeStats(trades []*domain.Trade) Stats {
	var st Stats
	st.Trades = len(trades)

	var grossProfit, grossLoss float64
	var streak int

	for _, t := range trades {
		pnl := t.PnL(t.ClosePrice)
		st.TotalPnL += pnl

		if pnl > 0 {
			st.Wins++
			grossProfit += pnl
			streak = 0
		} else {
			st.Losses++
			grossLoss += -pnl
			streak++
			if streak > st.MaxConsecutiveLosses {
				st.MaxConsecutiveLosses = streak
			}
		}
	}

	if st.Trades > 0 {
		st.WinRate = float64(st.Wins) / float64(st.Trades)
	}
	if st.Wins > 0 {
		st.AvgWin = grossProfit / float64(st.Wins)
	}
	if st.Losses > 0 {
		st.AvgLoss = grossLoss / float64(st.Losses)
	}
	if grossLoss > 0 {
		st.ProfitFactor = grossProfit / grossLoss
	}

	return st
}

func groupStats(trades []*domain.Trade, keyOf func(*domain.Trade) string) []GroupStats {
	byKey := make(map[string][]*domain.Trade)
	for _, t := range trades {
		k := keyOf(t)
		byKey[k] = append(byKey[k], t)
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]GroupStats, 0, len(keys))
	for _, k := range keys {
		out = append(out, GroupStats{Key: k, Stats: computeStats(byKey[k])})
	}
	return out
}
