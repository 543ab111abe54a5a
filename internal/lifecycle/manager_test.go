package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sst-bot/internal/broker"
	"sst-bot/internal/domain"
	"sst-bot/internal/risk"
	"sst-bot/internal/storage/memory"
)

func testSignal(n int) domain.SignalCandidate {
	return domain.SignalCandidate{
		ID:          fmt.Sprintf("sig%d", n),
		Instrument:  "EUR_USD",
		Setup:       domain.SetupBOS,
		Direction:   domain.DirectionBuy,
		Entry:       1.1000,
		StopLoss:    1.0950,
		GeneratedAt: time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
	}
}

func testSizing() risk.Sizing {
	return risk.Sizing{Units: 10000, StopDistance: 0.0050, TakeProfit: 1.1200}
}

func bar(high, low, close float64) domain.Candle {
	return domain.Candle{
		Instrument: "EUR_USD",
		Timeframe:  domain.TimeframeM5,
		Open:       close,
		High:       high,
		Low:        low,
		Close:      close,
		Time:       time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC),
		Closed:     true,
	}
}

func newTestManager(t *testing.T, maxOpen int) (*Manager, *broker.PaperGateway, *memory.TradeStore) {
	t.Helper()
	gw := broker.NewPaperGateway(10_000)
	gw.SetPrice("EUR_USD", 1.1000)
	store := memory.NewTradeStore()
	return NewManager(gw, store, maxOpen, nil), gw, store
}

func TestOpenTrade_FillsAndPersists(t *testing.T) {
	m, _, store := newTestManager(t, 3)

	trade, err := m.OpenTrade(context.Background(), testSignal(1), testSizing())
	require.NoError(t, err)

	assert.Equal(t, domain.TradeOpen, trade.Status)
	assert.NotEmpty(t, trade.PositionID)
	assert.Equal(t, 1.1000, trade.Entry)
	assert.Equal(t, 1.0950, trade.StopLoss)
	assert.Equal(t, 1.1200, trade.TakeProfit)
	assert.Equal(t, 1, m.OpenCount())

	persisted, err := store.GetByID(context.Background(), trade.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeOpen, persisted.Status)
}

func TestOpenTrade_CapDiscardsExcessSignal(t *testing.T) {
	m, _, _ := newTestManager(t, 3)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := m.OpenTrade(ctx, testSignal(i), testSizing())
		require.NoError(t, err)
	}

	_, err := m.OpenTrade(ctx, testSignal(4), testSizing())
	assert.ErrorIs(t, err, ErrNoCapacity)
	assert.Equal(t, 3, m.OpenCount())
}

func TestOpenTrade_FailedSubmissionReleasesSlot(t *testing.T) {
	m, gw, store := newTestManager(t, 1)
	ctx := context.Background()

	gw.FailNextOrder(errors.New("insufficient margin"))

	_, err := m.OpenTrade(ctx, testSignal(1), testSizing())
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 0, m.OpenCount())

	rejected, err := store.GetByStatus(ctx, domain.TradeRejected)
	require.NoError(t, err)
	require.Len(t, rejected, 1)

	// The freed slot admits the next signal.
	trade, err := m.OpenTrade(ctx, testSignal(2), testSizing())
	require.NoError(t, err)
	assert.Equal(t, domain.TradeOpen, trade.Status)
}

func TestMonitorTick_StopWinsWhenBarCrossesBoth(t *testing.T) {
	m, _, _ := newTestManager(t, 3)
	ctx := context.Background()

	trade, err := m.OpenTrade(ctx, testSignal(1), testSizing())
	require.NoError(t, err)

	// One bar spans both the stop (1.0950) and the target (1.1200).
	closed, err := m.MonitorTick(ctx, bar(1.1250, 1.0900, 1.1100))
	require.NoError(t, err)
	require.Len(t, closed, 1)

	got := closed[0]
	assert.Equal(t, trade.ID, got.ID)
	assert.Equal(t, domain.CloseStopLoss, got.CloseReason)
	assert.Equal(t, 1.0950, got.ClosePrice)
	assert.Equal(t, 0, m.OpenCount())
}

func TestMonitorTick_TakeProfit(t *testing.T) {
	m, _, store := newTestManager(t, 3)
	ctx := context.Background()

	trade, err := m.OpenTrade(ctx, testSignal(1), testSizing())
	require.NoError(t, err)

	closed, err := m.MonitorTick(ctx, bar(1.1210, 1.1100, 1.1150))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, domain.CloseTakeProfit, closed[0].CloseReason)
	assert.Equal(t, 1.1200, closed[0].ClosePrice)

	persisted, err := store.GetByID(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeClosed, persisted.Status)
	assert.False(t, persisted.ClosedAt.IsZero())
}

func TestMonitorTick_RefreshesUnrealizedPnL(t *testing.T) {
	m, _, store := newTestManager(t, 3)
	ctx := context.Background()

	trade, err := m.OpenTrade(ctx, testSignal(1), testSizing())
	require.NoError(t, err)

	closed, err := m.MonitorTick(ctx, bar(1.1120, 1.1000, 1.1100))
	require.NoError(t, err)
	assert.Empty(t, closed)
	assert.Equal(t, 1, m.OpenCount())

	persisted, err := store.GetByID(ctx, trade.ID)
	require.NoError(t, err)
	assert.InDelta(t, (1.1100-1.1000)*10000, persisted.UnrealizedPnL, 1e-6)
}

func TestMonitorTick_FreedSlotAdmitsNextSignal(t *testing.T) {
	m, _, _ := newTestManager(t, 1)
	ctx := context.Background()

	_, err := m.OpenTrade(ctx, testSignal(1), testSizing())
	require.NoError(t, err)

	_, err = m.OpenTrade(ctx, testSignal(2), testSizing())
	assert.ErrorIs(t, err, ErrNoCapacity)

	closed, err := m.MonitorTick(ctx, bar(1.1000, 1.0900, 1.0960))
	require.NoError(t, err)
	require.Len(t, closed, 1)

	_, err = m.OpenTrade(ctx, testSignal(3), testSizing())
	require.NoError(t, err)
}

func TestMonitorTick_IgnoresUnclosedCandle(t *testing.T) {
	m, _, _ := newTestManager(t, 3)
	ctx := context.Background()

	_, err := m.OpenTrade(ctx, testSignal(1), testSizing())
	require.NoError(t, err)

	c := bar(1.1250, 1.0900, 1.1100)
	c.Closed = false

	closed, err := m.MonitorTick(ctx, c)
	require.NoError(t, err)
	assert.Empty(t, closed)
	assert.Equal(t, 1, m.OpenCount())
}

func TestMonitorTick_SellSideExits(t *testing.T) {
	m, gw, _ := newTestManager(t, 3)
	ctx := context.Background()

	gw.SetPrice("EUR_USD", 1.0930)
	sig := testSignal(1)
	sig.Direction = domain.DirectionSell
	sig.Entry = 1.0930
	sig.StopLoss = 1.0960
	sz := risk.Sizing{Units: 10000, StopDistance: 0.0030, TakeProfit: 1.0810}

	_, err := m.OpenTrade(ctx, sig, sz)
	require.NoError(t, err)

	// Bar spans the sell stop and target; stop is recorded.
	closed, err := m.MonitorTick(ctx, bar(1.0970, 1.0800, 1.0900))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, domain.CloseStopLoss, closed[0].CloseReason)
	assert.Equal(t, 1.0960, closed[0].ClosePrice)
}

func TestMonitorTick_ConcurrentWithMarkPrice(t *testing.T) {
	m, _, _ := newTestManager(t, 3)
	ctx := context.Background()

	trade, err := m.OpenTrade(ctx, testSignal(1), testSizing())
	require.NoError(t, err)

	// Monitoring on the candle loop and tick marks from the price feed
	// touch the same open trade; run both hot under -race.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, _ = m.MonitorTick(ctx, bar(1.1120, 1.1000, 1.1100))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			m.MarkPrice("EUR_USD", 1.1050)
		}
	}()
	wg.Wait()

	assert.Equal(t, 1, m.OpenCount())
	open := m.OpenTrades()
	require.Len(t, open, 1)
	assert.Equal(t, trade.ID, open[0].ID)
	assert.Equal(t, domain.TradeOpen, open[0].Status)
}

func TestCloseTrade_Manual(t *testing.T) {
	m, gw, store := newTestManager(t, 3)
	ctx := context.Background()

	trade, err := m.OpenTrade(ctx, testSignal(1), testSizing())
	require.NoError(t, err)

	gw.SetPrice("EUR_USD", 1.1050)
	closed, err := m.CloseTrade(ctx, trade.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.CloseManual, closed.CloseReason)
	assert.Equal(t, 1.1050, closed.ClosePrice)
	assert.Equal(t, 0, m.OpenCount())
	assert.Empty(t, gw.OpenPositions())

	persisted, err := store.GetByID(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeClosed, persisted.Status)
}

func TestCloseTrade_UnknownTrade(t *testing.T) {
	m, _, _ := newTestManager(t, 3)

	_, err := m.CloseTrade(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestModifyTrade_RejectsWrongSideLevels(t *testing.T) {
	m, _, _ := newTestManager(t, 3)
	ctx := context.Background()

	trade, err := m.OpenTrade(ctx, testSignal(1), testSizing())
	require.NoError(t, err)

	// Buy trade: stop above current price is nonsense.
	err = m.ModifyTrade(ctx, trade.ID, 1.1100, 1.1300)
	assert.ErrorIs(t, err, ErrInvalidModification)

	// Target below current price too.
	err = m.ModifyTrade(ctx, trade.ID, 1.0900, 1.0950)
	assert.ErrorIs(t, err, ErrInvalidModification)
}

func TestModifyTrade_UpdatesStopAndTarget(t *testing.T) {
	m, _, store := newTestManager(t, 3)
	ctx := context.Background()

	trade, err := m.OpenTrade(ctx, testSignal(1), testSizing())
	require.NoError(t, err)

	err = m.ModifyTrade(ctx, trade.ID, 1.0980, 1.1150)
	require.NoError(t, err)

	persisted, err := store.GetByID(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0980, persisted.StopLoss)
	assert.Equal(t, 1.1150, persisted.TakeProfit)

	// Subsequent monitoring uses the new levels.
	closed, err := m.MonitorTick(ctx, bar(1.1160, 1.1100, 1.1120))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, domain.CloseTakeProfit, closed[0].CloseReason)
}

func TestRestore_ReloadsOpenTrades(t *testing.T) {
	gw := broker.NewPaperGateway(10_000)
	gw.SetPrice("EUR_USD", 1.1000)
	store := memory.NewTradeStore()

	first := NewManager(gw, store, 1, nil)
	trade, err := first.OpenTrade(context.Background(), testSignal(1), testSizing())
	require.NoError(t, err)

	// A fresh manager over the same store picks the trade back up.
	second := NewManager(gw, store, 1, nil)
	require.NoError(t, second.Restore(context.Background()))
	assert.Equal(t, 1, second.OpenCount())

	_, err = second.OpenTrade(context.Background(), testSignal(2), testSizing())
	assert.ErrorIs(t, err, ErrNoCapacity)

	closed, err := second.MonitorTick(context.Background(), bar(1.1000, 1.0900, 1.0960))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, trade.ID, closed[0].ID)
}
