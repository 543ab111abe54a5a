// Package lifecycle manages trades from submission through close,
// enforcing the concurrent-trade cap.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"sst-bot/internal/broker"
	"sst-bot/internal/domain"
	"sst-bot/internal/risk"
	"sst-bot/internal/storage"
)

// Lifecycle errors.
var (
	// ErrNoCapacity is returned when the concurrent-trade cap is reached.
	// The signal is discarded, never queued.
	ErrNoCapacity = errors.New("max concurrent trades reached")

	// ErrNotOpen is returned for close/modify against a trade that is
	// not currently open.
	ErrNotOpen = errors.New("trade is not open")

	// ErrInvalidModification is returned when a requested stop or target
	// sits on the wrong side of the current price.
	ErrInvalidModification = errors.New("invalid stop/target modification")
)

// ExecutionError wraps a gateway failure during order submission. The
// reserved slot has already been released; the order is not retried.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return "order execution: " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Manager owns every live trade. The concurrency slot is reserved
// before the order leaves for the gateway and released only when the
// trade closes or the submission fails, so a burst of signals can never
// overshoot the cap.
type Manager struct {
	gateway broker.Gateway
	trades  storage.TradeStore

	mu      sync.Mutex
	open    map[string]*domain.Trade // trade id -> live trade, PENDING included
	maxOpen int

	logger *log.Logger
}

// NewManager creates a Manager. maxOpen must be positive.
func NewManager(gw broker.Gateway, trades storage.TradeStore, maxOpen int, logger *log.Logger) *Manager {
	return &Manager{
		gateway: gw,
		trades:  trades,
		open:    make(map[string]*domain.Trade),
		maxOpen: maxOpen,
		logger:  logger,
	}
}

// Restore reloads OPEN trades from storage after a restart so the
// concurrency gate and monitoring pick them back up.
func (m *Manager) Restore(ctx context.Context) error {
	openTrades, err := m.trades.GetByStatus(ctx, domain.TradeOpen)
	if err != nil {
		return fmt.Errorf("restore open trades: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range openTrades {
		m.open[t.ID] = t
	}
	if len(openTrades) > 0 {
		m.log("restored %d open trades", len(openTrades))
	}
	return nil
}

// OpenCount returns the number of held slots, in-flight submissions
// included.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// OpenTrade reserves a slot and submits a market order for the sized
// signal. Returns ErrNoCapacity when all slots are held, or an
// ExecutionError when the gateway rejects the order. A failed
// submission releases the slot and is never retried: a lost response
// may still have filled broker-side, and a blind resend risks a double
// position.
func (m *Manager) OpenTrade(ctx context.Context, sig domain.SignalCandidate, sz risk.Sizing) (*domain.Trade, error) {
	trade := &domain.Trade{
		ID:         uuid.NewString(),
		SignalID:   sig.ID,
		Instrument: sig.Instrument,
		Setup:      sig.Setup,
		Direction:  sig.Direction,
		Entry:      sig.Entry,
		StopLoss:   sig.StopLoss,
		TakeProfit: sz.TakeProfit,
		Units:      sz.Units,
		Status:     domain.TradePending,
	}

	m.mu.Lock()
	if len(m.open) >= m.maxOpen {
		m.mu.Unlock()
		return nil, ErrNoCapacity
	}
	m.open[trade.ID] = trade
	m.mu.Unlock()

	if err := m.trades.Insert(ctx, trade); err != nil {
		m.release(trade.ID)
		return nil, fmt.Errorf("persist pending trade: %w", err)
	}

	fill, err := m.gateway.PlaceMarketOrder(ctx, broker.OrderRequest{
		ClientOrderID: trade.ID,
		Instrument:    sig.Instrument,
		Direction:     sig.Direction,
		Units:         sz.Units,
		StopLoss:      sig.StopLoss,
		TakeProfit:    sz.TakeProfit,
	})
	if err != nil {
		m.release(trade.ID)
		trade.Status = domain.TradeRejected
		if uerr := m.trades.Update(ctx, trade); uerr != nil {
			m.log("mark trade %s rejected: %v", trade.ID, uerr)
		}
		return nil, &ExecutionError{Err: err}
	}

	// The trade is already visible in m.open, so field writes happen
	// under the lock; the store sees a snapshot.
	m.mu.Lock()
	trade.Status = domain.TradeOpen
	trade.PositionID = fill.PositionID
	trade.Entry = fill.Price
	trade.OpenedAt = fill.Time
	cp := snapshot(trade)
	m.mu.Unlock()

	if err := m.trades.Update(ctx, cp); err != nil {
		m.log("persist open trade %s: %v", cp.ID, err)
	}

	m.log("trade opened: %s %s %s units=%d entry=%.5f sl=%.5f tp=%.5f",
		cp.Instrument, cp.Setup, cp.Direction, cp.Units,
		cp.Entry, cp.StopLoss, cp.TakeProfit)
	return cp, nil
}

// MonitorTick evaluates the instrument's open trades against a closed
// candle. When the candle's range crosses both stop and target, the
// stop wins: within one bar the order of touches is unknowable, so the
// worse outcome is recorded. Surviving trades get their unrealized PnL
// refreshed from the candle close. Returns the trades closed on this
// tick.
func (m *Manager) MonitorTick(ctx context.Context, c domain.Candle) ([]*domain.Trade, error) {
	if !c.Closed {
		return nil, nil
	}

	// All trade mutation happens under the lock; MarkPrice runs on the
	// price-feed goroutine against the same trades. Store writes use
	// snapshots taken here so no shared pointer leaves the section.
	m.mu.Lock()
	var closed, refreshed []*domain.Trade
	for _, t := range m.open {
		if t.Instrument != c.Instrument || t.Status != domain.TradeOpen {
			continue
		}

		reason, px, hit := exitHit(t, c)
		if !hit {
			t.UnrealizedPnL = t.PnL(c.Close)
			refreshed = append(refreshed, snapshot(t))
			continue
		}

		t.Status = domain.TradeClosed
		t.CloseReason = reason
		t.ClosePrice = px
		t.UnrealizedPnL = 0
		t.ClosedAt = c.CloseTime()
		delete(m.open, t.ID)
		closed = append(closed, snapshot(t))
	}
	m.mu.Unlock()

	for _, t := range refreshed {
		if err := m.trades.Update(ctx, t); err != nil {
			m.log("refresh trade %s: %v", t.ID, err)
		}
	}
	for _, t := range closed {
		if err := m.trades.Update(ctx, t); err != nil {
			m.log("persist closed trade %s: %v", t.ID, err)
		}
		m.log("trade closed: %s %s reason=%s pnl=%.2f",
			t.Instrument, t.Direction, t.CloseReason, t.PnL(t.ClosePrice))
	}
	return closed, nil
}

// exitHit checks the candle range against the trade's stop and target.
// Stop is checked first on both sides.
func exitHit(t *domain.Trade, c domain.Candle) (domain.CloseReason, float64, bool) {
	if t.Direction == domain.DirectionBuy {
		if c.Low <= t.StopLoss {
			return domain.CloseStopLoss, t.StopLoss, true
		}
		if c.High >= t.TakeProfit {
			return domain.CloseTakeProfit, t.TakeProfit, true
		}
		return "", 0, false
	}

	if c.High >= t.StopLoss {
		return domain.CloseStopLoss, t.StopLoss, true
	}
	if c.Low <= t.TakeProfit {
		return domain.CloseTakeProfit, t.TakeProfit, true
	}
	return "", 0, false
}

// CloseTrade closes an open trade at market.
func (m *Manager) CloseTrade(ctx context.Context, tradeID string) (*domain.Trade, error) {
	m.mu.Lock()
	t, ok := m.open[tradeID]
	if !ok || t.Status != domain.TradeOpen {
		m.mu.Unlock()
		return nil, ErrNotOpen
	}
	positionID := t.PositionID
	m.mu.Unlock()

	fill, err := m.gateway.ClosePosition(ctx, positionID)
	if err != nil {
		return nil, &ExecutionError{Err: err}
	}

	m.mu.Lock()
	t.Status = domain.TradeClosed
	t.CloseReason = domain.CloseManual
	t.ClosePrice = fill.Price
	t.UnrealizedPnL = 0
	t.ClosedAt = fill.Time
	delete(m.open, t.ID)
	cp := snapshot(t)
	m.mu.Unlock()

	if err := m.trades.Update(ctx, cp); err != nil {
		m.log("persist closed trade %s: %v", cp.ID, err)
	}

	m.log("trade closed manually: %s %s pnl=%.2f", cp.Instrument, cp.Direction, cp.PnL(fill.Price))
	return cp, nil
}

// ModifyTrade replaces the stop and target of an open trade. The new
// levels must sit on the correct side of the current price for the
// trade's direction.
func (m *Manager) ModifyTrade(ctx context.Context, tradeID string, stopLoss, takeProfit float64) error {
	m.mu.Lock()
	t, ok := m.open[tradeID]
	if !ok || t.Status != domain.TradeOpen {
		m.mu.Unlock()
		return ErrNotOpen
	}
	m.mu.Unlock()

	px, err := m.gateway.GetPrice(ctx, t.Instrument)
	if err != nil {
		return fmt.Errorf("current price for %s: %w", t.Instrument, err)
	}

	if t.Direction == domain.DirectionBuy {
		if stopLoss >= px || takeProfit <= px {
			return fmt.Errorf("%w: buy needs stop %.5f < price %.5f < target %.5f",
				ErrInvalidModification, stopLoss, px, takeProfit)
		}
	} else {
		if stopLoss <= px || takeProfit >= px {
			return fmt.Errorf("%w: sell needs target %.5f < price %.5f < stop %.5f",
				ErrInvalidModification, takeProfit, px, stopLoss)
		}
	}

	if err := m.gateway.ModifyPosition(ctx, t.PositionID, stopLoss, takeProfit); err != nil {
		return &ExecutionError{Err: err}
	}

	m.mu.Lock()
	t.StopLoss = stopLoss
	t.TakeProfit = takeProfit
	cp := snapshot(t)
	m.mu.Unlock()

	if err := m.trades.Update(ctx, cp); err != nil {
		m.log("persist modified trade %s: %v", cp.ID, err)
	}
	return nil
}

// MarkPrice refreshes the unrealized PnL of the instrument's open
// trades from a tick price. In-memory only: exits are decided on candle
// closes by MonitorTick, and ticks arrive far too often to persist.
func (m *Manager) MarkPrice(instrument string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.open {
		if t.Instrument == instrument && t.Status == domain.TradeOpen {
			t.UnrealizedPnL = t.PnL(price)
		}
	}
}

// OpenTrades returns a snapshot of the currently open trades.
func (m *Manager) OpenTrades() []*domain.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Trade, 0, len(m.open))
	for _, t := range m.open {
		out = append(out, snapshot(t))
	}
	return out
}

// release frees a slot.
func (m *Manager) release(tradeID string) {
	m.mu.Lock()
	delete(m.open, tradeID)
	m.mu.Unlock()
}

func (m *Manager) log(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}

func snapshot(t *domain.Trade) *domain.Trade {
	cp := *t
	return &cp
}
