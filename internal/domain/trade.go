package domain

import "time"

// TradeStatus is the lifecycle state of a trade.
type TradeStatus string

const (
	// TradePending is reserved-but-unconfirmed: a concurrency slot is
	// held while the order is in flight at the gateway.
	TradePending TradeStatus = "PENDING"

	TradeOpen     TradeStatus = "OPEN"
	TradeClosed   TradeStatus = "CLOSED"
	TradeRejected TradeStatus = "REJECTED"
)

// CloseReason records why a trade left OPEN.
type CloseReason string

const (
	CloseTakeProfit CloseReason = "TP"
	CloseStopLoss   CloseReason = "SL"
	CloseManual     CloseReason = "MANUAL"
)

// Trade is one position managed by the lifecycle manager.
// A trade that reaches OPEN always has a non-zero stop and target,
// set atomically with the fill.
type Trade struct {
	ID         string
	SignalID   string
	PositionID string // broker-side id, set when the order fills
	Instrument string
	Setup      SetupType
	Direction  Direction

	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Units      int // position size in instrument units

	Status      TradeStatus
	CloseReason CloseReason // set only when Status == CLOSED
	ClosePrice  float64

	// UnrealizedPnL is refreshed on monitor ticks while OPEN.
	UnrealizedPnL float64

	OpenedAt time.Time
	ClosedAt time.Time
}

// PnL returns the realized profit for a closed trade at price px.
func (t Trade) PnL(px float64) float64 {
	if t.Direction == DirectionBuy {
		return (px - t.Entry) * float64(t.Units)
	}
	return (t.Entry - px) * float64(t.Units)
}
