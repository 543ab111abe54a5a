// Package broker defines the surface the engine needs from a
// market-execution backend, plus a retrying read wrapper and an
// in-memory paper implementation for tests and dry runs.
package broker

import (
	"context"
	"errors"
	"time"

	"sst-bot/internal/domain"
)

// OrderRequest is a market order with stop and target attached
// atomically at the broker.
type OrderRequest struct {
	// ClientOrderID is caller-generated and stable, so a submission
	// whose response was lost can be reconciled instead of re-sent.
	ClientOrderID string

	Instrument string
	Direction  domain.Direction
	Units      int
	StopLoss   float64
	TakeProfit float64
}

// Fill confirms an executed order.
type Fill struct {
	PositionID string
	Price      float64
	Time       time.Time
}

// Gateway is the broker collaborator. Implementations are expected to
// be safe for concurrent use across instruments.
type Gateway interface {
	// GetClosedCandles returns candles at or after since, ordered by
	// bar time ascending. The newest bar may be unclosed.
	GetClosedCandles(ctx context.Context, instrument string, tf domain.Timeframe, since time.Time) ([]domain.Candle, error)

	// PlaceMarketOrder submits a market order with stop and target.
	// Never retried by callers: a lost response risks a double fill.
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (*Fill, error)

	// GetPrice returns the current tradable price.
	GetPrice(ctx context.Context, instrument string) (float64, error)

	// ClosePosition closes an open position at market.
	ClosePosition(ctx context.Context, positionID string) (*Fill, error)

	// ModifyPosition replaces the stop/target of an open position.
	ModifyPosition(ctx context.Context, positionID string, stopLoss, takeProfit float64) error

	// GetAccountBalance returns the current account balance.
	GetAccountBalance(ctx context.Context) (float64, error)
}

// TransientError wraps a failure that is safe to retry for read
// operations: timeouts, dropped connections, throttling.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient gateway error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable for reads.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
