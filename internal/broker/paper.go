package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sst-bot/internal/domain"
)

// PaperGateway is an in-memory Gateway for tests and dry runs: no
// external calls, fills at the posted price.
type PaperGateway struct {
	mu        sync.Mutex
	balance   float64
	prices    map[string]float64
	candles   map[string][]domain.Candle
	positions map[string]OrderRequest
	orders    map[string]string // client order id -> position id

	failNextOrder error
	failNextRead  error
}

// NewPaperGateway creates a PaperGateway with a starting balance.
func NewPaperGateway(balance float64) *PaperGateway {
	return &PaperGateway{
		balance:   balance,
		prices:    make(map[string]float64),
		candles:   make(map[string][]domain.Candle),
		positions: make(map[string]OrderRequest),
		orders:    make(map[string]string),
	}
}

// SetPrice posts the current price for an instrument.
func (g *PaperGateway) SetPrice(instrument string, px float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[instrument] = px
}

// PushCandles appends candles served by subsequent GetClosedCandles calls.
func (g *PaperGateway) PushCandles(instrument string, cs ...domain.Candle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.candles[instrument] = append(g.candles[instrument], cs...)
}

// FailNextOrder makes the next PlaceMarketOrder return err.
func (g *PaperGateway) FailNextOrder(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNextOrder = err
}

// FailNextRead makes the next read call return err.
func (g *PaperGateway) FailNextRead(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNextRead = err
}

// OpenPositions returns the ids of positions not yet closed.
func (g *PaperGateway) OpenPositions() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.positions))
	for id := range g.positions {
		out = append(out, id)
	}
	return out
}

// GetClosedCandles serves pushed candles at or after since.
func (g *PaperGateway) GetClosedCandles(_ context.Context, instrument string, tf domain.Timeframe, since time.Time) ([]domain.Candle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeReadFailure(); err != nil {
		return nil, err
	}

	var out []domain.Candle
	for _, c := range g.candles[instrument] {
		if c.Timeframe == tf && !c.Time.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

// PlaceMarketOrder fills at the posted price. A repeated client order
// id returns the original fill instead of opening a second position.
func (g *PaperGateway) PlaceMarketOrder(_ context.Context, req OrderRequest) (*Fill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failNextOrder != nil {
		err := g.failNextOrder
		g.failNextOrder = nil
		return nil, err
	}

	if req.ClientOrderID != "" {
		if posID, ok := g.orders[req.ClientOrderID]; ok {
			return &Fill{PositionID: posID, Price: g.prices[req.Instrument], Time: time.Now().UTC()}, nil
		}
	}

	px, ok := g.prices[req.Instrument]
	if !ok {
		return nil, fmt.Errorf("no price posted for %s", req.Instrument)
	}

	posID := uuid.NewString()
	g.positions[posID] = req
	if req.ClientOrderID != "" {
		g.orders[req.ClientOrderID] = posID
	}
	return &Fill{PositionID: posID, Price: px, Time: time.Now().UTC()}, nil
}

// GetPrice returns the posted price.
func (g *PaperGateway) GetPrice(_ context.Context, instrument string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeReadFailure(); err != nil {
		return 0, err
	}

	px, ok := g.prices[instrument]
	if !ok {
		return 0, fmt.Errorf("no price posted for %s", instrument)
	}
	return px, nil
}

// ClosePosition removes the position and fills at the posted price.
func (g *PaperGateway) ClosePosition(_ context.Context, positionID string) (*Fill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.positions[positionID]
	if !ok {
		return nil, errors.New("unknown position " + positionID)
	}
	delete(g.positions, positionID)
	return &Fill{PositionID: positionID, Price: g.prices[req.Instrument], Time: time.Now().UTC()}, nil
}

// ModifyPosition replaces stop and target on an open position.
func (g *PaperGateway) ModifyPosition(_ context.Context, positionID string, stopLoss, takeProfit float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.positions[positionID]
	if !ok {
		return errors.New("unknown position " + positionID)
	}
	req.StopLoss = stopLoss
	req.TakeProfit = takeProfit
	g.positions[positionID] = req
	return nil
}

// GetAccountBalance returns the configured balance.
func (g *PaperGateway) GetAccountBalance(_ context.Context) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeReadFailure(); err != nil {
		return 0, err
	}
	return g.balance, nil
}

// takeReadFailure consumes a queued read failure. Caller holds the lock.
func (g *PaperGateway) takeReadFailure() error {
	if g.failNextRead != nil {
		err := g.failNextRead
		g.failNextRead = nil
		return err
	}
	return nil
}

var _ Gateway = (*PaperGateway)(nil)
