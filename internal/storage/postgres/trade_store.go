package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"sst-bot/internal/domain"
	"sst-bot/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	trade_id, signal_id, position_id, instrument, setup, direction,
	entry, stop_loss, take_profit, units,
	status, close_reason, close_price, unrealized_pnl,
	opened_at, closed_at
`

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (` + tradeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.SignalID, t.PositionID, t.Instrument, t.Setup, t.Direction,
		t.Entry, t.StopLoss, t.TakeProfit, t.Units,
		t.Status, t.CloseReason, t.ClosePrice, t.UnrealizedPnL,
		t.OpenedAt, t.ClosedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// Update rewrites an existing trade. Returns ErrNotFound if not exists.
func (s *TradeStore) Update(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE trades SET
			signal_id = $2, position_id = $3, instrument = $4, setup = $5, direction = $6,
			entry = $7, stop_loss = $8, take_profit = $9, units = $10,
			status = $11, close_reason = $12, close_price = $13, unrealized_pnl = $14,
			opened_at = $15, closed_at = $16
		WHERE trade_id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		t.ID, t.SignalID, t.PositionID, t.Instrument, t.Setup, t.Direction,
		t.Entry, t.StopLoss, t.TakeProfit, t.Units,
		t.Status, t.CloseReason, t.ClosePrice, t.UnrealizedPnL,
		t.OpenedAt, t.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("update trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE trade_id = $1`

	row := s.pool.QueryRow(ctx, query, tradeID)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return t, nil
}

// GetByStatus retrieves all trades in the given status, ordered by
// opened_at ASC.
func (s *TradeStore) GetByStatus(ctx context.Context, status domain.TradeStatus) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE status = $1
		ORDER BY opened_at ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("get trades by status: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByInstrument retrieves all trades for an instrument, ordered by
// opened_at ASC.
func (s *TradeStore) GetByInstrument(ctx context.Context, instrument string) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE instrument = $1
		ORDER BY opened_at ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, instrument)
	if err != nil {
		return nil, fmt.Errorf("get trades by instrument: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetClosedInRange retrieves closed trades with closed_at within
// [start, end] (inclusive), ordered by closed_at ASC.
func (s *TradeStore) GetClosedInRange(ctx context.Context, start, end time.Time) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE status = $1 AND closed_at >= $2 AND closed_at <= $3
		ORDER BY closed_at ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, domain.TradeClosed, start, end)
	if err != nil {
		return nil, fmt.Errorf("get closed trades in range: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade
	err := row.Scan(
		&t.ID, &t.SignalID, &t.PositionID, &t.Instrument, &t.Setup, &t.Direction,
		&t.Entry, &t.StopLoss, &t.TakeProfit, &t.Units,
		&t.Status, &t.CloseReason, &t.ClosePrice, &t.UnrealizedPnL,
		&t.OpenedAt, &t.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return trades, nil
}
