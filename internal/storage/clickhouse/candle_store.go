package clickhouse

import (
	"context"
	"fmt"
	"time"

	"sst-bot/internal/domain"
)

// CandleStore archives closed candles. The table is a
// ReplacingMergeTree keyed by (instrument, timeframe, bar_time), so a
// re-archived bar collapses to one row on merge.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// InsertBatch archives a batch of candles. Unclosed bars are skipped.
func (s *CandleStore) InsertBatch(ctx context.Context, candles []domain.Candle) error {
	closed := candles[:0:0]
	for _, c := range candles {
		if c.Closed {
			closed = append(closed, c)
		}
	}
	if len(closed) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (
			instrument, timeframe, bar_time, open, high, low, close
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range closed {
		err = batch.Append(
			c.Instrument, string(c.Timeframe), c.Time,
			c.Open, c.High, c.Low, c.Close,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves archived candles within [start, end]
// (inclusive), ordered by bar time ASC.
func (s *CandleStore) GetByTimeRange(ctx context.Context, instrument string, tf domain.Timeframe, start, end time.Time) ([]domain.Candle, error) {
	query := `
		SELECT instrument, timeframe, bar_time, open, high, low, close
		FROM candles FINAL
		WHERE instrument = ? AND timeframe = ? AND bar_time >= ? AND bar_time <= ?
		ORDER BY bar_time ASC
	`

	rows, err := s.conn.Query(ctx, query, instrument, string(tf), start, end)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var out []domain.Candle
	for rows.Next() {
		var c domain.Candle
		var tfStr string
		if err := rows.Scan(&c.Instrument, &tfStr, &c.Time, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		c.Timeframe = domain.Timeframe(tfStr)
		c.Closed = true
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}
	return out, nil
}
