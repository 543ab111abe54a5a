package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sst-bot/internal/domain"
)

func archiveBar(at time.Time, close float64, closed bool) domain.Candle {
	return domain.Candle{
		Instrument: "EUR_USD",
		Timeframe:  domain.TimeframeM5,
		Open:       close - 0.0002,
		High:       close + 0.0003,
		Low:        close - 0.0004,
		Close:      close,
		Time:       at,
		Closed:     closed,
	}
}

func TestCandleStore_InsertAndQuery(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(conn)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	batch := []domain.Candle{
		archiveBar(base, 1.1000, true),
		archiveBar(base.Add(5*time.Minute), 1.1005, true),
		archiveBar(base.Add(10*time.Minute), 1.1010, true),
	}
	require.NoError(t, store.InsertBatch(ctx, batch))

	got, err := store.GetByTimeRange(ctx, "EUR_USD", domain.TimeframeM5, base, base.Add(5*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 1.1000, got[0].Close)
	assert.Equal(t, 1.1005, got[1].Close)
	assert.True(t, got[0].Closed)
}

func TestCandleStore_SkipsUnclosedBars(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(conn)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	batch := []domain.Candle{
		archiveBar(base, 1.1000, true),
		archiveBar(base.Add(5*time.Minute), 1.1005, false),
	}
	require.NoError(t, store.InsertBatch(ctx, batch))

	got, err := store.GetByTimeRange(ctx, "EUR_USD", domain.TimeframeM5, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Time.Equal(base))
}

func TestCandleStore_RearchivedBarCollapses(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(conn)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	bar := archiveBar(base, 1.1000, true)
	require.NoError(t, store.InsertBatch(ctx, []domain.Candle{bar}))
	require.NoError(t, store.InsertBatch(ctx, []domain.Candle{bar}))

	// FINAL collapses the duplicate rows at read time.
	got, err := store.GetByTimeRange(ctx, "EUR_USD", domain.TimeframeM5, base, base)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
