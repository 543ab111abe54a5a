package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sst-bot/internal/domain"
	"sst-bot/internal/storage"
)

func sampleSignal(id string, generatedAt time.Time) *domain.SignalCandidate {
	return &domain.SignalCandidate{
		ID:         id,
		Instrument: "EUR_USD",
		Setup:      domain.SetupBOS,
		Direction:  domain.DirectionBuy,
		Entry:      1.1006,
		StopLoss:   1.0980,
		LevelID:    "lvl-high",
		LevelPrice: 1.1000,
		Swing: domain.SwingPoint{
			Type:  domain.SwingHigh,
			Price: 1.1004,
			Time:  generatedAt.Add(-10 * time.Minute),
		},
		GeneratedAt: generatedAt,
	}
}

func TestSignalStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSignalStore(pool)

	at := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	sig := sampleSignal("s1", at)
	require.NoError(t, store.Insert(ctx, sig))

	got, err := store.GetByID(ctx, "s1")
	require.NoError(t, err)

	assert.Equal(t, sig.Instrument, got.Instrument)
	assert.Equal(t, sig.Setup, got.Setup)
	assert.Equal(t, sig.LevelID, got.LevelID)
	assert.Equal(t, sig.Swing.Price, got.Swing.Price)
	assert.True(t, got.GeneratedAt.Equal(at))
}

func TestSignalStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSignalStore(pool)

	at := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, sampleSignal("s1", at)))
	assert.ErrorIs(t, store.Insert(ctx, sampleSignal("s1", at)), storage.ErrDuplicateKey)
}

func TestSignalStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSignalStore(pool)

	_, err := store.GetByID(ctx, "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSignalStore_GetSince(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSignalStore(pool)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, sampleSignal("s1", base)))
	require.NoError(t, store.Insert(ctx, sampleSignal("s2", base.Add(20*time.Minute))))
	require.NoError(t, store.Insert(ctx, sampleSignal("s3", base.Add(40*time.Minute))))

	got, err := store.GetSince(ctx, base.Add(20*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s2", got[0].ID)
	assert.Equal(t, "s3", got[1].ID)
}
