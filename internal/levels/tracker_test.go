package levels

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sst-bot/internal/domain"
)

var eurusd = domain.Instrument{Symbol: "EUR_USD", TickSize: 0.0001}

func sessionCandles(tf domain.Timeframe, prices ...[4]float64) []domain.Candle {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Candle, 0, len(prices))
	for i, p := range prices {
		out = append(out, domain.Candle{
			Instrument: "EUR_USD",
			Timeframe:  tf,
			Open:       p[0], High: p[1], Low: p[2], Close: p[3],
			Time:   start.Add(time.Duration(i) * tf.Duration()),
			Closed: true,
		})
	}
	return out
}

func TestRollover_ComputesHighLow(t *testing.T) {
	tr := NewTracker(0, nil)
	day := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	prior := sessionCandles(domain.TimeframeM5,
		[4]float64{1.1000, 1.1020, 1.0990, 1.1010},
		[4]float64{1.1010, 1.1055, 1.1005, 1.1040},
		[4]float64{1.1040, 1.1045, 1.0960, 1.0975},
	)

	sl := tr.Rollover(eurusd, day, prior)
	require.NotNil(t, sl)
	assert.Equal(t, 1.1055, sl.High.Price)
	assert.Equal(t, 1.0960, sl.Low.Price)
	assert.Equal(t, domain.RoleResistance, sl.High.Role)
	assert.Equal(t, domain.RoleSupport, sl.Low.Role)
	assert.False(t, sl.Stale)

	got, err := tr.Levels("EUR_USD")
	require.NoError(t, err)
	assert.Equal(t, sl.High.ID, got.High.ID)
}

func TestRollover_OncePerSessionBoundary(t *testing.T) {
	tr := NewTracker(0, nil)
	day := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	first := tr.Rollover(eurusd, day, sessionCandles(domain.TimeframeM5,
		[4]float64{1.10, 1.11, 1.09, 1.10}))

	// Same session date again, with different candles: must be a no-op.
	second := tr.Rollover(eurusd, day, sessionCandles(domain.TimeframeM5,
		[4]float64{2.10, 2.11, 2.09, 2.10}))

	assert.Equal(t, first.High.Price, second.High.Price)
	assert.Equal(t, first.High.ID, second.High.ID)
}

func TestRollover_EmptySessionCarriesForwardStale(t *testing.T) {
	tr := NewTracker(0, nil)
	day1 := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	first := tr.Rollover(eurusd, day1, sessionCandles(domain.TimeframeM5,
		[4]float64{1.10, 1.12, 1.08, 1.10}))

	// Holiday: no prior candles. Levels carry forward, marked stale.
	sl := tr.Rollover(eurusd, day2, nil)
	assert.True(t, sl.Stale)
	assert.Equal(t, 1.12, sl.High.Price)
	assert.Equal(t, 1.08, sl.Low.Price)

	// Carried levels get fresh IDs for the new session.
	assert.NotEqual(t, first.High.ID, sl.High.ID)

	_, err := tr.Levels("EUR_USD")
	assert.ErrorIs(t, err, ErrLevelsStale)
}

func TestRollover_IncompleteSessionBelowMinimum(t *testing.T) {
	tr := NewTracker(10, nil)
	day := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	sl := tr.Rollover(eurusd, day, sessionCandles(domain.TimeframeM5,
		[4]float64{1.10, 1.12, 1.08, 1.10},
		[4]float64{1.10, 1.11, 1.09, 1.10}))

	assert.True(t, sl.Stale)
}

func TestRollover_IgnoresUnclosedCandles(t *testing.T) {
	tr := NewTracker(0, nil)
	day := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	prior := sessionCandles(domain.TimeframeM5,
		[4]float64{1.10, 1.11, 1.09, 1.10})
	open := domain.Candle{Instrument: "EUR_USD", High: 9.99, Low: 0.01, Closed: false}

	sl := tr.Rollover(eurusd, day, append(prior, open))
	assert.Equal(t, 1.11, sl.High.Price)
	assert.Equal(t, 1.09, sl.Low.Price)
}

func TestLevels_MissingInstrument(t *testing.T) {
	tr := NewTracker(0, nil)
	_, err := tr.Levels("USD_JPY")
	assert.True(t, errors.Is(err, ErrLevelsStale))
}

func TestApplyClose_FlipsPolarityOnCloseBeyond(t *testing.T) {
	tr := NewTracker(0, nil)
	day := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	tr.Rollover(eurusd, day, sessionCandles(domain.TimeframeM5,
		[4]float64{1.10, 1.12, 1.08, 1.10}))

	// Wick through the high without a close beyond: no flip.
	flipped := tr.ApplyClose("EUR_USD", domain.Candle{High: 1.13, Low: 1.11, Close: 1.115, Closed: true})
	assert.Empty(t, flipped)

	// Unclosed candle beyond the high: no flip.
	flipped = tr.ApplyClose("EUR_USD", domain.Candle{High: 1.14, Low: 1.12, Close: 1.13, Closed: false})
	assert.Empty(t, flipped)

	// Close beyond the high: former resistance becomes support.
	flipped = tr.ApplyClose("EUR_USD", domain.Candle{High: 1.14, Low: 1.12, Close: 1.13, Closed: true})
	require.Equal(t, []domain.LevelSide{domain.LevelHigh}, flipped)

	got, err := tr.Levels("EUR_USD")
	require.NoError(t, err)
	assert.True(t, got.High.Broken)
	assert.Equal(t, domain.RoleSupport, got.High.Role)

	// Already broken: no second flip.
	flipped = tr.ApplyClose("EUR_USD", domain.Candle{High: 1.15, Low: 1.13, Close: 1.14, Closed: true})
	assert.Empty(t, flipped)
}
