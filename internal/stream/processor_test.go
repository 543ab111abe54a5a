package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sst-bot/internal/domain"
)

func bar(minuteOffset int, closed bool) domain.Candle {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return domain.Candle{
		Instrument: "EUR_USD",
		Timeframe:  domain.TimeframeM5,
		Close:      1.1,
		Time:       start.Add(time.Duration(minuteOffset) * time.Minute),
		Closed:     closed,
	}
}

func TestAdvance_DropsUnclosedCandles(t *testing.T) {
	p := NewProcessor()

	out := p.Advance([]domain.Candle{bar(0, true), bar(5, true), bar(10, false)})
	assert.Len(t, out, 2)
	for _, c := range out {
		assert.True(t, c.Closed)
	}
}

func TestAdvance_DeliversEachBarOnce(t *testing.T) {
	p := NewProcessor()

	first := p.Advance([]domain.Candle{bar(0, true), bar(5, true)})
	assert.Len(t, first, 2)

	// The gateway re-serves overlapping history on the next poll.
	second := p.Advance([]domain.Candle{bar(0, true), bar(5, true), bar(10, true)})
	assert.Len(t, second, 1)
	assert.Equal(t, bar(10, true).Time, second[0].Time)

	// Nothing new: nothing delivered.
	assert.Empty(t, p.Advance([]domain.Candle{bar(10, true)}))
}

func TestAdvance_DropsOutOfOrderBars(t *testing.T) {
	p := NewProcessor()

	p.Advance([]domain.Candle{bar(10, true)})
	assert.Empty(t, p.Advance([]domain.Candle{bar(5, true)}))
}

func TestAdvance_TracksStreamsIndependently(t *testing.T) {
	p := NewProcessor()

	jpy := bar(0, true)
	jpy.Instrument = "USD_JPY"

	out := p.Advance([]domain.Candle{bar(0, true), jpy})
	assert.Len(t, out, 2)
	assert.Equal(t, bar(0, true).Time, p.LastDelivered("EUR_USD", domain.TimeframeM5))
	assert.Equal(t, bar(0, true).Time, p.LastDelivered("USD_JPY", domain.TimeframeM5))
	assert.True(t, p.LastDelivered("EUR_USD", domain.TimeframeM1).IsZero())
}

func TestAdvance_UnclosedBarDoesNotAdvanceCursor(t *testing.T) {
	p := NewProcessor()

	p.Advance([]domain.Candle{bar(0, false)})
	// The same bar arrives closed on a later poll and must be delivered.
	out := p.Advance([]domain.Candle{bar(0, true)})
	assert.Len(t, out, 1)
}
