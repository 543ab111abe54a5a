package news

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var nfp = Event{
	Currency: "USD",
	Title:    "Non-Farm Payrolls",
	Impact:   ImpactHigh,
	Time:     time.Date(2025, 3, 7, 13, 30, 0, 0, time.UTC),
}

func TestCalendar_BlocksInsideWindow(t *testing.T) {
	cal := NewCalendar(DefaultConfig(), []Event{nfp}, nil)

	assert.True(t, cal.Blocked("EUR_USD", nfp.Time))
	assert.True(t, cal.Blocked("EUR_USD", nfp.Time.Add(-30*time.Minute)))
	assert.True(t, cal.Blocked("EUR_USD", nfp.Time.Add(30*time.Minute)))
}

func TestCalendar_FreeOutsideWindow(t *testing.T) {
	cal := NewCalendar(DefaultConfig(), []Event{nfp}, nil)

	assert.False(t, cal.Blocked("EUR_USD", nfp.Time.Add(-31*time.Minute)))
	assert.False(t, cal.Blocked("EUR_USD", nfp.Time.Add(31*time.Minute)))
}

func TestCalendar_MatchesEitherLeg(t *testing.T) {
	cal := NewCalendar(DefaultConfig(), []Event{nfp}, nil)

	// USD is the quote leg of EUR_USD and the base leg of USD_JPY.
	assert.True(t, cal.Blocked("USD_JPY", nfp.Time))
	assert.False(t, cal.Blocked("EUR_GBP", nfp.Time))
}

func TestCalendar_ImpactThreshold(t *testing.T) {
	medium := nfp
	medium.Impact = ImpactMedium

	cal := NewCalendar(DefaultConfig(), []Event{medium}, nil)
	assert.False(t, cal.Blocked("EUR_USD", medium.Time))

	cfg := DefaultConfig()
	cfg.MinImpact = ImpactMedium
	cal = NewCalendar(cfg, []Event{medium}, nil)
	assert.True(t, cal.Blocked("EUR_USD", medium.Time))
}

func TestCalendar_ReplaceSwapsSchedule(t *testing.T) {
	cal := NewCalendar(DefaultConfig(), []Event{nfp}, nil)
	assert.True(t, cal.Blocked("EUR_USD", nfp.Time))

	cal.Replace(nil)
	assert.False(t, cal.Blocked("EUR_USD", nfp.Time))
}
