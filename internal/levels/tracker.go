// Package levels maintains the prior-session high/low per instrument.
package levels

import (
	"errors"
	"log"
	"sync"
	"time"

	"sst-bot/internal/domain"
	"sst-bot/internal/idhash"
)

// ErrLevelsStale is returned when an instrument has no usable reference
// levels: either none were ever computed, or the last rollover had to
// carry levels forward from an incomplete session. Detection for that
// instrument is skipped until the next successful rollover; other
// instruments are unaffected.
var ErrLevelsStale = errors.New("session levels stale or missing")

// Tracker owns the SessionLevels of every monitored instrument.
// Rollover runs on its own schedule and holds the lock only briefly, so
// it never blocks trade monitoring.
type Tracker struct {
	mu     sync.RWMutex
	levels map[string]*domain.SessionLevels

	// minCandles is the smallest prior-session candle set considered
	// complete. Below it, levels carry forward marked stale.
	minCandles int

	logger *log.Logger
}

// NewTracker creates a Tracker. minCandles of zero accepts any
// non-empty session.
func NewTracker(minCandles int, logger *log.Logger) *Tracker {
	return &Tracker{
		levels:     make(map[string]*domain.SessionLevels),
		minCandles: minCandles,
		logger:     logger,
	}
}

// Rollover recomputes reference levels from the prior session's closed
// candles. It runs exactly once per instrument per session boundary;
// a repeated call for the same session date is a no-op.
//
// An empty or incomplete candle set is not a fault: the previous levels
// carry forward marked stale, with fresh IDs for the new session.
func (t *Tracker) Rollover(instrument domain.Instrument, sessionDate time.Time, prior []domain.Candle) *domain.SessionLevels {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.levels[instrument.Symbol]; ok && existing.SessionDate.Equal(sessionDate) {
		return copyLevels(existing)
	}

	highID := idhash.ComputeLevelID(instrument.Symbol, sessionDate, domain.LevelHigh)
	lowID := idhash.ComputeLevelID(instrument.Symbol, sessionDate, domain.LevelLow)

	closed := prior[:0:0]
	for _, c := range prior {
		if c.Closed {
			closed = append(closed, c)
		}
	}

	if len(closed) == 0 || len(closed) < t.minCandles {
		carried := t.carryForward(instrument.Symbol, sessionDate, highID, lowID)
		t.log("levels carried forward stale for %s (prior candles: %d, need >= %d)",
			instrument.Symbol, len(closed), t.minCandles)
		t.levels[instrument.Symbol] = carried
		return copyLevels(carried)
	}

	high, low := closed[0].High, closed[0].Low
	for _, c := range closed[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}

	sl := &domain.SessionLevels{
		Instrument:  instrument.Symbol,
		SessionDate: sessionDate,
		High:        domain.Level{ID: highID, Side: domain.LevelHigh, Price: high, Role: domain.RoleResistance},
		Low:         domain.Level{ID: lowID, Side: domain.LevelLow, Price: low, Role: domain.RoleSupport},
		CreatedAt:   time.Now().UTC(),
	}
	t.levels[instrument.Symbol] = sl
	t.log("levels rolled over for %s: high=%.5f low=%.5f", instrument.Symbol, high, low)
	return copyLevels(sl)
}

// carryForward clones the previous session's levels under new IDs.
// Caller must hold the write lock.
func (t *Tracker) carryForward(symbol string, sessionDate time.Time, highID, lowID string) *domain.SessionLevels {
	prev, ok := t.levels[symbol]
	if !ok {
		// Nothing to carry: record a stale placeholder so detection
		// keeps skipping this instrument without faulting.
		return &domain.SessionLevels{
			Instrument:  symbol,
			SessionDate: sessionDate,
			High:        domain.Level{ID: highID, Side: domain.LevelHigh, Role: domain.RoleResistance},
			Low:         domain.Level{ID: lowID, Side: domain.LevelLow, Role: domain.RoleSupport},
			Stale:       true,
			CreatedAt:   time.Now().UTC(),
		}
	}

	carried := *prev
	carried.SessionDate = sessionDate
	carried.Stale = true
	carried.CreatedAt = time.Now().UTC()
	carried.High.ID = highID
	carried.Low.ID = lowID
	// A carried level re-arms: break state from the old session does not
	// survive into the new one.
	carried.High.Broken = false
	carried.High.Role = domain.RoleResistance
	carried.Low.Broken = false
	carried.Low.Role = domain.RoleSupport
	return &carried
}

// Levels returns a copy of the instrument's current reference levels.
func (t *Tracker) Levels(symbol string) (*domain.SessionLevels, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sl, ok := t.levels[symbol]
	if !ok || sl.Stale || sl.High.Price == 0 {
		return nil, ErrLevelsStale
	}
	return copyLevels(sl), nil
}

// ApplyClose flips the polarity of any level the candle closed beyond.
// Only closed candles count; wick extremes alone never break a level.
// Returns the sides that flipped on this candle.
func (t *Tracker) ApplyClose(symbol string, c domain.Candle) []domain.LevelSide {
	if !c.Closed {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sl, ok := t.levels[symbol]
	if !ok || sl.Stale {
		return nil
	}

	var flipped []domain.LevelSide
	if !sl.High.Broken && c.Close > sl.High.Price {
		sl.High.Flip()
		flipped = append(flipped, domain.LevelHigh)
		t.log("level flipped for %s: prior high %.5f now support", symbol, sl.High.Price)
	}
	if !sl.Low.Broken && c.Close < sl.Low.Price {
		sl.Low.Flip()
		flipped = append(flipped, domain.LevelLow)
		t.log("level flipped for %s: prior low %.5f now resistance", symbol, sl.Low.Price)
	}
	return flipped
}

func (t *Tracker) log(format string, args ...any) {
	if t.logger != nil {
		t.logger.Printf(format, args...)
	}
}

func copyLevels(sl *domain.SessionLevels) *domain.SessionLevels {
	cp := *sl
	return &cp
}
