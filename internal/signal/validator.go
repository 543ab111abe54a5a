// Package signal filters raw structure candidates down to tradeable
// signals. There is one decision path: every threshold lives in
// domain.ValidatorConfig, and a rejected candidate is discarded, never
// queued or retried.
package signal

import (
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"sst-bot/internal/domain"
)

// Rejection reasons. Callers treat any non-nil error as a discard; the
// distinct sentinels exist for logging and metrics.
var (
	ErrDuplicate    = errors.New("duplicate signal within cooldown window")
	ErrTooClose     = errors.New("trigger too close to reference level")
	ErrTooFar       = errors.New("continuation trigger too far beyond level")
	ErrStopInverted = errors.New("stop loss on the wrong side of entry")
	ErrNewsBlocked  = errors.New("blocked by news window")
)

// NewsFilter is the external blocking predicate. A nil filter blocks
// nothing.
type NewsFilter interface {
	Blocked(instrument string, at time.Time) bool
}

type dedupKey struct {
	instrument string
	levelID    string
	direction  domain.Direction
}

// Validator deduplicates and filters signal candidates.
type Validator struct {
	cfg  domain.ValidatorConfig
	news NewsFilter

	mu   sync.Mutex
	seen map[dedupKey]time.Time

	logger *log.Logger
}

// NewValidator creates a Validator. cfg must already be validated.
func NewValidator(cfg domain.ValidatorConfig, news NewsFilter, logger *log.Logger) *Validator {
	return &Validator{
		cfg:    cfg,
		news:   news,
		seen:   make(map[dedupKey]time.Time),
		logger: logger,
	}
}

// Seed preloads the dedup state from persisted signals, so a restart
// inside a cooldown window still suppresses the repeat.
func (v *Validator) Seed(signals []domain.SignalCandidate) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, s := range signals {
		key := dedupKey{s.Instrument, s.LevelID, s.Direction}
		if s.GeneratedAt.After(v.seen[key]) {
			v.seen[key] = s.GeneratedAt
		}
	}
}

// Validate accepts or rejects one candidate. Acceptance records the
// candidate for dedup; rejection leaves prior dedup state untouched.
func (v *Validator) Validate(instrument domain.Instrument, cand domain.SignalCandidate) error {
	if err := v.checkStop(cand); err != nil {
		return v.reject(cand, err)
	}
	if err := v.checkDistance(instrument, cand); err != nil {
		return v.reject(cand, err)
	}
	if v.news != nil && v.news.Blocked(cand.Instrument, cand.GeneratedAt) {
		return v.reject(cand, ErrNewsBlocked)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	key := dedupKey{cand.Instrument, cand.LevelID, cand.Direction}
	if last, ok := v.seen[key]; ok && cand.GeneratedAt.Sub(last) < v.cfg.CooldownWindow {
		return v.reject(cand, ErrDuplicate)
	}
	v.seen[key] = cand.GeneratedAt
	return nil
}

func (v *Validator) checkStop(cand domain.SignalCandidate) error {
	if cand.Direction == domain.DirectionBuy && cand.StopLoss >= cand.Entry {
		return ErrStopInverted
	}
	if cand.Direction == domain.DirectionSell && cand.StopLoss <= cand.Entry {
		return ErrStopInverted
	}
	return nil
}

func (v *Validator) checkDistance(instrument domain.Instrument, cand domain.SignalCandidate) error {
	if instrument.TickSize <= 0 {
		return nil
	}
	ticks := math.Abs(cand.Entry-cand.LevelPrice) / instrument.TickSize

	if ticks < v.cfg.MinLevelDistanceTicks {
		return ErrTooClose
	}
	// The too-far guard only makes sense for continuations: a reversal
	// triggers back toward its level by construction.
	if cand.Setup == domain.SetupBOS &&
		v.cfg.MaxLevelDistanceTicks > 0 && ticks > v.cfg.MaxLevelDistanceTicks {
		return ErrTooFar
	}
	return nil
}

func (v *Validator) reject(cand domain.SignalCandidate, err error) error {
	if v.logger != nil {
		v.logger.Printf("signal rejected: %s %s %s: %v",
			cand.Instrument, cand.Setup, cand.Direction, err)
	}
	return err
}
