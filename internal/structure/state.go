// Package structure detects reversal (CHOCH) and continuation (BOS)
// setups against prior-session reference levels. All confirmation is on
// candle close; wick extremes arm state but never trigger a signal.
package structure

import (
	"time"

	"sst-bot/internal/domain"
)

// Phase is the detection state of one reference level.
type Phase string

const (
	// PhaseIdle: the level is armed and untested.
	PhaseIdle Phase = "IDLE"

	// PhaseTouched: price reached the level without a close beyond it.
	// The opposite-side swing forming afterward is the reversal trigger.
	PhaseTouched Phase = "TOUCHED"

	// PhaseBroken: a candle closed beyond the level and its polarity
	// flipped. The pullback swing forming afterward is the continuation
	// trigger; the phase re-arms after each signal while the move extends.
	PhaseBroken Phase = "BROKEN"

	// PhaseConsumed: a reversal signal fired from this level; it stays
	// inert until the next session rollover re-arms it.
	PhaseConsumed Phase = "CONSUMED"
)

// LevelState is the full detection state of one reference level. It is
// a value: transitions produce a new LevelState and never mutate the
// input, which keeps the machine independently testable.
type LevelState struct {
	Level domain.Level
	Role  domain.LevelRole
	Phase Phase

	// RejectionExtreme is the farthest wick beyond the touch side since
	// the level was touched. Reversal stops are placed beyond it.
	RejectionExtreme float64

	// PendingSwing is the running opposite-side extreme formed after
	// the touch (or break) candle. The candle that arms a phase never
	// seeds the swing; only candles after it do.
	PendingSwing *domain.SwingPoint

	// BreakDirection is the side of the break while in PhaseBroken.
	BreakDirection domain.Direction

	// TouchedFlipped marks that price returned to the flipped level
	// after a break. The next continuation trigger is then classified
	// as a reversal off the flipped level rather than a plain BOS.
	TouchedFlipped bool
}

// State is the per-instrument structure state: exactly one live
// instance per instrument, owned and mutated only by the Machine.
type State struct {
	Instrument  domain.Instrument
	SessionDate time.Time
	High        LevelState
	Low         LevelState
}

// newLevelState arms a fresh level for a new session.
func newLevelState(l domain.Level) LevelState {
	return LevelState{Level: l, Role: l.Role, Phase: PhaseIdle}
}
