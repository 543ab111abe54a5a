package domain

import "time"

// SetupType is the structural pattern behind a signal.
type SetupType string

const (
	// SetupCHOCH is a reversal: a level touch followed by a close beyond
	// the opposite-side swing.
	SetupCHOCH SetupType = "CHOCH"

	// SetupBOS is a continuation: a level break followed by a close
	// beyond the pullback swing in the break direction.
	SetupBOS SetupType = "BOS"
)

// Direction is the side of a signal or trade.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// SignalCandidate is a raw detection emitted by the structure state
// machine, before validation and sizing.
type SignalCandidate struct {
	ID         string // deterministic, see idhash.ComputeSignalID
	Instrument string
	Setup      SetupType
	Direction  Direction

	// Entry is the trigger close price of the confirming candle.
	Entry float64

	// StopLoss is derived by the detector: beyond the rejection extreme
	// for CHOCH, beyond the broken level for BOS.
	StopLoss float64

	// LevelID and LevelPrice identify the reference level the setup
	// formed against. LevelID is the dedup anchor.
	LevelID    string
	LevelPrice float64

	// Swing is the confirmation trigger the close passed.
	Swing SwingPoint

	GeneratedAt time.Time
}
