package domain

import "time"

// LevelSide distinguishes the two reference levels of a session.
type LevelSide string

const (
	LevelHigh LevelSide = "HIGH" // prior-session high
	LevelLow  LevelSide = "LOW"  // prior-session low
)

// LevelRole is the polarity of a level. A session high starts as
// resistance; once a candle closes beyond it the role flips in place.
type LevelRole string

const (
	RoleResistance LevelRole = "RESISTANCE"
	RoleSupport    LevelRole = "SUPPORT"
)

// Level is one reference price with its current polarity.
type Level struct {
	ID     string // deterministic, see idhash.ComputeLevelID
	Side   LevelSide
	Price  float64
	Role   LevelRole
	Broken bool // a candle has closed beyond the level this session
}

// Flip inverts the level's polarity and marks it broken.
func (l *Level) Flip() {
	l.Broken = true
	if l.Role == RoleResistance {
		l.Role = RoleSupport
	} else {
		l.Role = RoleResistance
	}
}

// SessionLevels holds the prior-session reference levels for one
// instrument. Created once per session boundary and immutable until the
// next rollover, except for in-place polarity flips on level breaks.
type SessionLevels struct {
	Instrument  string
	SessionDate time.Time // session day the levels apply to
	High        Level
	Low         Level

	// Stale marks levels carried forward because the prior session's
	// candle set was empty or incomplete. Detection skips stale levels.
	Stale bool

	CreatedAt time.Time
}
