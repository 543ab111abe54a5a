package structure

import (
	"log"
	"sync"

	"sst-bot/internal/domain"
	"sst-bot/internal/idhash"
)

// Config holds detector tuning. Values are deployment inputs.
type Config struct {
	// StopBufferFrac pads stop-loss placement beyond the rejection
	// extreme or broken level, as a fraction of price (0.002 = 0.2%).
	StopBufferFrac float64
}

// Machine runs one structure State per instrument. OnCandleClose is the
// only mutation path; all transitions go through the pure transition
// function below.
type Machine struct {
	mu     sync.Mutex
	states map[string]*State
	cfg    Config
	logger *log.Logger
}

// NewMachine creates an empty Machine.
func NewMachine(cfg Config, logger *log.Logger) *Machine {
	return &Machine{
		states: make(map[string]*State),
		cfg:    cfg,
		logger: logger,
	}
}

// Rearm resets the instrument's state against freshly rolled-over
// session levels. Stale levels de-arm the instrument entirely.
func (m *Machine) Rearm(instrument domain.Instrument, sl *domain.SessionLevels) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sl == nil || sl.Stale {
		delete(m.states, instrument.Symbol)
		return
	}
	m.states[instrument.Symbol] = &State{
		Instrument:  instrument,
		SessionDate: sl.SessionDate,
		High:        newLevelState(sl.High),
		Low:         newLevelState(sl.Low),
	}
}

// StateFor returns a copy of the instrument's current state, or nil if
// the instrument is not armed.
func (m *Machine) StateFor(symbol string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[symbol]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// OnCandleClose advances both level states with one closed candle and
// returns any signal candidates it produced. Unclosed candles are
// ignored outright: no candidate is ever produced from an in-progress
// bar.
func (m *Machine) OnCandleClose(c domain.Candle) []domain.SignalCandidate {
	if !c.Closed {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[c.Instrument]
	if !ok {
		return nil
	}

	var out []domain.SignalCandidate
	for _, ls := range []*LevelState{&s.High, &s.Low} {
		next, trig := transition(*ls, c, m.cfg)
		*ls = next
		if trig == nil {
			continue
		}
		cand := m.buildCandidate(s, next, c, trig)
		m.log("signal candidate: %s %s %s entry=%.5f stop=%.5f level=%.5f",
			cand.Instrument, cand.Setup, cand.Direction, cand.Entry, cand.StopLoss, cand.LevelPrice)
		out = append(out, cand)
	}
	return out
}

func (m *Machine) buildCandidate(s *State, ls LevelState, c domain.Candle, trig *trigger) domain.SignalCandidate {
	at := c.CloseTime()
	return domain.SignalCandidate{
		ID:          idhash.ComputeSignalID(c.Instrument, ls.Level.ID, trig.setup, trig.direction, at.UnixMilli()),
		Instrument:  c.Instrument,
		Setup:       trig.setup,
		Direction:   trig.direction,
		Entry:       c.Close,
		StopLoss:    trig.stop,
		LevelID:     ls.Level.ID,
		LevelPrice:  ls.Level.Price,
		Swing:       trig.swing,
		GeneratedAt: at,
	}
}

func (m *Machine) log(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}

// trigger is the signal payload produced by a transition.
type trigger struct {
	setup     domain.SetupType
	direction domain.Direction
	stop      float64
	swing     domain.SwingPoint
}

// transition advances one level state with one closed candle. Pure: it
// never mutates its input and has no side effects.
//
// Reversal branch:  IDLE -> TOUCHED -> (CHOCH) -> CONSUMED
// Continuation:     IDLE/TOUCHED -> BROKEN -> (BOS | flipped CHOCH) -> BROKEN
func transition(ls LevelState, c domain.Candle, cfg Config) (LevelState, *trigger) {
	switch ls.Phase {
	case PhaseIdle:
		return stepIdle(ls, c)
	case PhaseTouched:
		return stepTouched(ls, c, cfg)
	case PhaseBroken:
		return stepBroken(ls, c, cfg)
	default: // PhaseConsumed
		return ls, nil
	}
}

func stepIdle(ls LevelState, c domain.Candle) (LevelState, *trigger) {
	// Break takes precedence over touch: a close beyond the level flips
	// polarity and arms the continuation branch.
	if closedBeyond(ls, c) {
		return enterBroken(ls), nil
	}
	if touches(ls, c) {
		ls.Phase = PhaseTouched
		ls.RejectionExtreme = touchExtreme(ls, c)
		ls.PendingSwing = nil // the touch candle never seeds the swing
	}
	return ls, nil
}

func stepTouched(ls LevelState, c domain.Candle, cfg Config) (LevelState, *trigger) {
	// A close beyond the level abandons the reversal: the setup is now
	// a break, and the pending swing belongs to a structure that no
	// longer exists.
	if closedBeyond(ls, c) {
		return enterBroken(ls), nil
	}

	// Check the trigger against swings formed by earlier candles only,
	// then let this candle extend the swing.
	if ls.PendingSwing != nil && closedBeyondSwing(ls.reversalDirection(), c, ls.PendingSwing.Price) {
		dir := ls.reversalDirection()
		trig := &trigger{
			setup:     domain.SetupCHOCH,
			direction: dir,
			stop:      buffered(ls.RejectionExtreme, dir.Opposite(), cfg.StopBufferFrac),
			swing:     *ls.PendingSwing,
		}
		ls.Phase = PhaseConsumed
		ls.PendingSwing = nil
		return ls, trig
	}

	ls.RejectionExtreme = widenExtreme(ls, c)
	ls.PendingSwing = extendSwing(ls.PendingSwing, oppositeSwing(ls), c)
	return ls, nil
}

func stepBroken(ls LevelState, c domain.Candle, cfg Config) (LevelState, *trigger) {
	// Price returning through the flipped level re-classifies the next
	// trigger as a reversal off that level.
	if touchesFlipped(ls, c) {
		ls.TouchedFlipped = true
	}

	if ls.PendingSwing != nil && closedBeyondSwing(ls.BreakDirection, c, ls.PendingSwing.Price) {
		setup := domain.SetupBOS
		if ls.TouchedFlipped {
			setup = domain.SetupCHOCH
		}
		trig := &trigger{
			setup:     setup,
			direction: ls.BreakDirection,
			stop:      buffered(ls.Level.Price, ls.BreakDirection.Opposite(), cfg.StopBufferFrac),
			swing:     *ls.PendingSwing,
		}
		// Re-arm: the move may keep extending, so the level stays
		// BROKEN and waits for a fresh pullback.
		ls.PendingSwing = nil
		ls.TouchedFlipped = false
		return ls, trig
	}

	ls.PendingSwing = extendSwing(ls.PendingSwing, continuationSwing(ls), c)
	return ls, nil
}

func enterBroken(ls LevelState) LevelState {
	if ls.Role == domain.RoleResistance {
		ls.BreakDirection = domain.DirectionBuy
		ls.Role = domain.RoleSupport
	} else {
		ls.BreakDirection = domain.DirectionSell
		ls.Role = domain.RoleResistance
	}
	ls.Phase = PhaseBroken
	ls.PendingSwing = nil // the breaking candle never seeds the pullback
	ls.TouchedFlipped = false
	ls.RejectionExtreme = 0
	return ls
}

// reversalDirection is the signal side of the reversal branch: selling
// a rejected resistance, buying a rejected support.
func (ls LevelState) reversalDirection() domain.Direction {
	if ls.Role == domain.RoleResistance {
		return domain.DirectionSell
	}
	return domain.DirectionBuy
}

// touches reports a wick into the level without the close passing it.
func touches(ls LevelState, c domain.Candle) bool {
	if ls.Role == domain.RoleResistance {
		return c.High >= ls.Level.Price && c.Close <= ls.Level.Price
	}
	return c.Low <= ls.Level.Price && c.Close >= ls.Level.Price
}

// touchesFlipped is the same test against the post-break role.
func touchesFlipped(ls LevelState, c domain.Candle) bool {
	return touches(ls, c)
}

// closedBeyond reports a close through the level against its role.
func closedBeyond(ls LevelState, c domain.Candle) bool {
	if ls.Role == domain.RoleResistance {
		return c.Close > ls.Level.Price
	}
	return c.Close < ls.Level.Price
}

// closedBeyondSwing reports a close past the swing in signal direction.
func closedBeyondSwing(dir domain.Direction, c domain.Candle, swing float64) bool {
	if dir == domain.DirectionBuy {
		return c.Close > swing
	}
	return c.Close < swing
}

func touchExtreme(ls LevelState, c domain.Candle) float64 {
	if ls.Role == domain.RoleResistance {
		return c.High
	}
	return c.Low
}

func widenExtreme(ls LevelState, c domain.Candle) float64 {
	if ls.Role == domain.RoleResistance {
		if c.High > ls.RejectionExtreme {
			return c.High
		}
	} else if c.Low < ls.RejectionExtreme {
		return c.Low
	}
	return ls.RejectionExtreme
}

// oppositeSwing is the swing type the reversal branch waits for: a
// swing low under a resistance touch, a swing high over a support touch.
func oppositeSwing(ls LevelState) domain.SwingType {
	if ls.Role == domain.RoleResistance {
		return domain.SwingLow
	}
	return domain.SwingHigh
}

// continuationSwing is the swing type the continuation branch waits
// for: the extreme in the break direction that the pullback left behind.
func continuationSwing(ls LevelState) domain.SwingType {
	if ls.BreakDirection == domain.DirectionBuy {
		return domain.SwingHigh
	}
	return domain.SwingLow
}

// extendSwing folds the candle's relevant extreme into the pending
// swing. Swing highs ratchet up, swing lows ratchet down.
func extendSwing(cur *domain.SwingPoint, typ domain.SwingType, c domain.Candle) *domain.SwingPoint {
	var px float64
	if typ == domain.SwingHigh {
		px = c.High
	} else {
		px = c.Low
	}

	if cur == nil ||
		(typ == domain.SwingHigh && px > cur.Price) ||
		(typ == domain.SwingLow && px < cur.Price) {
		return &domain.SwingPoint{Type: typ, Price: px, Time: c.Time}
	}
	return cur
}

// buffered pads a stop price by a fraction, upward for BUY and
// downward for SELL.
func buffered(price float64, towards domain.Direction, frac float64) float64 {
	if towards == domain.DirectionBuy {
		return price * (1 + frac)
	}
	return price * (1 - frac)
}
