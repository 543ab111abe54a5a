// Package risk converts validated signals into sized orders with fixed
// stop and target.
package risk

import (
	"errors"
	"fmt"
	"math"

	"sst-bot/internal/domain"
)

// ValidationError marks a signal whose sizing is degenerate. It is
// rejected locally and never reaches the gateway.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "sizing validation: " + e.Reason
}

// Account guard errors.
var (
	ErrBalanceTooLow  = errors.New("account balance below tradable minimum")
	ErrDailyLossLimit = errors.New("max daily loss reached")
)

// Sizing is the full order geometry for one signal.
type Sizing struct {
	Units        int
	StopDistance float64
	TakeProfit   float64
	RiskAmount   float64 // actual risk with rounded units
	BalanceUsed  float64
}

// Sizer computes position sizes from a RiskConfig.
type Sizer struct {
	cfg domain.RiskConfig
}

// NewSizer creates a Sizer. cfg must already be validated.
func NewSizer(cfg domain.RiskConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// Size computes units, stop distance and target for a signal.
//
//	units  = floor(balance * risk_percent / stop_distance)
//	target = entry +/- stop_distance * reward_ratio
//
// Returns a ValidationError when the stop distance is not positive or
// the computed size rounds to zero.
func (s *Sizer) Size(currentBalance float64, cand domain.SignalCandidate) (*Sizing, error) {
	balance := currentBalance
	if s.cfg.Basis == domain.BalanceInitial {
		balance = s.cfg.InitialBalance
	}

	dist := math.Abs(cand.Entry - cand.StopLoss)
	if dist <= 0 {
		return nil, &ValidationError{Reason: "stop distance is not positive"}
	}

	units := int(math.Floor(balance * s.cfg.RiskPercent / dist))
	if units < 1 {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("size rounds to zero (balance %.2f, risk %.4f, stop distance %.5f)",
				balance, s.cfg.RiskPercent, dist),
		}
	}

	target := cand.Entry + dist*s.cfg.RewardRatio
	if cand.Direction == domain.DirectionSell {
		target = cand.Entry - dist*s.cfg.RewardRatio
	}

	return &Sizing{
		Units:        units,
		StopDistance: dist,
		TakeProfit:   target,
		RiskAmount:   float64(units) * dist,
		BalanceUsed:  balance,
	}, nil
}

// CheckAccount applies the account-level guards before a new entry.
// sessionStartBalance anchors the daily loss limit; realizedDailyPnL is
// the session's closed-trade result so far.
func (s *Sizer) CheckAccount(currentBalance, sessionStartBalance, realizedDailyPnL float64) error {
	if s.cfg.MinBalance > 0 && currentBalance < s.cfg.MinBalance {
		return ErrBalanceTooLow
	}
	if s.cfg.MaxDailyLossPercent > 0 && realizedDailyPnL < 0 {
		limit := sessionStartBalance * s.cfg.MaxDailyLossPercent
		if -realizedDailyPnL >= limit {
			return ErrDailyLossLimit
		}
	}
	return nil
}
