package domain

import (
	"fmt"
	"time"
)

// BalanceBasis selects which balance sizing is computed from.
type BalanceBasis string

const (
	BalanceCurrent BalanceBasis = "current"
	BalanceInitial BalanceBasis = "initial"
)

// RiskConfig drives position sizing and the concurrency gate.
// The numbers are deployment inputs, not policy; nothing in the engine
// hard-codes them.
type RiskConfig struct {
	RiskPercent    float64      // fraction of balance risked per trade, e.g. 0.01
	RewardRatio    float64      // target distance as a multiple of stop distance
	Basis          BalanceBasis // current or initial balance
	InitialBalance float64      // used when Basis == BalanceInitial

	MaxConcurrentTrades int // cap on simultaneously OPEN trades, not a daily count

	// MinBalance blocks new entries when the account is below it. Zero
	// disables the check.
	MinBalance float64

	// MaxDailyLossPercent pauses new entries for the day once realized
	// losses exceed this fraction of the session-start balance. Zero
	// disables the check.
	MaxDailyLossPercent float64
}

// Validate rejects degenerate configurations before the engine starts.
func (c RiskConfig) Validate() error {
	if c.RiskPercent <= 0 || c.RiskPercent >= 1 {
		return fmt.Errorf("risk percent must be in (0, 1), got %v", c.RiskPercent)
	}
	if c.RewardRatio <= 0 {
		return fmt.Errorf("reward ratio must be positive, got %v", c.RewardRatio)
	}
	if c.Basis != BalanceCurrent && c.Basis != BalanceInitial {
		return fmt.Errorf("unknown balance basis %q", c.Basis)
	}
	if c.Basis == BalanceInitial && c.InitialBalance <= 0 {
		return fmt.Errorf("initial balance basis requires a positive initial balance")
	}
	if c.MaxConcurrentTrades < 1 {
		return fmt.Errorf("max concurrent trades must be at least 1, got %d", c.MaxConcurrentTrades)
	}
	return nil
}

// ValidatorConfig is the single declarative home for every signal
// filter threshold. There is exactly one decision path through the
// validator; relaxing a threshold means changing the config, not adding
// a code path.
type ValidatorConfig struct {
	// CooldownWindow drops a repeat of the same (instrument, level,
	// direction) signal within the window.
	CooldownWindow time.Duration

	// MinLevelDistanceTicks is the minimum distance between trigger
	// close and reference level, in instrument tick sizes.
	MinLevelDistanceTicks float64

	// MaxLevelDistanceTicks rejects continuation triggers that confirm
	// too far beyond the level. Zero disables the check.
	MaxLevelDistanceTicks float64
}

// Validate rejects degenerate configurations.
func (c ValidatorConfig) Validate() error {
	if c.CooldownWindow < 0 {
		return fmt.Errorf("cooldown window must not be negative, got %v", c.CooldownWindow)
	}
	if c.MinLevelDistanceTicks < 0 {
		return fmt.Errorf("min level distance must not be negative, got %v", c.MinLevelDistanceTicks)
	}
	if c.MaxLevelDistanceTicks < 0 {
		return fmt.Errorf("max level distance must not be negative, got %v", c.MaxLevelDistanceTicks)
	}
	if c.MaxLevelDistanceTicks > 0 && c.MaxLevelDistanceTicks < c.MinLevelDistanceTicks {
		return fmt.Errorf("max level distance %v below min %v", c.MaxLevelDistanceTicks, c.MinLevelDistanceTicks)
	}
	return nil
}
