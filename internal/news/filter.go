// Package news vetoes signal generation around scheduled high-impact
// economic releases.
package news

import (
	"log"
	"strings"
	"sync"
	"time"
)

// Impact classifies a calendar event.
type Impact string

const (
	ImpactLow    Impact = "LOW"
	ImpactMedium Impact = "MEDIUM"
	ImpactHigh   Impact = "HIGH"
)

// Event is one scheduled release.
type Event struct {
	// Currency is the ISO code the release concerns, e.g. "USD".
	Currency string
	Title    string
	Impact   Impact
	Time     time.Time
}

// Config sets the blackout window around qualifying events.
type Config struct {
	// Before and After bound the blocked interval around the release.
	Before time.Duration
	After  time.Duration

	// MinImpact is the lowest impact that triggers a blackout.
	MinImpact Impact
}

// DefaultConfig blocks 30 minutes either side of high-impact releases.
func DefaultConfig() Config {
	return Config{
		Before:    30 * time.Minute,
		After:     30 * time.Minute,
		MinImpact: ImpactHigh,
	}
}

// Calendar holds a schedule of events and answers blocking queries.
// An instrument is blocked when either of its currencies has a
// qualifying release inside the window.
type Calendar struct {
	cfg Config

	mu     sync.RWMutex
	events []Event

	logger *log.Logger
}

// NewCalendar creates a Calendar with an initial schedule.
func NewCalendar(cfg Config, events []Event, logger *log.Logger) *Calendar {
	c := &Calendar{cfg: cfg, logger: logger}
	c.Replace(events)
	return c
}

// Replace swaps in a fresh schedule, e.g. after a daily calendar pull.
func (c *Calendar) Replace(events []Event) {
	cp := make([]Event, len(events))
	copy(cp, events)

	c.mu.Lock()
	c.events = cp
	c.mu.Unlock()
}

// Blocked reports whether the instrument is inside a blackout window
// at the given time.
func (c *Calendar) Blocked(instrument string, at time.Time) bool {
	currencies := instrumentCurrencies(instrument)
	if len(currencies) == 0 {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ev := range c.events {
		if rank(ev.Impact) < rank(c.cfg.MinImpact) {
			continue
		}
		if !currencies[ev.Currency] {
			continue
		}
		start := ev.Time.Add(-c.cfg.Before)
		end := ev.Time.Add(c.cfg.After)
		if !at.Before(start) && !at.After(end) {
			c.log("news blackout for %s: %s %s at %s", instrument, ev.Currency, ev.Title, ev.Time.Format(time.RFC3339))
			return true
		}
	}
	return false
}

// instrumentCurrencies splits a pair symbol like "EUR_USD" into its
// currency legs.
func instrumentCurrencies(instrument string) map[string]bool {
	parts := strings.Split(instrument, "_")
	out := make(map[string]bool, len(parts))
	for _, p := range parts {
		if p != "" {
			out[strings.ToUpper(p)] = true
		}
	}
	return out
}

func rank(i Impact) int {
	switch i {
	case ImpactHigh:
		return 3
	case ImpactMedium:
		return 2
	case ImpactLow:
		return 1
	default:
		return 0
	}
}

func (c *Calendar) log(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
