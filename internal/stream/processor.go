// Package stream gates raw gateway candles before detection sees them.
package stream

import (
	"sync"
	"time"

	"sst-bot/internal/domain"
)

type streamKey struct {
	instrument string
	timeframe  domain.Timeframe
}

// Processor delivers only fully closed candles downstream, at most one
// per (instrument, timeframe) bar. Gateways re-serve the tail of their
// history on every poll, so the processor remembers the last delivered
// bar time and drops everything at or before it.
type Processor struct {
	mu   sync.Mutex
	last map[streamKey]time.Time
}

// NewProcessor creates an empty Processor.
func NewProcessor() *Processor {
	return &Processor{last: make(map[streamKey]time.Time)}
}

// Advance filters a polled batch down to the closed candles that have
// not been delivered yet, in ascending bar-time order. Unclosed
// candles, duplicates and out-of-order bars are dropped silently; the
// confirm-on-close rule means an in-progress bar is simply not data yet.
func (p *Processor) Advance(batch []domain.Candle) []domain.Candle {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []domain.Candle
	for _, c := range batch {
		if !c.Closed {
			continue
		}
		key := streamKey{c.Instrument, c.Timeframe}
		if last, ok := p.last[key]; ok && !c.Time.After(last) {
			continue
		}
		p.last[key] = c.Time
		out = append(out, c)
	}
	return out
}

// LastDelivered returns the bar time of the newest candle delivered for
// the stream, or zero if none has been.
func (p *Processor) LastDelivered(instrument string, tf domain.Timeframe) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last[streamKey{instrument, tf}]
}
