// Package engine runs the trading loop: it polls closed candles,
// advances level and structure state, validates and sizes signals, and
// hands accepted ones to the trade lifecycle. One pass per instrument
// per candle, strictly serialized; instruments fault-isolate from each
// other.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"sst-bot/internal/broker"
	"sst-bot/internal/domain"
	"sst-bot/internal/levels"
	"sst-bot/internal/lifecycle"
	"sst-bot/internal/notify"
	"sst-bot/internal/observability"
	"sst-bot/internal/risk"
	"sst-bot/internal/signal"
	"sst-bot/internal/storage"
	"sst-bot/internal/stream"
	"sst-bot/internal/structure"
)

// Config holds the engine's loop tuning.
type Config struct {
	Instruments []domain.Instrument
	Timeframe   domain.Timeframe

	// PollInterval is how often closed candles are fetched.
	PollInterval time.Duration

	// RolloverCheckInterval is how often session boundaries are checked.
	RolloverCheckInterval time.Duration

	// MinSessionCandles is the smallest prior-session candle count that
	// produces fresh levels; below it, levels carry forward stale.
	MinSessionCandles int

	// StopBufferFrac pads structure stop placement, as a fraction of price.
	StopBufferFrac float64

	// DedupSeedWindow is how far back persisted signals are replayed into
	// the validator's dedup state on startup. Zero skips seeding.
	DedupSeedWindow time.Duration
}

// Validate rejects configurations the loop cannot run on.
func (c Config) Validate() error {
	if len(c.Instruments) == 0 {
		return errors.New("engine needs at least one instrument")
	}
	if c.Timeframe.Duration() <= 0 {
		return fmt.Errorf("unknown timeframe %q", c.Timeframe)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.RolloverCheckInterval <= 0 {
		return fmt.Errorf("rollover check interval must be positive, got %v", c.RolloverCheckInterval)
	}
	return nil
}

// CandleArchive receives every polled candle batch for offline
// analytics. Writes are best effort; a failing archive never stalls the
// trading path.
type CandleArchive interface {
	InsertBatch(ctx context.Context, candles []domain.Candle) error
}

// Deps are the engine's collaborators. Gateway, Validator, Sizer,
// Lifecycle and Signals are required; the rest are optional.
type Deps struct {
	Gateway       broker.Gateway
	Validator     *signal.Validator
	Sizer         *risk.Sizer
	Lifecycle     *lifecycle.Manager
	Signals       storage.SignalStore
	SessionLevels storage.SessionLevelsStore
	Archive       CandleArchive
	Notifier      notify.Notifier
	Metrics       *observability.Metrics
	Logger        *log.Logger
}

// Engine is the orchestrator. It owns the stream gate, the level
// tracker and the structure machine; everything else is injected.
type Engine struct {
	cfg Config

	gateway       broker.Gateway
	stream        *stream.Processor
	tracker       *levels.Tracker
	machine       *structure.Machine
	validator     *signal.Validator
	sizer         *risk.Sizer
	lifecycle     *lifecycle.Manager
	signals       storage.SignalStore
	sessionLevels storage.SessionLevelsStore
	archive       CandleArchive
	notifier      notify.Notifier
	metrics       *observability.Metrics
	logger        *log.Logger

	clock func() time.Time

	mu          sync.Mutex
	lastSession map[string]time.Time

	// Daily loss guard state, reset on the UTC day boundary.
	pnlDay              time.Time
	sessionStartBalance float64
	realizedDailyPnL    float64
}

// NewEngine wires an Engine. cfg and deps must be complete; the stream
// gate, tracker and structure machine are built here.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if deps.Gateway == nil || deps.Validator == nil || deps.Sizer == nil ||
		deps.Lifecycle == nil || deps.Signals == nil {
		return nil, errors.New("engine deps incomplete")
	}

	return &Engine{
		cfg:           cfg,
		gateway:       deps.Gateway,
		stream:        stream.NewProcessor(),
		tracker:       levels.NewTracker(cfg.MinSessionCandles, deps.Logger),
		machine:       structure.NewMachine(structure.Config{StopBufferFrac: cfg.StopBufferFrac}, deps.Logger),
		validator:     deps.Validator,
		sizer:         deps.Sizer,
		lifecycle:     deps.Lifecycle,
		signals:       deps.Signals,
		sessionLevels: deps.SessionLevels,
		archive:       deps.Archive,
		notifier:      deps.Notifier,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		clock:         func() time.Time { return time.Now().UTC() },
		lastSession:   make(map[string]time.Time),
	}, nil
}

// Run blocks until ctx is cancelled. Stopping is graceful but passive:
// open trades stay with the broker, their stops and targets attached,
// and are restored on the next start.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.bootstrap(ctx); err != nil {
		return err
	}

	poll := time.NewTicker(e.cfg.PollInterval)
	defer poll.Stop()
	roll := time.NewTicker(e.cfg.RolloverCheckInterval)
	defer roll.Stop()

	e.log("engine running: %d instruments, timeframe %s", len(e.cfg.Instruments), e.cfg.Timeframe)

	for {
		select {
		case <-ctx.Done():
			e.log("engine stopped; open trades remain with the broker")
			return nil
		case <-roll.C:
			e.rolloverDue(ctx, e.clock())
		case <-poll.C:
			e.pollOnce(ctx)
		}
	}
}

// bootstrap restores state that must survive restarts: the validator's
// dedup window, the lifecycle's open trades, and the session levels.
func (e *Engine) bootstrap(ctx context.Context) error {
	if e.cfg.DedupSeedWindow > 0 {
		cutoff := e.clock().Add(-e.cfg.DedupSeedWindow)
		persisted, err := e.signals.GetSince(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("seed signal dedup: %w", err)
		}
		seed := make([]domain.SignalCandidate, 0, len(persisted))
		for _, s := range persisted {
			seed = append(seed, *s)
		}
		e.validator.Seed(seed)
		e.log("seeded dedup state with %d persisted signals", len(seed))
	}

	if err := e.lifecycle.Restore(ctx); err != nil {
		return err
	}
	e.syncOpenGauge()

	e.rolloverDue(ctx, e.clock())
	return nil
}

// rolloverDue arms every instrument whose session boundary has passed
// since the last check. A failed rollover is retried on the next tick;
// the instrument simply stays de-armed until then.
func (e *Engine) rolloverDue(ctx context.Context, now time.Time) {
	e.resetDailyGuard(ctx, now)

	for _, inst := range e.cfg.Instruments {
		sessionDate := inst.SessionDate(now)

		e.mu.Lock()
		done := e.lastSession[inst.Symbol].Equal(sessionDate)
		e.mu.Unlock()
		if done {
			continue
		}

		if err := e.rolloverInstrument(ctx, inst, sessionDate); err != nil {
			e.log("rollover %s: %v", inst.Symbol, err)
			e.countRollover(inst.Symbol, "error")
			continue
		}

		e.mu.Lock()
		e.lastSession[inst.Symbol] = sessionDate
		e.mu.Unlock()
	}
}

func (e *Engine) rolloverInstrument(ctx context.Context, inst domain.Instrument, sessionDate time.Time) error {
	sessionStart := sessionDate.Add(inst.SessionOffset)
	priorStart := sessionStart.Add(-24 * time.Hour)

	start := e.clock()
	batch, err := e.gateway.GetClosedCandles(ctx, inst.Symbol, e.cfg.Timeframe, priorStart)
	e.recordGatewayCall("GetClosedCandles", start, err)
	if err != nil {
		return fmt.Errorf("prior session candles: %w", err)
	}

	prior := batch[:0:0]
	for _, c := range batch {
		if c.Time.Before(sessionStart) {
			prior = append(prior, c)
		}
	}

	e.applyRollover(ctx, inst, sessionDate, prior)
	return nil
}

// applyRollover recomputes and arms the instrument's levels from a
// prior-session candle set.
func (e *Engine) applyRollover(ctx context.Context, inst domain.Instrument, sessionDate time.Time, prior []domain.Candle) {
	sl := e.tracker.Rollover(inst, sessionDate, prior)
	e.machine.Rearm(inst, sl)

	outcome := "ok"
	if sl.Stale {
		outcome = "stale"
	}
	e.countRollover(inst.Symbol, outcome)
	if e.metrics != nil {
		e.metrics.LastRolloverTimestamp.WithLabelValues(inst.Symbol).Set(float64(e.clock().Unix()))
	}

	if e.sessionLevels != nil && !sl.Stale {
		if err := e.sessionLevels.Insert(ctx, sl); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			e.log("persist session levels %s: %v", inst.Symbol, err)
		}
	}
}

// resetDailyGuard re-anchors the daily loss limit when the UTC day
// changes. The anchor balance comes from the gateway; a failed fetch
// keeps the previous anchor and retries on the next tick.
func (e *Engine) resetDailyGuard(ctx context.Context, now time.Time) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	e.mu.Lock()
	due := !e.pnlDay.Equal(day)
	e.mu.Unlock()
	if !due {
		return
	}

	start := e.clock()
	balance, err := e.gateway.GetAccountBalance(ctx)
	e.recordGatewayCall("GetAccountBalance", start, err)
	if err != nil {
		e.log("daily guard reset: account balance: %v", err)
		return
	}

	e.mu.Lock()
	e.pnlDay = day
	e.sessionStartBalance = balance
	e.realizedDailyPnL = 0
	e.mu.Unlock()
	e.log("daily guard reset: anchor balance %.2f", balance)
}

// pollOnce fetches and processes new closed candles for every
// instrument. An instrument's failure never touches the others.
func (e *Engine) pollOnce(ctx context.Context) {
	for _, inst := range e.cfg.Instruments {
		if err := e.pollInstrument(ctx, inst); err != nil {
			e.log("poll %s: %v", inst.Symbol, err)
			if !broker.IsTransient(err) {
				e.notify(notify.Event{
					Type:       notify.EventBotError,
					Instrument: inst.Symbol,
					Message:    fmt.Sprintf("poll %s: %v", inst.Symbol, err),
					Time:       e.clock(),
				})
			}
		}
	}
}

func (e *Engine) pollInstrument(ctx context.Context, inst domain.Instrument) error {
	since := e.stream.LastDelivered(inst.Symbol, e.cfg.Timeframe)
	if since.IsZero() {
		// Cold start: only the freshest bars. Prior-session history is
		// the rollover's concern, not the poll loop's.
		since = e.clock().Add(-2 * e.cfg.Timeframe.Duration())
	}

	start := e.clock()
	batch, err := e.gateway.GetClosedCandles(ctx, inst.Symbol, e.cfg.Timeframe, since)
	e.recordGatewayCall("GetClosedCandles", start, err)
	if err != nil {
		return err
	}

	if e.archive != nil && len(batch) > 0 {
		if err := e.archive.InsertBatch(ctx, batch); err != nil {
			e.log("archive %s: %v", inst.Symbol, err)
		}
	}

	for _, c := range e.stream.Advance(batch) {
		e.processCandle(ctx, inst, c)
	}
	return nil
}

// processCandle is the single serialized pass for one closed candle:
// exits are evaluated before entries so a freed slot is usable on the
// same bar, then levels, structure, validation, sizing and submission.
func (e *Engine) processCandle(ctx context.Context, inst domain.Instrument, c domain.Candle) {
	if e.metrics != nil {
		e.metrics.CandlesProcessed.WithLabelValues(inst.Symbol).Inc()
		e.metrics.LastCandleTimestamp.WithLabelValues(inst.Symbol).Set(float64(c.CloseTime().Unix()))
	}

	closed, err := e.lifecycle.MonitorTick(ctx, c)
	if err != nil {
		e.log("monitor %s: %v", inst.Symbol, err)
	}
	for _, t := range closed {
		e.onTradeClosed(t)
	}

	if _, err := e.tracker.Levels(inst.Symbol); errors.Is(err, levels.ErrLevelsStale) {
		if e.metrics != nil {
			e.metrics.LevelsStaleSkips.WithLabelValues(inst.Symbol).Inc()
		}
		return
	}

	for _, side := range e.tracker.ApplyClose(inst.Symbol, c) {
		if e.metrics != nil {
			e.metrics.LevelPolarityFlip.WithLabelValues(inst.Symbol, string(side)).Inc()
		}
	}

	for _, cand := range e.machine.OnCandleClose(c) {
		e.handleCandidate(ctx, inst, cand)
	}
}

func (e *Engine) handleCandidate(ctx context.Context, inst domain.Instrument, cand domain.SignalCandidate) {
	if e.metrics != nil {
		e.metrics.SignalsDetected.WithLabelValues(inst.Symbol, string(cand.Setup), string(cand.Direction)).Inc()
	}

	if err := e.validator.Validate(inst, cand); err != nil {
		if e.metrics != nil {
			e.metrics.RecordSignalRejected(inst.Symbol, rejectionReason(err))
		}
		return
	}

	if err := e.signals.Insert(ctx, &cand); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		e.log("persist signal %s: %v", cand.ID, err)
	}
	if e.metrics != nil {
		e.metrics.SignalsValidated.WithLabelValues(inst.Symbol, string(cand.Setup)).Inc()
	}

	e.tryOpen(ctx, inst, cand)
}

// tryOpen runs the account guards, sizes the signal and submits it.
// Every rejection path discards the signal; nothing is queued.
func (e *Engine) tryOpen(ctx context.Context, inst domain.Instrument, cand domain.SignalCandidate) {
	start := e.clock()
	balance, err := e.gateway.GetAccountBalance(ctx)
	e.recordGatewayCall("GetAccountBalance", start, err)
	if err != nil {
		e.log("account balance for %s: %v", cand.ID, err)
		e.countTradeRejected(inst.Symbol, "balance_unavailable")
		return
	}

	e.mu.Lock()
	anchor, dayPnL := e.sessionStartBalance, e.realizedDailyPnL
	e.mu.Unlock()

	if err := e.sizer.CheckAccount(balance, anchor, dayPnL); err != nil {
		e.log("account guard for %s: %v", cand.ID, err)
		switch {
		case errors.Is(err, risk.ErrBalanceTooLow):
			e.countTradeRejected(inst.Symbol, "balance_too_low")
			e.notify(notify.Event{
				Type:       notify.EventDrawdownLimitReached,
				Instrument: inst.Symbol,
				Message:    fmt.Sprintf("balance %.2f below tradable minimum", balance),
				Time:       e.clock(),
			})
		case errors.Is(err, risk.ErrDailyLossLimit):
			e.countTradeRejected(inst.Symbol, "daily_loss_limit")
			e.notify(notify.Event{
				Type:       notify.EventDailyLimitReached,
				Instrument: inst.Symbol,
				Message:    fmt.Sprintf("daily loss %.2f reached the limit, entries paused", -dayPnL),
				Time:       e.clock(),
			})
		}
		return
	}

	sz, err := e.sizer.Size(balance, cand)
	if err != nil {
		e.log("sizing %s: %v", cand.ID, err)
		e.countTradeRejected(inst.Symbol, "sizing")
		return
	}

	t, err := e.lifecycle.OpenTrade(ctx, cand, *sz)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrNoCapacity):
			e.log("signal %s dropped: %v", cand.ID, err)
			e.countTradeRejected(inst.Symbol, "capacity")
		default:
			e.log("open trade for %s: %v", cand.ID, err)
			e.countTradeRejected(inst.Symbol, "execution")
			e.notify(notify.Event{
				Type:       notify.EventTradeRejected,
				Instrument: inst.Symbol,
				Message:    fmt.Sprintf("order rejected for %s %s: %v", cand.Setup, cand.Direction, err),
				Time:       e.clock(),
			})
		}
		return
	}

	if e.metrics != nil {
		e.metrics.TradesOpened.WithLabelValues(inst.Symbol, string(t.Setup), string(t.Direction)).Inc()
	}
	e.syncOpenGauge()
	e.notify(notify.Event{
		Type:       notify.EventTradeOpened,
		Instrument: inst.Symbol,
		Message: fmt.Sprintf("%s %s %s units=%d entry=%.5f sl=%.5f tp=%.5f",
			t.Instrument, t.Setup, t.Direction, t.Units, t.Entry, t.StopLoss, t.TakeProfit),
		Trade: t,
		Time:  e.clock(),
	})
}

func (e *Engine) onTradeClosed(t *domain.Trade) {
	pnl := t.PnL(t.ClosePrice)

	e.mu.Lock()
	e.realizedDailyPnL += pnl
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordTradeClosed(t.Instrument, string(t.CloseReason), pnl)
	}
	e.syncOpenGauge()
	e.notify(notify.Event{
		Type:       notify.EventTradeClosed,
		Instrument: t.Instrument,
		Message:    fmt.Sprintf("%s %s closed %s pnl=%.2f", t.Instrument, t.Direction, t.CloseReason, pnl),
		Trade:      t,
		Time:       e.clock(),
	})
}

// RunPriceFeed consumes streamed ticks and marks open trades with the
// latest price. Purely cosmetic between bars; returns when the channel
// closes or ctx is cancelled.
func (e *Engine) RunPriceFeed(ctx context.Context, updates <-chan broker.PriceUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			e.lifecycle.MarkPrice(u.Instrument, u.Price)
		}
	}
}

func (e *Engine) syncOpenGauge() {
	if e.metrics != nil {
		e.metrics.OpenTrades.Set(float64(e.lifecycle.OpenCount()))
	}
}

func (e *Engine) countRollover(symbol, outcome string) {
	if e.metrics != nil {
		e.metrics.SessionRollovers.WithLabelValues(symbol, outcome).Inc()
	}
}

func (e *Engine) countTradeRejected(symbol, reason string) {
	if e.metrics != nil {
		e.metrics.TradesRejected.WithLabelValues(symbol, reason).Inc()
	}
}

func (e *Engine) recordGatewayCall(method string, start time.Time, err error) {
	if e.metrics != nil {
		e.metrics.RecordGatewayCall(method, e.clock().Sub(start).Seconds(), err)
	}
}

// rejectionReason maps validator sentinels to stable metric labels.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, signal.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, signal.ErrTooClose):
		return "too_close"
	case errors.Is(err, signal.ErrTooFar):
		return "too_far"
	case errors.Is(err, signal.ErrStopInverted):
		return "stop_inverted"
	case errors.Is(err, signal.ErrNewsBlocked):
		return "news_blocked"
	default:
		return "other"
	}
}

func (e *Engine) notify(ev notify.Event) {
	if e.notifier != nil {
		e.notifier.Notify(ev)
	}
}

func (e *Engine) log(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}
