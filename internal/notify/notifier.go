// Package notify fans trade and account events out to operators.
// Delivery is best effort: a failed notification never blocks or fails
// the trading path.
package notify

import (
	"log"
	"time"

	"sst-bot/internal/domain"
)

// EventType classifies a notification.
type EventType string

const (
	EventTradeOpened   EventType = "TRADE_OPENED"
	EventTradeClosed   EventType = "TRADE_CLOSED"
	EventTradeRejected EventType = "TRADE_REJECTED"
	// EventDailyLimitReached fires when the daily loss guard pauses new
	// entries; EventDrawdownLimitReached when the balance floor does.
	EventDailyLimitReached    EventType = "DAILY_LIMIT_REACHED"
	EventDrawdownLimitReached EventType = "DRAWDOWN_LIMIT_REACHED"
	EventBotError             EventType = "BOT_ERROR"
)

// Event is one notification.
type Event struct {
	Type       EventType     `json:"type"`
	Instrument string        `json:"instrument,omitempty"`
	Message    string        `json:"message"`
	Trade      *domain.Trade `json:"trade,omitempty"`
	Time       time.Time     `json:"time"`
}

// Notifier delivers events. Implementations must not block the caller
// beyond trivial bookkeeping.
type Notifier interface {
	Notify(ev Event)
}

// LogNotifier writes events to a logger.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses the default.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ev Event) {
	if n.logger != nil {
		n.logger.Printf("[%s] %s", ev.Type, ev.Message)
		return
	}
	log.Printf("[%s] %s", ev.Type, ev.Message)
}

// Multi fans one event out to several notifiers.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ev Event) {
	for _, n := range m {
		n.Notify(ev)
	}
}
