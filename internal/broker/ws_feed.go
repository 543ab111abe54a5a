package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// PriceUpdate is one streamed tick.
type PriceUpdate struct {
	Instrument string    `json:"instrument"`
	Price      float64   `json:"price"`
	Time       time.Time `json:"time"`
}

// PriceFeedConfig configures the streaming price client.
type PriceFeedConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the reconnect backoff.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for ping frames.
	PingInterval time.Duration
	// ReadTimeout is the per-message read deadline.
	ReadTimeout time.Duration
	// WriteTimeout is the per-message write deadline.
	WriteTimeout time.Duration
}

// DefaultPriceFeedConfig returns the default streaming configuration.
func DefaultPriceFeedConfig() PriceFeedConfig {
	return PriceFeedConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// PriceFeed streams live prices over a broker WebSocket endpoint. It is
// a convenience for between-bar unrealized PnL display; the engine's
// correctness never depends on it, since all decisions run on closed
// candles fetched over the Gateway.
type PriceFeed struct {
	endpoint    string
	instruments []string
	config      PriceFeedConfig

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	updates chan PriceUpdate
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewPriceFeed connects and subscribes to the given instruments.
func NewPriceFeed(ctx context.Context, endpoint string, instruments []string, config *PriceFeedConfig) (*PriceFeed, error) {
	cfg := DefaultPriceFeedConfig()
	if config != nil {
		cfg = *config
	}

	f := &PriceFeed{
		endpoint:    endpoint,
		instruments: instruments,
		config:      cfg,
		updates:     make(chan PriceUpdate, 1024),
		done:        make(chan struct{}),
	}

	if err := f.connect(ctx); err != nil {
		return nil, err
	}

	f.wg.Add(1)
	go f.readLoop()

	f.wg.Add(1)
	go f.pingLoop()

	return f, nil
}

// Updates returns the stream of price ticks. Closed on shutdown.
func (f *PriceFeed) Updates() <-chan PriceUpdate {
	return f.updates
}

// Close shuts the feed down.
func (f *PriceFeed) Close() error {
	if f.closed.Swap(true) {
		return nil
	}

	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.wg.Wait()
	close(f.updates)
	return nil
}

// connect dials the endpoint and sends the subscribe frame.
func (f *PriceFeed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	sub := struct {
		Action      string   `json:"action"`
		Instruments []string `json:"instruments"`
	}{Action: "subscribe", Instruments: f.instruments}

	conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("write subscribe: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	return nil
}

// readLoop reads ticks and reconnects with backoff on failure.
func (f *PriceFeed) readLoop() {
	defer f.wg.Done()

	reconnectDelay := f.config.ReconnectDelay

	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			if !f.reconnect(&reconnectDelay) {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			f.connMu.Lock()
			f.conn = nil
			f.connMu.Unlock()
			conn.Close()
			continue
		}
		reconnectDelay = f.config.ReconnectDelay

		var update PriceUpdate
		if err := json.Unmarshal(msg, &update); err != nil || update.Instrument == "" {
			continue // non-tick frame
		}

		select {
		case f.updates <- update:
		case <-f.done:
			return
		}
	}
}

// reconnect waits out the backoff delay and re-dials. Returns false on
// shutdown.
func (f *PriceFeed) reconnect(delay *time.Duration) bool {
	select {
	case <-f.done:
		return false
	case <-time.After(*delay):
	}

	*delay *= 2
	if *delay > f.config.MaxReconnectDelay {
		*delay = f.config.MaxReconnectDelay
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := f.connect(ctx); err != nil {
		return !f.closed.Load()
	}
	return true
}

// pingLoop keeps the connection alive.
func (f *PriceFeed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
				f.conn.WriteMessage(websocket.PingMessage, nil)
			}
			f.connMu.Unlock()
		}
	}
}
