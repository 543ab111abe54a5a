package notify

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// WebhookConfig configures a WebhookNotifier.
type WebhookConfig struct {
	URL string

	// AuthHeader and AuthValue set an optional auth header on every
	// delivery, e.g. "Authorization" / "Bearer <token>".
	AuthHeader string
	AuthValue  string

	// Timeout bounds one delivery attempt.
	Timeout time.Duration

	// MaxRetries is the number of re-sends after a failed attempt.
	MaxRetries int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

// DefaultWebhookConfig returns the default delivery settings for url.
func DefaultWebhookConfig(url string) WebhookConfig {
	return WebhookConfig{
		URL:        url,
		Timeout:    10 * time.Second,
		MaxRetries: 2,
		RetryDelay: 2 * time.Second,
	}
}

// WebhookNotifier POSTs events as JSON to a configured endpoint.
// Delivery runs on its own goroutine; failures are logged and dropped.
type WebhookNotifier struct {
	cfg    WebhookConfig
	client *http.Client
	logger *log.Logger
}

// NewWebhookNotifier creates a WebhookNotifier.
func NewWebhookNotifier(cfg WebhookConfig, logger *log.Logger) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.log("marshal webhook payload: %v", err)
		return
	}
	go n.deliver(payload)
}

func (n *WebhookNotifier) deliver(payload []byte) {
	attempts := n.cfg.MaxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := http.NewRequest(http.MethodPost, n.cfg.URL, bytes.NewReader(payload))
		if err != nil {
			n.log("build webhook request: %v", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if n.cfg.AuthHeader != "" {
			req.Header.Set(n.cfg.AuthHeader, n.cfg.AuthValue)
		}

		resp, err := n.client.Do(req)
		if err == nil {
			ok := resp.StatusCode >= 200 && resp.StatusCode < 300
			resp.Body.Close()
			if ok {
				return
			}
			n.log("webhook delivery to %s: status %d (attempt %d/%d)",
				n.cfg.URL, resp.StatusCode, attempt, attempts)
		} else {
			n.log("webhook delivery to %s: %v (attempt %d/%d)", n.cfg.URL, err, attempt, attempts)
		}

		if attempt < attempts {
			time.Sleep(n.cfg.RetryDelay)
		}
	}
}

func (n *WebhookNotifier) log(format string, args ...any) {
	if n.logger != nil {
		n.logger.Printf(format, args...)
	}
}
