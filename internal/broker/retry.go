package broker

import (
	"context"
	"time"

	"sst-bot/internal/domain"
)

// Retry defaults.
const (
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// RetryOption configures a ReadRetrier.
type RetryOption func(*ReadRetrier)

// WithMaxRetries sets maximum retry attempts per read.
func WithMaxRetries(n int) RetryOption {
	return func(r *ReadRetrier) { r.maxRetries = n }
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) RetryOption {
	return func(r *ReadRetrier) { r.retryDelay = d }
}

// WithMaxDelay caps the exponential backoff.
func WithMaxDelay(d time.Duration) RetryOption {
	return func(r *ReadRetrier) { r.maxDelay = d }
}

// ReadRetrier wraps a Gateway and retries transient failures on data
// reads with exponential backoff. Order submission, position close and
// modification pass through untouched: retrying those blindly risks
// double fills, so their failures surface immediately.
type ReadRetrier struct {
	Gateway

	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// NewReadRetrier wraps gw.
func NewReadRetrier(gw Gateway, opts ...RetryOption) *ReadRetrier {
	r := &ReadRetrier{
		Gateway:     gw,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetClosedCandles retries transient failures.
func (r *ReadRetrier) GetClosedCandles(ctx context.Context, instrument string, tf domain.Timeframe, since time.Time) ([]domain.Candle, error) {
	var out []domain.Candle
	err := r.retry(ctx, func() error {
		var err error
		out, err = r.Gateway.GetClosedCandles(ctx, instrument, tf, since)
		return err
	})
	return out, err
}

// GetPrice retries transient failures.
func (r *ReadRetrier) GetPrice(ctx context.Context, instrument string) (float64, error) {
	var out float64
	err := r.retry(ctx, func() error {
		var err error
		out, err = r.Gateway.GetPrice(ctx, instrument)
		return err
	})
	return out, err
}

// GetAccountBalance retries transient failures.
func (r *ReadRetrier) GetAccountBalance(ctx context.Context) (float64, error) {
	var out float64
	err := r.retry(ctx, func() error {
		var err error
		out, err = r.Gateway.GetAccountBalance(ctx)
		return err
	})
	return out, err
}

func (r *ReadRetrier) retry(ctx context.Context, fn func() error) error {
	delay := r.retryDelay

	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !IsTransient(err) || attempt >= r.maxRetries {
			return err
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * r.backoffMult)
		if delay > r.maxDelay {
			delay = r.maxDelay
		}
	}
}
