package storage

import (
	"context"
	"time"

	"sst-bot/internal/domain"
)

// SignalStore provides access to signals storage. Signals are
// append-only: once generated, a signal is never rewritten.
type SignalStore interface {
	// Insert adds a new signal. Returns ErrDuplicateKey if signal_id exists.
	Insert(ctx context.Context, s *domain.SignalCandidate) error

	// GetByID retrieves a signal by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, signalID string) (*domain.SignalCandidate, error)

	// GetByInstrument retrieves all signals for an instrument, ordered by
	// generated_at ASC.
	GetByInstrument(ctx context.Context, instrument string) ([]*domain.SignalCandidate, error)

	// GetSince retrieves signals generated at or after cutoff, ordered by
	// generated_at ASC. Used to re-seed the dedup window after a restart.
	GetSince(ctx context.Context, cutoff time.Time) ([]*domain.SignalCandidate, error)
}

// TradeStore provides access to trades storage. Unlike signals, a trade
// row mutates as the position moves through its lifecycle.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// Update rewrites an existing trade. Returns ErrNotFound if not exists.
	Update(ctx context.Context, t *domain.Trade) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.Trade, error)

	// GetByStatus retrieves all trades in the given status, ordered by
	// opened_at ASC.
	GetByStatus(ctx context.Context, status domain.TradeStatus) ([]*domain.Trade, error)

	// GetByInstrument retrieves all trades for an instrument, ordered by
	// opened_at ASC.
	GetByInstrument(ctx context.Context, instrument string) ([]*domain.Trade, error)

	// GetClosedInRange retrieves closed trades with closed_at within
	// [start, end] (inclusive), ordered by closed_at ASC.
	GetClosedInRange(ctx context.Context, start, end time.Time) ([]*domain.Trade, error)
}

// SessionLevelsStore provides access to session_levels storage, one row
// per instrument per session.
type SessionLevelsStore interface {
	// Insert adds the levels for a session. Returns ErrDuplicateKey if
	// (instrument, session_date) exists.
	Insert(ctx context.Context, sl *domain.SessionLevels) error

	// GetLatest retrieves the most recent levels for an instrument.
	// Returns ErrNotFound if none exist.
	GetLatest(ctx context.Context, instrument string) (*domain.SessionLevels, error)

	// GetBySession retrieves the levels for a specific session date.
	// Returns ErrNotFound if not exists.
	GetBySession(ctx context.Context, instrument string, sessionDate time.Time) (*domain.SessionLevels, error)
}
