package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"sst-bot/internal/domain"
	"sst-bot/internal/storage"
)

// SignalStore implements storage.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *Pool
}

// NewSignalStore creates a new SignalStore.
func NewSignalStore(pool *Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

const signalColumns = `
	signal_id, instrument, setup, direction,
	entry, stop_loss, level_id, level_price,
	swing_type, swing_price, swing_time, generated_at
`

// Insert adds a new signal. Returns ErrDuplicateKey if signal_id exists.
func (s *SignalStore) Insert(ctx context.Context, sig *domain.SignalCandidate) error {
	if sig == nil || sig.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO signals (` + signalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		sig.ID, sig.Instrument, sig.Setup, sig.Direction,
		sig.Entry, sig.StopLoss, sig.LevelID, sig.LevelPrice,
		sig.Swing.Type, sig.Swing.Price, sig.Swing.Time, sig.GeneratedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// GetByID retrieves a signal by its ID. Returns ErrNotFound if not exists.
func (s *SignalStore) GetByID(ctx context.Context, signalID string) (*domain.SignalCandidate, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE signal_id = $1`

	row := s.pool.QueryRow(ctx, query, signalID)
	sig, err := scanSignal(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get signal by id: %w", err)
	}
	return sig, nil
}

// GetByInstrument retrieves all signals for an instrument, ordered by
// generated_at ASC.
func (s *SignalStore) GetByInstrument(ctx context.Context, instrument string) ([]*domain.SignalCandidate, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM signals
		WHERE instrument = $1
		ORDER BY generated_at ASC, signal_id ASC
	`

	rows, err := s.pool.Query(ctx, query, instrument)
	if err != nil {
		return nil, fmt.Errorf("get signals by instrument: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// GetSince retrieves signals generated at or after cutoff, ordered by
// generated_at ASC.
func (s *SignalStore) GetSince(ctx context.Context, cutoff time.Time) ([]*domain.SignalCandidate, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM signals
		WHERE generated_at >= $1
		ORDER BY generated_at ASC, signal_id ASC
	`

	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("get signals since: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

func scanSignal(row pgx.Row) (*domain.SignalCandidate, error) {
	var sig domain.SignalCandidate
	err := row.Scan(
		&sig.ID, &sig.Instrument, &sig.Setup, &sig.Direction,
		&sig.Entry, &sig.StopLoss, &sig.LevelID, &sig.LevelPrice,
		&sig.Swing.Type, &sig.Swing.Price, &sig.Swing.Time, &sig.GeneratedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sig, nil
}

func scanSignals(rows pgx.Rows) ([]*domain.SignalCandidate, error) {
	var sigs []*domain.SignalCandidate
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		sigs = append(sigs, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal rows: %w", err)
	}
	return sigs, nil
}
