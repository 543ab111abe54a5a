package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"sst-bot/internal/domain"
	"sst-bot/internal/storage"
)

// SessionLevelsStore implements storage.SessionLevelsStore using PostgreSQL.
type SessionLevelsStore struct {
	pool *Pool
}

// NewSessionLevelsStore creates a new SessionLevelsStore.
func NewSessionLevelsStore(pool *Pool) *SessionLevelsStore {
	return &SessionLevelsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SessionLevelsStore = (*SessionLevelsStore)(nil)

const levelsColumns = `
	instrument, session_date,
	high_id, high_price, high_role, high_broken,
	low_id, low_price, low_role, low_broken,
	stale, created_at
`

// Insert adds the levels for a session. Returns ErrDuplicateKey if
// (instrument, session_date) exists.
func (s *SessionLevelsStore) Insert(ctx context.Context, sl *domain.SessionLevels) error {
	if sl == nil || sl.Instrument == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO session_levels (` + levelsColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		sl.Instrument, sl.SessionDate,
		sl.High.ID, sl.High.Price, sl.High.Role, sl.High.Broken,
		sl.Low.ID, sl.Low.Price, sl.Low.Role, sl.Low.Broken,
		sl.Stale, sl.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert session levels: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent levels for an instrument.
// Returns ErrNotFound if none exist.
func (s *SessionLevelsStore) GetLatest(ctx context.Context, instrument string) (*domain.SessionLevels, error) {
	query := `
		SELECT ` + levelsColumns + `
		FROM session_levels
		WHERE instrument = $1
		ORDER BY session_date DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, instrument)
	sl, err := scanSessionLevels(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest session levels: %w", err)
	}
	return sl, nil
}

// GetBySession retrieves the levels for a specific session date.
// Returns ErrNotFound if not exists.
func (s *SessionLevelsStore) GetBySession(ctx context.Context, instrument string, sessionDate time.Time) (*domain.SessionLevels, error) {
	query := `
		SELECT ` + levelsColumns + `
		FROM session_levels
		WHERE instrument = $1 AND session_date = $2
	`

	row := s.pool.QueryRow(ctx, query, instrument, sessionDate)
	sl, err := scanSessionLevels(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get session levels: %w", err)
	}
	return sl, nil
}

func scanSessionLevels(row pgx.Row) (*domain.SessionLevels, error) {
	var sl domain.SessionLevels
	err := row.Scan(
		&sl.Instrument, &sl.SessionDate,
		&sl.High.ID, &sl.High.Price, &sl.High.Role, &sl.High.Broken,
		&sl.Low.ID, &sl.Low.Price, &sl.Low.Role, &sl.Low.Broken,
		&sl.Stale, &sl.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	sl.High.Side = domain.LevelHigh
	sl.Low.Side = domain.LevelLow
	return &sl, nil
}
