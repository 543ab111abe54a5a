package memory

import (
	"context"
	"sync"
	"time"

	"sst-bot/internal/domain"
	"sst-bot/internal/storage"
)

type levelsKey struct {
	instrument  string
	sessionDate time.Time
}

// SessionLevelsStore is an in-memory implementation of storage.SessionLevelsStore.
type SessionLevelsStore struct {
	mu   sync.RWMutex
	data map[levelsKey]*domain.SessionLevels
}

// NewSessionLevelsStore creates a new in-memory session levels store.
func NewSessionLevelsStore() *SessionLevelsStore {
	return &SessionLevelsStore{
		data: make(map[levelsKey]*domain.SessionLevels),
	}
}

// Insert adds the levels for a session. Returns ErrDuplicateKey if
// (instrument, session_date) exists.
func (s *SessionLevelsStore) Insert(_ context.Context, sl *domain.SessionLevels) error {
	if sl == nil || sl.Instrument == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := levelsKey{sl.Instrument, sl.SessionDate.UTC()}
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *sl
	s.data[key] = &copy
	return nil
}

// GetLatest retrieves the most recent levels for an instrument.
// Returns ErrNotFound if none exist.
func (s *SessionLevelsStore) GetLatest(_ context.Context, instrument string) (*domain.SessionLevels, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.SessionLevels
	for key, sl := range s.data {
		if key.instrument != instrument {
			continue
		}
		if latest == nil || sl.SessionDate.After(latest.SessionDate) {
			latest = sl
		}
	}

	if latest == nil {
		return nil, storage.ErrNotFound
	}

	copy := *latest
	return &copy, nil
}

// GetBySession retrieves the levels for a specific session date.
// Returns ErrNotFound if not exists.
func (s *SessionLevelsStore) GetBySession(_ context.Context, instrument string, sessionDate time.Time) (*domain.SessionLevels, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, exists := s.data[levelsKey{instrument, sessionDate.UTC()}]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *sl
	return &copy, nil
}

var _ storage.SessionLevelsStore = (*SessionLevelsStore)(nil)
