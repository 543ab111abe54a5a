package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"sst-bot/internal/domain"
	"sst-bot/internal/storage"
)

// SignalStore is an in-memory implementation of storage.SignalStore.
type SignalStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SignalCandidate // keyed by signal id
}

// NewSignalStore creates a new in-memory signal store.
func NewSignalStore() *SignalStore {
	return &SignalStore{
		data: make(map[string]*domain.SignalCandidate),
	}
}

// Insert adds a new signal. Returns ErrDuplicateKey if signal_id exists.
func (s *SignalStore) Insert(_ context.Context, sig *domain.SignalCandidate) error {
	if sig == nil || sig.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sig.ID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *sig
	s.data[sig.ID] = &copy
	return nil
}

// GetByID retrieves a signal by its ID. Returns ErrNotFound if not exists.
func (s *SignalStore) GetByID(_ context.Context, signalID string) (*domain.SignalCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, exists := s.data[signalID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *sig
	return &copy, nil
}

// GetByInstrument retrieves all signals for an instrument, ordered by
// generated_at ASC.
func (s *SignalStore) GetByInstrument(_ context.Context, instrument string) ([]*domain.SignalCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SignalCandidate
	for _, sig := range s.data {
		if sig.Instrument == instrument {
			copy := *sig
			result = append(result, &copy)
		}
	}

	sortByGeneratedAt(result)
	return result, nil
}

// GetSince retrieves signals generated at or after cutoff, ordered by
// generated_at ASC.
func (s *SignalStore) GetSince(_ context.Context, cutoff time.Time) ([]*domain.SignalCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SignalCandidate
	for _, sig := range s.data {
		if !sig.GeneratedAt.Before(cutoff) {
			copy := *sig
			result = append(result, &copy)
		}
	}

	sortByGeneratedAt(result)
	return result, nil
}

func sortByGeneratedAt(sigs []*domain.SignalCandidate) {
	sort.Slice(sigs, func(i, j int) bool {
		return sigs[i].GeneratedAt.Before(sigs[j].GeneratedAt)
	})
}

var _ storage.SignalStore = (*SignalStore)(nil)
