package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"sst-bot/internal/domain"
	"sst-bot/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by trade id
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.Trade),
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.ID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.data[t.ID] = &copy
	return nil
}

// Update rewrites an existing trade. Returns ErrNotFound if not exists.
func (s *TradeStore) Update(_ context.Context, t *domain.Trade) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.ID]; !exists {
		return storage.ErrNotFound
	}

	copy := *t
	s.data[t.ID] = &copy
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(_ context.Context, tradeID string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[tradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *t
	return &copy, nil
}

// GetByStatus retrieves all trades in the given status, ordered by
// opened_at ASC.
func (s *TradeStore) GetByStatus(_ context.Context, status domain.TradeStatus) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.Status == status {
			copy := *t
			result = append(result, &copy)
		}
	}

	sortByOpenedAt(result)
	return result, nil
}

// GetByInstrument retrieves all trades for an instrument, ordered by
// opened_at ASC.
func (s *TradeStore) GetByInstrument(_ context.Context, instrument string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.Instrument == instrument {
			copy := *t
			result = append(result, &copy)
		}
	}

	sortByOpenedAt(result)
	return result, nil
}

// GetClosedInRange retrieves closed trades with closed_at within
// [start, end] (inclusive), ordered by closed_at ASC.
func (s *TradeStore) GetClosedInRange(_ context.Context, start, end time.Time) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.Status != domain.TradeClosed {
			continue
		}
		if t.ClosedAt.Before(start) || t.ClosedAt.After(end) {
			continue
		}
		copy := *t
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ClosedAt.Before(result[j].ClosedAt)
	})

	return result, nil
}

func sortByOpenedAt(trades []*domain.Trade) {
	sort.Slice(trades, func(i, j int) bool {
		return trades[i].OpenedAt.Before(trades[j].OpenedAt)
	})
}

var _ storage.TradeStore = (*TradeStore)(nil)
