package memory

import (
	"context"
	"sort"
	"sync"

	"solana-signal-trader/internal/domain"
	"solana-signal-trader/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ClosedTrade // keyed by position_id
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.ClosedTrade),
	}
}

// Insert adds a closed trade. Returns ErrDuplicateKey if position_id exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.ClosedTrade) error {
	if t == nil || t.PositionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.PositionID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.data[t.PositionID] = &copy
	return nil
}

// GetByPositionID retrieves a trade by position ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByPositionID(_ context.Context, positionID string) (*domain.ClosedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[positionID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *t
	return &copy, nil
}

// List returns the most recent trades ordered by closed_at DESC.
func (s *TradeStore) List(_ context.Context, limit int) ([]*domain.ClosedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ClosedTrade, 0, len(s.data))
	for _, t := range s.data {
		copy := *t
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ClosedAt.Equal(result[j].ClosedAt) {
			return result[i].PositionID < result[j].PositionID
		}
		return result[i].ClosedAt.After(result[j].ClosedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.TradeStore = (*TradeStore)(nil)
