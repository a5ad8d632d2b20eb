package memory

import (
	"context"
	"sync"

	"solana-signal-trader/internal/domain"
	"solana-signal-trader/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu       sync.RWMutex
	position *domain.Position
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{}
}

// Save stores the open position, replacing any previous one.
func (s *PositionStore) Save(_ context.Context, p *domain.Position) error {
	if p == nil || p.TokenID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.position = p.Clone()
	return nil
}

// Load returns the stored position. Returns ErrNotFound if there is none.
func (s *PositionStore) Load(_ context.Context) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.position == nil {
		return nil, storage.ErrNotFound
	}
	return s.position.Clone(), nil
}

// Delete removes the stored position.
func (s *PositionStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.position = nil
	return nil
}

var _ storage.PositionStore = (*PositionStore)(nil)

// TradedSet is an in-memory implementation of storage.TradedSet.
type TradedSet struct {
	mu     sync.RWMutex
	tokens map[string]bool
}

// NewTradedSet creates a new in-memory traded set.
func NewTradedSet() *TradedSet {
	return &TradedSet{
		tokens: make(map[string]bool),
	}
}

// Add marks the token as traded.
func (s *TradedSet) Add(_ context.Context, tokenID string) error {
	if tokenID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[tokenID] = true
	return nil
}

// Contains reports whether the token has been traded.
func (s *TradedSet) Contains(_ context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tokens[tokenID], nil
}

var _ storage.TradedSet = (*TradedSet)(nil)
