package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-signal-trader/internal/domain"
	"solana-signal-trader/internal/storage"
)

// SampleStore is an in-memory implementation of storage.SampleStore.
type SampleStore struct {
	mu   sync.RWMutex
	data map[string][]domain.PriceSample // keyed by position_id
	keys map[string]struct{}             // (position_id, timestamp) seen
}

// NewSampleStore creates a new in-memory sample store.
func NewSampleStore() *SampleStore {
	return &SampleStore{
		data: make(map[string][]domain.PriceSample),
		keys: make(map[string]struct{}),
	}
}

// sampleKey generates a unique key for a sample.
func sampleKey(positionID string, s domain.PriceSample) string {
	return fmt.Sprintf("%s|%d", positionID, s.Timestamp.UnixNano())
}

// InsertSamples appends samples. Fails entire batch on duplicate (position_id, timestamp).
func (s *SampleStore) InsertSamples(_ context.Context, positionID, tokenID string, samples []domain.PriceSample) error {
	if positionID == "" || tokenID == "" {
		return storage.ErrInvalidInput
	}
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchKeys := make(map[string]struct{}, len(samples))
	for _, sample := range samples {
		key := sampleKey(positionID, sample)
		if _, exists := s.keys[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for key := range batchKeys {
		s.keys[key] = struct{}{}
	}
	s.data[positionID] = append(s.data[positionID], samples...)

	return nil
}

// GetByPosition returns the samples of a position ordered by timestamp ASC.
func (s *SampleStore) GetByPosition(_ context.Context, positionID string) ([]domain.PriceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := append([]domain.PriceSample(nil), s.data[positionID]...)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

var _ storage.SampleStore = (*SampleStore)(nil)
