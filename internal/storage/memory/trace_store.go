package memory

import (
	"context"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// TraceStore is an in-memory implementation of storage.TraceStore.
type TraceStore struct {
	mu   sync.RWMutex
	data []*domain.DecisionTrace // append order == timestamp order
}

// NewTraceStore creates a new in-memory trace store.
func NewTraceStore() *TraceStore {
	return &TraceStore{}
}

// InsertBulk appends decision traces.
func (s *TraceStore) InsertBulk(_ context.Context, traces []*domain.DecisionTrace) error {
	if len(traces) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tr := range traces {
		if tr == nil || tr.TraceID == "" {
			return storage.ErrInvalidInput
		}
		copy := *tr
		s.data = append(s.data, &copy)
	}
	return nil
}

// GetByMint retrieves traces for a mint, ordered by timestamp ASC.
func (s *TraceStore) GetByMint(_ context.Context, mint string, limit int) ([]*domain.DecisionTrace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DecisionTrace
	for _, tr := range s.data {
		if tr.Mint == mint {
			copy := *tr
			result = append(result, &copy)
		}
	}

	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

var _ storage.TraceStore = (*TraceStore)(nil)
