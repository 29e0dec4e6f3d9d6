// Package memory provides in-memory store implementations used in
// tests and in paper-trading runs without a database.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// StateStore is an in-memory implementation of storage.StateStore.
type StateStore struct {
	mu   sync.RWMutex
	data map[string][]byte // keyed by wallet, stored as JSON for copy safety
}

// NewStateStore creates a new in-memory state store.
func NewStateStore() *StateStore {
	return &StateStore{
		data: make(map[string][]byte),
	}
}

// Load retrieves the blob for a wallet.
func (s *StateStore) Load(_ context.Context, wallet string) (*domain.StateBlob, error) {
	if wallet == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	raw, exists := s.data[wallet]
	s.mu.RUnlock()

	if !exists {
		return nil, storage.ErrNotFound
	}

	var blob domain.StateBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, err
	}
	return &blob, nil
}

// Save upserts the blob.
func (s *StateStore) Save(_ context.Context, blob *domain.StateBlob) error {
	if blob == nil || blob.Wallet == "" {
		return storage.ErrInvalidInput
	}

	raw, err := json.Marshal(blob)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.data[blob.Wallet] = raw
	s.mu.Unlock()
	return nil
}

var _ storage.StateStore = (*StateStore)(nil)
