package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// StateStore implements storage.StateStore using PostgreSQL. The blob
// is stored as one JSONB row per wallet and upserted as a whole.
type StateStore struct {
	pool *Pool
}

// NewStateStore creates a new StateStore.
func NewStateStore(pool *Pool) *StateStore {
	return &StateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StateStore = (*StateStore)(nil)

// Load retrieves the blob for a wallet. Returns ErrNotFound when the
// wallet has never been saved.
func (s *StateStore) Load(ctx context.Context, wallet string) (*domain.StateBlob, error) {
	if wallet == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT blob
		FROM wallet_state
		WHERE wallet = $1
	`

	var raw []byte
	err := s.pool.QueryRow(ctx, query, wallet).Scan(&raw)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load wallet state: %w", err)
	}

	var blob domain.StateBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, fmt.Errorf("decode wallet state: %w", err)
	}
	return &blob, nil
}

// Save upserts the blob.
func (s *StateStore) Save(ctx context.Context, blob *domain.StateBlob) error {
	if blob == nil || blob.Wallet == "" {
		return storage.ErrInvalidInput
	}

	raw, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("encode wallet state: %w", err)
	}

	query := `
		INSERT INTO wallet_state (wallet, version, blob, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet) DO UPDATE SET
			version = EXCLUDED.version,
			blob = EXCLUDED.blob,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.pool.Exec(ctx, query, blob.Wallet, blob.Version, raw, blob.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save wallet state: %w", err)
	}
	return nil
}
