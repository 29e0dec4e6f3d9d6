package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

func TestStateStore_SaveAndLoad(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStateStore(pool)

	blob := domain.NewStateBlob("wallet1")
	blob.UpdatedAt = time.Now().UTC()
	blob.Positions["mintA"] = &domain.Position{
		Mint:    "mintA",
		SizeUi:  2500,
		CostSol: 0.75,
	}
	blob.Risk.TakeProfitPct = 30

	require.NoError(t, store.Save(ctx, blob))

	loaded, err := store.Load(ctx, "wallet1")
	require.NoError(t, err)

	assert.Equal(t, "wallet1", loaded.Wallet)
	assert.Equal(t, domain.StateBlobVersion, loaded.Version)
	assert.InDelta(t, 30.0, loaded.Risk.TakeProfitPct, 0.0001)
	require.Contains(t, loaded.Positions, "mintA")
	assert.InDelta(t, 2500.0, loaded.Positions["mintA"].SizeUi, 0.0001)
	assert.InDelta(t, 0.75, loaded.Positions["mintA"].CostSol, 0.0001)
}

func TestStateStore_LoadNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStateStore(pool)

	_, err := store.Load(context.Background(), "unknown-wallet")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStateStore_SaveUpserts(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStateStore(pool)

	blob := domain.NewStateBlob("wallet1")
	blob.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.Save(ctx, blob))

	// Second save with a position replaces the first row entirely
	blob.Positions["mintA"] = &domain.Position{Mint: "mintA", SizeUi: 10, CostSol: 0.1}
	blob.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.Save(ctx, blob))

	loaded, err := store.Load(ctx, "wallet1")
	require.NoError(t, err)
	assert.Len(t, loaded.Positions, 1)
}

func TestStateStore_RejectsInvalid(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStateStore(pool)

	assert.ErrorIs(t, store.Save(context.Background(), nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Save(context.Background(), &domain.StateBlob{}), storage.ErrInvalidInput)

	_, err := store.Load(context.Background(), "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
