package storage

import (
	"context"

	"solana-sniper/internal/domain"
)

// StateStore persists the single versioned wallet state blob (position
// map, risk parameters, wallet reference).
type StateStore interface {
	// Load retrieves the blob for a wallet. Returns ErrNotFound when the
	// wallet has never been saved.
	Load(ctx context.Context, wallet string) (*domain.StateBlob, error)

	// Save upserts the blob. The stored copy always wins on restart, so
	// callers persist after every mutating tick.
	Save(ctx context.Context, blob *domain.StateBlob) error
}

// TradeStore provides access to executed-trade records.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error)

	// GetByMint retrieves all trades for a mint, ordered by timestamp ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.TradeRecord, error)

	// GetRecent retrieves the most recent trades, newest first.
	GetRecent(ctx context.Context, limit int) ([]*domain.TradeRecord, error)
}

// TraceStore records per-tick decision traces for offline analysis.
// Traces are append-only and high volume; implementations batch.
type TraceStore interface {
	// InsertBulk appends decision traces.
	InsertBulk(ctx context.Context, traces []*domain.DecisionTrace) error

	// GetByMint retrieves traces for a mint, ordered by timestamp ASC.
	GetByMint(ctx context.Context, mint string, limit int) ([]*domain.DecisionTrace, error)
}
