package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trade_records (
			trade_id, mint, side, size_ui, sol, price, reason, tx_signature, ts
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := s.pool.Exec(ctx, query,
		t.TradeID, t.Mint, t.Side, t.SizeUi, t.Sol, t.Price, t.Reason, t.TxSignature, t.Ts,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	query := `
		SELECT trade_id, mint, side, size_ui, sol, price, reason, tx_signature, ts
		FROM trade_records
		WHERE trade_id = $1
	`

	row := s.pool.QueryRow(ctx, query, tradeID)
	t, err := scanTradeRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade record by id: %w", err)
	}
	return t, nil
}

// GetByMint retrieves all trades for a mint, ordered by timestamp ASC.
func (s *TradeStore) GetByMint(ctx context.Context, mint string) ([]*domain.TradeRecord, error) {
	query := `
		SELECT trade_id, mint, side, size_ui, sol, price, reason, tx_signature, ts
		FROM trade_records
		WHERE mint = $1
		ORDER BY ts ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("get trade records by mint: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// GetRecent retrieves the most recent trades, newest first.
func (s *TradeStore) GetRecent(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	query := `
		SELECT trade_id, mint, side, size_ui, sol, price, reason, tx_signature, ts
		FROM trade_records
		ORDER BY ts DESC, trade_id DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent trade records: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// scanTradeRecord scans a single row into a TradeRecord.
func scanTradeRecord(row pgx.Row) (*domain.TradeRecord, error) {
	var t domain.TradeRecord

	err := row.Scan(
		&t.TradeID, &t.Mint, &t.Side, &t.SizeUi, &t.Sol, &t.Price, &t.Reason, &t.TxSignature, &t.Ts,
	)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// scanTradeRecords scans multiple rows into a slice of TradeRecord.
func scanTradeRecords(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord

	for rows.Next() {
		var t domain.TradeRecord

		err := rows.Scan(
			&t.TradeID, &t.Mint, &t.Side, &t.SizeUi, &t.Sol, &t.Price, &t.Reason, &t.TxSignature, &t.Ts,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade record row: %w", err)
		}

		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade record rows: %w", err)
	}

	return trades, nil
}
