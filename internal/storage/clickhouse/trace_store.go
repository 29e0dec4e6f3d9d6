package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// TraceStore implements storage.TraceStore using ClickHouse. Traces
// are high volume and append-only, a natural fit for MergeTree.
type TraceStore struct {
	conn *Conn
}

// NewTraceStore creates a new TraceStore.
func NewTraceStore(conn *Conn) *TraceStore {
	return &TraceStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TraceStore = (*TraceStore)(nil)

// InsertBulk appends decision traces.
func (s *TraceStore) InsertBulk(ctx context.Context, traces []*domain.DecisionTrace) error {
	if len(traces) == 0 {
		return nil
	}

	for _, tr := range traces {
		if tr == nil || tr.TraceID == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO decision_traces (
			trace_id, mint, ts, action, reason, gross_pnl, net_pnl, steps, tags
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, tr := range traces {
		steps, err := json.Marshal(tr.Steps)
		if err != nil {
			return fmt.Errorf("encode trace steps: %w", err)
		}

		tags := tr.Tags
		if tags == nil {
			tags = []string{}
		}

		err = batch.Append(
			tr.TraceID, tr.Mint, tr.Ts, string(tr.Action), tr.Reason,
			tr.GrossPnl, tr.NetPnl, string(steps), tags,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByMint retrieves traces for a mint, ordered by timestamp ASC.
func (s *TraceStore) GetByMint(ctx context.Context, mint string, limit int) ([]*domain.DecisionTrace, error) {
	query := `
		SELECT trace_id, mint, ts, action, reason, gross_pnl, net_pnl, steps, tags
		FROM decision_traces
		WHERE mint = ?
		ORDER BY ts ASC
	`
	args := []interface{}{mint}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query traces by mint: %w", err)
	}
	defer rows.Close()

	var traces []*domain.DecisionTrace
	for rows.Next() {
		var (
			tr     domain.DecisionTrace
			ts     time.Time
			action string
			steps  string
			tags   []string
		)

		err := rows.Scan(
			&tr.TraceID, &tr.Mint, &ts, &action, &tr.Reason,
			&tr.GrossPnl, &tr.NetPnl, &steps, &tags,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trace row: %w", err)
		}

		tr.Ts = ts
		tr.Action = domain.Action(action)
		tr.Tags = tags
		if steps != "" {
			if err := json.Unmarshal([]byte(steps), &tr.Steps); err != nil {
				return nil, fmt.Errorf("decode trace steps: %w", err)
			}
		}

		traces = append(traces, &tr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace rows: %w", err)
	}

	return traces, nil
}
