package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"solana-sniper/internal/domain"
)

// StreamConfig configures the streaming feed client.
type StreamConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// MaxSnapshotAge bounds how stale TopRanked answers may be.
	MaxSnapshotAge time.Duration
	// RugTTL expires rug flags that stop being re-announced.
	RugTTL time.Duration
}

// DefaultStreamConfig returns default streaming configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxSnapshotAge:    90 * time.Second,
		RugTTL:            30 * time.Minute,
	}
}

// StreamFeed mirrors the leaderboard stream into a local snapshot so
// the tick loop reads candidates without a network round-trip.
type StreamFeed struct {
	endpoint string
	config   StreamConfig

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	snapshot   []domain.Candidate
	snapshotAt time.Time
	rugs       map[string]rugRecord
	stateMu    sync.RWMutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

type rugRecord struct {
	signal domain.RugSignal
	seenAt time.Time
}

// streamMessage is the feed's wire envelope.
type streamMessage struct {
	Type       string          `json:"type"`
	Candidates []candidateWire `json:"candidates,omitempty"`
	Mint       string          `json:"mint,omitempty"`
	Rug        *rugWire        `json:"rug,omitempty"`
}

// streamSubscribe is the channel subscription request.
type streamSubscribe struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// NewStreamFeed connects to the streaming endpoint and subscribes to
// the leaderboard and rug channels.
func NewStreamFeed(ctx context.Context, endpoint string, config *StreamConfig) (*StreamFeed, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}

	f := &StreamFeed{
		endpoint: endpoint,
		config:   cfg,
		rugs:     make(map[string]rugRecord),
		done:     make(chan struct{}),
	}

	if err := f.connect(ctx); err != nil {
		return nil, err
	}
	if err := f.subscribe(); err != nil {
		f.Close()
		return nil, err
	}

	f.wg.Add(1)
	go f.readLoop()

	f.wg.Add(1)
	go f.pingLoop()

	return f, nil
}

// connect establishes the WebSocket connection.
func (f *StreamFeed) connect(ctx context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	f.conn = conn
	return nil
}

// subscribe announces the channels this client consumes.
func (f *StreamFeed) subscribe() error {
	req := streamSubscribe{
		Op:       "subscribe",
		Channels: []string{"leaderboard", "rug"},
	}

	f.connMu.Lock()
	defer f.connMu.Unlock()

	if f.conn == nil {
		return fmt.Errorf("not connected")
	}

	f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	if err := f.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// TopRanked serves candidates from the mirrored snapshot. It fails
// with ErrStaleFeed when the stream has gone quiet beyond the
// freshness window, so the caller can fall back to polling.
func (f *StreamFeed) TopRanked(_ context.Context, n int) ([]domain.Candidate, error) {
	if f.closed.Load() {
		return nil, ErrFeedClosed
	}

	f.stateMu.RLock()
	defer f.stateMu.RUnlock()

	if f.snapshotAt.IsZero() || time.Since(f.snapshotAt) > f.config.MaxSnapshotAge {
		return nil, ErrStaleFeed
	}

	out := make([]domain.Candidate, 0, n)
	for _, c := range f.snapshot {
		if len(out) == n {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

// RugSignal serves the last streamed rug flag for the mint. Flags
// expire after RugTTL; unknown mints yield a zero-value signal.
func (f *StreamFeed) RugSignal(_ context.Context, mint string) (*domain.RugSignal, error) {
	if f.closed.Load() {
		return nil, ErrFeedClosed
	}

	f.stateMu.RLock()
	defer f.stateMu.RUnlock()

	rec, ok := f.rugs[mint]
	if !ok || time.Since(rec.seenAt) > f.config.RugTTL {
		return &domain.RugSignal{}, nil
	}
	sig := rec.signal
	return &sig, nil
}

// Close shuts the stream down.
func (f *StreamFeed) Close() error {
	if f.closed.Swap(true) {
		return nil // Already closed
	}

	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.wg.Wait()
	return nil
}

// readLoop reads stream messages and folds them into the snapshot.
func (f *StreamFeed) readLoop() {
	defer f.wg.Done()

	reconnectDelay := f.config.ReconnectDelay

	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !f.reconnecting.Swap(true) {
				go f.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > f.config.MaxReconnectDelay {
				reconnectDelay = f.config.MaxReconnectDelay
			}

			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = f.config.ReconnectDelay

		f.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (f *StreamFeed) reconnect(delay time.Duration) {
	defer f.reconnecting.Store(false)

	if f.closed.Load() {
		return
	}

	select {
	case <-f.done:
		return
	case <-time.After(delay):
	}

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := f.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}

	if err := f.subscribe(); err != nil {
		// Subscription failed, let the read loop trigger another cycle
		f.connMu.Lock()
		if f.conn != nil {
			f.conn.Close()
			f.conn = nil
		}
		f.connMu.Unlock()
	}
}

// handleMessage folds one stream message into local state.
func (f *StreamFeed) handleMessage(message []byte) {
	var msg streamMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "leaderboard":
		candidates := make([]domain.Candidate, 0, len(msg.Candidates))
		for _, w := range msg.Candidates {
			if w.Mint == "" {
				continue
			}
			candidates = append(candidates, w.toDomain())
		}

		f.stateMu.Lock()
		f.snapshot = candidates
		f.snapshotAt = time.Now()
		f.stateMu.Unlock()

	case "rug":
		if msg.Mint == "" || msg.Rug == nil {
			return
		}

		f.stateMu.Lock()
		f.rugs[msg.Mint] = rugRecord{
			signal: domain.RugSignal{
				Rugged:   msg.Rug.Rugged,
				Severity: msg.Rug.Severity,
				Badge:    msg.Rug.Badge,
			},
			seenAt: time.Now(),
		}
		// Opportunistic expiry sweep
		for mint, rec := range f.rugs {
			if time.Since(rec.seenAt) > f.config.RugTTL {
				delete(f.rugs, mint)
			}
		}
		f.stateMu.Unlock()
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (f *StreamFeed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
				if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			f.connMu.Unlock()
		}
	}
}

var _ Feed = (*StreamFeed)(nil)
