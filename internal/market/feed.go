// Package market provides the leaderboard/rug-signal feed consumed by
// the buy and sell passes: a streaming client that mirrors the feed
// into a local snapshot, and a polling HTTP client used as fallback.
package market

import (
	"context"
	"errors"

	"solana-sniper/internal/domain"
)

// Sentinel errors.
var (
	// ErrStaleFeed means the streaming snapshot has not been refreshed
	// within the configured freshness window.
	ErrStaleFeed = errors.New("feed snapshot is stale")

	// ErrFeedClosed means the feed client has been shut down.
	ErrFeedClosed = errors.New("feed closed")
)

// Feed exposes ranked candidates and rug signals.
type Feed interface {
	// TopRanked returns up to n leaderboard candidates, best first.
	TopRanked(ctx context.Context, n int) ([]domain.Candidate, error)

	// RugSignal reports the rug status of a mint. Mints the feed has
	// never flagged yield a zero-value signal, not an error.
	RugSignal(ctx context.Context, mint string) (*domain.RugSignal, error)
}
