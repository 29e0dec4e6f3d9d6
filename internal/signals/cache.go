// Package signals keeps a rolling per-mint window of leaderboard
// samples and derives per-minute slopes and accelerations from it.
package signals

import (
	"sync"
	"time"

	"solana-sniper/internal/domain"
)

// MaxSamples is the window size per mint.
const MaxSamples = 5

// DefaultMinSpacing is the debounce: samples arriving faster than this
// replace the newest entry instead of appending.
const DefaultMinSpacing = 20 * time.Second

// Cache is the rolling sample store. Safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	data       map[string][]domain.LeaderSample
	minSpacing time.Duration
}

// NewCache creates a cache with the given debounce spacing; zero uses
// DefaultMinSpacing.
func NewCache(minSpacing time.Duration) *Cache {
	if minSpacing <= 0 {
		minSpacing = DefaultMinSpacing
	}
	return &Cache{
		data:       make(map[string][]domain.LeaderSample),
		minSpacing: minSpacing,
	}
}

// Record appends a sample for the mint, replacing the newest entry when
// it arrives within the debounce spacing. The window never exceeds
// MaxSamples; the oldest entry is evicted.
func (c *Cache) Record(mint string, s domain.LeaderSample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	window := c.data[mint]
	if n := len(window); n > 0 && s.Ts.Sub(window[n-1].Ts) < c.minSpacing {
		window[n-1] = s
		return
	}

	window = append(window, s)
	if len(window) > MaxSamples {
		window = window[len(window)-MaxSamples:]
	}
	c.data[mint] = window
}

// Series returns the last n samples for the mint, oldest first. The
// returned slice is a copy. Missing mints yield an empty slice.
func (c *Cache) Series(mint string, n int) []domain.LeaderSample {
	c.mu.RLock()
	defer c.mu.RUnlock()

	window := c.data[mint]
	if n > len(window) {
		n = len(window)
	}
	if n <= 0 {
		return nil
	}

	out := make([]domain.LeaderSample, n)
	copy(out, window[len(window)-n:])
	return out
}

// Len returns the current window size for the mint.
func (c *Cache) Len(mint string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data[mint])
}

// Forget drops the window for a mint (after a full exit or blacklist).
func (c *Cache) Forget(mint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, mint)
}

// Tracked returns all mints with at least one sample.
func (c *Cache) Tracked() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	mints := make([]string, 0, len(c.data))
	for mint := range c.data {
		mints = append(mints, mint)
	}
	return mints
}
