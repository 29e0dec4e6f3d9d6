package guards

import (
	"sync"
	"time"

	"solana-sniper/internal/domain"
)

// SeedStore holds short-TTL buy-seed hints left behind by profitable
// exits with AllowRebuy set. The buy scanner consults them to bias
// re-entry toward mints that keep climbing.
type SeedStore struct {
	mu    sync.Mutex
	seeds map[string]domain.BuySeed
}

// NewSeedStore creates an empty seed store.
func NewSeedStore() *SeedStore {
	return &SeedStore{seeds: make(map[string]domain.BuySeed)}
}

// Plant records a seed for the mint.
func (s *SeedStore) Plant(mint string, exitPrice float64, ttl time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeds[mint] = domain.BuySeed{Mint: mint, ExitPrice: exitPrice, Until: now.Add(ttl)}
}

// Lookup returns the live seed for the mint, pruning expired entries.
func (s *SeedStore) Lookup(mint string, now time.Time) (domain.BuySeed, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seed, ok := s.seeds[mint]
	if !ok {
		return domain.BuySeed{}, false
	}
	if !now.Before(seed.Until) {
		delete(s.seeds, mint)
		return domain.BuySeed{}, false
	}
	return seed, true
}

// Clear removes the seed for the mint.
func (s *SeedStore) Clear(mint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seeds, mint)
}
