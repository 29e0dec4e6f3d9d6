package guards

import (
	"sync"
	"time"
)

// BanStore is a simple monotonic ban-window map, used for the no-route
// cooldown and other flat (non-staged) suppressions. Re-banning a mint
// never shortens an existing window.
type BanStore struct {
	mu    sync.Mutex
	until map[string]time.Time
	hits  map[string]int
}

// NewBanStore creates an empty ban store.
func NewBanStore() *BanStore {
	return &BanStore{
		until: make(map[string]time.Time),
		hits:  make(map[string]int),
	}
}

// Ban places the mint on cooldown. Repeated bans escalate the window
// linearly with the hit count, capped at 4x the base duration.
func (s *BanStore) Ban(mint string, base time.Duration, now time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hits[mint]++
	mult := s.hits[mint]
	if mult > 4 {
		mult = 4
	}

	until := now.Add(base * time.Duration(mult))
	if existing, ok := s.until[mint]; ok && existing.After(until) {
		until = existing
	}
	s.until[mint] = until
	return until
}

// Banned reports whether the mint is on cooldown.
func (s *BanStore) Banned(mint string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.until[mint]
	if !ok {
		return false
	}
	if !now.Before(until) {
		delete(s.until, mint)
		delete(s.hits, mint)
		return false
	}
	return true
}
