// Package guards provides the TTL-keyed mint stores shared by the buy
// and sell passes: operation locks, the staged blacklist, ban windows,
// urgent-sell flags, pending credits and buy seeds. All stores are
// constructed once and injected; none hold ambient global state.
package guards

import (
	"sync"
	"time"

	"solana-sniper/internal/domain"
)

// LockStore issues short-lived per-mint operation locks. A lock held in
// any mode blocks a second concurrent operation on the same mint until
// it expires or is released.
type LockStore struct {
	mu    sync.Mutex
	locks map[string]domain.MintLock
}

// NewLockStore creates an empty lock store.
func NewLockStore() *LockStore {
	return &LockStore{locks: make(map[string]domain.MintLock)}
}

// Acquire takes the lock for the mint if it is free or expired.
// Returns false when another unexpired lock exists.
func (s *LockStore) Acquire(mint, mode string, ttl time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.locks[mint]; ok && now.Before(l.Until) {
		return false
	}
	s.locks[mint] = domain.MintLock{Mint: mint, Mode: mode, Until: now.Add(ttl)}
	return true
}

// Held returns the active lock for the mint, if any.
func (s *LockStore) Held(mint string, now time.Time) (domain.MintLock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[mint]
	if !ok || !now.Before(l.Until) {
		delete(s.locks, mint)
		return domain.MintLock{}, false
	}
	return l, true
}

// Release frees the lock early.
func (s *LockStore) Release(mint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, mint)
}

// Extend pushes the expiry of a held lock forward. No-op if the lock is
// not held.
func (s *LockStore) Extend(mint string, ttl time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[mint]
	if !ok || !now.Before(l.Until) {
		return
	}
	l.Until = now.Add(ttl)
	s.locks[mint] = l
}
