package guards

import (
	"sync"
	"time"

	"solana-sniper/internal/domain"
)

// BlacklistStages is the number of escalation stages.
const BlacklistStages = 3

// BlacklistStore is the staged mint blacklist. Repeated flags escalate
// the stage and only ever lengthen the ban; an existing longer ban is
// never shortened.
type BlacklistStore struct {
	mu      sync.Mutex
	entries map[string]domain.BlacklistEntry

	// stage durations, index 0 = stage 1
	durations [BlacklistStages]time.Duration

	// coalesce window: flags arriving within it do not escalate again
	coalesce time.Duration
	lastFlag map[string]time.Time
}

// NewBlacklistStore creates a store with the given stage durations.
// Durations must be ascending; Normalize on the risk params guarantees
// stage1 <= stage2 <= stage3.
func NewBlacklistStore(stage1, stage2, stage3, coalesce time.Duration) *BlacklistStore {
	return &BlacklistStore{
		entries:   make(map[string]domain.BlacklistEntry),
		durations: [BlacklistStages]time.Duration{stage1, stage2, stage3},
		coalesce:  coalesce,
		lastFlag:  make(map[string]time.Time),
	}
}

// Flag records a blacklist trigger for the mint and returns the
// resulting entry. Escalation rules:
//   - first flag: stage 1
//   - flag outside the coalescing window: stage+1 (capped at stage 3)
//   - flag inside the coalescing window: stage unchanged
//
// The new expiry is max(existing, now+stageDuration).
func (s *BlacklistStore) Flag(mint string, now time.Time) domain.BlacklistEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[mint]
	stage := 1
	if ok {
		stage = e.Stage
		if last, seen := s.lastFlag[mint]; !seen || now.Sub(last) >= s.coalesce {
			stage++
		}
		if stage > BlacklistStages {
			stage = BlacklistStages
		}
	}
	s.lastFlag[mint] = now

	until := now.Add(s.durations[stage-1])
	if ok && e.Until.After(until) {
		until = e.Until
	}

	e = domain.BlacklistEntry{Mint: mint, Stage: stage, Until: until}
	s.entries[mint] = e
	return e
}

// Banned reports whether the mint is currently blacklisted.
func (s *BlacklistStore) Banned(mint string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[mint]
	if !ok {
		return false
	}
	if !now.Before(e.Until) {
		// Keep the stage so a relapse escalates, drop the active ban.
		return false
	}
	return true
}

// Entry returns the current record for the mint.
func (s *BlacklistStore) Entry(mint string) (domain.BlacklistEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[mint]
	return e, ok
}
