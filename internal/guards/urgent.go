package guards

import (
	"sync"
	"time"

	"solana-sniper/internal/domain"
)

// UrgentStore holds one-shot urgent-sell flags. A flag is consumed by
// at most one sell evaluation; the record then lingers as a cooldown so
// the same external signal cannot re-trigger within its window.
type UrgentStore struct {
	mu    sync.Mutex
	flags map[string]domain.UrgentSell
}

// NewUrgentStore creates an empty urgent-sell store.
func NewUrgentStore() *UrgentStore {
	return &UrgentStore{flags: make(map[string]domain.UrgentSell)}
}

// Raise sets an urgent-sell flag. A pending unconsumed flag is only
// upgraded, never downgraded: severity keeps its maximum and the window
// keeps its latest expiry.
func (s *UrgentStore) Raise(mint, reason string, severity float64, ttl time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flags[mint]
	if ok && !f.Consumed && now.Before(f.Until) {
		if severity > f.Severity {
			f.Severity = severity
			f.Reason = reason
		}
		if until := now.Add(ttl); until.After(f.Until) {
			f.Until = until
		}
		s.flags[mint] = f
		return
	}
	if ok && f.Consumed && now.Before(f.Until) {
		// Cooldown still running; suppress the re-raise.
		return
	}

	s.flags[mint] = domain.UrgentSell{
		Mint:     mint,
		Reason:   reason,
		Severity: severity,
		Until:    now.Add(ttl),
	}
}

// Consume returns the pending flag for the mint, marking it consumed.
// The second call within the window returns false.
func (s *UrgentStore) Consume(mint string, now time.Time) (domain.UrgentSell, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flags[mint]
	if !ok || f.Consumed || !now.Before(f.Until) {
		return domain.UrgentSell{}, false
	}
	f.Consumed = true
	s.flags[mint] = f
	return f, true
}

// Pending reports whether an unconsumed flag exists for the mint.
func (s *UrgentStore) Pending(mint string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flags[mint]
	return ok && !f.Consumed && now.Before(f.Until)
}
