package guards

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"solana-sniper/internal/domain"
)

// CreditStore tracks pending optimistic credits: buys that were
// submitted but whose token balance has not yet been observed on chain.
// One credit per mint; the watchdog retries until confirmed or pruned.
type CreditStore struct {
	mu      sync.Mutex
	credits map[string]domain.PendingCredit // keyed by mint
}

// NewCreditStore creates an empty credit store.
func NewCreditStore() *CreditStore {
	return &CreditStore{credits: make(map[string]domain.PendingCredit)}
}

// Put records a pending credit for the mint, replacing any prior one.
// Returns the generated credit id.
func (s *CreditStore) Put(owner, mint string, addCost, estSize, baseSnapshot float64, txSig string, now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.credits[mint] = domain.PendingCredit{
		ID:           id,
		Owner:        owner,
		Mint:         mint,
		AddCost:      addCost,
		EstSizeUi:    estSize,
		BaseSnapshot: baseSnapshot,
		TxSignature:  txSig,
		CreatedAt:    now,
	}
	return id
}

// Get returns the pending credit for the mint.
func (s *CreditStore) Get(mint string) (domain.PendingCredit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credits[mint]
	return c, ok
}

// Bump increments the retry counter and returns the updated record.
func (s *CreditStore) Bump(mint string) (domain.PendingCredit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credits[mint]
	if !ok {
		return domain.PendingCredit{}, false
	}
	c.Attempts++
	s.credits[mint] = c
	return c, true
}

// Remove drops the credit (confirmed or pruned).
func (s *CreditStore) Remove(mint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.credits, mint)
}

// All returns a snapshot of every pending credit.
func (s *CreditStore) All() []domain.PendingCredit {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.PendingCredit, 0, len(s.credits))
	for _, c := range s.credits {
		out = append(out, c)
	}
	return out
}
