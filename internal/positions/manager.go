// Package positions holds the position lifecycle manager: the single
// owner of in-memory position state. It reconciles cached positions
// against authoritative on-chain balances, prunes phantoms after a
// grace window, and materializes optimistic positions for submitted
// but unconfirmed buys.
package positions

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/guards"
	"solana-sniper/internal/solana"
)

// Manager owns the position map. All mutation goes through it; the
// engine never holds position pointers across ticks.
type Manager struct {
	mu        sync.Mutex
	owner     string
	params    domain.RiskParams
	positions map[string]*domain.Position
	credits   *guards.CreditStore
	balances  solana.BalanceSource

	// missingSince tracks when a position was first absent from the
	// authoritative source; the grace window counts from here.
	missingSince map[string]time.Time

	log *log.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger overrides the manager logger.
func WithManagerLogger(l *log.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a manager for the owner wallet.
func NewManager(owner string, balances solana.BalanceSource, credits *guards.CreditStore, params domain.RiskParams, opts ...ManagerOption) *Manager {
	m := &Manager{
		owner:        owner,
		params:       params,
		positions:    make(map[string]*domain.Position),
		credits:      credits,
		balances:     balances,
		missingSince: make(map[string]time.Time),
		log:          log.New(os.Stdout, "[positions] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Owner returns the wallet this manager reconciles against.
func (m *Manager) Owner() string { return m.owner }

// Get returns a copy of the position for the mint.
func (m *Manager) Get(mint string) (*domain.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[mint]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Open returns a deep copy of the position map.
func (m *Manager) Open() map[string]*domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]*domain.Position, len(m.positions))
	for mint, p := range m.positions {
		out[mint] = p.Clone()
	}
	return out
}

// Count returns the number of open positions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// Update applies fn to the live position under the manager lock.
func (m *Manager) Update(mint string, fn func(*domain.Position)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[mint]
	if !ok {
		return false
	}
	fn(p)
	return true
}

// ReconcileReport summarizes one reconcile pass.
type ReconcileReport struct {
	Synced []string // size overwritten from chain
	Kept   []string // absent but within grace or credit-backed
	Pruned []string // dropped phantoms
}

// Reconcile overwrites every cached position's size from the
// authoritative balance. A position absent on chain is kept while its
// grace window runs or while a pending credit exists for it; otherwise
// it is pruned as a phantom. Balance read errors keep the position
// untouched this pass.
func (m *Manager) Reconcile(ctx context.Context, now time.Time) *ReconcileReport {
	m.mu.Lock()
	mints := make([]string, 0, len(m.positions))
	for mint := range m.positions {
		mints = append(mints, mint)
	}
	m.mu.Unlock()

	rep := &ReconcileReport{}
	for _, mint := range mints {
		bal, err := m.balances.TokenBalanceOf(ctx, m.owner, mint)
		if err != nil {
			m.log.Printf("reconcile %s: balance read failed, keeping: %v", mint, err)
			rep.Kept = append(rep.Kept, mint)
			continue
		}
		m.reconcileOne(mint, bal, now, rep)
	}
	return rep
}

func (m *Manager) reconcileOne(mint string, bal *solana.TokenBalance, now time.Time, rep *ReconcileReport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[mint]
	if !ok {
		return
	}

	if bal.Exists && bal.SizeUi > 0 {
		pos.SizeUi = bal.SizeUi
		if pos.AwaitingSizeSync {
			pos.AwaitingSizeSync = false
			m.credits.Remove(mint)
			m.log.Printf("credit confirmed for %s: size %.4f", mint, bal.SizeUi)
		}
		delete(m.missingSince, mint)
		rep.Synced = append(rep.Synced, mint)
		return
	}

	// Absent on chain. A pending credit means the buy may still land.
	if _, pending := m.credits.Get(mint); pending {
		rep.Kept = append(rep.Kept, mint)
		return
	}

	since, tracked := m.missingSince[mint]
	if !tracked {
		m.missingSince[mint] = now
		rep.Kept = append(rep.Kept, mint)
		return
	}
	if now.Sub(since) < m.params.PhantomGrace {
		rep.Kept = append(rep.Kept, mint)
		return
	}

	delete(m.positions, mint)
	delete(m.missingSince, mint)
	m.log.Printf("pruned phantom %s after %s", mint, now.Sub(since))
	rep.Pruned = append(rep.Pruned, mint)
}

// SeedOptimistic materializes a tentative position for a submitted buy
// and enqueues its pending credit. An existing position absorbs the
// spend as a top-up. Returns the credit id.
func (m *Manager) SeedOptimistic(mint string, estSizeUi, costSol, baseSnapshot float64, txSig string, now time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[mint]
	if !ok {
		pos = &domain.Position{
			Mint:         mint,
			AcquiredAt:   now,
			WarmingHold:  true,
			WarmingSince: now,
		}
		m.positions[mint] = pos
	}
	pos.SizeUi += estSizeUi
	pos.CostSol += costSol
	pos.LastBuyAt = now
	pos.AwaitingSizeSync = true
	delete(m.missingSince, mint)

	return m.credits.Put(m.owner, mint, costSol, estSizeUi, baseSnapshot, txSig, now)
}

// ConfirmCredit sets the exact observed size and clears the sync flag.
func (m *Manager) ConfirmCredit(mint string, sizeUi float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pos, ok := m.positions[mint]; ok {
		pos.SizeUi = sizeUi
		pos.AwaitingSizeSync = false
	}
	m.credits.Remove(mint)
}

// DropCredit abandons a failed buy: the credit and, when still
// unconfirmed, the optimistic position are removed.
func (m *Manager) DropCredit(mint string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.credits.Remove(mint)
	if pos, ok := m.positions[mint]; ok && pos.AwaitingSizeSync {
		delete(m.positions, mint)
		delete(m.missingSince, mint)
	}
}

// ApplySell reduces the position after an executed sell. A full exit
// removes the position and reports the exit price for seed planting.
func (m *Manager) ApplySell(mint string, fraction, price float64, now time.Time) (fullExit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[mint]
	if !ok {
		return false
	}
	pos.LastSellAt = now
	if fraction >= 1 {
		delete(m.positions, mint)
		delete(m.missingSince, mint)
		return true
	}
	sold := pos.SizeUi * fraction
	pos.SizeUi -= sold
	pos.CostSol *= 1 - fraction
	pos.LastPrice = price
	return false
}

// Snapshot builds a persistable state blob from the live state.
func (m *Manager) Snapshot(now time.Time) *domain.StateBlob {
	m.mu.Lock()
	defer m.mu.Unlock()

	blob := domain.NewStateBlob(m.owner)
	blob.Risk = m.params
	blob.UpdatedAt = now
	for mint, p := range m.positions {
		blob.Positions[mint] = p.Clone()
	}
	return blob
}

// Restore loads positions from a persisted blob, coercing risk params
// through their schema clamps.
func (m *Manager) Restore(blob *domain.StateBlob) {
	if blob == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.params = blob.Risk.Normalize()
	m.positions = make(map[string]*domain.Position, len(blob.Positions))
	for mint, p := range blob.Positions {
		if p == nil || mint == "" {
			continue
		}
		m.positions[mint] = p.Clone()
	}
	m.missingSince = make(map[string]time.Time)
}

// Params returns the manager's risk parameters.
func (m *Manager) Params() domain.RiskParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}
