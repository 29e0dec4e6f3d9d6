package positions

import (
	"context"
	"log"
	"os"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/guards"
	"solana-sniper/internal/solana"
)

// DefaultWatchdogInterval is the pacing between credit resolution
// passes.
const DefaultWatchdogInterval = 15 * time.Second

// Watchdog resolves pending credits in the background: it polls the
// token balance for each unconfirmed buy and, when a transaction
// signature is known, the transaction outcome. Credits confirm when the
// balance rises above the pre-buy snapshot, drop when the transaction
// failed on chain, and expire after the attempt budget.
type Watchdog struct {
	manager  *Manager
	credits  *guards.CreditStore
	balances solana.BalanceSource
	rpc      solana.RPCClient
	interval time.Duration
	log      *log.Logger
}

// WatchdogOption configures a Watchdog.
type WatchdogOption func(*Watchdog)

// WithWatchdogInterval overrides the pass interval.
func WithWatchdogInterval(d time.Duration) WatchdogOption {
	return func(w *Watchdog) { w.interval = d }
}

// WithWatchdogLogger overrides the logger.
func WithWatchdogLogger(l *log.Logger) WatchdogOption {
	return func(w *Watchdog) { w.log = l }
}

// NewWatchdog creates a watchdog over the manager's credit store. rpc
// may be nil; transaction outcomes are then not consulted.
func NewWatchdog(manager *Manager, credits *guards.CreditStore, balances solana.BalanceSource, rpc solana.RPCClient, opts ...WatchdogOption) *Watchdog {
	w := &Watchdog{
		manager:  manager,
		credits:  credits,
		balances: balances,
		rpc:      rpc,
		interval: DefaultWatchdogInterval,
		log:      log.New(os.Stdout, "[watchdog] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run loops until the context is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.Tick(ctx, now)
		}
	}
}

// Tick runs one resolution pass over every pending credit.
func (w *Watchdog) Tick(ctx context.Context, now time.Time) {
	for _, c := range w.credits.All() {
		w.resolve(ctx, c, now)
	}
}

func (w *Watchdog) resolve(ctx context.Context, c domain.PendingCredit, now time.Time) {
	bal, err := w.balances.TokenBalanceOf(ctx, c.Owner, c.Mint)
	if err != nil {
		w.log.Printf("credit %s (%s): balance read failed: %v", c.ID, c.Mint, err)
		w.credits.Bump(c.Mint)
		return
	}

	if bal.Exists && bal.SizeUi > c.BaseSnapshot {
		w.manager.ConfirmCredit(c.Mint, bal.SizeUi)
		w.log.Printf("credit %s (%s) confirmed: size %.4f", c.ID, c.Mint, bal.SizeUi)
		return
	}

	// Balance not there yet; a known-failed transaction settles it.
	if w.rpc != nil && c.TxSignature != "" {
		tx, err := w.rpc.GetTransaction(ctx, c.TxSignature)
		if err != nil {
			w.log.Printf("credit %s (%s): tx lookup failed: %v", c.ID, c.Mint, err)
		} else if tx != nil && tx.Failed() {
			w.log.Printf("credit %s (%s): buy failed on chain, dropping", c.ID, c.Mint)
			w.manager.DropCredit(c.Mint)
			return
		}
	}

	bumped, ok := w.credits.Bump(c.Mint)
	if !ok {
		return
	}
	max := w.manager.Params().CreditMaxAttempts
	if max > 0 && bumped.Attempts >= max {
		w.log.Printf("credit %s (%s): attempt budget exhausted after %d tries, dropping", c.ID, c.Mint, bumped.Attempts)
		w.manager.DropCredit(c.Mint)
	}
}
