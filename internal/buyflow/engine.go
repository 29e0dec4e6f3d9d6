// Package buyflow implements the buy gating and sizing engine: the
// ordered gate chain run over ranked candidates when the engine has
// capacity for a new position. At most one buy is executed per pass.
package buyflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"solana-sniper/internal/advisor"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/edge"
	"solana-sniper/internal/entrysim"
	"solana-sniper/internal/guards"
	"solana-sniper/internal/market"
	"solana-sniper/internal/risk"
	"solana-sniper/internal/signals"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/swap"
)

// globalBuyKey is the reserved LockStore key serializing buys across
// mints.
const globalBuyKey = "__global_buy__"

// Config carries the engine collaborators.
type Config struct {
	Params    domain.RiskParams
	Signals   *signals.Cache
	Blacklist *guards.BlacklistStore
	Cooldowns *guards.BanStore // no-route cooldown, escalating TTL
	Locks     *guards.LockStore
	Seeds     *guards.SeedStore
	Feed      market.Feed
	Quoter    swap.Quoter
	Executor  swap.Executor
	Estimator *edge.Estimator
	Sizer     *edge.Sizer
	PumpGate  *risk.PumpGate
	Advisor   advisor.Advisor
	SimParams entrysim.Params
	Logger    *log.Logger
}

// Engine evaluates ranked candidates against the gate chain.
type Engine struct {
	cfg Config
	log *log.Logger
}

// NewEngine creates a buy engine.
func NewEngine(cfg Config) *Engine {
	l := cfg.Logger
	if l == nil {
		l = log.New(os.Stdout, "[buyflow] ", log.LstdFlags)
	}
	return &Engine{cfg: cfg, log: l}
}

// Outcome describes one executed (or submitted) buy.
type Outcome struct {
	Mint        string
	SpendSol    float64
	EstSizeUi   float64 // from the entry quote; authoritative size arrives via reconcile
	SlippageBps int
	Signature   string
	Confirmed   bool
	Reason      string

	// TopUp marks the second tranche of a light entry on an existing
	// position rather than a fresh one.
	TopUp bool

	// LightEntry marks a first tranche; LightRemaining is the capital
	// reserved for the top-up.
	LightEntry     bool
	LightRemaining float64
}

// skipError carries the gate that rejected a candidate. It is never
// surfaced to callers; Scan logs and moves to the next candidate.
type skipError struct {
	gate   string
	detail string
}

func (e *skipError) Error() string {
	if e.detail == "" {
		return e.gate
	}
	return e.gate + ": " + e.detail
}

func skip(gate, format string, args ...any) error {
	return &skipError{gate: gate, detail: fmt.Sprintf(format, args...)}
}

// Scan runs one buy pass: light-entry top-ups first, then fresh
// candidates in leaderboard order. Returns nil when nothing was bought.
func (e *Engine) Scan(ctx context.Context, owner string, open map[string]*domain.Position, now time.Time) (*Outcome, error) {
	candidates, err := e.cfg.Feed.TopRanked(ctx, 25)
	if err != nil {
		if errors.Is(err, market.ErrStaleFeed) {
			return nil, nil
		}
		return nil, fmt.Errorf("leaderboard: %w", err)
	}

	for _, c := range candidates {
		pos, held := open[c.Mint]
		if !held {
			continue
		}
		out, err := e.tryTopUp(ctx, owner, pos, c, len(open), now)
		if err != nil {
			var se *skipError
			if !errors.As(err, &se) {
				e.log.Printf("top-up %s: %v", c.Mint, err)
			}
			continue
		}
		return out, nil
	}

	if len(open) >= e.cfg.Params.MaxOpenPositions {
		return nil, nil
	}

	for _, c := range candidates {
		if _, held := open[c.Mint]; held {
			continue
		}
		out, err := e.evaluate(ctx, owner, c, len(open), now)
		if err != nil {
			var se *skipError
			if errors.As(err, &se) {
				continue
			}
			e.log.Printf("candidate %s: %v", c.Mint, err)
			continue
		}
		if out != nil {
			return out, nil
		}
	}
	return nil, nil
}

// evaluate runs the gate chain for one fresh candidate and executes the
// buy when every gate passes.
func (e *Engine) evaluate(ctx context.Context, owner string, c domain.Candidate, open int, now time.Time) (*Outcome, error) {
	p := e.cfg.Params

	if !solana.ValidPubkey(c.Mint) {
		return nil, skip("pubkey", "invalid mint %q", c.Mint)
	}
	if e.cfg.Blacklist.Banned(c.Mint, now) {
		return nil, skip("blacklist", "")
	}
	if e.cfg.Cooldowns.Banned(c.Mint, now) {
		return nil, skip("cooldown", "")
	}
	if _, held := e.cfg.Locks.Held(c.Mint, now); held {
		return nil, skip("lock", "")
	}

	sig, err := e.cfg.Feed.RugSignal(ctx, c.Mint)
	if err != nil && !errors.Is(err, market.ErrStaleFeed) {
		return nil, fmt.Errorf("rug signal: %w", err)
	}
	if sig != nil && sig.Rugged {
		e.cfg.Blacklist.Flag(c.Mint, now)
		return nil, skip("rug", "badge %s", sig.Badge)
	}

	seed, seeded := e.cfg.Seeds.Lookup(c.Mint, now)
	if seeded && c.PriceSol <= seed.ExitPrice {
		// The rebuy hint only applies while the price keeps climbing
		// past our exit.
		seeded = false
	}

	// The pump gate demands confirmation of a real run-up; a fresh
	// rebuy seed is its own confirmation.
	if !seeded && !e.cfg.PumpGate.Observe(c.Mint, c.Score, now) {
		return nil, skip("pump_gate", "score %.2f awaiting delta", c.Score)
	}

	series := e.cfg.Signals.Series(c.Mint, 5)
	sim := entrysim.Estimate(series, p.TakeProfitPct, p.EntrySimHorizon, e.cfg.SimParams)
	if sim == nil {
		return nil, skip("entry_sim", "insufficient data")
	}
	if sim.ProbEver < p.EntrySimMinProb {
		return nil, skip("entry_sim", "prob %.2f < %.2f", sim.ProbEver, p.EntrySimMinProb)
	}

	desired := p.PerBuyCapSol
	est, err := e.cfg.Estimator.Roundtrip(ctx, owner, c.Mint, desired, p.BuySlippageBps)
	if err != nil {
		if errors.Is(err, swap.ErrNoRoute) {
			until := e.cfg.Cooldowns.Ban(c.Mint, p.NoRouteCooldown, now)
			return nil, skip("edge", "no route, cooldown until %s", until.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("edge estimate: %w", err)
	}
	if est.PctExclOneTime < p.MinNetEdgePct {
		return nil, skip("edge", "%.1f%% < %.1f%%", est.PctExclOneTime, p.MinNetEdgePct)
	}

	slippage := p.BuySlippageBps
	adv, err := advisor.ResolveBuy(ctx, e.cfg.Advisor, advisor.BuyQuery{
		Mint:      c.Mint,
		Score:     c.Score,
		Liquidity: c.Liquidity,
		Volume:    c.Volume,
		EdgePct:   est.PctExclOneTime,
		SpendSol:  desired,
		OpenCount: open,
	}, p.AdvisorRequired)
	if err != nil {
		return nil, fmt.Errorf("advisor: %w", err)
	}
	if !adv.Proceed {
		return nil, skip("advisor", "%s", adv.Note)
	}
	if adv.SizingSol > 0 {
		desired = adv.SizingSol
	}
	if adv.SlippageBps > 0 {
		slippage = adv.SlippageBps
	}

	if !e.cfg.Locks.Acquire(globalBuyKey, "buy", p.GlobalBuyLockTTL, now) {
		if !p.AdvisorOverridesLocks {
			return nil, skip("global_lock", "")
		}
		e.log.Printf("global buy lock held for %s; proceeding in advisory mode", c.Mint)
	}

	out, err := e.submit(ctx, owner, c, desired, slippage, open, seeded, now)
	if err != nil {
		e.cfg.Locks.Release(globalBuyKey)
		return nil, err
	}
	return out, nil
}

// submit re-reads the spend ceiling, sizes the final tranche, quotes it
// and executes. The ceiling read happens last so concurrent fills can
// never push the wallet into its reserves.
func (e *Engine) submit(ctx context.Context, owner string, c domain.Candidate, desired float64, slippage, open int, seeded bool, now time.Time) (*Outcome, error) {
	p := e.cfg.Params

	ceiling, err := e.cfg.Sizer.SpendCeiling(ctx, owner, open, p)
	if err != nil {
		return nil, fmt.Errorf("spend ceiling: %w", err)
	}
	spend := edge.ClampSpend(desired, ceiling, p)
	if spend <= 0 {
		return nil, skip("sizing", "spendable %.4f", ceiling.SpendableSol)
	}

	lightEntry := false
	lightRemaining := 0.0
	if p.LightEntryFrac > 0 && p.LightEntryFrac < 1 {
		lightRemaining = spend * (1 - p.LightEntryFrac)
		spend *= p.LightEntryFrac
		lightEntry = true
	}

	if !e.cfg.Locks.Acquire(c.Mint, "buy", p.MintLockTTL, now) {
		return nil, skip("lock", "acquired mid-pass")
	}

	q, err := e.cfg.Quoter.Quote(ctx, swap.WSOLMint, c.Mint, spend, slippage)
	if err != nil {
		e.cfg.Locks.Release(c.Mint)
		if errors.Is(err, swap.ErrNoRoute) {
			e.cfg.Cooldowns.Ban(c.Mint, p.NoRouteCooldown, now)
			return nil, skip("quote", "no route")
		}
		return nil, fmt.Errorf("entry quote: %w", err)
	}

	res, err := e.cfg.Executor.Execute(ctx, swap.Params{
		Owner:       owner,
		InputMint:   swap.WSOLMint,
		OutputMint:  c.Mint,
		Amount:      spend,
		SlippageBps: slippage,
	})
	if err != nil && !errors.Is(err, swap.ErrUnconfirmed) {
		e.cfg.Locks.Release(c.Mint)
		if errors.Is(err, swap.ErrNoRoute) {
			e.cfg.Cooldowns.Ban(c.Mint, p.NoRouteCooldown, now)
			return nil, skip("execute", "no route")
		}
		return nil, fmt.Errorf("execute buy: %w", err)
	}

	estSize := q.OutAmount
	confirmed := false
	signature := ""
	if res != nil {
		signature = res.Signature
		confirmed = res.Confirmed
		if res.Confirmed && res.OutAmount > 0 {
			estSize = res.OutAmount
		}
	}

	if seeded {
		e.cfg.Seeds.Clear(c.Mint)
	}
	e.cfg.PumpGate.Forget(c.Mint)

	reason := domain.ReasonEntry
	e.log.Printf("buy %s spend %.4f SOL est %.2f units confirmed=%t", c.Mint, spend, estSize, confirmed)
	return &Outcome{
		Mint:           c.Mint,
		SpendSol:       spend,
		EstSizeUi:      estSize,
		SlippageBps:    slippage,
		Signature:      signature,
		Confirmed:      confirmed,
		Reason:         reason,
		LightEntry:     lightEntry,
		LightRemaining: lightRemaining,
	}, nil
}

// tryTopUp spends the reserved second tranche of a light entry once the
// position is in profit with rising momentum.
func (e *Engine) tryTopUp(ctx context.Context, owner string, pos *domain.Position, c domain.Candidate, open int, now time.Time) (*Outcome, error) {
	p := e.cfg.Params
	if !pos.LightEntry || pos.LightRemainingCapital <= 0 {
		return nil, skip("top_up", "no tranche")
	}
	if pos.AwaitingSizeSync {
		return nil, skip("top_up", "pending credit")
	}
	if c.PriceSol <= 0 || pos.PnlPct(c.PriceSol) <= 0 {
		return nil, skip("top_up", "not in profit")
	}
	series := e.cfg.Signals.Series(c.Mint, 5)
	if signals.SlopePerMinute(series, domain.FieldPriceChange5m) <= 0 {
		return nil, skip("top_up", "momentum flat")
	}

	ceiling, err := e.cfg.Sizer.SpendCeiling(ctx, owner, open, p)
	if err != nil {
		return nil, fmt.Errorf("spend ceiling: %w", err)
	}
	spend := edge.ClampSpend(pos.LightRemainingCapital, ceiling, p)
	if spend <= 0 {
		return nil, skip("top_up", "no spendable")
	}

	if !e.cfg.Locks.Acquire(c.Mint, "buy", p.MintLockTTL, now) {
		return nil, skip("top_up", "locked")
	}

	q, err := e.cfg.Quoter.Quote(ctx, swap.WSOLMint, c.Mint, spend, p.BuySlippageBps)
	if err != nil {
		e.cfg.Locks.Release(c.Mint)
		return nil, skip("top_up", "quote: %v", err)
	}

	res, err := e.cfg.Executor.Execute(ctx, swap.Params{
		Owner:       owner,
		InputMint:   swap.WSOLMint,
		OutputMint:  c.Mint,
		Amount:      spend,
		SlippageBps: p.BuySlippageBps,
	})
	if err != nil && !errors.Is(err, swap.ErrUnconfirmed) {
		e.cfg.Locks.Release(c.Mint)
		return nil, fmt.Errorf("execute top-up: %w", err)
	}

	estSize := q.OutAmount
	confirmed := false
	signature := ""
	if res != nil {
		signature = res.Signature
		confirmed = res.Confirmed
		if res.Confirmed && res.OutAmount > 0 {
			estSize = res.OutAmount
		}
	}

	e.log.Printf("top-up %s spend %.4f SOL confirmed=%t", c.Mint, spend, confirmed)
	return &Outcome{
		Mint:        c.Mint,
		SpendSol:    spend,
		EstSizeUi:   estSize,
		SlippageBps: p.BuySlippageBps,
		Signature:   signature,
		Confirmed:   confirmed,
		Reason:      domain.ReasonLightTopUp,
		TopUp:       true,
	}, nil
}
