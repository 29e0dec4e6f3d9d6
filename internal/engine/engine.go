// Package engine drives the trading loop. Each tick refreshes feed
// signals, reconciles positions against chain balances, runs the sell
// pipeline over every open position, scans the leaderboard for a buy,
// and persists the state blob.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"solana-sniper/internal/advisor"
	"solana-sniper/internal/buyflow"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/guards"
	"solana-sniper/internal/market"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/positions"
	"solana-sniper/internal/risk"
	"solana-sniper/internal/sellflow"
	"solana-sniper/internal/signals"
	"solana-sniper/internal/storage"
	"solana-sniper/internal/swap"
)

const (
	// DefaultInterval is the base tick spacing.
	DefaultInterval = 5 * time.Second

	// leaderboardDepth is how many ranked candidates feed the signal
	// cache and the sell-pass price map each tick.
	leaderboardDepth = 25
)

// Options for creating an Engine.
type Options struct {
	// Required collaborators
	Manager  *positions.Manager
	Feed     market.Feed
	Signals  *signals.Cache
	Quoter   swap.Quoter
	Executor swap.Executor
	Buyer    *buyflow.Engine

	// Shared guard stores
	Urgent    *guards.UrgentStore
	Locks     *guards.LockStore
	Blacklist *guards.BlacklistStore
	Seeds     *guards.SeedStore

	// Persistence. States is required; Trades and Traces are optional
	// and written best effort.
	States storage.StateStore
	Trades storage.TradeStore
	Traces storage.TraceStore

	// Optional
	Advisor  advisor.Advisor
	Metrics  *observability.Metrics
	Interval time.Duration
	Jitter   time.Duration
	Logger   *log.Logger
	Clock    func() time.Time
}

// Engine owns the tick loop and all position mutation outside the
// reconcile watchdog.
type Engine struct {
	manager   *positions.Manager
	feed      market.Feed
	signals   *signals.Cache
	executor  swap.Executor
	buyer     *buyflow.Engine
	locks     *guards.LockStore
	blacklist *guards.BlacklistStore
	seeds     *guards.SeedStore
	states    storage.StateStore
	trades    storage.TradeStore
	traces    storage.TraceStore
	metrics   *observability.Metrics
	pipeline  *sellflow.Pipeline

	interval time.Duration
	jitter   time.Duration
	log      *log.Logger
	clock    func() time.Time

	// wake coalesces tick requests that arrive while one is running.
	wake     chan struct{}
	inFlight atomic.Bool

	startedAt    time.Time
	ticks        atomic.Uint64
	buys         atomic.Uint64
	sells        atomic.Uint64
	lastTickUnix atomic.Int64
}

// New creates an Engine and wires the canonical sell pipeline from the
// manager's risk parameters.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Manager == nil:
		return nil, fmt.Errorf("engine: Manager is required")
	case opts.Feed == nil:
		return nil, fmt.Errorf("engine: Feed is required")
	case opts.Signals == nil:
		return nil, fmt.Errorf("engine: Signals is required")
	case opts.Quoter == nil:
		return nil, fmt.Errorf("engine: Quoter is required")
	case opts.Executor == nil:
		return nil, fmt.Errorf("engine: Executor is required")
	case opts.Buyer == nil:
		return nil, fmt.Errorf("engine: Buyer is required")
	case opts.Locks == nil:
		return nil, fmt.Errorf("engine: Locks is required")
	case opts.Urgent == nil:
		return nil, fmt.Errorf("engine: Urgent is required")
	case opts.Blacklist == nil:
		return nil, fmt.Errorf("engine: Blacklist is required")
	case opts.Seeds == nil:
		return nil, fmt.Errorf("engine: Seeds is required")
	case opts.States == nil:
		return nil, fmt.Errorf("engine: States is required")
	}

	l := opts.Logger
	if l == nil {
		l = log.New(os.Stdout, "[engine] ", log.LstdFlags)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	jitter := opts.Jitter
	if jitter < 0 || jitter >= interval {
		jitter = interval / 5
	}

	e := &Engine{
		manager:   opts.Manager,
		feed:      opts.Feed,
		signals:   opts.Signals,
		executor:  opts.Executor,
		buyer:     opts.Buyer,
		locks:     opts.Locks,
		blacklist: opts.Blacklist,
		seeds:     opts.Seeds,
		states:    opts.States,
		trades:    opts.Trades,
		traces:    opts.Traces,
		metrics:   opts.Metrics,
		interval:  interval,
		jitter:    jitter,
		log:       l,
		clock:     clock,
		wake:      make(chan struct{}, 1),
		startedAt: clock(),
	}

	params := opts.Manager.Params()
	deps := sellflow.Deps{
		Params:  params,
		Signals: opts.Signals,
		Urgent:  opts.Urgent,
		Locks:   opts.Locks,
		Feed:    opts.Feed,
		Quoter:  opts.Quoter,
		Warming: risk.NewWarmingPolicy(params),
		Rebound: risk.NewReboundGate(params),
		Fast:    risk.NewFastExitLadder(params),
		DynStop: risk.NewDynamicStop(params),
		Advisor: opts.Advisor,
		Exec:    e.executeSell,
	}
	e.pipeline = sellflow.NewPipeline(sellflow.Canonical(deps), sellflow.WithLogger(l))
	return e, nil
}

// Run ticks until the context is cancelled. The ticker is jittered so
// restarts across instances do not align on the feed.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Printf("starting: owner=%s interval=%s", e.manager.Owner(), e.interval)
	timer := time.NewTimer(e.nextDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Printf("stopping: %v", ctx.Err())
			return ctx.Err()
		case <-timer.C:
		case <-e.wake:
		}
		e.Tick(ctx)
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(e.nextDelay())
	}
}

// Wake requests an extra tick. Requests arriving while a tick runs
// coalesce into a single pending one.
func (e *Engine) Wake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) nextDelay() time.Duration {
	if e.jitter <= 0 {
		return e.interval
	}
	return e.interval - e.jitter + time.Duration(rand.Int63n(int64(2*e.jitter)))
}

// Tick runs one full pass: signals, reconcile, sells, buy, persist.
// A tick requested while one is in flight is coalesced, never nested,
// so the sell and buy passes are mutually exclusive.
func (e *Engine) Tick(ctx context.Context) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.Wake()
		return
	}
	defer e.inFlight.Store(false)

	wallStart := time.Now()
	now := e.clock()

	prices := e.refreshSignals(ctx, now)

	rep := e.manager.Reconcile(ctx, now)
	if len(rep.Pruned) > 0 {
		e.log.Printf("reconcile pruned phantoms: %v", rep.Pruned)
		e.metrics.AddPhantomsPruned(len(rep.Pruned))
	}

	traces := e.sellPass(ctx, prices, now)
	e.buyPass(ctx, now)
	e.persist(ctx, now, traces)

	e.ticks.Add(1)
	e.lastTickUnix.Store(now.Unix())
	e.metrics.ObserveTick(time.Since(wallStart))
	e.metrics.SetPositionGauges(e.manager.Count(), e.pendingCredits())
}

// refreshSignals pulls the ranked leaderboard into the signal cache and
// returns the tick's price map. The streaming feed serves this and the
// buy scan from the same local snapshot.
func (e *Engine) refreshSignals(ctx context.Context, now time.Time) map[string]float64 {
	cands, err := e.feed.TopRanked(ctx, leaderboardDepth)
	if err != nil {
		e.metrics.RecordFeedError()
		if !errors.Is(err, market.ErrStaleFeed) {
			e.log.Printf("feed: %v", err)
		}
		return nil
	}

	prices := make(map[string]float64, len(cands))
	for _, c := range cands {
		s := c.Sample()
		s.Ts = now
		e.signals.Record(c.Mint, s)
		prices[c.Mint] = c.PriceSol
	}
	return prices
}

// sellPass evaluates every open position through the pipeline, writes
// mutated risk state back, and collects decision traces. Positions are
// visited in mint order so replays are deterministic.
func (e *Engine) sellPass(ctx context.Context, prices map[string]float64, now time.Time) []*domain.DecisionTrace {
	open := e.manager.Open()
	mints := make([]string, 0, len(open))
	for m := range open {
		mints = append(mints, m)
	}
	sort.Strings(mints)

	traces := make([]*domain.DecisionTrace, 0, len(open))
	for _, mint := range mints {
		pos := open[mint]
		sc := domain.NewSellContext(pos, now)
		sc.Price = prices[mint]

		e.pipeline.Evaluate(ctx, sc)

		// The pipeline mutated a clone; fold the risk state back into
		// the live position. No-op after a full exit.
		e.manager.Update(mint, func(p *domain.Position) {
			copyRiskState(p, pos)
		})

		e.metrics.RecordSellDecision(string(sc.Decision), sc.Reason)
		traces = append(traces, &domain.DecisionTrace{
			TraceID:  uuid.NewString(),
			Mint:     mint,
			Ts:       now,
			Action:   sc.Decision,
			Reason:   sc.Reason,
			GrossPnl: sc.GrossPnlPct,
			NetPnl:   sc.NetPnlPct,
			Steps:    sc.Trace,
			Tags:     sc.Tags,
		})
	}
	return traces
}

// executeSell is the pipeline's terminal callback. The execute step
// holds the mint lock; this applies the fill to the book, appends the
// trade record, and plants the follow-up guard state.
func (e *Engine) executeSell(ctx context.Context, sc *domain.SellContext) error {
	params := e.manager.Params()
	amount := sc.Pos.SizeUi * sc.SellFraction

	res, err := e.executor.Execute(ctx, swap.Params{
		Owner:       e.manager.Owner(),
		InputMint:   sc.Mint,
		OutputMint:  swap.WSOLMint,
		Amount:      amount,
		SlippageBps: params.SellSlippageBps,
	})
	if err != nil && !errors.Is(err, swap.ErrUnconfirmed) {
		e.metrics.RecordExecutionError()
		return err
	}

	// Unconfirmed fills are applied optimistically; the reconcile pass
	// overwrites size from chain truth either way.
	var sig string
	proceeds := amount * sc.Price
	if res != nil {
		sig = res.Signature
		if res.OutAmount > 0 {
			proceeds = res.OutAmount
		}
	}

	fullExit := e.manager.ApplySell(sc.Mint, sc.SellFraction, sc.Price, sc.Now)
	e.sells.Add(1)
	e.metrics.RecordTrade(domain.SideSell)
	e.recordTrade(ctx, &domain.TradeRecord{
		TradeID:     domain.ComputeTradeID(sc.Mint, domain.SideSell, sc.Reason, sc.Now),
		Mint:        sc.Mint,
		Side:        domain.SideSell,
		SizeUi:      amount,
		Sol:         proceeds,
		Price:       sc.Price,
		Reason:      sc.Reason,
		TxSignature: sig,
		Ts:          sc.Now,
	})

	if sc.Reason == domain.ReasonRug {
		entry := e.blacklist.Flag(sc.Mint, sc.Now)
		e.log.Printf("blacklisted %s until %s (stage %d)", sc.Mint, entry.Until.Format(time.RFC3339), entry.Stage)
	}
	if fullExit {
		if sc.Pos.AllowRebuy && sc.NetPnlPct > 0 && sc.Reason != domain.ReasonRug {
			e.seeds.Plant(sc.Mint, sc.Price, params.BuySeedTTL, sc.Now)
		}
		e.locks.Release(sc.Mint)
	}

	e.log.Printf("sold %s: %s frac=%.2f net=%.2f%% reason=%s sig=%s",
		sc.Mint, sc.Decision, sc.SellFraction, sc.NetPnlPct, sc.Reason, sig)
	return nil
}

// buyPass runs the gate chain once and books the optimistic credit for
// whatever it bought.
func (e *Engine) buyPass(ctx context.Context, now time.Time) {
	out, err := e.buyer.Scan(ctx, e.manager.Owner(), e.manager.Open(), now)
	if err != nil {
		e.log.Printf("buy scan: %v", err)
		return
	}
	if out == nil {
		return
	}

	base := 0.0
	if p, ok := e.manager.Get(out.Mint); ok {
		base = p.SizeUi
	}
	e.manager.SeedOptimistic(out.Mint, out.EstSizeUi, out.SpendSol, base, out.Signature, now)
	e.manager.Update(out.Mint, func(p *domain.Position) {
		if out.TopUp {
			p.LightEntry = false
			p.LightRemainingCapital = 0
			return
		}
		p.AllowRebuy = true
		if out.LightEntry {
			p.LightEntry = true
			p.LightRemainingCapital = out.LightRemaining
		}
	})
	e.locks.Release(out.Mint)

	price := 0.0
	if out.EstSizeUi > 0 {
		price = out.SpendSol / out.EstSizeUi
	}
	e.buys.Add(1)
	e.metrics.RecordTrade(domain.SideBuy)
	e.recordTrade(ctx, &domain.TradeRecord{
		TradeID:     domain.ComputeTradeID(out.Mint, domain.SideBuy, out.Reason, now),
		Mint:        out.Mint,
		Side:        domain.SideBuy,
		SizeUi:      out.EstSizeUi,
		Sol:         out.SpendSol,
		Price:       price,
		Reason:      out.Reason,
		TxSignature: out.Signature,
		Ts:          now,
	})
	e.log.Printf("bought %s: spend=%.4f sol est=%.2f reason=%s topup=%v sig=%s",
		out.Mint, out.SpendSol, out.EstSizeUi, out.Reason, out.TopUp, out.Signature)
}

func (e *Engine) recordTrade(ctx context.Context, t *domain.TradeRecord) {
	if e.trades == nil {
		return
	}
	if err := e.trades.Insert(ctx, t); err != nil {
		e.log.Printf("trade record %s: %v", t.TradeID, err)
	}
}

// persist saves the state blob and flushes decision traces, both best
// effort relative to the trading loop.
func (e *Engine) persist(ctx context.Context, now time.Time, traces []*domain.DecisionTrace) {
	if err := e.states.Save(ctx, e.manager.Snapshot(now)); err != nil {
		e.metrics.RecordStateSaveError()
		e.log.Printf("state save: %v", err)
	}
	if e.traces == nil || len(traces) == 0 {
		return
	}
	if err := e.traces.InsertBulk(ctx, traces); err != nil {
		e.metrics.RecordTraceWriteError()
		e.log.Printf("trace write: %v", err)
	}
}

func (e *Engine) pendingCredits() int {
	n := 0
	for _, p := range e.manager.Open() {
		if p.AwaitingSizeSync {
			n++
		}
	}
	return n
}

// copyRiskState folds the observation and risk fields the pipeline
// mutates back into the live position. Size and cost stay untouched;
// ApplySell owns those.
func copyRiskState(dst, src *domain.Position) {
	dst.HwmPrice = src.HwmPrice
	dst.LastPrice = src.LastPrice
	dst.WarmingHold = src.WarmingHold
	dst.WarmingSince = src.WarmingSince
	dst.FastExitStage = src.FastExitStage
	dst.FastPeakPrice = src.FastPeakPrice
	dst.FastArmedAt = src.FastArmedAt
	dst.FastLastHigh = src.FastLastHigh
	dst.ReboundDeferredTotal = src.ReboundDeferredTotal
	dst.ReboundDeferredUntil = src.ReboundDeferredUntil
	dst.ProfitLockFloorPct = src.ProfitLockFloorPct
	dst.DynamicStop = src.DynamicStop
}

// Stats is a point-in-time status snapshot for the status endpoint.
type Stats struct {
	StartedAt     time.Time `json:"started_at"`
	Ticks         uint64    `json:"ticks"`
	Buys          uint64    `json:"buys"`
	Sells         uint64    `json:"sells"`
	OpenPositions int       `json:"open_positions"`
	InFlight      bool      `json:"in_flight"`
	LastTick      time.Time `json:"last_tick,omitzero"`
}

// Stats reports loop counters for the status endpoint.
func (e *Engine) Stats() Stats {
	s := Stats{
		StartedAt:     e.startedAt,
		Ticks:         e.ticks.Load(),
		Buys:          e.buys.Load(),
		Sells:         e.sells.Load(),
		OpenPositions: e.manager.Count(),
		InFlight:      e.inFlight.Load(),
	}
	if unix := e.lastTickUnix.Load(); unix > 0 {
		s.LastTick = time.Unix(unix, 0).UTC()
	}
	return s
}
