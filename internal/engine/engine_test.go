package engine

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"solana-sniper/internal/buyflow"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/edge"
	"solana-sniper/internal/entrysim"
	"solana-sniper/internal/guards"
	"solana-sniper/internal/positions"
	"solana-sniper/internal/risk"
	"solana-sniper/internal/signals"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/storage/memory"
	"solana-sniper/internal/swap"
)

const (
	owner = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	mintA = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

type fakeChain struct {
	sol    float64
	tokens map[string]float64
}

func (f *fakeChain) SolBalance(context.Context, string) (float64, error) {
	return f.sol, nil
}

func (f *fakeChain) TokenBalanceOf(_ context.Context, _, mint string) (*solana.TokenBalance, error) {
	amt, ok := f.tokens[mint]
	if !ok {
		return &solana.TokenBalance{Exists: false}, nil
	}
	return &solana.TokenBalance{Exists: true, SizeUi: amt}, nil
}

// fakeQuoter fills WSOL->token at buyRate tokens per SOL and
// token->WSOL at sellRate SOL per token.
type fakeQuoter struct {
	buyRate  float64
	sellRate float64
}

func (q *fakeQuoter) Quote(_ context.Context, in, out string, amount float64, _ int) (*swap.Quote, error) {
	rate := q.sellRate
	if in == swap.WSOLMint {
		rate = q.buyRate
	}
	return &swap.Quote{InputMint: in, OutputMint: out, InAmount: amount, OutAmount: amount * rate}, nil
}

type fakeExecutor struct {
	quoter *fakeQuoter
	calls  []swap.Params
}

func (f *fakeExecutor) Execute(ctx context.Context, p swap.Params) (*swap.Result, error) {
	f.calls = append(f.calls, p)
	q, err := f.quoter.Quote(ctx, p.InputMint, p.OutputMint, p.Amount, p.SlippageBps)
	if err != nil {
		return nil, err
	}
	return &swap.Result{Signature: "sig", OutAmount: q.OutAmount, Confirmed: true}, nil
}

func (f *fakeExecutor) sellCalls() []swap.Params {
	var out []swap.Params
	for _, c := range f.calls {
		if c.OutputMint == swap.WSOLMint {
			out = append(out, c)
		}
	}
	return out
}

type fakeFeed struct {
	candidates []domain.Candidate
	rug        map[string]domain.RugSignal
}

func (f *fakeFeed) TopRanked(context.Context, int) ([]domain.Candidate, error) {
	return f.candidates, nil
}

func (f *fakeFeed) RugSignal(_ context.Context, mint string) (*domain.RugSignal, error) {
	s := f.rug[mint]
	return &s, nil
}

type harness struct {
	now time.Time

	engine    *Engine
	manager   *positions.Manager
	quoter    *fakeQuoter
	executor  *fakeExecutor
	feed      *fakeFeed
	chain     *fakeChain
	signals   *signals.Cache
	locks     *guards.LockStore
	urgent    *guards.UrgentStore
	seeds     *guards.SeedStore
	blacklist *guards.BlacklistStore
	pumpGate  *risk.PumpGate
	states    *memory.StateStore
	trades    *memory.TradeStore
	traces    *memory.TraceStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	p := domain.DefaultRiskParams()
	h := &harness{
		now:       testNow,
		quoter:    &fakeQuoter{buyRate: 100, sellRate: 0.01},
		chain:     &fakeChain{sol: 2.0, tokens: map[string]float64{}},
		feed:      &fakeFeed{rug: map[string]domain.RugSignal{}},
		signals:   signals.NewCache(time.Second),
		locks:     guards.NewLockStore(),
		urgent:    guards.NewUrgentStore(),
		seeds:     guards.NewSeedStore(),
		blacklist: guards.NewBlacklistStore(p.BlacklistStage1, p.BlacklistStage2, p.BlacklistStage3, time.Minute),
		pumpGate:  risk.NewPumpGate(p.PumpGateDelta, p.PumpGateWindow),
		states:    memory.NewStateStore(),
		trades:    memory.NewTradeStore(),
		traces:    memory.NewTraceStore(),
	}
	h.executor = &fakeExecutor{quoter: h.quoter}
	h.manager = positions.NewManager(owner, h.chain, guards.NewCreditStore(), p,
		positions.WithManagerLogger(quiet()))

	buyer := buyflow.NewEngine(buyflow.Config{
		Params:    p,
		Signals:   h.signals,
		Blacklist: h.blacklist,
		Cooldowns: guards.NewBanStore(),
		Locks:     h.locks,
		Seeds:     h.seeds,
		Feed:      h.feed,
		Quoter:    h.quoter,
		Executor:  h.executor,
		Estimator: edge.NewEstimator(h.quoter, h.chain),
		Sizer:     edge.NewSizer(h.chain),
		PumpGate:  h.pumpGate,
		SimParams: entrysim.DefaultParams(),
		Logger:    quiet(),
	})

	eng, err := New(Options{
		Manager:   h.manager,
		Feed:      h.feed,
		Signals:   h.signals,
		Quoter:    h.quoter,
		Executor:  h.executor,
		Buyer:     buyer,
		Urgent:    h.urgent,
		Locks:     h.locks,
		Blacklist: h.blacklist,
		Seeds:     h.seeds,
		States:    h.states,
		Trades:    h.trades,
		Traces:    h.traces,
		Interval:  time.Hour,
		Logger:    quiet(),
		Clock:     func() time.Time { return h.now },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.engine = eng
	return h
}

// openPosition books a chain-backed position acquired ten minutes ago
// at an average entry of costSol/sizeUi, past its warming hold.
func (h *harness) openPosition(mint string, sizeUi, costSol float64) {
	acquired := h.now.Add(-10 * time.Minute)
	h.chain.tokens[mint] = sizeUi
	h.manager.SeedOptimistic(mint, sizeUi, costSol, 0, "seed", acquired)
	h.manager.ConfirmCredit(mint, sizeUi)
	h.manager.Update(mint, func(p *domain.Position) {
		p.WarmingHold = false
		entry := costSol / sizeUi
		p.HwmPrice = entry
		p.LastPrice = entry
	})
}

func (h *harness) listCandidate(mint string, price float64) {
	h.feed.candidates = append(h.feed.candidates, domain.Candidate{
		Mint:          mint,
		PriceSol:      price,
		Score:         0.60,
		Liquidity:     200,
		Volume:        100,
		PriceChange5m: 30,
	})
}

// primeBuySignals backfills three rising samples so the entry
// simulation has data, and starts the pump tracker a minute back so the
// candidate's current score confirms the run-up.
func (h *harness) primeBuySignals(mint string) {
	for i, s := range []domain.LeaderSample{
		{Score: 0.40, PriceChange5m: 10},
		{Score: 0.50, PriceChange5m: 20},
		{Score: 0.60, PriceChange5m: 30},
	} {
		s.Ts = h.now.Add(-time.Duration(3-i) * time.Minute)
		h.signals.Record(mint, s)
	}
	h.pumpGate.Observe(mint, 0.40, h.now.Add(-time.Minute))
}

func TestTick_HoldLeavesPositionUntouched(t *testing.T) {
	h := newHarness(t)
	h.openPosition(mintA, 100, 1.0)
	h.quoter.sellRate = 0.0102
	h.listCandidate(mintA, 0.0102)

	h.engine.Tick(context.Background())

	if n := len(h.executor.sellCalls()); n != 0 {
		t.Fatalf("sell executions = %d, want 0", n)
	}
	p, ok := h.manager.Get(mintA)
	if !ok {
		t.Fatal("position disappeared on hold")
	}
	if p.SizeUi != 100 {
		t.Fatalf("SizeUi = %v, want 100", p.SizeUi)
	}
	if p.LastPrice != 0.0102 || p.HwmPrice != 0.0102 {
		t.Fatalf("risk state not written back: last=%v hwm=%v", p.LastPrice, p.HwmPrice)
	}

	traces, err := h.traces.GetByMint(context.Background(), mintA, 10)
	if err != nil || len(traces) != 1 {
		t.Fatalf("traces = %d (%v), want 1", len(traces), err)
	}
	if traces[0].Action != domain.ActionHold {
		t.Fatalf("trace action = %s, want HOLD", traces[0].Action)
	}
}

func TestTick_StopLossExecutesExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.openPosition(mintA, 100, 1.0)
	// Deep enough for any smoothed stop, shallow enough that the
	// pump-drop drawdown detector stays quiet.
	h.quoter.sellRate = 0.0062
	h.listCandidate(mintA, 0.0062)

	h.engine.Tick(context.Background())

	calls := h.executor.sellCalls()
	if len(calls) != 1 {
		t.Fatalf("sell executions = %d, want 1", len(calls))
	}
	if calls[0].InputMint != mintA || calls[0].Amount != 100 {
		t.Fatalf("unexpected sell params: %+v", calls[0])
	}
	if _, ok := h.manager.Get(mintA); ok {
		t.Fatal("position still open after full stop-loss exit")
	}

	recent, err := h.trades.GetRecent(context.Background(), 10)
	if err != nil || len(recent) != 1 {
		t.Fatalf("trades = %d (%v), want 1", len(recent), err)
	}
	if recent[0].Side != domain.SideSell || recent[0].Reason != domain.ReasonStopLoss {
		t.Fatalf("trade = %s/%s, want SELL/STOP_LOSS", recent[0].Side, recent[0].Reason)
	}
}

func TestTick_RugSellFlagsBlacklist(t *testing.T) {
	h := newHarness(t)
	h.openPosition(mintA, 100, 1.0)
	h.quoter.sellRate = 0.009
	h.listCandidate(mintA, 0.009)
	h.feed.rug[mintA] = domain.RugSignal{Rugged: true, Severity: 1, Badge: "RUG"}

	h.engine.Tick(context.Background())

	if len(h.executor.sellCalls()) != 1 {
		t.Fatalf("sell executions = %d, want 1", len(h.executor.sellCalls()))
	}
	if !h.blacklist.Banned(mintA, h.now) {
		t.Fatal("rugged mint not blacklisted")
	}
	if _, ok := h.seeds.Lookup(mintA, h.now); ok {
		t.Fatal("rug exit must not plant a rebuy seed")
	}
	recent, _ := h.trades.GetRecent(context.Background(), 1)
	if len(recent) != 1 || recent[0].Reason != domain.ReasonRug {
		t.Fatalf("trade reason = %v, want RUG", recent)
	}
}

func TestTick_FastLadderTakesPartialAndKeepsState(t *testing.T) {
	h := newHarness(t)
	h.openPosition(mintA, 100, 1.0)
	h.quoter.sellRate = 0.012
	h.listCandidate(mintA, 0.012)

	h.engine.Tick(context.Background())

	calls := h.executor.sellCalls()
	if len(calls) != 1 {
		t.Fatalf("sell executions = %d, want 1", len(calls))
	}
	if calls[0].Amount != 40 {
		t.Fatalf("sold %v, want 40 (tier-1 fraction of 100)", calls[0].Amount)
	}
	p, ok := h.manager.Get(mintA)
	if !ok {
		t.Fatal("position gone after partial sell")
	}
	if p.SizeUi != 60 {
		t.Fatalf("SizeUi = %v, want 60", p.SizeUi)
	}
	if p.FastExitStage != 1 {
		t.Fatalf("FastExitStage = %d, want 1 written back", p.FastExitStage)
	}
}

func TestTick_ProfitableExitPlantsRebuySeed(t *testing.T) {
	h := newHarness(t)
	h.openPosition(mintA, 100, 1.0)
	h.manager.Update(mintA, func(p *domain.Position) {
		p.AllowRebuy = true
		// Ladder already exhausted so the static take-profit fires a
		// full exit instead of a partial.
		p.FastExitStage = 2
		p.FastArmedAt = h.now.Add(-5 * time.Minute)
		p.FastPeakPrice = 0.014
		p.FastLastHigh = h.now.Add(-time.Minute)
	})
	h.quoter.sellRate = 0.0135
	h.listCandidate(mintA, 0.0135)

	h.engine.Tick(context.Background())

	if _, ok := h.manager.Get(mintA); ok {
		t.Fatal("position still open after take-profit exit")
	}
	seed, ok := h.seeds.Lookup(mintA, h.now)
	if !ok {
		t.Fatal("profitable full exit with AllowRebuy must plant a seed")
	}
	if seed.ExitPrice != 0.0135 {
		t.Fatalf("seed exit price = %v, want 0.0135", seed.ExitPrice)
	}
	if _, held := h.locks.Held(mintA, h.now); held {
		t.Fatal("mint lock must be released after a confirmed full exit")
	}
}

func TestTick_BuysCandidateAndBooksCredit(t *testing.T) {
	h := newHarness(t)
	h.listCandidate(mintA, 0.01)
	h.primeBuySignals(mintA)

	h.engine.Tick(context.Background())

	p, ok := h.manager.Get(mintA)
	if !ok {
		t.Fatal("no position after buy")
	}
	if !p.AwaitingSizeSync {
		t.Fatal("optimistic credit must await chain confirmation")
	}
	if !p.LightEntry || p.LightRemainingCapital != 0.125 {
		t.Fatalf("light entry = %v remaining = %v, want true/0.125", p.LightEntry, p.LightRemainingCapital)
	}
	if p.CostSol != 0.125 {
		t.Fatalf("CostSol = %v, want 0.125 (half of per-buy cap)", p.CostSol)
	}
	if !p.AllowRebuy {
		t.Fatal("fresh entries should allow rebuy seeding")
	}
	if _, held := h.locks.Held(mintA, h.now); held {
		t.Fatal("mint lock must be released after booking the buy")
	}

	recent, err := h.trades.GetRecent(context.Background(), 10)
	if err != nil || len(recent) != 1 {
		t.Fatalf("trades = %d (%v), want 1", len(recent), err)
	}
	if recent[0].Side != domain.SideBuy || recent[0].Reason != domain.ReasonEntry {
		t.Fatalf("trade = %s/%s, want BUY/ENTRY", recent[0].Side, recent[0].Reason)
	}
	if got := h.engine.Stats().Buys; got != 1 {
		t.Fatalf("Stats().Buys = %d, want 1", got)
	}
}

func TestTick_PendingCreditSkipsSellAndRebuy(t *testing.T) {
	h := newHarness(t)
	h.listCandidate(mintA, 0.01)
	h.primeBuySignals(mintA)

	h.engine.Tick(context.Background())
	h.now = h.now.Add(30 * time.Second)
	h.engine.Tick(context.Background())

	if n := len(h.executor.sellCalls()); n != 0 {
		t.Fatalf("sell executions = %d, want 0 while awaiting size sync", n)
	}
	buys := 0
	for _, c := range h.executor.calls {
		if c.InputMint == swap.WSOLMint {
			buys++
		}
	}
	if buys != 1 {
		t.Fatalf("buy executions = %d, want 1 (held mints are not re-bought)", buys)
	}
}

func TestTick_PersistsStateBlob(t *testing.T) {
	h := newHarness(t)
	h.openPosition(mintA, 100, 1.0)
	h.listCandidate(mintA, 0.0102)
	h.quoter.sellRate = 0.0102

	h.engine.Tick(context.Background())

	blob, err := h.states.Load(context.Background(), owner)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if blob.UpdatedAt != h.now {
		t.Fatalf("UpdatedAt = %v, want %v", blob.UpdatedAt, h.now)
	}
	if _, ok := blob.Positions[mintA]; !ok {
		t.Fatal("persisted blob missing open position")
	}
}

func TestTick_CoalescesWhileInFlight(t *testing.T) {
	h := newHarness(t)
	h.engine.inFlight.Store(true)

	h.engine.Tick(context.Background())
	h.engine.Tick(context.Background())

	if got := h.engine.ticks.Load(); got != 0 {
		t.Fatalf("ticks = %d, want 0 while a pass is in flight", got)
	}
	if got := len(h.engine.wake); got != 1 {
		t.Fatalf("pending wakes = %d, want 1 (coalesced)", got)
	}

	h.engine.inFlight.Store(false)
	h.engine.Tick(context.Background())
	if got := h.engine.ticks.Load(); got != 1 {
		t.Fatalf("ticks = %d, want 1", got)
	}
}

func TestStats_ReportsLoopCounters(t *testing.T) {
	h := newHarness(t)
	h.openPosition(mintA, 100, 1.0)
	h.quoter.sellRate = 0.0102
	h.listCandidate(mintA, 0.0102)

	h.engine.Tick(context.Background())

	s := h.engine.Stats()
	if s.Ticks != 1 {
		t.Fatalf("Ticks = %d, want 1", s.Ticks)
	}
	if s.OpenPositions != 1 {
		t.Fatalf("OpenPositions = %d, want 1", s.OpenPositions)
	}
	if s.InFlight {
		t.Fatal("InFlight should be false between ticks")
	}
	if !s.LastTick.Equal(testNow.Truncate(time.Second)) {
		t.Fatalf("LastTick = %v, want %v", s.LastTick, testNow)
	}
	if !s.StartedAt.Equal(testNow) {
		t.Fatalf("StartedAt = %v, want %v", s.StartedAt, testNow)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t)
	h.engine.interval = 5 * time.Millisecond
	h.engine.jitter = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
	if h.engine.ticks.Load() == 0 {
		t.Fatal("Run never ticked before cancel")
	}
}
