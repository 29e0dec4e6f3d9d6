package sellflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-sniper/internal/advisor"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/edge"
	"solana-sniper/internal/guards"
	"solana-sniper/internal/market"
	"solana-sniper/internal/risk"
	"solana-sniper/internal/signals"
	"solana-sniper/internal/swap"
)

// Detection thresholds for the drop steps. Score values follow the feed
// convention of 0..1 composites.
const (
	pumpDrop5mPct   = 35.0 // price_change_5m collapse triggering PUMP_DROP
	pumpDropHwmPct  = 45.0 // drawdown from high-water mark triggering PUMP_DROP
	leaderScoreMin  = 0.75 // minimum score for the leader-hold override
	urgentSevereMin = 0.8  // urgent severity selling the whole position
	urgentPartFrac  = 0.5  // fraction sold on a lower-severity urgent flag
)

// Deps carries the collaborators the canonical steps consume. Exec is
// invoked with the terminal verdict; nil means evaluate-only (tests,
// dry runs).
type Deps struct {
	Params  domain.RiskParams
	Signals *signals.Cache
	Urgent  *guards.UrgentStore
	Locks   *guards.LockStore
	Feed    market.Feed
	Quoter  swap.Quoter
	Warming *risk.WarmingPolicy
	Rebound *risk.ReboundGate
	Fast    *risk.FastExitLadder
	DynStop *risk.DynamicStop
	Advisor advisor.Advisor

	// Exec performs the sell once the verdict is terminal. It must
	// return an error rather than panic; the execute step holds the
	// mint lock around the call.
	Exec func(ctx context.Context, sc *domain.SellContext) error
}

// Canonical returns the full step chain in its fixed order. Each
// downstream step may override upstream verdicts; the order itself is
// the precedence rule.
func Canonical(d Deps) []Step {
	return []Step{
		{Name: "preflight", Run: d.preflight},
		{Name: "leader_hold", Run: d.leaderHold},
		{Name: "urgent", Run: d.urgent},
		{Name: "drop_detect", Run: d.dropDetect},
		{Name: "early_fade", Run: d.earlyFade},
		{Name: "observer_score", Run: d.observerScore},
		{Name: "vol_guard", Run: d.volGuard},
		{Name: "quote_edge", Run: d.quoteEdge},
		{Name: "fast_exit", Run: d.fastExit},
		{Name: "warming", Run: d.warming},
		{Name: "profit_lock", Run: d.profitLock},
		{Name: "observer_debounce", Run: d.observerDebounce},
		{Name: "static_levels", Run: d.staticLevels},
		{Name: "force_resolve", Run: d.forceResolve},
		{Name: "rebound", Run: d.rebound},
		{Name: "momentum_tags", Run: d.momentumTags},
		{Name: "profit_floor", Run: d.profitFloor},
		{Name: "advisor", Run: d.advise},
		{Name: "execute", Run: d.execute},
	}
}

// preflight verifies the position is sellable this tick: a confirmed
// balance, no pending credit, no live operation lock, a usable price.
// It also loads the signal series the later steps read.
func (d Deps) preflight(_ context.Context, sc *domain.SellContext) (string, error) {
	pos := sc.Pos
	if pos.AwaitingSizeSync {
		sc.Finalize(domain.ActionSkip, "awaiting size sync")
		return "pending credit", nil
	}
	if pos.SizeUi <= 0 {
		sc.Finalize(domain.ActionSkip, "zero size")
		return "", nil
	}
	if l, held := d.Locks.Held(sc.Mint, sc.Now); held {
		sc.Finalize(domain.ActionSkip, "locked")
		return "mode " + l.Mode, nil
	}

	if sc.Price <= 0 {
		sc.Price = pos.LastPrice
	}
	if sc.Price <= 0 {
		sc.Finalize(domain.ActionSkip, "no price")
		return "", nil
	}
	pos.ObservePrice(sc.Price, sc.Now)

	sc.Series = d.Signals.Series(sc.Mint, 5)
	if len(sc.Series) > 0 {
		last := sc.Series[len(sc.Series)-1]
		if sc.Liquidity == 0 {
			sc.Liquidity = last.Liquidity
		}
		if sc.Volume == 0 {
			sc.Volume = last.Volume
		}
	}
	sc.GrossPnlPct = pos.PnlPct(sc.Price)
	return "", nil
}

// leaderHold marks positions still climbing the leaderboard so the
// take-profit fallback lets the winner run.
func (d Deps) leaderHold(_ context.Context, sc *domain.SellContext) (string, error) {
	if len(sc.Series) < 2 {
		return "", nil
	}
	last := sc.Series[len(sc.Series)-1]
	scoreSlope := signals.SlopePerMinute(sc.Series, domain.FieldScore)
	if last.Score >= leaderScoreMin && scoreSlope > 0 {
		sc.LeaderHold = true
		sc.AddTag("leader_hold")
		return fmt.Sprintf("score %.2f slope %.2f", last.Score, scoreSlope), nil
	}
	return "", nil
}

// urgent consumes a pending one-shot urgent-sell flag. High severity
// sells everything; lower severity takes a partial.
func (d Deps) urgent(_ context.Context, sc *domain.SellContext) (string, error) {
	f, ok := d.Urgent.Consume(sc.Mint, sc.Now)
	if !ok {
		return "", nil
	}
	if f.Severity >= urgentSevereMin {
		sc.SetDecision(domain.ActionSellAll, domain.ReasonUrgent)
	} else {
		sc.SetDecision(domain.ActionSellPartial, domain.ReasonUrgent)
		sc.SellFraction = urgentPartFrac
	}
	sc.AddTag("urgent:" + f.Reason)
	return fmt.Sprintf("severity %.2f", f.Severity), nil
}

// dropDetect raises the rug and pump-drop force flags from the feed
// signal and the price series. Flags are resolved late so the
// volatility guard and debounce steps can still clear them.
func (d Deps) dropDetect(ctx context.Context, sc *domain.SellContext) (string, error) {
	note := ""
	if d.Feed != nil {
		sig, err := d.Feed.RugSignal(ctx, sc.Mint)
		if err != nil {
			if !errors.Is(err, market.ErrStaleFeed) {
				return "", fmt.Errorf("rug signal: %w", err)
			}
		} else if sig.Rugged {
			sc.ForceRug = true
			sc.AddTag("rug:" + sig.Badge)
			note = fmt.Sprintf("rug severity %.2f", sig.Severity)
		}
	}

	if len(sc.Series) > 0 {
		last := sc.Series[len(sc.Series)-1]
		slope := signals.SlopePerMinute(sc.Series, domain.FieldPriceChange5m)
		hwmDraw := 0.0
		if sc.Pos.HwmPrice > 0 {
			hwmDraw = (sc.Pos.HwmPrice - sc.Price) / sc.Pos.HwmPrice * 100
		}
		if (last.PriceChange5m <= -pumpDrop5mPct && slope < 0) || hwmDraw >= pumpDropHwmPct {
			sc.ForcePumpDrop = true
			sc.AddTag("pump_drop")
			if note == "" {
				note = fmt.Sprintf("5m %.1f hwm draw %.1f", last.PriceChange5m, hwmDraw)
			}
		}
	}
	return note, nil
}

// earlyFade exits a fresh position whose momentum went negative right
// after entry and never printed a profit.
func (d Deps) earlyFade(_ context.Context, sc *domain.SellContext) (string, error) {
	pos := sc.Pos
	if pos.Age(sc.Now) > d.Params.EarlyFadeWindow || len(sc.Series) < 3 {
		return "", nil
	}
	slope := signals.SlopePerMinute(sc.Series, domain.FieldPriceChange5m)
	if slope <= d.Params.EarlyFadeSlopeMin && sc.GrossPnlPct < 0 {
		sc.SetDecision(domain.ActionSellAll, domain.ReasonEarlyFade)
		return fmt.Sprintf("slope %.2f pnl %.1f", slope, sc.GrossPnlPct), nil
	}
	return "", nil
}

// observerScore raises the observer-drop flag when the composite score
// collapses. The debounce step later requires the drop to persist.
func (d Deps) observerScore(_ context.Context, sc *domain.SellContext) (string, error) {
	if len(sc.Series) == 0 {
		return "", nil
	}
	last := sc.Series[len(sc.Series)-1]
	if last.Score < d.Params.ObserverDropScore {
		sc.ForceObserverDrop = true
		sc.AddTag("observer_drop")
		return fmt.Sprintf("score %.2f", last.Score), nil
	}
	return "", nil
}

// volGuard cools down forced drops raised shortly after a buy: launch
// volatility routinely trips the detectors within the first seconds.
func (d Deps) volGuard(_ context.Context, sc *domain.SellContext) (string, error) {
	lastBuy := sc.Pos.LastBuyAt
	if lastBuy.IsZero() {
		lastBuy = sc.Pos.AcquiredAt
	}
	if sc.Now.Sub(lastBuy) > d.Params.VolGuardWindow {
		return "", nil
	}

	cleared := false
	if sc.ForcePumpDrop || sc.ForceObserverDrop {
		sc.ForcePumpDrop = false
		sc.ForceObserverDrop = false
		cleared = true
	}
	switch sc.Reason {
	case domain.ReasonEarlyFade, domain.ReasonUrgent, domain.ReasonObserverDrop, domain.ReasonPumpDrop:
		sc.SetDecision(domain.ActionHold, "")
		sc.SellFraction = 0
		cleared = true
	}
	if cleared {
		sc.AddTag("vol_guard")
		return "suppressed post-buy", nil
	}
	return "", nil
}

// quoteEdge prices a full exit through the aggregator and derives net
// PnL. A failed quote degrades to a fee-estimated net so the chain can
// still reason about floors.
func (d Deps) quoteEdge(ctx context.Context, sc *domain.SellContext) (string, error) {
	pos := sc.Pos
	feePct := 0.0
	if pos.CostSol > 0 {
		feePct = edge.DefaultTxFeeSol / pos.CostSol * 100
	}
	slipPct := float64(d.Params.SellSlippageBps) / 100

	if d.Quoter == nil {
		sc.NetPnlPct = sc.GrossPnlPct - feePct - slipPct
		return "no quoter", nil
	}

	q, err := d.Quoter.Quote(ctx, sc.Mint, swap.WSOLMint, pos.SizeUi, d.Params.SellSlippageBps)
	if err != nil {
		sc.NetPnlPct = sc.GrossPnlPct - feePct - slipPct
		sc.AddTag("quote_fallback")
		if errors.Is(err, swap.ErrNoRoute) {
			return "no route", nil
		}
		return "", fmt.Errorf("exit quote: %w", err)
	}

	sc.QuoteOutSol = q.OutAmount
	if pos.CostSol > 0 {
		netOut := q.OutAmount - edge.DefaultTxFeeSol
		sc.NetPnlPct = (netOut - pos.CostSol) / pos.CostSol * 100
	}
	sc.NetEdgePct = sc.NetPnlPct
	return fmt.Sprintf("out %.4f net %.1f%%", q.OutAmount, sc.NetPnlPct), nil
}

// fastExit runs the ladder. Its sell_all verdicts override warming and
// rebound holds downstream.
func (d Deps) fastExit(_ context.Context, sc *domain.SellContext) (string, error) {
	v := d.Fast.Evaluate(sc.Pos, sc.Price, sc.GrossPnlPct, sc.Series, sc.Now)
	switch v.Action {
	case risk.FastAll:
		sc.SetDecision(domain.ActionSellAll, v.Reason)
		sc.IsFastExit = true
		return v.Reason, nil
	case risk.FastPartial:
		if sc.Decision != domain.ActionSellAll {
			sc.SetDecision(domain.ActionSellPartial, v.Reason)
			sc.SellFraction = v.Fraction
			sc.IsFastExit = true
			return fmt.Sprintf("%s frac %.2f", v.Reason, v.Fraction), nil
		}
	}
	return "", nil
}

// warming arbitrates the decaying profit requirement. A warming hold
// suppresses ordinary sells but never a fast exit or a force flag; the
// max-loss guard force-exits regardless.
func (d Deps) warming(_ context.Context, sc *domain.SellContext) (string, error) {
	v := d.Warming.Evaluate(sc.Pos, sc.NetPnlPct, sc.Now)
	if v.ForceExit {
		sc.SetDecision(domain.ActionSellAll, domain.ReasonMaxLoss)
		sc.Forced = true
		return fmt.Sprintf("max loss, required %.1f%%", v.RequiredPct), nil
	}
	if v.Released {
		sc.AddTag("warming_released")
		return "", nil
	}
	if !v.Hold {
		return "", nil
	}

	selling := sc.Decision == domain.ActionSellAll || sc.Decision == domain.ActionSellPartial
	if selling && !sc.IsFastExit && !sc.ForceRug && !sc.ForcePumpDrop {
		sc.SetDecision(domain.ActionHold, "")
		sc.SellFraction = 0
		sc.AddTag("warming_hold")
		return fmt.Sprintf("required %.1f%%", v.RequiredPct), nil
	}
	return "", nil
}

// profitLock ratchets a realized-gain floor under a winning position
// and force-exits when net PnL falls back through it.
func (d Deps) profitLock(_ context.Context, sc *domain.SellContext) (string, error) {
	p := d.Params
	pos := sc.Pos

	if sc.NetPnlPct >= p.ProfitLockArmPct {
		floor := sc.NetPnlPct - p.ProfitLockGapPct
		if floor > pos.ProfitLockFloorPct {
			pos.ProfitLockFloorPct = floor
			sc.AddTag("profit_lock_armed")
			return fmt.Sprintf("floor %.1f%%", floor), nil
		}
	}
	if pos.ProfitLockFloorPct > 0 && sc.NetPnlPct < pos.ProfitLockFloorPct {
		sc.SetDecision(domain.ActionSellAll, domain.ReasonProfitLock)
		return fmt.Sprintf("net %.1f%% under floor %.1f%%", sc.NetPnlPct, pos.ProfitLockFloorPct), nil
	}
	return "", nil
}

// observerDebounce clears the observer-drop flag unless the score has
// stayed below the threshold for the configured number of samples.
func (d Deps) observerDebounce(_ context.Context, sc *domain.SellContext) (string, error) {
	if !sc.ForceObserverDrop {
		return "", nil
	}
	need := d.Params.ObserverDebounce
	if need < 1 {
		need = 1
	}
	if len(sc.Series) < need {
		sc.ForceObserverDrop = false
		sc.AddTag("observer_debounced")
		return "insufficient samples", nil
	}
	for _, s := range sc.Series[len(sc.Series)-need:] {
		if s.Score >= d.Params.ObserverDropScore {
			sc.ForceObserverDrop = false
			sc.AddTag("observer_debounced")
			return "score recovered", nil
		}
	}
	return "", nil
}

// staticLevels is the TP/SL/trailing fallback for positions no earlier
// policy claimed. The stop width comes from the dynamic stop.
func (d Deps) staticLevels(_ context.Context, sc *domain.SellContext) (string, error) {
	pos := sc.Pos
	slope := signals.SlopePerMinute(sc.Series, domain.FieldPriceChange5m)
	sc.StopPct = d.DynStop.Compute(pos, sc.Liquidity, sc.Volume, slope, sc.NetPnlPct, sc.Now)

	if sc.Decision != domain.ActionHold {
		return "", nil
	}

	tp := pos.TakeProfitPct
	if tp == 0 {
		tp = d.Params.TakeProfitPct
	}
	if sc.GrossPnlPct >= tp {
		if sc.LeaderHold {
			sc.AddTag("tp_deferred_leader")
			return "leader running", nil
		}
		sc.SetDecision(domain.ActionSellAll, domain.ReasonTakeProfit)
		return fmt.Sprintf("gross %.1f%% >= %.1f%%", sc.GrossPnlPct, tp), nil
	}

	// While warming holds, loss control belongs to its max-loss guard,
	// not the stop.
	if !pos.WarmingHold && sc.NetPnlPct <= -sc.StopPct {
		sc.SetDecision(domain.ActionSellAll, domain.ReasonStopLoss)
		return fmt.Sprintf("net %.1f%% stop %.1f%%", sc.NetPnlPct, sc.StopPct), nil
	}

	armPct := pos.TrailArmPct
	if armPct == 0 {
		armPct = d.Params.TrailArmPct
	}
	trailPct := pos.TrailPct
	if trailPct == 0 {
		trailPct = d.Params.TrailPct
	}
	if pos.HwmPrice > 0 {
		hwmPnl := pos.PnlPct(pos.HwmPrice)
		draw := (pos.HwmPrice - sc.Price) / pos.HwmPrice * 100
		if hwmPnl >= armPct && draw >= trailPct {
			sc.SetDecision(domain.ActionSellAll, domain.ReasonTrailingStop)
			return fmt.Sprintf("draw %.1f%% from hwm", draw), nil
		}
	}
	return "", nil
}

// forceResolve turns the surviving force flags into terminal verdicts.
// Precedence: rug, then max-hold expiry, then pump drop, then observer
// drop.
func (d Deps) forceResolve(_ context.Context, sc *domain.SellContext) (string, error) {
	switch {
	case sc.ForceRug:
		sc.SetDecision(domain.ActionSellAll, domain.ReasonRug)
		sc.Forced = true
	case d.Params.MaxHold > 0 && sc.Pos.Age(sc.Now) >= d.Params.MaxHold:
		sc.SetDecision(domain.ActionSellAll, domain.ReasonMaxHold)
		sc.Forced = true
	case sc.ForcePumpDrop:
		sc.SetDecision(domain.ActionSellAll, domain.ReasonPumpDrop)
		sc.Forced = true
	case sc.ForceObserverDrop:
		sc.SetDecision(domain.ActionSellAll, domain.ReasonObserverDrop)
	default:
		return "", nil
	}
	return sc.Reason, nil
}

// rebound may defer an ordinary pending sell once while momentum points
// at recovery. Fast exits and forced sells are never deferred.
func (d Deps) rebound(_ context.Context, sc *domain.SellContext) (string, error) {
	selling := sc.Decision == domain.ActionSellAll || sc.Decision == domain.ActionSellPartial
	if !selling || sc.Forced || sc.IsFastExit {
		return "", nil
	}
	if d.Rebound.MayDefer(sc.Pos, sc.Reason, sc.NetPnlPct, sc.Series, sc.Now) {
		sc.SetDecision(domain.ActionHold, "")
		sc.SellFraction = 0
		sc.AddTag("rebound_defer")
		return fmt.Sprintf("deferred until %s", sc.Pos.ReboundDeferredUntil.Format(time.RFC3339)), nil
	}
	return "", nil
}

// momentumTags records slope/acceleration direction for the trace. This
// step never changes the verdict.
func (d Deps) momentumTags(_ context.Context, sc *domain.SellContext) (string, error) {
	if len(sc.Series) < 2 {
		return "", nil
	}
	slope := signals.SlopePerMinute(sc.Series, domain.FieldPriceChange5m)
	accel := signals.AccelerationPerMinute(sc.Series, domain.FieldPriceChange5m)
	switch {
	case slope > 0 && accel > 0:
		sc.AddTag("momentum_up")
	case slope < 0 && accel < 0:
		sc.AddTag("momentum_down")
	default:
		sc.AddTag("momentum_mixed")
	}
	return fmt.Sprintf("slope %.2f accel %.2f", slope, accel), nil
}

// criticalReason reports whether the sell reason bypasses the profit
// floor.
func criticalReason(reason string) bool {
	switch reason {
	case domain.ReasonRug, domain.ReasonMaxLoss, domain.ReasonMaxHold,
		domain.ReasonStopLoss, domain.ReasonPumpDrop:
		return true
	}
	return false
}

// profitFloor vetoes non-critical sells whose net PnL sits in the dead
// zone between the minimum worthwhile profit and a severe loss: the
// fees are not worth the exit.
func (d Deps) profitFloor(_ context.Context, sc *domain.SellContext) (string, error) {
	selling := sc.Decision == domain.ActionSellAll || sc.Decision == domain.ActionSellPartial
	if !selling || sc.Forced || criticalReason(sc.Reason) {
		return "", nil
	}
	p := d.Params
	if sc.NetPnlPct >= p.ProfitFloorMinNetPct {
		return "", nil
	}
	if sc.NetPnlPct <= -p.SevereLossPct {
		return "severe loss, floor bypassed", nil
	}
	sc.SetDecision(domain.ActionHold, "")
	sc.SellFraction = 0
	sc.AddTag("profit_floor")
	return fmt.Sprintf("net %.1f%% under floor %.1f%%", sc.NetPnlPct, p.ProfitFloorMinNetPct), nil
}

// advise gives the optional external hook a veto on the pending sell.
// Hook failures fail open unless the advisor is required; either way
// the position degrades to hold, never to an unintended sell.
func (d Deps) advise(ctx context.Context, sc *domain.SellContext) (string, error) {
	selling := sc.Decision == domain.ActionSellAll || sc.Decision == domain.ActionSellPartial
	if !selling || d.Advisor == nil {
		return "", nil
	}

	q := advisor.SellQuery{
		Mint:       sc.Mint,
		Reason:     sc.Reason,
		Action:     string(sc.Decision),
		GrossPnl:   sc.GrossPnlPct,
		NetPnl:     sc.NetPnlPct,
		Fraction:   sc.SellFraction,
		AgeSec:     int64(sc.Pos.Age(sc.Now).Seconds()),
		IsForced:   sc.Forced,
		IsFastExit: sc.IsFastExit,
	}
	adv, err := advisor.ResolveSell(ctx, d.Advisor, q, d.Params.AdvisorRequired)
	if err != nil {
		sc.SetDecision(domain.ActionHold, "")
		sc.SellFraction = 0
		sc.AddTag("advisor_error")
		return "", fmt.Errorf("advisor: %w", err)
	}
	if !adv.Proceed {
		sc.SetDecision(domain.ActionHold, "")
		sc.SellFraction = 0
		sc.AddTag("advisor_veto")
		return adv.Note, nil
	}
	return adv.Note, nil
}

// execute finalizes the verdict and, for terminal sells, takes the mint
// lock and hands off to the executor. Lock contention degrades to hold;
// execution errors leave the verdict intact for the engine to log.
func (d Deps) execute(ctx context.Context, sc *domain.SellContext) (string, error) {
	selling := sc.Decision == domain.ActionSellAll || sc.Decision == domain.ActionSellPartial
	if !selling {
		sc.Finalize(sc.Decision, sc.Reason)
		return "", nil
	}

	if sc.Decision == domain.ActionSellAll {
		sc.SellFraction = 1
	}
	if sc.SellFraction <= 0 || sc.SellFraction > 1 {
		sc.Finalize(domain.ActionHold, "")
		return "bad fraction", nil
	}

	if !d.Locks.Acquire(sc.Mint, "sell", d.Params.MintLockTTL, sc.Now) {
		sc.Finalize(domain.ActionHold, "")
		sc.AddTag("lock_contended")
		return "lock contended", nil
	}

	if d.Exec != nil {
		if err := d.Exec(ctx, sc); err != nil {
			sc.AddTag("exec_failed")
			sc.Finalize(sc.Decision, sc.Reason)
			return "", fmt.Errorf("execute %s: %w", sc.Decision, err)
		}
	}
	sc.Finalize(sc.Decision, sc.Reason)
	return string(sc.Decision), nil
}
