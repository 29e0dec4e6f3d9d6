package domain

import (
	"fmt"
	"time"
)

// Position represents one held token position.
// Persisted inside the state blob; mutated only by the engine tick.
type Position struct {
	Mint    string  // token mint address
	SizeUi  float64 // held quantity in UI units
	CostSol float64 // cumulative cost basis in SOL

	// Price tracking
	HwmPrice  float64 // high-water mark since acquisition (SOL per UI unit)
	LastPrice float64 // most recent observed price

	AcquiredAt time.Time // first buy
	LastBuyAt  time.Time
	LastSellAt time.Time

	// Flags
	AwaitingSizeSync bool // optimistic credit not yet confirmed on chain
	AllowRebuy       bool // seed a re-entry hint after full exit
	WarmingHold      bool // post-entry hold with decaying profit requirement
	LightEntry       bool // two-stage size build-up in progress

	// Remaining SOL reserved for the second light-entry tranche.
	LightRemainingCapital float64

	// Dynamic risk levels (percent, positive numbers)
	TakeProfitPct float64
	StopLossPct   float64
	TrailPct      float64
	TrailArmPct   float64

	// Fast-exit ladder state
	FastExitStage int     // 0 = unarmed, 1/2 = tiers taken
	FastPeakPrice float64 // peak since ladder armed
	FastArmedAt   time.Time
	FastLastHigh  time.Time // last time a new high was printed

	// Warming hold state
	WarmingSince time.Time

	// Rebound gate state
	ReboundDeferredTotal time.Duration // cumulative deferral granted
	ReboundDeferredUntil time.Time

	// Profit-lock ratchet: realized-gain floor in net percent.
	// Zero means unarmed.
	ProfitLockFloorPct float64

	DynamicStop DynamicStopState
}

// DynamicStopState carries the smoothed hard-stop value and PnL extremes
// used by the stop smoothing filter.
type DynamicStopState struct {
	SmoothedPct  float64 // current smoothed stop-loss percent
	PeakPnlPct   float64
	TroughPnlPct float64
}

// AvgEntryPrice returns the average entry price in SOL per UI unit.
// Zero when size is not yet known.
func (p *Position) AvgEntryPrice() float64 {
	if p.SizeUi <= 0 {
		return 0
	}
	return p.CostSol / p.SizeUi
}

// PnlPct returns gross PnL percent at the given price.
func (p *Position) PnlPct(price float64) float64 {
	entry := p.AvgEntryPrice()
	if entry <= 0 {
		return 0
	}
	return (price - entry) / entry * 100
}

// ObservePrice updates LastPrice and the high-water mark, and feeds the
// fast-exit peak when the ladder is armed.
func (p *Position) ObservePrice(price float64, now time.Time) {
	p.LastPrice = price
	if price > p.HwmPrice {
		p.HwmPrice = price
	}
	if p.FastExitStage > 0 || !p.FastArmedAt.IsZero() {
		if price > p.FastPeakPrice {
			p.FastPeakPrice = price
			p.FastLastHigh = now
		}
	}
}

// Age returns time since acquisition.
func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.AcquiredAt)
}

// Validate checks basic consistency. A zero size is only legal while an
// optimistic credit is pending.
func (p *Position) Validate() error {
	if p.Mint == "" {
		return fmt.Errorf("position: empty mint")
	}
	if p.SizeUi < 0 {
		return fmt.Errorf("position %s: negative size %f", p.Mint, p.SizeUi)
	}
	if p.CostSol < 0 {
		return fmt.Errorf("position %s: negative cost %f", p.Mint, p.CostSol)
	}
	if p.SizeUi == 0 && !p.AwaitingSizeSync {
		return fmt.Errorf("position %s: zero size without pending credit", p.Mint)
	}
	return nil
}

// Clone returns a deep copy.
func (p *Position) Clone() *Position {
	cp := *p
	return &cp
}
