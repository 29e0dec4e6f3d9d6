package risk

import (
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/signals"
)

// ReboundGate may defer an otherwise-valid sell once when momentum
// suggests imminent recovery. It never applies to stop-loss,
// take-profit or rug sells, is capped by a maximum total deferral and
// disallowed below a minimum PnL floor.
type ReboundGate struct {
	DeferStep    time.Duration
	MaxDefer     time.Duration
	MinPnlPct    float64
	SlopeMin     float64
	CompositeMin float64
}

// NewReboundGate builds the gate from risk params.
func NewReboundGate(p domain.RiskParams) *ReboundGate {
	return &ReboundGate{
		DeferStep:    p.ReboundDeferStep,
		MaxDefer:     p.ReboundMaxDefer,
		MinPnlPct:    p.ReboundMinPnlPct,
		SlopeMin:     p.ReboundSlopeMin,
		CompositeMin: p.ReboundCompositeMin,
	}
}

// reasonEligible reports whether the pending sell reason admits a
// deferral at all.
func reasonEligible(reason string) bool {
	switch reason {
	case domain.ReasonStopLoss, domain.ReasonTakeProfit, domain.ReasonRug,
		domain.ReasonMaxLoss, domain.ReasonProfitLock:
		return false
	}
	return true
}

// Composite blends price and score momentum into a 0..1 recovery
// signal.
func (g *ReboundGate) Composite(series []domain.LeaderSample) float64 {
	if len(series) < 2 {
		return 0
	}

	priceSlope := signals.SlopePerMinute(series, domain.FieldPriceChange5m)
	scoreSlope := signals.SlopePerMinute(series, domain.FieldScore)
	accel := signals.AccelerationPerMinute(series, domain.FieldPriceChange5m)

	score := 0.0
	if priceSlope >= g.SlopeMin {
		score += 0.45
	}
	if scoreSlope > 0 {
		score += 0.30
	}
	if accel > 0 {
		score += 0.25
	}
	return score
}

// MayDefer decides whether the pending sell is deferred. On success it
// stamps the deferral window on the position and returns true; the
// caller holds instead of selling.
func (g *ReboundGate) MayDefer(pos *domain.Position, reason string, netPnlPct float64, series []domain.LeaderSample, now time.Time) bool {
	if !reasonEligible(reason) {
		return false
	}
	if netPnlPct < g.MinPnlPct {
		return false
	}
	if pos.ReboundDeferredTotal >= g.MaxDefer {
		return false
	}
	// A deferral already in force counts as a hold; do not stack.
	if now.Before(pos.ReboundDeferredUntil) {
		return true
	}
	if g.Composite(series) < g.CompositeMin {
		return false
	}

	step := g.DeferStep
	if remaining := g.MaxDefer - pos.ReboundDeferredTotal; step > remaining {
		step = remaining
	}
	pos.ReboundDeferredUntil = now.Add(step)
	pos.ReboundDeferredTotal += step
	return true
}
