// Package risk implements the per-position risk sub-policies: warming
// hold, rebound deferral, the fast-exit ladder, the dynamic hard stop
// and the buy-side final pump gate. Policies are pure state machines
// over position fields; they perform no I/O.
package risk

import (
	"time"

	"solana-sniper/internal/domain"
)

// WarmingVerdict is the outcome of a warming-hold evaluation.
type WarmingVerdict struct {
	// Hold is true while the warming gate suppresses a normal sell.
	Hold bool
	// Released is true once the position left the warming state this
	// evaluation (auto-release or requirement met).
	Released bool
	// RequiredPct is the current decayed profit requirement.
	RequiredPct float64
	// ForceExit fires when the time-boxed max-loss guard trips; it
	// overrides the hold regardless of warming state.
	ForceExit bool
}

// WarmingPolicy gates normal sells behind a decaying profit
// requirement for freshly entered positions.
type WarmingPolicy struct {
	BasePct     float64
	DecayPerMin float64
	FloorPct    float64
	Delay       time.Duration
	AutoRelease time.Duration

	// Max-loss guard, active only within MaxLossWindow of entry.
	MaxLossPct    float64
	MaxLossWindow time.Duration
}

// NewWarmingPolicy builds the policy from risk params.
func NewWarmingPolicy(p domain.RiskParams) *WarmingPolicy {
	return &WarmingPolicy{
		BasePct:       p.WarmingBasePct,
		DecayPerMin:   p.WarmingDecayPerMin,
		FloorPct:      p.WarmingFloorPct,
		Delay:         p.WarmingDelay,
		AutoRelease:   p.WarmingAutoRelease,
		MaxLossPct:    p.WarmingMaxLossPct,
		MaxLossWindow: p.WarmingMaxLossWindow,
	}
}

// RequiredPct returns the decayed profit requirement after the given
// time in the warming state: max(floor, base - decay*minutes), where
// minutes only start counting after the delay.
func (w *WarmingPolicy) RequiredPct(elapsed time.Duration) float64 {
	decaying := elapsed - w.Delay
	if decaying < 0 {
		decaying = 0
	}
	required := w.BasePct - w.DecayPerMin*decaying.Minutes()
	if required < w.FloorPct {
		required = w.FloorPct
	}
	return required
}

// Evaluate runs the state machine for one tick. It mutates the
// position's WarmingHold flag on release.
func (w *WarmingPolicy) Evaluate(pos *domain.Position, netPnlPct float64, now time.Time) WarmingVerdict {
	if !pos.WarmingHold {
		return WarmingVerdict{}
	}

	since := pos.WarmingSince
	if since.IsZero() {
		since = pos.AcquiredAt
	}
	elapsed := now.Sub(since)

	// Max-loss guard fires independently of the hold state but only
	// within its window; beyond it the dynamic stop owns loss control.
	if elapsed <= w.MaxLossWindow && netPnlPct <= -w.MaxLossPct {
		pos.WarmingHold = false
		return WarmingVerdict{Released: true, ForceExit: true, RequiredPct: w.RequiredPct(elapsed)}
	}

	required := w.RequiredPct(elapsed)

	if elapsed >= w.AutoRelease || netPnlPct >= required {
		pos.WarmingHold = false
		return WarmingVerdict{Released: true, RequiredPct: required}
	}

	return WarmingVerdict{Hold: true, RequiredPct: required}
}
