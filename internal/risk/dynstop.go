package risk

import (
	"time"

	"solana-sniper/internal/domain"
)

// DynamicStop computes a per-position stop-loss percentage from the
// liquidity/volume tier, momentum direction, an initial remorse-window
// tightening and a PnL-aware exponential smoothing filter, clamped to
// [MinPct, MaxPct].
type DynamicStop struct {
	MinPct        float64
	MaxPct        float64
	Alpha         float64 // smoothing blend toward the target per tick
	RemorseWindow time.Duration
}

// NewDynamicStop builds the stop from risk params.
func NewDynamicStop(p domain.RiskParams) *DynamicStop {
	return &DynamicStop{
		MinPct:        p.DynStopMinPct,
		MaxPct:        p.DynStopMaxPct,
		Alpha:         p.DynStopAlpha,
		RemorseWindow: p.DynStopRemorseWindow,
	}
}

// tierTarget picks the raw stop width from the liquidity/volume tier.
// Thin pools get a tight stop; deep pools can breathe.
func tierTarget(liquidity, volume float64) float64 {
	switch {
	case liquidity >= 500 && volume >= 250:
		return 22
	case liquidity >= 150 && volume >= 75:
		return 16
	case liquidity >= 50:
		return 12
	default:
		return 8
	}
}

// Compute returns the current stop-loss percent for the position and
// updates the smoothed state on it.
func (d *DynamicStop) Compute(pos *domain.Position, liquidity, volume, priceSlope, netPnlPct float64, now time.Time) float64 {
	target := tierTarget(liquidity, volume)

	// Falling momentum tightens the target; rising loosens slightly.
	if priceSlope < 0 {
		target *= 0.75
	} else if priceSlope > 0 {
		target *= 1.10
	}

	// Remorse window: right after entry the stop runs tighter so an
	// instant dump exits cheaply.
	if now.Sub(pos.AcquiredAt) <= d.RemorseWindow {
		target *= 0.6
	}

	// Track PnL extremes for the filter.
	st := pos.DynamicStop
	if netPnlPct > st.PeakPnlPct {
		st.PeakPnlPct = netPnlPct
	}
	if netPnlPct < st.TroughPnlPct {
		st.TroughPnlPct = netPnlPct
	}

	// Once meaningfully in profit, tighten toward breakeven protection.
	if st.PeakPnlPct >= 10 {
		target *= 0.7
	}

	// Exponential blend so the stop does not jitter tick to tick.
	if st.SmoothedPct == 0 {
		st.SmoothedPct = target
	} else {
		st.SmoothedPct = st.SmoothedPct + d.Alpha*(target-st.SmoothedPct)
	}

	if st.SmoothedPct < d.MinPct {
		st.SmoothedPct = d.MinPct
	}
	if st.SmoothedPct > d.MaxPct {
		st.SmoothedPct = d.MaxPct
	}

	pos.DynamicStop = st
	return st.SmoothedPct
}
