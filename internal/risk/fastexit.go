package risk

import (
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/signals"
)

// FastAction is the ladder verdict kind.
type FastAction int

const (
	FastNone FastAction = iota
	FastPartial
	FastAll
)

// FastVerdict is the outcome of a ladder evaluation.
type FastVerdict struct {
	Action   FastAction
	Fraction float64 // for FastPartial
	Reason   string
}

// FastExitLadder monitors the peak price since arming and produces
// staged partial take-profits, a trailing stop after arming, a
// momentum-flip trigger, a no-new-high timeout partial and an
// acceleration-drop partial. Its sell_all verdicts override warming and
// rebound holds.
type FastExitLadder struct {
	ArmPct       float64
	Tier1Pct     float64
	Tier1Frac    float64
	Tier2Pct     float64
	Tier2Frac    float64
	TrailPct     float64
	StaleTimeout time.Duration
	StaleFrac    float64
	AccelDrop    float64
	AccelFrac    float64
}

// NewFastExitLadder builds the ladder from risk params.
func NewFastExitLadder(p domain.RiskParams) *FastExitLadder {
	return &FastExitLadder{
		ArmPct:       p.FastArmPct,
		Tier1Pct:     p.FastTier1Pct,
		Tier1Frac:    p.FastTier1Frac,
		Tier2Pct:     p.FastTier2Pct,
		Tier2Frac:    p.FastTier2Frac,
		TrailPct:     p.FastTrailPct,
		StaleTimeout: p.FastStaleTimeout,
		StaleFrac:    p.FastStaleFrac,
		AccelDrop:    p.FastAccelDrop,
		AccelFrac:    p.FastAccelFrac,
	}
}

// Evaluate runs one ladder step. It arms on the first evaluation where
// gross PnL reaches ArmPct and mutates the ladder fields on the
// position (stage, peak, arming time).
func (l *FastExitLadder) Evaluate(pos *domain.Position, price float64, grossPnlPct float64, series []domain.LeaderSample, now time.Time) FastVerdict {
	if pos.FastArmedAt.IsZero() {
		if grossPnlPct < l.ArmPct {
			return FastVerdict{}
		}
		pos.FastArmedAt = now
		pos.FastPeakPrice = price
		pos.FastLastHigh = now
	}

	if price > pos.FastPeakPrice {
		pos.FastPeakPrice = price
		pos.FastLastHigh = now
	}

	// Trailing stop from the armed peak always wins: a confirmed fall
	// from the run's high ends the trade.
	if pos.FastPeakPrice > 0 {
		drawdown := (pos.FastPeakPrice - price) / pos.FastPeakPrice * 100
		if drawdown >= l.TrailPct {
			return FastVerdict{Action: FastAll, Reason: domain.ReasonFastTrail}
		}
	}

	// Momentum trend flip: slope and acceleration both negative.
	if len(series) >= 3 {
		slope := signals.SlopePerMinute(series, domain.FieldPriceChange5m)
		accel := signals.AccelerationPerMinute(series, domain.FieldPriceChange5m)
		if slope < 0 && accel < 0 {
			return FastVerdict{Action: FastAll, Reason: domain.ReasonFastFlip}
		}
		if accel <= l.AccelDrop && pos.FastExitStage >= 1 {
			return FastVerdict{Action: FastPartial, Fraction: l.AccelFrac, Reason: domain.ReasonFastAccel}
		}
	}

	// Staged partial take-profits.
	if pos.FastExitStage < 1 && grossPnlPct >= l.Tier1Pct {
		pos.FastExitStage = 1
		return FastVerdict{Action: FastPartial, Fraction: l.Tier1Frac, Reason: domain.ReasonFastTier1}
	}
	if pos.FastExitStage < 2 && grossPnlPct >= l.Tier2Pct {
		pos.FastExitStage = 2
		return FastVerdict{Action: FastPartial, Fraction: l.Tier2Frac, Reason: domain.ReasonFastTier2}
	}

	// No new high within the timeout: take some off the table.
	if !pos.FastLastHigh.IsZero() && now.Sub(pos.FastLastHigh) >= l.StaleTimeout {
		pos.FastLastHigh = now // reset so the partial fires once per window
		return FastVerdict{Action: FastPartial, Fraction: l.StaleFrac, Reason: domain.ReasonFastStale}
	}

	return FastVerdict{}
}
