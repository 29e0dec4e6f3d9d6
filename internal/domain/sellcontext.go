package domain

import "time"

// SellContext is the ephemeral evaluation context threaded through the
// sell pipeline. Created fresh per position per tick; never shared
// across positions or ticks.
type SellContext struct {
	Mint string
	Pos  *Position
	Now  time.Time

	// Market inputs gathered by early steps.
	Price     float64
	Liquidity float64
	Volume    float64
	Series    []LeaderSample

	// PnL computed once a quote is available.
	GrossPnlPct float64
	NetPnlPct   float64 // net of estimated round-trip fees
	QuoteOutSol float64 // SOL out for a full exit at current route
	NetEdgePct  float64

	// Evolving verdict.
	Decision Action
	Reason   string
	// Fraction of the position to sell for SELL_PARTIAL (0..1].
	SellFraction float64

	// Force flags set by detection steps and resolved late.
	ForceRug          bool
	ForcePumpDrop     bool
	ForceObserverDrop bool
	IsFastExit        bool

	// Forced marks a critical sell that bypasses holds and the
	// profit floor (rug, max-loss, max-hold).
	Forced bool

	// LeaderHold suppresses take-profit exits while the token keeps
	// climbing the leaderboard.
	LeaderHold bool

	// StopPct is the dynamic stop width computed this evaluation.
	StopPct float64

	// Short-circuit: no further steps run once set.
	Stop bool

	// Informational tags accumulated for the decision trace.
	Tags []string

	Trace []StepTrace
}

// StepTrace records one pipeline step outcome for observability.
type StepTrace struct {
	Step     string
	Decision Action
	Note     string
}

// NewSellContext builds a context with the default HOLD verdict.
func NewSellContext(pos *Position, now time.Time) *SellContext {
	return &SellContext{
		Mint:     pos.Mint,
		Pos:      pos,
		Now:      now,
		Decision: ActionHold,
	}
}

// SetDecision updates the verdict and reason.
func (sc *SellContext) SetDecision(a Action, reason string) {
	sc.Decision = a
	sc.Reason = reason
}

// Finalize marks the context done; remaining steps are skipped.
func (sc *SellContext) Finalize(a Action, reason string) {
	sc.SetDecision(a, reason)
	sc.Stop = true
}

// AddTag appends an informational tag.
func (sc *SellContext) AddTag(tag string) {
	sc.Tags = append(sc.Tags, tag)
}
