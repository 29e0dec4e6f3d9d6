// Package edge estimates fee-aware round-trip cost for prospective
// trades and computes the safe spend ceiling for new entries.
package edge

import (
	"context"
	"fmt"

	"solana-sniper/internal/solana"
	"solana-sniper/internal/swap"
)

// DefaultTxFeeSol approximates the per-transaction fee including a
// moderate priority tip.
const DefaultTxFeeSol = 0.0005

// Estimate is the round-trip cost of buying and immediately selling.
// Both values are percentages of the probed spend; a frictionless
// round trip would be 0, realistic ones are negative.
type Estimate struct {
	// PctInclOneTime includes the one-time token account rent charged
	// on the first buy of a mint.
	PctInclOneTime float64

	// PctExclOneTime excludes one-time costs; this is the number the
	// buy gate compares against the configured minimum.
	PctExclOneTime float64

	// OneTimeSol is the one-time cost component in SOL (zero when the
	// wallet already holds a token account for the mint).
	OneTimeSol float64
}

// Estimator quotes both legs of a prospective trade.
type Estimator struct {
	quoter   swap.Quoter
	balances solana.BalanceSource
	txFeeSol float64
}

// EstimatorOption configures an Estimator.
type EstimatorOption func(*Estimator)

// WithTxFee overrides the per-transaction fee estimate.
func WithTxFee(sol float64) EstimatorOption {
	return func(e *Estimator) {
		e.txFeeSol = sol
	}
}

// NewEstimator creates an Estimator.
func NewEstimator(quoter swap.Quoter, balances solana.BalanceSource, opts ...EstimatorOption) *Estimator {
	e := &Estimator{
		quoter:   quoter,
		balances: balances,
		txFeeSol: DefaultTxFeeSol,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Roundtrip quotes the buy leg (SOL -> mint) for amountSol and the sell
// leg (mint -> SOL) for the quoted fill, then nets fees and rent. Any
// quote failure is returned to the caller, which skips the candidate
// for the rest of the tick.
func (e *Estimator) Roundtrip(ctx context.Context, owner, mint string, amountSol float64, slippageBps int) (*Estimate, error) {
	if amountSol <= 0 {
		return nil, fmt.Errorf("probe amount must be positive, got %f", amountSol)
	}

	buy, err := e.quoter.Quote(ctx, swap.WSOLMint, mint, amountSol, slippageBps)
	if err != nil {
		return nil, fmt.Errorf("buy leg quote: %w", err)
	}
	if buy.OutAmount <= 0 {
		return nil, fmt.Errorf("buy leg quote returned zero fill for %s", mint)
	}

	sell, err := e.quoter.Quote(ctx, mint, swap.WSOLMint, buy.OutAmount, slippageBps)
	if err != nil {
		return nil, fmt.Errorf("sell leg quote: %w", err)
	}

	oneTime := 0.0
	bal, err := e.balances.TokenBalanceOf(ctx, owner, mint)
	if err != nil {
		// Balance read failure is non-fatal here: assume the rent will
		// be charged, which only makes the estimate more conservative.
		oneTime = solana.RentExemptTokenAccountSol
	} else if !bal.Exists {
		oneTime = solana.RentExemptTokenAccountSol
	}

	// Two transactions: one buy, one sell.
	fees := 2 * e.txFeeSol

	netExcl := sell.OutAmount - amountSol - fees
	netIncl := netExcl - oneTime

	return &Estimate{
		PctInclOneTime: netIncl / amountSol * 100,
		PctExclOneTime: netExcl / amountSol * 100,
		OneTimeSol:     oneTime,
	}, nil
}
