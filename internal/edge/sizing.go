package edge

import (
	"context"
	"fmt"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

// Sizer computes spend ceilings from live balance and reserves.
type Sizer struct {
	balances solana.BalanceSource
}

// NewSizer creates a Sizer.
func NewSizer(balances solana.BalanceSource) *Sizer {
	return &Sizer{balances: balances}
}

// Ceiling is the result of a spend-ceiling computation.
type Ceiling struct {
	BalanceSol   float64
	ReserveSol   float64 // fee reserve + per-position sell reserves + operating floor
	SpendableSol float64 // never negative
}

// SpendCeiling reads the live SOL balance and subtracts the fee
// reserve, the per-open-position sell-fee reserves and the minimum
// operating floor. The result is clamped at zero: the wallet never
// commits funds that would dip below its reserves.
func (s *Sizer) SpendCeiling(ctx context.Context, owner string, openPositions int, p domain.RiskParams) (*Ceiling, error) {
	balance, err := s.balances.SolBalance(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	return ComputeCeiling(balance, openPositions, p), nil
}

// ComputeCeiling applies the reserve arithmetic to a known balance.
func ComputeCeiling(balanceSol float64, openPositions int, p domain.RiskParams) *Ceiling {
	feeReserve := p.FeeReserveFloorSol
	if pctReserve := balanceSol * p.FeeReservePct / 100; pctReserve > feeReserve {
		feeReserve = pctReserve
	}

	if openPositions < 0 {
		openPositions = 0
	}
	sellReserves := float64(openPositions) * p.SellFeeReserveSol

	reserve := feeReserve + sellReserves + p.MinOperatingSol

	spendable := balanceSol - reserve
	if spendable < 0 {
		spendable = 0
	}

	return &Ceiling{
		BalanceSol:   balanceSol,
		ReserveSol:   reserve,
		SpendableSol: spendable,
	}
}

// ClampSpend caps a desired spend by the ceiling and the per-buy cap.
func ClampSpend(desired float64, c *Ceiling, p domain.RiskParams) float64 {
	spend := desired
	if p.PerBuyCapSol > 0 && spend > p.PerBuyCapSol {
		spend = p.PerBuyCapSol
	}
	if spend > c.SpendableSol {
		spend = c.SpendableSol
	}
	if spend < 0 {
		spend = 0
	}
	return spend
}
