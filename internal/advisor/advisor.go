// Package advisor integrates an optional external decision hook. The
// engine works correctly with the hook absent or erroring: advice
// failures degrade to "no opinion" unless the hook is marked required.
package advisor

import (
	"context"
	"errors"
)

// ErrUnavailable means the hook could not produce advice this call.
var ErrUnavailable = errors.New("advisor unavailable")

// BuyQuery describes a prospective entry.
type BuyQuery struct {
	Mint       string  `json:"mint"`
	Score      float64 `json:"score"`
	Liquidity  float64 `json:"liquidity"`
	Volume     float64 `json:"volume"`
	EdgePct    float64 `json:"edge_pct"`
	SpendSol   float64 `json:"spend_sol"`
	OpenCount  int     `json:"open_count"`
	LightEntry bool    `json:"light_entry"`
}

// SellQuery describes a prospective exit.
type SellQuery struct {
	Mint       string  `json:"mint"`
	Reason     string  `json:"reason"`
	Action     string  `json:"action"`
	GrossPnl   float64 `json:"gross_pnl"`
	NetPnl     float64 `json:"net_pnl"`
	Fraction   float64 `json:"fraction"`
	AgeSec     int64   `json:"age_sec"`
	IsForced   bool    `json:"is_forced"`
	IsFastExit bool    `json:"is_fast_exit"`
}

// Advice is the hook's verdict. Zero-value optional fields mean "keep
// the engine's own choice".
type Advice struct {
	Proceed     bool
	SizingSol   float64 // optional spend override (buy only)
	SlippageBps int     // optional slippage override
	Note        string
}

// Advisor is the external decision hook.
type Advisor interface {
	DecideBuy(ctx context.Context, q BuyQuery) (*Advice, error)
	DecideSell(ctx context.Context, q SellQuery) (*Advice, error)
}

// Noop always proceeds; used when no hook is configured.
type Noop struct{}

func (Noop) DecideBuy(context.Context, BuyQuery) (*Advice, error) {
	return &Advice{Proceed: true}, nil
}

func (Noop) DecideSell(context.Context, SellQuery) (*Advice, error) {
	return &Advice{Proceed: true}, nil
}

// ResolveBuy applies fail-open/fail-closed semantics around a hook
// call. With required=false any hook error yields proceed=true.
func ResolveBuy(ctx context.Context, a Advisor, q BuyQuery, required bool) (*Advice, error) {
	if a == nil {
		return &Advice{Proceed: true}, nil
	}
	adv, err := a.DecideBuy(ctx, q)
	if err != nil {
		if required {
			return nil, err
		}
		return &Advice{Proceed: true}, nil
	}
	return adv, nil
}

// ResolveSell is the sell-side counterpart of ResolveBuy.
func ResolveSell(ctx context.Context, a Advisor, q SellQuery, required bool) (*Advice, error) {
	if a == nil {
		return &Advice{Proceed: true}, nil
	}
	adv, err := a.DecideSell(ctx, q)
	if err != nil {
		if required {
			return nil, err
		}
		return &Advice{Proceed: true}, nil
	}
	return adv, nil
}
