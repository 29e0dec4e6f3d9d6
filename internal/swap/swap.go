// Package swap defines the quote/execute contracts consumed by the
// engine and an HTTP client for a swap-route aggregator.
package swap

import (
	"context"
	"errors"
)

// WSOLMint is the wrapped-SOL mint used as the quote currency.
const WSOLMint = "So11111111111111111111111111111111111111112"

// Sentinel errors.
var (
	// ErrNoRoute means the aggregator found no viable route; callers
	// put the mint on a short cooldown instead of retrying this tick.
	ErrNoRoute = errors.New("no viable route")

	// ErrUnconfirmed means a submitted swap did not confirm within its
	// bounded wait; the balance reconciler resolves it later.
	ErrUnconfirmed = errors.New("swap not confirmed within timeout")
)

// Quote is one aggregator route quote.
type Quote struct {
	InputMint      string
	OutputMint     string
	InAmount       float64 // UI units of the input mint
	OutAmount      float64 // UI units of the output mint
	Route          string  // venue label of the best route
	PriceImpactPct float64
}

// Quoter obtains best-route quotes.
type Quoter interface {
	Quote(ctx context.Context, inputMint, outputMint string, amount float64, slippageBps int) (*Quote, error)
}

// Params describes one swap execution.
type Params struct {
	Owner       string
	InputMint   string
	OutputMint  string
	Amount      float64 // UI units of the input mint
	SlippageBps int
}

// Result is the outcome of an execution attempt.
type Result struct {
	Signature string
	// OutAmount is the filled output in UI units; zero when the fill
	// is not yet known (unconfirmed).
	OutAmount float64
	Confirmed bool
}

// Executor submits swaps and waits a bounded time for confirmation.
type Executor interface {
	Execute(ctx context.Context, p Params) (*Result, error)
}
