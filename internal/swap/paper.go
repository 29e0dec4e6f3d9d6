package swap

import (
	"context"
	"fmt"
	"sync/atomic"
)

// PaperExecutor fills swaps instantly at the quoted route price without
// touching the chain. Used by the -paper flag and by engine tests.
type PaperExecutor struct {
	quoter Quoter
	seq    atomic.Uint64
}

// NewPaperExecutor creates a paper executor backed by the given quoter.
func NewPaperExecutor(q Quoter) *PaperExecutor {
	return &PaperExecutor{quoter: q}
}

// Execute quotes the pair and reports an immediate confirmed fill at
// the quoted output.
func (e *PaperExecutor) Execute(ctx context.Context, p Params) (*Result, error) {
	q, err := e.quoter.Quote(ctx, p.InputMint, p.OutputMint, p.Amount, p.SlippageBps)
	if err != nil {
		return nil, err
	}

	return &Result{
		Signature: fmt.Sprintf("paper-%d", e.seq.Add(1)),
		OutAmount: q.OutAmount,
		Confirmed: true,
	}, nil
}

var _ Executor = (*PaperExecutor)(nil)
