package solana

import "context"

// TokenBalance is the authoritative on-chain balance for one mint,
// aggregated across the owner's token accounts.
type TokenBalance struct {
	Exists   bool
	SizeUi   float64
	Decimals int
}

// BalanceSource reads authoritative balances. The position lifecycle
// manager treats its answers as ground truth.
type BalanceSource interface {
	// SolBalance returns the owner's native SOL balance in SOL.
	SolBalance(ctx context.Context, owner string) (float64, error)

	// TokenBalanceOf returns the owner's balance for the mint.
	// A missing token account yields Exists=false with no error.
	TokenBalanceOf(ctx context.Context, owner, mint string) (*TokenBalance, error)
}

// RPCClient defines the Solana RPC HTTP surface the bot consumes.
type RPCClient interface {
	BalanceSource

	// GetTransaction retrieves a transaction by signature. Returns
	// (nil, nil) when the transaction is not found yet.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves signatures for an address with
	// pagination, newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err         interface{}
	LogMessages []string
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}

// Failed reports whether the transaction errored on chain.
func (t *Transaction) Failed() bool {
	return t.Meta != nil && t.Meta.Err != nil
}
