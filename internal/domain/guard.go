package domain

import "time"

// Lock modes for per-mint operation locks.
const (
	LockModeBuy    = "buy"
	LockModeSell   = "sell"
	LockModeRotate = "rotate"
)

// MintLock is a short-lived per-mint operation lock record.
type MintLock struct {
	Mint  string
	Mode  string
	Until time.Time
}

// BlacklistEntry is a staged blacklist record. Stage only escalates;
// repeated triggers within the window never shorten the ban.
type BlacklistEntry struct {
	Mint  string
	Stage int
	Until time.Time
}

// UrgentSell is a one-shot urgent-sell flag with a cooldown window.
type UrgentSell struct {
	Mint     string
	Reason   string
	Severity float64
	Until    time.Time
	Consumed bool
}

// PendingCredit tracks an optimistic, unconfirmed buy until the token
// balance materializes on chain or the record is pruned.
type PendingCredit struct {
	ID           string // uuid
	Owner        string
	Mint         string
	AddCost      float64 // SOL spent on the unconfirmed buy
	EstSizeUi    float64
	BaseSnapshot float64 // UI balance observed before the buy
	TxSignature  string
	Attempts     int
	CreatedAt    time.Time
}

// BuySeed is a short-TTL hint biasing the buy scanner toward a re-entry
// candidate after a profitable exit.
type BuySeed struct {
	Mint      string
	ExitPrice float64
	Until     time.Time
}
