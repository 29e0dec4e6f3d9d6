package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Action is the terminal verdict of an evaluation.
type Action string

const (
	ActionSkip        Action = "SKIP"
	ActionHold        Action = "HOLD"
	ActionSellPartial Action = "SELL_PARTIAL"
	ActionSellAll     Action = "SELL_ALL"
	ActionBuy         Action = "BUY"
)

// IsSell reports whether the action results in a sell execution.
func (a Action) IsSell() bool {
	return a == ActionSellPartial || a == ActionSellAll
}

// Trade sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Sell reason codes. Downstream consumers (blacklist escalation, trade
// records, traces) switch on these.
const (
	ReasonTakeProfit   = "TAKE_PROFIT"
	ReasonStopLoss     = "STOP_LOSS"
	ReasonTrailingStop = "TRAILING_STOP"
	ReasonRug          = "RUG"
	ReasonPumpDrop     = "PUMP_DROP"
	ReasonObserverDrop = "OBSERVER_DROP"
	ReasonEarlyFade    = "EARLY_FADE"
	ReasonFastTier1    = "FAST_TIER1"
	ReasonFastTier2    = "FAST_TIER2"
	ReasonFastTrail    = "FAST_TRAIL"
	ReasonFastFlip     = "FAST_FLIP"
	ReasonFastStale    = "FAST_STALE"
	ReasonFastAccel    = "FAST_ACCEL"
	ReasonProfitLock   = "PROFIT_LOCK"
	ReasonMaxHold      = "MAX_HOLD"
	ReasonMaxLoss      = "MAX_LOSS"
	ReasonUrgent       = "URGENT"
	ReasonAdvisor      = "ADVISOR"
	ReasonLightTopUp   = "LIGHT_TOP_UP"
	ReasonEntry        = "ENTRY"
)

// TradeRecord is one executed buy or sell.
type TradeRecord struct {
	TradeID     string // deterministic hash
	Mint        string
	Side        string // BUY | SELL
	SizeUi      float64
	Sol         float64 // SOL spent (buy) or received (sell)
	Price       float64 // SOL per UI unit
	Reason      string
	TxSignature string
	Ts          time.Time
}

// ComputeTradeID derives a deterministic trade id.
// Formula: SHA256(mint|side|reason|unix_ms), hex encoded.
func ComputeTradeID(mint, side, reason string, ts time.Time) string {
	data := fmt.Sprintf("%s|%s|%s|%d", mint, side, reason, ts.UnixMilli())
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
