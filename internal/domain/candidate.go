package domain

// Candidate is one leaderboard entry from the market feed.
type Candidate struct {
	Mint          string
	Symbol        string
	PriceSol      float64
	Score         float64
	Liquidity     float64 // SOL
	Volume        float64 // SOL, trailing window
	PriceChange5m float64 // percent
	PriceChange1h float64 // percent
	Flags         []string
}

// Sample converts feed values into a LeaderSample (timestamp supplied by
// the caller so replayed feeds stay deterministic).
func (c Candidate) Sample() LeaderSample {
	return LeaderSample{
		Score:         c.Score,
		Liquidity:     c.Liquidity,
		Volume:        c.Volume,
		PriceChange5m: c.PriceChange5m,
		PriceChange1h: c.PriceChange1h,
	}
}

// RugSignal is an external severity/badge signal indicating probable
// value collapse of a token.
type RugSignal struct {
	Rugged   bool
	Severity float64 // 0..1
	Badge    string  // e.g. "RUG", "HONEYPOT", "LP_PULLED"
}

// Candidate flag values surfaced by the feed.
const (
	FlagNewLaunch = "NEW_LAUNCH"
	FlagTrending  = "TRENDING"
	FlagSuspect   = "SUSPECT"
)
