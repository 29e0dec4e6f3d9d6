// Package entrysim estimates the probability that a prospective entry
// reaches a required gross-profit target within a horizon, from the
// recent momentum and volatility of the leaderboard window.
package entrysim

import (
	"math"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/signals"
)

// MinSamples is the minimum window size below which no estimate is
// produced. Callers must treat a nil result as "insufficient data",
// never as probability zero.
const MinSamples = 3

// Params tunes the drift/volatility blend.
type Params struct {
	// Drift contribution weights.
	LevelWeight float64 // recent 5m price change level
	SlopeWeight float64 // price-change slope
	ScoreWeight float64 // score slope

	// Drift clamp, percent per minute.
	MaxAbsDrift float64

	// Volatility floors, percent per sqrt-minute.
	MinSigma       float64
	LevelSigmaFrac float64 // level-based addition: |level| * frac
}

// DefaultParams returns the production blend.
func DefaultParams() Params {
	return Params{
		LevelWeight:    0.15,
		SlopeWeight:    0.55,
		ScoreWeight:    0.30,
		MaxAbsDrift:    12,
		MinSigma:       1.5,
		LevelSigmaFrac: 0.10,
	}
}

// Result is the outcome of one estimate.
type Result struct {
	MuPerMin     float64 // drift, percent per minute
	SigmaPerMin  float64 // volatility, percent per sqrt-minute
	ProbTerminal float64 // P(PnL at horizon >= target)
	ProbEver     float64 // upper bound on P(max PnL over horizon >= target)
	Horizon      time.Duration
}

// Estimate computes hitting probabilities for the required gross gain
// (percent) over the horizon. Returns nil when fewer than MinSamples
// samples exist.
func Estimate(series []domain.LeaderSample, requiredGainPct float64, horizon time.Duration, p Params) *Result {
	if len(series) < MinSamples {
		return nil
	}
	if horizon <= 0 || requiredGainPct <= 0 {
		return nil
	}

	short := series
	if len(short) > 3 {
		short = short[len(short)-3:]
	}

	level := series[len(series)-1].PriceChange5m
	slope := signals.SlopePerMinute(short, domain.FieldPriceChange5m)
	scoreSlope := signals.SlopePerMinute(series, domain.FieldScore)

	mu := p.LevelWeight*level + p.SlopeWeight*slope + p.ScoreWeight*scoreSlope
	if mu > p.MaxAbsDrift {
		mu = p.MaxAbsDrift
	}
	if mu < -p.MaxAbsDrift {
		mu = -p.MaxAbsDrift
	}

	sigma := rateStdDev(series) + math.Abs(level)*p.LevelSigmaFrac
	if sigma < p.MinSigma {
		sigma = p.MinSigma
	}

	tMin := horizon.Minutes()
	sqrtT := math.Sqrt(tMin)
	drift := mu * tMin
	spread := sigma * sqrtT

	// Terminal exceedance: X_T ~ N(mu*T, sigma^2*T).
	probTerminal := 1 - normalCDF((requiredGainPct-drift)/spread)

	// Reflection bound for Brownian motion with drift:
	// P(max X >= g) <= Phi((mu*T - g)/(sigma*sqrt(T)))
	//               + exp(2*mu*g/sigma^2) * Phi((-g - mu*T)/(sigma*sqrt(T)))
	exponent := 2 * mu * requiredGainPct / (sigma * sigma)
	// Guard the exponential against overflow for strong positive drift.
	if exponent > 30 {
		exponent = 30
	}
	probEver := normalCDF((drift-requiredGainPct)/spread) +
		math.Exp(exponent)*normalCDF((-requiredGainPct-drift)/spread)
	if probEver > 1 {
		probEver = 1
	}
	if probEver < probTerminal {
		probEver = probTerminal
	}

	return &Result{
		MuPerMin:     mu,
		SigmaPerMin:  sigma,
		ProbTerminal: probTerminal,
		ProbEver:     probEver,
		Horizon:      horizon,
	}
}

// rateStdDev computes the standard deviation of the per-minute price
// change rate between consecutive samples.
func rateStdDev(series []domain.LeaderSample) float64 {
	var rates []float64
	for i := 1; i < len(series); i++ {
		pair := series[i-1 : i+1]
		rates = append(rates, signals.SlopePerMinute(pair, domain.FieldPriceChange5m))
	}
	if len(rates) < 2 {
		return 0
	}

	var sum float64
	for _, r := range rates {
		sum += r
	}
	mean := sum / float64(len(rates))

	var sq float64
	for _, r := range rates {
		d := r - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(rates)-1))
}

// normalCDF is the standard normal cumulative distribution function.
func normalCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}
