package signals

import (
	"time"

	"solana-sniper/internal/domain"
)

// minElapsed floors the time delta used in rate derivations so that
// near-simultaneous samples cannot explode the slope.
const minElapsed = 3600 * time.Millisecond

// SlopePerMinute returns the rate of change of the selected field in
// units per minute between the first and last sample of the series.
// Fewer than 2 samples yields zero.
func SlopePerMinute(series []domain.LeaderSample, field domain.SampleField) float64 {
	if len(series) < 2 {
		return 0
	}

	first := series[0]
	last := series[len(series)-1]

	elapsed := last.Ts.Sub(first.Ts)
	if elapsed < minElapsed {
		elapsed = minElapsed
	}

	delta := last.Value(field) - first.Value(field)
	return delta / elapsed.Minutes()
}

// AccelerationPerMinute returns the change between the slope of the
// last two samples and the slope of the two before them, i.e.
// slope[t] - slope[t-1]. Fewer than 3 samples yields zero.
func AccelerationPerMinute(series []domain.LeaderSample, field domain.SampleField) float64 {
	n := len(series)
	if n < 3 {
		return 0
	}

	recent := SlopePerMinute(series[n-2:], field)
	prior := SlopePerMinute(series[n-3:n-1], field)
	return recent - prior
}
