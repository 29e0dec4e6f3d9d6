package signals

import (
	"testing"
	"time"

	"solana-sniper/internal/domain"
)

func sampleAt(ts time.Time, score float64) domain.LeaderSample {
	return domain.LeaderSample{Ts: ts, Score: score}
}

func TestCache_WindowCapped(t *testing.T) {
	c := NewCache(time.Second)
	base := time.Unix(1700000000, 0)

	for i := 0; i < 8; i++ {
		c.Record("mint-a", sampleAt(base.Add(time.Duration(i)*time.Minute), float64(i)))
	}

	series := c.Series("mint-a", 10)
	if len(series) != MaxSamples {
		t.Fatalf("expected window capped at %d, got %d", MaxSamples, len(series))
	}
	if series[0].Score != 3 || series[4].Score != 7 {
		t.Errorf("expected oldest entries evicted, got first=%v last=%v", series[0].Score, series[4].Score)
	}
}

func TestCache_DebounceReplacesNewest(t *testing.T) {
	c := NewCache(30 * time.Second)
	base := time.Unix(1700000000, 0)

	c.Record("mint-a", sampleAt(base, 1))
	c.Record("mint-a", sampleAt(base.Add(5*time.Second), 2)) // within spacing
	c.Record("mint-a", sampleAt(base.Add(time.Minute), 3))

	series := c.Series("mint-a", 5)
	if len(series) != 2 {
		t.Fatalf("expected 2 samples after debounce, got %d", len(series))
	}
	if series[0].Score != 2 {
		t.Errorf("expected debounced sample to replace newest, got score %v", series[0].Score)
	}
}

func TestCache_SeriesIsCopy(t *testing.T) {
	c := NewCache(time.Second)
	base := time.Unix(1700000000, 0)
	c.Record("mint-a", sampleAt(base, 1))
	c.Record("mint-a", sampleAt(base.Add(time.Minute), 2))

	series := c.Series("mint-a", 2)
	series[0].Score = 99

	again := c.Series("mint-a", 2)
	if again[0].Score != 1 {
		t.Errorf("mutating returned series leaked into cache: %v", again[0].Score)
	}
}

func TestCache_MissingMint(t *testing.T) {
	c := NewCache(0)
	if series := c.Series("unknown", 3); len(series) != 0 {
		t.Errorf("expected empty series for unknown mint, got %d", len(series))
	}
	if c.Len("unknown") != 0 {
		t.Errorf("expected zero length for unknown mint")
	}
}

func TestSlopePerMinute(t *testing.T) {
	base := time.Unix(1700000000, 0)
	series := []domain.LeaderSample{
		sampleAt(base, 10),
		sampleAt(base.Add(2*time.Minute), 16),
	}

	slope := SlopePerMinute(series, domain.FieldScore)
	if slope != 3 {
		t.Errorf("expected slope 3/min, got %v", slope)
	}
}

func TestSlopePerMinute_ElapsedFloor(t *testing.T) {
	base := time.Unix(1700000000, 0)
	series := []domain.LeaderSample{
		sampleAt(base, 0),
		sampleAt(base.Add(time.Millisecond), 100),
	}

	slope := SlopePerMinute(series, domain.FieldScore)
	// Elapsed floored at 3.6s = 0.06 min, so slope caps at 100/0.06.
	want := 100 / 0.06
	if slope > want+1e-6 {
		t.Errorf("slope %v exceeds floored maximum %v", slope, want)
	}
}

func TestSlopePerMinute_InsufficientData(t *testing.T) {
	if SlopePerMinute(nil, domain.FieldScore) != 0 {
		t.Error("expected zero slope for empty series")
	}
	series := []domain.LeaderSample{sampleAt(time.Unix(1700000000, 0), 5)}
	if SlopePerMinute(series, domain.FieldScore) != 0 {
		t.Error("expected zero slope for single sample")
	}
}

func TestAccelerationPerMinute(t *testing.T) {
	base := time.Unix(1700000000, 0)
	// Slopes: 1/min then 5/min → acceleration 4.
	series := []domain.LeaderSample{
		sampleAt(base, 0),
		sampleAt(base.Add(time.Minute), 1),
		sampleAt(base.Add(2*time.Minute), 6),
	}

	accel := AccelerationPerMinute(series, domain.FieldScore)
	if accel != 4 {
		t.Errorf("expected acceleration 4, got %v", accel)
	}
}

func TestAccelerationPerMinute_InsufficientData(t *testing.T) {
	base := time.Unix(1700000000, 0)
	series := []domain.LeaderSample{
		sampleAt(base, 0),
		sampleAt(base.Add(time.Minute), 1),
	}
	if AccelerationPerMinute(series, domain.FieldScore) != 0 {
		t.Error("expected zero acceleration below 3 samples")
	}
}
