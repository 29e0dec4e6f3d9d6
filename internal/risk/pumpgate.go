package risk

import (
	"sync"
	"time"
)

// PumpGate is the buy-side final confirmation gate: a candidate becomes
// buy-eligible only after its score rises by Delta within Window from
// when tracking started. Trackers that fail within the window expire
// and restart on the next observation.
type PumpGate struct {
	Delta  float64
	Window time.Duration

	mu       sync.Mutex
	trackers map[string]pumpTracker
}

type pumpTracker struct {
	startScore float64
	since      time.Time
}

// NewPumpGate creates a gate with the given confirmation delta and
// window.
func NewPumpGate(delta float64, window time.Duration) *PumpGate {
	return &PumpGate{
		Delta:    delta,
		Window:   window,
		trackers: make(map[string]pumpTracker),
	}
}

// Observe feeds the latest score for a candidate and reports whether it
// is confirmed. The first observation starts a tracker and is never
// eligible by itself.
func (g *PumpGate) Observe(mint string, score float64, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.trackers[mint]
	if !ok || now.Sub(t.since) > g.Window {
		g.trackers[mint] = pumpTracker{startScore: score, since: now}
		return false
	}

	if score-t.startScore >= g.Delta {
		delete(g.trackers, mint)
		return true
	}
	return false
}

// Forget drops the tracker for a mint (bought, blacklisted, delisted).
func (g *PumpGate) Forget(mint string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.trackers, mint)
}

// Prune drops trackers that expired before now. Called opportunistically
// by the buy pass.
func (g *PumpGate) Prune(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for mint, t := range g.trackers {
		if now.Sub(t.since) > g.Window {
			delete(g.trackers, mint)
		}
	}
}
