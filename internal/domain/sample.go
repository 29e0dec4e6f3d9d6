package domain

import "time"

// LeaderSample is one point of the rolling per-mint market-quality
// window. Samples live only in memory and only for slope/acceleration
// derivations; they are never persisted.
type LeaderSample struct {
	Ts            time.Time
	Score         float64
	Liquidity     float64
	Volume        float64
	PriceChange5m float64 // percent
	PriceChange1h float64 // percent
}

// SampleField selects a LeaderSample value for derivations.
type SampleField string

const (
	FieldScore         SampleField = "score"
	FieldLiquidity     SampleField = "liquidity"
	FieldVolume        SampleField = "volume"
	FieldPriceChange5m SampleField = "price_change_5m"
	FieldPriceChange1h SampleField = "price_change_1h"
)

// Value extracts the selected field. Unknown fields yield zero.
func (s LeaderSample) Value(field SampleField) float64 {
	switch field {
	case FieldScore:
		return s.Score
	case FieldLiquidity:
		return s.Liquidity
	case FieldVolume:
		return s.Volume
	case FieldPriceChange5m:
		return s.PriceChange5m
	case FieldPriceChange1h:
		return s.PriceChange1h
	default:
		return 0
	}
}
