package domain

import "time"

// RiskParams is the tunable parameter set persisted inside the state
// blob. Loading coerces every field into its declared [min,max] range
// and fills missing values from defaults, so older or hand-edited blobs
// stay loadable.
type RiskParams struct {
	// Static exit levels (percent).
	TakeProfitPct float64 `json:"take_profit_pct"`
	StopLossPct   float64 `json:"stop_loss_pct"`
	TrailPct      float64 `json:"trail_pct"`
	TrailArmPct   float64 `json:"trail_arm_pct"`

	// Warming hold.
	WarmingBasePct       float64       `json:"warming_base_pct"`
	WarmingDecayPerMin   float64       `json:"warming_decay_per_min"`
	WarmingFloorPct      float64       `json:"warming_floor_pct"`
	WarmingDelay         time.Duration `json:"warming_delay"`
	WarmingAutoRelease   time.Duration `json:"warming_auto_release"`
	WarmingMaxLossPct    float64       `json:"warming_max_loss_pct"`
	WarmingMaxLossWindow time.Duration `json:"warming_max_loss_window"`

	// Rebound gate.
	ReboundDeferStep    time.Duration `json:"rebound_defer_step"`
	ReboundMaxDefer     time.Duration `json:"rebound_max_defer"`
	ReboundMinPnlPct    float64       `json:"rebound_min_pnl_pct"`
	ReboundSlopeMin     float64       `json:"rebound_slope_min"`
	ReboundCompositeMin float64       `json:"rebound_composite_min"`

	// Fast-exit ladder.
	FastArmPct       float64       `json:"fast_arm_pct"`
	FastTier1Pct     float64       `json:"fast_tier1_pct"`
	FastTier1Frac    float64       `json:"fast_tier1_frac"`
	FastTier2Pct     float64       `json:"fast_tier2_pct"`
	FastTier2Frac    float64       `json:"fast_tier2_frac"`
	FastTrailPct     float64       `json:"fast_trail_pct"`
	FastStaleTimeout time.Duration `json:"fast_stale_timeout"`
	FastStaleFrac    float64       `json:"fast_stale_frac"`
	FastAccelDrop    float64       `json:"fast_accel_drop"`
	FastAccelFrac    float64       `json:"fast_accel_frac"`

	// Dynamic hard stop.
	DynStopMinPct        float64       `json:"dyn_stop_min_pct"`
	DynStopMaxPct        float64       `json:"dyn_stop_max_pct"`
	DynStopAlpha         float64       `json:"dyn_stop_alpha"`
	DynStopRemorseWindow time.Duration `json:"dyn_stop_remorse_window"`

	// Final pump gate (buy side).
	PumpGateDelta  float64       `json:"pump_gate_delta"`
	PumpGateWindow time.Duration `json:"pump_gate_window"`

	// Edge & sizing.
	MinNetEdgePct        float64 `json:"min_net_edge_pct"` // usually negative
	FeeReserveFloorSol   float64 `json:"fee_reserve_floor_sol"`
	FeeReservePct        float64 `json:"fee_reserve_pct"`
	SellFeeReserveSol    float64 `json:"sell_fee_reserve_sol"` // per open position
	MinOperatingSol      float64 `json:"min_operating_sol"`
	PerBuyCapSol         float64 `json:"per_buy_cap_sol"`
	MaxOpenPositions     int     `json:"max_open_positions"`
	LightEntryFrac       float64 `json:"light_entry_frac"`
	BuySlippageBps       int     `json:"buy_slippage_bps"`
	SellSlippageBps      int     `json:"sell_slippage_bps"`

	// Entry simulation gate.
	EntrySimHorizon time.Duration `json:"entry_sim_horizon"`
	EntrySimMinProb float64       `json:"entry_sim_min_prob"`

	// Sell-side gates.
	ProfitFloorMinNetPct float64       `json:"profit_floor_min_net_pct"`
	ProfitLockArmPct     float64       `json:"profit_lock_arm_pct"`
	ProfitLockGapPct     float64       `json:"profit_lock_gap_pct"`
	SevereLossPct        float64       `json:"severe_loss_pct"`
	MaxHold              time.Duration `json:"max_hold"`
	VolGuardWindow       time.Duration `json:"vol_guard_window"`
	EarlyFadeWindow      time.Duration `json:"early_fade_window"`
	EarlyFadeSlopeMin    float64       `json:"early_fade_slope_min"`
	ObserverDropScore    float64       `json:"observer_drop_score"`
	ObserverDebounce     int           `json:"observer_debounce"`

	// Guard TTLs.
	MintLockTTL      time.Duration `json:"mint_lock_ttl"`
	GlobalBuyLockTTL time.Duration `json:"global_buy_lock_ttl"`
	NoRouteCooldown  time.Duration `json:"no_route_cooldown"`
	BuySeedTTL       time.Duration `json:"buy_seed_ttl"`
	BlacklistStage1  time.Duration `json:"blacklist_stage1"`
	BlacklistStage2  time.Duration `json:"blacklist_stage2"`
	BlacklistStage3  time.Duration `json:"blacklist_stage3"`

	// Lifecycle.
	PhantomGrace     time.Duration `json:"phantom_grace"`
	CreditMaxAttempts int          `json:"credit_max_attempts"`

	// Advisory hook.
	AdvisorRequired       bool `json:"advisor_required"`
	AdvisorOverridesLocks bool `json:"advisor_overrides_locks"`
}

// DefaultRiskParams returns the schema defaults.
func DefaultRiskParams() RiskParams {
	return RiskParams{
		TakeProfitPct: 25,
		StopLossPct:   15,
		TrailPct:      8,
		TrailArmPct:   12,

		WarmingBasePct:       100,
		WarmingDecayPerMin:   1,
		WarmingFloorPct:      10,
		WarmingDelay:         0,
		WarmingAutoRelease:   45 * time.Minute,
		WarmingMaxLossPct:    35,
		WarmingMaxLossWindow: 30 * time.Minute,

		ReboundDeferStep:    45 * time.Second,
		ReboundMaxDefer:     3 * time.Minute,
		ReboundMinPnlPct:    -12,
		ReboundSlopeMin:     0.5,
		ReboundCompositeMin: 0.6,

		FastArmPct:       8,
		FastTier1Pct:     15,
		FastTier1Frac:    0.40,
		FastTier2Pct:     30,
		FastTier2Frac:    0.35,
		FastTrailPct:     6,
		FastStaleTimeout: 4 * time.Minute,
		FastStaleFrac:    0.25,
		FastAccelDrop:    -2.0,
		FastAccelFrac:    0.30,

		DynStopMinPct:        6,
		DynStopMaxPct:        30,
		DynStopAlpha:         0.35,
		DynStopRemorseWindow: 2 * time.Minute,

		PumpGateDelta:  0.05,
		PumpGateWindow: 3 * time.Minute,

		MinNetEdgePct:      -5,
		FeeReserveFloorSol: 0.01,
		FeeReservePct:      1,
		SellFeeReserveSol:  0.002,
		MinOperatingSol:    0.005,
		PerBuyCapSol:       0.25,
		MaxOpenPositions:   3,
		LightEntryFrac:     0.5,
		BuySlippageBps:     150,
		SellSlippageBps:    250,

		EntrySimHorizon: 10 * time.Minute,
		EntrySimMinProb: 0.35,

		ProfitFloorMinNetPct: 1.5,
		ProfitLockArmPct:     10,
		ProfitLockGapPct:     5,
		SevereLossPct:        25,
		MaxHold:              90 * time.Minute,
		VolGuardWindow:       90 * time.Second,
		EarlyFadeWindow:      3 * time.Minute,
		EarlyFadeSlopeMin:    -1.5,
		ObserverDropScore:    0.25,
		ObserverDebounce:     2,

		MintLockTTL:      45 * time.Second,
		GlobalBuyLockTTL: 20 * time.Second,
		NoRouteCooldown:  90 * time.Second,
		BuySeedTTL:       5 * time.Minute,
		BlacklistStage1:  10 * time.Minute,
		BlacklistStage2:  1 * time.Hour,
		BlacklistStage3:  24 * time.Hour,

		PhantomGrace:      4 * time.Minute,
		CreditMaxAttempts: 20,
	}
}

// clampF coerces v into [lo, hi], substituting def when v is zero and
// zero is outside the legal range.
func clampF(v, def, lo, hi float64) float64 {
	if v == 0 && (lo > 0 || hi < 0) {
		v = def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampD(v, def, lo, hi time.Duration) time.Duration {
	if v == 0 {
		v = def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Normalize clamps every field to its declared range, substituting
// defaults for missing values. Safe to call on a zero value.
func (p RiskParams) Normalize() RiskParams {
	d := DefaultRiskParams()

	p.TakeProfitPct = clampF(p.TakeProfitPct, d.TakeProfitPct, 1, 500)
	p.StopLossPct = clampF(p.StopLossPct, d.StopLossPct, 1, 95)
	p.TrailPct = clampF(p.TrailPct, d.TrailPct, 1, 50)
	p.TrailArmPct = clampF(p.TrailArmPct, d.TrailArmPct, 1, 100)

	p.WarmingBasePct = clampF(p.WarmingBasePct, d.WarmingBasePct, 1, 1000)
	p.WarmingDecayPerMin = clampF(p.WarmingDecayPerMin, d.WarmingDecayPerMin, 0.01, 50)
	p.WarmingFloorPct = clampF(p.WarmingFloorPct, d.WarmingFloorPct, 0.5, 100)
	p.WarmingAutoRelease = clampD(p.WarmingAutoRelease, d.WarmingAutoRelease, time.Minute, 6*time.Hour)
	p.WarmingMaxLossPct = clampF(p.WarmingMaxLossPct, d.WarmingMaxLossPct, 1, 95)
	p.WarmingMaxLossWindow = clampD(p.WarmingMaxLossWindow, d.WarmingMaxLossWindow, time.Minute, 6*time.Hour)

	p.ReboundDeferStep = clampD(p.ReboundDeferStep, d.ReboundDeferStep, 5*time.Second, 10*time.Minute)
	p.ReboundMaxDefer = clampD(p.ReboundMaxDefer, d.ReboundMaxDefer, p.ReboundDeferStep, 30*time.Minute)
	if p.ReboundMinPnlPct == 0 {
		p.ReboundMinPnlPct = d.ReboundMinPnlPct
	}
	if p.ReboundMinPnlPct < -95 {
		p.ReboundMinPnlPct = -95
	}
	p.ReboundSlopeMin = clampF(p.ReboundSlopeMin, d.ReboundSlopeMin, 0.01, 100)
	p.ReboundCompositeMin = clampF(p.ReboundCompositeMin, d.ReboundCompositeMin, 0.01, 1)

	p.FastArmPct = clampF(p.FastArmPct, d.FastArmPct, 1, 100)
	p.FastTier1Pct = clampF(p.FastTier1Pct, d.FastTier1Pct, 1, 500)
	p.FastTier1Frac = clampF(p.FastTier1Frac, d.FastTier1Frac, 0.05, 0.95)
	p.FastTier2Pct = clampF(p.FastTier2Pct, d.FastTier2Pct, p.FastTier1Pct, 1000)
	p.FastTier2Frac = clampF(p.FastTier2Frac, d.FastTier2Frac, 0.05, 0.95)
	p.FastTrailPct = clampF(p.FastTrailPct, d.FastTrailPct, 1, 50)
	p.FastStaleTimeout = clampD(p.FastStaleTimeout, d.FastStaleTimeout, 30*time.Second, time.Hour)
	p.FastStaleFrac = clampF(p.FastStaleFrac, d.FastStaleFrac, 0.05, 0.95)
	if p.FastAccelDrop == 0 {
		p.FastAccelDrop = d.FastAccelDrop
	}
	p.FastAccelFrac = clampF(p.FastAccelFrac, d.FastAccelFrac, 0.05, 0.95)

	p.DynStopMinPct = clampF(p.DynStopMinPct, d.DynStopMinPct, 1, 90)
	p.DynStopMaxPct = clampF(p.DynStopMaxPct, d.DynStopMaxPct, p.DynStopMinPct, 95)
	p.DynStopAlpha = clampF(p.DynStopAlpha, d.DynStopAlpha, 0.01, 1)
	p.DynStopRemorseWindow = clampD(p.DynStopRemorseWindow, d.DynStopRemorseWindow, 10*time.Second, time.Hour)

	p.PumpGateDelta = clampF(p.PumpGateDelta, d.PumpGateDelta, 0.01, 1)
	p.PumpGateWindow = clampD(p.PumpGateWindow, d.PumpGateWindow, 15*time.Second, time.Hour)

	if p.MinNetEdgePct == 0 {
		p.MinNetEdgePct = d.MinNetEdgePct
	}
	if p.MinNetEdgePct < -50 {
		p.MinNetEdgePct = -50
	}
	p.FeeReserveFloorSol = clampF(p.FeeReserveFloorSol, d.FeeReserveFloorSol, 0.0001, 10)
	p.FeeReservePct = clampF(p.FeeReservePct, d.FeeReservePct, 0.01, 50)
	p.SellFeeReserveSol = clampF(p.SellFeeReserveSol, d.SellFeeReserveSol, 0.0001, 1)
	p.MinOperatingSol = clampF(p.MinOperatingSol, d.MinOperatingSol, 0.0001, 10)
	p.PerBuyCapSol = clampF(p.PerBuyCapSol, d.PerBuyCapSol, 0.001, 1000)
	if p.MaxOpenPositions <= 0 {
		p.MaxOpenPositions = d.MaxOpenPositions
	}
	if p.MaxOpenPositions > 50 {
		p.MaxOpenPositions = 50
	}
	p.LightEntryFrac = clampF(p.LightEntryFrac, d.LightEntryFrac, 0.1, 0.9)
	if p.BuySlippageBps <= 0 {
		p.BuySlippageBps = d.BuySlippageBps
	}
	if p.SellSlippageBps <= 0 {
		p.SellSlippageBps = d.SellSlippageBps
	}

	p.EntrySimHorizon = clampD(p.EntrySimHorizon, d.EntrySimHorizon, time.Minute, 2*time.Hour)
	p.EntrySimMinProb = clampF(p.EntrySimMinProb, d.EntrySimMinProb, 0.01, 0.99)

	p.ProfitFloorMinNetPct = clampF(p.ProfitFloorMinNetPct, d.ProfitFloorMinNetPct, 0.1, 100)
	p.ProfitLockArmPct = clampF(p.ProfitLockArmPct, d.ProfitLockArmPct, 1, 500)
	p.ProfitLockGapPct = clampF(p.ProfitLockGapPct, d.ProfitLockGapPct, 0.5, 100)
	p.SevereLossPct = clampF(p.SevereLossPct, d.SevereLossPct, 1, 95)
	p.MaxHold = clampD(p.MaxHold, d.MaxHold, time.Minute, 24*time.Hour)
	p.VolGuardWindow = clampD(p.VolGuardWindow, d.VolGuardWindow, 5*time.Second, time.Hour)
	p.EarlyFadeWindow = clampD(p.EarlyFadeWindow, d.EarlyFadeWindow, 15*time.Second, time.Hour)
	if p.EarlyFadeSlopeMin == 0 {
		p.EarlyFadeSlopeMin = d.EarlyFadeSlopeMin
	}
	p.ObserverDropScore = clampF(p.ObserverDropScore, d.ObserverDropScore, 0.01, 1)
	if p.ObserverDebounce <= 0 {
		p.ObserverDebounce = d.ObserverDebounce
	}

	p.MintLockTTL = clampD(p.MintLockTTL, d.MintLockTTL, 5*time.Second, 10*time.Minute)
	p.GlobalBuyLockTTL = clampD(p.GlobalBuyLockTTL, d.GlobalBuyLockTTL, time.Second, 10*time.Minute)
	p.NoRouteCooldown = clampD(p.NoRouteCooldown, d.NoRouteCooldown, 5*time.Second, time.Hour)
	p.BuySeedTTL = clampD(p.BuySeedTTL, d.BuySeedTTL, 15*time.Second, time.Hour)
	p.BlacklistStage1 = clampD(p.BlacklistStage1, d.BlacklistStage1, time.Minute, 24*time.Hour)
	p.BlacklistStage2 = clampD(p.BlacklistStage2, d.BlacklistStage2, p.BlacklistStage1, 7*24*time.Hour)
	p.BlacklistStage3 = clampD(p.BlacklistStage3, d.BlacklistStage3, p.BlacklistStage2, 30*24*time.Hour)

	p.PhantomGrace = clampD(p.PhantomGrace, d.PhantomGrace, 30*time.Second, time.Hour)
	if p.CreditMaxAttempts <= 0 {
		p.CreditMaxAttempts = d.CreditMaxAttempts
	}

	return p
}

// StateBlobVersion is the current persisted schema version.
const StateBlobVersion = 3

// StateBlob is the single versioned configuration/position document.
type StateBlob struct {
	Version   int                  `json:"version"`
	Wallet    string               `json:"wallet"`
	Risk      RiskParams           `json:"risk"`
	Positions map[string]*Position `json:"positions"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// NewStateBlob returns an empty blob at the current version.
func NewStateBlob(wallet string) *StateBlob {
	return &StateBlob{
		Version:   StateBlobVersion,
		Wallet:    wallet,
		Risk:      DefaultRiskParams(),
		Positions: make(map[string]*Position),
	}
}

// Normalize coerces the blob after load: risk params clamped, nil maps
// allocated, invalid positions dropped. Unknown versions are accepted
// and stamped to the current version on next save.
func (b *StateBlob) Normalize() {
	b.Risk = b.Risk.Normalize()
	if b.Positions == nil {
		b.Positions = make(map[string]*Position)
	}
	for mint, pos := range b.Positions {
		if pos == nil {
			delete(b.Positions, mint)
			continue
		}
		if pos.Mint == "" {
			pos.Mint = mint
		}
		if pos.Validate() != nil {
			delete(b.Positions, mint)
		}
	}
	b.Version = StateBlobVersion
}
