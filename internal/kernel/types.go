// Package kernel implements the §4.7 Decision Kernel: the only component
// allowed to mutate position/pending/performance fields. One Kernel
// evaluates every profile for a single coin; the caller (runner or coin
// shard driver) owns one Kernel per coin.
package kernel

import "math"

// SizeStrategy selects a TierRule's base sizing function.
type SizeStrategy int

const (
	SizeFixed SizeStrategy = iota
	SizeEdge
	SizeDepth
	SizeConfidence
)

// unset is the NaN sentinel for optional numeric fields, per the §9
// flat-typed-array design note.
var unset = math.NaN()

// Unset returns the NaN sentinel used for every optional TierRule/model field.
func Unset() float64 { return unset }

func isSet(v float64) bool { return !math.IsNaN(v) }

// SignalThresholds are the optional per-tier gate-multiplier thresholds.
// An unset (NaN) field means that signal is not gated on this rule.
type SignalThresholds struct {
	Spread             float64
	BookImbalance      float64
	TradeFlowImbalance float64
	TradeVelocity      float64
	PriceMomentum      float64
	PriceVolatility    float64
}

// DefaultSignalThresholds returns every threshold unset.
func DefaultSignalThresholds() SignalThresholds {
	return SignalThresholds{unset, unset, unset, unset, unset, unset}
}

// TierRule is one row of a profile's timed-trade schema, §3.
type TierRule struct {
	TierSeconds            float64
	MinimumPriceDifference float64
	MinimumSharePrice      float64
	MaximumSharePrice      float64
	MinimumSpend           float64
	MaximumSpend           float64
	SizeScale              float64
	SizeStrategy           SizeStrategy
	Thresholds             SignalThresholds
	MaxOpenExposure        float64 // unset (NaN) = uncapped
}

// CrossRule is one row of a profile's cross-over schema, §4.7 step 6.
type CrossRule struct {
	TierSeconds            float64
	MinimumPriceDifference float64
	MinimumSharePrice      float64
	MaximumSharePrice      float64
	MinimumSpend           float64
	MaximumSpend           float64
	SizeScale              float64
	SizeStrategy           SizeStrategy
	MinRecoveryMultiple    float64
	MinLossToTrigger       float64
	MaxOpenExposure        float64 // unset (NaN) = uncapped
}

// CrossConfig is a profile's optional cross-over configuration.
type CrossConfig struct {
	TradeAllowedTimeLeft float64
	Rules                []CrossRule
}

// EdgeWeights are the edge-score component weights, §4.7.
type EdgeWeights struct {
	Gap, Depth, Imbalance, Velocity, Momentum, Volatility, Spread, Reference float64
}

// DefaultEdgeWeights returns the documented defaults.
func DefaultEdgeWeights() EdgeWeights {
	return EdgeWeights{Gap: .30, Depth: .15, Imbalance: .15, Velocity: .10, Momentum: .15, Volatility: .05, Spread: .07, Reference: .03}
}

// EdgeCapFactors are the per-component cap factors, §4.7.
type EdgeCapFactors struct {
	Gap, Depth, Velocity, Momentum, Volatility, Spread float64
}

// DefaultEdgeCapFactors returns the documented defaults.
func DefaultEdgeCapFactors() EdgeCapFactors {
	return EdgeCapFactors{Gap: 2, Depth: 2, Velocity: 2, Momentum: 2, Volatility: 2, Spread: 1}
}

// EdgeModelConfig is a profile's optional edge-score model.
type EdgeModelConfig struct {
	Enabled         bool
	Weights         EdgeWeights
	CapFactors      EdgeCapFactors
	StalenessTauSec float64
	RequireSignals  bool
	MinScore        float64 // unset (NaN) = no floor
}

// GateModelConfig is a profile's optional gate-multiplier model.
type GateModelConfig struct {
	Enabled           bool
	MinGateMultiplier float64
	PerSignalFloor    float64
}

// SizeModelConfig is a profile's optional edge-weighted size model.
type SizeModelConfig struct {
	Enabled             bool
	Mode                string // "edge_weighted" enables the edge-weighted scaling pass
	Gamma               float64
	MinFloor            float64
	MaxCeil             float64
	ApplyGateMultiplier bool
}

// DefaultSizeModelConfig returns the documented defaults (Enabled left false).
func DefaultSizeModelConfig() SizeModelConfig {
	return SizeModelConfig{Gamma: 1.2, MinFloor: 0.5, MaxCeil: 1.5}
}

// LossGovernorConfig tightens entries after a losing streak, §4.7 step 7.
type LossGovernorConfig struct {
	StreakThreshold         int
	LossMinDiffMultiplier   float64
	LossSizeScaleMultiplier float64
}

// CrossModesConfig splits cross-over parameters into a precision regime
// (more time left) and an opportunistic regime (less time left).
type CrossModesConfig struct {
	SplitTimeLeftSec        float64
	PrecisionMultiplier     float64
	OpportunisticMultiplier float64
}

// TimedTradeConfig is one profile's per-coin trading schema, §3.
type TimedTradeConfig struct {
	TradeAllowedTimeLeft float64
	Rules                []TierRule
	Cross                *CrossConfig
	EdgeModel            *EdgeModelConfig
	GateModel            *GateModelConfig
	SizeModel            *SizeModelConfig
	LossGovernor         *LossGovernorConfig
	CrossModes           *CrossModesConfig
}

// ProfileConfig names one profile and its per-coin trading schema.
type ProfileConfig struct {
	Name  string
	Trade TimedTradeConfig
}

// position is the per-profile, per-market mutable state the kernel owns.
type position struct {
	outcome string // "", "up", "down"
	shares  float64
	cost    float64
	crossed bool

	marketHadTrade     bool
	marketTradeCounted bool

	hasPending     bool
	pendingDueMs   int64
	pendingOutcome string
	pendingRuleIdx int
	pendingSpend   float64

	realizedPnl float64

	lastDecisionMs    int64
	lastResolvedEpoch int
}

// ProfileSummary is the §6 external-interface output for one profile.
type ProfileSummary struct {
	Profile       string
	RuntimeSec    float64
	TotalTrades   int
	CrossTrades   int
	Wins          int
	Losses        int
	TotalProfit   float64
	OpenExposure  float64
}

type profileRuntime struct {
	cfg ProfileConfig
	pos position

	totalTrades  int
	crossTrades  int
	wins         int
	losses       int
	totalProfit  float64
	lossStreak   int
	openExposure float64
}
