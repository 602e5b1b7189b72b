package kernel

import (
	"math"

	"github.com/GoPolymarket/market-replay/internal/marketstate"
)

// confidenceWeights are the fixed §4.7 confidence weights.
var confidenceWeights = struct {
	Spread, Imbalance, TradeFlow, Momentum, Staleness, Reference float64
}{Spread: .15, Imbalance: .25, TradeFlow: .2, Momentum: .25, Staleness: .1, Reference: .05}

const (
	spreadNormalizationScale = 10.0 // heuristic: a 10-cent spread fully saturates the inverse score
	momentumNormalizationScale = 10.0
	stalenessRampSec = 60.0
)

// confidence computes the §4.7 confidence score. ok=false ("null") when a
// book is entirely absent for the favoured token, the minimum signal this
// model needs.
func confidence(sig marketstate.Signals, hasBook bool, favoredUp bool, priceDiff, minDiff float64) (float64, bool) {
	if !hasBook {
		return 0, false
	}
	spreadScore := clamp01(1 - sig.Spread*spreadNormalizationScale)
	imbalanceScore := clamp01(sig.BookImbalance)
	tradeFlowScore := clamp01((sig.TradeFlowImbalance + 1) / 2)

	momentumScore := 0.5 + sig.PriceMomentum*momentumNormalizationScale
	if !favoredUp {
		momentumScore = 0.5 - sig.PriceMomentum*momentumNormalizationScale
	}
	momentumScore = clamp01(momentumScore)

	stalenessScore := clamp01(1 - sig.PriceStalenessSec/stalenessRampSec)
	referenceScore := clamp01(sig.ReferenceQuality)

	weighted := confidenceWeights.Spread*spreadScore +
		confidenceWeights.Imbalance*imbalanceScore +
		confidenceWeights.TradeFlow*tradeFlowScore +
		confidenceWeights.Momentum*momentumScore +
		confidenceWeights.Staleness*stalenessScore +
		confidenceWeights.Reference*referenceScore

	gapMultiplier := clampf(safeDiv(priceDiff, minDiff), 0.5, 1.5)
	decay := clampf(math.Exp(-sig.PriceStalenessSec/30), 0.5, 1)

	return clamp01(weighted * gapMultiplier * decay), true
}

// edgeScore computes the §4.7 edge score from a configured EdgeModelConfig.
func edgeScore(cfg EdgeModelConfig, sig marketstate.Signals, hasBook bool, favoredUp bool, priceDiff, minDiff, slippageNotional, maxSpend float64) (float64, bool) {
	if cfg.RequireSignals && !hasBook {
		return 0, false
	}
	weights := cfg.Weights
	caps := cfg.CapFactors
	tau := cfg.StalenessTauSec
	if tau <= 0 {
		tau = 30
	}

	gapScore := clamp01(safeDiv(priceDiff, minDiff*caps.Gap))
	depthScore := clamp01(safeDiv(sig.DepthValue, slippageNotional*caps.Depth))
	imbalanceScore := clamp01(sig.BookImbalance)
	velocityScore := clamp01(sig.TradeVelocity / (10 * caps.Velocity))

	momentumScore := 0.5 + sig.PriceMomentum*momentumNormalizationScale*caps.Momentum
	if !favoredUp {
		momentumScore = 0.5 - sig.PriceMomentum*momentumNormalizationScale*caps.Momentum
	}
	momentumScore = clamp01(momentumScore)

	volatilityScore := clamp01(1 - sig.PriceVolatility*caps.Volatility)
	spreadScore := clamp01(1 - sig.Spread*spreadNormalizationScale*caps.Spread)
	referenceScore := clamp01(sig.ReferenceQuality)

	raw := weights.Gap*gapScore + weights.Depth*depthScore + weights.Imbalance*imbalanceScore +
		weights.Velocity*velocityScore + weights.Momentum*momentumScore + weights.Volatility*volatilityScore +
		weights.Spread*spreadScore + weights.Reference*referenceScore

	decay := clamp01(math.Exp(-sig.PriceStalenessSec / tau))
	return clamp01(raw * decay), true
}

// gateMultiplier applies §4.7's per-signal threshold gating. ok=false means
// a hard block (missing signal or sub-floor product).
func gateMultiplier(cfg GateModelConfig, thresholds SignalThresholds, sig marketstate.Signals, hasBook bool) (float64, bool) {
	product := 1.0
	floor := cfg.PerSignalFloor
	if floor <= 0 {
		floor = 0.1
	}

	apply := func(threshold, value float64, valueKnown bool) bool {
		if !isSet(threshold) {
			return true
		}
		if !valueKnown {
			return false
		}
		ratio := safeDiv(threshold, value)
		if ratio > 1 {
			ratio = safeDiv(value, threshold)
		}
		product *= clampf(ratio, floor, 1)
		return true
	}

	if !apply(thresholds.Spread, sig.Spread, hasBook) {
		return 0, false
	}
	if !apply(thresholds.BookImbalance, sig.BookImbalance, true) {
		return 0, false
	}
	if !apply(thresholds.TradeFlowImbalance, sig.TradeFlowImbalance, true) {
		return 0, false
	}
	if !apply(thresholds.TradeVelocity, sig.TradeVelocity, true) {
		return 0, false
	}
	if !apply(thresholds.PriceMomentum, sig.PriceMomentum, true) {
		return 0, false
	}
	if !apply(thresholds.PriceVolatility, sig.PriceVolatility, true) {
		return 0, false
	}

	min := cfg.MinGateMultiplier
	if min <= 0 {
		min = 0
	}
	if product < min {
		return product, false
	}
	return product, true
}

// baseSizeFactor computes a TierRule's base (pre-edge-weighted) size factor.
func baseSizeFactor(strategy SizeStrategy, priceDiff, minDiff, depthValue, maxSpend float64, confidenceVal float64, hasConfidence bool) float64 {
	switch strategy {
	case SizeEdge:
		return clampf(safeDiv(priceDiff, minDiff), 0.5, 2)
	case SizeDepth:
		return clampf(safeDiv(depthValue, maxSpend), 0.5, 2)
	case SizeConfidence:
		c := 1.0
		if hasConfidence {
			c = confidenceVal
		}
		return clampf(0.5+0.5*c, 0.5, 1)
	default:
		return 1
	}
}

// edgeWeightedFactor folds the edge-weighted size model on top of the base
// factor, when sizeModel.Enabled and the mode is edge_weighted.
func edgeWeightedFactor(cfg SizeModelConfig, edge float64, hasEdge bool, confidenceVal float64, hasConfidence bool, depthValue, maxSpend, spread float64, gate float64, hasGate bool) float64 {
	gamma := cfg.Gamma
	if gamma <= 0 {
		gamma = 1.2
	}
	floor, ceil := cfg.MinFloor, cfg.MaxCeil
	if floor <= 0 {
		floor = 0.5
	}
	if ceil <= 0 {
		ceil = 1.5
	}

	edgeFactor := 1.0
	if hasEdge {
		edgeFactor = clampf(math.Pow(edge, gamma), floor, ceil)
	}
	confFactor := 1.0
	if hasConfidence {
		confFactor = 0.5 + 0.5*confidenceVal
	}
	depthRatio := clampf(safeDiv(depthValue, maxSpend), 0.5, 1.5)
	spreadPenalty := clampf(1-spread*5, 0.5, 1)

	factor := edgeFactor * confFactor * depthRatio * spreadPenalty
	if cfg.ApplyGateMultiplier && hasGate {
		factor *= gate
	}
	return factor
}

func clamp01(v float64) float64 { return clampf(v, 0, 1) }

func clampf(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
