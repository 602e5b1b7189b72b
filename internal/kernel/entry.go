package kernel

import "github.com/GoPolymarket/market-replay/internal/marketstate"

// entryPass is §4.7 step 7.
func (k *Kernel) entryPass(snapshot *marketstate.MarketState, now int64, priceDiff float64, favoredUp bool) {
	for _, pr := range k.profiles {
		cfg := pr.cfg.Trade
		if snapshot.TimeLeftSec > cfg.TradeAllowedTimeLeft {
			continue
		}
		if pr.pos.outcome != "" || pr.pos.hasPending {
			continue
		}
		if now-pr.pos.lastDecisionMs < k.cooldownMs {
			continue
		}
		idx, ok := tierIndexFor(k.tierSeconds, snapshot.TimeLeftSec)
		if !ok || idx >= len(cfg.Rules) {
			continue
		}
		rule := cfg.Rules[idx]

		minDiff := rule.MinimumPriceDifference
		sizeScale := rule.SizeScale
		if cfg.LossGovernor != nil && pr.lossStreak > cfg.LossGovernor.StreakThreshold {
			if cfg.LossGovernor.LossMinDiffMultiplier > 0 {
				minDiff *= cfg.LossGovernor.LossMinDiffMultiplier
			}
			if cfg.LossGovernor.LossSizeScaleMultiplier > 0 {
				sizeScale *= cfg.LossGovernor.LossSizeScaleMultiplier
			}
		}

		if priceDiff < minDiff {
			continue
		}
		tokenID := favoredToken(snapshot.Meta, favoredUp)
		book := snapshot.OrderBooks[tokenID]
		hasBook := book != nil
		var askPrice float64
		if hasBook {
			askPrice = book.BestAsk()
		}
		if !hasBook || askPrice < rule.MinimumSharePrice || askPrice > rule.MaximumSharePrice {
			continue
		}

		var gate float64 = 1
		hasGate := false
		needsGate := isAnyThresholdSet(rule.Thresholds) || (cfg.GateModel != nil && cfg.GateModel.Enabled)
		if needsGate {
			gmCfg := GateModelConfig{PerSignalFloor: 0.1}
			if cfg.GateModel != nil {
				gmCfg = *cfg.GateModel
			}
			g, ok := gateMultiplier(gmCfg, rule.Thresholds, snapshot.Signals, hasBook)
			if !ok {
				continue
			}
			gate, hasGate = g, true
		}

		var conf float64
		hasConf := false
		needsConfidence := isSet(k.forceMinConfidence) || rule.SizeStrategy == SizeConfidence ||
			(cfg.SizeModel != nil && cfg.SizeModel.Enabled)
		if needsConfidence {
			c, ok := confidence(snapshot.Signals, hasBook, favoredUp, priceDiff, minDiff)
			if ok {
				conf, hasConf = c, true
			}
			if isSet(k.forceMinConfidence) && (!ok || c < k.forceMinConfidence) {
				continue
			}
		}

		var edge float64
		hasEdge := false
		if cfg.EdgeModel != nil && cfg.EdgeModel.Enabled {
			e, ok := edgeScore(*cfg.EdgeModel, snapshot.Signals, hasBook, favoredUp, priceDiff, minDiff,
				50, rule.MaximumSpend)
			if !ok {
				continue
			}
			if isSet(cfg.EdgeModel.MinScore) && e < cfg.EdgeModel.MinScore {
				continue
			}
			edge, hasEdge = e, true
		}

		factor := baseSizeFactor(rule.SizeStrategy, priceDiff, minDiff, snapshot.Signals.DepthValue, rule.MaximumSpend, conf, hasConf)
		if cfg.SizeModel != nil && cfg.SizeModel.Enabled && cfg.SizeModel.Mode == "edge_weighted" {
			factor *= edgeWeightedFactor(*cfg.SizeModel, edge, hasEdge, conf, hasConf,
				snapshot.Signals.DepthValue, rule.MaximumSpend, snapshot.Signals.Spread, gate, hasGate)
		}
		spend := rule.MaximumSpend * sizeScale * factor
		if spend < rule.MinimumSpend {
			spend = rule.MinimumSpend
		}

		if isSet(rule.MaxOpenExposure) && pr.openExposure+spend > rule.MaxOpenExposure {
			continue
		}

		pr.pos.hasPending = true
		pr.pos.pendingDueMs = now + k.latencyBaseMs
		pr.pos.pendingOutcome = outcomeName(favoredUp)
		pr.pos.pendingRuleIdx = idx
		pr.pos.pendingSpend = spend
		pr.pos.lastDecisionMs = now
	}
}

func outcomeName(favoredUp bool) string {
	if favoredUp {
		return "up"
	}
	return "down"
}

func isAnyThresholdSet(t SignalThresholds) bool {
	return isSet(t.Spread) || isSet(t.BookImbalance) || isSet(t.TradeFlowImbalance) ||
		isSet(t.TradeVelocity) || isSet(t.PriceMomentum) || isSet(t.PriceVolatility)
}
