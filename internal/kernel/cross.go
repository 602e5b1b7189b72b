package kernel

import "github.com/GoPolymarket/market-replay/internal/marketstate"

// crossPass is §4.7 step 6.
func (k *Kernel) crossPass(snapshot *marketstate.MarketState, now int64, priceDiff float64, favoredUp bool) {
	favoredOutcome := outcomeName(favoredUp)

	for _, pr := range k.profiles {
		cfg := pr.cfg.Trade
		if cfg.Cross == nil || len(cfg.Cross.Rules) == 0 {
			continue
		}
		if snapshot.TimeLeftSec > cfg.Cross.TradeAllowedTimeLeft {
			continue
		}
		if pr.pos.outcome == "" || pr.pos.outcome == favoredOutcome {
			continue
		}

		idx, ok := crossTierIndexFor(cfg.Cross.Rules, snapshot.TimeLeftSec)
		if !ok {
			continue
		}
		rule := applyCrossModes(cfg.CrossModes, cfg.Cross.Rules[idx], snapshot.TimeLeftSec)

		outgoingToken := favoredToken(snapshot.Meta, pr.pos.outcome == "up")
		outgoingBook := snapshot.OrderBooks[outgoingToken]
		if outgoingBook == nil {
			continue
		}
		proceeds, ok := simulateSell(outgoingBook.Bids, pr.pos.shares)
		if !ok {
			continue
		}
		realized := proceeds - pr.pos.cost
		if realized >= 0 || abs(realized) < rule.MinLossToTrigger {
			continue
		}

		if priceDiff < rule.MinimumPriceDifference {
			continue
		}
		newToken := favoredToken(snapshot.Meta, favoredUp)
		newBook := snapshot.OrderBooks[newToken]
		if newBook == nil {
			continue
		}
		askPrice := newBook.BestAsk()
		if askPrice < rule.MinimumSharePrice || askPrice > rule.MaximumSharePrice {
			continue
		}

		factor := baseSizeFactor(rule.SizeStrategy, priceDiff, rule.MinimumPriceDifference, snapshot.Signals.DepthValue, rule.MaximumSpend, 0, false)
		spend := rule.MaximumSpend * rule.SizeScale * factor
		if spend < rule.MinimumSpend {
			spend = rule.MinimumSpend
		}
		entryShares, entryCost, ok := simulateBuy(newBook.Asks, rule.MinimumSharePrice, rule.MaximumSharePrice, spend, rule.MinimumSpend)
		if !ok {
			continue
		}
		projectedProfit := entryShares - entryCost
		if projectedProfit < abs(realized)*rule.MinRecoveryMultiple {
			continue
		}

		if cfg.EdgeModel != nil && cfg.EdgeModel.Enabled {
			e, ok := edgeScore(*cfg.EdgeModel, snapshot.Signals, true, favoredUp, priceDiff, rule.MinimumPriceDifference, 50, rule.MaximumSpend)
			if !ok || (isSet(cfg.EdgeModel.MinScore) && e < cfg.EdgeModel.MinScore) {
				continue
			}
		}
		if cfg.GateModel != nil && cfg.GateModel.Enabled {
			if _, ok := gateMultiplier(*cfg.GateModel, DefaultSignalThresholds(), snapshot.Signals, true); !ok {
				continue
			}
		}
		if isSet(rule.MaxOpenExposure) && entryCost > rule.MaxOpenExposure {
			continue
		}

		pr.pos.outcome = favoredOutcome
		pr.pos.shares = entryShares
		pr.pos.cost = entryCost
		pr.pos.crossed = true
		pr.pos.marketHadTrade = true
		pr.pos.realizedPnl += realized
		pr.crossTrades++
		pr.openExposure = entryCost
	}
}

// applyCrossModes multiplicatively overrides a cross rule's size/threshold
// parameters by time-left regime (precision when more time remains,
// opportunistic when less), per §4.7 step 6.
func applyCrossModes(modes *CrossModesConfig, rule CrossRule, timeLeftSec float64) CrossRule {
	if modes == nil {
		return rule
	}
	mult := modes.OpportunisticMultiplier
	if timeLeftSec > modes.SplitTimeLeftSec {
		mult = modes.PrecisionMultiplier
	}
	if mult <= 0 {
		return rule
	}
	rule.MaximumSpend *= mult
	rule.SizeScale *= mult
	return rule
}
