package kernel

import "github.com/GoPolymarket/market-replay/internal/marketstate"

// drainPendings is §4.7 step 2: fill or drop every due pending execution.
func (k *Kernel) drainPendings(snapshot *marketstate.MarketState, now int64) {
	for _, pr := range k.profiles {
		if !pr.pos.hasPending || pr.pos.pendingDueMs > now {
			continue
		}
		rule := pr.cfg.Trade.Rules[pr.pos.pendingRuleIdx]
		tokenID := favoredToken(snapshot.Meta, pr.pos.pendingOutcome == "up")
		book := snapshot.OrderBooks[tokenID]
		outcome := pr.pos.pendingOutcome
		spend := pr.pos.pendingSpend
		pr.pos.hasPending = false

		if book == nil {
			continue
		}
		shares, cost, ok := simulateBuy(book.Asks, rule.MinimumSharePrice, rule.MaximumSharePrice, spend, rule.MinimumSpend)
		if !ok {
			continue
		}
		pr.pos.outcome = outcome
		pr.pos.shares = shares
		pr.pos.cost = cost
		pr.pos.marketHadTrade = true
		if !pr.pos.marketTradeCounted {
			pr.pos.marketTradeCounted = true
			pr.totalTrades++
		}
		pr.openExposure = cost
	}
}
