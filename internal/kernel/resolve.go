package kernel

// resolveAll runs terminal resolution, §4.7, for every profile against ctx
// (the last-seen threshold/cryptoPrice for the market that is ending).
func (k *Kernel) resolveAll(ctx resolutionContext) {
	for _, pr := range k.profiles {
		k.resolveOne(pr, ctx)
	}
}

func (k *Kernel) resolveOne(pr *profileRuntime, ctx resolutionContext) {
	if pr.pos.lastResolvedEpoch == k.epoch {
		return
	}
	winnerUp := ctx.cryptoPrice >= ctx.threshold
	if pr.pos.outcome != "" {
		if (pr.pos.outcome == "up") == winnerUp {
			pr.pos.realizedPnl += pr.pos.shares - pr.pos.cost
		} else {
			pr.pos.realizedPnl -= pr.pos.cost
		}
	}
	if pr.pos.marketHadTrade {
		switch {
		case pr.pos.realizedPnl > 0:
			pr.wins++
			pr.lossStreak = 0
		case pr.pos.realizedPnl < 0:
			pr.losses++
			pr.lossStreak++
		}
		pr.totalProfit += pr.pos.realizedPnl
	}
	pr.pos = position{lastResolvedEpoch: k.epoch}
	pr.openExposure = 0
}
