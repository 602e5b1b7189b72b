package kernel

import (
	"math"

	"github.com/GoPolymarket/market-replay/internal/marketstate"
)

// simulateBuy walks asks ascending, skipping prices below minShare and
// stopping once price exceeds maxShare, consuming up to maxSpend notional
// and accumulating fractional shares. Returns ok=false if the cumulative
// cost falls short of minSpend or nothing filled.
func simulateBuy(asks []marketstate.Level, minShare, maxShare, maxSpend, minSpend float64) (shares, cost float64, ok bool) {
	remaining := maxSpend
	for _, lvl := range asks {
		if lvl.Price > maxShare {
			break
		}
		if lvl.Price < minShare {
			continue
		}
		if remaining <= 0 {
			break
		}
		notional := lvl.Price * lvl.Size
		use := math.Min(notional, remaining)
		if lvl.Price <= 0 {
			continue
		}
		shares += use / lvl.Price
		cost += use
		remaining -= use
	}
	if cost < minSpend || shares == 0 {
		return 0, 0, false
	}
	return shares, cost, true
}

// simulateSell walks bids descending, consuming each level's size until qty
// is filled; the last level used may be taken in part, and share amounts
// are fractional (not rounded to whole shares). Returns ok=false if the
// book cannot supply qty.
func simulateSell(bids []marketstate.Level, qty float64) (proceeds float64, ok bool) {
	remaining := qty
	for _, lvl := range bids {
		if remaining <= 1e-9 {
			break
		}
		take := math.Min(lvl.Size, remaining)
		proceeds += take * lvl.Price
		remaining -= take
	}
	if remaining > 1e-9 {
		return 0, false
	}
	return proceeds, true
}
