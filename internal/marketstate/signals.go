package marketstate

import (
	"math"

	"github.com/GoPolymarket/market-replay/internal/marketdata"
)

// SignalConfig holds the §4.6 signal-compute knobs.
type SignalConfig struct {
	DepthLevels      int     // default 3
	SlippageNotional float64 // default 50; not read by Compute or by the kernel
	TradeWindowMs    int64   // default 300000 (5 min)
}

// DefaultSignalConfig returns the documented §4.6 defaults.
func DefaultSignalConfig() SignalConfig {
	return SignalConfig{DepthLevels: 3, SlippageNotional: 50, TradeWindowMs: 300000}
}

// Signals are the per-evaluation derived values §4.6 computes for the
// favoured outcome's token(s).
type Signals struct {
	Spread             float64
	BookImbalance      float64
	DepthValue         float64
	TradeVelocity      float64
	PriceMomentum      float64
	PriceVolatility    float64
	PriceStalenessSec  float64
	TradeFlowImbalance float64
	ReferenceQuality   float64
}

// Compute derives Signals for favoredTokenID from its book and the state's
// shared price/trade history; oppositeTokenID is used only by the trade-flow
// imbalance, which counts trades on either of the two tokens.
func Compute(s *MarketState, favoredTokenID, oppositeTokenID string, now int64, cfg SignalConfig) Signals {
	book := s.OrderBooks[favoredTokenID]
	levels := cfg.DepthLevels
	if levels <= 0 {
		levels = 3
	}

	var out Signals
	if book != nil {
		bestBid, bestAsk := book.BestBid(), book.BestAsk()
		if bestBid > 0 && bestAsk > 0 {
			out.Spread = bestAsk - bestBid
		}
		bidDepth := topNValue(book.Bids, levels)
		askDepth := topNValue(book.Asks, levels)
		if total := bidDepth + askDepth; total > 0 {
			out.BookImbalance = bidDepth / total
		} else {
			out.BookImbalance = 0.5
		}
		out.DepthValue = askDepth
	} else {
		out.BookImbalance = 0.5
	}

	out.PriceStalenessSec = float64(now-s.CryptoPriceTimestamp) / 1000

	windowMs := cfg.TradeWindowMs
	if windowMs <= 0 {
		windowMs = 300000
	}
	out.TradeVelocity = tradeVelocity(s.RecentTrades, now, windowMs)
	out.TradeFlowImbalance = tradeFlowImbalance(s.RecentTrades, favoredTokenID, oppositeTokenID, now, windowMs)
	out.PriceMomentum = priceMomentum(s.PriceHistory)
	out.PriceVolatility = priceVolatility(s.PriceHistory)

	switch s.ReferenceSource {
	case ReferenceHistorical:
		out.ReferenceQuality = 1
	case ReferenceLive:
		out.ReferenceQuality = 0.7
	default:
		out.ReferenceQuality = 0
	}

	return out
}

func topNValue(levels []Level, n int) float64 {
	total := 0.0
	for i, l := range levels {
		if i >= n {
			break
		}
		total += l.Price * l.Size
	}
	return total
}

func tradeVelocity(trades []marketdata.TradeEvent, now, windowMs int64) float64 {
	cutoff := now - windowMs
	count := 0
	for _, tr := range trades {
		if tr.Timestamp >= cutoff {
			count++
		}
	}
	windowSec := float64(windowMs) / 1000
	if windowSec <= 0 {
		return 0
	}
	return float64(count) / windowSec
}

func tradeFlowImbalance(trades []marketdata.TradeEvent, favoredTokenID, oppositeTokenID string, now, windowMs int64) float64 {
	cutoff := now - windowMs
	var buyNotional, sellNotional float64
	for _, tr := range trades {
		if tr.Timestamp < cutoff {
			continue
		}
		if tr.TokenID != favoredTokenID && tr.TokenID != oppositeTokenID {
			continue
		}
		if tr.Side == nil {
			continue
		}
		notional := tr.Price * tr.Size
		switch *tr.Side {
		case "BUY":
			buyNotional += notional
		case "SELL":
			sellNotional += notional
		}
	}
	total := buyNotional + sellNotional
	if total == 0 {
		return 0
	}
	return (buyNotional - sellNotional) / total
}

// priceMomentum is the signed slope of the trailing window of priceHistory.
func priceMomentum(hist []PricePoint) float64 {
	n := len(hist)
	if n < 2 {
		return 0
	}
	window := 20
	if n < window {
		window = n
	}
	start := hist[n-window]
	end := hist[n-1]
	dt := end.Timestamp - start.Timestamp
	if dt <= 0 {
		return 0
	}
	return (end.Value - start.Value) / float64(dt)
}

// priceVolatility is the standard deviation of the trailing window of
// priceHistory values.
func priceVolatility(hist []PricePoint) float64 {
	n := len(hist)
	if n < 2 {
		return 0
	}
	window := 30
	if n < window {
		window = n
	}
	sample := hist[n-window:]
	mean := 0.0
	for _, p := range sample {
		mean += p.Value
	}
	mean /= float64(len(sample))

	variance := 0.0
	for _, p := range sample {
		d := p.Value - mean
		variance += d * d
	}
	variance /= float64(len(sample))
	return math.Sqrt(variance)
}
