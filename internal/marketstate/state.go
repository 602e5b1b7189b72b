// Package marketstate reconstructs the per-coin, per-market order-book and
// signal view the decision kernel evaluates against: §3's MarketState and
// §4.6's signal compute. The scheduler owns the lifecycle (create on market
// activation, mutate on tick/trade ingestion, drop on resolution); this
// package only exposes the mutation and derivation primitives it calls.
package marketstate

import (
	"math"

	"github.com/GoPolymarket/market-replay/internal/marketdata"
)

// ReferenceSource tracks how referencePrice was captured, per §3.
type ReferenceSource string

const (
	ReferenceMissing    ReferenceSource = "missing"
	ReferenceHistorical ReferenceSource = "historical"
	ReferenceLive       ReferenceSource = "live"
)

// DataStatus is the health classification §3 assigns a MarketState.
type DataStatus string

const (
	StatusUnknown DataStatus = "unknown"
	StatusStale   DataStatus = "stale"
	StatusHealthy DataStatus = "healthy"
)

const (
	priceHistoryCap  = 180
	recentTradeWinMs = int64(5 * 60 * 1000)
	staleAfterMs     = int64(10 * 1000)
)

// PricePoint is one entry of the bounded priceHistory deque.
type PricePoint struct {
	Timestamp int64
	Value     float64
}

// MarketState is one coin's live market view, §3.
type MarketState struct {
	Meta        marketdata.MarketMeta
	MarketEndMs int64 // meta.EndMs + latencyMs

	OrderBooks map[string]*OrderBookSnapshot
	BestBid    map[string]float64
	BestAsk    map[string]float64

	PriceHistory []PricePoint
	RecentTrades []marketdata.TradeEvent

	CryptoPrice          float64
	CryptoPriceTimestamp int64
	LastBookUpdateMs     int64
	LastPriceUpdateMs    int64
	SelectedAtMs         int64

	ReferencePrice  float64
	ReferenceSource ReferenceSource
	PriceToBeat     float64

	DataStatus DataStatus
	Signals    Signals
	TimeLeftSec float64
}

// New constructs a fresh MarketState for meta, activated at selectedAtMs,
// with the pipeline latency already folded into marketEndMs.
func New(meta marketdata.MarketMeta, selectedAtMs, latencyMs int64) *MarketState {
	return &MarketState{
		Meta:            meta,
		MarketEndMs:     meta.EndMs + latencyMs,
		OrderBooks:      make(map[string]*OrderBookSnapshot),
		BestBid:         make(map[string]float64),
		BestAsk:         make(map[string]float64),
		SelectedAtMs:    selectedAtMs,
		ReferenceSource: ReferenceMissing,
		DataStatus:      StatusUnknown,
	}
}

// IngestTick applies one underlying-price tick, per §4.5 step 3. Ticks
// before the market's startMs are discarded; ts is the tick's own
// (unshifted) timestamp, since the scheduler applies latencyMs only to when
// it calls IngestTick.
func (s *MarketState) IngestTick(ts int64, value float64) {
	if ts < s.Meta.StartMs {
		return
	}
	s.CryptoPrice = value
	s.CryptoPriceTimestamp = ts
	s.LastPriceUpdateMs = ts
	s.pushPriceHistory(PricePoint{Timestamp: ts, Value: value})
	if s.ReferenceSource == ReferenceMissing {
		s.ReferencePrice = value
		s.ReferenceSource = ReferenceHistorical
	}
}

func (s *MarketState) pushPriceHistory(p PricePoint) {
	s.PriceHistory = append(s.PriceHistory, p)
	if len(s.PriceHistory) > priceHistoryCap {
		s.PriceHistory = s.PriceHistory[len(s.PriceHistory)-priceHistoryCap:]
	}
}

// IngestTrade applies one trade record, per §4.5 step 4: derives book
// sides, updates best bid/ask and lastBookUpdateMs, and appends to
// recentTrades (trimmed later by UpdateDerived).
func (s *MarketState) IngestTrade(trade marketdata.TradeEvent, nowMs int64) {
	s.applyTrade(trade)
	for tokenID, book := range s.OrderBooks {
		s.BestBid[tokenID] = book.BestBid()
		s.BestAsk[tokenID] = book.BestAsk()
	}
	s.LastBookUpdateMs = nowMs
	s.RecentTrades = append(s.RecentTrades, trade)
}

// UpdateDerived recomputes every now-dependent field, per §4.5 step 5.
func (s *MarketState) UpdateDerived(now int64, favoredTokenID, oppositeTokenID string, cfg SignalConfig) {
	s.trimRecentTrades(now)
	s.TimeLeftSec = float64(s.MarketEndMs-now) / 1000
	s.recomputeDataStatus(now)
	s.Signals = Compute(s, favoredTokenID, oppositeTokenID, now, cfg)
}

func (s *MarketState) trimRecentTrades(now int64) {
	cutoff := now - recentTradeWinMs
	kept := s.RecentTrades[:0:0]
	for _, tr := range s.RecentTrades {
		if tr.Timestamp >= cutoff {
			kept = append(kept, tr)
		}
	}
	s.RecentTrades = kept
}

func (s *MarketState) recomputeDataStatus(now int64) {
	switch {
	case s.LastBookUpdateMs > 0:
		s.DataStatus = StatusHealthy
	case now-s.SelectedAtMs > staleAfterMs:
		s.DataStatus = StatusStale
	default:
		s.DataStatus = StatusUnknown
	}
}

// Threshold returns priceToBeat when set, else referencePrice, per §4.7 step 4.
func (s *MarketState) Threshold() float64 {
	if s.PriceToBeat > 0 {
		return s.PriceToBeat
	}
	return s.ReferencePrice
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
