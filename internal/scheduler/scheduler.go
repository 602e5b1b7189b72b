// Package scheduler implements the §4.5 Event Scheduler: it merges one
// tick stream per coin, one trade stream per currently active market, and
// each coin's market-activation pointer into a single causally-ordered
// advance, mutating the marketstate.MarketState instances it owns.
package scheduler

import (
	"fmt"
	"log"
	"sort"

	"github.com/GoPolymarket/market-replay/internal/eventqueue"
	"github.com/GoPolymarket/market-replay/internal/marketdata"
	"github.com/GoPolymarket/market-replay/internal/marketstate"
	"github.com/GoPolymarket/market-replay/internal/ndjson"
)

// CoinInput is one coin's tick archive and market list, already loaded and
// sorted by the (out-of-scope) data-acquisition collaborator.
type CoinInput struct {
	Coin     marketdata.CoinID
	TickFile string
	Markets  []marketdata.MarketMeta // ascending by StartMs
}

// Options configures a Scheduler.
type Options struct {
	LatencyMs        int64
	ChunkBytes       int
	TickBufferLines  int
	TradeBufferLines int
	SignalConfig     marketstate.SignalConfig
	Logger           *log.Logger

	// TradeFilePath resolves a slug to its trades/<slug>.jsonl path.
	TradeFilePath func(slug string) string
}

type eventKind string

const (
	kindTick   eventKind = "tick"
	kindTrade  eventKind = "trade"
	kindMarket eventKind = "market"
	kindClose  eventKind = "close" // an active market's own MarketEndMs
)

type eventKey struct {
	kind eventKind
	coin marketdata.CoinID
}

type coinState struct {
	coin    marketdata.CoinID
	markets []marketdata.MarketMeta
	nextIdx int

	tickReader *ndjson.Reader[marketdata.Tick]

	activeSlug  string
	state       *marketstate.MarketState
	tradeReader *ndjson.Reader[marketdata.TradeEvent]
}

// Scheduler owns every coin's MarketState and drives the event-time merge.
type Scheduler struct {
	opts Options
	now  int64

	order []marketdata.CoinID
	coins map[marketdata.CoinID]*coinState

	finished map[string]bool
	dirty    map[marketdata.CoinID]bool

	heap     *eventqueue.Index[eventKey, struct{}]
	stats    Stats
	warnings []string
}

// Stats accumulates §7 soft-failure counters across the replay.
type Stats struct {
	DroppedTrades int64 // out-of-range trade timestamps skipped by drainTrades
}

// Stats returns the scheduler's current soft-failure counters.
func (s *Scheduler) Stats() Stats { return s.stats }

// Warnings returns every "missing data" warning logged so far (§7), in the
// order they occurred: trade file missing for a market, etc.
func (s *Scheduler) Warnings() []string { return s.warnings }

// New opens every coin's tick reader and seeds the event heap.
func New(inputs []CoinInput, opts Options) (*Scheduler, error) {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.ChunkBytes <= 0 {
		opts.ChunkBytes = 1 << 20
	}
	if opts.TickBufferLines <= 0 {
		opts.TickBufferLines = 5000
	}
	if opts.TradeBufferLines <= 0 {
		opts.TradeBufferLines = 2000
	}

	s := &Scheduler{
		opts:     opts,
		coins:    make(map[marketdata.CoinID]*coinState),
		finished: make(map[string]bool),
		dirty:    make(map[marketdata.CoinID]bool),
		heap:     eventqueue.New[eventKey, struct{}](),
	}

	for _, in := range inputs {
		tickReader, err := ndjson.Open(in.TickFile, marketdata.ParseTick,
			ndjson.WithChunkBytes(opts.ChunkBytes), ndjson.WithBufferLines(opts.TickBufferLines), ndjson.WithLogger(opts.Logger))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("scheduler: coin %s: %w", in.Coin, err)
		}
		cs := &coinState{coin: in.Coin, markets: in.Markets, tickReader: tickReader}
		s.coins[in.Coin] = cs
		s.order = append(s.order, in.Coin)
	}
	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })

	for _, coin := range s.order {
		s.reheapCoin(s.coins[coin])
	}
	return s, nil
}

// Close releases every open reader.
func (s *Scheduler) Close() error {
	var firstErr error
	for _, cs := range s.coins {
		if cs.tickReader != nil {
			if err := cs.tickReader.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if cs.tradeReader != nil {
			if err := cs.tradeReader.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Now returns the scheduler's current logical time.
func (s *Scheduler) Now() int64 { return s.now }

// State returns coin's live MarketState, if one is active.
func (s *Scheduler) State(coin marketdata.CoinID) (*marketstate.MarketState, bool) {
	cs, ok := s.coins[coin]
	if !ok || cs.state == nil {
		return nil, false
	}
	return cs.state, true
}

// ConsumeDirty returns every coin touched since the last call, in coin
// order, and clears the dirty set.
func (s *Scheduler) ConsumeDirty() []marketdata.CoinID {
	out := make([]marketdata.CoinID, 0, len(s.dirty))
	for _, coin := range s.order {
		if s.dirty[coin] {
			out = append(out, coin)
		}
	}
	s.dirty = make(map[marketdata.CoinID]bool)
	return out
}

// NextEventTime returns the earliest pending tick/trade/market-activation/
// market-close time, or ok=false if no events remain across every coin.
func (s *Scheduler) NextEventTime() (t int64, ok bool) {
	t, _, ok = s.heap.Peek()
	return t, ok
}

// AdvanceTo runs the six-step §4.5 sequence up through logical time t.
func (s *Scheduler) AdvanceTo(t int64) error {
	s.now = t
	if err := s.activateMarkets(t); err != nil {
		return err
	}
	s.drainTicks(t)
	s.drainTrades(t)
	s.updateDerived(t)
	for _, coin := range s.order {
		s.reheapCoin(s.coins[coin])
	}
	return nil
}

// activateMarkets implements §4.5 step 2.
func (s *Scheduler) activateMarkets(t int64) error {
	for _, coin := range s.order {
		cs := s.coins[coin]
		// Strictly greater than, not >=: the kernel must see one final
		// snapshot with timeLeftSec==0 (t==MarketEndMs) before the market
		// closes, so terminal resolution (§4.7 step 3) always fires.
		expired := cs.state != nil && t > cs.state.MarketEndMs
		if !expired && cs.state != nil {
			continue
		}
		if cs.state != nil {
			s.finished[cs.activeSlug] = true
			if cs.tradeReader != nil {
				cs.tradeReader.Close()
				cs.tradeReader = nil
			}
			cs.state = nil
			cs.activeSlug = ""
		}

		for cs.nextIdx < len(cs.markets) {
			m := cs.markets[cs.nextIdx]
			if t > m.EndMs+s.opts.LatencyMs {
				cs.nextIdx++
				continue
			}
			break
		}
		if cs.nextIdx >= len(cs.markets) {
			continue
		}
		m := cs.markets[cs.nextIdx]
		if t < m.StartMs || t > m.EndMs+s.opts.LatencyMs {
			continue
		}

		cs.state = marketstate.New(m, t, s.opts.LatencyMs)
		cs.activeSlug = m.Slug
		cs.nextIdx++

		parse := newTradeParser()
		tr, err := ndjson.Open(s.opts.TradeFilePath(m.Slug), parse,
			ndjson.WithChunkBytes(s.opts.ChunkBytes), ndjson.WithBufferLines(s.opts.TradeBufferLines), ndjson.WithLogger(s.opts.Logger))
		if err != nil {
			// §7 "missing data": a missing trade file drops this market, not
			// the whole replay; the coin moves on to its next market.
			warning := fmt.Sprintf("scheduler: coin %s: market %s: trade file unavailable, dropping market: %v", coin, m.Slug, err)
			s.opts.Logger.Print(warning)
			s.warnings = append(s.warnings, warning)
			cs.state = nil
			cs.activeSlug = ""
			continue
		}
		cs.tradeReader = tr
		s.dirty[coin] = true
	}
	return nil
}

// drainTicks implements §4.5 step 3.
func (s *Scheduler) drainTicks(t int64) {
	for _, coin := range s.order {
		cs := s.coins[coin]
		if cs.state == nil {
			continue
		}
		for {
			tick, ok := cs.tickReader.Peek()
			if !ok || tick.Timestamp+s.opts.LatencyMs > t {
				break
			}
			cs.tickReader.Shift()
			cs.state.IngestTick(tick.Timestamp, tick.Value)
			s.dirty[coin] = true
		}
	}
}

// outOfRangeTradeWindowMs is the §7 tolerance band around a market's
// [startMs, endMs] outside which a trade timestamp is dropped, not ingested.
const outOfRangeTradeWindowMs = 60 * 1000

// drainTrades implements §4.5 step 4.
func (s *Scheduler) drainTrades(t int64) {
	for _, coin := range s.order {
		cs := s.coins[coin]
		if cs.tradeReader == nil {
			continue
		}
		for {
			trade, ok := cs.tradeReader.Peek()
			if !ok || trade.Timestamp > t {
				break
			}
			cs.tradeReader.Shift()
			if trade.Timestamp < cs.state.Meta.StartMs-outOfRangeTradeWindowMs ||
				trade.Timestamp > cs.state.Meta.EndMs+outOfRangeTradeWindowMs {
				s.stats.DroppedTrades++
				continue
			}
			cs.state.IngestTrade(trade, t)
			s.dirty[coin] = true
		}
	}
}

// updateDerived implements §4.5 step 5, picking the favoured token from
// the current crypto price against the active threshold.
func (s *Scheduler) updateDerived(t int64) {
	for _, coin := range s.order {
		cs := s.coins[coin]
		if cs.state == nil {
			continue
		}
		favored, opposite := cs.state.Meta.DownTokenID, cs.state.Meta.UpTokenID
		if cs.state.CryptoPrice >= cs.state.Threshold() {
			favored, opposite = cs.state.Meta.UpTokenID, cs.state.Meta.DownTokenID
		}
		cs.state.UpdateDerived(t, favored, opposite, s.opts.SignalConfig)
	}
}

// reheapCoin implements §4.5 step 6 for one coin: recompute the tick,
// trade, and market-activation event entries from current reader/pointer
// state.
func (s *Scheduler) reheapCoin(cs *coinState) {
	if tick, ok := cs.tickReader.Peek(); ok {
		s.heap.Upsert(eventKey{kindTick, cs.coin}, tick.Timestamp+s.opts.LatencyMs, struct{}{})
	} else {
		s.heap.Remove(eventKey{kindTick, cs.coin})
	}

	if cs.nextIdx < len(cs.markets) {
		s.heap.Upsert(eventKey{kindMarket, cs.coin}, cs.markets[cs.nextIdx].StartMs, struct{}{})
	} else {
		s.heap.Remove(eventKey{kindMarket, cs.coin})
	}

	if cs.tradeReader != nil {
		if trade, ok := cs.tradeReader.Peek(); ok {
			s.heap.Upsert(eventKey{kindTrade, cs.coin}, trade.Timestamp, struct{}{})
		} else {
			s.heap.Remove(eventKey{kindTrade, cs.coin})
		}
	} else {
		s.heap.Remove(eventKey{kindTrade, cs.coin})
	}

	// A market's own close time must always be a scheduled event so the
	// runner's eval cadence can never overshoot it without the kernel
	// first observing timeLeftSec==0. Once now has reached it, drop it:
	// it has already done its job (the t==MarketEndMs call ran drain and
	// update normally), and leaving it in the heap at the same timestamp
	// would make NextEventTime keep handing back a time equal to now,
	// stalling the runner's loop instead of advancing it.
	if cs.state != nil && cs.state.MarketEndMs > s.now {
		s.heap.Upsert(eventKey{kindClose, cs.coin}, cs.state.MarketEndMs, struct{}{})
	} else {
		s.heap.Remove(eventKey{kindClose, cs.coin})
	}
}

func newTradeParser() ndjson.Parser[marketdata.TradeEvent] {
	idx := 0
	return func(line []byte) (marketdata.TradeEvent, error) {
		t, err := marketdata.ParseTradeEvent(line, idx)
		idx++
		return t, err
	}
}

// IsFinished reports whether slug has already been replayed and released.
func (s *Scheduler) IsFinished(slug string) bool { return s.finished[slug] }
