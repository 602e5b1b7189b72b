package marketdata

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// ParseMarketMeta decodes one line of markets.jsonl.
func ParseMarketMeta(line []byte) (MarketMeta, error) {
	var m MarketMeta
	if err := json.Unmarshal(line, &m); err != nil {
		return MarketMeta{}, fmt.Errorf("marketdata: parse market meta: %w", err)
	}
	if err := m.Validate(); err != nil {
		return MarketMeta{}, err
	}
	return m, nil
}

// ParseTick decodes one line of crypto/<coin>.jsonl.
func ParseTick(line []byte) (Tick, error) {
	var t Tick
	if err := json.Unmarshal(line, &t); err != nil {
		return Tick{}, fmt.Errorf("marketdata: parse tick: %w", err)
	}
	if !isFinite(t.Value) {
		return Tick{}, fmt.Errorf("marketdata: parse tick: non-finite value %v", t.Value)
	}
	return t, nil
}

// ParseTradeEvent decodes one line of trades/<slug>.jsonl and stamps it with
// its position in the source stream (used only as CompareTrades' final
// stability tie-break).
func ParseTradeEvent(line []byte, inputIndex int) (TradeEvent, error) {
	var t TradeEvent
	if err := json.Unmarshal(line, &t); err != nil {
		return TradeEvent{}, fmt.Errorf("marketdata: parse trade: %w", err)
	}
	if !isFinite(t.Price) || !isFinite(t.Size) {
		return TradeEvent{}, fmt.Errorf("marketdata: parse trade: non-finite price/size")
	}
	t.SetInputIndex(inputIndex)
	return t, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SortChronologically returns trades ordered by CompareTrades. Each trade's
// own inputIndex (set when it was originally parsed) is the final
// stability tie-break, so this is a true round-trip inverse of a shuffle
// applied to an already-sorted slice.
func SortChronologically(trades []TradeEvent) []TradeEvent {
	out := make([]TradeEvent, len(trades))
	copy(out, trades)
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// IsSorted reports whether trades already obey CompareTrades order.
func IsSorted(trades []TradeEvent) bool {
	for i := 1; i < len(trades); i++ {
		if CompareTrades(trades[i-1], trades[i]) > 0 {
			return false
		}
	}
	return true
}
