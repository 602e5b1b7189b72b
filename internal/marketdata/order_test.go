package marketdata

import (
	"math/rand"
	"strconv"
	"testing"
)

func mustTrade(t *testing.T, line string, idx int) TradeEvent {
	t.Helper()
	ev, err := ParseTradeEvent([]byte(line), idx)
	if err != nil {
		t.Fatalf("parse trade: %v", err)
	}
	return ev
}

func TestCompareTradesOrdersByTimestampThenTieBreaks(t *testing.T) {
	a := mustTrade(t, `{"timestamp":100,"tokenId":"up","price":0.4,"size":10}`, 0)
	b := mustTrade(t, `{"timestamp":200,"tokenId":"up","price":0.4,"size":10}`, 1)
	if !Less(a, b) {
		t.Fatalf("expected a before b by timestamp")
	}

	c := mustTrade(t, `{"timestamp":100,"tokenId":"up","price":0.4,"size":10,"bucketIndex":2}`, 0)
	d := mustTrade(t, `{"timestamp":100,"tokenId":"up","price":0.4,"size":10,"bucketIndex":5}`, 1)
	if !Less(c, d) {
		t.Fatalf("expected lower bucketIndex to sort first")
	}

	e := mustTrade(t, `{"timestamp":100,"tokenId":"up","price":0.4,"size":10,"tradeId":"a"}`, 0)
	f := mustTrade(t, `{"timestamp":100,"tokenId":"up","price":0.4,"size":10,"tradeId":"b"}`, 1)
	if !Less(e, f) {
		t.Fatalf("expected tradeId \"a\" to sort before \"b\"")
	}
}

func TestRoundTripSort(t *testing.T) {
	var trades []TradeEvent
	for i := 0; i < 50; i++ {
		line := `{"timestamp":` + strconv.Itoa(i/5) + `,"tokenId":"up","price":0.4,"size":1,"tradeId":"` + strconv.Itoa(i) + `"}`
		trades = append(trades, mustTrade(t, line, i))
	}
	if !IsSorted(trades) {
		t.Fatalf("fixture expected to already be sorted")
	}

	shuffled := make([]TradeEvent, len(trades))
	copy(shuffled, trades)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	sorted := SortChronologically(shuffled)
	for i := range trades {
		if sorted[i].NaturalKey() != trades[i].NaturalKey() || sorted[i].InputIndex() != trades[i].InputIndex() {
			t.Fatalf("round-trip mismatch at %d: got %+v want %+v", i, sorted[i], trades[i])
		}
	}
}

func TestNaturalKeyDedup(t *testing.T) {
	a := mustTrade(t, `{"timestamp":100,"tokenId":"up","price":0.4,"size":10,"tradeId":"x"}`, 0)
	b := mustTrade(t, `{"timestamp":100,"tokenId":"up","price":0.4,"size":10,"tradeId":"x"}`, 1)
	if a.NaturalKey() != b.NaturalKey() {
		t.Fatalf("expected identical natural keys for duplicate trades")
	}
}
