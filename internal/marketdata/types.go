// Package marketdata defines the record types read from the replay archives
// (markets.jsonl, trades/<slug>.jsonl, crypto/<coin>.jsonl) and the total
// order used to sort and deduplicate trade records.
package marketdata

import "fmt"

// CoinID identifies one of the small closed set of underlying coins a
// replay covers.
type CoinID string

const (
	BTC CoinID = "BTC"
	ETH CoinID = "ETH"
	SOL CoinID = "SOL"
	XRP CoinID = "XRP"
)

// MarketMeta is one line of markets.jsonl. Immutable once loaded.
type MarketMeta struct {
	Slug        string `json:"slug"`
	Coin        CoinID `json:"coin"`
	StartMs     int64  `json:"startMs"`
	EndMs       int64  `json:"endMs"`
	UpTokenID   string `json:"upTokenId"`
	DownTokenID string `json:"downTokenId"`
	MarketName  string `json:"marketName,omitempty"`
}

// Validate enforces the §3 invariants on a loaded MarketMeta.
func (m MarketMeta) Validate() error {
	if m.StartMs >= m.EndMs {
		return fmt.Errorf("marketdata: market %s: startMs %d must be < endMs %d", m.Slug, m.StartMs, m.EndMs)
	}
	if m.UpTokenID == m.DownTokenID {
		return fmt.Errorf("marketdata: market %s: upTokenId and downTokenId must be distinct", m.Slug)
	}
	return nil
}

// Tick is one line of crypto/<coin>.jsonl, monotone non-decreasing per file.
type Tick struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// MakerOrder is one resting order referenced by a TradeEvent's maker side.
type MakerOrder struct {
	Price   float64 `json:"price"`
	Size    float64 `json:"size"`
	Side    string  `json:"side"`
	TokenID string  `json:"tokenId"`
}

// TradeEvent is one line of trades/<slug>.jsonl. Required fields are plain;
// optional fields are explicit pointers rather than a dynamic map, so a
// missing field is a nil pointer rather than a key that was never parsed.
type TradeEvent struct {
	Timestamp     int64        `json:"timestamp"`
	TokenID       string       `json:"tokenId"`
	Price         float64      `json:"price"`
	Size          float64      `json:"size"`
	Side          *string      `json:"side,omitempty"`
	TradeID       *string      `json:"tradeId,omitempty"`
	TakerOrderID  *string      `json:"takerOrderId,omitempty"`
	BucketIndex   *int64       `json:"bucketIndex,omitempty"`
	MakerOrders   []MakerOrder `json:"makerOrders,omitempty"`

	// inputIndex is the record's position in its source stream, used only
	// as the final tie-break in CompareTrades. Not part of the JSON shape.
	inputIndex int
}

// SetInputIndex records this trade's position in its source stream. Callers
// (the line reader / merge step) must call this once per record read.
func (t *TradeEvent) SetInputIndex(i int) { t.inputIndex = i }

// InputIndex returns the index set by SetInputIndex (0 if never set).
func (t TradeEvent) InputIndex() int { return t.inputIndex }

func (t TradeEvent) bucketIndex() int64 {
	if t.BucketIndex == nil {
		return 0
	}
	return *t.BucketIndex
}

func (t TradeEvent) tradeID() string {
	if t.TradeID == nil {
		return ""
	}
	return *t.TradeID
}

func (t TradeEvent) takerOrderID() string {
	if t.TakerOrderID == nil {
		return ""
	}
	return *t.TakerOrderID
}

func (t TradeEvent) side() string {
	if t.Side == nil {
		return ""
	}
	return *t.Side
}

// NaturalKey is the dedup key from §3: timestamp, tokenId, price, size,
// side, tradeId, takerOrderId. Two records with an equal NaturalKey are
// the same trade and are kept once during a merge.
func (t TradeEvent) NaturalKey() string {
	return fmt.Sprintf("%d|%s|%g|%g|%s|%s|%s",
		t.Timestamp, t.TokenID, t.Price, t.Size, t.side(), t.tradeID(), t.takerOrderID())
}
