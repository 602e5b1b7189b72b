package marketstate

import (
	"sort"

	"github.com/GoPolymarket/market-replay/internal/marketdata"
)

// Level is one price/size rung of an order book side.
type Level struct {
	Price float64
	Size  float64
}

// OrderBookSnapshot is the derived per-token book state §3 describes:
// bids sorted descending by price, asks sorted ascending by price.
type OrderBookSnapshot struct {
	Bids          []Level
	Asks          []Level
	LastTrade     *Level
	TotalBidValue float64
	TotalAskValue float64
}

func (b *OrderBookSnapshot) recomputeTotals() {
	b.TotalBidValue = 0
	for _, l := range b.Bids {
		b.TotalBidValue += l.Price * l.Size
	}
	b.TotalAskValue = 0
	for _, l := range b.Asks {
		b.TotalAskValue += l.Price * l.Size
	}
}

// BestBid returns the top bid price (0 if the book has no bids).
func (b *OrderBookSnapshot) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the top ask price (0 if the book has no asks).
func (b *OrderBookSnapshot) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

type tokenSide struct {
	tokenID string
	side    string
}

// applyTrade derives new book sides from trade into the per-token books,
// per §4.5 step 4: group maker orders by (tokenId, side), sort bids desc /
// asks asc, and replace only the sides those groups cover; when no maker
// orders are present, collapse to the one-sided fallback book from §9.
func (s *MarketState) applyTrade(trade marketdata.TradeEvent) {
	if len(trade.MakerOrders) > 0 {
		groups := make(map[tokenSide][]Level)
		order := make([]tokenSide, 0, 4)
		for _, mo := range trade.MakerOrders {
			key := tokenSide{tokenID: mo.TokenID, side: mo.Side}
			if _, seen := groups[key]; !seen {
				order = append(order, key)
			}
			groups[key] = append(groups[key], Level{Price: mo.Price, Size: mo.Size})
		}
		for _, key := range order {
			levels := groups[key]
			book := s.bookFor(key.tokenID)
			switch key.side {
			case "BUY": // maker bid
				sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
				book.Bids = levels
			case "SELL": // maker ask
				sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
				book.Asks = levels
			}
			book.recomputeTotals()
		}
	} else {
		book := s.bookFor(trade.TokenID)
		side := ""
		if trade.Side != nil {
			side = *trade.Side
		}
		switch side {
		case "BUY":
			book.Asks = []Level{{Price: trade.Price, Size: trade.Size}}
			book.Bids = nil
		case "SELL":
			book.Bids = []Level{{Price: trade.Price, Size: trade.Size}}
			book.Asks = nil
		}
		book.recomputeTotals()
	}

	tradedBook := s.bookFor(trade.TokenID)
	tradedBook.LastTrade = &Level{Price: trade.Price, Size: trade.Size}
}

func (s *MarketState) bookFor(tokenID string) *OrderBookSnapshot {
	b, ok := s.OrderBooks[tokenID]
	if !ok {
		b = &OrderBookSnapshot{}
		s.OrderBooks[tokenID] = b
	}
	return b
}
