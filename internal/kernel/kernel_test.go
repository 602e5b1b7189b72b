package kernel

import (
	"errors"
	"testing"

	"github.com/GoPolymarket/market-replay/internal/marketdata"
	"github.com/GoPolymarket/market-replay/internal/marketstate"
)

func s1Meta() marketdata.MarketMeta {
	return marketdata.MarketMeta{Slug: "m", Coin: marketdata.BTC, StartMs: 1000, EndMs: 2000, UpTokenID: "up", DownTokenID: "down"}
}

func s1Rule() TierRule {
	return TierRule{
		TierSeconds: 1000, MinimumPriceDifference: 0,
		MinimumSharePrice: 0, MaximumSharePrice: 1,
		MinimumSpend: 1, MaximumSpend: 10, SizeScale: 1,
		SizeStrategy: SizeFixed, Thresholds: DefaultSignalThresholds(), MaxOpenExposure: Unset(),
	}
}

func snapshotAt(meta marketdata.MarketMeta, marketEndMs, now int64, cryptoPrice, priceToBeat float64, upAsks []marketstate.Level) *marketstate.MarketState {
	s := marketstate.New(meta, meta.StartMs, 0)
	s.MarketEndMs = marketEndMs
	s.CryptoPrice = cryptoPrice
	s.PriceToBeat = priceToBeat
	s.DataStatus = marketstate.StatusHealthy
	s.TimeLeftSec = float64(marketEndMs-now) / 1000
	if upAsks != nil {
		s.OrderBooks["up"] = &marketstate.OrderBookSnapshot{Asks: upAsks}
	}
	return s
}

func TestScenarioS1BuyWinsAndResolves(t *testing.T) {
	profile := ProfileConfig{Name: "p", Trade: TimedTradeConfig{TradeAllowedTimeLeft: 1000, Rules: []TierRule{s1Rule()}}}
	k, err := New(marketdata.BTC, []ProfileConfig{profile}, Options{LatencyBaseMs: 15, CooldownMs: 200})
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	meta := s1Meta()

	snap := snapshotAt(meta, 2000, 1100, 100, 100, []marketstate.Level{{Price: 0.40, Size: 100}})
	due, ok := k.Evaluate(snap, 1100)
	if !ok || due != 1115 {
		t.Fatalf("expected pending scheduled at 1115, got due=%d ok=%v", due, ok)
	}

	snap = snapshotAt(meta, 2000, 1115, 100, 100, []marketstate.Level{{Price: 0.40, Size: 100}})
	k.Evaluate(snap, 1115)
	pr := k.profiles[0]
	if pr.pos.outcome != "up" || pr.pos.shares != 25 || pr.pos.cost != 10 {
		t.Fatalf("expected filled 25 shares at cost 10, got %+v", pr.pos)
	}

	snap = snapshotAt(meta, 2000, 2000, 110, 100, []marketstate.Level{{Price: 0.40, Size: 100}})
	k.Evaluate(snap, 2000)
	if pr.totalTrades != 1 || pr.wins != 1 || pr.totalProfit != 15 {
		t.Fatalf("expected totalTrades=1 wins=1 totalProfit=15, got trades=%d wins=%d profit=%v",
			pr.totalTrades, pr.wins, pr.totalProfit)
	}
}

func TestScenarioS2BuyLosesAndResolves(t *testing.T) {
	profile := ProfileConfig{Name: "p", Trade: TimedTradeConfig{TradeAllowedTimeLeft: 1000, Rules: []TierRule{s1Rule()}}}
	k, err := New(marketdata.BTC, []ProfileConfig{profile}, Options{LatencyBaseMs: 15, CooldownMs: 200})
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	meta := s1Meta()

	k.Evaluate(snapshotAt(meta, 2000, 1100, 100, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 1100)
	k.Evaluate(snapshotAt(meta, 2000, 1115, 100, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 1115)
	k.Evaluate(snapshotAt(meta, 2000, 2000, 90, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 2000)

	pr := k.profiles[0]
	if pr.totalProfit != -10 || pr.losses != 1 {
		t.Fatalf("expected totalProfit=-10 losses=1, got profit=%v losses=%d", pr.totalProfit, pr.losses)
	}
}

func TestScenarioS3LatencyShiftsMarketEndButSummaryMatchesS1(t *testing.T) {
	profile := ProfileConfig{Name: "p", Trade: TimedTradeConfig{TradeAllowedTimeLeft: 1000, Rules: []TierRule{s1Rule()}}}
	k, err := New(marketdata.BTC, []ProfileConfig{profile}, Options{LatencyBaseMs: 15, CooldownMs: 200})
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	meta := s1Meta()
	const marketEndMs = 2200 // meta.EndMs(2000) + latencyMs(200)

	k.Evaluate(snapshotAt(meta, marketEndMs, 1100, 100, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 1100)
	k.Evaluate(snapshotAt(meta, marketEndMs, 1115, 100, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 1115)
	// tick (1900,110) lands at effective t=2100 under latency=200
	k.Evaluate(snapshotAt(meta, marketEndMs, 2100, 110, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 2100)
	k.Evaluate(snapshotAt(meta, marketEndMs, marketEndMs, 110, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), marketEndMs)

	pr := k.profiles[0]
	if pr.totalProfit != 15 || pr.wins != 1 {
		t.Fatalf("expected identical S1 outcome under latency, got profit=%v wins=%d", pr.totalProfit, pr.wins)
	}
}

func TestScenarioS4MinimumSharePriceGatesOneProfileNotTheOther(t *testing.T) {
	ruleA := s1Rule()
	ruleA.MinimumSharePrice = 0.50
	ruleB := s1Rule()
	ruleB.MinimumSharePrice = 0

	profiles := []ProfileConfig{
		{Name: "A", Trade: TimedTradeConfig{TradeAllowedTimeLeft: 1000, Rules: []TierRule{ruleA}}},
		{Name: "B", Trade: TimedTradeConfig{TradeAllowedTimeLeft: 1000, Rules: []TierRule{ruleB}}},
	}
	k, err := New(marketdata.BTC, profiles, Options{LatencyBaseMs: 15, CooldownMs: 200})
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	meta := s1Meta()

	k.Evaluate(snapshotAt(meta, 2000, 1100, 100, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 1100)
	k.Evaluate(snapshotAt(meta, 2000, 1115, 100, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 1115)

	a, b := k.profiles[0], k.profiles[1]
	if a.totalTrades != 0 {
		t.Fatalf("expected profile A to reject the 0.40 ask below its 0.50 floor, got totalTrades=%d", a.totalTrades)
	}
	if b.totalTrades != 1 {
		t.Fatalf("expected profile B to fill, got totalTrades=%d", b.totalTrades)
	}
}

func TestScenarioS5CrossOverExitsAndReenters(t *testing.T) {
	profile := ProfileConfig{Name: "p", Trade: TimedTradeConfig{
		TradeAllowedTimeLeft: 1000,
		Rules:                []TierRule{s1Rule()},
		Cross: &CrossConfig{
			TradeAllowedTimeLeft: 1000,
			Rules: []CrossRule{{
				TierSeconds: 1000, MinimumPriceDifference: 0,
				MinimumSharePrice: 0, MaximumSharePrice: 1,
				MinimumSpend: 1, MaximumSpend: 10, SizeScale: 1, SizeStrategy: SizeFixed,
				MinRecoveryMultiple: 0, MinLossToTrigger: 0, MaxOpenExposure: Unset(),
			}},
		},
	}}
	k, err := New(marketdata.BTC, []ProfileConfig{profile}, Options{LatencyBaseMs: 15, CooldownMs: 200})
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	meta := s1Meta()

	k.Evaluate(snapshotAt(meta, 2000, 1100, 100, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 1100)
	k.Evaluate(snapshotAt(meta, 2000, 1115, 100, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 1115)

	pr := k.profiles[0]
	if pr.pos.outcome != "up" {
		t.Fatalf("expected filled up position before the flip, got %+v", pr.pos)
	}

	// tick (1200,85) forces the favoured side to flip to down.
	flip := snapshotAt(meta, 2000, 1200, 85, 100, nil)
	flip.OrderBooks["up"] = &marketstate.OrderBookSnapshot{Bids: []marketstate.Level{{Price: 0.30, Size: 100}}}
	flip.OrderBooks["down"] = &marketstate.OrderBookSnapshot{Asks: []marketstate.Level{{Price: 0.55, Size: 100}}}
	k.Evaluate(flip, 1200)

	if pr.pos.outcome != "down" || !pr.pos.crossed {
		t.Fatalf("expected cross to flip the position to down, got %+v", pr.pos)
	}
	if pr.crossTrades != 1 {
		t.Fatalf("expected crossTrades=1, got %d", pr.crossTrades)
	}
	if pr.totalTrades != 1 {
		t.Fatalf("expected totalTrades to stay at 1 across the cross, got %d", pr.totalTrades)
	}

	final := snapshotAt(meta, 2000, 2000, 110, 100, nil)
	final.OrderBooks["down"] = &marketstate.OrderBookSnapshot{Asks: []marketstate.Level{{Price: 0.55, Size: 100}}}
	k.Evaluate(final, 2000)

	if pr.losses != 1 {
		t.Fatalf("expected the final down position to lose against a 110 resolve, got losses=%d profit=%v", pr.losses, pr.totalProfit)
	}
}

func TestMaxOpenExposureCapBlocksEntry(t *testing.T) {
	rule := s1Rule()
	rule.MaxOpenExposure = 5 // below the 10 this rule would otherwise spend

	profile := ProfileConfig{Name: "p", Trade: TimedTradeConfig{TradeAllowedTimeLeft: 1000, Rules: []TierRule{rule}}}
	k, err := New(marketdata.BTC, []ProfileConfig{profile}, Options{LatencyBaseMs: 15, CooldownMs: 200})
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	meta := s1Meta()

	k.Evaluate(snapshotAt(meta, 2000, 1100, 100, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 1100)
	pr := k.profiles[0]
	if pr.pos.hasPending {
		t.Fatalf("expected the open-exposure cap to block the entry, got a pending order: %+v", pr.pos)
	}

	k.Evaluate(snapshotAt(meta, 2000, 2000, 110, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 2000)
	if pr.totalTrades != 0 {
		t.Fatalf("expected no trade to ever commit once the cap blocked the entry, got totalTrades=%d", pr.totalTrades)
	}
}

func TestNewRejectsRuleCountMismatch(t *testing.T) {
	profiles := []ProfileConfig{
		{Name: "A", Trade: TimedTradeConfig{Rules: []TierRule{s1Rule()}}},
		{Name: "B", Trade: TimedTradeConfig{Rules: []TierRule{s1Rule(), s1Rule()}}},
	}
	_, err := New(marketdata.BTC, profiles, Options{})
	if !errors.Is(err, ErrRuleCountMismatch) {
		t.Fatalf("expected ErrRuleCountMismatch, got %v", err)
	}
}

func TestNewRejectsTierSecondsMismatch(t *testing.T) {
	ruleB := s1Rule()
	ruleB.TierSeconds = 500
	profiles := []ProfileConfig{
		{Name: "A", Trade: TimedTradeConfig{Rules: []TierRule{s1Rule()}}},
		{Name: "B", Trade: TimedTradeConfig{Rules: []TierRule{ruleB}}},
	}
	_, err := New(marketdata.BTC, profiles, Options{})
	if !errors.Is(err, ErrTierSecondsMismatch) {
		t.Fatalf("expected ErrTierSecondsMismatch, got %v", err)
	}
}

func TestNewRejectsUnsortedTierSeconds(t *testing.T) {
	rules := []TierRule{s1Rule(), s1Rule()}
	rules[0].TierSeconds = 2000
	rules[1].TierSeconds = 1000
	profiles := []ProfileConfig{{Name: "A", Trade: TimedTradeConfig{Rules: rules}}}
	_, err := New(marketdata.BTC, profiles, Options{})
	if !errors.Is(err, ErrTierSecondsUnsorted) {
		t.Fatalf("expected ErrTierSecondsUnsorted, got %v", err)
	}
}

func TestResolutionIsIdempotentWithinSameEpoch(t *testing.T) {
	profile := ProfileConfig{Name: "p", Trade: TimedTradeConfig{TradeAllowedTimeLeft: 1000, Rules: []TierRule{s1Rule()}}}
	k, err := New(marketdata.BTC, []ProfileConfig{profile}, Options{LatencyBaseMs: 15, CooldownMs: 200})
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	meta := s1Meta()

	k.Evaluate(snapshotAt(meta, 2000, 1100, 100, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 1100)
	k.Evaluate(snapshotAt(meta, 2000, 1115, 100, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 1115)
	k.Evaluate(snapshotAt(meta, 2000, 2000, 110, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 2000)

	pr := k.profiles[0]
	if pr.totalProfit != 15 || pr.wins != 1 {
		t.Fatalf("expected a single resolved win before repeated calls, got profit=%v wins=%d", pr.totalProfit, pr.wins)
	}

	// Repeated timeLeftSec<=0 calls within the same market/epoch must not
	// double-resolve (pr.pos was already cleared by the first resolution).
	k.Evaluate(snapshotAt(meta, 2000, 2000, 110, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 2000)
	k.Evaluate(snapshotAt(meta, 2000, 2100, 110, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 2100)

	if pr.totalProfit != 15 || pr.wins != 1 {
		t.Fatalf("expected resolution to stay idempotent within the epoch, got profit=%v wins=%d", pr.totalProfit, pr.wins)
	}
}

func TestAtMostOnePositionOutcome(t *testing.T) {
	profile := ProfileConfig{Name: "p", Trade: TimedTradeConfig{TradeAllowedTimeLeft: 1000, Rules: []TierRule{s1Rule()}}}
	k, err := New(marketdata.BTC, []ProfileConfig{profile}, Options{LatencyBaseMs: 15, CooldownMs: 200})
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	meta := s1Meta()

	k.Evaluate(snapshotAt(meta, 2000, 1100, 100, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 1100)
	k.Evaluate(snapshotAt(meta, 2000, 1115, 100, 100, []marketstate.Level{{Price: 0.40, Size: 100}}), 1115)

	pos := k.profiles[0].pos
	if pos.outcome != "up" && pos.outcome != "down" && pos.outcome != "" {
		t.Fatalf("positionOutcome must be up, down, or none, got %q", pos.outcome)
	}
}
