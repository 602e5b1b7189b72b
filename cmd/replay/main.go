// Command replay runs a historical paper-trading replay over a directory
// of already-downloaded market/tick/trade archives, per the run manifest
// format documented in manifest.go. It is a thin wiring layer: every actual
// replay decision lives in internal/scheduler, internal/kernel,
// internal/runner, and internal/shard.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/GoPolymarket/market-replay/internal/cacheindex"
	"github.com/GoPolymarket/market-replay/internal/kernel"
	"github.com/GoPolymarket/market-replay/internal/marketdata"
	"github.com/GoPolymarket/market-replay/internal/marketstate"
	"github.com/GoPolymarket/market-replay/internal/ndjson"
	"github.com/GoPolymarket/market-replay/internal/replayconfig"
	"github.com/GoPolymarket/market-replay/internal/runner"
	"github.com/GoPolymarket/market-replay/internal/scheduler"
	"github.com/GoPolymarket/market-replay/internal/shard"
)

func main() {
	manifestPath := flag.String("manifest", "replay.yaml", "path to the run manifest")
	flag.Parse()

	m, err := loadManifest(*manifestPath)
	if err != nil {
		log.Fatalf("replay: %v", err)
	}

	cfg := replayconfig.Default()
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("replay: env: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("replay: config: %v", err)
	}

	markets, err := loadMarkets(m.MarketsFile)
	if err != nil {
		log.Fatalf("replay: %v", err)
	}
	inputs := buildCoinInputs(markets, m.TicksDir)
	if len(inputs) == 0 {
		log.Fatal("replay: no coins found in markets file")
	}

	if m.CacheIndexPath != "" {
		if err := refreshCacheIndex(m.CacheIndexPath, markets); err != nil {
			log.Printf("replay: cache index: %v", err)
		}
	}

	profileConfigs := m.profileConfigs()
	profiles := make(map[marketdata.CoinID][]kernel.ProfileConfig, len(inputs))
	for _, in := range inputs {
		profiles[in.Coin] = profileConfigs
	}

	log.Printf("replay starting: %d coins, %d profiles, max_speed=%t sharded=%t", len(inputs), len(profileConfigs), m.MaxSpeed, m.Sharded)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("replay: shutdown signal received")
		cancel()
	}()

	schedOpts := scheduler.Options{
		LatencyMs:        cfg.LatencyMs,
		ChunkBytes:       cfg.StreamChunkBytes,
		TickBufferLines:  cfg.StreamTickBufferLines,
		TradeBufferLines: cfg.StreamTradeBufferLines,
		SignalConfig:     marketstate.DefaultSignalConfig(),
		TradeFilePath:    func(slug string) string { return filepath.Join(m.TradesDir, slug+".jsonl") },
	}
	kernelOpts := kernel.Options{
		LatencyBaseMs:      cfg.DecisionLatencyBaseMs,
		CooldownMs:         cfg.DecisionCooldownMs,
		CrossAllowNoFlip:   cfg.CrossAllowNoFlip,
		ForceMinConfidence: cfg.ForceMinConfidence,
	}
	runOpts := runner.Options{
		MaxSpeed:  m.MaxSpeed,
		Speed:     m.Speed,
		DirtyEval: cfg.DirtyEval,
	}

	var summaries []kernel.ProfileSummary
	if m.Sharded && cfg.CoinWorkers {
		d := shard.New(inputs, profiles, shard.Options{
			WorkerLimit: cfg.CoinWorkerLimit,
			SchedOpts:   schedOpts,
			KernelOpts:  kernelOpts,
			RunOpts:     runOpts,
		})
		result, err := d.Run(ctx)
		if err != nil {
			log.Fatalf("replay: %v", err)
		}
		if len(result.FailedCoins) > 0 {
			log.Printf("replay: %d coin(s) fell back to single-process execution: %v", len(result.FailedCoins), result.FailedCoins)
		}
		summaries = result.Summaries
	} else {
		runOpts.OnComplete = func(runID string, s []kernel.ProfileSummary) {
			log.Printf("replay[%s]: complete", runID)
			summaries = s
		}
		r, err := runner.New(inputs, profiles, schedOpts, kernelOpts, runOpts)
		if err != nil {
			log.Fatalf("replay: %v", err)
		}
		if err := r.Start(ctx); err != nil {
			log.Fatalf("replay: %v", err)
		}
	}

	printSummaries(summaries)
	if m.Output != "" {
		if err := writeSummaries(m.Output, summaries); err != nil {
			log.Fatalf("replay: %v", err)
		}
	}
}

// loadMarkets reads the whole markets.jsonl file into memory; a markets
// file is small relative to the tick/trade archives it indexes, so unlike
// internal/ndjson's lazy streaming readers this one is read to exhaustion
// up front.
func loadMarkets(path string) ([]marketdata.MarketMeta, error) {
	r, err := ndjson.Open(path, marketdata.ParseMarketMeta)
	if err != nil {
		return nil, fmt.Errorf("replay: markets file: %w", err)
	}
	defer r.Close()

	var out []marketdata.MarketMeta
	for {
		m, ok := r.Shift()
		if !ok {
			break
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// buildCoinInputs partitions markets by coin, preserving each coin's
// relative startMs order, and points each coin at its tick archive.
func buildCoinInputs(markets []marketdata.MarketMeta, ticksDir string) []scheduler.CoinInput {
	order := make([]marketdata.CoinID, 0)
	byCoin := make(map[marketdata.CoinID][]marketdata.MarketMeta)
	for _, m := range markets {
		if _, seen := byCoin[m.Coin]; !seen {
			order = append(order, m.Coin)
		}
		byCoin[m.Coin] = append(byCoin[m.Coin], m)
	}

	inputs := make([]scheduler.CoinInput, 0, len(order))
	for _, coin := range order {
		inputs = append(inputs, scheduler.CoinInput{
			Coin:     coin,
			TickFile: filepath.Join(ticksDir, string(coin)+".jsonl"),
			Markets:  byCoin[coin],
		})
	}
	return inputs
}

// refreshCacheIndex folds this run's MarketMeta into cache/index.json, the
// manifest the out-of-scope upstream acquisition collaborator otherwise
// owns: the replay core doesn't fetch anything, but it does know exactly
// which markets it just loaded, so it can feed that extent forward.
func refreshCacheIndex(path string, markets []marketdata.MarketMeta) error {
	idx, err := cacheindex.Load(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	fetchedAt := time.Now().UnixMilli()
	for _, m := range markets {
		idx.MarketMeta[m.Slug] = cacheindex.MarketMetaEntry{
			Slug: m.Slug, Coin: m.Coin, StartMs: m.StartMs, EndMs: m.EndMs, LastFetchedAt: fetchedAt,
		}
	}
	if err := idx.Save(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func printSummaries(summaries []kernel.ProfileSummary) {
	for _, s := range summaries {
		log.Printf("profile=%-12s trades=%-4d wins=%-4d losses=%-4d profit=%.4f openExposure=%.4f runtimeSec=%.2f",
			s.Profile, s.TotalTrades, s.Wins, s.Losses, s.TotalProfit, s.OpenExposure, s.RuntimeSec)
	}
}

func writeSummaries(path string, summaries []kernel.ProfileSummary) error {
	data, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summaries: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
