// Package cacheindex reads and writes cache/index.json, the manifest the
// (out-of-scope) upstream data-acquisition collaborator maintains and the
// replay core can update as it discovers trade/tick extents during a run.
package cacheindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/GoPolymarket/market-replay/internal/marketdata"
)

const currentVersion = 1

// CryptoTickEntry summarizes one coin's cached tick extent.
type CryptoTickEntry struct {
	MinTs         int64 `json:"minTs"`
	MaxTs         int64 `json:"maxTs"`
	Count         int   `json:"count"`
	LastFetchedAt int64 `json:"lastFetchedAt"`
}

// MarketTradesEntry summarizes one slug's cached trade extent.
type MarketTradesEntry struct {
	MinTs         int64 `json:"minTs"`
	MaxTs         int64 `json:"maxTs"`
	Count         int   `json:"count"`
	Truncated     bool  `json:"truncated"`
	LastFetchedAt int64 `json:"lastFetchedAt"`
}

// MarketMetaEntry caches one slug's MarketMeta alongside its fetch time.
type MarketMetaEntry struct {
	Slug          string            `json:"slug"`
	Coin          marketdata.CoinID `json:"coin"`
	StartMs       int64             `json:"startMs"`
	EndMs         int64             `json:"endMs"`
	LastFetchedAt int64             `json:"lastFetchedAt"`
}

// Index is the decoded shape of cache/index.json.
type Index struct {
	Version      int                          `json:"version"`
	CryptoTicks  map[string]CryptoTickEntry   `json:"cryptoTicks"`
	MarketTrades map[string]MarketTradesEntry `json:"marketTrades"`
	MarketMeta   map[string]MarketMetaEntry   `json:"marketMeta"`
}

// Empty returns a freshly initialized, version-current Index.
func Empty() Index {
	return Index{
		Version:      currentVersion,
		CryptoTicks:  make(map[string]CryptoTickEntry),
		MarketTrades: make(map[string]MarketTradesEntry),
		MarketMeta:   make(map[string]MarketMetaEntry),
	}
}

// Load reads path and decodes it as an Index. A missing file or a version
// mismatch is treated as an empty index, per §6, not an error.
func Load(path string) (Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}
		return Index{}, fmt.Errorf("cacheindex: read %s: %w", path, err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return Empty(), nil
	}
	if idx.Version != currentVersion {
		return Empty(), nil
	}
	if idx.CryptoTicks == nil {
		idx.CryptoTicks = make(map[string]CryptoTickEntry)
	}
	if idx.MarketTrades == nil {
		idx.MarketTrades = make(map[string]MarketTradesEntry)
	}
	if idx.MarketMeta == nil {
		idx.MarketMeta = make(map[string]MarketMetaEntry)
	}
	return idx, nil
}

// Save writes idx to path, creating parent directories as needed.
func (idx Index) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cacheindex: ensure dir: %w", err)
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("cacheindex: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// MergeMarketTrades folds a newly observed trade extent into the index,
// widening the recorded min/max and replacing the count for slug.
func (idx Index) MergeMarketTrades(slug string, minTs, maxTs int64, count int, truncated bool, fetchedAt int64) {
	existing, ok := idx.MarketTrades[slug]
	if ok {
		if existing.MinTs < minTs {
			minTs = existing.MinTs
		}
		if existing.MaxTs > maxTs {
			maxTs = existing.MaxTs
		}
	}
	idx.MarketTrades[slug] = MarketTradesEntry{
		MinTs: minTs, MaxTs: maxTs, Count: count, Truncated: truncated, LastFetchedAt: fetchedAt,
	}
}

// MergeCryptoTicks folds a newly observed tick extent into the index for coin.
func (idx Index) MergeCryptoTicks(coin string, minTs, maxTs int64, count int, fetchedAt int64) {
	existing, ok := idx.CryptoTicks[coin]
	if ok {
		if existing.MinTs < minTs {
			minTs = existing.MinTs
		}
		if existing.MaxTs > maxTs {
			maxTs = existing.MaxTs
		}
	}
	idx.CryptoTicks[coin] = CryptoTickEntry{MinTs: minTs, MaxTs: maxTs, Count: count, LastFetchedAt: fetchedAt}
}
