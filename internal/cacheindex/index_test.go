package cacheindex

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	idx, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Version != currentVersion || len(idx.MarketTrades) != 0 {
		t.Fatalf("expected empty current-version index, got %+v", idx)
	}
}

func TestLoadVersionMismatchReturnsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	if err := os.WriteFile(path, []byte(`{"version":2,"marketTrades":{"x":{"count":5}}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	idx, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(idx.MarketTrades) != 0 {
		t.Fatalf("expected version mismatch to yield an empty index, got %+v", idx)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "index.json")
	idx := Empty()
	idx.MergeMarketTrades("btc-up-100k", 1000, 2000, 42, false, 9999)

	if err := idx.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := loaded.MarketTrades["btc-up-100k"]
	if got.MinTs != 1000 || got.MaxTs != 2000 || got.Count != 42 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestMergeMarketTradesWidensExtent(t *testing.T) {
	idx := Empty()
	idx.MergeMarketTrades("s", 1000, 2000, 10, false, 1)
	idx.MergeMarketTrades("s", 500, 2500, 15, false, 2)

	got := idx.MarketTrades["s"]
	if got.MinTs != 500 || got.MaxTs != 2500 || got.Count != 15 {
		t.Fatalf("expected widened extent with latest count, got %+v", got)
	}
}
