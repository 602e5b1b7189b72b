// Package archive implements the two-way external merge of already-sorted
// trade archive files (§4.4), deduplicated by marketdata.TradeEvent's
// natural key.
package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/GoPolymarket/market-replay/internal/marketdata"
	"github.com/GoPolymarket/market-replay/internal/ndjson"
)

// MergeStats summarizes a completed merge, for downstream cache-index updates.
type MergeStats struct {
	Count int
	MinTs int64
	MaxTs int64
}

// MergeFiles merges the already-sorted trade files at leftPath and
// rightPath into dstPath, dropping duplicate natural keys and keeping the
// left record when both sides offer the same key at the same position.
// dstPath is written atomically: a temp file is built alongside it and
// renamed into place only on success, so a crash mid-merge leaves
// leftPath/rightPath untouched and dstPath either absent or complete.
func MergeFiles(leftPath, rightPath, dstPath string) (MergeStats, error) {
	left, err := openTradeReader(leftPath)
	if err != nil {
		return MergeStats{}, err
	}
	defer left.Close()

	right, err := openTradeReader(rightPath)
	if err != nil {
		return MergeStats{}, err
	}
	defer right.Close()

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return MergeStats{}, fmt.Errorf("archive: ensure dst dir: %w", err)
	}
	tmpPath := dstPath + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return MergeStats{}, fmt.Errorf("archive: create temp merge output: %w", err)
	}
	w := bufio.NewWriter(tmp)

	stats, mergeErr := mergeInto(w, left, right)
	if mergeErr == nil {
		mergeErr = w.Flush()
	}
	closeErr := tmp.Close()
	if mergeErr != nil {
		os.Remove(tmpPath)
		return MergeStats{}, mergeErr
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return MergeStats{}, fmt.Errorf("archive: close temp merge output: %w", closeErr)
	}
	if err := os.Rename(tmpPath, dstPath); err != nil {
		os.Remove(tmpPath)
		return MergeStats{}, fmt.Errorf("archive: rename temp merge output: %w", err)
	}
	return stats, nil
}

func openTradeReader(path string) (*ndjson.Reader[marketdata.TradeEvent], error) {
	idx := 0
	return ndjson.Open(path, func(line []byte) (marketdata.TradeEvent, error) {
		ev, err := marketdata.ParseTradeEvent(line, idx)
		idx++
		return ev, err
	})
}

// mergeInto emits the two-way merge of left and right into w. On each step
// the smaller head is emitted (ties favor left) unless its natural key
// matches the last emitted key, in which case it is dropped silently.
func mergeInto(w *bufio.Writer, left, right *ndjson.Reader[marketdata.TradeEvent]) (MergeStats, error) {
	var stats MergeStats
	var lastKey string
	haveLast := false

	emit := func(ev marketdata.TradeEvent) error {
		key := ev.NaturalKey()
		if haveLast && key == lastKey {
			return nil
		}
		lastKey = key
		haveLast = true

		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("archive: marshal merged trade: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}

		if stats.Count == 0 || ev.Timestamp < stats.MinTs {
			stats.MinTs = ev.Timestamp
		}
		if ev.Timestamp > stats.MaxTs {
			stats.MaxTs = ev.Timestamp
		}
		stats.Count++
		return nil
	}

	for {
		l, lok := left.Peek()
		r, rok := right.Peek()
		switch {
		case !lok && !rok:
			return stats, nil
		case !lok:
			right.Shift()
			if err := emit(r); err != nil {
				return stats, err
			}
		case !rok:
			left.Shift()
			if err := emit(l); err != nil {
				return stats, err
			}
		default:
			if marketdata.CompareTrades(r, l) < 0 {
				right.Shift()
				if err := emit(r); err != nil {
					return stats, err
				}
			} else {
				left.Shift()
				if err := emit(l); err != nil {
					return stats, err
				}
			}
		}
	}
}
