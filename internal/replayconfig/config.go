// Package replayconfig owns the §6 environment knobs: pipeline latency,
// scheduler/eval feature toggles, stream buffer sizing, coin-worker fan-out,
// and kernel sweep overrides. Strategy profile authoring and historical
// data acquisition stay out of scope and are supplied by the caller.
package replayconfig

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Config holds every §6 environment knob, each with its documented default.
type Config struct {
	LatencyMs int64 // BACKTEST_LATENCY_MS, default 80

	UseEventQueue bool // BACKTEST_EVENT_QUEUE, default true
	DirtyEval     bool // BACKTEST_DIRTY_EVAL, default true

	StreamTickBufferLines  int // BACKTEST_STREAM_TICK_BUFFER_LINES, default 5000
	StreamTradeBufferLines int // BACKTEST_STREAM_TRADE_BUFFER_LINES, default 2000
	StreamChunkBytes       int // BACKTEST_STREAM_CHUNK_BYTES, default 1<<20

	CoinWorkers     bool // BACKTEST_COIN_WORKERS, default true
	CoinWorkerLimit int  // BACKTEST_COIN_WORKER_LIMIT, default runtime.NumCPU()

	DecisionLatencyBaseMs int64   // SWEEP_DECISION_LATENCY_BASE_MS, default 15
	DecisionCooldownMs    int64   // SWEEP_DECISION_COOLDOWN_MS, default 200
	CrossAllowNoFlip      bool    // SWEEP_CROSS_ALLOW_NO_FLIP, default true (1)
	ForceMinConfidence    float64 // SWEEP_FORCE_MIN_CONFIDENCE, default NaN (disabled)
}

// Default returns the documented defaults for every knob.
func Default() Config {
	return Config{
		LatencyMs: 80,

		UseEventQueue: true,
		DirtyEval:     true,

		StreamTickBufferLines:  5000,
		StreamTradeBufferLines: 2000,
		StreamChunkBytes:       1 << 20,

		CoinWorkers:     true,
		CoinWorkerLimit: runtime.NumCPU(),

		DecisionLatencyBaseMs: 15,
		DecisionCooldownMs:    200,
		CrossAllowNoFlip:      true,
		ForceMinConfidence:    math.NaN(),
	}
}

// ApplyEnv overrides defaults from the process environment. Every knob
// accepts a numeric or boolean token, per §6.
func (c *Config) ApplyEnv() error {
	if err := applyInt64(&c.LatencyMs, "BACKTEST_LATENCY_MS"); err != nil {
		return err
	}
	if err := applyBool(&c.UseEventQueue, "BACKTEST_EVENT_QUEUE"); err != nil {
		return err
	}
	if err := applyBool(&c.DirtyEval, "BACKTEST_DIRTY_EVAL"); err != nil {
		return err
	}
	if err := applyInt(&c.StreamTickBufferLines, "BACKTEST_STREAM_TICK_BUFFER_LINES"); err != nil {
		return err
	}
	if err := applyInt(&c.StreamTradeBufferLines, "BACKTEST_STREAM_TRADE_BUFFER_LINES"); err != nil {
		return err
	}
	if err := applyInt(&c.StreamChunkBytes, "BACKTEST_STREAM_CHUNK_BYTES"); err != nil {
		return err
	}
	if err := applyBool(&c.CoinWorkers, "BACKTEST_COIN_WORKERS"); err != nil {
		return err
	}
	if err := applyInt(&c.CoinWorkerLimit, "BACKTEST_COIN_WORKER_LIMIT"); err != nil {
		return err
	}
	if err := applyInt64(&c.DecisionLatencyBaseMs, "SWEEP_DECISION_LATENCY_BASE_MS"); err != nil {
		return err
	}
	if err := applyInt64(&c.DecisionCooldownMs, "SWEEP_DECISION_COOLDOWN_MS"); err != nil {
		return err
	}
	if err := applyBool(&c.CrossAllowNoFlip, "SWEEP_CROSS_ALLOW_NO_FLIP"); err != nil {
		return err
	}
	if err := applyFloat(&c.ForceMinConfidence, "SWEEP_FORCE_MIN_CONFIDENCE"); err != nil {
		return err
	}
	return nil
}

// Validate checks high-impact runtime constraints, mirroring the teacher's
// config.Config.Validate.
func (c Config) Validate() error {
	if c.LatencyMs < 0 {
		return fmt.Errorf("replayconfig: latency_ms must be >= 0, got %d", c.LatencyMs)
	}
	if c.StreamTickBufferLines <= 0 {
		return fmt.Errorf("replayconfig: stream_tick_buffer_lines must be > 0, got %d", c.StreamTickBufferLines)
	}
	if c.StreamTradeBufferLines <= 0 {
		return fmt.Errorf("replayconfig: stream_trade_buffer_lines must be > 0, got %d", c.StreamTradeBufferLines)
	}
	if c.StreamChunkBytes <= 0 {
		return fmt.Errorf("replayconfig: stream_chunk_bytes must be > 0, got %d", c.StreamChunkBytes)
	}
	if c.CoinWorkerLimit <= 0 {
		return fmt.Errorf("replayconfig: coin_worker_limit must be > 0, got %d", c.CoinWorkerLimit)
	}
	if c.DecisionLatencyBaseMs < 0 {
		return fmt.Errorf("replayconfig: decision_latency_base_ms must be >= 0, got %d", c.DecisionLatencyBaseMs)
	}
	if c.DecisionCooldownMs < 0 {
		return fmt.Errorf("replayconfig: decision_cooldown_ms must be >= 0, got %d", c.DecisionCooldownMs)
	}
	return nil
}

func applyInt64(dst *int64, env string) error {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("replayconfig: %s: %w", env, err)
	}
	*dst = n
	return nil
}

func applyInt(dst *int, env string) error {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("replayconfig: %s: %w", env, err)
	}
	*dst = n
	return nil
}

func applyFloat(dst *float64, env string) error {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("replayconfig: %s: %w", env, err)
	}
	*dst = f
	return nil
}

func applyBool(dst *bool, env string) error {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return nil
	}
	if v == "1" || v == "0" {
		*dst = v == "1"
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("replayconfig: %s: %w", env, err)
	}
	*dst = b
	return nil
}
