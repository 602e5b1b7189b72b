// Package shard implements §4.9's Coin Shard Driver: in fast mode, markets
// are partitioned by coin (profile state is strictly per-(profile,coin), so
// coins are independent) and each coin's replay runs on its own worker with
// a bounded concurrency limit. Workers share no mutable state; the driver
// reduces their summaries after every worker returns.
package shard

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/GoPolymarket/market-replay/internal/kernel"
	"github.com/GoPolymarket/market-replay/internal/marketdata"
	"github.com/GoPolymarket/market-replay/internal/runner"
	"github.com/GoPolymarket/market-replay/internal/scheduler"
)

// Options configures a Driver run.
type Options struct {
	WorkerLimit int // default: one worker per coin, unbounded by errgroup's own cap (0 means no limit)

	SchedOpts  scheduler.Options
	KernelOpts kernel.Options
	RunOpts    runner.Options

	Logger *log.Logger
}

// Result is the reduced outcome of a sharded run.
type Result struct {
	Summaries   []kernel.ProfileSummary // reduced across every coin, one entry per profile name
	FailedCoins []marketdata.CoinID     // coins whose worker failed; Run falls back to single-process for these
}

// Driver fans out one worker per coin over inputs, each with its own
// Scheduler and per-coin Kernel set, and reduces the resulting summaries.
type Driver struct {
	inputs   []scheduler.CoinInput
	profiles map[marketdata.CoinID][]kernel.ProfileConfig
	opts     Options
}

// New constructs a Driver. profiles must have an entry for every coin in
// inputs; coins with no configured profiles are skipped, matching
// internal/runner's own construction-time behavior.
func New(inputs []scheduler.CoinInput, profiles map[marketdata.CoinID][]kernel.ProfileConfig, opts Options) *Driver {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Driver{inputs: inputs, profiles: profiles, opts: opts}
}

// workerResult is one coin worker's outcome, collected by Run and folded
// together by reduce.
type workerResult struct {
	coin      marketdata.CoinID
	summaries []kernel.ProfileSummary
}

// Run dispatches one worker per coin (each with its own Scheduler + Kernel
// set, constructed from a single-coin slice of inputs), waits for all of
// them, and reduces per-profile summaries. On any worker's failure the
// driver falls back to running that coin in-process via internal/runner,
// per §4.9 and §7's "worker failure" handling; the failing coin is still
// recorded in Result.FailedCoins.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	results := make([]workerResult, len(d.inputs))
	failed := make([]bool, len(d.inputs))

	// A plain Group, not errgroup.WithContext: coins are independent
	// shards, so one coin's worker failure (and its fallback retry) must
	// never cancel a sibling coin's still-healthy worker.
	var g errgroup.Group
	if d.opts.WorkerLimit > 0 {
		g.SetLimit(d.opts.WorkerLimit)
	}

	for i, in := range d.inputs {
		i, in := i, in
		g.Go(func() error {
			summaries, err := d.runCoin(ctx, in)
			if err != nil {
				d.opts.Logger.Printf("shard: coin %s: worker failed, falling back to single-process: %v", in.Coin, err)
				failed[i] = true
				summaries, err = d.runCoinFallback(ctx, in)
				if err != nil {
					return fmt.Errorf("shard: coin %s: fallback also failed: %w", in.Coin, err)
				}
			}
			results[i] = workerResult{coin: in.Coin, summaries: summaries}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var out Result
	for i, r := range results {
		if failed[i] {
			out.FailedCoins = append(out.FailedCoins, r.coin)
		}
	}
	out.Summaries = reduce(results)
	return out, nil
}

// runCoin runs one coin's replay to exhaustion on a dedicated
// Scheduler+Kernel set, exactly as a worker does in the sharded model.
func (d *Driver) runCoin(ctx context.Context, in scheduler.CoinInput) ([]kernel.ProfileSummary, error) {
	var captured []kernel.ProfileSummary
	runOpts := d.opts.RunOpts
	runOpts.OnComplete = func(_ string, summaries []kernel.ProfileSummary) {
		captured = summaries
	}
	r, err := runner.New([]scheduler.CoinInput{in}, d.profiles, d.opts.SchedOpts, d.opts.KernelOpts, runOpts)
	if err != nil {
		return nil, err
	}
	if err := r.Start(ctx); err != nil {
		return nil, err
	}
	return captured, nil
}

// runCoinFallback is identical to runCoin; it exists as its own call site so
// §7's "falls back to single-process execution" reads as a distinct step
// from the initial worker attempt, even though both currently share the same
// in-process Runner (there is no separate out-of-process execution mode in
// this core).
func (d *Driver) runCoinFallback(ctx context.Context, in scheduler.CoinInput) ([]kernel.ProfileSummary, error) {
	return d.runCoin(ctx, in)
}

// reduce sums totalTrades/wins/losses/totalProfit/openExposure and takes the
// max runtimeSec across every coin's summaries, grouped by profile name.
func reduce(results []workerResult) []kernel.ProfileSummary {
	order := make([]string, 0)
	byName := make(map[string]*kernel.ProfileSummary)
	for _, r := range results {
		for _, s := range r.summaries {
			acc, ok := byName[s.Profile]
			if !ok {
				cp := s
				byName[s.Profile] = &cp
				order = append(order, s.Profile)
				continue
			}
			acc.TotalTrades += s.TotalTrades
			acc.CrossTrades += s.CrossTrades
			acc.Wins += s.Wins
			acc.Losses += s.Losses
			acc.TotalProfit += s.TotalProfit
			acc.OpenExposure += s.OpenExposure
			if s.RuntimeSec > acc.RuntimeSec {
				acc.RuntimeSec = s.RuntimeSec
			}
		}
	}
	out := make([]kernel.ProfileSummary, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}
