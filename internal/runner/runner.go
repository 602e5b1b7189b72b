// Package runner implements §4.8: it drives an internal/scheduler in
// real-time or max-speed mode, hands each advance's dirty coins to their
// internal/kernel, and reports per-profile summaries on completion. It
// mirrors the teacher's internal/app.App start/stop/running shape.
package runner

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GoPolymarket/market-replay/internal/kernel"
	"github.com/GoPolymarket/market-replay/internal/marketdata"
	"github.com/GoPolymarket/market-replay/internal/scheduler"
)

// Options configures one Runner run.
type Options struct {
	MaxSpeed bool    // max-speed mode: tight event-time loop, no wall-clock sleeps
	Speed    float64 // real-time speed multiplier, default 1

	TickIntervalMs      int64   // default 250, scaled by Speed in real-time mode
	HeadlessSnapshotSec float64 // default 15 sim seconds (0/negative selects the default); no snapshots in max-speed
	DirtyEval           bool    // use the scheduler's dirty-coin set instead of re-evaluating every coin

	Logger     *log.Logger
	OnComplete func(runID string, summaries []kernel.ProfileSummary)
}

// Runner drives one Scheduler and one Kernel per coin to completion.
type Runner struct {
	opts    Options
	sched   *scheduler.Scheduler
	kernels map[marketdata.CoinID]*kernel.Kernel
	coins   []marketdata.CoinID
	runID   string

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	stopped bool
}

// New constructs a Runner over inputs, with one Kernel built per coin from
// profiles[coin]. kernelOpts is shared construction config for every coin's
// Kernel (latency/cooldown/cross/confidence overrides, §6 SWEEP_* knobs).
func New(inputs []scheduler.CoinInput, profiles map[marketdata.CoinID][]kernel.ProfileConfig,
	schedOpts scheduler.Options, kernelOpts kernel.Options, opts Options) (*Runner, error) {

	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	if opts.TickIntervalMs <= 0 {
		opts.TickIntervalMs = 250
	}
	if opts.HeadlessSnapshotSec <= 0 {
		opts.HeadlessSnapshotSec = 15
	}
	schedOpts.Logger = opts.Logger
	kernelOpts.Logger = opts.Logger

	sched, err := scheduler.New(inputs, schedOpts)
	if err != nil {
		return nil, fmt.Errorf("runner: scheduler: %w", err)
	}

	kernels := make(map[marketdata.CoinID]*kernel.Kernel, len(inputs))
	coins := make([]marketdata.CoinID, 0, len(inputs))
	for _, in := range inputs {
		cfgs, ok := profiles[in.Coin]
		if !ok || len(cfgs) == 0 {
			continue
		}
		k, err := kernel.New(in.Coin, cfgs, kernelOpts)
		if err != nil {
			sched.Close()
			return nil, fmt.Errorf("runner: %w", err)
		}
		kernels[in.Coin] = k
		coins = append(coins, in.Coin)
	}

	return &Runner{
		opts:    opts,
		sched:   sched,
		kernels: kernels,
		coins:   coins,
		runID:   uuid.NewString(),
		stopCh:  make(chan struct{}),
	}, nil
}

// RunID returns this run's generated identifier.
func (r *Runner) RunID() string { return r.runID }

// IsRunning reports whether Start's loop is currently active.
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Stop cancels the next loop iteration's wait; safe to call more than once
// and safe to call before Start returns.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		r.stopped = true
		close(r.stopCh)
	}
}

// Start runs the scheduler to completion (or until ctx is cancelled or Stop
// is called), evaluating every dirty coin's Kernel after each advance, and
// invokes OnComplete with the final per-profile summaries.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()
	defer r.sched.Close()

	wallStart := time.Now()
	lastEvalMs := r.sched.Now()
	lastSnapshotMs := lastEvalMs
	snapshotIntervalMs := int64(r.opts.HeadlessSnapshotSec * 1000)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stopCh:
			r.finalize(wallStart)
			return nil
		default:
		}

		nextT, ok := r.nextStepTime(lastEvalMs)
		if !ok {
			break
		}

		if !r.opts.MaxSpeed {
			waitMs := float64(nextT-lastEvalMs) / r.opts.Speed
			if waitMs > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-r.stopCh:
					r.finalize(wallStart)
					return nil
				case <-time.After(time.Duration(waitMs) * time.Millisecond):
				}
			}
		}

		if err := r.sched.AdvanceTo(nextT); err != nil {
			return fmt.Errorf("runner: advance: %w", err)
		}
		r.evaluateDirty(nextT)
		lastEvalMs = nextT

		if !r.opts.MaxSpeed && nextT-lastSnapshotMs >= snapshotIntervalMs {
			r.logSnapshot(nextT)
			lastSnapshotMs = nextT
		}
	}

	r.finishActiveMarkets(lastEvalMs)
	r.finalize(wallStart)
	return nil
}

// nextStepTime is §4.8's "earliest of {scheduler next event, kernel next
// pending, next eval tick}". The periodic eval-tick candidate only competes
// once a scheduler event or kernel pending fill actually exists; it is never
// on its own a reason to keep looping, or the loop would spin forever after
// every coin's data and pending fills are exhausted.
func (r *Runner) nextStepTime(lastEvalMs int64) (int64, bool) {
	best, found := int64(0), false
	consider := func(t int64, ok bool) {
		if ok && (!found || t < best) {
			best, found = t, true
		}
	}
	consider(r.sched.NextEventTime())
	for _, k := range r.kernels {
		consider(k.NextPendingDueMs())
	}
	if !found {
		return 0, false
	}
	consider(lastEvalMs+r.opts.TickIntervalMs, true)
	return best, found
}

func (r *Runner) evaluateDirty(now int64) {
	var dirty []marketdata.CoinID
	if r.opts.DirtyEval {
		dirty = r.sched.ConsumeDirty()
	} else {
		dirty = r.coins
	}
	for _, coin := range dirty {
		k, ok := r.kernels[coin]
		if !ok {
			continue
		}
		state, ok := r.sched.State(coin)
		if !ok {
			continue
		}
		k.Evaluate(state, now)
	}
}

// finishActiveMarkets forces one last advance, to the latest marketEndMs of
// any coin still mid-market, when the scheduler's input streams have run dry
// before then, so every open position still receives terminal resolution.
func (r *Runner) finishActiveMarkets(lastEvalMs int64) {
	maxEnd := lastEvalMs
	for _, coin := range r.coins {
		if state, ok := r.sched.State(coin); ok && state.MarketEndMs > maxEnd {
			maxEnd = state.MarketEndMs
		}
	}
	if maxEnd <= lastEvalMs {
		return
	}
	if err := r.sched.AdvanceTo(maxEnd); err != nil {
		r.opts.Logger.Printf("runner: final advance: %v", err)
		return
	}
	r.evaluateDirty(maxEnd)
}

func (r *Runner) logSnapshot(now int64) {
	total := 0
	for _, k := range r.kernels {
		total += len(k.Summaries(0))
	}
	r.opts.Logger.Printf("runner[%s]: t=%d profiles=%d", r.runID, now, total)
}

func (r *Runner) finalize(wallStart time.Time) {
	runtimeSec := time.Since(wallStart).Seconds()
	var summaries []kernel.ProfileSummary
	for _, coin := range r.coins {
		summaries = append(summaries, r.kernels[coin].Summaries(runtimeSec)...)
	}
	if r.opts.OnComplete != nil {
		r.opts.OnComplete(r.runID, summaries)
	}
}
