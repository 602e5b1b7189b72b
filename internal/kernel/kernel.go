package kernel

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/GoPolymarket/market-replay/internal/marketdata"
	"github.com/GoPolymarket/market-replay/internal/marketstate"
)

// Sentinel consistency errors, §7: fatal at kernel construction, never
// raised once a Kernel is running.
var (
	ErrRuleCountMismatch   = errors.New("kernel: profile rule count does not match schema")
	ErrTierSecondsMismatch = errors.New("kernel: profile tierSeconds does not match schema")
	ErrTierSecondsUnsorted = errors.New("kernel: tierSeconds must be ascending")
)

// Kernel evaluates every configured profile for one coin, per §4.7. Profile
// state is strictly per-(profile,coin), so one Kernel instance never spans
// more than one coin (the §4.9 coin shard driver constructs one per coin).
type Kernel struct {
	coin              marketdata.CoinID
	profiles          []*profileRuntime
	tierSeconds       []float64 // shared schema, ascending
	latencyBaseMs     int64
	cooldownMs        int64
	crossAllowNoFlip  bool
	forceMinConfidence float64 // NaN disables
	logger            *log.Logger

	currentSlug string
	epoch       int
	haveOutgoing bool
	outgoing    resolutionContext
}

type resolutionContext struct {
	slug        string
	threshold   float64
	cryptoPrice float64
}

// Options configures construction-time constants sourced from replayconfig.
type Options struct {
	LatencyBaseMs      int64
	CooldownMs         int64
	CrossAllowNoFlip   bool
	ForceMinConfidence float64
	Logger             *log.Logger
}

// New validates the shared tier schema across profiles and constructs a
// Kernel for one coin. A ruleCount or tierSeconds mismatch is fatal, per §7.
func New(coin marketdata.CoinID, profiles []ProfileConfig, opts Options) (*Kernel, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("kernel: %s: at least one profile required", coin)
	}
	var schema []float64
	for _, p := range profiles {
		ts := make([]float64, len(p.Trade.Rules))
		for i, r := range p.Trade.Rules {
			ts[i] = r.TierSeconds
		}
		if schema == nil {
			schema = ts
			continue
		}
		if len(ts) != len(schema) {
			return nil, fmt.Errorf("%w: %s: profile %q rule count %d does not match schema rule count %d",
				ErrRuleCountMismatch, coin, p.Name, len(ts), len(schema))
		}
		for i := range ts {
			if ts[i] != schema[i] {
				return nil, fmt.Errorf("%w: %s: profile %q tierSeconds[%d]=%v does not match schema %v",
					ErrTierSecondsMismatch, coin, p.Name, i, ts[i], schema[i])
			}
		}
	}
	if !sort.Float64sAreSorted(schema) {
		return nil, fmt.Errorf("%w: %s: got %v", ErrTierSecondsUnsorted, coin, schema)
	}

	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.LatencyBaseMs <= 0 {
		opts.LatencyBaseMs = 15
	}
	if opts.CooldownMs <= 0 {
		opts.CooldownMs = 200
	}
	if opts.ForceMinConfidence == 0 {
		opts.ForceMinConfidence = unset
	}

	k := &Kernel{
		coin:               coin,
		tierSeconds:        schema,
		latencyBaseMs:      opts.LatencyBaseMs,
		cooldownMs:         opts.CooldownMs,
		crossAllowNoFlip:   opts.CrossAllowNoFlip,
		forceMinConfidence: opts.ForceMinConfidence,
		logger:             opts.Logger,
	}
	for _, p := range profiles {
		k.profiles = append(k.profiles, &profileRuntime{cfg: p})
	}
	return k, nil
}

// Summaries returns each profile's current ProfileSummary.
func (k *Kernel) Summaries(runtimeSec float64) []ProfileSummary {
	out := make([]ProfileSummary, len(k.profiles))
	for i, pr := range k.profiles {
		out[i] = ProfileSummary{
			Profile:      pr.cfg.Name,
			RuntimeSec:   runtimeSec,
			TotalTrades:  pr.totalTrades,
			CrossTrades:  pr.crossTrades,
			Wins:         pr.wins,
			Losses:       pr.losses,
			TotalProfit:  pr.totalProfit,
			OpenExposure: pr.openExposure,
		}
	}
	return out
}

// tierIndexFor returns the first rule index whose tierSeconds covers
// timeLeftSec, i.e. the first i with tierSeconds[i] >= timeLeftSec.
func tierIndexFor(tierSeconds []float64, timeLeftSec float64) (int, bool) {
	for i, ts := range tierSeconds {
		if ts >= timeLeftSec {
			return i, true
		}
	}
	return 0, false
}

func crossTierIndexFor(rules []CrossRule, timeLeftSec float64) (int, bool) {
	for i, r := range rules {
		if r.TierSeconds >= timeLeftSec {
			return i, true
		}
	}
	return 0, false
}

// Evaluate is the §4.7 per-tick entry point.
func (k *Kernel) Evaluate(snapshot *marketstate.MarketState, now int64) (nextPendingDueMs int64, hasNext bool) {
	if snapshot.Meta.Slug != k.currentSlug {
		if k.haveOutgoing {
			k.resolveAll(k.outgoing)
		}
		k.epoch++
		k.currentSlug = snapshot.Meta.Slug
	}

	k.drainPendings(snapshot, now)

	if snapshot.TimeLeftSec <= 0 {
		k.resolveAll(resolutionContext{slug: snapshot.Meta.Slug, threshold: snapshot.Threshold(), cryptoPrice: snapshot.CryptoPrice})
		k.haveOutgoing = false
		return k.nextPending()
	}

	threshold := snapshot.Threshold()
	k.haveOutgoing = true
	k.outgoing = resolutionContext{slug: snapshot.Meta.Slug, threshold: threshold, cryptoPrice: snapshot.CryptoPrice}

	if !(threshold > 0 && snapshot.CryptoPrice > 0 && snapshot.DataStatus == marketstate.StatusHealthy) {
		return k.nextPending()
	}

	priceDiff := abs(snapshot.CryptoPrice - threshold)
	favoredUp := snapshot.CryptoPrice >= threshold

	k.crossPass(snapshot, now, priceDiff, favoredUp)
	k.entryPass(snapshot, now, priceDiff, favoredUp)

	return k.nextPending()
}

// NextPendingDueMs returns the earliest scheduled-but-unfilled execution
// time across every profile, for the runner's next-step time computation.
func (k *Kernel) NextPendingDueMs() (int64, bool) { return k.nextPending() }

func (k *Kernel) nextPending() (int64, bool) {
	best := int64(0)
	found := false
	for _, pr := range k.profiles {
		if pr.pos.hasPending && (!found || pr.pos.pendingDueMs < best) {
			best = pr.pos.pendingDueMs
			found = true
		}
	}
	return best, found
}

func favoredToken(meta marketdata.MarketMeta, favoredUp bool) string {
	if favoredUp {
		return meta.UpTokenID
	}
	return meta.DownTokenID
}

func oppositeOutcome(outcome string) string {
	if outcome == "up" {
		return "down"
	}
	if outcome == "down" {
		return "up"
	}
	return ""
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
