package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/GoPolymarket/market-replay/internal/kernel"
)

// manifest is the CLI's own run manifest (replay.yaml): which archive files
// to replay and which profiles to run against them. This is the one
// file-loading concern this CLI owns; strategy profile *authoring* beyond
// what's expressed here is an external collaborator's concern.
type manifest struct {
	MarketsFile    string `yaml:"markets_file"`
	TicksDir       string `yaml:"ticks_dir"`
	TradesDir      string `yaml:"trades_dir"`
	Output         string `yaml:"output"`
	CacheIndexPath string `yaml:"cache_index_path"`

	MaxSpeed bool    `yaml:"max_speed"`
	Speed    float64 `yaml:"speed"`
	Sharded  bool    `yaml:"sharded"`

	Profiles []profileManifest `yaml:"profiles"`
}

// profileManifest is the YAML-expressible subset of kernel.ProfileConfig:
// the timed-trade tier schema every replay scenario in §8 exercises. The
// optional edge/gate/size/loss-governor/cross-modes models are left at
// their Go zero value (nil, i.e. disabled) here — a manifest author who
// needs those constructs ProfileConfig directly as a Go caller of
// internal/kernel instead of through this CLI.
type profileManifest struct {
	Name                 string         `yaml:"name"`
	TradeAllowedTimeLeft float64        `yaml:"trade_allowed_time_left"`
	Rules                []tierManifest `yaml:"rules"`
}

type tierManifest struct {
	TierSeconds            float64 `yaml:"tier_seconds"`
	MinimumPriceDifference float64 `yaml:"minimum_price_difference"`
	MinimumSharePrice      float64 `yaml:"minimum_share_price"`
	MaximumSharePrice      float64 `yaml:"maximum_share_price"`
	MinimumSpend           float64 `yaml:"minimum_spend"`
	MaximumSpend           float64 `yaml:"maximum_spend"`
	SizeScale              float64 `yaml:"size_scale"`
}

// loadManifest mirrors internal/config.LoadFile's idiom: read the whole
// file, unmarshal onto a manifest already carrying its own defaults.
func loadManifest(path string) (manifest, error) {
	m := manifest{Speed: 1}
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("replay: read manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("replay: parse manifest: %w", err)
	}
	if m.MarketsFile == "" {
		return m, fmt.Errorf("replay: manifest: markets_file is required")
	}
	if m.TicksDir == "" {
		return m, fmt.Errorf("replay: manifest: ticks_dir is required")
	}
	if m.TradesDir == "" {
		return m, fmt.Errorf("replay: manifest: trades_dir is required")
	}
	if len(m.Profiles) == 0 {
		return m, fmt.Errorf("replay: manifest: at least one profile is required")
	}
	return m, nil
}

// profileConfigs expands the manifest's profile list into kernel
// ProfileConfigs, applied identically to every coin in the replay.
func (m manifest) profileConfigs() []kernel.ProfileConfig {
	out := make([]kernel.ProfileConfig, len(m.Profiles))
	for i, p := range m.Profiles {
		rules := make([]kernel.TierRule, len(p.Rules))
		for j, r := range p.Rules {
			rules[j] = kernel.TierRule{
				TierSeconds:            r.TierSeconds,
				MinimumPriceDifference: r.MinimumPriceDifference,
				MinimumSharePrice:      r.MinimumSharePrice,
				MaximumSharePrice:      r.MaximumSharePrice,
				MinimumSpend:           r.MinimumSpend,
				MaximumSpend:           r.MaximumSpend,
				SizeScale:              r.SizeScale,
				SizeStrategy:           kernel.SizeFixed,
				Thresholds:             kernel.DefaultSignalThresholds(),
				MaxOpenExposure:        kernel.Unset(),
			}
		}
		out[i] = kernel.ProfileConfig{
			Name: p.Name,
			Trade: kernel.TimedTradeConfig{
				TradeAllowedTimeLeft: p.TradeAllowedTimeLeft,
				Rules:                rules,
			},
		}
	}
	return out
}
