package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the on-disk YAML layout; it is translated into Config
// because Config itself uses time.Duration and map keys the operator
// shouldn't have to spell out in the file.
type fileConfig struct {
	DataDir    string `yaml:"data_dir"`
	ListenAddr string `yaml:"listen_addr"`
	Bitcoin    struct {
		DustLimitSats          uint64  `yaml:"dust_limit_sats"`
		RecommendFeeMultiplier float64 `yaml:"recommend_fee_multiplier"`
	} `yaml:"bitcoin"`
	Directions []struct {
		Direction             string `yaml:"direction"`
		ChainID               uint64 `yaml:"chain_id"`
		Token                 string `yaml:"token"`
		PPM                   int64  `yaml:"ppm"`
		BaseFeeSats           uint64 `yaml:"base_fee_sats"`
		MinSats               uint64 `yaml:"min_sats"`
		MaxSats               uint64 `yaml:"max_sats"`
		MaxAllowedFeeDiffPPM  int64  `yaml:"max_allowed_fee_diff_ppm"`
		ConfirmationsRequired uint32 `yaml:"confirmations_required"`
		ConfirmationTarget    uint32 `yaml:"confirmation_target"`
	} `yaml:"directions"`
}

// LoadFile reads a YAML config file and merges it onto DefaultConfig().
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.Bitcoin.DustLimitSats != 0 {
		cfg.Bitcoin.DustLimitSats = fc.Bitcoin.DustLimitSats
	}
	if fc.Bitcoin.RecommendFeeMultiplier != 0 {
		cfg.Bitcoin.RecommendFeeMultiplier = fc.Bitcoin.RecommendFeeMultiplier
	}

	for _, d := range fc.Directions {
		cfg.AddDirection(DirectionConfig{
			Direction:             Direction(d.Direction),
			ChainID:               d.ChainID,
			TokenSymbol:           d.Token,
			Fee:                   FeeConfig{PPM: d.PPM, BaseFeeSats: d.BaseFeeSats},
			Bounds:                Bounds{MinSats: d.MinSats, MaxSats: d.MaxSats},
			MaxAllowedFeeDiffPPM:  d.MaxAllowedFeeDiffPPM,
			ConfirmationsRequired: d.ConfirmationsRequired,
			ConfirmationTarget:    d.ConfirmationTarget,
			QuoteTimeout:          30 * time.Minute,
		})
	}

	return cfg, nil
}
