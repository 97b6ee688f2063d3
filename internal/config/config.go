// Package config provides centralized configuration for the LP swap
// intermediary. ALL swap parameters (directions, fees, timeouts,
// confirmation requirements) MUST be defined here. No hardcoded values
// should exist elsewhere in the codebase.
package config

import "time"

// =============================================================================
// Directions
// =============================================================================

// Direction identifies one of the five swap directions spec.md §3 defines.
type Direction string

const (
	FromBtc          Direction = "from-btc-onchain"
	FromBtcLn        Direction = "from-btc-lightning"
	ToBtc            Direction = "to-btc-onchain"
	ToBtcLn          Direction = "to-btc-lightning"
	TrustedFromBtcLn Direction = "trusted-from-btc-lightning"
)

// AllDirections lists every direction the engine can be configured for.
var AllDirections = []Direction{FromBtc, FromBtcLn, ToBtc, ToBtcLn, TrustedFromBtcLn}

// =============================================================================
// Fee Configuration
// =============================================================================

// FeeConfig holds the swap fee schedule for one (direction, token) pair,
// per spec.md §4.1's PPM math: fee = amount*PPM/1e6 + BaseFeeSats.
type FeeConfig struct {
	PPM         int64 // parts per million, e.g. 3000 = 0.3%
	BaseFeeSats uint64
}

// DefaultFeeConfig returns the default fee schedule: 0.3% + 1000 sats base.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{PPM: 3000, BaseFeeSats: 1000}
}

// =============================================================================
// Bounds Configuration
// =============================================================================

// Bounds holds the min/max swap amount in satoshis-equivalent for a
// (direction, token) pair.
type Bounds struct {
	MinSats uint64
	MaxSats uint64 // 0 means no cap
}

// =============================================================================
// Direction Configuration
// =============================================================================

// DirectionConfig holds everything QuoteEngine and SwapCore need for a
// single direction against a single SC chain token.
type DirectionConfig struct {
	Direction              Direction
	ChainID                uint64
	TokenSymbol            string
	Fee                    FeeConfig
	Bounds                 Bounds
	MaxAllowedFeeDiffPPM   int64         // price staleness gate, spec.md §4.1
	ConfirmationsRequired  uint32        // FromBtc/ToBtc, spec.md §3
	ConfirmationTarget     uint32        // ToBtc fee-rate target, spec.md §3
	QuoteTimeout           time.Duration // how long an unsubmitted quote lives
	SecurityDepositPPM     int64         // swap_data.security_deposit, spec.md §3
	ClaimerBountyPPM       int64         // swap_data.claimer_bounty, spec.md §3
	MaxRoutingFeePPM       int64         // ToBtcLn only: lightning.RoutingBounds.MaxFeePPM, spec.md §4.5
	MaxRoutingBaseFeeSats  uint64        // ToBtcLn only: lightning.RoutingBounds.MaxBaseFeeSats, spec.md §4.5
}

// =============================================================================
// Watchdog / Retry Configuration
// =============================================================================

// WatchdogConfig controls the three periodic tasks spec.md §5 describes.
type WatchdogConfig struct {
	ProcessPastSwapsInterval time.Duration
	DoubleSpendInterval      time.Duration
	PerHashLockTimeout       time.Duration
}

// DefaultWatchdogConfig matches the intervals spec.md §5 names as examples.
func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		ProcessPastSwapsInterval: 60 * time.Second,
		DoubleSpendInterval:      10 * time.Second,
		PerHashLockTimeout:       30 * time.Second,
	}
}

// RetryConfig controls try_with_retries, spec.md §5.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	Exponential     bool
}

// DefaultRetryConfig returns the policy spec.md §5 names: 5 attempts,
// 500ms initial backoff, exponential.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 5, InitialDelay: 500 * time.Millisecond, Exponential: true}
}

// =============================================================================
// Bitcoin Policy
// =============================================================================

// BitcoinPolicy holds policy parameters spec.md §9(c) leaves configurable.
type BitcoinPolicy struct {
	DustLimitSats          uint64
	RecommendFeeMultiplier float64 // default 1.25, per spec.md §9(c)
	RefundSafetyBlocks     uint32  // P6: SC_expiry - N*blocktime*safety_factor
	RefundSafetyFactor     float64
}

// DefaultBitcoinPolicy returns the documented defaults.
func DefaultBitcoinPolicy() BitcoinPolicy {
	return BitcoinPolicy{
		DustLimitSats:          546,
		RecommendFeeMultiplier: 1.25,
		RefundSafetyBlocks:     3,
		RefundSafetyFactor:     1.5,
	}
}

// =============================================================================
// Top-Level LP Configuration
// =============================================================================

// Config is the fully assembled LP configuration.
type Config struct {
	Directions map[Direction][]DirectionConfig // keyed by direction, one entry per token
	Watchdogs  WatchdogConfig
	Retry      RetryConfig
	Bitcoin    BitcoinPolicy

	DataDir     string
	ListenAddr  string
	RequestTimeout     time.Duration // overall REST request budget, spec.md §5
	RequestDecodeTimeout time.Duration
}

// DefaultConfig returns a Config with the ambient defaults wired in; callers
// still need to populate Directions with their chain/token pairs.
func DefaultConfig() *Config {
	return &Config{
		Directions:           make(map[Direction][]DirectionConfig),
		Watchdogs:            DefaultWatchdogConfig(),
		Retry:                DefaultRetryConfig(),
		Bitcoin:              DefaultBitcoinPolicy(),
		DataDir:              "./data",
		ListenAddr:           ":8080",
		RequestTimeout:       30 * time.Second,
		RequestDecodeTimeout: 10 * time.Second,
	}
}

// AddDirection registers a (direction, token) configuration.
func (c *Config) AddDirection(dc DirectionConfig) {
	c.Directions[dc.Direction] = append(c.Directions[dc.Direction], dc)
}

// Lookup finds the configuration for a direction+token pair.
func (c *Config) Lookup(dir Direction, chainID uint64, token string) (DirectionConfig, bool) {
	for _, dc := range c.Directions[dir] {
		if dc.ChainID == chainID && dc.TokenSymbol == token {
			return dc, true
		}
	}
	return DirectionConfig{}, false
}
