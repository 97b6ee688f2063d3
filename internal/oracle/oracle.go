// Package oracle provides BTC/token pricing with redundant providers and a
// TTL cache, mirroring the teacher's multi-backend fallback discipline
// (internal/backend's blockbook/electrum/esplora/mempool chain) but for
// price feeds instead of UTXO data.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/lp-intermediary/swapd/pkg/logging"
)

// Provider is a single price feed. Implementations talk to an exchange's
// HTTP API; this module only depends on the abstraction (spec.md §1: price
// exchanges are out of scope).
type Provider interface {
	// Name identifies the provider in log messages.
	Name() string
	// GetPrice returns the price of one token in micro-sats, for the given
	// SC chain ID and token symbol.
	GetPrice(ctx context.Context, chainID uint64, token string) (*big.Int, error)
}

var ErrNoProviders = errors.New("oracle: no healthy price providers")

type cacheEntry struct {
	price     *big.Int
	fetchedAt time.Time
}

// Oracle is the PricingOracle: it tries providers in priority order and
// caches the result per (chainID, token) for a configurable TTL.
type Oracle struct {
	mu        sync.RWMutex
	providers []Provider
	ttl       time.Duration
	cache     map[uint64]map[string]cacheEntry // chainID -> token -> entry
	log       *logging.Logger
}

// New creates an Oracle with providers tried in the given priority order.
func New(ttl time.Duration, providers ...Provider) *Oracle {
	return &Oracle{
		providers: providers,
		ttl:       ttl,
		cache:     make(map[uint64]map[string]cacheEntry),
		log:       logging.GetDefault().Component("oracle"),
	}
}

// GetPrice returns the cached price if fresh, otherwise queries providers in
// order and caches the first success.
func (o *Oracle) GetPrice(ctx context.Context, chainID uint64, token string) (*big.Int, error) {
	if p, ok := o.cached(chainID, token); ok {
		return p, nil
	}

	var lastErr error
	for _, p := range o.providers {
		price, err := p.GetPrice(ctx, chainID, token)
		if err != nil {
			lastErr = err
			o.log.Warn("price provider failed, trying next", "provider", p.Name(), "err", err)
			continue
		}
		o.store(chainID, token, price)
		return price, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("oracle: all providers failed: %w", lastErr)
	}
	return nil, ErrNoProviders
}

func (o *Oracle) cached(chainID uint64, token string) (*big.Int, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	byToken, ok := o.cache[chainID]
	if !ok {
		return nil, false
	}
	entry, ok := byToken[token]
	if !ok || time.Since(entry.fetchedAt) > o.ttl {
		return nil, false
	}
	return entry.price, true
}

func (o *Oracle) store(chainID uint64, token string, price *big.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cache[chainID] == nil {
		o.cache[chainID] = make(map[string]cacheEntry)
	}
	o.cache[chainID][token] = cacheEntry{price: price, fetchedAt: time.Now()}
}

// Evict drops the cached entry for (chainID, token). Fixes the original
// cache-eviction bug noted in spec.md §9(b), where the nested token key
// must be deleted rather than the whole top-level chain entry.
func (o *Oracle) Evict(chainID uint64, token string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if byToken, ok := o.cache[chainID]; ok {
		delete(byToken, token)
	}
}

// SatsToTokens converts a sats amount to token base units at the given
// micro-sats-per-token price and token decimals.
func SatsToTokens(sats *big.Int, microSatsPerToken *big.Int, decimals uint8) *big.Int {
	// tokens_base_units = sats * 1e6 * 10^decimals / microSatsPerToken
	num := new(big.Int).Mul(sats, big.NewInt(1_000_000))
	num.Mul(num, pow10(decimals))
	return num.Div(num, microSatsPerToken)
}

// TokensToSats converts token base units to sats at the given price.
func TokensToSats(tokens *big.Int, microSatsPerToken *big.Int, decimals uint8) *big.Int {
	num := new(big.Int).Mul(tokens, microSatsPerToken)
	num.Div(num, pow10(decimals))
	return num.Div(num, big.NewInt(1_000_000))
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
