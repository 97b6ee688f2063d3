package btcwatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lp-intermediary/swapd/pkg/logging"
)

// FallbackRPC tries a list of BitcoinRPC providers in priority order,
// demoting one that fails repeatedly to the back of the rotation so a
// flaky provider doesn't get retried on every call. Grounded on the
// teacher's internal/backend.Registry, which holds one backend per chain
// behind the same Backend interface and lets main.go swap providers without
// touching the caller; generalized here into an in-process fallback chain
// since this LP only ever watches one chain (Bitcoin) but wants redundancy
// across explorer providers (mempool.space, blockstream.info, a
// self-hosted Esplora, ...).
type FallbackRPC struct {
	mu        sync.Mutex
	providers []*rankedProvider
	log       *logging.Logger
}

type rankedProvider struct {
	name      string
	rpc       BitcoinRPC
	failures  int
	demotedAt time.Time
}

const demotionThreshold = 3
const demotionCooldown = 2 * time.Minute

// NewFallbackRPC builds a chain from named providers, tried in the given
// order. The name is used only for logging.
func NewFallbackRPC(named map[string]BitcoinRPC, order []string) *FallbackRPC {
	providers := make([]*rankedProvider, 0, len(order))
	for _, name := range order {
		rpc, ok := named[name]
		if !ok {
			continue
		}
		providers = append(providers, &rankedProvider{name: name, rpc: rpc})
	}
	return &FallbackRPC{
		providers: providers,
		log:       logging.GetDefault().Component("btcwatcher.fallback"),
	}
}

// current returns providers in try order: those not inside a demotion
// cooldown first (in configured priority), then those still inside one.
func (f *FallbackRPC) current() []*rankedProvider {
	f.mu.Lock()
	defer f.mu.Unlock()

	var healthy, demoted []*rankedProvider
	for _, p := range f.providers {
		if p.failures >= demotionThreshold && time.Since(p.demotedAt) < demotionCooldown {
			demoted = append(demoted, p)
			continue
		}
		healthy = append(healthy, p)
	}
	return append(healthy, demoted...)
}

func (f *FallbackRPC) recordResult(p *rankedProvider, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		p.failures = 0
		return
	}
	p.failures++
	if p.failures == demotionThreshold {
		p.demotedAt = time.Now()
	}
}

// call runs fn against each provider in try order, returning the first
// success. Any error other than ErrTxNotFound falls through to the next
// provider; ErrTxNotFound is returned immediately since every provider
// would agree on it.
func call[T any](f *FallbackRPC, ctx context.Context, fn func(BitcoinRPC) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for _, p := range f.current() {
		result, err := fn(p.rpc)
		f.recordResult(p, err)
		if err == nil {
			return result, nil
		}
		if err == ErrTxNotFound {
			return zero, err
		}
		lastErr = err
		f.log.Warn("provider call failed, trying next", "provider", p.name, "err", err)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("btcwatcher: no providers configured")
	}
	return zero, lastErr
}

func (f *FallbackRPC) GetAddressUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	return call(f, ctx, func(rpc BitcoinRPC) ([]UTXO, error) { return rpc.GetAddressUTXOs(ctx, address) })
}

func (f *FallbackRPC) GetMempoolTxIDs(ctx context.Context, address string) ([]string, error) {
	return call(f, ctx, func(rpc BitcoinRPC) ([]string, error) { return rpc.GetMempoolTxIDs(ctx, address) })
}

func (f *FallbackRPC) GetRawTransaction(ctx context.Context, txID string) (*RawTx, error) {
	return call(f, ctx, func(rpc BitcoinRPC) (*RawTx, error) { return rpc.GetRawTransaction(ctx, txID) })
}

func (f *FallbackRPC) BroadcastTransaction(ctx context.Context, rawTxHex string) (string, error) {
	return call(f, ctx, func(rpc BitcoinRPC) (string, error) { return rpc.BroadcastTransaction(ctx, rawTxHex) })
}

func (f *FallbackRPC) GetBlockHeight(ctx context.Context) (int64, error) {
	return call(f, ctx, func(rpc BitcoinRPC) (int64, error) { return rpc.GetBlockHeight(ctx) })
}

func (f *FallbackRPC) EstimateFee(ctx context.Context) (*FeeEstimate, error) {
	return call(f, ctx, func(rpc BitcoinRPC) (*FeeEstimate, error) { return rpc.EstimateFee(ctx) })
}

var _ BitcoinRPC = (*FallbackRPC)(nil)
