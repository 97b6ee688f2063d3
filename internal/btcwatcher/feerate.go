package btcwatcher

import "context"

// FeeRateAdapter satisfies internal/quote.FeeRateSource from a BitcoinRPC's
// confirmation-target fee table, picking the entry closest to (without
// undershooting) the requested target.
type FeeRateAdapter struct {
	rpc BitcoinRPC
}

// NewFeeRateAdapter wraps rpc as a quote.FeeRateSource.
func NewFeeRateAdapter(rpc BitcoinRPC) *FeeRateAdapter {
	return &FeeRateAdapter{rpc: rpc}
}

// EstimateFee returns the sat/vByte rate for the nearest confirmation target
// at or beyond confirmationTarget.
func (f *FeeRateAdapter) EstimateFee(ctx context.Context, confirmationTarget uint32) (uint64, error) {
	est, err := f.rpc.EstimateFee(ctx)
	if err != nil {
		return 0, err
	}

	best := uint64(0)
	bestTarget := uint32(0)
	for target, rate := range est.SatsPerVByte {
		if target >= confirmationTarget && (bestTarget == 0 || target < bestTarget) {
			bestTarget, best = target, rate
		}
	}
	if bestTarget == 0 {
		// No target at or beyond the request; fall back to the slowest
		// (smallest) rate on offer rather than failing the quote.
		var slowestTarget uint32
		for target, rate := range est.SatsPerVByte {
			if slowestTarget == 0 || target > slowestTarget {
				slowestTarget, best = target, rate
			}
		}
	}
	return best, nil
}
