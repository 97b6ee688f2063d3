package btcwatcher

import (
	"context"
	"testing"
)

type staticFeeRPC struct {
	fakeRPC
	est *FeeEstimate
}

func (s *staticFeeRPC) EstimateFee(ctx context.Context) (*FeeEstimate, error) {
	return s.est, nil
}

func TestFeeRateAdapterPicksNearestTargetAtOrBeyond(t *testing.T) {
	rpc := &staticFeeRPC{est: &FeeEstimate{SatsPerVByte: map[uint32]uint64{1: 20, 3: 15, 6: 10, 144: 2}}}
	adapter := NewFeeRateAdapter(rpc)

	rate, err := adapter.EstimateFee(context.Background(), 4)
	if err != nil {
		t.Fatalf("EstimateFee() error = %v", err)
	}
	if rate != 10 {
		t.Errorf("rate = %d, want 10 (nearest target >= 4 is 6)", rate)
	}
}

func TestFeeRateAdapterExactTargetMatch(t *testing.T) {
	rpc := &staticFeeRPC{est: &FeeEstimate{SatsPerVByte: map[uint32]uint64{1: 20, 6: 10}}}
	adapter := NewFeeRateAdapter(rpc)

	rate, err := adapter.EstimateFee(context.Background(), 6)
	if err != nil {
		t.Fatalf("EstimateFee() error = %v", err)
	}
	if rate != 10 {
		t.Errorf("rate = %d, want 10", rate)
	}
}

func TestFeeRateAdapterFallsBackToSlowestTarget(t *testing.T) {
	rpc := &staticFeeRPC{est: &FeeEstimate{SatsPerVByte: map[uint32]uint64{1: 20, 3: 15}}}
	adapter := NewFeeRateAdapter(rpc)

	rate, err := adapter.EstimateFee(context.Background(), 144)
	if err != nil {
		t.Fatalf("EstimateFee() error = %v", err)
	}
	if rate != 15 {
		t.Errorf("rate = %d, want 15 (fallback to the slowest target on offer)", rate)
	}
}
