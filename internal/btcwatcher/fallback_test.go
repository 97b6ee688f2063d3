package btcwatcher

import (
	"context"
	"errors"
	"testing"
)

type fakeRPC struct {
	height    int64
	err       error
	heightErr error
	calls     int
}

func (f *fakeRPC) GetAddressUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeRPC) GetMempoolTxIDs(ctx context.Context, address string) ([]string, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeRPC) GetRawTransaction(ctx context.Context, txID string) (*RawTx, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &RawTx{TxID: txID}, nil
}
func (f *fakeRPC) BroadcastTransaction(ctx context.Context, rawTxHex string) (string, error) {
	return "", errors.New("not implemented")
}
func (f *fakeRPC) GetBlockHeight(ctx context.Context) (int64, error) {
	f.calls++
	if f.heightErr != nil {
		return 0, f.heightErr
	}
	return f.height, nil
}
func (f *fakeRPC) EstimateFee(ctx context.Context) (*FeeEstimate, error) {
	return nil, errors.New("not implemented")
}

var _ BitcoinRPC = (*fakeRPC)(nil)

func TestFallbackRPCUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &fakeRPC{height: 100}
	secondary := &fakeRPC{height: 200}
	f := NewFallbackRPC(map[string]BitcoinRPC{"primary": primary, "secondary": secondary}, []string{"primary", "secondary"})

	height, err := f.GetBlockHeight(context.Background())
	if err != nil {
		t.Fatalf("GetBlockHeight() error = %v", err)
	}
	if height != 100 {
		t.Errorf("height = %d, want 100 (from primary)", height)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary should not have been called while primary is healthy")
	}
}

func TestFallbackRPCFallsThroughOnError(t *testing.T) {
	primary := &fakeRPC{heightErr: errors.New("timeout")}
	secondary := &fakeRPC{height: 200}
	f := NewFallbackRPC(map[string]BitcoinRPC{"primary": primary, "secondary": secondary}, []string{"primary", "secondary"})

	height, err := f.GetBlockHeight(context.Background())
	if err != nil {
		t.Fatalf("GetBlockHeight() error = %v", err)
	}
	if height != 200 {
		t.Errorf("height = %d, want 200 (from secondary)", height)
	}
}

func TestFallbackRPCReturnsNotFoundImmediately(t *testing.T) {
	primary := &fakeRPC{err: ErrTxNotFound}
	secondary := &fakeRPC{}
	f := NewFallbackRPC(map[string]BitcoinRPC{"primary": primary, "secondary": secondary}, []string{"primary", "secondary"})

	_, err := f.GetRawTransaction(context.Background(), "missing")
	if err != ErrTxNotFound {
		t.Fatalf("GetRawTransaction() error = %v, want ErrTxNotFound", err)
	}
	if secondary.calls != 0 {
		t.Error("secondary should not be tried when primary returns a definitive not-found")
	}
}

func TestFallbackRPCDemotesAfterRepeatedFailures(t *testing.T) {
	primary := &fakeRPC{heightErr: errors.New("down")}
	secondary := &fakeRPC{height: 50}
	f := NewFallbackRPC(map[string]BitcoinRPC{"primary": primary, "secondary": secondary}, []string{"primary", "secondary"})

	for i := 0; i < demotionThreshold; i++ {
		if _, err := f.GetBlockHeight(context.Background()); err != nil {
			t.Fatalf("call %d: unexpected error %v", i, err)
		}
	}

	ranked := f.current()
	if ranked[0].name != "secondary" {
		t.Errorf("expected secondary ranked first after primary's demotion, got %s", ranked[0].name)
	}
}

func TestFallbackRPCAllProvidersFail(t *testing.T) {
	primary := &fakeRPC{heightErr: errors.New("down")}
	f := NewFallbackRPC(map[string]BitcoinRPC{"primary": primary}, []string{"primary"})

	_, err := f.GetBlockHeight(context.Background())
	if err == nil {
		t.Fatal("expected error when every provider fails")
	}
}

func TestFallbackRPCNoProvidersConfigured(t *testing.T) {
	f := NewFallbackRPC(map[string]BitcoinRPC{}, nil)
	_, err := f.GetBlockHeight(context.Background())
	if err == nil {
		t.Fatal("expected error with no providers configured")
	}
}
