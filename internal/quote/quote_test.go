package quote

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/lp-intermediary/swapd/internal/chain"
	"github.com/lp-intermediary/swapd/internal/config"
	"github.com/lp-intermediary/swapd/internal/oracle"
	"github.com/lp-intermediary/swapd/internal/swapcontract"
)

type fakeProvider struct {
	price *big.Int
	err   error
}

func (p *fakeProvider) Name() string { return "fake" }
func (p *fakeProvider) GetPrice(ctx context.Context, chainID uint64, token string) (*big.Int, error) {
	return p.price, p.err
}

type fakeLiquidity struct {
	available *big.Int
}

func (l *fakeLiquidity) AvailableLiquidity(ctx context.Context, chainID uint64, token string) (*big.Int, error) {
	return l.available, nil
}

type fakeContract struct {
	chainID uint64
}

func (c *fakeContract) ChainID() uint64 { return c.chainID }
func (c *fakeContract) CreateSwapData(ctx context.Context, data swapcontract.SwapData) ([]byte, error) {
	return nil, nil
}
func (c *fakeContract) SignInitAuthorization(ctx context.Context, data swapcontract.SwapData) (*swapcontract.InitAuthorization, error) {
	return &swapcontract.InitAuthorization{Prefix: "fake", Timeout: data.Expiry, Signature: []byte("sig")}, nil
}
func (c *fakeContract) SignRefundAuthorization(ctx context.Context, paymentHash [32]byte) (*swapcontract.RefundAuthorization, error) {
	return nil, nil
}
func (c *fakeContract) SendClaim(ctx context.Context, paymentHash, preimage [32]byte, proof *swapcontract.SPVProof) (string, error) {
	return "", nil
}
func (c *fakeContract) SendDirect(ctx context.Context, token, recipient string, amount *big.Int) (string, error) {
	return "", nil
}
func (c *fakeContract) SendRefund(ctx context.Context, paymentHash [32]byte) (string, error) {
	return "", nil
}
func (c *fakeContract) GetCommitStatus(ctx context.Context, paymentHash [32]byte) (swapcontract.CommitStatus, error) {
	return swapcontract.CommitNone, nil
}
func (c *fakeContract) WaitForConfirmation(ctx context.Context, txID string) error { return nil }
func (c *fakeContract) SubscribeEvents(ctx context.Context, fromBlock uint64) (<-chan swapcontract.Event, error) {
	return nil, nil
}

func newTestEngine(t *testing.T, priceMicroSatsPerToken int64, availableLiquidity int64) (*Engine, config.DirectionConfig) {
	t.Helper()
	const chainID = uint64(1337)

	chain.RegisterToken(&chain.Token{Symbol: "TEST", ChainID: chainID, Decimals: 0, MinSats: 10_000, MaxSats: 1_000_000})

	cfg := config.DefaultConfig()
	dc := config.DirectionConfig{
		Direction:             config.FromBtc,
		ChainID:               chainID,
		TokenSymbol:           "TEST",
		Fee:                   config.FeeConfig{PPM: 3000, BaseFeeSats: 1000},
		Bounds:                config.Bounds{MinSats: 10_000, MaxSats: 1_000_000},
		MaxAllowedFeeDiffPPM:  50_000,
		ConfirmationsRequired: 1,
		QuoteTimeout:          time.Minute,
		SecurityDepositPPM:    1000,
		ClaimerBountyPPM:      500,
	}
	cfg.AddDirection(dc)

	ora := oracle.New(time.Minute, &fakeProvider{price: big.NewInt(priceMicroSatsPerToken)})
	liq := &fakeLiquidity{available: big.NewInt(availableLiquidity)}
	contracts := map[uint64]swapcontract.SwapContract{chainID: &fakeContract{chainID: chainID}}

	return New(cfg, ora, liq, nil, contracts), dc
}

func TestQuoteHappyPath(t *testing.T) {
	engine, dc := newTestEngine(t, 1_000_000, 10_000_000)

	req := Request{
		Direction: config.FromBtc,
		ChainID:   dc.ChainID,
		Token:     dc.TokenSymbol,
		Amount:    AmountSpec{ExactIn: false, AmountSats: big.NewInt(100_000), Sending: true},
		SwapType:  swapcontract.SwapTypeFromBtc,
	}

	result, f := engine.Quote(context.Background(), req)
	if f != nil {
		t.Fatalf("unexpected failure: %+v", f)
	}
	if result.AmountSats.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("AmountSats = %s, want 100000", result.AmountSats)
	}
	// P2: total == A*(1+p/1e6)+B
	wantTotal := big.NewInt(100_000 + 300 + 1000) // 100000*3000/1e6 = 300
	if result.TotalSats.Cmp(wantTotal) != 0 {
		t.Fatalf("TotalSats = %s, want %s", result.TotalSats, wantTotal)
	}
	if result.Auth == nil || len(result.Auth.Signature) == 0 {
		t.Fatal("expected a signed init authorization")
	}
}

func TestQuoteExactInRoundTrip(t *testing.T) {
	engine, dc := newTestEngine(t, 1_000_000, 10_000_000)

	req := Request{
		Direction: config.FromBtc,
		ChainID:   dc.ChainID,
		Token:     dc.TokenSymbol,
		Amount:    AmountSpec{ExactIn: true, AmountSats: big.NewInt(101_300), Sending: true},
		SwapType:  swapcontract.SwapTypeFromBtc,
	}

	result, f := engine.Quote(context.Background(), req)
	if f != nil {
		t.Fatalf("unexpected failure: %+v", f)
	}
	diff := new(big.Int).Sub(result.AmountSats, big.NewInt(100_000))
	diff.Abs(diff)
	if diff.Cmp(big.NewInt(5)) > 0 {
		t.Fatalf("exact-in inversion diverged too far: got %s, want ~100000", result.AmountSats)
	}
}

func TestQuoteAmountTooLow(t *testing.T) {
	engine, dc := newTestEngine(t, 1_000_000, 10_000_000)

	req := Request{
		Direction: config.FromBtc,
		ChainID:   dc.ChainID,
		Token:     dc.TokenSymbol,
		Amount:    AmountSpec{ExactIn: false, AmountSats: big.NewInt(1_000), Sending: true},
		SwapType:  swapcontract.SwapTypeFromBtc,
	}

	_, f := engine.Quote(context.Background(), req)
	if f == nil || f.Code != AmountTooLow {
		t.Fatalf("expected AmountTooLow, got %+v", f)
	}
}

func TestQuoteInsufficientLiquidity(t *testing.T) {
	engine, dc := newTestEngine(t, 1_000_000, 1_000)

	req := Request{
		Direction: config.FromBtc,
		ChainID:   dc.ChainID,
		Token:     dc.TokenSymbol,
		Amount:    AmountSpec{ExactIn: false, AmountSats: big.NewInt(100_000), Sending: true},
		SwapType:  swapcontract.SwapTypeFromBtc,
	}

	_, f := engine.Quote(context.Background(), req)
	if f == nil || f.Code != InsufficientLiquidity {
		t.Fatalf("expected InsufficientLiquidity, got %+v", f)
	}
}

func TestQuoteTokenUnsupported(t *testing.T) {
	engine, dc := newTestEngine(t, 1_000_000, 10_000_000)

	req := Request{
		Direction: config.FromBtc,
		ChainID:   dc.ChainID,
		Token:     "NOPE",
		Amount:    AmountSpec{ExactIn: false, AmountSats: big.NewInt(100_000), Sending: true},
		SwapType:  swapcontract.SwapTypeFromBtc,
	}

	_, f := engine.Quote(context.Background(), req)
	if f == nil || f.Code != TokenUnsupported {
		t.Fatalf("expected TokenUnsupported, got %+v", f)
	}
}
