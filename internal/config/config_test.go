package config

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Directions == nil {
		t.Fatal("expected Directions map to be initialized")
	}
	if cfg.Watchdogs.ProcessPastSwapsInterval <= 0 {
		t.Error("expected a positive ProcessPastSwapsInterval default")
	}
	if cfg.Retry.MaxAttempts <= 0 {
		t.Error("expected a positive MaxAttempts default")
	}
	if cfg.Bitcoin.DustLimitSats != 546 {
		t.Errorf("DustLimitSats = %d, want 546", cfg.Bitcoin.DustLimitSats)
	}
}

func TestAddDirectionAndLookup(t *testing.T) {
	cfg := DefaultConfig()
	dc := DirectionConfig{Direction: FromBtc, ChainID: 1, TokenSymbol: "USDC", Fee: DefaultFeeConfig()}
	cfg.AddDirection(dc)

	got, ok := cfg.Lookup(FromBtc, 1, "USDC")
	if !ok {
		t.Fatal("expected to find the just-added direction config")
	}
	if got.TokenSymbol != "USDC" {
		t.Errorf("TokenSymbol = %q, want USDC", got.TokenSymbol)
	}

	_, ok = cfg.Lookup(FromBtc, 1, "WETH")
	if ok {
		t.Error("expected no match for an unregistered token")
	}
	_, ok = cfg.Lookup(ToBtc, 1, "USDC")
	if ok {
		t.Error("expected no match for an unregistered direction")
	}
}

func TestAddDirectionMultipleTokensSameDirection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AddDirection(DirectionConfig{Direction: ToBtc, ChainID: 1, TokenSymbol: "USDC"})
	cfg.AddDirection(DirectionConfig{Direction: ToBtc, ChainID: 1, TokenSymbol: "WETH"})

	if len(cfg.Directions[ToBtc]) != 2 {
		t.Fatalf("got %d direction configs, want 2", len(cfg.Directions[ToBtc]))
	}

	_, ok := cfg.Lookup(ToBtc, 1, "WETH")
	if !ok {
		t.Error("expected to find the second registered token")
	}
}

func TestDefaultFeeConfig(t *testing.T) {
	fc := DefaultFeeConfig()
	if fc.PPM != 3000 || fc.BaseFeeSats != 1000 {
		t.Errorf("DefaultFeeConfig() = %+v, want {PPM:3000 BaseFeeSats:1000}", fc)
	}
}

func TestAllDirectionsCoversEveryDirection(t *testing.T) {
	want := map[Direction]bool{
		FromBtc: true, FromBtcLn: true, ToBtc: true, ToBtcLn: true, TrustedFromBtcLn: true,
	}
	if len(AllDirections) != len(want) {
		t.Fatalf("AllDirections has %d entries, want %d", len(AllDirections), len(want))
	}
	for _, d := range AllDirections {
		if !want[d] {
			t.Errorf("unexpected direction %s in AllDirections", d)
		}
		delete(want, d)
	}
	if len(want) != 0 {
		t.Errorf("AllDirections is missing: %v", want)
	}
}
