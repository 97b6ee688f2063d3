package helpers

import (
	"math/big"
	"testing"
)

func TestApplyAndInvertPPMFeeUp(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		ppm    int64
		base   int64
	}{
		{"typical fee", 100_000, 3000, 1000},
		{"zero fee", 50_000, 0, 0},
		{"large amount", 10_000_000, 500, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount := big.NewInt(tt.amount)
			base := big.NewInt(tt.base)

			total := ApplyPPMFeeUp(amount, tt.ppm, base)

			wantFee := new(big.Int).Mul(amount, big.NewInt(tt.ppm))
			wantFee.Div(wantFee, big.NewInt(PPMDenominator))
			wantTotal := new(big.Int).Add(amount, wantFee)
			wantTotal.Add(wantTotal, base)
			if total.Cmp(wantTotal) != 0 {
				t.Fatalf("ApplyPPMFeeUp(%d, %d, %d) = %s, want %s", tt.amount, tt.ppm, tt.base, total, wantTotal)
			}

			roundTripped := InvertPPMFeeUp(total, tt.ppm, base)
			diff := new(big.Int).Sub(roundTripped, amount)
			diff.Abs(diff)
			if diff.Cmp(big.NewInt(1)) > 0 {
				t.Fatalf("InvertPPMFeeUp round-trip diverged by %s base units (amount=%d, total=%s)", diff, tt.amount, total)
			}
		})
	}
}

func TestApplyAndInvertPPMFeeDown(t *testing.T) {
	amount := big.NewInt(200_000)
	base := big.NewInt(500)
	ppm := int64(2500)

	total := ApplyPPMFeeDown(amount, ppm, base)
	roundTripped := InvertPPMFeeDown(total, ppm, base)

	diff := new(big.Int).Sub(roundTripped, amount)
	diff.Abs(diff)
	if diff.Cmp(big.NewInt(1)) > 0 {
		t.Fatalf("InvertPPMFeeDown round-trip diverged by %s base units", diff)
	}
}

func TestWithinSoftBand(t *testing.T) {
	min := big.NewInt(100_000)
	max := big.NewInt(1_000_000)

	tests := []struct {
		name   string
		amount int64
		want   bool
	}{
		{"within bounds", 500_000, true},
		{"exactly at min", 100_000, true},
		{"just under soft min", 96_000, true},
		{"well under soft min", 90_000, false},
		{"just over soft max", 1_040_000, true},
		{"well over soft max", 1_100_000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WithinSoftBand(big.NewInt(tt.amount), min, max)
			if got != tt.want {
				t.Fatalf("WithinSoftBand(%d) = %v, want %v", tt.amount, got, tt.want)
			}
		})
	}
}

func TestWithinSoftBandNoMax(t *testing.T) {
	min := big.NewInt(100_000)
	zero := big.NewInt(0)
	if !WithinSoftBand(big.NewInt(50_000_000), min, zero) {
		t.Fatal("expected no upper bound when max is zero")
	}
}

func TestPPMDiff(t *testing.T) {
	a := big.NewInt(101_000)
	b := big.NewInt(100_000)
	diff := PPMDiff(a, b)
	if diff != 10_000 {
		t.Fatalf("PPMDiff(101000, 100000) = %d, want 10000", diff)
	}
	if PPMDiff(b, b) != 0 {
		t.Fatal("PPMDiff of identical values should be 0")
	}
}
