// Package helpers provides common utility functions used across the codebase.
package helpers

import "math/big"

// PPMDenominator is the parts-per-million scale used for swap fee rates.
const PPMDenominator = 1_000_000

// ApplyPPMFeeUp returns amount + amount*ppm/1e6 + base, rounding the PPM
// division down (so the fee charged never exceeds the nominal rate).
// This is the "exact-out, sending" case from spec.md §4.1: the caller wants
// `amount` delivered and must send `total` to cover it.
func ApplyPPMFeeUp(amount *big.Int, ppm int64, base *big.Int) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(ppm))
	fee.Div(fee, big.NewInt(PPMDenominator))
	total := new(big.Int).Add(amount, fee)
	return total.Add(total, base)
}

// ApplyPPMFeeDown returns amount - amount*ppm/1e6 - base, the "exact-out,
// receiving" case: the caller wants `amount` collected on one side and
// `total` is what's delivered net of fees on the other.
func ApplyPPMFeeDown(amount *big.Int, ppm int64, base *big.Int) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(ppm))
	fee.Div(fee, big.NewInt(PPMDenominator))
	total := new(big.Int).Sub(amount, fee)
	return total.Sub(total, base)
}

// InvertPPMFeeUp inverts ApplyPPMFeeUp: given the total sent, recover the
// net amount delivered, i.e. solve total = amount + amount*ppm/1e6 + base
// for amount. Used for "exact-in" quotes (spec.md §4.1).
func InvertPPMFeeUp(total *big.Int, ppm int64, base *big.Int) *big.Int {
	afterBase := new(big.Int).Sub(total, base)
	if afterBase.Sign() < 0 {
		return big.NewInt(0)
	}
	denom := big.NewInt(PPMDenominator + ppm)
	numerator := new(big.Int).Mul(afterBase, big.NewInt(PPMDenominator))
	return numerator.Div(numerator, denom)
}

// InvertPPMFeeDown inverts ApplyPPMFeeDown: given the net amount delivered,
// recover the gross amount it was collected from.
func InvertPPMFeeDown(total *big.Int, ppm int64, base *big.Int) *big.Int {
	afterBase := new(big.Int).Add(total, base)
	denom := big.NewInt(PPMDenominator - ppm)
	if denom.Sign() <= 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(afterBase, big.NewInt(PPMDenominator))
	return numerator.Div(numerator, denom)
}

// WithinSoftBand reports whether amount falls within [min*0.95, max*1.05],
// the soft band spec.md §4.1 allows exact-in quotes to land in after fee
// rounding, before QuoteEngine rejects them outright.
func WithinSoftBand(amount, min, max *big.Int) bool {
	softMin := new(big.Int).Mul(min, big.NewInt(95))
	softMin.Div(softMin, big.NewInt(100))
	softMax := new(big.Int).Mul(max, big.NewInt(105))
	softMax.Div(softMax, big.NewInt(100))
	if max.Sign() == 0 {
		return amount.Cmp(softMin) >= 0
	}
	return amount.Cmp(softMin) >= 0 && amount.Cmp(softMax) <= 0
}

// PPMDiff returns |a-b|*1e6/b as an integer ppm value, used by QuoteEngine's
// price-staleness gate (spec.md §4.1).
func PPMDiff(a, b *big.Int) int64 {
	if b.Sign() == 0 {
		return 0
	}
	diff := new(big.Int).Sub(a, b)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(PPMDenominator))
	diff.Div(diff, new(big.Int).Abs(b))
	return diff.Int64()
}
