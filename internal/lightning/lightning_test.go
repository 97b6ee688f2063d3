package lightning

import (
	"math/big"
	"testing"
)

func TestRoutingBoundsFeeCap(t *testing.T) {
	cases := []struct {
		name       string
		bounds     RoutingBounds
		amountSats int64
		want       int64
	}{
		{"base fee only", RoutingBounds{MaxBaseFeeSats: 10, MaxFeePPM: 0}, 100000, 10},
		{"ppm only", RoutingBounds{MaxBaseFeeSats: 0, MaxFeePPM: 5000}, 100000, 500},
		{"base plus ppm", RoutingBounds{MaxBaseFeeSats: 10, MaxFeePPM: 5000}, 100000, 510},
		{"zero amount", RoutingBounds{MaxBaseFeeSats: 10, MaxFeePPM: 5000}, 0, 10},
	}
	for _, c := range cases {
		got := c.bounds.FeeCap(big.NewInt(c.amountSats))
		if got.Int64() != c.want {
			t.Errorf("%s: FeeCap() = %s, want %d", c.name, got, c.want)
		}
	}
}
