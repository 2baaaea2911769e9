package indicator

import (
	"math"
	"testing"
)

func TestToFixed(t *testing.T) {
	cases := []struct {
		v        float64
		decimals int
		want     float64
	}{
		{1.23456, 4, 1.2346},
		{1.23454, 4, 1.2345},
		{66.670033, 2, 66.67},
		{0.03125, 4, 0.0313}, // exact binary tie rounds away from zero
		{-0.03125, 4, -0.0313},
		{0.125, 2, 0.13},
		{2.5, 0, 3},
		{-2.5, 0, -3},
		{1.005, 2, 1}, // 1.005 is stored slightly below the tie
		{100, 4, 100},
		{0, 4, 0},
	}
	for _, tc := range cases {
		got := toFixed(tc.v, tc.decimals)
		if got != tc.want {
			t.Errorf("toFixed(%v, %d) = %v, want %v", tc.v, tc.decimals, got, tc.want)
		}
	}
}

func TestToFixed_NegativeZero(t *testing.T) {
	got := toFixed(-0.00001, 4)
	if got != 0 || !math.Signbit(got) {
		t.Errorf("toFixed(-0.00001, 4) = %v, want -0", got)
	}
	// -0 must still count as "not a gain" in the RSI branches
	if got > 0 {
		t.Error("negative zero compared as positive")
	}
}

func TestToFixed_NonFinite(t *testing.T) {
	if !math.IsNaN(toFixed(math.NaN(), 2)) {
		t.Error("NaN should pass through")
	}
	if !math.IsInf(toFixed(math.Inf(1), 2), 1) {
		t.Error("+Inf should pass through")
	}
}
