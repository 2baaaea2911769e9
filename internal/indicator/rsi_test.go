package indicator

import (
	"math"
	"math/rand"
	"testing"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// closesInput builds 4-field OHLC rows whose open/high/low equal the close.
func closesInput(closes ...float64) Input {
	in := Input{X: make([]int64, len(closes)), Y: make([][]float64, len(closes))}
	for i, c := range closes {
		in.X[i] = int64(1_700_000_000_000 + i*60_000)
		in.Y[i] = []float64{c, c, c, c}
	}
	return in
}

func assertAligned(t *testing.T, label string, got interface{ Aligned() bool }) {
	t.Helper()
	if !got.Aligned() {
		t.Fatalf("%s: values/xData/yData are not aligned", label)
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period14(t *testing.T) {
	// Closes (15 points), period 14.
	// Seed changes 1..13:
	//   +0.5 -0.6 +0.6 +0.5 +0.5 +0.5 +0.5 +0.5 -0.5 -0.5 +1.0 +0.5 +0.5
	//   gain = 5.6, loss = 1.6 → avgGain = 5.6/13 = 0.4308, avgLoss = 1.6/13 = 0.1231
	// i=14: change +0.5
	//   avgGain = (0.4308*13 + 0.5)/14 = 0.4357
	//   avgLoss = (0.1231*13 + 0)/14   = 0.1143
	//   RSI = 100 - 100/(1 + 0.4357/0.1143) = 79.2182
	in := closesInput(44, 44.5, 43.9, 44.5, 45, 45.5, 46, 46.5, 47, 46.5, 46, 47, 47.5, 48, 48.5)

	got, ok := RSI(in, RSIParams{Period: 14, Decimals: 4})
	if !ok {
		t.Fatal("expected computable input")
	}
	if got.Len() != 1 {
		t.Fatalf("expected 1 point, got %d", got.Len())
	}
	if got.XData[0] != in.X[14] {
		t.Errorf("point timestamp = %d, want last input timestamp %d", got.XData[0], in.X[14])
	}
	if got.YData[0] != 79.2182 {
		t.Errorf("RSI = %v, want 79.2182", got.YData[0])
	}
}

func TestRSI_Correctness_Period3(t *testing.T) {
	// Closes: 10, 11, 12, 11, 13, 12, 14, 13, 15
	// seed (changes 1..2): +1, +1 → avgGain = 1, avgLoss = 0
	// i=3: -1 → avgGain = 2/3 = 0.6667, avgLoss = 1/3 = 0.3333
	//      RSI = 100 - 100/(1 + 2.0003) = 66.67
	// i=4: +2 → avgGain = (1.3334+2)/3 = 1.1111, avgLoss = 0.6666/3 = 0.2222 → 83.3346
	in := closesInput(10, 11, 12, 11, 13, 12, 14, 13, 15)
	want := []float64{66.67, 83.3346, 60.6038, 78.3328, 58.5693, 76.4185}

	got, ok := RSI(in, RSIParams{Period: 3, Decimals: 4})
	if !ok {
		t.Fatal("expected computable input")
	}
	if got.Len() != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), got.Len())
	}
	for i, w := range want {
		if got.YData[i] != w {
			t.Errorf("point %d: RSI = %v, want %v", i, got.YData[i], w)
		}
		if got.XData[i] != in.X[i+3] {
			t.Errorf("point %d: x = %d, want %d", i, got.XData[i], in.X[i+3])
		}
	}
}

func TestRSI_DecimalsChangeResult(t *testing.T) {
	// Same closes as above; rounding to 2 decimals at every step shifts the
	// smoothed averages, not only the displayed value.
	in := closesInput(10, 11, 12, 11, 13, 12, 14, 13, 15)
	want := []float64{67, 83.46, 60.66, 78.38, 58.33, 76.13}

	got, ok := RSI(in, RSIParams{Period: 3, Decimals: 2})
	if !ok {
		t.Fatal("expected computable input")
	}
	for i, w := range want {
		if got.YData[i] != w {
			t.Errorf("point %d: RSI = %v, want %v", i, got.YData[i], w)
		}
	}
}

func TestRSI_StrictlyIncreasing_Is100(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	got, ok := RSI(closesInput(closes...), RSIParams{Period: 14, Decimals: 4})
	if !ok {
		t.Fatal("expected computable input")
	}
	for i, v := range got.YData {
		if v != 100 {
			t.Errorf("point %d: RSI = %v, want 100", i, v)
		}
	}
}

func TestRSI_StrictlyDecreasing_Is0(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	got, ok := RSI(closesInput(closes...), RSIParams{Period: 14, Decimals: 4})
	if !ok {
		t.Fatal("expected computable input")
	}
	for i, v := range got.YData {
		if v != 0 {
			t.Errorf("point %d: RSI = %v, want 0", i, v)
		}
	}
}

func TestRSI_Flat_Is100(t *testing.T) {
	// avgGain == avgLoss == 0: the zero-loss branch wins.
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 50
	}
	got, ok := RSI(closesInput(closes...), RSIParams{Period: 5, Decimals: 4})
	if !ok {
		t.Fatal("expected computable input")
	}
	if got.Len() != 15 {
		t.Fatalf("expected 15 points, got %d", got.Len())
	}
	for i, v := range got.YData {
		if v != 100 {
			t.Errorf("point %d: RSI = %v, want 100", i, v)
		}
	}
}

func TestRSI_LengthLaw(t *testing.T) {
	for _, n := range []int{14, 15, 20, 100} {
		closes := make([]float64, n)
		for i := range closes {
			closes[i] = 100 + math.Sin(float64(i))
		}
		got, ok := RSI(closesInput(closes...), RSIParams{Period: 14, Decimals: 4})
		if !ok {
			t.Fatalf("n=%d: expected computable input", n)
		}
		if got.Len() != n-14 {
			t.Errorf("n=%d: got %d points, want %d", n, got.Len(), n-14)
		}
		if got.Values == nil || got.XData == nil || got.YData == nil {
			t.Errorf("n=%d: empty result must use non-nil slices", n)
		}
	}
}

func TestRSI_NotComputable(t *testing.T) {
	short := closesInput(1, 2, 3)

	closeOnly := Input{X: []int64{1, 2, 3, 4}, Y: [][]float64{{1}, {2}, {3}, {4}}}

	mixed := closesInput(1, 2, 3, 4, 5)
	mixed.Y[3] = []float64{4, 4, 4}

	misaligned := closesInput(1, 2, 3, 4, 5)
	misaligned.X = misaligned.X[:4]

	cases := []struct {
		name string
		in   Input
		p    RSIParams
	}{
		{"shorter than period", short, RSIParams{Period: 14, Decimals: 4}},
		{"close-only rows", closeOnly, RSIParams{Period: 2, Decimals: 4}},
		{"short row mid-series", mixed, RSIParams{Period: 2, Decimals: 4}},
		{"x/y length mismatch", misaligned, RSIParams{Period: 2, Decimals: 4}},
		{"period 1", closesInput(1, 2, 3), RSIParams{Period: 1, Decimals: 4}},
		{"negative decimals", closesInput(1, 2, 3), RSIParams{Period: 2, Decimals: -1}},
		{"decimals above limit", closesInput(1, 2, 3), RSIParams{Period: 2, Decimals: MaxRSIDecimals + 1}},
		{"huge decimals", closesInput(1, 2, 3), RSIParams{Period: 2, Decimals: 50_000_000}},
		{"empty", Input{}, RSIParams{Period: 14, Decimals: 4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := RSI(tc.in, tc.p); ok {
				t.Error("expected not computable")
			}
		})
	}
}

func TestRSI_BoundsAndDeterminism(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	closes := make([]float64, 500)
	price := 1000.0
	for i := range closes {
		price *= 1 + rng.NormFloat64()*0.02
		closes[i] = price
	}
	in := closesInput(closes...)
	p := RSIParams{Period: 14, Decimals: 4}

	a, ok := RSI(in, p)
	if !ok {
		t.Fatal("expected computable input")
	}
	b, _ := RSI(in, p)

	assertAligned(t, "rsi", &a)
	for i, v := range a.YData {
		if v < 0 || v > 100 {
			t.Errorf("point %d: RSI %v out of [0, 100]", i, v)
		}
		if math.Float64bits(v) != math.Float64bits(b.YData[i]) {
			t.Errorf("point %d: repeated call differs: %v vs %v", i, v, b.YData[i])
		}
	}
}

func TestRSI_DoesNotMutateInput(t *testing.T) {
	in := closesInput(10, 11, 12, 11, 13, 12)
	before := make([]float64, len(in.Y))
	for i, row := range in.Y {
		before[i] = row[FieldClose]
	}
	RSI(in, RSIParams{Period: 3, Decimals: 4})
	for i, row := range in.Y {
		if row[FieldClose] != before[i] {
			t.Errorf("row %d mutated: %v -> %v", i, before[i], row[FieldClose])
		}
	}
}
