package indicator

import (
	"errors"
	"reflect"
	"testing"

	"ohlc-indicators/internal/model"
)

type constIndicator struct{ value float64 }

func (constIndicator) Name() string          { return "const" }
func (constIndicator) DefaultParams() Params { return Params{} }
func (constIndicator) Label(Params) string   { return "Const" }
func (c constIndicator) Compute(in Input, p Params) (model.Series, bool) {
	s := model.NewSeries(in.Len())
	for _, x := range in.X {
		s.Append(x, c.value)
	}
	return s, true
}

func TestRegistry_Names(t *testing.T) {
	reg := DefaultRegistry()
	if got := reg.Names(); !reflect.DeepEqual(got, []string{"rsi", "zigzag"}) {
		t.Errorf("Names() = %v", got)
	}
}

func TestRegistry_IsCallerOwned(t *testing.T) {
	a := DefaultRegistry()
	b := DefaultRegistry()
	a.Register(constIndicator{value: 1})

	if _, ok := a.Get("const"); !ok {
		t.Error("registered indicator missing")
	}
	if _, ok := b.Get("const"); ok {
		t.Error("registration leaked into another registry")
	}
}

func TestRegistry_Compute(t *testing.T) {
	reg := DefaultRegistry()
	in := closesInput(10, 11, 12, 11, 13, 12, 14, 13, 15)

	s, ok, err := reg.Compute("rsi", in, Params{"period": 3})
	if err != nil {
		t.Fatal(err)
	}
	if !ok || s.Len() != 6 {
		t.Fatalf("ok=%v len=%d, want ok=true len=6", ok, s.Len())
	}
	// decimals falls back to the default of 4
	if s.YData[1] != 83.3346 {
		t.Errorf("RSI[1] = %v, want 83.3346", s.YData[1])
	}
}

func TestRegistry_Compute_Unknown(t *testing.T) {
	_, ok, err := DefaultRegistry().Compute("macd", closesInput(1, 2), nil)
	if !errors.Is(err, ErrUnknownIndicator) {
		t.Errorf("err = %v, want ErrUnknownIndicator", err)
	}
	if ok {
		t.Error("unknown indicator must not report ok")
	}
}

func TestRegistry_Resolve_DoesNotShareDefaults(t *testing.T) {
	reg := DefaultRegistry()
	_, merged, err := reg.Resolve("rsi", Params{"period": 7})
	if err != nil {
		t.Fatal(err)
	}
	merged["decimals"] = 1

	_, again, _ := reg.Resolve("rsi", nil)
	if again["decimals"] != DefaultRSIDecimals || again["period"] != DefaultRSIPeriod {
		t.Errorf("defaults changed: %v", again)
	}
}

func TestLabels(t *testing.T) {
	cases := []struct {
		ind  Indicator
		p    Params
		want string
	}{
		{NewRSI(), nil, "RSI (14)"},
		{NewRSI(), Params{"period": 21}, "RSI (21)"},
		{NewZigZag(), nil, "Zig Zag (1%)"},
		{NewZigZag(), Params{"deviation": 2.5}, "Zig Zag (2.5%)"},
	}
	for _, tc := range cases {
		if got := tc.ind.Label(tc.ind.DefaultParams().Merge(tc.p)); got != tc.want {
			t.Errorf("Label = %q, want %q", got, tc.want)
		}
	}
}

func TestParamsKey(t *testing.T) {
	p := Params{"period": 14, "decimals": 4}
	if got := p.Key(); got != "decimals=4,period=14" {
		t.Errorf("Key() = %q", got)
	}
	if got := (Params{"deviation": 0.5}).Key(); got != "deviation=0.5" {
		t.Errorf("Key() = %q", got)
	}
}
