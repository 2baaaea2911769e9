package indicator

import (
	"math"

	"ohlc-indicators/internal/model"
)

// Default RSI parameters.
const (
	DefaultRSIPeriod   = 14
	DefaultRSIDecimals = 4

	// MaxRSIDecimals bounds the rounding precision.
	MaxRSIDecimals = 100
)

// RSIParams configures the RSI calculation.
type RSIParams struct {
	Period   int // smoothing period
	Decimals int // maximum decimals used in every intermediate step
}

// RSIParamsFrom reads RSIParams out of merged Params.
func RSIParamsFrom(p Params) RSIParams {
	return RSIParams{Period: p.Int("period"), Decimals: p.Int("decimals")}
}

// RSI calculates the Relative Strength Index using Wilder's smoothing over
// the close field of 4-field OHLC rows.
//
// The seed averages use the first period-1 close-to-close changes; every
// later index i >= period emits one point, so the output has
// len(in.Y)-period points. Each arithmetic step is rounded to p.Decimals
// before the next step consumes it.
func RSI(in Input, p RSIParams) (model.Series, bool) {
	period, decimals := p.Period, p.Decimals
	if period < 2 || decimals < 0 || decimals > MaxRSIDecimals || !in.aligned() || len(in.X) < period {
		return model.Series{}, false
	}
	for _, row := range in.Y {
		if len(row) != ohlcFields {
			return model.Series{}, false
		}
	}

	y := in.Y
	n := len(y)
	out := model.NewSeries(n - period)

	// ---------- 1. Seed: first period-1 changes -----------------------------
	gain, loss := 0.0, 0.0
	for i := 1; i < period; i++ {
		change := toFixed(y[i][FieldClose]-y[i-1][FieldClose], decimals)
		if change > 0 {
			gain += change
		} else {
			loss += math.Abs(change)
		}
	}
	avgGain := toFixed(gain/float64(period-1), decimals)
	avgLoss := toFixed(loss/float64(period-1), decimals)

	// ---------- 2. Wilder smoothing -----------------------------------------
	for i := period; i < n; i++ {
		change := toFixed(y[i][FieldClose]-y[i-1][FieldClose], decimals)
		gain, loss = 0, 0
		if change > 0 {
			gain = change
		} else {
			loss = math.Abs(change)
		}

		avgGain = toFixed((avgGain*float64(period-1)+gain)/float64(period), decimals)
		avgLoss = toFixed((avgLoss*float64(period-1)+loss)/float64(period), decimals)
		out.Append(in.X[i], rsiPoint(avgGain, avgLoss, decimals))
	}

	return out, true
}

// rsiPoint converts the smoothed averages to an RSI value.
// A zero average loss wins over a zero average gain, so a flat series reads 100.
func rsiPoint(avgGain, avgLoss float64, decimals int) float64 {
	switch {
	case avgLoss == 0:
		return 100
	case avgGain == 0:
		return 0
	default:
		return toFixed(100-100/(1+avgGain/avgLoss), decimals)
	}
}

// RSIIndicator adapts RSI to the Indicator interface.
type RSIIndicator struct{}

// NewRSI returns the RSI indicator.
func NewRSI() *RSIIndicator { return &RSIIndicator{} }

func (*RSIIndicator) Name() string { return "rsi" }

func (*RSIIndicator) DefaultParams() Params {
	return Params{"period": DefaultRSIPeriod, "decimals": DefaultRSIDecimals}
}

func (*RSIIndicator) Label(p Params) string {
	return "RSI (" + formatParam(p["period"]) + ")"
}

func (*RSIIndicator) Compute(in Input, p Params) (model.Series, bool) {
	return RSI(in, RSIParamsFrom(p))
}
