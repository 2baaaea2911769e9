// Package indicator computes derived technical-analysis series over a full
// array of OHLC observations.
//
// Every indicator is a pure function of its Input and Params: no state is
// kept between calls and the input is never mutated. A call either returns a
// fully aligned model.Series or reports that the input is not computable via
// the boolean second return value. An empty series with ok=true is a valid
// result and must not be treated as a failure.
package indicator

import (
	"sort"
	"strconv"
	"strings"

	"ohlc-indicators/internal/model"
)

// OHLC field positions inside an Input row.
const (
	FieldOpen  = 0
	FieldHigh  = 1
	FieldLow   = 2
	FieldClose = 3

	ohlcFields = 4
)

// Input is an ordered, time-indexed array of observations.
// X holds strictly increasing timestamps (or indices); Y holds one row per
// timestamp, either [open, high, low, close] or a single close value.
type Input struct {
	X []int64     `json:"x"`
	Y [][]float64 `json:"y"`
}

// Len returns the number of timestamps.
func (in Input) Len() int { return len(in.X) }

// aligned reports whether X and Y have the same length.
func (in Input) aligned() bool { return len(in.X) == len(in.Y) }

// Params is a flat per-indicator parameter set, e.g. {"period": 14}.
type Params map[string]float64

// Merge returns a copy of p with overrides applied on top.
func (p Params) Merge(overrides Params) Params {
	out := make(Params, len(p)+len(overrides))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Int returns the named parameter truncated to an int.
func (p Params) Int(name string) int { return int(p[name]) }

// Key returns a stable, order-independent encoding such as
// "decimals=4,period=14", used for cache and storage keys.
func (p Params) Key() string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, k := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(p[k], 'f', -1, 64))
	}
	return b.String()
}

// Indicator is the contract shared by every series calculator.
type Indicator interface {
	// Name returns the registry name (e.g. "rsi").
	Name() string

	// DefaultParams returns a fresh copy of the documented defaults.
	DefaultParams() Params

	// Label returns a display name for the given (already merged) params,
	// e.g. "RSI (14)".
	Label(p Params) string

	// Compute runs the indicator. ok is false when the input is not computable.
	Compute(in Input, p Params) (s model.Series, ok bool)
}

// formatParam renders a numeric parameter without trailing zeros.
func formatParam(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
