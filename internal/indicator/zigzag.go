package indicator

import (
	"math"

	"ohlc-indicators/internal/model"
)

// Default ZigZag parameters.
const (
	DefaultZigZagLowIndex  = FieldLow
	DefaultZigZagHighIndex = FieldHigh
	DefaultZigZagDeviation = 1.0
)

// ZigZagParams configures the ZigZag calculation.
type ZigZagParams struct {
	LowIndex  int     // row field holding the low value
	HighIndex int     // row field holding the high value
	Deviation float64 // minimum reversal move, in percent
}

// ZigZagParamsFrom reads ZigZagParams out of merged Params.
func ZigZagParamsFrom(p Params) ZigZagParams {
	return ZigZagParams{
		LowIndex:  p.Int("lowIndex"),
		HighIndex: p.Int("highIndex"),
		Deviation: p["deviation"],
	}
}

// zigzagState is the scan state of the ZigZag extractor.
type zigzagState int

const (
	// stateSeeking: no pivot yet; comparing rows against the first row.
	stateSeeking zigzagState = iota
	// stateTrackingUp: last pivot was a high, candidate is a low; the next
	// confirmed leg goes up.
	stateTrackingUp
	// stateTrackingDown: last pivot was a low, candidate is a high.
	stateTrackingDown
)

func (s zigzagState) String() string {
	switch s {
	case stateSeeking:
		return "seeking"
	case stateTrackingUp:
		return "tracking-up"
	case stateTrackingDown:
		return "tracking-down"
	default:
		return "unknown"
	}
}

// tracker is the full machine state carried between rows.
type tracker struct {
	state     zigzagState
	origin    int64   // X of the first row
	firstHigh float64 // first row high, pivot if the trend starts down
	firstLow  float64 // first row low, pivot if the trend starts up
	candidate model.Point
}

// zigzag holds the per-call constants of the scan.
type zigzag struct {
	lowIdx, highIdx int
	highDev         float64 // 1 - deviation: threshold for a move down
	lowDev          float64 // 1 + deviation: threshold for a move up
}

func newZigZag(p ZigZagParams) zigzag {
	d := p.Deviation / 100
	return zigzag{
		lowIdx:  p.LowIndex,
		highIdx: p.HighIndex,
		highDev: 1 - d,
		lowDev:  1 + d,
	}
}

// step advances the machine by one row. When a pivot is confirmed at this
// row it is returned with ok=true.
//
// While seeking, the low check runs before the high check, so a row that
// breaks out both ways starts the series on the first row's high.
// While tracking, extending the candidate and confirming a reversal are
// mutually exclusive and extension is checked first; both comparisons are
// inclusive, so equal extremes keep tracking.
func (z zigzag) step(t tracker, x int64, row []float64) (next tracker, pivot model.Point, ok bool) {
	low, high := row[z.lowIdx], row[z.highIdx]
	next = t

	switch t.state {
	case stateSeeking:
		if low <= t.firstHigh*z.highDev {
			next.state = stateTrackingUp
			next.candidate = model.Point{X: x, Y: low}
			return next, model.Point{X: t.origin, Y: t.firstHigh}, true
		}
		if high >= t.firstLow*z.lowDev {
			next.state = stateTrackingDown
			next.candidate = model.Point{X: x, Y: high}
			return next, model.Point{X: t.origin, Y: t.firstLow}, true
		}

	case stateTrackingUp:
		if low <= t.candidate.Y {
			next.candidate = model.Point{X: x, Y: low}
		} else if high >= t.candidate.Y*z.lowDev {
			next.state = stateTrackingDown
			next.candidate = model.Point{X: x, Y: high}
			return next, t.candidate, true
		}

	case stateTrackingDown:
		if high >= t.candidate.Y {
			next.candidate = model.Point{X: x, Y: high}
		} else if low <= t.candidate.Y*z.highDev {
			next.state = stateTrackingUp
			next.candidate = model.Point{X: x, Y: low}
			return next, t.candidate, true
		}
	}
	return next, model.Point{}, false
}

// ZigZag extracts trend-reversal pivots filtered by a percentage deviation.
//
// The first pivot is the first row's high or low, depending on which way
// price first moves by at least p.Deviation percent. If that never happens
// the result is empty (ok=true). After the last confirmed pivot the pending
// candidate is appended so the series always reaches the newest extreme.
func ZigZag(in Input, p ZigZagParams) (model.Series, bool) {
	n := len(in.X)
	if n <= 1 || !in.aligned() || p.LowIndex < 0 || p.HighIndex < 0 ||
		!(p.Deviation > 0) || math.IsInf(p.Deviation, 0) {
		return model.Series{}, false
	}
	need := p.LowIndex
	if p.HighIndex > need {
		need = p.HighIndex
	}
	for _, row := range in.Y {
		if len(row) <= need {
			return model.Series{}, false
		}
	}

	z := newZigZag(p)
	t := tracker{
		state:     stateSeeking,
		origin:    in.X[0],
		firstHigh: in.Y[0][z.highIdx],
		firstLow:  in.Y[0][z.lowIdx],
	}
	out := model.NewSeries(8)

	// ---------- 1. Breakout scan --------------------------------------------
	breakout := -1
	for i := 1; i < n; i++ {
		var pivot model.Point
		var ok bool
		if t, pivot, ok = z.step(t, in.X[i], in.Y[i]); ok {
			out.Append(pivot.X, pivot.Y)
			breakout = i
			break
		}
	}
	if breakout < 0 {
		return out, true
	}

	// ---------- 2. Tracking scan, resuming at the breakout row --------------
	for i := breakout; i < n; i++ {
		var pivot model.Point
		var ok bool
		if t, pivot, ok = z.step(t, in.X[i], in.Y[i]); ok {
			out.Append(pivot.X, pivot.Y)
		}
	}

	// ---------- 3. Tail -----------------------------------------------------
	if last, ok := out.Last(); ok && last.X < in.X[n-1] {
		out.Append(t.candidate.X, t.candidate.Y)
	}
	return out, true
}

// ZigZagIndicator adapts ZigZag to the Indicator interface.
type ZigZagIndicator struct{}

// NewZigZag returns the ZigZag indicator.
func NewZigZag() *ZigZagIndicator { return &ZigZagIndicator{} }

func (*ZigZagIndicator) Name() string { return "zigzag" }

func (*ZigZagIndicator) DefaultParams() Params {
	return Params{
		"lowIndex":  DefaultZigZagLowIndex,
		"highIndex": DefaultZigZagHighIndex,
		"deviation": DefaultZigZagDeviation,
	}
}

func (*ZigZagIndicator) Label(p Params) string {
	return "Zig Zag (" + formatParam(p["deviation"]) + "%)"
}

func (*ZigZagIndicator) Compute(in Input, p Params) (model.Series, bool) {
	return ZigZag(in, ZigZagParamsFrom(p))
}
