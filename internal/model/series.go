package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Point is a single (timestamp, value) pair of an indicator series.
// It encodes to JSON as a two-element array: [x, y].
type Point struct {
	X int64
	Y float64
}

// MarshalJSON encodes the point as [x, y].
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.X, p.Y})
}

// UnmarshalJSON decodes a [x, y] pair.
func (p *Point) UnmarshalJSON(data []byte) error {
	var raw [2]json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("point: %w", err)
	}
	x, err := raw[0].Int64()
	if err != nil {
		return fmt.Errorf("point x: %w", err)
	}
	y, err := raw[1].Float64()
	if err != nil {
		return fmt.Errorf("point y: %w", err)
	}
	p.X, p.Y = x, y
	return nil
}

// Series is an indicator output. Values, XData and YData are three
// index-aligned views of the same points.
type Series struct {
	Values []Point   `json:"values"`
	XData  []int64   `json:"xData"`
	YData  []float64 `json:"yData"`
}

// NewSeries allocates an empty series with room for n points.
// The slices are non-nil so an empty result encodes as [] rather than null.
func NewSeries(n int) Series {
	return Series{
		Values: make([]Point, 0, n),
		XData:  make([]int64, 0, n),
		YData:  make([]float64, 0, n),
	}
}

// Append adds a point to all three views.
func (s *Series) Append(x int64, y float64) {
	s.Values = append(s.Values, Point{X: x, Y: y})
	s.XData = append(s.XData, x)
	s.YData = append(s.YData, y)
}

// Len returns the number of points.
func (s *Series) Len() int { return len(s.Values) }

// Last returns the final point, if any.
func (s *Series) Last() (Point, bool) {
	if len(s.Values) == 0 {
		return Point{}, false
	}
	return s.Values[len(s.Values)-1], true
}

// Aligned reports whether the three views agree point for point.
func (s *Series) Aligned() bool {
	if len(s.Values) != len(s.XData) || len(s.Values) != len(s.YData) {
		return false
	}
	for i, p := range s.Values {
		if p.X != s.XData[i] || p.Y != s.YData[i] {
			return false
		}
	}
	return true
}

// Result status values. StatusEmpty and StatusNotComputable are distinct:
// the first means valid input with nothing to emit, the second means the
// input could not be used at all.
const (
	StatusOK            = "ok"
	StatusEmpty         = "empty"
	StatusNotComputable = "not_computable"
)

// SeriesStatus maps a compute outcome to its status string.
func SeriesStatus(s Series, ok bool) string {
	switch {
	case !ok:
		return StatusNotComputable
	case s.Len() == 0:
		return StatusEmpty
	default:
		return StatusOK
	}
}

// SeriesResult is a computed series for a specific instrument + TF.
type SeriesResult struct {
	Indicator  string    `json:"indicator"` // registry name, e.g. "rsi"
	Label      string    `json:"label"`     // e.g. "RSI (14)"
	ParamsKey  string    `json:"params_key"`
	Token      string    `json:"token"`
	Exchange   string    `json:"exchange"`
	TF         int       `json:"tf"` // timeframe in seconds
	Status     string    `json:"status"`
	Series     Series    `json:"series"`
	Candles    int       `json:"candles"` // input length
	ComputedAt time.Time `json:"computed_at"`
}

// Key returns "exchange:token:tf:indicator:params".
func (r *SeriesResult) Key() string {
	return r.Exchange + ":" + r.Token + ":" + Itoa(r.TF) + ":" + r.Indicator + ":" + r.ParamsKey
}

// LatestKey returns the Redis key holding the latest series:
// "ind:series:{indicator}:{params}:{TF}s:{exchange}:{token}".
func (r *SeriesResult) LatestKey() string {
	return "ind:series:" + r.Indicator + ":" + r.ParamsKey + ":" + Itoa(r.TF) + "s:" + r.Exchange + ":" + r.Token
}

// PubSubChannel returns the Redis PubSub channel for series updates.
func (r *SeriesResult) PubSubChannel() string {
	return "pub:ind:" + r.Indicator + ":" + Itoa(r.TF) + "s:" + r.Exchange + ":" + r.Token
}

// JSON returns the JSON-encoded result.
func (r *SeriesResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}
