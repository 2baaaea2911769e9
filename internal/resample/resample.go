// Package resample rolls TF candles up into a coarser timeframe.
// A candle belongs to the bucket ts - ts%tf; the bucket closes when a
// candle for a later bucket arrives, or on Flush.
package resample

import (
	"fmt"
	"sort"
	"time"

	"ohlc-indicators/internal/model"
)

// Builder resamples candles of one or more instruments into a single TF.
// Not safe for concurrent use.
type Builder struct {
	tf     int
	states map[string]*bucket // instrument key -> forming candle

	// OnLate is called for a candle whose bucket is already closed. The
	// candle is dropped.
	OnLate func(c model.TFCandle)
}

type bucket struct {
	start  int64 // unix seconds
	candle model.TFCandle
}

// New creates a Builder for tf seconds.
func New(tf int) (*Builder, error) {
	if tf <= 0 {
		return nil, fmt.Errorf("resample: tf must be positive, got %d", tf)
	}
	return &Builder{tf: tf, states: make(map[string]*bucket, 16)}, nil
}

// TF returns the target timeframe in seconds.
func (b *Builder) TF() int { return b.tf }

// Add merges c into its bucket. When c opens a new bucket the previous
// one is returned with ok=true.
func (b *Builder) Add(c model.TFCandle) (closed model.TFCandle, ok bool) {
	ts := c.TS.Unix()
	start := ts - ts%int64(b.tf)
	key := c.Key()

	st, exists := b.states[key]
	if exists && start < st.start {
		if b.OnLate != nil {
			b.OnLate(c)
		}
		return model.TFCandle{}, false
	}
	if exists && start > st.start {
		closed, ok = st.candle, true
		exists = false
	}

	if !exists {
		count := c.Count
		if count == 0 {
			count = 1
		}
		b.states[key] = &bucket{
			start: start,
			candle: model.TFCandle{
				Token:    c.Token,
				Exchange: c.Exchange,
				TF:       b.tf,
				TS:       time.Unix(start, 0).UTC(),
				Open:     c.Open,
				High:     c.High,
				Low:      c.Low,
				Close:    c.Close,
				Volume:   c.Volume,
				Count:    count,
			},
		}
		return closed, ok
	}

	fc := &st.candle
	if c.High > fc.High {
		fc.High = c.High
	}
	if c.Low < fc.Low {
		fc.Low = c.Low
	}
	fc.Close = c.Close
	fc.Volume += c.Volume
	if c.Count == 0 {
		fc.Count++
	} else {
		fc.Count += c.Count
	}
	return closed, ok
}

// Flush closes every forming bucket, ordered by instrument key, and resets
// the builder.
func (b *Builder) Flush() []model.TFCandle {
	keys := make([]string, 0, len(b.states))
	for k := range b.states {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]model.TFCandle, 0, len(keys))
	for _, k := range keys {
		out = append(out, b.states[k].candle)
		delete(b.states, k)
	}
	return out
}

// Candles resamples a time-ordered slice of one instrument's candles into
// tf seconds. tf must be a multiple of the source TF when that is known.
// The last bucket is included even if it is still forming.
func Candles(in []model.TFCandle, tf int) ([]model.TFCandle, error) {
	b, err := New(tf)
	if err != nil {
		return nil, err
	}
	if len(in) == 0 {
		return nil, nil
	}
	if src := in[0].TF; src > 0 && (tf < src || tf%src != 0) {
		return nil, fmt.Errorf("resample: tf %d is not a multiple of source tf %d", tf, src)
	}

	var late int
	b.OnLate = func(model.TFCandle) { late++ }

	out := make([]model.TFCandle, 0, len(in)/(tf/max(in[0].TF, 1))+1)
	for _, c := range in {
		if closed, ok := b.Add(c); ok {
			out = append(out, closed)
		}
	}
	if late > 0 {
		return nil, fmt.Errorf("resample: %d candles out of order", late)
	}
	return append(out, b.Flush()...), nil
}
