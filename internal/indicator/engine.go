package indicator

import (
	"sync"
	"time"

	"ohlc-indicators/internal/model"
)

// IndicatorConfig specifies a single indicator to compute.
type IndicatorConfig struct {
	Type   string `json:"type" yaml:"type"`                         // registry name: "rsi", "zigzag"
	Params Params `json:"params,omitempty" yaml:"params,omitempty"` // overrides over the defaults
}

// Output is one indicator's result for an input.
type Output struct {
	Config IndicatorConfig
	Params Params // merged params actually used
	Label  string
	Series model.Series
	OK     bool // false when the input was not computable

	Elapsed time.Duration
}

// Status returns the model status string for this output.
func (o Output) Status() string { return model.SeriesStatus(o.Series, o.OK) }

// Engine evaluates a configured set of indicators over full input arrays.
// Every call recomputes from scratch; the engine only holds configuration.
// Safe for concurrent use.
type Engine struct {
	reg *Registry

	mu      sync.RWMutex
	configs []IndicatorConfig
}

// NewEngine creates an engine. configs must already be validated.
func NewEngine(reg *Registry, configs []IndicatorConfig) *Engine {
	return &Engine{reg: reg, configs: cloneConfigs(configs)}
}

// Registry returns the registry the engine resolves indicators from.
func (e *Engine) Registry() *Registry { return e.reg }

// Configs returns a copy of the active configs.
func (e *Engine) Configs() []IndicatorConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneConfigs(e.configs)
}

// Compute runs every configured indicator over in.
func (e *Engine) Compute(in Input) []Output {
	configs := e.Configs()
	outs := make([]Output, 0, len(configs))
	for _, cfg := range configs {
		ind, merged, err := e.reg.Resolve(cfg.Type, cfg.Params)
		if err != nil {
			continue // removed from the registry after validation
		}
		start := time.Now()
		s, ok := ind.Compute(in, merged)
		outs = append(outs, Output{
			Config:  cfg,
			Params:  merged,
			Label:   ind.Label(merged),
			Series:  s,
			OK:      ok,
			Elapsed: time.Since(start),
		})
	}
	return outs
}

// Process converts candles for one instrument + TF and computes every
// configured indicator, returning one SeriesResult per config.
func (e *Engine) Process(inst model.Instrument, tf int, candles []model.TFCandle) []model.SeriesResult {
	return Results(inst, tf, len(candles), e.Compute(FromCandles(candles)))
}

// Results wraps outputs computed over n candles of one instrument + TF.
func Results(inst model.Instrument, tf, n int, outs []Output) []model.SeriesResult {
	now := time.Now().UTC()

	results := make([]model.SeriesResult, 0, len(outs))
	for _, o := range outs {
		results = append(results, model.SeriesResult{
			Indicator:  o.Config.Type,
			Label:      o.Label,
			ParamsKey:  o.Params.Key(),
			Token:      inst.Token,
			Exchange:   inst.Exchange,
			TF:         tf,
			Status:     o.Status(),
			Series:     o.Series,
			Candles:    n,
			ComputedAt: now,
		})
	}
	return results
}

// FromCandles converts stored candles (paise) to an OHLC input in rupees,
// with X as unix milliseconds.
func FromCandles(candles []model.TFCandle) Input {
	in := Input{
		X: make([]int64, len(candles)),
		Y: make([][]float64, len(candles)),
	}
	for i, c := range candles {
		in.X[i] = c.TS.UnixMilli()
		in.Y[i] = []float64{
			model.Rupees(c.Open),
			model.Rupees(c.High),
			model.Rupees(c.Low),
			model.Rupees(c.Close),
		}
	}
	return in
}

func cloneConfigs(in []IndicatorConfig) []IndicatorConfig {
	out := make([]IndicatorConfig, len(in))
	for i, c := range in {
		out[i] = IndicatorConfig{Type: c.Type, Params: Params{}.Merge(c.Params)}
	}
	return out
}
