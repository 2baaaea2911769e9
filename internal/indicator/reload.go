package indicator

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// ErrInvalidConfig is wrapped by every ConfigError.
var ErrInvalidConfig = errors.New("invalid indicator config")

// ConfigError describes a rejected indicator config.
type ConfigError struct {
	Index int    // position in the config list
	Type  string // indicator type
	Field string // offending field or param name
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("indicator[%d] %s: invalid %s: %v", e.Index, e.Type, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() []error { return []error{ErrInvalidConfig, e.Err} }

// validator is implemented by indicators that check their merged params.
type validator interface {
	Validate(p Params) (field string, err error)
}

// Validate checks RSI params.
func (*RSIIndicator) Validate(p Params) (string, error) {
	if err := wholeAtLeast(p["period"], 2); err != nil {
		return "period", err
	}
	if err := wholeAtLeast(p["decimals"], 0); err != nil {
		return "decimals", err
	}
	if d := p["decimals"]; d > MaxRSIDecimals {
		return "decimals", fmt.Errorf("must be <= %d, got %v", MaxRSIDecimals, d)
	}
	return "", nil
}

// Validate checks ZigZag params.
func (*ZigZagIndicator) Validate(p Params) (string, error) {
	if err := wholeAtLeast(p["lowIndex"], 0); err != nil {
		return "lowIndex", err
	}
	if err := wholeAtLeast(p["highIndex"], 0); err != nil {
		return "highIndex", err
	}
	if d := p["deviation"]; !(d > 0) || math.IsInf(d, 0) {
		return "deviation", fmt.Errorf("must be a positive percentage, got %v", d)
	}
	return "", nil
}

func wholeAtLeast(v, min float64) error {
	if math.IsNaN(v) || v != math.Trunc(v) {
		return fmt.Errorf("must be a whole number, got %v", v)
	}
	if v < min {
		return fmt.Errorf("must be >= %v, got %v", min, v)
	}
	return nil
}

// ValidateConfigs checks a set of IndicatorConfigs against the registry:
// known types, known param names, valid values, no duplicates.
func ValidateConfigs(reg *Registry, configs []IndicatorConfig) error {
	seen := make(map[string]bool, len(configs))
	for i, cfg := range configs {
		ind, merged, err := reg.Resolve(cfg.Type, cfg.Params)
		if err != nil {
			return &ConfigError{Index: i, Type: cfg.Type, Field: "type", Err: err}
		}
		defaults := ind.DefaultParams()
		for name := range cfg.Params {
			if _, ok := defaults[name]; !ok {
				return &ConfigError{Index: i, Type: cfg.Type, Field: name, Err: errors.New("unknown param")}
			}
		}
		if v, ok := ind.(validator); ok {
			if field, err := v.Validate(merged); err != nil {
				return &ConfigError{Index: i, Type: cfg.Type, Field: field, Err: err}
			}
		}

		key := cfg.Type + "|" + merged.Key()
		if seen[key] {
			return &ConfigError{Index: i, Type: cfg.Type, Field: "params", Err: errors.New("duplicate indicator")}
		}
		seen[key] = true
	}
	return nil
}

// ReloadConfigs validates and swaps the engine's indicator set.
// Returns how many configs were kept from the old set and how many are new.
func (e *Engine) ReloadConfigs(newConfigs []IndicatorConfig) (kept, added int, err error) {
	if err := ValidateConfigs(e.reg, newConfigs); err != nil {
		return 0, 0, err
	}

	e.mu.Lock()
	old := make(map[string]bool, len(e.configs))
	for _, cfg := range e.configs {
		old[e.configKey(cfg)] = true
	}
	for _, cfg := range newConfigs {
		if old[e.configKey(cfg)] {
			kept++
		} else {
			added++
		}
	}
	e.configs = cloneConfigs(newConfigs)
	e.mu.Unlock()

	slog.Info("indicator configs reloaded",
		slog.Int("configs", len(newConfigs)),
		slog.Int("kept", kept),
		slog.Int("added", added))
	return kept, added, nil
}

// configKey identifies a config by type and merged params, so {} and the
// explicit defaults compare equal.
func (e *Engine) configKey(cfg IndicatorConfig) string {
	_, merged, err := e.reg.Resolve(cfg.Type, cfg.Params)
	if err != nil {
		return cfg.Type + "|" + cfg.Params.Key()
	}
	return cfg.Type + "|" + merged.Key()
}
