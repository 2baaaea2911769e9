package indicator

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"ohlc-indicators/internal/model"
)

// ErrUnknownIndicator is returned when a name is not registered.
var ErrUnknownIndicator = errors.New("unknown indicator")

// Registry maps indicator names to implementations. It is owned by the
// caller; there is no package-level registry.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]Indicator
}

// NewRegistry creates a registry holding the given indicators.
func NewRegistry(inds ...Indicator) *Registry {
	r := &Registry{byKey: make(map[string]Indicator, len(inds))}
	for _, ind := range inds {
		r.byKey[ind.Name()] = ind
	}
	return r
}

// DefaultRegistry returns a new registry with every built-in indicator.
func DefaultRegistry() *Registry {
	return NewRegistry(NewRSI(), NewZigZag())
}

// Register adds or replaces an indicator.
func (r *Registry) Register(ind Indicator) {
	r.mu.Lock()
	r.byKey[ind.Name()] = ind
	r.mu.Unlock()
}

// Get returns the indicator registered under name.
func (r *Registry) Get(name string) (Indicator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ind, ok := r.byKey[name]
	return ind, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		names = append(names, k)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Resolve merges params over the indicator defaults.
func (r *Registry) Resolve(name string, params Params) (Indicator, Params, error) {
	ind, ok := r.Get(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownIndicator, name)
	}
	return ind, ind.DefaultParams().Merge(params), nil
}

// Compute runs the named indicator with params merged over its defaults.
// ok=false means the input was not computable; err is only set for an
// unknown name.
func (r *Registry) Compute(name string, in Input, params Params) (s model.Series, ok bool, err error) {
	ind, merged, err := r.Resolve(name, params)
	if err != nil {
		return model.Series{}, false, err
	}
	s, ok = ind.Compute(in, merged)
	return s, ok, nil
}
