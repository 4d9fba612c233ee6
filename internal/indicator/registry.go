package indicator

import (
	"sync"

	"github.com/moznion/go-optional"

	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/pkg/errors"
)

// Registry holds the indicators a policy registered under caller-chosen
// names, so a policy can run two SMAs with different periods side by side.
// The engine updates every registered indicator once per bar, in
// registration order.
type Registry struct {
	indicators map[string]Indicator
	order      []string
	mu         sync.RWMutex
}

// NewRegistry creates an empty indicator registry.
func NewRegistry() *Registry {
	return &Registry{
		indicators: make(map[string]Indicator),
	}
}

// Register adds an indicator under the given name.
func (r *Registry) Register(name string, ind Indicator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return errors.New(errors.ErrCodeInvalidParameter, "indicator name is required")
	}

	if _, exists := r.indicators[name]; exists {
		return errors.Newf(errors.ErrCodeIndicatorAlreadyExists, "indicator %q already registered", name)
	}

	r.indicators[name] = ind
	r.order = append(r.order, name)

	return nil
}

// Get retrieves an indicator by name.
func (r *Registry) Get(name string) (Indicator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ind, exists := r.indicators[name]
	if !exists {
		return nil, errors.Newf(errors.ErrCodeIndicatorNotFound, "indicator %q not registered", name)
	}

	return ind, nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)

	return names
}

// Update feeds the bar to every registered indicator in registration order.
func (r *Registry) Update(bar types.Bar) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		r.indicators[name].Update(bar)
	}
}

// Value returns the current value of the named indicator.
func (r *Registry) Value(name string) (optional.Option[float64], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ind, exists := r.indicators[name]
	if !exists {
		return optional.None[float64](), errors.Newf(errors.ErrCodeIndicatorNotFound, "indicator %q not registered", name)
	}

	return ind.Value(), nil
}
