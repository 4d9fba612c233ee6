// Package cost prices the frictions of execution. Commission and slippage
// are modelled as non-negative cash amounts charged per fill; they never
// improve the effective price of a trade.
package cost

import "math"

// Model prices the commission and slippage of a single fill. Both amounts
// are cash costs in account currency and are never negative.
type Model interface {
	// Commission returns the commission charged for a fill at the given
	// price and quantity.
	Commission(price float64, quantity float64) float64
	// Slippage returns the slippage cost for a fill at the given price and
	// quantity.
	Slippage(price float64, quantity float64) float64
}

// Config parameterizes the standard cost model.
type Config struct {
	// CommissionPerFill is a fixed charge per fill.
	CommissionPerFill float64 `yaml:"commission_per_fill" json:"commission_per_fill" validate:"gte=0"`
	// CommissionPct is a percentage of gross notional (1.0 means 1%).
	CommissionPct float64 `yaml:"commission_pct" json:"commission_pct" validate:"gte=0"`
	// SlippageBps is charged in basis points of gross notional.
	SlippageBps float64 `yaml:"slippage_bps" json:"slippage_bps" validate:"gte=0"`
	// SlippageFixed is a fixed charge per unit of quantity.
	SlippageFixed float64 `yaml:"slippage_fixed" json:"slippage_fixed" validate:"gte=0"`
}

// DefaultConfig returns the stock cost assumptions: one currency unit per
// fill plus one basis point of slippage.
func DefaultConfig() Config {
	return Config{
		CommissionPerFill: 1.0,
		CommissionPct:     0.0,
		SlippageBps:       1.0,
		SlippageFixed:     0.0,
	}
}

// FixedPlusPct charges a fixed amount per fill plus a percentage of gross
// notional in commission, and basis points of notional plus a fixed amount
// per unit in slippage.
type FixedPlusPct struct {
	config Config
}

// NewFixedPlusPct creates the standard cost model from a config.
func NewFixedPlusPct(config Config) Model {
	return &FixedPlusPct{config: config}
}

func (m *FixedPlusPct) Commission(price float64, quantity float64) float64 {
	gross := price * quantity
	fee := m.config.CommissionPerFill + gross*(m.config.CommissionPct/100.0)

	return math.Max(fee, 0)
}

func (m *FixedPlusPct) Slippage(price float64, quantity float64) float64 {
	gross := price * quantity
	slip := gross*(m.config.SlippageBps/10000.0) + m.config.SlippageFixed*quantity

	return math.Max(slip, 0)
}

// Zero is a frictionless cost model, used by tests and by runs that want
// raw strategy performance.
type Zero struct{}

// NewZero creates a cost model that charges nothing.
func NewZero() Model {
	return &Zero{}
}

func (m *Zero) Commission(price float64, quantity float64) float64 {
	return 0.0
}

func (m *Zero) Slippage(price float64, quantity float64) float64 {
	return 0.0
}
