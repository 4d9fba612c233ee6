// Package strategy holds the built-in decision policies. The set is a
// closed, typed union: a Spec names a strategy and carries its numeric
// parameters, and resolves to a concrete policy struct at config time.
package strategy

import (
	"github.com/marlinquant/backtester/internal/engine"
	"github.com/marlinquant/backtester/pkg/errors"
)

// Name identifies a built-in strategy.
type Name string

const (
	NameMACross          Name = "ma_cross"
	NameRSIMeanReversion Name = "rsi_meanrev"
	NameTrendBreakoutATR Name = "trend_breakout_atr"
)

// AllNames enumerates every built-in strategy, for schema export and flag
// validation.
var AllNames = []any{
	NameMACross,
	NameRSIMeanReversion,
	NameTrendBreakoutATR,
}

// Spec selects a strategy and overrides its default parameters. Params
// keys are strategy-specific; unknown keys are a config error.
type Spec struct {
	Name   Name               `yaml:"name" json:"name" validate:"required,oneof=ma_cross rsi_meanrev trend_breakout_atr" jsonschema:"enum=ma_cross,enum=rsi_meanrev,enum=trend_breakout_atr"`
	Params map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`
}

// Parametrized is a policy whose numeric parameters can be overridden,
// which is how the optimizer varies a strategy across a grid.
type Parametrized interface {
	engine.Policy
	// ApplyParams overrides parameters by key. Unknown keys are an error.
	ApplyParams(params map[string]float64) error
	// Validate checks parameter consistency after overrides.
	Validate() error
}

// Build resolves the spec into a fresh policy instance with the spec's
// parameter overrides applied and validated. Each call returns an
// independent instance, so concurrent runs never share state.
func (s Spec) Build() (Parametrized, error) {
	var policy Parametrized

	switch s.Name {
	case NameMACross:
		policy = NewMACross()
	case NameRSIMeanReversion:
		policy = NewRSIMeanReversion()
	case NameTrendBreakoutATR:
		policy = NewTrendBreakoutATR()
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownStrategy, "unknown strategy %q", s.Name)
	}

	if err := policy.ApplyParams(s.Params); err != nil {
		return nil, err
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}

	return policy, nil
}

// submitErr filters order submission errors: policy-level rejections are
// already recorded on the order and must not abort the run, anything fatal
// propagates.
func submitErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.IsFatal(err) {
		return err
	}

	return nil
}
