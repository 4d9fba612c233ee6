// Package config defines the YAML run configuration and its JSON schema.
// A RunConfig captures everything a single backtest needs besides the data
// file itself, so a run is reproducible from the config alone.
package config

import (
	"encoding/json"
	"os"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"gopkg.in/yaml.v3"

	"github.com/marlinquant/backtester/internal/engine"
	"github.com/marlinquant/backtester/internal/engine/cost"
	"github.com/marlinquant/backtester/internal/strategy"
	"github.com/marlinquant/backtester/pkg/errors"
)

// RunConfig is the full configuration of one backtest run.
type RunConfig struct {
	Symbol          string                     `yaml:"symbol" json:"symbol" validate:"required" jsonschema:"title=Symbol,description=Instrument symbol the data file covers"`
	InitialCapital  float64                    `yaml:"initial_capital" json:"initial_capital" validate:"gt=0" jsonschema:"title=Initial Capital,description=Starting cash for the run,minimum=0"`
	Costs           cost.Config                `yaml:"costs" json:"costs" jsonschema:"title=Costs,description=Commission and slippage assumptions"`
	OrderExpiryBars int                        `yaml:"order_expiry_bars,omitempty" json:"order_expiry_bars,omitempty" validate:"gte=0" jsonschema:"title=Order Expiry Bars,description=Bars a resting order waits before cancellation (0 uses the default of 1)"`
	AllowMargin     bool                       `yaml:"allow_margin,omitempty" json:"allow_margin,omitempty" jsonschema:"title=Allow Margin,description=Permit cash to go negative on fills"`
	StartTime       optional.Option[time.Time] `yaml:"start_time,omitempty" json:"start_time,omitempty" jsonschema:"title=Start Time,description=Optional inclusive start of the backtest period"`
	EndTime         optional.Option[time.Time] `yaml:"end_time,omitempty" json:"end_time,omitempty" jsonschema:"title=End Time,description=Optional inclusive end of the backtest period"`
	Strategy        strategy.Spec              `yaml:"strategy" json:"strategy" jsonschema:"title=Strategy,description=Strategy name and parameter overrides"`
}

// UnmarshalYAML maps absent or null start/end times onto optional.None.
func (c *RunConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain struct {
		Symbol          string        `yaml:"symbol"`
		InitialCapital  float64       `yaml:"initial_capital"`
		Costs           cost.Config   `yaml:"costs"`
		OrderExpiryBars int           `yaml:"order_expiry_bars"`
		AllowMargin     bool          `yaml:"allow_margin"`
		StartTime       *time.Time    `yaml:"start_time"`
		EndTime         *time.Time    `yaml:"end_time"`
		Strategy        strategy.Spec `yaml:"strategy"`
	}

	// Seed from the receiver so fields absent from the document keep
	// whatever defaults the caller started from.
	raw := plain{
		Symbol:          c.Symbol,
		InitialCapital:  c.InitialCapital,
		Costs:           c.Costs,
		OrderExpiryBars: c.OrderExpiryBars,
		AllowMargin:     c.AllowMargin,
		Strategy:        c.Strategy,
	}

	if err := unmarshal(&raw); err != nil {
		return err
	}

	c.Symbol = raw.Symbol
	c.InitialCapital = raw.InitialCapital
	c.Costs = raw.Costs
	c.OrderExpiryBars = raw.OrderExpiryBars
	c.AllowMargin = raw.AllowMargin
	c.Strategy = raw.Strategy

	c.StartTime = optional.None[time.Time]()
	if raw.StartTime != nil {
		c.StartTime = optional.Some(*raw.StartTime)
	}

	c.EndTime = optional.None[time.Time]()
	if raw.EndTime != nil {
		c.EndTime = optional.Some(*raw.EndTime)
	}

	return nil
}

// MarshalYAML writes optional times back out as plain timestamps or omits
// them, keeping a round-tripped config readable.
func (c RunConfig) MarshalYAML() (interface{}, error) {
	type plain struct {
		Symbol          string        `yaml:"symbol"`
		InitialCapital  float64       `yaml:"initial_capital"`
		Costs           cost.Config   `yaml:"costs"`
		OrderExpiryBars int           `yaml:"order_expiry_bars,omitempty"`
		AllowMargin     bool          `yaml:"allow_margin,omitempty"`
		StartTime       *time.Time    `yaml:"start_time,omitempty"`
		EndTime         *time.Time    `yaml:"end_time,omitempty"`
		Strategy        strategy.Spec `yaml:"strategy"`
	}

	raw := plain{
		Symbol:          c.Symbol,
		InitialCapital:  c.InitialCapital,
		Costs:           c.Costs,
		OrderExpiryBars: c.OrderExpiryBars,
		AllowMargin:     c.AllowMargin,
		Strategy:        c.Strategy,
	}

	if c.StartTime.IsSome() {
		t := c.StartTime.Unwrap()
		raw.StartTime = &t
	}

	if c.EndTime.IsSome() {
		t := c.EndTime.Unwrap()
		raw.EndTime = &t
	}

	return raw, nil
}

// Default returns a config with the stock assumptions filled in; only the
// symbol and strategy remain for the caller to set.
func Default() RunConfig {
	return RunConfig{
		InitialCapital: 10000,
		Costs:          cost.DefaultConfig(),
		StartTime:      optional.None[time.Time](),
		EndTime:        optional.None[time.Time](),
		Strategy:       strategy.Spec{Name: strategy.NameMACross},
	}
}

// Parse decodes and validates a YAML config. Fields absent from the input
// keep their Default values.
func Parse(data []byte) (RunConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, errors.Wrap(errors.ErrCodeInvalidConfig, "failed to parse config YAML", err)
	}

	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}

	return cfg, nil
}

// Load reads and parses a YAML config file.
func Load(path string) (RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, errors.Wrapf(errors.ErrCodeInvalidConfig, err, "failed to read config file %s", path)
	}

	return Parse(data)
}

// Validate checks field constraints and cross-field consistency.
func (c *RunConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, "config validation failed", err)
	}

	if c.StartTime.IsSome() && c.EndTime.IsSome() && c.EndTime.Unwrap().Before(c.StartTime.Unwrap()) {
		return errors.New(errors.ErrCodeInvalidConfig, "end_time must not precede start_time")
	}

	// Resolve the strategy once so parameter mistakes surface at config
	// time, not mid-run.
	if _, err := c.Strategy.Build(); err != nil {
		return err
	}

	return nil
}

// EngineConfig maps the run config onto the engine's execution settings.
func (c *RunConfig) EngineConfig() engine.Config {
	return engine.Config{
		InitialCash:     c.InitialCapital,
		Costs:           cost.NewFixedPlusPct(c.Costs),
		OrderExpiryBars: c.OrderExpiryBars,
		AllowMargin:     c.AllowMargin,
	}
}

// GenerateSchema builds the JSON schema for RunConfig, mapping optional
// times onto date-time strings and the strategy name onto its enum.
func (c *RunConfig) GenerateSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}

			if t == reflect.TypeOf(strategy.Name("")) {
				return &jsonschema.Schema{
					Type: "string",
					Enum: strategy.AllNames,
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)
	schema.Title = "backtester-run-config"
	schema.Description = "Configuration schema for a single backtest run"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema
}

// GenerateSchemaJSON renders the schema as indented JSON.
func (c *RunConfig) GenerateSchemaJSON() (string, error) {
	schemaBytes, err := json.MarshalIndent(c.GenerateSchema(), "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidConfig, "failed to marshal config schema", err)
	}

	return string(schemaBytes), nil
}
