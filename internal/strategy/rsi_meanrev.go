package strategy

import (
	"github.com/moznion/go-optional"

	"github.com/marlinquant/backtester/internal/engine"
	"github.com/marlinquant/backtester/internal/indicator"
	"github.com/marlinquant/backtester/pkg/errors"
)

const indRSI = "rsi"

// RSIMeanReversion buys when RSI crosses down through the oversold
// threshold and exits when it crosses up through the overbought threshold.
type RSIMeanReversion struct {
	Period      int
	Oversold    float64
	Overbought  float64
	PositionPct float64

	prevRSI optional.Option[float64]
}

// NewRSIMeanReversion creates an RSI mean reversion strategy with default
// parameters.
func NewRSIMeanReversion() *RSIMeanReversion {
	return &RSIMeanReversion{
		Period:      14,
		Oversold:    30,
		Overbought:  70,
		PositionPct: 95,
	}
}

func (r *RSIMeanReversion) Name() string {
	return string(NameRSIMeanReversion)
}

func (r *RSIMeanReversion) ApplyParams(params map[string]float64) error {
	for key, value := range params {
		switch key {
		case "rsi_period":
			r.Period = int(value)
		case "oversold":
			r.Oversold = value
		case "overbought":
			r.Overbought = value
		case "position_pct":
			r.PositionPct = value
		default:
			return errors.Newf(errors.ErrCodeInvalidParameter, "rsi_meanrev: unknown parameter %q", key)
		}
	}

	return nil
}

func (r *RSIMeanReversion) Validate() error {
	if r.Period <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPeriod, "rsi_meanrev: period must be positive, got %d", r.Period)
	}

	if r.Oversold < 0 || r.Overbought > 100 || r.Oversold >= r.Overbought {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"rsi_meanrev: thresholds must satisfy 0 <= oversold < overbought <= 100, got %f and %f",
			r.Oversold, r.Overbought)
	}

	if r.PositionPct <= 0 || r.PositionPct > 100 {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"rsi_meanrev: position_pct must be in (0, 100], got %f", r.PositionPct)
	}

	return nil
}

func (r *RSIMeanReversion) OnStart(registry *indicator.Registry) error {
	rsi, err := indicator.NewRSI(r.Period)
	if err != nil {
		return err
	}

	return registry.Register(indRSI, rsi)
}

func (r *RSIMeanReversion) OnBar(ctx *engine.Context) error {
	rsi, err := ctx.Indicator(indRSI)
	if err != nil {
		return err
	}

	if rsi.IsNone() {
		return nil
	}

	defer func() {
		r.prevRSI = rsi
	}()

	if r.prevRSI.IsNone() {
		return nil
	}

	prev, cur := r.prevRSI.Unwrap(), rsi.Unwrap()

	switch {
	case prev >= r.Oversold && cur < r.Oversold:
		if ctx.PositionQuantity() == 0 {
			return submitErr(ctx.SubmitBuy(engine.PercentOfEquity(r.PositionPct)))
		}
	case prev <= r.Overbought && cur > r.Overbought:
		if ctx.PositionQuantity() > 0 {
			return submitErr(ctx.SubmitSell(optional.None[float64]()))
		}
	}

	return nil
}

func (r *RSIMeanReversion) OnEnd() error {
	return nil
}
