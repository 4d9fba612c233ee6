package strategy

import (
	"math"

	"github.com/moznion/go-optional"

	"github.com/marlinquant/backtester/internal/engine"
	"github.com/marlinquant/backtester/internal/indicator"
	"github.com/marlinquant/backtester/pkg/errors"
)

const (
	indTrendEMA    = "trend_ema"
	indATR         = "atr"
	indRollingHigh = "rolling_high"
)

// TrendBreakoutATR buys a breakout above the prior rolling high while the
// close is above a long EMA and volatility clears a floor, sizes the entry
// by ATR risk, and exits on a trailing ATR stop or a trend flip.
type TrendBreakoutATR struct {
	TrendLen    int
	BreakoutLen int
	ATRLen      int
	StopMult    float64
	TrailMult   float64
	MinATRPct   float64
	RiskPct     float64

	prevHigh   optional.Option[float64]
	entryPrice optional.Option[float64]
	trailStop  optional.Option[float64]
}

// NewTrendBreakoutATR creates a trend breakout strategy with default
// parameters.
func NewTrendBreakoutATR() *TrendBreakoutATR {
	return &TrendBreakoutATR{
		TrendLen:    200,
		BreakoutLen: 20,
		ATRLen:      14,
		StopMult:    2.0,
		TrailMult:   3.0,
		MinATRPct:   1.0,
		RiskPct:     1.0,
	}
}

func (t *TrendBreakoutATR) Name() string {
	return string(NameTrendBreakoutATR)
}

func (t *TrendBreakoutATR) ApplyParams(params map[string]float64) error {
	for key, value := range params {
		switch key {
		case "trend_length":
			t.TrendLen = int(value)
		case "breakout_length":
			t.BreakoutLen = int(value)
		case "atr_length":
			t.ATRLen = int(value)
		case "atr_stop_mult":
			t.StopMult = value
		case "atr_trail_mult":
			t.TrailMult = value
		case "min_atr_pct":
			t.MinATRPct = value
		case "risk_pct":
			t.RiskPct = value
		default:
			return errors.Newf(errors.ErrCodeInvalidParameter, "trend_breakout_atr: unknown parameter %q", key)
		}
	}

	return nil
}

func (t *TrendBreakoutATR) Validate() error {
	if t.TrendLen <= 0 || t.BreakoutLen <= 0 || t.ATRLen <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPeriod,
			"trend_breakout_atr: lengths must be positive, got trend=%d breakout=%d atr=%d",
			t.TrendLen, t.BreakoutLen, t.ATRLen)
	}

	if t.StopMult <= 0 || t.TrailMult <= 0 {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"trend_breakout_atr: stop multipliers must be positive, got stop=%f trail=%f",
			t.StopMult, t.TrailMult)
	}

	if t.RiskPct <= 0 || t.RiskPct > 100 {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"trend_breakout_atr: risk_pct must be in (0, 100], got %f", t.RiskPct)
	}

	if t.MinATRPct < 0 {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"trend_breakout_atr: min_atr_pct must not be negative, got %f", t.MinATRPct)
	}

	return nil
}

func (t *TrendBreakoutATR) OnStart(registry *indicator.Registry) error {
	ema, err := indicator.NewEMA(t.TrendLen)
	if err != nil {
		return err
	}

	atr, err := indicator.NewATR(t.ATRLen)
	if err != nil {
		return err
	}

	high, err := indicator.NewRollingHigh(t.BreakoutLen)
	if err != nil {
		return err
	}

	if err := registry.Register(indTrendEMA, ema); err != nil {
		return err
	}

	if err := registry.Register(indATR, atr); err != nil {
		return err
	}

	return registry.Register(indRollingHigh, high)
}

func (t *TrendBreakoutATR) OnBar(ctx *engine.Context) error {
	ema, err := ctx.Indicator(indTrendEMA)
	if err != nil {
		return err
	}

	atr, err := ctx.Indicator(indATR)
	if err != nil {
		return err
	}

	highest, err := ctx.Indicator(indRollingHigh)
	if err != nil {
		return err
	}

	if ema.IsNone() || atr.IsNone() || highest.IsNone() {
		return nil
	}

	defer func() {
		t.prevHigh = highest
	}()

	close := ctx.Close()
	emaVal := ema.Unwrap()
	atrVal := atr.Unwrap()

	atrPct := atrVal / close * 100
	bullTrend := close > emaVal
	volOK := atrPct >= t.MinATRPct

	// Breakout is judged against the rolling high as of the previous bar,
	// so the current bar's own high cannot trigger itself.
	breakout := t.prevHigh.IsSome() && close > t.prevHigh.Unwrap()

	if breakout && bullTrend && volOK && ctx.PositionQuantity() == 0 {
		stopDistance := atrVal * t.StopMult

		if err := submitErr(ctx.SubmitBuy(engine.RiskBased{RiskPct: t.RiskPct, StopDistance: stopDistance})); err != nil {
			return err
		}

		t.entryPrice = optional.Some(close)
		t.trailStop = optional.Some(close - atrVal*t.TrailMult)

		return nil
	}

	if ctx.PositionQuantity() > 0 && t.trailStop.IsSome() {
		if t.entryPrice.IsSome() && close > t.entryPrice.Unwrap() {
			t.trailStop = optional.Some(math.Max(t.trailStop.Unwrap(), close-atrVal*t.TrailMult))
		}

		if close <= t.trailStop.Unwrap() || close < emaVal {
			if err := submitErr(ctx.SubmitSell(optional.None[float64]())); err != nil {
				return err
			}

			t.entryPrice = optional.None[float64]()
			t.trailStop = optional.None[float64]()
		}
	}

	return nil
}

func (t *TrendBreakoutATR) OnEnd() error {
	return nil
}
