package strategy

import (
	"github.com/moznion/go-optional"

	"github.com/marlinquant/backtester/internal/engine"
	"github.com/marlinquant/backtester/internal/indicator"
	"github.com/marlinquant/backtester/pkg/errors"
)

const (
	indFastMA = "ma_fast"
	indSlowMA = "ma_slow"
)

// MACross buys when the fast moving average crosses above the slow one and
// exits when it crosses back below. Long only, one position at a time.
type MACross struct {
	Fast        int
	Slow        int
	PositionPct float64

	prevFast optional.Option[float64]
	prevSlow optional.Option[float64]
}

// NewMACross creates an MA cross strategy with default parameters.
func NewMACross() *MACross {
	return &MACross{
		Fast:        20,
		Slow:        50,
		PositionPct: 95,
	}
}

func (m *MACross) Name() string {
	return string(NameMACross)
}

func (m *MACross) ApplyParams(params map[string]float64) error {
	for key, value := range params {
		switch key {
		case "fast":
			m.Fast = int(value)
		case "slow":
			m.Slow = int(value)
		case "position_pct":
			m.PositionPct = value
		default:
			return errors.Newf(errors.ErrCodeInvalidParameter, "ma_cross: unknown parameter %q", key)
		}
	}

	return nil
}

func (m *MACross) Validate() error {
	if m.Fast <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPeriod, "ma_cross: fast period must be positive, got %d", m.Fast)
	}

	if m.Slow <= m.Fast {
		return errors.Newf(errors.ErrCodeInvalidPeriod,
			"ma_cross: slow period %d must exceed fast period %d", m.Slow, m.Fast)
	}

	if m.PositionPct <= 0 || m.PositionPct > 100 {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"ma_cross: position_pct must be in (0, 100], got %f", m.PositionPct)
	}

	return nil
}

func (m *MACross) OnStart(registry *indicator.Registry) error {
	fast, err := indicator.NewSMA(m.Fast)
	if err != nil {
		return err
	}

	slow, err := indicator.NewSMA(m.Slow)
	if err != nil {
		return err
	}

	if err := registry.Register(indFastMA, fast); err != nil {
		return err
	}

	return registry.Register(indSlowMA, slow)
}

func (m *MACross) OnBar(ctx *engine.Context) error {
	fast, err := ctx.Indicator(indFastMA)
	if err != nil {
		return err
	}

	slow, err := ctx.Indicator(indSlowMA)
	if err != nil {
		return err
	}

	// NA is no signal, never a default value.
	if fast.IsNone() || slow.IsNone() {
		return nil
	}

	defer func() {
		m.prevFast = fast
		m.prevSlow = slow
	}()

	if m.prevFast.IsNone() || m.prevSlow.IsNone() {
		return nil
	}

	prevFast, prevSlow := m.prevFast.Unwrap(), m.prevSlow.Unwrap()
	curFast, curSlow := fast.Unwrap(), slow.Unwrap()

	switch {
	case prevFast <= prevSlow && curFast > curSlow:
		if ctx.PositionQuantity() == 0 {
			return submitErr(ctx.SubmitBuy(engine.PercentOfEquity(m.PositionPct)))
		}
	case prevFast >= prevSlow && curFast < curSlow:
		if ctx.PositionQuantity() > 0 {
			return submitErr(ctx.SubmitSell(optional.None[float64]()))
		}
	}

	return nil
}

func (m *MACross) OnEnd() error {
	return nil
}
