package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/pkg/errors"
)

// EMA is the exponential moving average of close prices, seeded with the
// simple average of the first period closes.
type EMA struct {
	period int
	alpha  float64
	seed   *window
	ema    optional.Option[float64]
}

// NewEMA creates an exponential moving average over the given period.
func NewEMA(period int) (*EMA, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "ema period must be positive, got %d", period)
	}

	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1),
		seed:   newWindow(period),
	}, nil
}

func (e *EMA) Type() types.IndicatorType {
	return types.IndicatorTypeEMA
}

func (e *EMA) Update(bar types.Bar) optional.Option[float64] {
	return e.updateValue(bar.Close)
}

// updateValue advances the EMA with a raw sample. MACD reuses this to run an
// EMA over its own line rather than over close prices.
func (e *EMA) updateValue(v float64) optional.Option[float64] {
	if e.ema.IsNone() {
		e.seed.push(v)

		if e.seed.full() {
			e.ema = optional.Some(e.seed.mean())
		}

		return e.ema
	}

	prev := e.ema.Unwrap()
	e.ema = optional.Some(e.alpha*v + (1-e.alpha)*prev)

	return e.ema
}

func (e *EMA) Value() optional.Option[float64] {
	return e.ema
}
