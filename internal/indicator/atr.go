package indicator

import (
	"math"

	"github.com/moznion/go-optional"

	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/pkg/errors"
)

// ATR is the average true range: the simple mean of the true range over the
// period. The first bar's true range is high minus low since there is no
// previous close yet.
type ATR struct {
	period    int
	ranges    *window
	prevClose optional.Option[float64]
	value     optional.Option[float64]
}

// NewATR creates an average true range over the given period.
func NewATR(period int) (*ATR, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "atr period must be positive, got %d", period)
	}

	return &ATR{period: period, ranges: newWindow(period)}, nil
}

func (a *ATR) Type() types.IndicatorType {
	return types.IndicatorTypeATR
}

func (a *ATR) Update(bar types.Bar) optional.Option[float64] {
	tr := bar.High - bar.Low

	if a.prevClose.IsSome() {
		prev := a.prevClose.Unwrap()
		tr = math.Max(tr, math.Max(math.Abs(bar.High-prev), math.Abs(bar.Low-prev)))
	}

	a.ranges.push(tr)
	a.prevClose = optional.Some(bar.Close)

	if !a.ranges.full() {
		a.value = optional.None[float64]()

		return a.value
	}

	a.value = optional.Some(a.ranges.mean())

	return a.value
}

func (a *ATR) Value() optional.Option[float64] {
	return a.value
}
