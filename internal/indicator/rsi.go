package indicator

import (
	"math"

	"github.com/moznion/go-optional"

	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/pkg/errors"
)

// RSI is the relative strength index over close-to-close changes, using
// simple averages of gains and losses over the period. A period with no
// losses reads 100.
type RSI struct {
	period    int
	gains     *window
	losses    *window
	prevClose optional.Option[float64]
	value     optional.Option[float64]
}

// NewRSI creates a relative strength index over the given period.
func NewRSI(period int) (*RSI, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "rsi period must be positive, got %d", period)
	}

	return &RSI{
		period: period,
		gains:  newWindow(period),
		losses: newWindow(period),
	}, nil
}

func (r *RSI) Type() types.IndicatorType {
	return types.IndicatorTypeRSI
}

func (r *RSI) Update(bar types.Bar) optional.Option[float64] {
	if r.prevClose.IsNone() {
		r.prevClose = optional.Some(bar.Close)
		r.value = optional.None[float64]()

		return r.value
	}

	change := bar.Close - r.prevClose.Unwrap()
	r.gains.push(math.Max(change, 0))
	r.losses.push(math.Max(-change, 0))
	r.prevClose = optional.Some(bar.Close)

	if !r.gains.full() {
		r.value = optional.None[float64]()

		return r.value
	}

	avgGain := r.gains.mean()
	avgLoss := r.losses.mean()

	if avgLoss == 0 {
		r.value = optional.Some(100.0)

		return r.value
	}

	rs := avgGain / avgLoss
	r.value = optional.Some(100.0 - 100.0/(1.0+rs))

	return r.value
}

func (r *RSI) Value() optional.Option[float64] {
	return r.value
}
