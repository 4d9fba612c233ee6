package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/pkg/errors"
)

// RollingHigh tracks the highest high over the period, including the
// current bar. Breakout entries compare against the value from the previous
// bar's update, which the engine guarantees by updating indicators before
// the policy runs.
type RollingHigh struct {
	win   *window
	value optional.Option[float64]
}

// NewRollingHigh creates a rolling highest-high over the given period.
func NewRollingHigh(period int) (*RollingHigh, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "rolling high period must be positive, got %d", period)
	}

	return &RollingHigh{win: newWindow(period)}, nil
}

func (r *RollingHigh) Type() types.IndicatorType {
	return types.IndicatorTypeRollingHigh
}

func (r *RollingHigh) Update(bar types.Bar) optional.Option[float64] {
	r.win.push(bar.High)

	if !r.win.full() {
		r.value = optional.None[float64]()

		return r.value
	}

	r.value = optional.Some(r.win.max())

	return r.value
}

func (r *RollingHigh) Value() optional.Option[float64] {
	return r.value
}

// RollingLow tracks the lowest low over the period, including the current
// bar.
type RollingLow struct {
	win   *window
	value optional.Option[float64]
}

// NewRollingLow creates a rolling lowest-low over the given period.
func NewRollingLow(period int) (*RollingLow, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "rolling low period must be positive, got %d", period)
	}

	return &RollingLow{win: newWindow(period)}, nil
}

func (r *RollingLow) Type() types.IndicatorType {
	return types.IndicatorTypeRollingLow
}

func (r *RollingLow) Update(bar types.Bar) optional.Option[float64] {
	r.win.push(bar.Low)

	if !r.win.full() {
		r.value = optional.None[float64]()

		return r.value
	}

	r.value = optional.Some(r.win.min())

	return r.value
}

func (r *RollingLow) Value() optional.Option[float64] {
	return r.value
}
