package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/pkg/errors"
)

// SMA is the simple moving average of close prices.
type SMA struct {
	period int
	win    *window
	value  optional.Option[float64]
}

// NewSMA creates a simple moving average over the given period.
func NewSMA(period int) (*SMA, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "sma period must be positive, got %d", period)
	}

	return &SMA{period: period, win: newWindow(period)}, nil
}

func (s *SMA) Type() types.IndicatorType {
	return types.IndicatorTypeSMA
}

func (s *SMA) Update(bar types.Bar) optional.Option[float64] {
	s.win.push(bar.Close)

	if !s.win.full() {
		s.value = optional.None[float64]()

		return s.value
	}

	s.value = optional.Some(s.win.mean())

	return s.value
}

func (s *SMA) Value() optional.Option[float64] {
	return s.value
}
