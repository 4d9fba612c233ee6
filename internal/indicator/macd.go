package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/pkg/errors"
)

// MACD is the moving average convergence divergence. Value returns the MACD
// line once both the slow EMA and the signal EMA have warmed up; the signal
// line and histogram are available through dedicated accessors.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA

	line      optional.Option[float64]
	signalVal optional.Option[float64]
	histogram optional.Option[float64]
	value     optional.Option[float64]
}

// NewMACD creates a MACD with the given fast, slow and signal periods.
func NewMACD(fast, slow, signal int) (*MACD, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod,
			"macd periods must be positive, got fast=%d slow=%d signal=%d", fast, slow, signal)
	}

	if fast >= slow {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod,
			"macd fast period %d must be shorter than slow period %d", fast, slow)
	}

	fastEMA, err := NewEMA(fast)
	if err != nil {
		return nil, err
	}

	slowEMA, err := NewEMA(slow)
	if err != nil {
		return nil, err
	}

	signalEMA, err := NewEMA(signal)
	if err != nil {
		return nil, err
	}

	return &MACD{fast: fastEMA, slow: slowEMA, signal: signalEMA}, nil
}

func (m *MACD) Type() types.IndicatorType {
	return types.IndicatorTypeMACD
}

func (m *MACD) Update(bar types.Bar) optional.Option[float64] {
	fastVal := m.fast.Update(bar)
	slowVal := m.slow.Update(bar)

	if fastVal.IsNone() || slowVal.IsNone() {
		m.line = optional.None[float64]()
		m.signalVal = optional.None[float64]()
		m.histogram = optional.None[float64]()
		m.value = optional.None[float64]()

		return m.value
	}

	line := fastVal.Unwrap() - slowVal.Unwrap()
	m.line = optional.Some(line)

	// The signal EMA only ever sees defined MACD values, so its own warm-up
	// starts once the slow EMA is ready.
	m.signalVal = m.signal.updateValue(line)

	if m.signalVal.IsNone() {
		m.histogram = optional.None[float64]()
		m.value = optional.None[float64]()

		return m.value
	}

	m.histogram = optional.Some(line - m.signalVal.Unwrap())
	m.value = m.line

	return m.value
}

// Value returns the MACD line, defined only once the signal line exists.
func (m *MACD) Value() optional.Option[float64] {
	return m.value
}

// Line returns the MACD line regardless of signal warm-up.
func (m *MACD) Line() optional.Option[float64] {
	return m.line
}

// Signal returns the signal line.
func (m *MACD) Signal() optional.Option[float64] {
	return m.signalVal
}

// Histogram returns MACD line minus signal line.
func (m *MACD) Histogram() optional.Option[float64] {
	return m.histogram
}
