package indicator

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/pkg/errors"
)

type IndicatorTestSuite struct {
	suite.Suite
}

func TestIndicatorSuite(t *testing.T) {
	suite.Run(t, new(IndicatorTestSuite))
}

func closeBar(close float64) types.Bar {
	return types.Bar{Open: close, High: close, Low: close, Close: close, Volume: 1}
}

func (s *IndicatorTestSuite) feedCloses(ind Indicator, closes ...float64) []float64 {
	var defined []float64

	for _, c := range closes {
		if v := ind.Update(closeBar(c)); v.IsSome() {
			defined = append(defined, v.Unwrap())
		}
	}

	return defined
}

func (s *IndicatorTestSuite) TestSMAWarmUpAndValues() {
	sma, err := NewSMA(3)
	s.Require().NoError(err)

	s.True(sma.Update(closeBar(1)).IsNone())
	s.True(sma.Update(closeBar(2)).IsNone())
	s.Equal(2.0, sma.Update(closeBar(3)).Unwrap())
	s.Equal(3.0, sma.Update(closeBar(4)).Unwrap())
	s.Equal(3.0, sma.Value().Unwrap())
}

func (s *IndicatorTestSuite) TestSMARejectsBadPeriod() {
	_, err := NewSMA(0)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidPeriod))
}

func (s *IndicatorTestSuite) TestEMASeedsWithSMA() {
	ema, err := NewEMA(3)
	s.Require().NoError(err)

	s.True(ema.Update(closeBar(1)).IsNone())
	s.True(ema.Update(closeBar(2)).IsNone())
	// Seed is the simple average of the first three closes.
	s.Equal(2.0, ema.Update(closeBar(3)).Unwrap())
	// alpha = 2/(3+1) = 0.5
	s.Equal(3.0, ema.Update(closeBar(4)).Unwrap())
}

func (s *IndicatorTestSuite) TestRSIExtremes() {
	rsi, err := NewRSI(2)
	s.Require().NoError(err)

	vals := s.feedCloses(rsi, 1, 2, 3)
	s.Require().Len(vals, 1)
	s.Equal(100.0, vals[0])

	rsi, err = NewRSI(2)
	s.Require().NoError(err)

	vals = s.feedCloses(rsi, 3, 2, 1)
	s.Require().Len(vals, 1)
	s.Equal(0.0, vals[0])
}

func (s *IndicatorTestSuite) TestRSIBalanced() {
	rsi, err := NewRSI(2)
	s.Require().NoError(err)

	vals := s.feedCloses(rsi, 10, 11, 10)
	s.Require().Len(vals, 1)
	s.InDelta(50.0, vals[0], 1e-9)
}

func (s *IndicatorTestSuite) TestATRFirstBarUsesHighLow() {
	atr, err := NewATR(2)
	s.Require().NoError(err)

	v := atr.Update(types.Bar{Open: 9, High: 10, Low: 8, Close: 9, Volume: 1})
	s.True(v.IsNone())

	// TR of the second bar spans the gap from the previous close.
	v = atr.Update(types.Bar{Open: 11, High: 12, Low: 9, Close: 11, Volume: 1})
	s.Require().True(v.IsSome())
	s.InDelta(2.5, v.Unwrap(), 1e-9)
}

func (s *IndicatorTestSuite) TestRollingHighLow() {
	high, err := NewRollingHigh(2)
	s.Require().NoError(err)
	low, err := NewRollingLow(2)
	s.Require().NoError(err)

	bars := []types.Bar{
		{Open: 2, High: 3, Low: 1, Close: 2, Volume: 1},
		{Open: 4, High: 5, Low: 3, Close: 4, Volume: 1},
		{Open: 3, High: 4, Low: 2, Close: 3, Volume: 1},
	}

	s.True(high.Update(bars[0]).IsNone())
	s.Equal(5.0, high.Update(bars[1]).Unwrap())
	s.Equal(5.0, high.Update(bars[2]).Unwrap())

	s.True(low.Update(bars[0]).IsNone())
	s.Equal(1.0, low.Update(bars[1]).Unwrap())
	s.Equal(2.0, low.Update(bars[2]).Unwrap())
}

func (s *IndicatorTestSuite) TestMACDWarmUp() {
	macd, err := NewMACD(2, 3, 2)
	s.Require().NoError(err)

	// Line defined once the slow EMA is ready; full value needs the signal
	// EMA seed on top of that.
	s.True(macd.Update(closeBar(1)).IsNone())
	s.True(macd.Update(closeBar(2)).IsNone())

	s.True(macd.Update(closeBar(3)).IsNone())
	s.True(macd.Line().IsSome())
	s.True(macd.Signal().IsNone())

	v := macd.Update(closeBar(4))
	s.Require().True(v.IsSome())
	s.True(macd.Signal().IsSome())
	s.InDelta(macd.Line().Unwrap()-macd.Signal().Unwrap(), macd.Histogram().Unwrap(), 1e-9)
}

func (s *IndicatorTestSuite) TestMACDRejectsFastNotShorter() {
	_, err := NewMACD(26, 12, 9)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidPeriod))
}

func (s *IndicatorTestSuite) TestRegistry() {
	reg := NewRegistry()

	fast, err := NewSMA(2)
	s.Require().NoError(err)
	slow, err := NewSMA(3)
	s.Require().NoError(err)

	s.Require().NoError(reg.Register("sma_fast", fast))
	s.Require().NoError(reg.Register("sma_slow", slow))

	err = reg.Register("sma_fast", fast)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeIndicatorAlreadyExists))

	_, err = reg.Get("missing")
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeIndicatorNotFound))

	s.Equal([]string{"sma_fast", "sma_slow"}, reg.Names())

	for _, c := range []float64{1, 2, 3} {
		reg.Update(closeBar(c))
	}

	v, err := reg.Value("sma_fast")
	s.Require().NoError(err)
	s.Equal(2.5, v.Unwrap())

	v, err = reg.Value("sma_slow")
	s.Require().NoError(err)
	s.Equal(2.0, v.Unwrap())
}
