package strategy

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/marlinquant/backtester/internal/engine"
	"github.com/marlinquant/backtester/internal/engine/cost"
	"github.com/marlinquant/backtester/internal/feed"
	"github.com/marlinquant/backtester/internal/logger"
	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/pkg/errors"
)

type StrategyTestSuite struct {
	suite.Suite
	log *logger.Logger
}

func TestStrategySuite(t *testing.T) {
	suite.Run(t, new(StrategyTestSuite))
}

func (s *StrategyTestSuite) SetupTest() {
	s.log = logger.NewNopLogger()
}

// flatFeed builds bars where open, high, low and close all equal the given
// value, so fills and signals are exactly predictable.
func (s *StrategyTestSuite) flatFeed(closes ...float64) *feed.Feed {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, len(closes))

	for i, c := range closes {
		bars[i] = types.Bar{Time: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}

	f, err := feed.New("TEST", bars)
	s.Require().NoError(err)

	return f
}

// rangedFeed builds bars with a 2% intrabar range around the close, so ATR
// is non-zero.
func (s *StrategyTestSuite) rangedFeed(closes ...float64) *feed.Feed {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, len(closes))

	for i, c := range closes {
		bars[i] = types.Bar{Time: start.AddDate(0, 0, i), Open: c, High: c * 1.02, Low: c * 0.98, Close: c, Volume: 1000}
	}

	f, err := feed.New("TEST", bars)
	s.Require().NoError(err)

	return f
}

func (s *StrategyTestSuite) run(f *feed.Feed, policy engine.Policy, cash float64) *engine.Result {
	eng, err := engine.New(engine.Config{InitialCash: cash, Costs: cost.NewZero()}, f, policy, s.log)
	s.Require().NoError(err)

	result, err := eng.Run(optional.None[engine.OnProcessDataCallback]())
	s.Require().NoError(err)

	return result
}

func (s *StrategyTestSuite) TestSpecBuildsEachStrategy() {
	tests := []struct {
		name     Name
		expected string
	}{
		{NameMACross, "ma_cross"},
		{NameRSIMeanReversion, "rsi_meanrev"},
		{NameTrendBreakoutATR, "trend_breakout_atr"},
	}

	for _, tc := range tests {
		s.Run(string(tc.name), func() {
			policy, err := Spec{Name: tc.name}.Build()
			s.Require().NoError(err)
			s.Equal(tc.expected, policy.Name())
		})
	}
}

func (s *StrategyTestSuite) TestSpecRejectsUnknownStrategy() {
	_, err := Spec{Name: "martingale"}.Build()
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeUnknownStrategy))
}

func (s *StrategyTestSuite) TestSpecRejectsUnknownParameter() {
	_, err := Spec{Name: NameMACross, Params: map[string]float64{"bogus": 1}}.Build()
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (s *StrategyTestSuite) TestSpecRejectsInvalidPeriods() {
	_, err := Spec{Name: NameMACross, Params: map[string]float64{"fast": 50, "slow": 20}}.Build()
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidPeriod))

	_, err = Spec{Name: NameRSIMeanReversion, Params: map[string]float64{"oversold": 80, "overbought": 70}}.Build()
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (s *StrategyTestSuite) TestSpecBuildsIndependentInstances() {
	spec := Spec{Name: NameMACross, Params: map[string]float64{"fast": 2, "slow": 3}}

	a, err := spec.Build()
	s.Require().NoError(err)
	b, err := spec.Build()
	s.Require().NoError(err)

	s.NotSame(a, b)
}

func (s *StrategyTestSuite) TestMACrossSingleCrossoverTradesOnce() {
	// The fast average crosses above the slow average exactly once, at the
	// jump from 10 to 20, then back below on the drop to 5.
	f := s.flatFeed(10, 10, 10, 10, 20, 20, 5, 5)

	policy, err := Spec{Name: NameMACross, Params: map[string]float64{"fast": 2, "slow": 3}}.Build()
	s.Require().NoError(err)

	result := s.run(f, policy, 10000)

	s.Require().Len(result.Orders, 2)
	s.Equal(types.SideBuy, result.Orders[0].Side)
	s.Equal(types.SideSell, result.Orders[1].Side)

	s.Require().Len(result.Fills, 2)
	s.Require().Len(result.Trades, 1)

	for i, fill := range result.Fills {
		s.Greater(fill.BarIndex, result.Orders[i].SubmittedAt)
	}
}

func (s *StrategyTestSuite) TestMACrossStaysFlatWithoutCross() {
	f := s.flatFeed(10, 10, 10, 10, 10, 10, 10, 10)

	policy, err := Spec{Name: NameMACross, Params: map[string]float64{"fast": 2, "slow": 3}}.Build()
	s.Require().NoError(err)

	result := s.run(f, policy, 10000)

	s.Empty(result.Orders)
	s.InDelta(10000.0, result.FinalEquity, 1e-9)
}

func (s *StrategyTestSuite) TestRSIMeanReversionRoundTrip() {
	// RSI(2) starts at 100 on the rally, crosses below 30 on the drop to 9
	// (entry) and back above 70 on the recovery (exit).
	f := s.flatFeed(10, 11, 12, 9, 12, 15, 15)

	policy, err := Spec{Name: NameRSIMeanReversion, Params: map[string]float64{
		"rsi_period":   2,
		"oversold":     30,
		"overbought":   70,
		"position_pct": 50,
	}}.Build()
	s.Require().NoError(err)

	result := s.run(f, policy, 10000)

	s.Require().Len(result.Orders, 2)
	s.Equal(types.SideBuy, result.Orders[0].Side)
	s.Equal(types.SideSell, result.Orders[1].Side)

	s.Require().Len(result.Trades, 1)
	s.Positive(result.Trades[0].PnL)
}

func (s *StrategyTestSuite) TestTrendBreakoutEntersAndExits() {
	// 30 rising bars give a breakout in an established uptrend; the 3%
	// daily slide afterwards forces the trend-flip exit.
	closes := make([]float64, 0, 40)
	price := 100.0

	for i := 0; i < 30; i++ {
		closes = append(closes, price)
		price *= 1.01
	}

	for i := 0; i < 10; i++ {
		price *= 0.97
		closes = append(closes, price)
	}

	f := s.rangedFeed(closes...)

	policy, err := Spec{Name: NameTrendBreakoutATR, Params: map[string]float64{
		"trend_length":    10,
		"breakout_length": 3,
		"atr_length":      3,
		"min_atr_pct":     0,
		"risk_pct":        1,
	}}.Build()
	s.Require().NoError(err)

	result := s.run(f, policy, 10000)

	s.Require().NotEmpty(result.Fills)
	s.Equal(types.SideBuy, result.Fills[0].Side)
	s.Require().NotEmpty(result.Trades)

	for _, fill := range result.Fills {
		s.Greater(fill.BarIndex, 0)
	}
}

func (s *StrategyTestSuite) TestNAIndicatorsProduceNoOrders() {
	// Fewer bars than the slow period: every indicator value stays NA and
	// the policy must never trade.
	f := s.flatFeed(10, 11, 12)

	policy, err := Spec{Name: NameMACross, Params: map[string]float64{"fast": 5, "slow": 10}}.Build()
	s.Require().NoError(err)

	result := s.run(f, policy, 10000)

	s.Empty(result.Orders)
}
