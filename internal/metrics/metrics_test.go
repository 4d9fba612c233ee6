package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/marlinquant/backtester/internal/engine"
	"github.com/marlinquant/backtester/internal/types"
)

type MetricsTestSuite struct {
	suite.Suite
}

func TestMetricsSuite(t *testing.T) {
	suite.Run(t, new(MetricsTestSuite))
}

func (s *MetricsTestSuite) equityPoints(start time.Time, equities ...float64) []types.EquityPoint {
	points := make([]types.EquityPoint, len(equities))
	peak := math.Inf(-1)

	for i, eq := range equities {
		if eq > peak {
			peak = eq
		}

		points[i] = types.EquityPoint{
			Time:     start.AddDate(0, 0, i),
			Equity:   eq,
			Cash:     eq,
			Drawdown: (eq - peak) / peak,
		}
	}

	return points
}

func (s *MetricsTestSuite) TestZeroTradeRunIsFullyDefined() {
	result := &engine.Result{
		Symbol:      "TEST",
		InitialCash: 10000,
	}

	summary := Compute(result)

	s.Equal(10000.0, summary.InitialEquity)
	s.Equal(10000.0, summary.FinalEquity)
	s.Equal(0.0, summary.TotalReturnPct)
	s.Equal(0.0, summary.SharpeRatio)
	s.Equal(0.0, summary.SortinoRatio)
	s.Equal(0.0, summary.ProfitFactor)
	s.Equal(0, summary.NumTrades)
	s.False(math.IsNaN(summary.CAGRPct))
	s.False(math.IsNaN(summary.MaxDrawdownPct))
}

func (s *MetricsTestSuite) TestFlatEquityHasZeroSharpe() {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	result := &engine.Result{
		Symbol:        "TEST",
		InitialCash:   10000,
		EquityHistory: s.equityPoints(start, 10000, 10000, 10000, 10000),
	}

	summary := Compute(result)

	s.Equal(0.0, summary.SharpeRatio)
	s.Equal(0.0, summary.SortinoRatio)
	s.Equal(0.0, summary.TotalReturnPct)
	s.Equal(0.0, summary.MaxDrawdownPct)
}

func (s *MetricsTestSuite) TestTotalReturnAndDrawdown() {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	result := &engine.Result{
		Symbol:        "TEST",
		InitialCash:   10000,
		EquityHistory: s.equityPoints(start, 10000, 12000, 9000, 11000),
	}

	summary := Compute(result)

	s.InDelta(10.0, summary.TotalReturnPct, 1e-9)
	s.InDelta(-25.0, summary.MaxDrawdownPct, 1e-9)
	s.Equal(3, summary.DurationDays)
	s.Equal(start, summary.StartDate)
}

func (s *MetricsTestSuite) TestCAGROverOneYear() {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	history := []types.EquityPoint{
		{Time: start, Equity: 10000},
		{Time: start.AddDate(1, 0, 0), Equity: 20000},
	}

	result := &engine.Result{Symbol: "TEST", InitialCash: 10000, EquityHistory: history}

	summary := Compute(result)

	// Doubling over one calendar year is within rounding of 100% CAGR.
	s.InDelta(100.0, summary.CAGRPct, 1.0)
	s.InDelta(100.0, summary.TotalReturnPct, 1e-9)
}

func (s *MetricsTestSuite) TestSharpeSignFollowsDrift() {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	up := Compute(&engine.Result{
		Symbol:        "TEST",
		InitialCash:   10000,
		EquityHistory: s.equityPoints(start, 10000, 10100, 10150, 10300, 10320),
	})
	s.Positive(up.SharpeRatio)

	down := Compute(&engine.Result{
		Symbol:        "TEST",
		InitialCash:   10000,
		EquityHistory: s.equityPoints(start, 10000, 9900, 9850, 9700, 9680),
	})
	s.Negative(down.SharpeRatio)
}

func (s *MetricsTestSuite) TestTradeStats() {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	trades := []types.Trade{
		{PnL: 100, PnLPct: 10},
		{PnL: 50, PnLPct: 5},
		{PnL: -30, PnLPct: -3},
	}

	result := &engine.Result{
		Symbol:        "TEST",
		InitialCash:   10000,
		EquityHistory: s.equityPoints(start, 10000, 10120),
		Trades:        trades,
	}

	summary := Compute(result)

	s.Equal(3, summary.NumTrades)
	s.Equal(2, summary.NumWins)
	s.Equal(1, summary.NumLosses)
	s.InDelta(66.666666, summary.WinRatePct, 1e-4)
	s.InDelta(75.0, summary.AvgWin, 1e-9)
	s.InDelta(7.5, summary.AvgWinPct, 1e-9)
	s.InDelta(-30.0, summary.AvgLoss, 1e-9)
	s.InDelta(150.0/30.0, summary.ProfitFactor, 1e-9)
}

func (s *MetricsTestSuite) TestProfitFactorSentinelWithoutLosses() {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	result := &engine.Result{
		Symbol:        "TEST",
		InitialCash:   10000,
		EquityHistory: s.equityPoints(start, 10000, 10100),
		Trades:        []types.Trade{{PnL: 100, PnLPct: 10}},
	}

	summary := Compute(result)

	s.Equal(0.0, summary.ProfitFactor)
	s.Equal(100.0, summary.WinRatePct)
}

func (s *MetricsTestSuite) TestExposure() {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := s.equityPoints(start, 10000, 10000, 10000, 10000)
	points[1].MarketValue = 5000
	points[2].MarketValue = 5000

	result := &engine.Result{Symbol: "TEST", InitialCash: 10000, EquityHistory: points}

	summary := Compute(result)

	s.InDelta(50.0, summary.ExposurePct, 1e-9)
}

func (s *MetricsTestSuite) TestMetricValueSelection() {
	summary := &types.Summary{
		SharpeRatio:    1.5,
		MaxDrawdownPct: -20,
		NumTrades:      7,
	}

	v, ok := summary.Value(types.MetricSharpe)
	s.True(ok)
	s.Equal(1.5, v)

	// Drawdown is negative, so less negative already ranks higher under the
	// bigger-is-better convention.
	v, ok = summary.Value(types.MetricMaxDrawdown)
	s.True(ok)
	s.Equal(-20.0, v)

	v, ok = summary.Value(types.MetricTradeCount)
	s.True(ok)
	s.Equal(7.0, v)

	_, ok = summary.Value(types.Metric("bogus"))
	s.False(ok)
}
