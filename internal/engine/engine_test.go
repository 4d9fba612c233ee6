package engine

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/marlinquant/backtester/internal/engine/cost"
	"github.com/marlinquant/backtester/internal/feed"
	"github.com/marlinquant/backtester/internal/indicator"
	"github.com/marlinquant/backtester/internal/logger"
	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/pkg/errors"
)

// scriptedPolicy runs a fixed action per bar index, for exercising the
// engine without a real strategy.
type scriptedPolicy struct {
	onStart func(registry *indicator.Registry) error
	actions map[int]func(ctx *Context) error
}

func (p *scriptedPolicy) Name() string { return "scripted" }

func (p *scriptedPolicy) OnStart(registry *indicator.Registry) error {
	if p.onStart != nil {
		return p.onStart(registry)
	}

	return nil
}

func (p *scriptedPolicy) OnBar(ctx *Context) error {
	if action, ok := p.actions[ctx.BarIndex()]; ok {
		return action(ctx)
	}

	return nil
}

func (p *scriptedPolicy) OnEnd() error { return nil }

type EngineTestSuite struct {
	suite.Suite
	log *logger.Logger
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (s *EngineTestSuite) SetupTest() {
	s.log = logger.NewNopLogger()
}

type ohlc struct {
	o, h, l, c float64
}

func (s *EngineTestSuite) newFeed(bars ...ohlc) *feed.Feed {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]types.Bar, len(bars))

	for i, b := range bars {
		out[i] = types.Bar{
			Time:   start.AddDate(0, 0, i),
			Open:   b.o,
			High:   b.h,
			Low:    b.l,
			Close:  b.c,
			Volume: 1000,
		}
	}

	f, err := feed.New("TEST", out)
	s.Require().NoError(err)

	return f
}

func (s *EngineTestSuite) run(cfg Config, f *feed.Feed, policy Policy) *Result {
	eng, err := New(cfg, f, policy, s.log)
	s.Require().NoError(err)

	result, err := eng.Run(optional.None[OnProcessDataCallback]())
	s.Require().NoError(err)

	return result
}

func (s *EngineTestSuite) zeroCostConfig(cash float64) Config {
	return Config{InitialCash: cash, Costs: cost.NewZero()}
}

func (s *EngineTestSuite) TestMarketOrderFillsAtNextBarOpen() {
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{102, 103, 101, 102},
		ohlc{104, 105, 103, 104},
	)

	policy := &scriptedPolicy{actions: map[int]func(ctx *Context) error{
		0: func(ctx *Context) error { return ctx.SubmitBuy(Quantity(10)) },
	}}

	result := s.run(s.zeroCostConfig(10000), f, policy)

	s.Require().Len(result.Fills, 1)
	fill := result.Fills[0]

	s.Equal(1, fill.BarIndex)
	s.Equal(102.0, fill.Price)
	s.Greater(fill.BarIndex, result.Orders[0].SubmittedAt)
	s.InDelta(10000-10*102, result.EquityHistory[1].Cash, 1e-9)
}

func (s *EngineTestSuite) TestOrderOnLastBarNeverFills() {
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{102, 103, 101, 102},
	)

	policy := &scriptedPolicy{actions: map[int]func(ctx *Context) error{
		1: func(ctx *Context) error { return ctx.SubmitBuy(Quantity(10)) },
	}}

	result := s.run(s.zeroCostConfig(10000), f, policy)

	s.Empty(result.Fills)
	s.Equal(types.OrderStatusPending, result.Orders[0].Status)
	s.InDelta(10000.0, result.FinalEquity, 1e-9)
}

func (s *EngineTestSuite) TestLimitBuyFillsWhenTouched() {
	// Next bar trades down to 94, through the 95 limit; the fill price is
	// the better of limit and open.
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{95.5, 96, 94, 95},
	)

	policy := &scriptedPolicy{actions: map[int]func(ctx *Context) error{
		0: func(ctx *Context) error { return ctx.SubmitBuyLimit(10, 95) },
	}}

	result := s.run(s.zeroCostConfig(10000), f, policy)

	s.Require().Len(result.Fills, 1)
	s.Equal(95.0, result.Fills[0].Price)
}

func (s *EngineTestSuite) TestLimitBuyFillsAtOpenOnGapThrough() {
	// Next bar opens below the limit; the resting order fills at the open,
	// not at the limit.
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{93, 96, 92, 95},
	)

	policy := &scriptedPolicy{actions: map[int]func(ctx *Context) error{
		0: func(ctx *Context) error { return ctx.SubmitBuyLimit(10, 95) },
	}}

	result := s.run(s.zeroCostConfig(10000), f, policy)

	s.Require().Len(result.Fills, 1)
	s.Equal(93.0, result.Fills[0].Price)
}

func (s *EngineTestSuite) TestLimitBuyExpiresWhenNeverTouched() {
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{97, 98, 96, 97},
		ohlc{98, 99, 97, 98},
	)

	policy := &scriptedPolicy{actions: map[int]func(ctx *Context) error{
		0: func(ctx *Context) error { return ctx.SubmitBuyLimit(10, 95) },
	}}

	result := s.run(s.zeroCostConfig(10000), f, policy)

	s.Empty(result.Fills)
	s.Equal(1, result.Cancelled)
	s.Equal(types.OrderStatusCancelled, result.Orders[0].Status)
	s.Equal(types.OrderReasonExpired, result.Orders[0].Reason.Reason)
}

func (s *EngineTestSuite) TestLimitOrderRestsUntilExpiry() {
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{98, 99, 97, 98},
		ohlc{97, 98, 96, 97},
		ohlc{95.5, 96, 94, 95},
	)

	cfg := s.zeroCostConfig(10000)
	cfg.OrderExpiryBars = 5

	policy := &scriptedPolicy{actions: map[int]func(ctx *Context) error{
		0: func(ctx *Context) error { return ctx.SubmitBuyLimit(10, 95) },
	}}

	result := s.run(cfg, f, policy)

	s.Require().Len(result.Fills, 1)
	s.Equal(3, result.Fills[0].BarIndex)
	s.Equal(95.0, result.Fills[0].Price)
}

func (s *EngineTestSuite) TestStopBuyFill() {
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{103, 106, 102, 105},
	)

	policy := &scriptedPolicy{actions: map[int]func(ctx *Context) error{
		0: func(ctx *Context) error { return ctx.SubmitBuyStop(10, 105) },
	}}

	result := s.run(s.zeroCostConfig(10000), f, policy)

	s.Require().Len(result.Fills, 1)
	// Stop triggers intrabar and never fills better than the stop.
	s.Equal(105.0, result.Fills[0].Price)
}

func (s *EngineTestSuite) TestSellStopFill() {
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{100, 101, 99, 100},
		ohlc{96, 97, 94, 95},
	)

	policy := &scriptedPolicy{actions: map[int]func(ctx *Context) error{
		0: func(ctx *Context) error { return ctx.SubmitBuy(Quantity(10)) },
		1: func(ctx *Context) error { return ctx.SubmitSellStop(10, 95) },
	}}

	result := s.run(s.zeroCostConfig(10000), f, policy)

	s.Require().Len(result.Fills, 2)
	s.Equal(95.0, result.Fills[1].Price)
	s.Equal(0.0, result.EquityHistory[2].MarketValue)
}

func (s *EngineTestSuite) TestBuyRejectedOnInsufficientCash() {
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{102, 103, 101, 102},
	)

	policy := &scriptedPolicy{actions: map[int]func(ctx *Context) error{
		0: func(ctx *Context) error { return ctx.SubmitBuy(Quantity(10)) },
	}}

	result := s.run(s.zeroCostConfig(500), f, policy)

	s.Empty(result.Fills)
	s.Equal(1, result.Rejected)
	s.Equal(types.OrderStatusRejected, result.Orders[0].Status)
	s.Equal(types.OrderReasonInsufficientCash, result.Orders[0].Reason.Reason)
	s.InDelta(500.0, result.FinalEquity, 1e-9)
}

func (s *EngineTestSuite) TestSellRejectedOnOversell() {
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{102, 103, 101, 102},
	)

	policy := &scriptedPolicy{actions: map[int]func(ctx *Context) error{
		0: func(ctx *Context) error { return ctx.SubmitSell(optional.Some(5.0)) },
	}}

	result := s.run(s.zeroCostConfig(10000), f, policy)

	s.Empty(result.Fills)
	s.Equal(1, result.Rejected)
	s.Equal(types.OrderReasonOversell, result.Orders[0].Reason.Reason)
	s.InDelta(10000.0, result.FinalEquity, 1e-9)
}

func (s *EngineTestSuite) TestNonPositiveQuantityRejectedAtSubmission() {
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{102, 103, 101, 102},
	)

	policy := &scriptedPolicy{actions: map[int]func(ctx *Context) error{
		0: func(ctx *Context) error {
			err := ctx.SubmitBuy(Quantity(0))
			if !errors.HasCode(err, errors.ErrCodeNonPositiveQuantity) {
				return err
			}

			return nil
		},
	}}

	result := s.run(s.zeroCostConfig(10000), f, policy)

	s.Empty(result.Fills)
	s.Equal(1, result.Rejected)
}

func (s *EngineTestSuite) TestDefaultCostsBuyScenario() {
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{100, 101, 99, 100},
	)

	cfg := Config{InitialCash: 10000, Costs: cost.NewFixedPlusPct(cost.DefaultConfig())}

	policy := &scriptedPolicy{actions: map[int]func(ctx *Context) error{
		0: func(ctx *Context) error { return ctx.SubmitBuy(Quantity(10)) },
	}}

	result := s.run(cfg, f, policy)

	s.Require().Len(result.Fills, 1)
	s.InDelta(1001.10, result.Fills[0].TotalCost(), 1e-9)
	s.InDelta(10000-1001.10, result.EquityHistory[1].Cash, 1e-9)
}

func (s *EngineTestSuite) TestPercentOfEquitySizing() {
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{100, 101, 99, 100},
	)

	policy := &scriptedPolicy{actions: map[int]func(ctx *Context) error{
		0: func(ctx *Context) error { return ctx.SubmitBuy(PercentOfEquity(50)) },
	}}

	result := s.run(s.zeroCostConfig(10000), f, policy)

	s.Require().Len(result.Fills, 1)
	// 50% of 10000 at close 100 is 50 whole units.
	s.Equal(50.0, result.Fills[0].Quantity)
}

func (s *EngineTestSuite) TestRiskBasedSizing() {
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{100, 101, 99, 100},
	)

	policy := &scriptedPolicy{actions: map[int]func(ctx *Context) error{
		0: func(ctx *Context) error {
			return ctx.SubmitBuy(RiskBased{RiskPct: 1, StopDistance: 2})
		},
	}}

	result := s.run(s.zeroCostConfig(10000), f, policy)

	s.Require().Len(result.Fills, 1)
	// Risking 1% of 10000 over a 2-wide stop is 50 units.
	s.Equal(50.0, result.Fills[0].Quantity)
}

func (s *EngineTestSuite) TestRiskBasedSizingRequiresStopDistance() {
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{100, 101, 99, 100},
	)

	var sizingErr error

	policy := &scriptedPolicy{actions: map[int]func(ctx *Context) error{
		0: func(ctx *Context) error {
			sizingErr = ctx.SubmitBuy(RiskBased{RiskPct: 1, StopDistance: 0})

			return nil
		},
	}}

	result := s.run(s.zeroCostConfig(10000), f, policy)

	s.Empty(result.Fills)
	s.True(errors.HasCode(sizingErr, errors.ErrCodeUnknownSizing))
}

func (s *EngineTestSuite) TestDrawdownFromRunningPeak() {
	// All-in position at 100, so equity tracks the close: 100 -> 120 -> 90
	// is a 25% drawdown from the 120 peak.
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{100, 121, 99, 100},
		ohlc{100, 121, 99, 120},
		ohlc{100, 121, 89, 90},
	)

	policy := &scriptedPolicy{actions: map[int]func(ctx *Context) error{
		0: func(ctx *Context) error { return ctx.SubmitBuy(Quantity(100)) },
	}}

	result := s.run(s.zeroCostConfig(10000), f, policy)

	s.Require().Len(result.Fills, 1)
	s.Require().Len(result.EquityHistory, 4)
	s.InDelta(0.0, result.EquityHistory[2].Drawdown, 1e-9)
	s.InDelta(12000.0, result.EquityHistory[2].Equity, 1e-9)
	s.InDelta(-0.25, result.EquityHistory[3].Drawdown, 1e-9)
}

func (s *EngineTestSuite) TestRoundTripProducesTrade() {
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{100, 101, 99, 100},
		ohlc{110, 111, 109, 110},
	)

	policy := &scriptedPolicy{actions: map[int]func(ctx *Context) error{
		0: func(ctx *Context) error { return ctx.SubmitBuy(Quantity(10)) },
		1: func(ctx *Context) error { return ctx.SubmitSell(optional.None[float64]()) },
	}}

	result := s.run(s.zeroCostConfig(10000), f, policy)

	s.Require().Len(result.Trades, 1)
	trade := result.Trades[0]

	s.Equal(10.0, trade.Quantity)
	s.InDelta(100.0, trade.EntryPrice, 1e-9)
	s.InDelta(110.0, trade.ExitPrice, 1e-9)
	s.InDelta(100.0, trade.PnL, 1e-9)
	s.InDelta(10.0, trade.PnLPct, 1e-9)
}

func (s *EngineTestSuite) TestIndicatorsUpdatedBeforeOnBar() {
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{102, 103, 101, 102},
	)

	var seen []float64

	policy := &scriptedPolicy{
		onStart: func(registry *indicator.Registry) error {
			sma, err := indicator.NewSMA(2)
			if err != nil {
				return err
			}

			return registry.Register("sma", sma)
		},
		actions: map[int]func(ctx *Context) error{
			1: func(ctx *Context) error {
				v, err := ctx.Indicator("sma")
				if err != nil {
					return err
				}

				if v.IsSome() {
					seen = append(seen, v.Unwrap())
				}

				return nil
			},
		},
	}

	s.run(s.zeroCostConfig(10000), f, policy)

	// The bar-1 value includes bar 1's close: (100+102)/2.
	s.Require().Len(seen, 1)
	s.InDelta(101.0, seen[0], 1e-9)
}

func (s *EngineTestSuite) TestDeterminism() {
	cfg := feed.DefaultGenerateConfig("SYN")
	cfg.NumBars = 120

	f, err := feed.Generate(cfg)
	s.Require().NoError(err)

	makePolicy := func() Policy {
		return &scriptedPolicy{actions: map[int]func(ctx *Context) error{
			10: func(ctx *Context) error { return ctx.SubmitBuy(PercentOfEquity(90)) },
			50: func(ctx *Context) error { return ctx.SubmitSell(optional.None[float64]()) },
			60: func(ctx *Context) error { return ctx.SubmitBuy(PercentOfEquity(50)) },
		}}
	}

	first := s.run(s.zeroCostConfig(10000), f, makePolicy())
	second := s.run(s.zeroCostConfig(10000), f, makePolicy())

	s.Equal(first.FinalEquity, second.FinalEquity)
	s.Equal(first.Trades, second.Trades)
	s.Equal(first.EquityHistory, second.EquityHistory)

	s.Require().Equal(len(first.Fills), len(second.Fills))

	for i := range first.Fills {
		a, b := first.Fills[i], second.Fills[i]
		a.OrderID, b.OrderID = "", ""
		s.Equal(a, b)
	}
}

func (s *EngineTestSuite) TestEngineRunsOnlyOnce() {
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{102, 103, 101, 102},
	)

	eng, err := New(s.zeroCostConfig(10000), f, &scriptedPolicy{}, s.log)
	s.Require().NoError(err)

	_, err = eng.Run(optional.None[OnProcessDataCallback]())
	s.Require().NoError(err)
	s.Equal(StateFinished, eng.State())

	_, err = eng.Run(optional.None[OnProcessDataCallback]())
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeEngineReused))
}

func (s *EngineTestSuite) TestNewRejectsBadConfig() {
	f := s.newFeed(ohlc{100, 101, 99, 100})

	_, err := New(s.zeroCostConfig(10000), f, nil, s.log)
	s.True(errors.HasCode(err, errors.ErrCodeNoPolicy))

	_, err = New(s.zeroCostConfig(0), f, &scriptedPolicy{}, s.log)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfig))

	_, err = New(s.zeroCostConfig(10000), nil, &scriptedPolicy{}, s.log)
	s.True(errors.HasCode(err, errors.ErrCodeEmptyFeed))
}

func (s *EngineTestSuite) TestProgressCallback() {
	f := s.newFeed(
		ohlc{100, 101, 99, 100},
		ohlc{102, 103, 101, 102},
		ohlc{104, 105, 103, 104},
	)

	eng, err := New(s.zeroCostConfig(10000), f, &scriptedPolicy{}, s.log)
	s.Require().NoError(err)

	var calls []int

	callback := OnProcessDataCallback(func(current int, total int) error {
		s.Equal(3, total)
		calls = append(calls, current)

		return nil
	})

	_, err = eng.Run(optional.Some(callback))
	s.Require().NoError(err)
	s.Equal([]int{1, 2, 3}, calls)
}
