package engine

import (
	"math"
	"time"

	"github.com/moznion/go-optional"

	"github.com/marlinquant/backtester/internal/indicator"
	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/pkg/errors"
)

// Sizing determines the quantity of a buy order from the state visible at
// decision time. Each variant is a distinct type so the intent is explicit
// at the call site.
type Sizing interface {
	resolve(c *Context) (float64, error)
}

// Quantity sizes an order as a fixed number of units.
type Quantity float64

func (q Quantity) resolve(c *Context) (float64, error) {
	return float64(q), nil
}

// PercentOfEquity invests the given percent (0-100) of current equity,
// rounded down to whole units at the current close.
type PercentOfEquity float64

func (p PercentOfEquity) resolve(c *Context) (float64, error) {
	close := c.Close()
	if close <= 0 {
		return 0, errors.New(errors.ErrCodeNonPositiveQuantity, "close price must be positive for percent sizing")
	}

	target := c.Equity() * (float64(p) / 100.0)

	return math.Floor(target / close), nil
}

// RiskBased risks the given percent of equity over a stop distance: the
// quantity that loses RiskPct of equity if price moves StopDistance against
// the position.
type RiskBased struct {
	RiskPct      float64
	StopDistance float64
}

func (r RiskBased) resolve(c *Context) (float64, error) {
	if r.StopDistance <= 0 {
		return 0, errors.Newf(errors.ErrCodeUnknownSizing,
			"risk sizing requires a positive stop distance, got %f", r.StopDistance)
	}

	riskAmount := c.Equity() * (r.RiskPct / 100.0)

	return math.Floor(riskAmount / r.StopDistance), nil
}

// Context is the read-only view handed to the policy on each bar, plus the
// order submission surface. Orders submitted here can match no earlier than
// the next bar.
type Context struct {
	symbol   string
	bar      types.Bar
	barIndex int

	portfolio *Portfolio
	broker    *Broker
	registry  *indicator.Registry
}

// Symbol returns the instrument symbol.
func (c *Context) Symbol() string {
	return c.symbol
}

// Bar returns the current bar.
func (c *Context) Bar() types.Bar {
	return c.bar
}

// BarIndex returns the current bar index.
func (c *Context) BarIndex() int {
	return c.barIndex
}

// Time returns the current bar's timestamp.
func (c *Context) Time() time.Time {
	return c.bar.Time
}

// Close returns the current bar's close.
func (c *Context) Close() float64 {
	return c.bar.Close
}

// Cash returns the current cash balance.
func (c *Context) Cash() float64 {
	return c.portfolio.Cash()
}

// Equity returns cash plus position value at the current close.
func (c *Context) Equity() float64 {
	return c.portfolio.Equity(c.bar.Close)
}

// PositionQuantity returns the held quantity.
func (c *Context) PositionQuantity() float64 {
	return c.portfolio.Position().Quantity
}

// PositionAverageCost returns the net average entry price of the held
// position, zero when flat.
func (c *Context) PositionAverageCost() float64 {
	return c.portfolio.Position().AverageCost
}

// Indicator returns the current value of a registered indicator. None means
// the indicator has not warmed up; trading on it is the policy's error.
func (c *Context) Indicator(name string) (optional.Option[float64], error) {
	return c.registry.Value(name)
}

// SubmitBuy submits a market buy sized by the given sizing rule.
func (c *Context) SubmitBuy(sizing Sizing) error {
	qty, err := sizing.resolve(c)
	if err != nil {
		return err
	}

	return c.submit(types.SideBuy, types.OrderKindMarket, qty, optional.None[float64](), optional.None[float64]())
}

// SubmitSell submits a market sell. None sells the entire position.
func (c *Context) SubmitSell(quantity optional.Option[float64]) error {
	qty := quantity.TakeOr(c.PositionQuantity())

	return c.submit(types.SideSell, types.OrderKindMarket, qty, optional.None[float64](), optional.None[float64]())
}

// SubmitBuyLimit submits a buy limit order.
func (c *Context) SubmitBuyLimit(quantity float64, limitPrice float64) error {
	return c.submit(types.SideBuy, types.OrderKindLimit, quantity, optional.Some(limitPrice), optional.None[float64]())
}

// SubmitSellLimit submits a sell limit order.
func (c *Context) SubmitSellLimit(quantity float64, limitPrice float64) error {
	return c.submit(types.SideSell, types.OrderKindLimit, quantity, optional.Some(limitPrice), optional.None[float64]())
}

// SubmitBuyStop submits a buy stop order.
func (c *Context) SubmitBuyStop(quantity float64, stopPrice float64) error {
	return c.submit(types.SideBuy, types.OrderKindStop, quantity, optional.Some(stopPrice), optional.None[float64]())
}

// SubmitSellStop submits a sell stop order.
func (c *Context) SubmitSellStop(quantity float64, stopPrice float64) error {
	return c.submit(types.SideSell, types.OrderKindStop, quantity, optional.Some(stopPrice), optional.None[float64]())
}

func (c *Context) submit(side types.Side, kind types.OrderKind, quantity float64, limit, stop optional.Option[float64]) error {
	order := &types.Order{
		ID:            newOrderID(),
		Symbol:        c.symbol,
		Side:          side,
		Kind:          kind,
		Quantity:      quantity,
		SubmittedAt:   c.barIndex,
		SubmittedTime: c.bar.Time,
		Reason:        types.Reason{Reason: types.OrderReasonStrategy},
	}

	switch kind {
	case types.OrderKindLimit:
		order.LimitPrice = limit
	case types.OrderKindStop:
		order.StopPrice = stop
	case types.OrderKindMarket:
	}

	return c.broker.Submit(order)
}
