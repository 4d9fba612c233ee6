package engine

import (
	"math"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"

	"github.com/marlinquant/backtester/internal/engine/cost"
	"github.com/marlinquant/backtester/internal/types"
)

// ExecutionModel converts pending orders into fills using only the bar they
// are legally allowed to execute on. The caller guarantees the evaluation
// bar's index is strictly greater than the order's submission index; the
// model itself never sees any other bar.
type ExecutionModel struct {
	costs cost.Model
}

// NewExecutionModel creates an execution model with the given cost model.
func NewExecutionModel(costs cost.Model) *ExecutionModel {
	return &ExecutionModel{costs: costs}
}

// TryFill attempts to fill the order against the given bar. Market orders
// always fill at the open. Limit and stop orders fill only if the bar's
// range touches their trigger price; the fill price never beats the open.
func (e *ExecutionModel) TryFill(order *types.Order, bar types.Bar, barIndex int) optional.Option[types.Fill] {
	var price optional.Option[float64]

	switch order.Kind {
	case types.OrderKindMarket:
		price = optional.Some(bar.Open)
	case types.OrderKindLimit:
		price = limitFillPrice(order, bar)
	case types.OrderKindStop:
		price = stopFillPrice(order, bar)
	}

	if price.IsNone() {
		return optional.None[types.Fill]()
	}

	fillPrice := price.Unwrap()

	return optional.Some(types.Fill{
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Price:      fillPrice,
		Quantity:   order.Quantity,
		Commission: e.costs.Commission(fillPrice, order.Quantity),
		Slippage:   e.costs.Slippage(fillPrice, order.Quantity),
		BarIndex:   barIndex,
		Time:       bar.Time,
	})
}

// limitFillPrice fills a buy limit when the bar trades at or below the
// limit, at the better of limit and open. Sell limits are symmetric.
func limitFillPrice(order *types.Order, bar types.Bar) optional.Option[float64] {
	limit := order.LimitPrice.Unwrap()

	if order.Side == types.SideBuy {
		if bar.Low <= limit {
			return optional.Some(math.Min(limit, bar.Open))
		}

		return optional.None[float64]()
	}

	if bar.High >= limit {
		return optional.Some(math.Max(limit, bar.Open))
	}

	return optional.None[float64]()
}

// stopFillPrice fills a buy stop when the bar trades at or above the stop,
// at the worse of stop and open. Sell stops are symmetric.
func stopFillPrice(order *types.Order, bar types.Bar) optional.Option[float64] {
	stop := order.StopPrice.Unwrap()

	if order.Side == types.SideBuy {
		if bar.High >= stop {
			return optional.Some(math.Max(stop, bar.Open))
		}

		return optional.None[float64]()
	}

	if bar.Low <= stop {
		return optional.Some(math.Min(stop, bar.Open))
	}

	return optional.None[float64]()
}

// newOrderID mints the identifier assigned to orders at submission.
func newOrderID() string {
	return uuid.New().String()
}
