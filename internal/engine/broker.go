package engine

import (
	"go.uber.org/zap"

	"github.com/marlinquant/backtester/internal/logger"
	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/pkg/errors"
)

// Broker owns the pending order book. Orders rest until their expiry bar
// and are matched one bar at a time; every terminal transition (filled,
// cancelled, rejected) is annotated with a reason instead of failing the
// run.
type Broker struct {
	portfolio   *Portfolio
	exec        *ExecutionModel
	expiryBars  int
	allowMargin bool
	log         *logger.Logger

	pending   []*types.Order
	orders    []*types.Order
	fills     []types.Fill
	rejected  int
	cancelled int
}

// NewBroker creates a broker. expiryBars is the default number of bars an
// order may rest before it is cancelled; orders can override it
// individually.
func NewBroker(portfolio *Portfolio, exec *ExecutionModel, expiryBars int, allowMargin bool, log *logger.Logger) *Broker {
	if expiryBars <= 0 {
		expiryBars = 1
	}

	return &Broker{
		portfolio:   portfolio,
		exec:        exec,
		expiryBars:  expiryBars,
		allowMargin: allowMargin,
		log:         log,
	}
}

// Submit validates and accepts an order into the pending book. Invalid
// quantity is a policy error: the order is recorded as rejected and an
// error is returned, but the run continues.
func (b *Broker) Submit(order *types.Order) error {
	if order.ID == "" {
		order.ID = newOrderID()
	}

	b.orders = append(b.orders, order)

	if order.Quantity <= 0 {
		b.reject(order, types.OrderReasonInvalidQuantity, "order quantity must be positive")

		return errors.Newf(errors.ErrCodeNonPositiveQuantity,
			"order quantity must be positive, got %f", order.Quantity)
	}

	if err := order.Validate(); err != nil {
		b.reject(order, types.OrderReasonInvalidQuantity, err.Error())

		return err
	}

	order.Status = types.OrderStatusPending
	b.pending = append(b.pending, order)

	return nil
}

// Process matches pending orders against the given bar. Only orders
// submitted on a strictly earlier bar are eligible; anything submitted on
// this bar rests until the next one.
func (b *Broker) Process(bar types.Bar, barIndex int) {
	remaining := b.pending[:0]

	for _, order := range b.pending {
		if order.SubmittedAt >= barIndex {
			remaining = append(remaining, order)

			continue
		}

		fill := b.exec.TryFill(order, bar, barIndex)

		if fill.IsSome() {
			if b.settle(order, fill.Unwrap()) {
				continue
			}

			// Guard rejection is terminal, not re-pended.
			continue
		}

		if barIndex-order.SubmittedAt >= b.orderExpiry(order) {
			order.Status = types.OrderStatusCancelled
			order.Reason = types.Reason{Reason: types.OrderReasonExpired, Message: "order expired unfilled"}
			b.cancelled++

			b.log.Debug("Order expired",
				zap.String("order_id", order.ID),
				zap.Int("submitted_at", order.SubmittedAt),
				zap.Int("bar_index", barIndex))

			continue
		}

		remaining = append(remaining, order)
	}

	b.pending = remaining
}

// settle applies liquidity guards and books the fill. Returns true if the
// fill was applied.
func (b *Broker) settle(order *types.Order, fill types.Fill) bool {
	if fill.Side == types.SideSell && fill.Quantity > b.portfolio.Position().Quantity {
		b.reject(order, types.OrderReasonOversell, "sell quantity exceeds held position")

		return false
	}

	if fill.Side == types.SideBuy && !b.allowMargin && fill.TotalCost() > b.portfolio.Cash() {
		b.reject(order, types.OrderReasonInsufficientCash, "buy cost exceeds available cash")

		return false
	}

	b.portfolio.ApplyFill(fill)
	order.Status = types.OrderStatusFilled
	b.fills = append(b.fills, fill)

	return true
}

func (b *Broker) reject(order *types.Order, reason string, message string) {
	order.Status = types.OrderStatusRejected
	order.Reason = types.Reason{Reason: reason, Message: message}
	b.rejected++

	b.log.Debug("Order rejected",
		zap.String("order_id", order.ID),
		zap.String("reason", reason),
		zap.String("message", message))
}

func (b *Broker) orderExpiry(order *types.Order) int {
	if order.ExpireAfter > 0 {
		return order.ExpireAfter
	}

	return b.expiryBars
}

// Orders returns every order ever submitted, in submission order.
func (b *Broker) Orders() []*types.Order {
	return b.orders
}

// Fills returns every fill, in execution order.
func (b *Broker) Fills() []types.Fill {
	return b.fills
}

// RejectedCount returns how many orders were rejected.
func (b *Broker) RejectedCount() int {
	return b.rejected
}

// CancelledCount returns how many orders expired unfilled.
func (b *Broker) CancelledCount() int {
	return b.cancelled
}
