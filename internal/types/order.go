package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/marlinquant/backtester/pkg/errors"
)

type Side string

type OrderKind string

type OrderStatus string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

const (
	OrderKindMarket OrderKind = "MARKET"
	OrderKindLimit  OrderKind = "LIMIT"
	OrderKindStop   OrderKind = "STOP"
)

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

const (
	OrderReasonStrategy         string = "strategy"
	OrderReasonExpired          string = "expired"
	OrderReasonInsufficientCash string = "insufficient_cash"
	OrderReasonOversell         string = "oversell"
	OrderReasonInvalidQuantity  string = "invalid_quantity"
)

// Reason annotates an order with why it was placed or why it reached a
// terminal status. Rejections and expiries surface here rather than as
// engine failures.
type Reason struct {
	Reason  string `yaml:"reason" json:"reason" csv:"reason"`
	Message string `yaml:"message" json:"message" csv:"message"`
}

// Order is created by a decision policy during bar SubmittedAt and may only
// transition to filled using data from a strictly later bar index.
type Order struct {
	ID       string    `yaml:"id" json:"id" csv:"id" validate:"required,uuid"`
	Symbol   string    `yaml:"symbol" json:"symbol" csv:"symbol" validate:"required"`
	Side     Side      `yaml:"side" json:"side" csv:"side" validate:"required,oneof=BUY SELL"`
	Kind     OrderKind `yaml:"kind" json:"kind" csv:"kind" validate:"required,oneof=MARKET LIMIT STOP"`
	Quantity float64   `yaml:"quantity" json:"quantity" csv:"quantity" validate:"required,gt=0"`
	// LimitPrice is required for LIMIT orders, absent otherwise.
	LimitPrice optional.Option[float64] `yaml:"limit_price" json:"limit_price" csv:"limit_price"`
	// StopPrice is required for STOP orders, absent otherwise.
	StopPrice optional.Option[float64] `yaml:"stop_price" json:"stop_price" csv:"stop_price"`
	// SubmittedAt is the bar index on which the policy placed the order.
	SubmittedAt int       `yaml:"submitted_at" json:"submitted_at" csv:"submitted_at" validate:"gte=0"`
	SubmittedTime time.Time `yaml:"submitted_time" json:"submitted_time" csv:"submitted_time"`
	// ExpireAfter is how many bars the order may stay pending before it is
	// cancelled. Zero means the engine default applies.
	ExpireAfter int         `yaml:"expire_after" json:"expire_after" csv:"expire_after" validate:"gte=0"`
	Status      OrderStatus `yaml:"status" json:"status" csv:"status"`
	Reason      Reason      `yaml:"reason" json:"reason" csv:"reason"`
}

// Validate validates the Order struct, including the kind/price pairing
// rules that struct tags cannot express.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	switch o.Kind {
	case OrderKindLimit:
		if o.LimitPrice.IsNone() {
			return errors.New(errors.ErrCodeInvalidOrder, "limit order requires a limit price")
		}

		if o.LimitPrice.Unwrap() <= 0 {
			return errors.Newf(errors.ErrCodeInvalidOrder, "limit price must be positive, got %f", o.LimitPrice.Unwrap())
		}
	case OrderKindStop:
		if o.StopPrice.IsNone() {
			return errors.New(errors.ErrCodeInvalidOrder, "stop order requires a stop price")
		}

		if o.StopPrice.Unwrap() <= 0 {
			return errors.Newf(errors.ErrCodeInvalidOrder, "stop price must be positive, got %f", o.StopPrice.Unwrap())
		}
	case OrderKindMarket:
	}

	return nil
}
