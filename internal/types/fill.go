package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is the realized execution of an order. Immutable once created; the
// price always comes from the OHLC of the bar at BarIndex, which is strictly
// after the bar the order was submitted on.
type Fill struct {
	OrderID  string  `yaml:"order_id" json:"order_id" csv:"order_id"`
	Symbol   string  `yaml:"symbol" json:"symbol" csv:"symbol"`
	Side     Side    `yaml:"side" json:"side" csv:"side"`
	Price    float64 `yaml:"price" json:"price" csv:"price"`
	Quantity float64 `yaml:"quantity" json:"quantity" csv:"quantity"`
	// Commission and Slippage are both non-negative cash costs; they never
	// improve the effective price.
	Commission float64   `yaml:"commission" json:"commission" csv:"commission"`
	Slippage   float64   `yaml:"slippage" json:"slippage" csv:"slippage"`
	BarIndex   int       `yaml:"bar_index" json:"bar_index" csv:"bar_index"`
	Time       time.Time `yaml:"time" json:"time" csv:"time"`
}

// Gross returns price * quantity before costs.
func (f *Fill) Gross() float64 {
	gross, _ := decimal.NewFromFloat(f.Price).Mul(decimal.NewFromFloat(f.Quantity)).Float64()

	return gross
}

// TotalCost returns the full cash outflow of a buy fill: gross notional
// plus commission plus slippage.
func (f *Fill) TotalCost() float64 {
	return f.Gross() + f.Commission + f.Slippage
}

// NetProceeds returns the cash inflow of a sell fill: gross notional minus
// commission minus slippage.
func (f *Fill) NetProceeds() float64 {
	return f.Gross() - f.Commission - f.Slippage
}

// NetPrice returns the effective per-unit price including all costs. Costs
// raise the net price of buys and lower the net price of sells.
func (f *Fill) NetPrice() float64 {
	if f.Quantity <= 0 {
		return 0
	}

	if f.Side == SideBuy {
		return f.TotalCost() / f.Quantity
	}

	return f.NetProceeds() / f.Quantity
}
