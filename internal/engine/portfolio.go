package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/marlinquant/backtester/internal/types"
)

// Position is the single long position of a run. AverageCost is the net
// per-unit entry price including commission and slippage; accounting is
// deliberately average-cost rather than lot-level, so a partial exit
// realizes PnL against the blended entry price.
type Position struct {
	Symbol      string
	Quantity    float64
	AverageCost float64
	EntryTime   time.Time
}

// Portfolio is the authoritative cash, position and equity state of one
// engine run. It is mutated exclusively through ApplyFill and Snapshot, and
// is owned by a single run from construction to export.
type Portfolio struct {
	initialCash float64
	cash        float64
	position    Position
	realizedPnL float64
	totalFees   float64

	equity []types.EquityPoint
	trades []types.Trade
	peak   float64
}

// NewPortfolio creates a portfolio with the given starting cash.
func NewPortfolio(symbol string, initialCash float64) *Portfolio {
	return &Portfolio{
		initialCash: initialCash,
		cash:        initialCash,
		position:    Position{Symbol: symbol},
		peak:        initialCash,
	}
}

// ApplyFill applies a fill. Buys deduct the all-in cost and blend the net
// price into the average cost; sells credit net proceeds and close a Trade
// against the blended entry price. The broker has already guaranteed the
// fill is affordable and within the held quantity.
func (p *Portfolio) ApplyFill(fill types.Fill) {
	p.totalFees += fill.Commission + fill.Slippage

	if fill.Side == types.SideBuy {
		p.applyBuy(fill)

		return
	}

	p.applySell(fill)
}

func (p *Portfolio) applyBuy(fill types.Fill) {
	p.cash -= fill.TotalCost()

	if p.position.Quantity == 0 {
		p.position.Quantity = fill.Quantity
		p.position.AverageCost = fill.NetPrice()
		p.position.EntryTime = fill.Time

		return
	}

	// Blend the new net price into the running average cost.
	held := decimal.NewFromFloat(p.position.Quantity)
	added := decimal.NewFromFloat(fill.Quantity)
	totalCost := held.Mul(decimal.NewFromFloat(p.position.AverageCost)).
		Add(added.Mul(decimal.NewFromFloat(fill.NetPrice())))

	p.position.Quantity += fill.Quantity
	p.position.AverageCost, _ = totalCost.Div(held.Add(added)).Float64()
}

func (p *Portfolio) applySell(fill types.Fill) {
	p.cash += fill.NetProceeds()

	entry := decimal.NewFromFloat(p.position.AverageCost)
	exit := decimal.NewFromFloat(fill.Price)
	qty := decimal.NewFromFloat(fill.Quantity)

	pnl, _ := exit.Sub(entry).Mul(qty).Float64()

	var pnlPct float64
	if p.position.AverageCost != 0 {
		pnlPct, _ = exit.Div(entry).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).Float64()
	}

	p.realizedPnL += pnl
	p.trades = append(p.trades, types.Trade{
		EntryTime:  p.position.EntryTime,
		ExitTime:   fill.Time,
		EntryPrice: p.position.AverageCost,
		ExitPrice:  fill.Price,
		Quantity:   fill.Quantity,
		PnL:        pnl,
		PnLPct:     pnlPct,
		Duration:   fill.Time.Sub(p.position.EntryTime),
	})

	p.position.Quantity -= fill.Quantity
	if p.position.Quantity == 0 {
		p.position.AverageCost = 0
		p.position.EntryTime = time.Time{}
	}
}

// MarketValue returns the position value at the given price.
func (p *Portfolio) MarketValue(price float64) float64 {
	if p.position.Quantity <= 0 {
		return 0
	}

	return p.position.Quantity * price
}

// Equity returns cash plus position value at the given price.
func (p *Portfolio) Equity(price float64) float64 {
	return p.cash + p.MarketValue(price)
}

// Snapshot appends an equity point valued at the bar's close. Drawdown is
// measured against the running equity peak.
func (p *Portfolio) Snapshot(bar types.Bar) {
	equity := p.Equity(bar.Close)

	if equity > p.peak {
		p.peak = equity
	}

	var drawdown float64
	if p.peak > 0 {
		drawdown = (equity - p.peak) / p.peak
	}

	p.equity = append(p.equity, types.EquityPoint{
		Time:        bar.Time,
		Equity:      equity,
		Cash:        p.cash,
		MarketValue: p.MarketValue(bar.Close),
		Drawdown:    drawdown,
	})
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() float64 {
	return p.cash
}

// InitialCash returns the starting capital.
func (p *Portfolio) InitialCash() float64 {
	return p.initialCash
}

// Position returns the current position.
func (p *Portfolio) Position() Position {
	return p.position
}

// RealizedPnL returns the cumulative realized profit and loss.
func (p *Portfolio) RealizedPnL() float64 {
	return p.realizedPnL
}

// TotalFees returns the cumulative commission and slippage paid.
func (p *Portfolio) TotalFees() float64 {
	return p.totalFees
}

// EquityHistory returns the per-bar equity points recorded so far.
func (p *Portfolio) EquityHistory() []types.EquityPoint {
	return p.equity
}

// Trades returns the closed trades recorded so far.
func (p *Portfolio) Trades() []types.Trade {
	return p.trades
}
