package types

import (
	"time"
)

// Trade is a closed round trip assembled when a position fully or partially
// exits. Read-only after creation. Entry price is the net (cost-inclusive)
// average entry price; partial exits produce one Trade per exit fill.
type Trade struct {
	EntryTime  time.Time     `yaml:"entry_time" json:"entry_time" csv:"entry_time"`
	ExitTime   time.Time     `yaml:"exit_time" json:"exit_time" csv:"exit_time"`
	EntryPrice float64       `yaml:"entry_price" json:"entry_price" csv:"entry_price"`
	ExitPrice  float64       `yaml:"exit_price" json:"exit_price" csv:"exit_price"`
	Quantity   float64       `yaml:"quantity" json:"quantity" csv:"quantity"`
	PnL        float64       `yaml:"pnl" json:"pnl" csv:"pnl"`
	PnLPct     float64       `yaml:"pnl_pct" json:"pnl_pct" csv:"pnl_pct"`
	Duration   time.Duration `yaml:"duration" json:"duration" csv:"duration"`
}

// EquityPoint is one row of the per-bar equity table. Drawdown is the
// fractional decline from the running equity peak, always <= 0.
type EquityPoint struct {
	Time        time.Time `yaml:"time" json:"time" csv:"time"`
	Equity      float64   `yaml:"equity" json:"equity" csv:"equity"`
	Cash        float64   `yaml:"cash" json:"cash" csv:"cash"`
	MarketValue float64   `yaml:"market_value" json:"market_value" csv:"market_value"`
	Drawdown    float64   `yaml:"drawdown" json:"drawdown" csv:"drawdown"`
}
