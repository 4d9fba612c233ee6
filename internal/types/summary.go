package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Summary holds the scalar performance figures of a single run.
//
// Sentinel conventions (never NaN):
//   - SharpeRatio and SortinoRatio are 0 when the return variance (or
//     downside variance) is zero or there are fewer than two returns.
//   - ProfitFactor is 0 when there are no losing trades, matching the
//     zero-trade case, so that ranking by profit factor stays total.
type Summary struct {
	// ID is the unique identifier for this run.
	ID string `yaml:"id" json:"id"`
	// Timestamp is when this run was executed.
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	// Symbol of the instrument traded.
	Symbol string `yaml:"symbol" json:"symbol"`

	StartDate    time.Time `yaml:"start_date" json:"start_date"`
	EndDate      time.Time `yaml:"end_date" json:"end_date"`
	DurationDays int       `yaml:"duration_days" json:"duration_days"`

	InitialEquity  float64 `yaml:"initial_equity" json:"initial_equity"`
	FinalEquity    float64 `yaml:"final_equity" json:"final_equity"`
	TotalReturnPct float64 `yaml:"total_return_pct" json:"total_return_pct"`
	CAGRPct        float64 `yaml:"cagr_pct" json:"cagr_pct"`
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct" json:"max_drawdown_pct"`
	SharpeRatio    float64 `yaml:"sharpe_ratio" json:"sharpe_ratio"`
	SortinoRatio   float64 `yaml:"sortino_ratio" json:"sortino_ratio"`

	NumTrades    int     `yaml:"num_trades" json:"num_trades"`
	NumWins      int     `yaml:"num_wins" json:"num_wins"`
	NumLosses    int     `yaml:"num_losses" json:"num_losses"`
	WinRatePct   float64 `yaml:"win_rate_pct" json:"win_rate_pct"`
	AvgWin       float64 `yaml:"avg_win" json:"avg_win"`
	AvgWinPct    float64 `yaml:"avg_win_pct" json:"avg_win_pct"`
	AvgLoss      float64 `yaml:"avg_loss" json:"avg_loss"`
	AvgLossPct   float64 `yaml:"avg_loss_pct" json:"avg_loss_pct"`
	ProfitFactor float64 `yaml:"profit_factor" json:"profit_factor"`
	ExposurePct  float64 `yaml:"exposure_pct" json:"exposure_pct"`
	TotalFees    float64 `yaml:"total_fees" json:"total_fees"`

	// Annotation counts surfaced from the run log.
	RejectedOrders  int `yaml:"rejected_orders" json:"rejected_orders"`
	CancelledOrders int `yaml:"cancelled_orders" json:"cancelled_orders"`
}

// Metric is a selectable scalar used for ranking runs.
type Metric string

const (
	MetricSharpe       Metric = "sharpe_ratio"
	MetricSortino      Metric = "sortino_ratio"
	MetricCAGR         Metric = "cagr_pct"
	MetricTotalReturn  Metric = "total_return_pct"
	MetricProfitFactor Metric = "profit_factor"
	MetricMaxDrawdown  Metric = "max_drawdown_pct"
	MetricWinRate      Metric = "win_rate_pct"
	MetricTradeCount   Metric = "num_trades"
)

// AllMetrics enumerates every rankable metric, for schema export and flag
// validation.
var AllMetrics = []any{
	MetricSharpe,
	MetricSortino,
	MetricCAGR,
	MetricTotalReturn,
	MetricProfitFactor,
	MetricMaxDrawdown,
	MetricWinRate,
	MetricTradeCount,
}

// Value returns the summary field selected by the metric. Unknown metrics
// return false. MaxDrawdownPct is already negative, so its raw value keeps
// the bigger-is-better convention: a shallow drawdown outranks a deep one.
func (s *Summary) Value(m Metric) (float64, bool) {
	switch m {
	case MetricSharpe:
		return s.SharpeRatio, true
	case MetricSortino:
		return s.SortinoRatio, true
	case MetricCAGR:
		return s.CAGRPct, true
	case MetricTotalReturn:
		return s.TotalReturnPct, true
	case MetricProfitFactor:
		return s.ProfitFactor, true
	case MetricMaxDrawdown:
		return s.MaxDrawdownPct, true
	case MetricWinRate:
		return s.WinRatePct, true
	case MetricTradeCount:
		return float64(s.NumTrades), true
	default:
		return 0, false
	}
}

// WriteSummary writes a run summary as YAML.
func WriteSummary(path string, summary *Summary) error {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary to file: %w", err)
	}

	return nil
}
