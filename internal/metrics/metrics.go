// Package metrics reduces a finished run to its scalar performance
// figures. Every figure is defined for every run, including zero-trade
// runs; sentinels replace undefined ratios so downstream ranking never
// sees a NaN.
package metrics

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/marlinquant/backtester/internal/engine"
	"github.com/marlinquant/backtester/internal/types"
)

const (
	daysPerYear        = 365.25
	tradingDaysPerYear = 252
)

// Compute builds the summary of a finished run from its equity history and
// trade ledger.
func Compute(result *engine.Result) *types.Summary {
	summary := &types.Summary{
		ID:              uuid.New().String(),
		Timestamp:       time.Now().UTC(),
		Symbol:          result.Symbol,
		InitialEquity:   result.InitialCash,
		FinalEquity:     result.InitialCash,
		TotalFees:       result.TotalFees,
		RejectedOrders:  result.Rejected,
		CancelledOrders: result.Cancelled,
	}

	history := result.EquityHistory
	if len(history) == 0 {
		return summary
	}

	summary.FinalEquity = history[len(history)-1].Equity
	summary.StartDate = history[0].Time
	summary.EndDate = history[len(history)-1].Time

	days := summary.EndDate.Sub(summary.StartDate).Hours() / 24
	summary.DurationDays = int(days)

	if result.InitialCash > 0 {
		summary.TotalReturnPct = (summary.FinalEquity/result.InitialCash - 1) * 100
	}

	years := days / daysPerYear
	if years > 0 && result.InitialCash > 0 && summary.FinalEquity > 0 {
		summary.CAGRPct = (math.Pow(summary.FinalEquity/result.InitialCash, 1/years) - 1) * 100
	}

	summary.MaxDrawdownPct = maxDrawdownPct(history)

	returns := barReturns(history)
	summary.SharpeRatio = sharpe(returns)
	summary.SortinoRatio = sortino(returns)

	applyTradeStats(summary, result.Trades)
	summary.ExposurePct = exposurePct(history)

	return summary
}

// barReturns is the bar-over-bar fractional change of equity.
func barReturns(history []types.EquityPoint) []float64 {
	var returns []float64

	for i := 1; i < len(history); i++ {
		prev := history[i-1].Equity
		if prev == 0 {
			continue
		}

		returns = append(returns, history[i].Equity/prev-1)
	}

	return returns
}

func maxDrawdownPct(history []types.EquityPoint) float64 {
	var minDD float64

	for _, point := range history {
		if point.Drawdown < minDD {
			minDD = point.Drawdown
		}
	}

	return minDD * 100
}

// sharpe annualizes mean over sample standard deviation by sqrt(252),
// assuming daily bars. Zero variance or fewer than two returns resolve
// to 0.
func sharpe(returns []float64) float64 {
	mean, std := meanStd(returns)
	if std == 0 {
		return 0
	}

	return mean / std * math.Sqrt(tradingDaysPerYear)
}

// sortino divides by the sample standard deviation of negative returns
// only. Without at least two losing bars the downside deviation is
// undefined and the ratio resolves to 0.
func sortino(returns []float64) float64 {
	mean, _ := meanStd(returns)

	var downside []float64

	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}

	_, downsideStd := meanStd(downside)
	if downsideStd == 0 {
		return 0
	}

	return mean / downsideStd * math.Sqrt(tradingDaysPerYear)
}

// meanStd returns the mean and sample standard deviation. Fewer than two
// samples yield a zero deviation.
func meanStd(samples []float64) (float64, float64) {
	if len(samples) == 0 {
		return 0, 0
	}

	var sum float64
	for _, v := range samples {
		sum += v
	}

	mean := sum / float64(len(samples))

	if len(samples) < 2 {
		return mean, 0
	}

	var sqSum float64
	for _, v := range samples {
		d := v - mean
		sqSum += d * d
	}

	return mean, math.Sqrt(sqSum / float64(len(samples)-1))
}

func applyTradeStats(summary *types.Summary, trades []types.Trade) {
	summary.NumTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	var (
		winPnL, winPct   float64
		lossPnL, lossPct float64
		grossProfit      float64
		grossLoss        float64
	)

	for _, trade := range trades {
		switch {
		case trade.PnL > 0:
			summary.NumWins++
			winPnL += trade.PnL
			winPct += trade.PnLPct
			grossProfit += trade.PnL
		case trade.PnL < 0:
			summary.NumLosses++
			lossPnL += trade.PnL
			lossPct += trade.PnLPct
			grossLoss += -trade.PnL
		}
	}

	summary.WinRatePct = float64(summary.NumWins) / float64(len(trades)) * 100

	if summary.NumWins > 0 {
		summary.AvgWin = winPnL / float64(summary.NumWins)
		summary.AvgWinPct = winPct / float64(summary.NumWins)
	}

	if summary.NumLosses > 0 {
		summary.AvgLoss = lossPnL / float64(summary.NumLosses)
		summary.AvgLossPct = lossPct / float64(summary.NumLosses)
	}

	if grossLoss > 0 {
		summary.ProfitFactor = grossProfit / grossLoss
	}
}

func exposurePct(history []types.EquityPoint) float64 {
	if len(history) == 0 {
		return 0
	}

	inMarket := 0

	for _, point := range history {
		if point.MarketValue > 0 {
			inMarket++
		}
	}

	return float64(inMarket) / float64(len(history)) * 100
}
