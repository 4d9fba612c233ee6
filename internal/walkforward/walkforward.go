// Package walkforward validates a strategy out of sample: optimize on a
// training window, run the winning parameters on the untouched test window
// that follows, roll forward, and stitch the test segments together. The
// test windows never overlap a training window, so every stitched equity
// point is strictly out of sample.
package walkforward

import (
	"context"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/marlinquant/backtester/internal/engine"
	"github.com/marlinquant/backtester/internal/feed"
	"github.com/marlinquant/backtester/internal/logger"
	"github.com/marlinquant/backtester/internal/metrics"
	"github.com/marlinquant/backtester/internal/optimizer"
	"github.com/marlinquant/backtester/internal/strategy"
	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/pkg/errors"
)

// Config sizes the rolling windows in bars.
type Config struct {
	// TrainBars is the training window length.
	TrainBars int `yaml:"train_bars" json:"train_bars" validate:"gt=0"`
	// TestBars is the out-of-sample window length.
	TestBars int `yaml:"test_bars" json:"test_bars" validate:"gt=0"`
	// Step is how far the window rolls each iteration. Zero defaults to
	// TestBars, which yields contiguous, non-overlapping test segments.
	Step int `yaml:"step,omitempty" json:"step,omitempty" validate:"gte=0"`
}

// Window is one train/test split, expressed as half-open bar ranges of the
// parent feed.
type Window struct {
	Index      int
	TrainStart int
	TrainEnd   int
	TestStart  int
	TestEnd    int
}

// WindowResult is the outcome of one window: the parameters chosen on the
// training range and the summary of the single out-of-sample run.
type WindowResult struct {
	Window      Window
	BestParams  map[string]float64
	TrainScore  float64
	OOS         *types.Summary
	OOSEquity   []types.EquityPoint
	TradeCount  int
	Skipped     bool
	SkipMessage string
}

// Aggregate averages the per-window out-of-sample summaries.
type Aggregate struct {
	NumWindows  int     `yaml:"num_windows" json:"num_windows"`
	AvgCAGRPct  float64 `yaml:"avg_cagr_pct" json:"avg_cagr_pct"`
	AvgSharpe   float64 `yaml:"avg_sharpe" json:"avg_sharpe"`
	AvgMaxDDPct float64 `yaml:"avg_max_dd_pct" json:"avg_max_dd_pct"`
	AvgWinRate  float64 `yaml:"avg_win_rate_pct" json:"avg_win_rate_pct"`
	TotalTrades int     `yaml:"total_trades" json:"total_trades"`
}

// Report is the full walk-forward outcome.
type Report struct {
	Windows        []WindowResult
	StitchedEquity []types.EquityPoint
	Aggregate      Aggregate
}

// Plan validates the config against the feed length and lays out the
// windows. Validation failures are fatal and happen before any run starts.
func Plan(cfg Config, feedLen int) ([]Window, error) {
	if cfg.TrainBars <= 0 || cfg.TestBars <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidWindowConfig,
			"train and test lengths must be positive, got train=%d test=%d", cfg.TrainBars, cfg.TestBars)
	}

	if cfg.Step < 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidWindowConfig, "step must not be negative, got %d", cfg.Step)
	}

	step := cfg.Step
	if step == 0 {
		step = cfg.TestBars
	}

	if cfg.TrainBars+cfg.TestBars > feedLen {
		return nil, errors.Newf(errors.ErrCodeWindowTooLarge,
			"need at least %d bars for one window, feed has %d", cfg.TrainBars+cfg.TestBars, feedLen)
	}

	var windows []Window

	for start := 0; start+cfg.TrainBars+cfg.TestBars <= feedLen; start += step {
		windows = append(windows, Window{
			Index:      len(windows),
			TrainStart: start,
			TrainEnd:   start + cfg.TrainBars,
			TestStart:  start + cfg.TrainBars,
			TestEnd:    start + cfg.TrainBars + cfg.TestBars,
		})
	}

	return windows, nil
}

// Run executes the walk-forward analysis: per window, a grid search on the
// training range picks parameters, then exactly one engine pass runs them
// on the test range.
func Run(ctx context.Context, dataFeed *feed.Feed, spec strategy.Spec, engineCfg engine.Config, grid optimizer.Grid, cfg Config, opts optimizer.Options, log *logger.Logger) (*Report, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	windows, err := Plan(cfg, dataFeed.Len())
	if err != nil {
		return nil, err
	}

	log.Info("Starting walk-forward analysis",
		zap.Int("windows", len(windows)),
		zap.Int("train_bars", cfg.TrainBars),
		zap.Int("test_bars", cfg.TestBars))

	report := &Report{}
	runLog := logger.NewNopLogger()

	for _, window := range windows {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(errors.ErrCodeCancelled, "walk-forward cancelled", err)
		}

		result, err := runWindow(ctx, dataFeed, spec, engineCfg, grid, window, opts, runLog)
		if err != nil {
			return nil, err
		}

		if result.Skipped {
			log.Warn("Window skipped",
				zap.Int("window", window.Index),
				zap.String("reason", result.SkipMessage))
		} else {
			report.StitchedEquity = append(report.StitchedEquity, result.OOSEquity...)
		}

		report.Windows = append(report.Windows, *result)
	}

	report.Aggregate = aggregate(report.Windows)

	return report, nil
}

func runWindow(ctx context.Context, dataFeed *feed.Feed, spec strategy.Spec, engineCfg engine.Config, grid optimizer.Grid, window Window, opts optimizer.Options, log *logger.Logger) (*WindowResult, error) {
	result := &WindowResult{Window: window}

	trainFeed, err := dataFeed.Window(window.TrainStart, window.TrainEnd)
	if err != nil {
		return nil, err
	}

	sweep, err := optimizer.Run(ctx, trainFeed, spec, engineCfg, grid, opts, log)
	if err != nil {
		return nil, err
	}

	// A window where no combination produced a valid run is skipped, not
	// fatal: the remaining windows still carry information.
	if sweep.Best == nil {
		result.Skipped = true
		result.SkipMessage = "no valid training run"

		return result, nil
	}

	result.BestParams = sweep.Best.Params
	result.TrainScore = sweep.Best.Score

	testFeed, err := dataFeed.Window(window.TestStart, window.TestEnd)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]float64, len(spec.Params)+len(sweep.Best.Params))
	for k, v := range spec.Params {
		merged[k] = v
	}

	for k, v := range sweep.Best.Params {
		merged[k] = v
	}

	policy, err := strategy.Spec{Name: spec.Name, Params: merged}.Build()
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(engineCfg, testFeed, policy, log)
	if err != nil {
		return nil, err
	}

	run, err := eng.Run(optional.None[engine.OnProcessDataCallback]())
	if err != nil {
		return nil, err
	}

	result.OOS = metrics.Compute(run)
	result.OOSEquity = run.EquityHistory
	result.TradeCount = result.OOS.NumTrades

	return result, nil
}

func aggregate(windows []WindowResult) Aggregate {
	var agg Aggregate

	for _, w := range windows {
		if w.Skipped || w.OOS == nil {
			continue
		}

		agg.NumWindows++
		agg.AvgCAGRPct += w.OOS.CAGRPct
		agg.AvgSharpe += w.OOS.SharpeRatio
		agg.AvgMaxDDPct += w.OOS.MaxDrawdownPct
		agg.AvgWinRate += w.OOS.WinRatePct
		agg.TotalTrades += w.OOS.NumTrades
	}

	if agg.NumWindows > 0 {
		n := float64(agg.NumWindows)
		agg.AvgCAGRPct /= n
		agg.AvgSharpe /= n
		agg.AvgMaxDDPct /= n
		agg.AvgWinRate /= n
	}

	return agg
}
