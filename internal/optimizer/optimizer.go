// Package optimizer runs grid search over strategy parameters. Every
// combination gets a fully isolated engine run; the runs share nothing but
// the immutable feed, so parallelism can never leak state between them.
package optimizer

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/marlinquant/backtester/internal/engine"
	"github.com/marlinquant/backtester/internal/feed"
	"github.com/marlinquant/backtester/internal/logger"
	"github.com/marlinquant/backtester/internal/metrics"
	"github.com/marlinquant/backtester/internal/strategy"
	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/pkg/errors"
)

// sentinelScore ranks zero-trade and failed runs below every real run
// without ever producing a NaN.
const sentinelScore = -math.MaxFloat64

// OnProgressCallback is called after each combination finishes.
type OnProgressCallback func(done int, total int)

// Options controls ranking and parallelism.
type Options struct {
	// Metric ranks the runs; defaults to Sharpe ratio.
	Metric types.Metric
	// Secondary breaks ties; defaults to total return.
	Secondary types.Metric
	// Parallelism is the worker count; defaults to the CPU count.
	Parallelism int
	// OnProgress is called after each finished combination.
	OnProgress optional.Option[OnProgressCallback]
}

// Row is the outcome of one parameter combination. Err is set instead of a
// summary when the combination could not run; such rows rank last.
type Row struct {
	Index   int
	Params  map[string]float64
	Summary *types.Summary
	Score   float64
	Err     string
}

// Report is the ranked outcome of a sweep. Rows always number exactly
// grid.Size(); Best is the highest-ranked row that actually ran.
type Report struct {
	Metric types.Metric
	Rows   []Row
	Best   *Row
}

// Run executes the full Cartesian product of the grid over the given feed
// and returns the ranked report. Cancellation is cooperative: the context
// is checked between runs, never during one.
func Run(ctx context.Context, dataFeed *feed.Feed, spec strategy.Spec, engineCfg engine.Config, grid Grid, opts Options, log *logger.Logger) (*Report, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	if opts.Metric == "" {
		opts.Metric = types.MetricSharpe
	}

	if opts.Secondary == "" {
		opts.Secondary = types.MetricTotalReturn
	}

	if _, ok := (&types.Summary{}).Value(opts.Metric); !ok {
		return nil, errors.Newf(errors.ErrCodeUnknownMetric, "unknown ranking metric %q", opts.Metric)
	}

	if _, ok := (&types.Summary{}).Value(opts.Secondary); !ok {
		return nil, errors.Newf(errors.ErrCodeUnknownMetric, "unknown secondary metric %q", opts.Secondary)
	}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	total := grid.Size()

	log.Debug("Starting sweep",
		zap.String("strategy", string(spec.Name)),
		zap.Int("combinations", total),
		zap.Int("parallelism", parallelism))

	jobs := make(chan int)
	results := make(chan Row)

	go func() {
		defer close(jobs)

		for i := 0; i < total; i++ {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	// Workers run engines with a silent logger; per-order noise from
	// hundreds of runs would drown the sweep-level log.
	runLog := logger.NewNopLogger()

	var wg sync.WaitGroup

	for w := 0; w < parallelism; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for idx := range jobs {
				if ctx.Err() != nil {
					return
				}

				results <- runCombination(idx, dataFeed, spec, engineCfg, grid, opts.Metric, runLog)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// Single aggregator: rows are collected here and nowhere else.
	rows := make([]Row, 0, total)

	for row := range results {
		rows = append(rows, row)

		if opts.OnProgress.IsSome() {
			opts.OnProgress.Unwrap()(len(rows), total)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCancelled, "sweep cancelled", err)
	}

	rank(rows, opts.Secondary)

	report := &Report{Metric: opts.Metric, Rows: rows}

	for i := range rows {
		if rows[i].Err == "" {
			report.Best = &rows[i]

			break
		}
	}

	return report, nil
}

// runCombination executes one isolated engine run and scores it. Failures
// become error rows rather than aborting the sweep, so the report always
// covers the full product.
func runCombination(idx int, dataFeed *feed.Feed, spec strategy.Spec, engineCfg engine.Config, grid Grid, metric types.Metric, log *logger.Logger) Row {
	params := grid.Combination(idx)

	merged := make(map[string]float64, len(spec.Params)+len(params))
	for k, v := range spec.Params {
		merged[k] = v
	}

	for k, v := range params {
		merged[k] = v
	}

	row := Row{Index: idx, Params: params, Score: sentinelScore}

	policy, err := strategy.Spec{Name: spec.Name, Params: merged}.Build()
	if err != nil {
		row.Err = err.Error()

		return row
	}

	eng, err := engine.New(engineCfg, dataFeed, policy, log)
	if err != nil {
		row.Err = err.Error()

		return row
	}

	result, err := eng.Run(optional.None[engine.OnProcessDataCallback]())
	if err != nil {
		row.Err = err.Error()

		return row
	}

	row.Summary = metrics.Compute(result)

	// Zero-trade runs keep the sentinel: a run that never traded must not
	// outrank one that did.
	if row.Summary.NumTrades > 0 {
		if v, ok := row.Summary.Value(metric); ok {
			row.Score = v
		}
	}

	return row
}

// rank sorts best-first: score, then the secondary metric, then the stable
// combination index so equal runs always order the same way.
func rank(rows []Row, secondary types.Metric) {
	secondaryScore := func(row Row) float64 {
		if row.Summary == nil || row.Summary.NumTrades == 0 {
			return sentinelScore
		}

		v, ok := row.Summary.Value(secondary)
		if !ok {
			return sentinelScore
		}

		return v
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}

		si, sj := secondaryScore(rows[i]), secondaryScore(rows[j])
		if si != sj {
			return si > sj
		}

		return rows[i].Index < rows[j].Index
	})
}
