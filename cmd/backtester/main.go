// Command backtester runs event-driven backtests over OHLCV CSV data:
// single runs, parameter sweeps, walk-forward analysis, synthetic data
// generation and config schema export.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/moznion/go-optional"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/marlinquant/backtester/internal/config"
	"github.com/marlinquant/backtester/internal/engine"
	"github.com/marlinquant/backtester/internal/feed"
	"github.com/marlinquant/backtester/internal/ledger"
	"github.com/marlinquant/backtester/internal/logger"
	"github.com/marlinquant/backtester/internal/metrics"
	"github.com/marlinquant/backtester/internal/optimizer"
	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/internal/walkforward"
	"github.com/marlinquant/backtester/pkg/errors"
)

func main() {
	cmd := &cli.Command{
		Name:  "backtester",
		Usage: "Event-driven backtesting over daily OHLCV data",
		Commands: []*cli.Command{
			runCommand(),
			sweepCommand(),
			walkforwardCommand(),
			generateCommand(),
			schemaCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Aliases:  []string{"c"},
			Usage:    "Path to the YAML run configuration",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "data",
			Aliases:  []string{"d"},
			Usage:    "Path to the OHLCV CSV file",
			Required: true,
		},
	}
}

// loadRun reads the config and the data file it points at.
func loadRun(cmd *cli.Command, log *logger.Logger) (config.RunConfig, *feed.Feed, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return config.RunConfig{}, nil, err
	}

	dataFeed, err := feed.LoadCSV(cmd.String("data"), cfg.Symbol, cfg.StartTime, cfg.EndTime, log)
	if err != nil {
		return config.RunConfig{}, nil, err
	}

	return cfg, dataFeed, nil
}

func runCommand() *cli.Command {
	flags := append(configFlags(),
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Directory for the summary and CSV exports",
			Value:   "results",
		},
		&cli.StringFlag{
			Name:  "ledger",
			Usage: "Optional path for a DuckDB snapshot of the run ledger",
		},
	)

	return &cli.Command{
		Name:   "run",
		Usage:  "Run a single backtest",
		Flags:  flags,
		Action: runAction,
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	log, err := logger.NewLogger()
	if err != nil {
		return err
	}

	cfg, dataFeed, err := loadRun(cmd, log)
	if err != nil {
		return err
	}

	policy, err := cfg.Strategy.Build()
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg.EngineConfig(), dataFeed, policy, log)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(dataFeed.Len(),
		progressbar.OptionSetDescription("backtesting"),
		progressbar.OptionShowCount())

	callback := engine.OnProcessDataCallback(func(current int, total int) error {
		return bar.Add(1)
	})

	result, err := eng.Run(optional.Some(callback))
	if err != nil {
		return err
	}

	fmt.Println()

	summary := metrics.Compute(result)

	outputDir := cmd.String("output")
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	if err := types.WriteSummary(filepath.Join(outputDir, "summary.yaml"), summary); err != nil {
		return err
	}

	runLedger, err := ledger.New("", log)
	if err != nil {
		return err
	}
	defer runLedger.Close()

	if err := runLedger.Record(result); err != nil {
		return err
	}

	if err := runLedger.Export(outputDir); err != nil {
		return err
	}

	if snapshot := cmd.String("ledger"); snapshot != "" {
		if err := runLedger.Write(snapshot); err != nil {
			return err
		}
	}

	printSummary(summary)
	fmt.Printf("\nResults written to %s\n", outputDir)

	return nil
}

func printSummary(summary *types.Summary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "Period\t%s to %s (%d days)\n",
		summary.StartDate.Format("2006-01-02"), summary.EndDate.Format("2006-01-02"), summary.DurationDays)
	fmt.Fprintf(w, "Equity\t%.2f -> %.2f\n", summary.InitialEquity, summary.FinalEquity)
	fmt.Fprintf(w, "Total return\t%.2f%%\n", summary.TotalReturnPct)
	fmt.Fprintf(w, "CAGR\t%.2f%%\n", summary.CAGRPct)
	fmt.Fprintf(w, "Max drawdown\t%.2f%%\n", summary.MaxDrawdownPct)
	fmt.Fprintf(w, "Sharpe\t%.2f\n", summary.SharpeRatio)
	fmt.Fprintf(w, "Sortino\t%.2f\n", summary.SortinoRatio)
	fmt.Fprintf(w, "Trades\t%d (%.1f%% wins)\n", summary.NumTrades, summary.WinRatePct)
	fmt.Fprintf(w, "Profit factor\t%.2f\n", summary.ProfitFactor)
	fmt.Fprintf(w, "Exposure\t%.1f%%\n", summary.ExposurePct)
	fmt.Fprintf(w, "Fees paid\t%.2f\n", summary.TotalFees)
	fmt.Fprintf(w, "Rejected/cancelled orders\t%d/%d\n", summary.RejectedOrders, summary.CancelledOrders)

	w.Flush()
}

func sweepFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:     "param",
			Aliases:  []string{"p"},
			Usage:    "Grid axis as name=v1,v2,v3 (repeatable)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "metric",
			Usage: "Ranking metric",
			Value: string(types.MetricSharpe),
		},
		&cli.StringFlag{
			Name:  "secondary",
			Usage: "Tie-breaking metric",
			Value: string(types.MetricTotalReturn),
		},
		&cli.IntFlag{
			Name:  "parallelism",
			Usage: "Worker count (0 uses all CPUs)",
		},
	}
}

func sweepCommand() *cli.Command {
	flags := append(configFlags(), sweepFlags()...)
	flags = append(flags,
		&cli.IntFlag{
			Name:  "top",
			Usage: "Number of ranked rows to print",
			Value: 10,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Optional CSV path for the full ranked report",
		},
	)

	return &cli.Command{
		Name:   "sweep",
		Usage:  "Grid-search strategy parameters",
		Flags:  flags,
		Action: sweepAction,
	}
}

func sweepAction(ctx context.Context, cmd *cli.Command) error {
	log, err := logger.NewLogger()
	if err != nil {
		return err
	}

	cfg, dataFeed, err := loadRun(cmd, log)
	if err != nil {
		return err
	}

	grid, err := parseGrid(cmd.StringSlice("param"))
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(grid.Size(),
		progressbar.OptionSetDescription("sweeping"),
		progressbar.OptionShowCount())

	progress := optimizer.OnProgressCallback(func(done int, total int) {
		_ = bar.Add(1)
	})

	opts := optimizer.Options{
		Metric:      types.Metric(cmd.String("metric")),
		Secondary:   types.Metric(cmd.String("secondary")),
		Parallelism: int(cmd.Int("parallelism")),
		OnProgress:  optional.Some(progress),
	}

	report, err := optimizer.Run(ctx, dataFeed, cfg.Strategy, cfg.EngineConfig(), grid, opts, log)
	if err != nil {
		return err
	}

	fmt.Println()
	printSweep(report, grid, int(cmd.Int("top")))

	if path := cmd.String("output"); path != "" {
		if err := writeSweepCSV(path, report, grid); err != nil {
			return err
		}

		fmt.Printf("\nFull report written to %s\n", path)
	}

	return nil
}

func printSweep(report *optimizer.Report, grid optimizer.Grid, top int) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	header := []string{"rank"}
	for _, axis := range grid.Axes {
		header = append(header, axis.Name)
	}

	header = append(header, string(report.Metric), "trades", "error")
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for rank, row := range report.Rows {
		if rank >= top {
			break
		}

		fields := []string{strconv.Itoa(rank + 1)}
		for _, axis := range grid.Axes {
			fields = append(fields, formatParam(row.Params[axis.Name]))
		}

		switch {
		case row.Err != "":
			fields = append(fields, "-", "-", row.Err)
		default:
			metric, _ := row.Summary.Value(report.Metric)
			fields = append(fields, fmt.Sprintf("%.4f", metric), strconv.Itoa(row.Summary.NumTrades), "")
		}

		fmt.Fprintln(w, strings.Join(fields, "\t"))
	}

	w.Flush()

	if report.Best != nil {
		fmt.Printf("\nBest: %s (score %.4f)\n", formatParams(report.Best.Params), report.Best.Score)
	}
}

func writeSweepCSV(path string, report *optimizer.Report, grid optimizer.Grid) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"rank"}
	for _, axis := range grid.Axes {
		header = append(header, axis.Name)
	}

	header = append(header, "score", "total_return_pct", "cagr_pct", "max_drawdown_pct",
		"sharpe_ratio", "num_trades", "error")

	if err := writer.Write(header); err != nil {
		return err
	}

	for rank, row := range report.Rows {
		record := []string{strconv.Itoa(rank + 1)}
		for _, axis := range grid.Axes {
			record = append(record, formatParam(row.Params[axis.Name]))
		}

		if row.Err != "" {
			record = append(record, "", "", "", "", "", "0", row.Err)
		} else {
			record = append(record,
				fmt.Sprintf("%.6f", row.Score),
				fmt.Sprintf("%.4f", row.Summary.TotalReturnPct),
				fmt.Sprintf("%.4f", row.Summary.CAGRPct),
				fmt.Sprintf("%.4f", row.Summary.MaxDrawdownPct),
				fmt.Sprintf("%.4f", row.Summary.SharpeRatio),
				strconv.Itoa(row.Summary.NumTrades),
				"")
		}

		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()

	return writer.Error()
}

func walkforwardCommand() *cli.Command {
	flags := append(configFlags(), sweepFlags()...)
	flags = append(flags,
		&cli.IntFlag{
			Name:     "train",
			Usage:    "Training window length in bars",
			Required: true,
		},
		&cli.IntFlag{
			Name:     "test",
			Usage:    "Out-of-sample window length in bars",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "step",
			Usage: "Roll distance in bars (0 uses the test length)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Directory for the stitched equity curve and window report",
			Value:   "walkforward",
		},
	)

	return &cli.Command{
		Name:   "walkforward",
		Usage:  "Walk-forward analysis: optimize in sample, evaluate out of sample",
		Flags:  flags,
		Action: walkforwardAction,
	}
}

func walkforwardAction(ctx context.Context, cmd *cli.Command) error {
	log, err := logger.NewLogger()
	if err != nil {
		return err
	}

	cfg, dataFeed, err := loadRun(cmd, log)
	if err != nil {
		return err
	}

	grid, err := parseGrid(cmd.StringSlice("param"))
	if err != nil {
		return err
	}

	wfCfg := walkforward.Config{
		TrainBars: int(cmd.Int("train")),
		TestBars:  int(cmd.Int("test")),
		Step:      int(cmd.Int("step")),
	}

	opts := optimizer.Options{
		Metric:      types.Metric(cmd.String("metric")),
		Secondary:   types.Metric(cmd.String("secondary")),
		Parallelism: int(cmd.Int("parallelism")),
	}

	report, err := walkforward.Run(ctx, dataFeed, cfg.Strategy, cfg.EngineConfig(), grid, wfCfg, opts, log)
	if err != nil {
		return err
	}

	printWalkforward(report)

	outputDir := cmd.String("output")
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	if err := writeEquityCSV(filepath.Join(outputDir, "stitched_equity.csv"), report.StitchedEquity); err != nil {
		return err
	}

	aggregate, err := yaml.Marshal(report.Aggregate)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(outputDir, "aggregate.yaml"), aggregate, 0644); err != nil {
		return err
	}

	fmt.Printf("\nResults written to %s\n", outputDir)

	return nil
}

func printWalkforward(report *walkforward.Report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "window\ttrain\ttest\tparams\ttrain score\toos return\toos sharpe\ttrades")

	for _, window := range report.Windows {
		if window.Skipped {
			fmt.Fprintf(w, "%d\t[%d,%d)\t[%d,%d)\tskipped: %s\t\t\t\t\n",
				window.Window.Index,
				window.Window.TrainStart, window.Window.TrainEnd,
				window.Window.TestStart, window.Window.TestEnd,
				window.SkipMessage)

			continue
		}

		fmt.Fprintf(w, "%d\t[%d,%d)\t[%d,%d)\t%s\t%.4f\t%.2f%%\t%.2f\t%d\n",
			window.Window.Index,
			window.Window.TrainStart, window.Window.TrainEnd,
			window.Window.TestStart, window.Window.TestEnd,
			formatParams(window.BestParams),
			window.TrainScore,
			window.OOS.TotalReturnPct,
			window.OOS.SharpeRatio,
			window.TradeCount)
	}

	w.Flush()

	agg := report.Aggregate
	fmt.Printf("\nAggregate over %d windows: CAGR %.2f%%, Sharpe %.2f, max DD %.2f%%, win rate %.1f%%, %d trades\n",
		agg.NumWindows, agg.AvgCAGRPct, agg.AvgSharpe, agg.AvgMaxDDPct, agg.AvgWinRate, agg.TotalTrades)
}

func writeEquityCSV(path string, points []types.EquityPoint) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"time", "equity", "cash", "market_value", "drawdown"}); err != nil {
		return err
	}

	for _, point := range points {
		record := []string{
			point.Time.UTC().Format(time.RFC3339),
			fmt.Sprintf("%.4f", point.Equity),
			fmt.Sprintf("%.4f", point.Cash),
			fmt.Sprintf("%.4f", point.MarketValue),
			fmt.Sprintf("%.6f", point.Drawdown),
		}

		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()

	return writer.Error()
}

func generateCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Generate a deterministic synthetic OHLCV CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "symbol",
				Aliases: []string{"s"},
				Usage:   "Symbol to stamp on the generated series",
				Value:   "SYN",
			},
			&cli.IntFlag{
				Name:    "bars",
				Aliases: []string{"n"},
				Usage:   "Number of daily bars",
				Value:   500,
			},
			&cli.FloatFlag{
				Name:  "start-price",
				Usage: "Price of the first bar",
				Value: 100,
			},
			&cli.TimestampFlag{
				Name:  "start",
				Usage: "Date of the first bar in `YYYY-MM-DD` format",
				Value: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
			},
			&cli.FloatFlag{
				Name:  "drift",
				Usage: "Mean daily log return",
				Value: 0.0003,
			},
			&cli.FloatFlag{
				Name:  "volatility",
				Usage: "Daily log return standard deviation",
				Value: 0.015,
			},
			&cli.IntFlag{
				Name:  "seed",
				Usage: "Random seed",
				Value: 42,
			},
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    "Path of the CSV to write",
				Required: true,
			},
		},
		Action: generateAction,
	}
}

func generateAction(ctx context.Context, cmd *cli.Command) error {
	genCfg := feed.GenerateConfig{
		Symbol:     cmd.String("symbol"),
		NumBars:    int(cmd.Int("bars")),
		StartPrice: cmd.Float("start-price"),
		Start:      cmd.Timestamp("start"),
		Drift:      cmd.Float("drift"),
		Volatility: cmd.Float("volatility"),
		Seed:       int64(cmd.Int("seed")),
	}

	dataFeed, err := feed.Generate(genCfg)
	if err != nil {
		return err
	}

	path := cmd.String("output")
	if err := dataFeed.WriteCSV(path); err != nil {
		return err
	}

	fmt.Printf("Wrote %d bars for %s to %s\n", dataFeed.Len(), dataFeed.Symbol(), path)

	return nil
}

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Print the JSON schema of the run configuration",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the schema to a file instead of stdout",
			},
		},
		Action: schemaAction,
	}
}

func schemaAction(ctx context.Context, cmd *cli.Command) error {
	cfg := config.Default()

	schema, err := cfg.GenerateSchemaJSON()
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		return os.WriteFile(path, []byte(schema), 0644)
	}

	fmt.Println(schema)

	return nil
}

// parseGrid turns repeated name=v1,v2,v3 arguments into a grid.
func parseGrid(args []string) (optimizer.Grid, error) {
	var grid optimizer.Grid

	for _, arg := range args {
		name, list, found := strings.Cut(arg, "=")
		if !found || name == "" {
			return grid, errors.Newf(errors.ErrCodeInvalidParameter,
				"expected name=v1,v2,..., got %q", arg)
		}

		var values []float64

		for _, raw := range strings.Split(list, ",") {
			value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return grid, errors.Wrapf(errors.ErrCodeInvalidParameter, err,
					"bad value %q for axis %s", raw, name)
			}

			values = append(values, value)
		}

		grid.Axes = append(grid.Axes, optimizer.Axis{Name: strings.TrimSpace(name), Values: values})
	}

	return grid, nil
}

func formatParam(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatParams(params map[string]float64) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}

	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, formatParam(params[name])))
	}

	return strings.Join(parts, " ")
}
