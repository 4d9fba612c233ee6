// Package engine runs the event-driven simulation: one bar at a time,
// matching yesterday's orders before today's decisions, so no component
// ever acts on a bar that has not closed.
package engine

import (
	"go.uber.org/zap"

	"github.com/moznion/go-optional"

	"github.com/marlinquant/backtester/internal/engine/cost"
	"github.com/marlinquant/backtester/internal/feed"
	"github.com/marlinquant/backtester/internal/indicator"
	"github.com/marlinquant/backtester/internal/logger"
	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/pkg/errors"
)

// State is the lifecycle of an engine. An engine runs exactly once.
type State string

const (
	StateInitialized State = "initialized"
	StateRunning     State = "running"
	StateFinished    State = "finished"
)

// OnProcessDataCallback is called after each bar is processed.
type OnProcessDataCallback func(current int, total int) error

// Config holds the execution assumptions of a single run.
type Config struct {
	InitialCash float64
	Costs       cost.Model
	// OrderExpiryBars is how many bars an order rests before cancellation
	// when the order does not specify its own expiry. Defaults to 1.
	OrderExpiryBars int
	AllowMargin     bool
}

// Result is the immutable output of a finished run.
type Result struct {
	Symbol        string
	PolicyName    string
	InitialCash   float64
	FinalEquity   float64
	TotalFees     float64
	Orders        []*types.Order
	Fills         []types.Fill
	Trades        []types.Trade
	EquityHistory []types.EquityPoint
	Rejected      int
	Cancelled     int
}

// Engine drives one policy over one feed. The per-bar cycle is strict:
// match pending orders against the new bar, update indicators, let the
// policy decide, then snapshot equity. Orders submitted during a bar are
// only eligible from the next bar onwards.
type Engine struct {
	state     State
	feed      *feed.Feed
	policy    Policy
	portfolio *Portfolio
	broker    *Broker
	registry  *indicator.Registry
	log       *logger.Logger
}

// New creates an engine wired to its own portfolio, broker and indicator
// registry. Nothing is shared between engines, so runs are isolated by
// construction.
func New(config Config, dataFeed *feed.Feed, policy Policy, log *logger.Logger) (*Engine, error) {
	if dataFeed == nil {
		return nil, errors.New(errors.ErrCodeEmptyFeed, "engine requires a feed")
	}

	if policy == nil {
		return nil, errors.New(errors.ErrCodeNoPolicy, "engine requires a policy")
	}

	if config.InitialCash <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "initial cash must be positive, got %f", config.InitialCash)
	}

	costs := config.Costs
	if costs == nil {
		costs = cost.NewFixedPlusPct(cost.DefaultConfig())
	}

	portfolio := NewPortfolio(dataFeed.Symbol(), config.InitialCash)
	exec := NewExecutionModel(costs)

	return &Engine{
		state:     StateInitialized,
		feed:      dataFeed,
		policy:    policy,
		portfolio: portfolio,
		broker:    NewBroker(portfolio, exec, config.OrderExpiryBars, config.AllowMargin, log),
		registry:  indicator.NewRegistry(),
		log:       log,
	}, nil
}

// Run executes the full simulation and returns the result. An engine can
// run only once; a second call is an error.
func (e *Engine) Run(onProcessData optional.Option[OnProcessDataCallback]) (*Result, error) {
	if e.state != StateInitialized {
		return nil, errors.Newf(errors.ErrCodeEngineReused, "engine already %s", e.state)
	}

	e.state = StateRunning

	e.log.Debug("Starting run",
		zap.String("symbol", e.feed.Symbol()),
		zap.String("policy", e.policy.Name()),
		zap.Int("bars", e.feed.Len()))

	if err := e.policy.OnStart(e.registry); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStrategyConfigError, "policy OnStart failed", err)
	}

	total := e.feed.Len()

	for i := 0; i < total; i++ {
		bar, err := e.feed.Bar(i)
		if err != nil {
			return nil, err
		}

		// Orders from earlier bars meet this bar's prices first.
		e.broker.Process(bar, i)

		e.registry.Update(bar)

		ctx := &Context{
			symbol:    e.feed.Symbol(),
			bar:       bar,
			barIndex:  i,
			portfolio: e.portfolio,
			broker:    e.broker,
			registry:  e.registry,
		}

		if err := e.policy.OnBar(ctx); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeStrategyConfigError, err, "policy OnBar failed at bar %d", i)
		}

		e.portfolio.Snapshot(bar)

		if onProcessData.IsSome() {
			if err := onProcessData.Unwrap()(i+1, total); err != nil {
				return nil, err
			}
		}
	}

	if err := e.policy.OnEnd(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStrategyConfigError, "policy OnEnd failed", err)
	}

	e.state = StateFinished

	history := e.portfolio.EquityHistory()
	finalEquity := e.portfolio.InitialCash()

	if len(history) > 0 {
		finalEquity = history[len(history)-1].Equity
	}

	e.log.Debug("Run finished",
		zap.Float64("final_equity", finalEquity),
		zap.Int("trades", len(e.portfolio.Trades())),
		zap.Int("rejected", e.broker.RejectedCount()),
		zap.Int("cancelled", e.broker.CancelledCount()))

	return &Result{
		Symbol:        e.feed.Symbol(),
		PolicyName:    e.policy.Name(),
		InitialCash:   e.portfolio.InitialCash(),
		FinalEquity:   finalEquity,
		TotalFees:     e.portfolio.TotalFees(),
		Orders:        e.broker.Orders(),
		Fills:         e.broker.Fills(),
		Trades:        e.portfolio.Trades(),
		EquityHistory: history,
		Rejected:      e.broker.RejectedCount(),
		Cancelled:     e.broker.CancelledCount(),
	}, nil
}

// State returns the engine lifecycle state.
func (e *Engine) State() State {
	return e.state
}
