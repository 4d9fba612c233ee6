// Package ledger persists the artifacts of a finished run — orders, fills,
// trades and the equity curve — into DuckDB. The ledger is written once,
// by a single writer, after the engine has finished; nothing touches it
// during the simulation loop.
package ledger

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/marlinquant/backtester/internal/engine"
	"github.com/marlinquant/backtester/internal/logger"
	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/pkg/errors"
)

var tables = []string{"orders", "fills", "trades", "equity"}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR,
		symbol VARCHAR,
		side VARCHAR,
		kind VARCHAR,
		quantity DOUBLE,
		limit_price DOUBLE,
		stop_price DOUBLE,
		submitted_at INTEGER,
		submitted_time TIMESTAMP,
		status VARCHAR,
		reason VARCHAR,
		message VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS fills (
		order_id VARCHAR,
		symbol VARCHAR,
		side VARCHAR,
		price DOUBLE,
		quantity DOUBLE,
		commission DOUBLE,
		slippage DOUBLE,
		bar_index INTEGER,
		time TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		entry_time TIMESTAMP,
		exit_time TIMESTAMP,
		entry_price DOUBLE,
		exit_price DOUBLE,
		quantity DOUBLE,
		pnl DOUBLE,
		pnl_pct DOUBLE,
		duration_seconds BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS equity (
		time TIMESTAMP,
		equity DOUBLE,
		cash DOUBLE,
		market_value DOUBLE,
		drawdown DOUBLE
	)`,
}

// Ledger is a DuckDB-backed results store. An empty path keeps the
// database in memory; Write can snapshot it to disk afterwards.
type Ledger struct {
	db  *sql.DB
	sq  squirrel.StatementBuilderType
	log *logger.Logger
}

// New opens the ledger and creates its tables. path may be empty for an
// in-memory database.
func New(path string, log *logger.Logger) (*Ledger, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeLedgerWriteFailed, "failed to open duckdb", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()

			return nil, errors.Wrap(errors.ErrCodeLedgerWriteFailed, "failed to create ledger tables", err)
		}
	}

	return &Ledger{
		db:  db,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		log: log,
	}, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record inserts everything a finished run produced.
func (l *Ledger) Record(result *engine.Result) error {
	if err := l.recordOrders(result.Orders); err != nil {
		return err
	}

	if err := l.recordFills(result.Fills); err != nil {
		return err
	}

	if err := l.recordTrades(result.Trades); err != nil {
		return err
	}

	if err := l.recordEquity(result.EquityHistory); err != nil {
		return err
	}

	l.log.Debug("Run recorded",
		zap.Int("orders", len(result.Orders)),
		zap.Int("fills", len(result.Fills)),
		zap.Int("trades", len(result.Trades)),
		zap.Int("equity_points", len(result.EquityHistory)))

	return nil
}

func (l *Ledger) recordOrders(orders []*types.Order) error {
	if len(orders) == 0 {
		return nil
	}

	builder := l.sq.Insert("orders").Columns(
		"id", "symbol", "side", "kind", "quantity", "limit_price", "stop_price",
		"submitted_at", "submitted_time", "status", "reason", "message")

	for _, order := range orders {
		builder = builder.Values(
			order.ID,
			order.Symbol,
			string(order.Side),
			string(order.Kind),
			order.Quantity,
			optionalPrice(order.LimitPrice.TakeOr(0), order.LimitPrice.IsSome()),
			optionalPrice(order.StopPrice.TakeOr(0), order.StopPrice.IsSome()),
			order.SubmittedAt,
			order.SubmittedTime,
			string(order.Status),
			order.Reason.Reason,
			order.Reason.Message,
		)
	}

	if _, err := builder.RunWith(l.db).Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeLedgerWriteFailed, "failed to insert orders", err)
	}

	return nil
}

func (l *Ledger) recordFills(fills []types.Fill) error {
	if len(fills) == 0 {
		return nil
	}

	builder := l.sq.Insert("fills").Columns(
		"order_id", "symbol", "side", "price", "quantity", "commission", "slippage", "bar_index", "time")

	for _, fill := range fills {
		builder = builder.Values(
			fill.OrderID,
			fill.Symbol,
			string(fill.Side),
			fill.Price,
			fill.Quantity,
			fill.Commission,
			fill.Slippage,
			fill.BarIndex,
			fill.Time,
		)
	}

	if _, err := builder.RunWith(l.db).Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeLedgerWriteFailed, "failed to insert fills", err)
	}

	return nil
}

func (l *Ledger) recordTrades(trades []types.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	builder := l.sq.Insert("trades").Columns(
		"entry_time", "exit_time", "entry_price", "exit_price", "quantity", "pnl", "pnl_pct", "duration_seconds")

	for _, trade := range trades {
		builder = builder.Values(
			trade.EntryTime,
			trade.ExitTime,
			trade.EntryPrice,
			trade.ExitPrice,
			trade.Quantity,
			trade.PnL,
			trade.PnLPct,
			int64(trade.Duration.Seconds()),
		)
	}

	if _, err := builder.RunWith(l.db).Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeLedgerWriteFailed, "failed to insert trades", err)
	}

	return nil
}

func (l *Ledger) recordEquity(points []types.EquityPoint) error {
	if len(points) == 0 {
		return nil
	}

	builder := l.sq.Insert("equity").Columns("time", "equity", "cash", "market_value", "drawdown")

	for _, point := range points {
		builder = builder.Values(point.Time, point.Equity, point.Cash, point.MarketValue, point.Drawdown)
	}

	if _, err := builder.RunWith(l.db).Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeLedgerWriteFailed, "failed to insert equity points", err)
	}

	return nil
}

// Export copies each table to a headered CSV file in dir.
func (l *Ledger) Export(dir string) error {
	for _, table := range tables {
		target := filepath.Join(dir, table+".csv")

		query := fmt.Sprintf("COPY %s TO '%s' (HEADER, DELIMITER ',')", table, target)
		if _, err := l.db.Exec(query); err != nil {
			return errors.Wrapf(errors.ErrCodeLedgerExportFailed, err, "failed to export %s", table)
		}
	}

	l.log.Debug("Ledger exported", zap.String("dir", dir))

	return nil
}

// Write snapshots the in-memory database into a DuckDB file at path.
func (l *Ledger) Write(path string) error {
	stmts := []string{
		fmt.Sprintf("ATTACH '%s' AS snapshot", path),
		"COPY FROM DATABASE memory TO snapshot",
		"DETACH snapshot",
	}

	for _, stmt := range stmts {
		if _, err := l.db.Exec(stmt); err != nil {
			return errors.Wrap(errors.ErrCodeLedgerWriteFailed, "failed to snapshot ledger", err)
		}
	}

	return nil
}

// optionalPrice maps an absent price to SQL NULL.
func optionalPrice(v float64, present bool) any {
	if !present {
		return nil
	}

	return v
}
