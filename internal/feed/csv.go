package feed

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/marlinquant/backtester/internal/logger"
	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/pkg/errors"
)

// timeColumns are the accepted names for the timestamp column, in order of
// preference.
var timeColumns = []string{"time", "datetime", "timestamp"}

// LoadCSV loads an OHLCV CSV into a validated feed using an in-memory DuckDB
// instance. All data is read once, up front; the database handle is released
// on every exit path so nothing stays open during simulation.
func LoadCSV(path string, symbol string, start optional.Option[time.Time], end optional.Option[time.Time], log *logger.Logger) (*Feed, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to open duckdb", err)
	}
	defer db.Close()

	log.Debug("Loading CSV data", zap.String("path", path), zap.String("symbol", symbol))

	bars, err := queryBars(db, path, start, end)
	if err != nil {
		return nil, err
	}

	log.Debug("CSV data loaded", zap.Int("bars", len(bars)))

	return New(symbol, bars)
}

func queryBars(db *sql.DB, path string, start optional.Option[time.Time], end optional.Option[time.Time]) ([]types.Bar, error) {
	timeCol, err := detectTimeColumn(db, path)
	if err != nil {
		return nil, err
	}

	sq := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	query := sq.Select(
		fmt.Sprintf("%s AS time", timeCol),
		"CAST(open AS DOUBLE)",
		"CAST(high AS DOUBLE)",
		"CAST(low AS DOUBLE)",
		"CAST(close AS DOUBLE)",
		"CAST(volume AS DOUBLE)",
	).
		From(fmt.Sprintf("read_csv_auto('%s')", path)).
		OrderBy(fmt.Sprintf("%s ASC", timeCol))

	if start.IsSome() {
		query = query.Where(fmt.Sprintf("%s >= ?", timeCol), start.Unwrap())
	}

	if end.IsSome() {
		query = query.Where(fmt.Sprintf("%s <= ?", timeCol), end.Unwrap())
	}

	rows, err := query.RunWith(db).Query()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to read %s", path)
	}
	defer rows.Close()

	var bars []types.Bar

	for rows.Next() {
		var bar types.Bar
		if err := rows.Scan(&bar.Time, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, errors.Wrap(errors.ErrCodeMissingField, "failed to scan bar row", err)
		}

		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed while reading %s", path)
	}

	if len(bars) == 0 {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no rows in %s after filtering", path)
	}

	return bars, nil
}

// detectTimeColumn inspects the CSV header and returns the timestamp column
// name. Missing OHLCV columns are reported here, before any bar is built.
func detectTimeColumn(db *sql.DB, path string) (string, error) {
	rows, err := db.Query(fmt.Sprintf("SELECT * FROM read_csv_auto('%s') LIMIT 0", path))
	if err != nil {
		return "", errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to inspect %s", path)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeQueryFailed, "failed to read column names", err)
	}

	present := make(map[string]bool, len(cols))
	for _, c := range cols {
		present[c] = true
	}

	for _, required := range []string{"open", "high", "low", "close", "volume"} {
		if !present[required] {
			return "", errors.Newf(errors.ErrCodeMissingField, "%s is missing required column %q", path, required)
		}
	}

	for _, candidate := range timeColumns {
		if present[candidate] {
			return candidate, nil
		}
	}

	return "", errors.Newf(errors.ErrCodeMissingField, "%s has no timestamp column (expected one of %v)", path, timeColumns)
}
