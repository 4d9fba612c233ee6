package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/marlinquant/backtester/internal/engine"
	"github.com/marlinquant/backtester/internal/logger"
	"github.com/marlinquant/backtester/internal/types"
)

type LedgerTestSuite struct {
	suite.Suite
	log *logger.Logger
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerTestSuite))
}

func (s *LedgerTestSuite) SetupTest() {
	s.log = logger.NewNopLogger()
}

func (s *LedgerTestSuite) sampleResult() *engine.Result {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	return &engine.Result{
		Symbol:      "TEST",
		InitialCash: 10000,
		FinalEquity: 10100,
		Orders: []*types.Order{
			{
				ID:            "order-1",
				Symbol:        "TEST",
				Side:          types.SideBuy,
				Kind:          types.OrderKindMarket,
				Quantity:      10,
				SubmittedAt:   0,
				SubmittedTime: now.AddDate(0, 0, -1),
				Status:        types.OrderStatusFilled,
				Reason:        types.Reason{Reason: types.OrderReasonStrategy},
			},
			{
				ID:            "order-2",
				Symbol:        "TEST",
				Side:          types.SideBuy,
				Kind:          types.OrderKindLimit,
				Quantity:      5,
				LimitPrice:    optional.Some(95.0),
				SubmittedAt:   1,
				SubmittedTime: now,
				Status:        types.OrderStatusCancelled,
				Reason:        types.Reason{Reason: types.OrderReasonExpired},
			},
		},
		Fills: []types.Fill{
			{OrderID: "order-1", Symbol: "TEST", Side: types.SideBuy, Price: 100, Quantity: 10, Commission: 1, Slippage: 0.1, BarIndex: 1, Time: now},
		},
		Trades: []types.Trade{
			{EntryTime: now, ExitTime: now.AddDate(0, 0, 3), EntryPrice: 100, ExitPrice: 110, Quantity: 10, PnL: 100, PnLPct: 10, Duration: 72 * time.Hour},
		},
		EquityHistory: []types.EquityPoint{
			{Time: now, Equity: 10000, Cash: 10000},
			{Time: now.AddDate(0, 0, 1), Equity: 10100, Cash: 9000, MarketValue: 1100, Drawdown: 0},
		},
	}
}

func (s *LedgerTestSuite) count(l *Ledger, table string) int {
	var n int
	err := l.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
	s.Require().NoError(err)

	return n
}

func (s *LedgerTestSuite) TestRecordAndCount() {
	l, err := New("", s.log)
	s.Require().NoError(err)
	defer l.Close()

	s.Require().NoError(l.Record(s.sampleResult()))

	s.Equal(2, s.count(l, "orders"))
	s.Equal(1, s.count(l, "fills"))
	s.Equal(1, s.count(l, "trades"))
	s.Equal(2, s.count(l, "equity"))
}

func (s *LedgerTestSuite) TestNullablePrices() {
	l, err := New("", s.log)
	s.Require().NoError(err)
	defer l.Close()

	s.Require().NoError(l.Record(s.sampleResult()))

	var limits int
	err = l.db.QueryRow("SELECT COUNT(*) FROM orders WHERE limit_price IS NULL").Scan(&limits)
	s.Require().NoError(err)
	s.Equal(1, limits)
}

func (s *LedgerTestSuite) TestEmptyResultIsFine() {
	l, err := New("", s.log)
	s.Require().NoError(err)
	defer l.Close()

	s.Require().NoError(l.Record(&engine.Result{Symbol: "TEST"}))
	s.Equal(0, s.count(l, "orders"))
}

func (s *LedgerTestSuite) TestExportWritesCSVPerTable() {
	dir := s.T().TempDir()

	l, err := New("", s.log)
	s.Require().NoError(err)
	defer l.Close()

	s.Require().NoError(l.Record(s.sampleResult()))
	s.Require().NoError(l.Export(dir))

	for _, table := range []string{"orders", "fills", "trades", "equity"} {
		info, err := os.Stat(filepath.Join(dir, table+".csv"))
		s.Require().NoError(err)
		s.Positive(info.Size())
	}
}

func (s *LedgerTestSuite) TestWriteSnapshotsDatabase() {
	dir := s.T().TempDir()
	path := filepath.Join(dir, "run.duckdb")

	l, err := New("", s.log)
	s.Require().NoError(err)
	defer l.Close()

	s.Require().NoError(l.Record(s.sampleResult()))
	s.Require().NoError(l.Write(path))

	reopened, err := New(path, s.log)
	s.Require().NoError(err)
	defer reopened.Close()

	s.Equal(2, s.count(reopened, "orders"))
}
