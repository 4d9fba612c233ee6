// Package feed provides the ordered, gap-free bar sequence that is the sole
// source of truth for what is known as of a given bar index. A feed is
// validated once at construction and immutable afterwards; it deliberately
// exposes no way to peek past an index the caller already holds.
package feed

import (
	"time"

	"github.com/marlinquant/backtester/internal/types"
	"github.com/marlinquant/backtester/pkg/errors"
)

// Feed is an immutable, validated sequence of bars for one symbol.
type Feed struct {
	symbol string
	bars   []types.Bar
}

// New validates the given bars and constructs a feed. Validation failures
// are fatal load-time data errors: non-monotonic or duplicate timestamps,
// missing fields, non-positive prices, or OHLC ordering violations.
func New(symbol string, bars []types.Bar) (*Feed, error) {
	if symbol == "" {
		return nil, errors.New(errors.ErrCodeMissingField, "feed symbol is required")
	}

	if len(bars) == 0 {
		return nil, errors.Newf(errors.ErrCodeEmptyFeed, "no bars supplied for %s", symbol)
	}

	for i := range bars {
		if err := bars[i].Validate(); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidBar, err, "bar %d failed validation", i)
		}

		if i == 0 {
			continue
		}

		switch {
		case bars[i].Time.Equal(bars[i-1].Time):
			return nil, errors.Newf(errors.ErrCodeDuplicateTimestamp,
				"duplicate timestamp %s at bar %d", bars[i].Time.Format(time.RFC3339), i)
		case bars[i].Time.Before(bars[i-1].Time):
			return nil, errors.Newf(errors.ErrCodeNonMonotonicTimestamp,
				"timestamp %s at bar %d is not after its predecessor",
				bars[i].Time.Format(time.RFC3339), i)
		}
	}

	// Copy so later mutation of the caller's slice cannot reach the feed.
	owned := make([]types.Bar, len(bars))
	copy(owned, bars)

	return &Feed{symbol: symbol, bars: owned}, nil
}

// Symbol returns the instrument symbol this feed belongs to.
func (f *Feed) Symbol() string {
	return f.symbol
}

// Len returns the number of bars.
func (f *Feed) Len() int {
	return len(f.bars)
}

// Bar returns the bar at index i.
func (f *Feed) Bar(i int) (types.Bar, error) {
	if i < 0 || i >= len(f.bars) {
		return types.Bar{}, errors.Newf(errors.ErrCodeIndexOutOfRange,
			"bar index %d out of range [0, %d)", i, len(f.bars))
	}

	return f.bars[i], nil
}

// Slice returns the bars in [lo, hi) as a lookback view. The returned slice
// shares the feed's backing array and must be treated as read-only.
func (f *Feed) Slice(lo, hi int) ([]types.Bar, error) {
	if lo < 0 || hi > len(f.bars) || lo > hi {
		return nil, errors.Newf(errors.ErrCodeIndexOutOfRange,
			"slice [%d, %d) out of range [0, %d)", lo, hi, len(f.bars))
	}

	return f.bars[lo:hi], nil
}

// Window returns a sub-feed over [lo, hi). The windows used by the
// walk-forward analyzer are produced here; validation is skipped because
// the parent feed already validated every bar.
func (f *Feed) Window(lo, hi int) (*Feed, error) {
	bars, err := f.Slice(lo, hi)
	if err != nil {
		return nil, err
	}

	if len(bars) == 0 {
		return nil, errors.Newf(errors.ErrCodeEmptyFeed, "window [%d, %d) is empty", lo, hi)
	}

	return &Feed{symbol: f.symbol, bars: bars}, nil
}

// Start returns the timestamp of the first bar.
func (f *Feed) Start() time.Time {
	return f.bars[0].Time
}

// End returns the timestamp of the last bar.
func (f *Feed) End() time.Time {
	return f.bars[len(f.bars)-1].Time
}
