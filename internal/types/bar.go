package types

import (
	"time"

	"github.com/marlinquant/backtester/pkg/errors"
)

// Bar is a single OHLCV record for a fixed time interval. Bars are created
// once at load time and never mutated afterwards.
type Bar struct {
	Time   time.Time `yaml:"time" json:"time" csv:"time"`
	Open   float64   `yaml:"open" json:"open" csv:"open"`
	High   float64   `yaml:"high" json:"high" csv:"high"`
	Low    float64   `yaml:"low" json:"low" csv:"low"`
	Close  float64   `yaml:"close" json:"close" csv:"close"`
	Volume float64   `yaml:"volume" json:"volume" csv:"volume"`
}

// Validate checks the structural invariants of a single bar: all prices
// positive and high >= max(open, close) >= min(open, close) >= low.
func (b *Bar) Validate() error {
	if b.Time.IsZero() {
		return errors.New(errors.ErrCodeMissingField, "bar timestamp is missing")
	}

	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return errors.Newf(errors.ErrCodeInvalidBar,
			"bar at %s has non-positive price (o=%f h=%f l=%f c=%f)",
			b.Time.Format(time.RFC3339), b.Open, b.High, b.Low, b.Close)
	}

	bodyHigh := max(b.Open, b.Close)
	bodyLow := min(b.Open, b.Close)

	if b.High < bodyHigh || bodyLow < b.Low {
		return errors.Newf(errors.ErrCodeInvalidBar,
			"bar at %s violates OHLC ordering (o=%f h=%f l=%f c=%f)",
			b.Time.Format(time.RFC3339), b.Open, b.High, b.Low, b.Close)
	}

	if b.Volume < 0 {
		return errors.Newf(errors.ErrCodeInvalidBar,
			"bar at %s has negative volume %f", b.Time.Format(time.RFC3339), b.Volume)
	}

	return nil
}
