// Package indicator implements streaming technical indicators that are
// strictly causal: each value is computed from the bars fed in so far and
// nothing else. Every indicator returns None until its warm-up window is
// full, and the engine feeds bars in order exactly once, so an indicator can
// never see data from a bar the policy has not been shown yet.
package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/marlinquant/backtester/internal/types"
)

// Indicator is a streaming indicator. Update consumes the next bar and
// returns the new value; Value returns the value after the most recent
// update. Both return None during warm-up.
type Indicator interface {
	// Type returns the algorithm identifier.
	Type() types.IndicatorType
	// Update feeds the next bar and returns the resulting value.
	Update(bar types.Bar) optional.Option[float64]
	// Value returns the value after the most recent Update.
	Value() optional.Option[float64]
}
