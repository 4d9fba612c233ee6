package engine

import "github.com/marlinquant/backtester/internal/indicator"

// Policy is the decision process driven by the engine. OnStart registers
// the indicators the policy needs; the engine updates them with each bar
// before OnBar runs, so the policy always reads values computed through the
// current bar and nothing later.
type Policy interface {
	// Name identifies the policy in logs and result rows.
	Name() string
	// OnStart is called once before the first bar.
	OnStart(registry *indicator.Registry) error
	// OnBar is called once per bar with the read-only context.
	OnBar(ctx *Context) error
	// OnEnd is called once after the last bar.
	OnEnd() error
}
