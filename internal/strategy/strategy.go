// Package strategy hosts the Strategy port, its runtime, and the built-in
// strategy implementations (market-maker, sure-sweep).
package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/book"
	"polymarket-mm/internal/position"
	"polymarket-mm/pkg/types"
)

// Context is the per-tick immutable snapshot handed to every strategy.
// Strategies must not mutate it and must not retain shared pointers across a
// suspension point.
type Context struct {
	Timestamp     time.Time
	OrderBooks    map[types.TokenId]*book.OrderBook
	Positions     *position.Tracker
	Markets       map[types.TokenId]types.MarketCtx
	UnrealizedPnl decimal.Decimal
	RealizedPnl   decimal.Decimal
	UsdcBalance   decimal.Decimal
}

// Strategy is the pluggable trading-logic port. OnTick must be deterministic
// in ctx, must not block on I/O, and must not mutate ctx.
type Strategy interface {
	ID() string
	Subscriptions() []types.TokenId
	OnTick(ctx *Context) []types.Signal
	OnFill(fill types.Fill)
	OnShutdown()
	// RequiresMarketDiscovery reports whether the engine must run the
	// discovery loop before this strategy can tick usefully.
	RequiresMarketDiscovery() bool
}

// Runtime hosts a collection of registered strategies and aggregates their
// signals in registration order with no cross-strategy ordering guarantees
// beyond that.
type Runtime struct {
	strategies []Strategy
}

func NewRuntime(strategies ...Strategy) *Runtime {
	return &Runtime{strategies: strategies}
}

// Tick invokes every registered strategy's OnTick and concatenates their
// signals in registration order.
func (r *Runtime) Tick(ctx *Context) []types.Signal {
	var out []types.Signal
	for _, s := range r.strategies {
		out = append(out, s.OnTick(ctx)...)
	}
	return out
}

// OnFill notifies every strategy of a fill.
func (r *Runtime) OnFill(fill types.Fill) {
	for _, s := range r.strategies {
		s.OnFill(fill)
	}
}

// OnShutdown runs every strategy's cleanup hook.
func (r *Runtime) OnShutdown() {
	for _, s := range r.strategies {
		s.OnShutdown()
	}
}

// Subscriptions unions every registered strategy's requested tokens.
func (r *Runtime) Subscriptions() []types.TokenId {
	seen := make(map[types.TokenId]bool)
	var out []types.TokenId
	for _, s := range r.strategies {
		for _, t := range s.Subscriptions() {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// RequiresMarketDiscovery reports whether any registered strategy needs it.
func (r *Runtime) RequiresMarketDiscovery() bool {
	for _, s := range r.strategies {
		if s.RequiresMarketDiscovery() {
			return true
		}
	}
	return false
}

// Factory builds a Strategy instance from its name. The CLI resolves
// strategy names to factories through a Registry.
type Factory func() Strategy

// Registry is a name->factory mapping; an auto-generated module may
// populate it, but from the engine's perspective it is just a lookup
// producing strategies.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

func (r *Registry) Build(name string) (Strategy, bool) {
	f, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	return out
}

// DefaultRegistry returns a registry populated with the built-in strategies.
func DefaultRegistry(mm MarketMakerConfig, sw SureSweepConfig) *Registry {
	r := NewRegistry()
	r.Register("marketmaker", func() Strategy { return NewMarketMaker(mm) })
	r.Register("suresweep", func() Strategy { return NewSureSweep(sw) })
	return r
}
