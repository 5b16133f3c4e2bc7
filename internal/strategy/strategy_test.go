package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/book"
	"polymarket-mm/internal/position"
	"polymarket-mm/pkg/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newCtxWithBook(tokenID types.TokenId, bid, ask decimal.Decimal) *Context {
	hub := book.New(tokenID)
	hub.ApplySnapshot(
		[]types.Level{{Price: bid, Size: dec("100")}},
		[]types.Level{{Price: ask, Size: dec("100")}},
		time.Now().UnixMilli(), "h1",
	)
	return &Context{
		Timestamp:  time.Now(),
		OrderBooks: map[types.TokenId]*book.OrderBook{tokenID: hub},
		Positions:  position.NewTracker(),
		Markets:    map[types.TokenId]types.MarketCtx{},
	}
}

type stubStrategy struct {
	id   string
	subs []types.TokenId
	hits int
}

func (s *stubStrategy) ID() string                    { return s.id }
func (s *stubStrategy) Subscriptions() []types.TokenId { return s.subs }
func (s *stubStrategy) RequiresMarketDiscovery() bool  { return false }
func (s *stubStrategy) OnFill(fill types.Fill)         {}
func (s *stubStrategy) OnShutdown()                    {}
func (s *stubStrategy) OnTick(ctx *Context) []types.Signal {
	s.hits++
	return []types.Signal{types.Hold()}
}

func TestRuntimeAggregatesSignalsInOrder(t *testing.T) {
	a := &stubStrategy{id: "a", subs: []types.TokenId{"tok1"}}
	b := &stubStrategy{id: "b", subs: []types.TokenId{"tok2"}}
	rt := NewRuntime(a, b)

	signals := rt.Tick(&Context{})
	if len(signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(signals))
	}
	if a.hits != 1 || b.hits != 1 {
		t.Fatal("expected both strategies ticked")
	}
}

func TestRuntimeSubscriptionsUnion(t *testing.T) {
	a := &stubStrategy{id: "a", subs: []types.TokenId{"tok1", "tok2"}}
	b := &stubStrategy{id: "b", subs: []types.TokenId{"tok2", "tok3"}}
	rt := NewRuntime(a, b)

	subs := rt.Subscriptions()
	if len(subs) != 3 {
		t.Fatalf("expected 3 unique tokens, got %d", len(subs))
	}
}

func TestRegistryBuildUnknownNameFails(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Build("nope"); ok {
		t.Fatal("expected unknown strategy name to fail")
	}
}

func TestDefaultRegistryBuildsBoth(t *testing.T) {
	r := DefaultRegistry(DefaultMarketMakerConfig(), DefaultSureSweepConfig())
	if _, ok := r.Build("marketmaker"); !ok {
		t.Fatal("expected marketmaker registered")
	}
	if _, ok := r.Build("suresweep"); !ok {
		t.Fatal("expected suresweep registered")
	}
}
