package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/strategy"
	"polymarket-mm/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testConfig() config.Config {
	var cfg config.Config
	cfg.Engine = config.EngineConfig{TickIntervalMs: 5, DiscoveryIntervalMs: 3_600_000, SkipWarmup: true}
	cfg.Risk.MaxOrderSize = 1000
	cfg.Risk.MaxPositionPerMarket = 1000
	cfg.Risk.MaxGlobalExposure = 1000
	cfg.Risk.MaxDailyLoss = 1000
	cfg.Risk.MaxOpenOrders = 10
	return cfg
}

type fakeCatalog struct {
	markets []types.MarketCtx
	token   types.TokenId
}

func (f *fakeCatalog) Discover(ctx context.Context) ([]types.MarketCtx, error) {
	return f.markets, nil
}

func (f *fakeCatalog) HighCertaintyToken(ctx context.Context, market types.MarketCtx) (types.TokenId, error) {
	return f.token, nil
}

type fakeFeed struct {
	mu       sync.Mutex
	events   chan types.MarketEvent
	subbed   []types.TokenId
	closed   bool
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{events: make(chan types.MarketEvent, 8)}
}

func (f *fakeFeed) Subscribe(ctx context.Context, tokens []types.TokenId) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subbed = append(f.subbed, tokens...)
	return nil
}

func (f *fakeFeed) Events() <-chan types.MarketEvent { return f.events }

func (f *fakeFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeSubmitter struct {
	mu      sync.Mutex
	dryRun  bool
	placed  []types.TokenId
	cancels int
}

func (f *fakeSubmitter) PlaceLimit(ctx context.Context, tokenID types.TokenId, isBuy bool, price, size decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, tokenID)
	return "ord-1", nil
}

func (f *fakeSubmitter) Cancel(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

func (f *fakeSubmitter) CancelMany(ctx context.Context, orderIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels += len(orderIDs)
	return nil
}

func (f *fakeSubmitter) IsDryRun() bool { return f.dryRun }

// buyOnceStrategy emits a single Buy signal on its first tick and holds
// after that, so tests can assert exactly one order is placed.
type buyOnceStrategy struct {
	mu               sync.Mutex
	sent             bool
	subs             []types.TokenId
	requiresDiscovery bool
}

func (s *buyOnceStrategy) ID() string                    { return "buy-once" }
func (s *buyOnceStrategy) Subscriptions() []types.TokenId { return s.subs }
func (s *buyOnceStrategy) OnFill(fill types.Fill)        {}
func (s *buyOnceStrategy) OnShutdown()                   {}
func (s *buyOnceStrategy) RequiresMarketDiscovery() bool { return s.requiresDiscovery }

func (s *buyOnceStrategy) OnTick(ctx *Context) []types.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent {
		return nil
	}
	s.sent = true
	return []types.Signal{types.Buy("tok1", dec("0.40"), dec("10"), types.UrgencyLow)}
}

// Context is an alias so the strategy above can implement strategy.Strategy
// without importing it under a different name in this test file.
type Context = strategy.Context

func TestEngineRunsOneTickAndPlacesOrder(t *testing.T) {
	cfg := testConfig()
	strat := &buyOnceStrategy{subs: []types.TokenId{"tok1"}}
	runtime := strategy.NewRuntime(strat)
	catalog := &fakeCatalog{}
	feed := newFakeFeed()
	submitter := &fakeSubmitter{}

	e := New(cfg, catalog, feed, nil, submitter, runtime, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	deadline := time.After(500 * time.Millisecond)
	for {
		submitter.mu.Lock()
		placed := len(submitter.placed)
		submitter.mu.Unlock()
		if placed > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for order to be placed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected error from Run: %v", err)
	}

	if e.State() != StateShuttingDown {
		t.Fatalf("expected shutting_down state, got %v", e.State())
	}
	if !feed.closed {
		t.Fatal("expected feed to be closed on shutdown")
	}
}

func TestEngineStopsAtMaxTicks(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.MaxTicks = 3
	runtime := strategy.NewRuntime()
	catalog := &fakeCatalog{}
	feed := newFakeFeed()
	submitter := &fakeSubmitter{}

	e := New(cfg, catalog, feed, nil, submitter, runtime, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := e.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ticks != 3 {
		t.Fatalf("expected exactly 3 ticks, got %d", e.ticks)
	}
}

func TestEngineDiscoveryResolvesHighCertaintyTokens(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.MaxTicks = 1

	strat := &buyOnceStrategy{sent: true, requiresDiscovery: true} // suppress the buy, only exercise discovery wiring

	runtime := strategy.NewRuntime(strat)
	catalog := &fakeCatalog{
		markets: []types.MarketCtx{{Slug: "will-x-happen"}},
		token:   "tok-high-certainty",
	}
	feed := newFakeFeed()
	submitter := &fakeSubmitter{}

	e := New(cfg, catalog, feed, nil, submitter, runtime, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := e.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := e.markets["tok-high-certainty"]; !ok {
		t.Fatalf("expected discovered token in markets map, got %+v", e.markets)
	}
	feed.mu.Lock()
	defer feed.mu.Unlock()
	found := false
	for _, tok := range feed.subbed {
		if tok == "tok-high-certainty" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected book feed to subscribe to discovered token, got %v", feed.subbed)
	}
}

func TestEngineReleasesReservationOnSubmissionFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.MaxTicks = 1
	strat := &buyOnceStrategy{subs: []types.TokenId{"tok1"}}
	runtime := strategy.NewRuntime(strat)
	catalog := &fakeCatalog{}
	feed := newFakeFeed()
	submitter := &failingSubmitter{}

	e := New(cfg, catalog, feed, nil, submitter, runtime, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := e.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.riskMgr.OpenReservationCount() != 0 {
		t.Fatalf("expected reservation to be released after failed submission, got %d open", e.riskMgr.OpenReservationCount())
	}
}

type failingSubmitter struct{ fakeSubmitter }

func (f *failingSubmitter) PlaceLimit(ctx context.Context, tokenID types.TokenId, isBuy bool, price, size decimal.Decimal) (string, error) {
	return "", errors.New("exchange unavailable")
}

// TestEngineWarmupWaitsForCumulativeUpdates exercises warmup with
// SkipWarmup left off: a single token's book can deliver many updates, and
// warmup must count cumulative book-update events observed, not the number
// of distinct tracked tokens.
func TestEngineWarmupWaitsForCumulativeUpdates(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.SkipWarmup = false
	cfg.Engine.WarmupTicks = 100000 // deadline far away; updates must drive completion
	runtime := strategy.NewRuntime()
	catalog := &fakeCatalog{}
	feed := newFakeFeed()
	submitter := &fakeSubmitter{}

	e := New(cfg, catalog, feed, nil, submitter, runtime, testLogger())

	go func() {
		for i := 0; i < warmupRequiredUpdates; i++ {
			feed.events <- types.MarketEvent{Kind: types.EventBookUpdate, TokenID: "tok1"}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.warmup(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.warmupUpdates < warmupRequiredUpdates {
		t.Fatalf("expected at least %d updates observed, got %d", warmupRequiredUpdates, e.warmupUpdates)
	}
}

// TestEngineWarmupDeadlineElapsesBelowRequiredUpdates covers the flip side of
// scenario 6: fewer than the required book updates arrive before the
// deadline, so warmup returns anyway (ticks proceed without a seasoned
// book), rather than hanging forever.
func TestEngineWarmupDeadlineElapsesBelowRequiredUpdates(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.SkipWarmup = false
	cfg.Engine.TickIntervalMs = 1
	cfg.Engine.WarmupTicks = 5
	runtime := strategy.NewRuntime()
	catalog := &fakeCatalog{}
	feed := newFakeFeed()
	submitter := &fakeSubmitter{}

	e := New(cfg, catalog, feed, nil, submitter, runtime, testLogger())

	feed.events <- types.MarketEvent{Kind: types.EventBookUpdate, TokenID: "tok1"}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.warmup(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.warmupUpdates >= warmupRequiredUpdates {
		t.Fatalf("expected warmup to exit via deadline below the required count, got %d updates", e.warmupUpdates)
	}
}

// shutdownOnceStrategy emits a Shutdown signal on its first tick.
type shutdownOnceStrategy struct {
	mu   sync.Mutex
	sent bool
}

func (s *shutdownOnceStrategy) ID() string                    { return "shutdown-once" }
func (s *shutdownOnceStrategy) Subscriptions() []types.TokenId { return nil }
func (s *shutdownOnceStrategy) OnFill(fill types.Fill)        {}
func (s *shutdownOnceStrategy) OnShutdown()                   {}
func (s *shutdownOnceStrategy) RequiresMarketDiscovery() bool  { return false }

func (s *shutdownOnceStrategy) OnTick(ctx *Context) []types.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent {
		return nil
	}
	s.sent = true
	return []types.Signal{{Kind: types.SignalShutdown, Reason: "test requested shutdown"}}
}

// TestEngineShutdownSignalEndsTradingLoop covers the Shutdown-signal
// transition: a strategy-requested shutdown must end the trading loop on
// its own, without relying on ctx cancellation or MaxTicks.
func TestEngineShutdownSignalEndsTradingLoop(t *testing.T) {
	cfg := testConfig()
	strat := &shutdownOnceStrategy{}
	runtime := strategy.NewRuntime(strat)
	catalog := &fakeCatalog{}
	feed := newFakeFeed()
	submitter := &fakeSubmitter{}

	e := New(cfg, catalog, feed, nil, submitter, runtime, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := e.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.shutdownRequested {
		t.Fatal("expected shutdownRequested to be set")
	}
	if e.ticks == 0 {
		t.Fatal("expected at least one tick to have run before shutdown")
	}
}

type fakeFillFeed struct {
	mu     sync.Mutex
	events chan types.WSOrderEvent
	subbed []string
	closed bool
}

func newFakeFillFeed() *fakeFillFeed {
	return &fakeFillFeed{events: make(chan types.WSOrderEvent, 8)}
}

func (f *fakeFillFeed) Subscribe(ctx context.Context, conditionIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subbed = append(f.subbed, conditionIDs...)
	return nil
}

func (f *fakeFillFeed) Events() <-chan types.WSOrderEvent { return f.events }

func (f *fakeFillFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// TestEngineRoutesOrderEventsIntoOrderManager confirms a live-path order
// lifecycle event reaches order.Manager.ProcessOrderUpdate (and from there,
// positions) rather than being dropped or misrouted into the book hub.
func TestEngineRoutesOrderEventsIntoOrderManager(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.MaxTicks = 1
	strat := &buyOnceStrategy{subs: []types.TokenId{"tok1"}}
	runtime := strategy.NewRuntime(strat)
	catalog := &fakeCatalog{
		markets: []types.MarketCtx{{Slug: "will-x-happen", ConditionID: "cond-1"}},
		token:   "tok1",
	}
	strat.requiresDiscovery = true
	feed := newFakeFeed()
	fillFeed := newFakeFillFeed()
	submitter := &fakeSubmitter{}

	e := New(cfg, catalog, feed, fillFeed, submitter, runtime, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	deadline := time.After(500 * time.Millisecond)
	for {
		submitter.mu.Lock()
		placed := len(submitter.placed)
		submitter.mu.Unlock()
		if placed > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for order to be placed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	fillFeed.events <- types.WSOrderEvent{
		ID:          "ord-1",
		Type:        "UPDATE",
		SizeMatched: "10",
		Price:       "0.40",
	}

	deadline = time.After(500 * time.Millisecond)
	for {
		pos, ok := e.positions.Get("tok1")
		if ok && pos.Size.Sign() != 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for order event to apply a fill")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done

	fillFeed.mu.Lock()
	defer fillFeed.mu.Unlock()
	found := false
	for _, id := range fillFeed.subbed {
		if id == "cond-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected fill feed to subscribe to discovered condition ID, got %v", fillFeed.subbed)
	}
	if !fillFeed.closed {
		t.Fatal("expected fill feed to be closed on shutdown")
	}
}
