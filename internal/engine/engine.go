// Package engine is the central orchestrator of the trading system.
//
// Engine owns a single cooperative event loop: one goroutine evaluates
// every tick, book update, fill, and discovery cycle in sequence. There is
// no per-market goroutine and no lock shared between strategy evaluation and
// order-book mutation — the loop is the only writer of engine-owned state.
// I/O adapters (the WebSocket feed, the REST submitter) still run their own
// goroutines, but they only ever hand events to the loop over channels.
//
// Lifecycle: New() -> Run(ctx) walks Startup -> InitialDiscovery -> Connect
// -> Warmup -> Trading, then loops ticks until ctx is cancelled, MaxTicks is
// reached, or a strategy emits a Shutdown signal.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"polymarket-mm/internal/api"
	"polymarket-mm/internal/book"
	"polymarket-mm/internal/config"
	"polymarket-mm/internal/exchange"
	"polymarket-mm/internal/order"
	"polymarket-mm/internal/position"
	"polymarket-mm/internal/risk"
	"polymarket-mm/internal/strategy"
	"polymarket-mm/pkg/types"
)

// dashboardEventBuffer bounds the dashboard event channel; a slow or absent
// dashboard consumer must never block the trading loop.
const dashboardEventBuffer = 256

// warmupRequiredUpdates is the number of cumulative book-update events the
// engine must observe before leaving Warmup, regardless of how many distinct
// tokens they land on.
const warmupRequiredUpdates = 100

// State names the engine's position in its startup/trading state machine.
type State int

const (
	StateStartup State = iota
	StateInitialDiscovery
	StateConnect
	StateWarmup
	StateTrading
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateStartup:
		return "startup"
	case StateInitialDiscovery:
		return "initial_discovery"
	case StateConnect:
		return "connect"
	case StateWarmup:
		return "warmup"
	case StateTrading:
		return "trading"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Engine wires the order book hub, position tracker, risk manager, order
// manager, and strategy runtime together and drives them from one tick loop.
type Engine struct {
	cfg config.Config

	catalog   exchange.MarketCatalog
	feed      exchange.BookFeed
	fillFeed  exchange.FillFeed // nil if the engine was not given a user-channel feed (e.g. dry-run/tests)
	submitter order.Submitter

	hub        *book.Hub
	positions  *position.Tracker
	riskMgr    *risk.Manager
	orders     *order.Manager
	strategies *strategy.Runtime

	fillsCh     chan types.Fill
	dashboardCh chan api.DashboardEvent
	markets     map[types.TokenId]types.MarketCtx

	state             State
	ticks             int
	warmupUpdates     int
	shutdownRequested bool
	shutdownReason    string
	logger            *slog.Logger
}

// New wires every component. It starts no goroutines: the caller runs the
// feed adapters' pumps (e.g. BookFeedAdapter.Run) itself, and fillFeed may be
// nil when no user-channel feed is available.
func New(
	cfg config.Config,
	catalog exchange.MarketCatalog,
	feed exchange.BookFeed,
	fillFeed exchange.FillFeed,
	submitter order.Submitter,
	strategies *strategy.Runtime,
	logger *slog.Logger,
) *Engine {
	logger = logger.With("component", "engine")

	fillsCh := make(chan types.Fill, 1000)
	maxPos, maxExposure, maxLoss, maxOrderSize, maxOpenOrders := cfg.Risk.RiskLimits()

	return &Engine{
		cfg:       cfg,
		catalog:   catalog,
		feed:      feed,
		fillFeed:  fillFeed,
		submitter: submitter,

		hub:       book.NewHub(),
		positions: position.NewTracker(),
		riskMgr: risk.NewManager(risk.RiskLimits{
			MaxPositionSize:  maxPos,
			MaxTotalExposure: maxExposure,
			MaxLoss:          maxLoss,
			MaxOpenOrders:    maxOpenOrders,
			MaxOrderSize:     maxOrderSize,
		}, logger),
		orders:     order.NewManager(submitter, fillsCh, logger),
		strategies: strategies,

		fillsCh:     fillsCh,
		dashboardCh: make(chan api.DashboardEvent, dashboardEventBuffer),
		markets:     make(map[types.TokenId]types.MarketCtx),

		state:  StateStartup,
		logger: logger,
	}
}

// Run drives the engine from Startup through Trading and blocks ticking
// until ctx is cancelled. On return every resting order has been cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")

	if err := e.runDiscovery(ctx); err != nil {
		return fmt.Errorf("initial discovery: %w", err)
	}
	e.state = StateConnect
	if err := e.connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	e.state = StateWarmup
	if err := e.warmup(ctx); err != nil {
		return fmt.Errorf("warmup: %w", err)
	}

	e.state = StateTrading
	e.logger.Info("engine trading")
	err := e.tradingLoop(ctx)

	e.state = StateShuttingDown
	e.shutdown()
	return err
}

// runDiscovery fetches the initial market set and resolves each market's
// high-certainty index token, then seeds the strategy subscriptions and the
// book hub.
func (e *Engine) runDiscovery(ctx context.Context) error {
	e.state = StateInitialDiscovery
	if !e.strategies.RequiresMarketDiscovery() {
		return nil
	}

	markets, err := e.catalog.Discover(ctx)
	if err != nil {
		return err
	}

	for _, m := range markets {
		tokenID, err := e.catalog.HighCertaintyToken(ctx, m)
		if err != nil {
			e.logger.Warn("skipping market, no high-certainty token", "market", m.Slug, "error", err)
			continue
		}
		e.markets[tokenID] = m
		e.hub.InitBook(tokenID)
	}

	e.logger.Info("discovery complete", "markets", len(e.markets))
	return nil
}

// connect subscribes the book feed to every discovered token (plus whatever
// tokens strategies statically declared) and starts consuming the feed in
// the background; book updates land on a channel the trading loop reads.
func (e *Engine) connect(ctx context.Context) error {
	tokens := make([]types.TokenId, 0, len(e.markets))
	for tokenID := range e.markets {
		tokens = append(tokens, tokenID)
	}
	for _, tokenID := range e.strategies.Subscriptions() {
		if _, ok := e.markets[tokenID]; !ok {
			tokens = append(tokens, tokenID)
			e.hub.InitBook(tokenID)
		}
	}
	if err := e.subscribeFillFeed(ctx); err != nil {
		return fmt.Errorf("subscribe fill feed: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	return e.feed.Subscribe(ctx, tokens)
}

// subscribeFillFeed subscribes the user-channel fill feed (if one was wired)
// to every distinct condition ID among the discovered markets, so order
// lifecycle events for our own fills start flowing before Trading begins.
func (e *Engine) subscribeFillFeed(ctx context.Context) error {
	if e.fillFeed == nil {
		return nil
	}
	seen := make(map[string]bool)
	var conditionIDs []string
	for _, m := range e.markets {
		if m.ConditionID == "" || seen[m.ConditionID] {
			continue
		}
		seen[m.ConditionID] = true
		conditionIDs = append(conditionIDs, m.ConditionID)
	}
	if len(conditionIDs) == 0 {
		return nil
	}
	return e.fillFeed.Subscribe(ctx, conditionIDs)
}

// warmup waits until warmupRequiredUpdates cumulative book-update events have
// been observed across all subscribed tokens, or cfg.Engine.WarmupTicks ticks
// elapse, whichever comes first. Ticks still run once Trading starts even if
// the deadline fires early; they simply won't have a seasoned book to quote
// against yet.
func (e *Engine) warmup(ctx context.Context) error {
	if e.cfg.Engine.SkipWarmup {
		return nil
	}
	deadline := time.After(time.Duration(e.cfg.Engine.WarmupTicks) * e.tickInterval())
	for {
		if e.warmupUpdates >= warmupRequiredUpdates {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-e.feed.Events():
			if evt.Kind == types.EventBookUpdate {
				e.warmupUpdates++
			}
			e.applyMarketEvent(evt)
		case <-deadline:
			e.logger.Warn("warmup deadline elapsed", "updates_observed", e.warmupUpdates, "required", warmupRequiredUpdates)
			return nil
		}
	}
}

func (e *Engine) tickInterval() time.Duration {
	ms := e.cfg.Engine.TickIntervalMs
	if ms <= 0 {
		ms = 1000
	}
	return time.Duration(ms) * time.Millisecond
}

func (e *Engine) discoveryInterval() time.Duration {
	ms := e.cfg.Engine.DiscoveryIntervalMs
	if ms <= 0 {
		ms = 60_000
	}
	return time.Duration(ms) * time.Millisecond
}

// tradingLoop is the single select loop that owns every engine-internal
// mutation while trading. It never blocks on I/O beyond the timeouts already
// enforced inside order.Manager/exchange adapters.
func (e *Engine) tradingLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.tickInterval())
	defer ticker.Stop()

	discovery := time.NewTicker(e.discoveryInterval())
	defer discovery.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt := <-e.feed.Events():
			e.applyMarketEvent(evt)

		case evt := <-e.fillFeedEvents():
			e.orders.ProcessOrderUpdate(evt)

		case fill := <-e.fillsCh:
			e.positions.ApplyFill(fill)
			e.riskMgr.OrderClosed(fill.OrderID)
			e.strategies.OnFill(fill)
			e.publishFillEvent(fill)
			api.RecordFill()

		case <-discovery.C:
			if err := e.runDiscovery(ctx); err != nil {
				e.logger.Error("periodic discovery failed", "error", err)
			}

		case <-ticker.C:
			e.riskMgr.CheckPnl(e.positions)
			e.tick(ctx)
			e.ticks++
			api.RecordTick()
			riskSnap := e.riskMgr.GetRiskSnapshot(e.positions)
			api.RecordExposure(mustFloat(riskSnap.GlobalExposure))
			api.RecordKillSwitch(riskSnap.Halted)
			if e.shutdownRequested {
				e.logger.Warn("shutdown requested by strategy, ending trading loop", "reason", e.shutdownReason)
				return nil
			}
			if e.cfg.Engine.MaxTicks > 0 && e.ticks >= e.cfg.Engine.MaxTicks {
				return nil
			}
		}
	}
}

// fillFeedEvents returns the fill feed's event channel, or nil if no fill
// feed was wired. A nil channel blocks forever in a select, which is exactly
// the behavior wanted when there is no user-channel feed (e.g. dry-run).
func (e *Engine) fillFeedEvents() <-chan types.WSOrderEvent {
	if e.fillFeed == nil {
		return nil
	}
	return e.fillFeed.Events()
}

func (e *Engine) applyMarketEvent(evt types.MarketEvent) {
	switch evt.Kind {
	case types.EventBookUpdate:
		if evt.Book == nil {
			return
		}
		e.hub.ProcessSnapshot(evt.TokenID, evt.Book.Bids, evt.Book.Asks, evt.Book.Timestamp.UnixMilli(), evt.Book.Hash)
		if mid, ok := e.hub.GetBook(evt.TokenID); ok {
			if m, ok := mid.MidPrice(); ok {
				e.positions.UpdatePrice(evt.TokenID, m)
			}
		}
	case types.EventTrade:
		e.hub.PublishTrade(evt.TokenID, evt.Price, evt.Size, evt.IsBuy, evt.Timestamp)
	}
}

// tick runs one full engine cycle: snapshot state, ask every strategy for
// signals, and push each signal through the risk gate and order manager in
// the exact order the reservation protocol requires: check, reserve, submit,
// confirm-or-release.
func (e *Engine) tick(ctx context.Context) {
	snapshot := &strategy.Context{
		Timestamp:     time.Now(),
		OrderBooks:    e.hub.GetAllBooks(),
		Positions:     e.positions,
		Markets:       e.markets,
		UnrealizedPnl: e.positions.TotalUnrealized(),
		RealizedPnl:   e.positions.TotalRealized(),
	}

	for _, signal := range e.strategies.Tick(snapshot) {
		e.handleSignal(signal)
	}
}

func (e *Engine) handleSignal(signal types.Signal) {
	switch signal.Kind {
	case types.SignalHold:
		return
	case types.SignalCancel:
		if err := e.orders.Cancel(signal.TokenID); err != nil {
			e.logger.Error("cancel failed", "token_id", signal.TokenID, "error", err)
		}
		return
	case types.SignalShutdown:
		e.logger.Warn("strategy requested shutdown", "reason", signal.Reason)
		e.shutdownRequested = true
		e.shutdownReason = signal.Reason
		return
	}

	result := e.riskMgr.CheckSignal(signal, e.positions)
	switch result.Verdict {
	case risk.Rejected:
		api.RecordSignal(signal.Kind.String(), "rejected")
		e.logger.Debug("signal rejected", "token_id", signal.TokenID, "reason", result.Reason)
		return
	case risk.Reduced:
		api.RecordSignal(signal.Kind.String(), "reduced")
		e.logger.Debug("signal reduced", "token_id", signal.TokenID, "reason", result.Reason, "size", result.Signal.Size)
	default:
		api.RecordSignal(signal.Kind.String(), "approved")
	}

	approved := result.Signal
	notional := approved.Price.Mul(approved.Size)
	reservationID, ok := e.riskMgr.Reserve(approved.TokenID, notional, e.positions)
	if !ok {
		e.logger.Warn("reservation refused, exposure would overflow", "token_id", approved.TokenID)
		return
	}

	orderID, err := e.orders.Execute(approved)
	if err != nil {
		e.logger.Error("execution failed", "token_id", approved.TokenID, "error", err)
		e.riskMgr.Release(reservationID)
		return
	}
	if orderID == "" {
		// Dry-run: nothing to track, nothing to confirm.
		e.riskMgr.Release(reservationID)
		return
	}
	e.riskMgr.Confirm(reservationID, orderID)
}

// shutdown cancels every resting order as a safety net and notifies every
// strategy so it can release any internal state.
func (e *Engine) shutdown() {
	e.logger.Info("shutting down, cancelling all orders")
	if n, err := e.orders.CancelAll(); err != nil {
		e.logger.Error("cancel all failed on shutdown", "error", err)
	} else {
		e.logger.Info("cancelled resting orders", "count", n)
	}
	e.strategies.OnShutdown()
	if err := e.feed.Close(); err != nil {
		e.logger.Warn("error closing book feed", "error", err)
	}
	if e.fillFeed != nil {
		if err := e.fillFeed.Close(); err != nil {
			e.logger.Warn("error closing fill feed", "error", err)
		}
	}
	close(e.dashboardCh)
}

// State reports the engine's current phase, exposed for diagnostics/CLI.
func (e *Engine) State() State { return e.state }
