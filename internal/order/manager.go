// Package order tracks outstanding orders and executes approved signals
// against an OrderSubmitter port, emitting fills on a channel.
package order

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

// Submitter is the OrderSubmitter port: signs and submits limit orders,
// cancels them, and reports whether it is operating in dry-run mode.
type Submitter interface {
	PlaceLimit(ctx context.Context, tokenID types.TokenId, isBuy bool, price, size decimal.Decimal) (orderID string, err error)
	Cancel(ctx context.Context, orderID string) error
	CancelMany(ctx context.Context, orderIDs []string) error
	IsDryRun() bool
}

// submissionTimeout bounds every call into the OrderSubmitter port.
const submissionTimeout = 30 * time.Second

// Manager owns the map of outstanding orders and the sender half of the
// fills channel.
type Manager struct {
	submitter Submitter
	logger    *slog.Logger
	fillsCh   chan types.Fill

	mu     sync.Mutex
	orders map[string]*types.TrackedOrder
}

// NewManager constructs an order manager. fillsCh is bounded; its closure by
// the caller while fills are still pending is fatal to the engine — the
// manager never closes it itself.
func NewManager(submitter Submitter, fillsCh chan types.Fill, logger *slog.Logger) *Manager {
	return &Manager{
		submitter: submitter,
		logger:    logger.With("component", "order-manager"),
		fillsCh:   fillsCh,
		orders:    make(map[string]*types.TrackedOrder),
	}
}

// Execute submits a Buy/Sell signal. Returns the new order id, or ("", nil)
// when submission was a no-op (dry-run, no tracking performed).
func (m *Manager) Execute(signal types.Signal) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), submissionTimeout)
	defer cancel()

	if m.submitter.IsDryRun() {
		id := "dry-" + uuid.NewString()
		m.logger.Info("dry-run order", "order_id", id, "token_id", signal.TokenID, "is_buy", signal.IsBuy(), "price", signal.Price, "size", signal.Size)
		return "", nil
	}

	orderID, err := m.submitter.PlaceLimit(ctx, signal.TokenID, signal.IsBuy(), signal.Price, signal.Size)
	if err != nil {
		return "", fmt.Errorf("place limit: %w", err)
	}

	m.mu.Lock()
	m.orders[orderID] = &types.TrackedOrder{
		ID:         orderID,
		TokenID:    signal.TokenID,
		IsBuy:      signal.IsBuy(),
		Price:      signal.Price,
		Size:       signal.Size,
		FilledSize: decimal.Zero,
		Status:     types.OrderOpen,
		CreatedAt:  time.Now(),
	}
	m.mu.Unlock()

	return orderID, nil
}

// Cancel submits cancellations for every active order on tokenID (a Cancel
// signal is unconditional: it fires even with nothing live).
func (m *Manager) Cancel(tokenID types.TokenId) error {
	ctx, cancel := context.WithTimeout(context.Background(), submissionTimeout)
	defer cancel()

	ids := m.activeOrderIDs(tokenID)
	if len(ids) == 0 {
		return nil
	}
	return m.submitter.CancelMany(ctx, ids)
}

// CancelAll cancels every active order, used for graceful shutdown.
func (m *Manager) CancelAll() (cancelled int, err error) {
	ctx, cancelFn := context.WithTimeout(context.Background(), submissionTimeout)
	defer cancelFn()

	ids := m.activeOrderIDs("")
	if len(ids) == 0 {
		return 0, nil
	}
	if err := m.submitter.CancelMany(ctx, ids); err != nil {
		return 0, fmt.Errorf("cancel all: %w", err)
	}
	return len(ids), nil
}

func (m *Manager) activeOrderIDs(tokenID types.TokenId) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, o := range m.orders {
		if tokenID != "" && o.TokenID != tokenID {
			continue
		}
		switch o.Status {
		case types.OrderOpen, types.OrderPartiallyFilled, types.OrderPending:
			ids = append(ids, id)
		}
	}
	return ids
}

// ProcessFill records an execution against a tracked order, advances its
// status, and emits a Fill on the fills channel. A closed fills channel is
// fatal: the send panics, and nothing in the engine recovers it.
func (m *Manager) ProcessFill(orderID string, price, size decimal.Decimal, fee decimal.Decimal) {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("fill for unknown order", "order_id", orderID)
		return
	}
	o.FilledSize = o.FilledSize.Add(size)
	if o.FilledSize.GreaterThanOrEqual(o.Size) {
		o.Status = types.OrderFilled
	} else {
		o.Status = types.OrderPartiallyFilled
	}
	fill := types.Fill{
		OrderID:   orderID,
		TokenID:   o.TokenID,
		IsBuy:     o.IsBuy,
		Price:     price,
		Size:      size,
		Timestamp: time.Now(),
		Fee:       fee,
	}
	m.mu.Unlock()

	m.fillsCh <- fill
}

// ProcessOrderUpdate translates a user-channel order lifecycle event into a
// fill. The order WS event carries SizeMatched as a cumulative filled
// amount, not a per-event delta, so this computes the delta against the
// order's currently tracked FilledSize before handing it to ProcessFill —
// calling ProcessFill directly with the cumulative value would double-count
// every update after the first. CANCELLATION events carry no fill and only
// mark the order cancelled.
func (m *Manager) ProcessOrderUpdate(evt types.WSOrderEvent) {
	if evt.Type == "CANCELLATION" {
		m.MarkCancelled(evt.ID)
		return
	}

	cumulative, err := decimal.NewFromString(evt.SizeMatched)
	if err != nil {
		m.logger.Warn("order update with unparseable size_matched", "order_id", evt.ID, "size_matched", evt.SizeMatched, "error", err)
		return
	}

	m.mu.Lock()
	o, ok := m.orders[evt.ID]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("order update for unknown order", "order_id", evt.ID)
		return
	}
	delta := cumulative.Sub(o.FilledSize)
	m.mu.Unlock()

	if delta.Sign() <= 0 {
		return
	}

	price, err := decimal.NewFromString(evt.Price)
	if err != nil {
		m.logger.Warn("order update with unparseable price", "order_id", evt.ID, "price", evt.Price, "error", err)
		return
	}
	m.ProcessFill(evt.ID, price, delta, decimal.Zero)
}

// Get returns a copy of the tracked order, or false if unknown.
func (m *Manager) Get(orderID string) (types.TrackedOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return types.TrackedOrder{}, false
	}
	return *o, true
}

// MarkCancelled transitions an order to Cancelled, e.g. on a confirmed
// cancel notification.
func (m *Manager) MarkCancelled(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		o.Status = types.OrderCancelled
	}
}

// OpenOrderCount returns the number of orders not yet in a terminal state.
func (m *Manager) OpenOrderCount() int {
	return len(m.activeOrderIDs(""))
}
