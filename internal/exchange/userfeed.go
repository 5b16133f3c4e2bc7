package exchange

import (
	"context"
	"log/slog"

	"polymarket-mm/pkg/types"
)

// UserFeedAdapter turns the user-channel WSFeed's order-lifecycle events into
// the FillFeed port. Trade events on the same channel are logged only, not
// forwarded: they carry no order ID (see types.WSTradeEvent), so the order
// manager can't correlate them to a tracked order, and every fill they report
// already arrives — with an order ID and cumulative size — as an order event
// on the same channel. Forwarding both would double-count every fill.
type UserFeedAdapter struct {
	ws     *WSFeed
	events chan types.WSOrderEvent
	logger *slog.Logger
}

func NewUserFeedAdapter(ws *WSFeed, logger *slog.Logger) *UserFeedAdapter {
	return &UserFeedAdapter{
		ws:     ws,
		events: make(chan types.WSOrderEvent, 256),
		logger: logger.With("component", "userfeed"),
	}
}

func (a *UserFeedAdapter) Subscribe(ctx context.Context, conditionIDs []string) error {
	return a.ws.Subscribe(ctx, conditionIDs)
}

func (a *UserFeedAdapter) Events() <-chan types.WSOrderEvent { return a.events }

func (a *UserFeedAdapter) Close() error { return a.ws.Close() }

// Run pumps the underlying WSFeed's order channel into Events() until ctx is
// cancelled. The caller starts this in its own goroutine.
func (a *UserFeedAdapter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-a.ws.OrderEvents():
			select {
			case a.events <- evt:
			default:
				a.logger.Warn("user feed adapter channel full, dropping order event", "order_id", evt.ID)
			}
		case evt := <-a.ws.TradeEvents():
			a.logger.Debug("trade event observed on user channel", "trade_id", evt.ID, "asset_id", evt.AssetID, "side", evt.Side)
		}
	}
}
