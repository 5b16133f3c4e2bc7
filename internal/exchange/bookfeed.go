package exchange

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

// BookFeedAdapter turns the market WSFeed's book/price_change events into
// types.MarketEvent, satisfying the BookFeed port. price_change events are
// dropped rather than partially applied: the engine only understands
// wholesale snapshot replacement, and in practice the market feed re-sends a
// full "book" event on every meaningful change for Polymarket's CLOB, which
// is what this adapter relies on.
type BookFeedAdapter struct {
	ws     *WSFeed
	events chan types.MarketEvent
	logger *slog.Logger
}

func NewBookFeedAdapter(ws *WSFeed, logger *slog.Logger) *BookFeedAdapter {
	return &BookFeedAdapter{
		ws:     ws,
		events: make(chan types.MarketEvent, 256),
		logger: logger.With("component", "bookfeed"),
	}
}

func (a *BookFeedAdapter) Subscribe(ctx context.Context, tokens []types.TokenId) error {
	ids := make([]string, len(tokens))
	for i, t := range tokens {
		ids[i] = string(t)
	}
	return a.ws.Subscribe(ctx, ids)
}

func (a *BookFeedAdapter) Events() <-chan types.MarketEvent { return a.events }

func (a *BookFeedAdapter) Close() error { return a.ws.Close() }

// Run pumps the underlying WSFeed's book channel into Events() until ctx is
// cancelled. The caller starts this in its own goroutine; the engine itself
// only ever reads from Events(). This feed is always constructed via
// NewMarketFeed, whose "market" channelType never emits trade/order events —
// those arrive only on the authenticated user channel, consumed separately by
// UserFeedAdapter.
func (a *BookFeedAdapter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-a.ws.BookEvents():
			a.forward(bookSnapshotEvent(evt))
		}
	}
}

func (a *BookFeedAdapter) forward(evt types.MarketEvent) {
	select {
	case a.events <- evt:
	default:
		a.logger.Warn("book feed adapter channel full, dropping event", "token", evt.TokenID)
	}
}

func bookSnapshotEvent(evt types.WSBookEvent) types.MarketEvent {
	return types.MarketEvent{
		Kind:    types.EventBookUpdate,
		TokenID: types.TokenId(evt.AssetID),
		Book: &types.BookSnapshot{
			TokenID:   types.TokenId(evt.AssetID),
			Bids:      levels(evt.Buys),
			Asks:      levels(evt.Sells),
			Hash:      evt.Hash,
			Timestamp: time.Now(),
		},
		Timestamp: time.Now(),
	}
}

func levels(raw []types.PriceLevel) []types.Level {
	out := make([]types.Level, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(r.Size)
		if err != nil {
			continue
		}
		out = append(out, types.Level{Price: price, Size: size})
	}
	return out
}
