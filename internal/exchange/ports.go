package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

// OrderSubmitter is the external boundary the engine submits signals
// through. Concrete adapters wrap the CLOB REST client.
type OrderSubmitter interface {
	PlaceLimit(ctx context.Context, tokenID types.TokenId, isBuy bool, price, size decimal.Decimal) (orderID string, err error)
	Cancel(ctx context.Context, orderID string) error
	CancelMany(ctx context.Context, orderIDs []string) error
	IsDryRun() bool
}

// BookFeed streams order-book and trade events for subscribed tokens.
type BookFeed interface {
	Subscribe(ctx context.Context, tokens []types.TokenId) error
	Events() <-chan types.MarketEvent
	Close() error
}

// MarketCatalog discovers tradable markets and resolves each to its
// high-certainty index token: argmax(outcome_prices).
type MarketCatalog interface {
	Discover(ctx context.Context) ([]types.MarketCtx, error)
	HighCertaintyToken(ctx context.Context, market types.MarketCtx) (types.TokenId, error)
}

// FillFeed streams the authenticated user channel's order lifecycle events
// (placement, partial/full fill, cancellation) for subscribed condition IDs.
// This is the feed that actually carries our own order fills — distinct from
// BookFeed's public market-data stream, which never sees our order IDs.
type FillFeed interface {
	Subscribe(ctx context.Context, conditionIDs []string) error
	Events() <-chan types.WSOrderEvent
	Close() error
}
