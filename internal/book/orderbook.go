// Package book implements the order-book value type and the hub that owns
// one book per subscribed token and fans out updates to listeners.
package book

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

// ErrInsufficientLiquidity is returned by VWAPBuy/VWAPSell when the ladder
// does not have enough depth to fill the requested size. A VWAP that
// exhausts the book is a failure, not a partial result.
var ErrInsufficientLiquidity = errors.New("book: insufficient liquidity for requested size")

var ten000 = decimal.NewFromInt(10000)
var two = decimal.NewFromInt(2)

// OrderBook is a pure value: sorted bid/ask ladders plus derived metrics.
// Every query is a function of current state; there is no incremental
// matching here, only wholesale replacement via ApplySnapshot.
type OrderBook struct {
	TokenID     types.TokenId
	Bids        []types.Level // strictly descending by price
	Asks        []types.Level // strictly ascending by price
	TimestampMs int64
	Hash        string
}

// New returns an empty book for the given token, as created on subscription.
func New(tokenID types.TokenId) *OrderBook {
	return &OrderBook{TokenID: tokenID}
}

// ApplySnapshot replaces both ladders wholesale. No attempt is made to
// reconcile deltas; the feed is assumed to deliver full-depth snapshots. The
// input need not already be sorted; ApplySnapshot sorts and drops zero-size
// levels so the invariants below always hold afterward.
func (b *OrderBook) ApplySnapshot(bids, asks []types.Level, timestampMs int64, hash string) {
	b.Bids = sortedDescending(bids)
	b.Asks = sortedAscending(asks)
	b.TimestampMs = timestampMs
	b.Hash = hash
}

func sortedDescending(levels []types.Level) []types.Level {
	out := make([]types.Level, 0, len(levels))
	for _, l := range levels {
		if l.Size.Sign() > 0 {
			out = append(out, l)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Price.GreaterThan(out[j-1].Price); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func sortedAscending(levels []types.Level) []types.Level {
	out := make([]types.Level, 0, len(levels))
	for _, l := range levels {
		if l.Size.Sign() > 0 {
			out = append(out, l)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Price.LessThan(out[j-1].Price); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// BestBid / BestAsk return the head of each ladder, or false if empty.
func (b *OrderBook) BestBid() (types.Level, bool) {
	if len(b.Bids) == 0 {
		return types.Level{}, false
	}
	return b.Bids[0], true
}

func (b *OrderBook) BestAsk() (types.Level, bool) {
	if len(b.Asks) == 0 {
		return types.Level{}, false
	}
	return b.Asks[0], true
}

// MidPrice is (best_bid + best_ask) / 2 iff both sides are present.
func (b *OrderBook) MidPrice() (decimal.Decimal, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(two), true
}

// Spread is best_ask - best_bid iff both sides are present.
func (b *OrderBook) Spread() (decimal.Decimal, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}

// SpreadBps is spread / mid * 10000 iff mid > 0.
func (b *OrderBook) SpreadBps() (decimal.Decimal, bool) {
	spread, ok := b.Spread()
	if !ok {
		return decimal.Zero, false
	}
	mid, ok := b.MidPrice()
	if !ok || mid.Sign() <= 0 {
		return decimal.Zero, false
	}
	return spread.Div(mid).Mul(ten000), true
}

// BidDepth / AskDepth sum sizes across the whole ladder.
func (b *OrderBook) BidDepth() decimal.Decimal { return sumSizes(b.Bids) }
func (b *OrderBook) AskDepth() decimal.Decimal { return sumSizes(b.Asks) }

func sumSizes(levels []types.Level) decimal.Decimal {
	total := decimal.Zero
	for _, l := range levels {
		total = total.Add(l.Size)
	}
	return total
}

// BidDepthToPrice sums bid sizes at price >= p.
func (b *OrderBook) BidDepthToPrice(p decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.Bids {
		if l.Price.GreaterThanOrEqual(p) {
			total = total.Add(l.Size)
		}
	}
	return total
}

// AskDepthToPrice sums ask sizes at price <= p.
func (b *OrderBook) AskDepthToPrice(p decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.Asks {
		if l.Price.LessThanOrEqual(p) {
			total = total.Add(l.Size)
		}
	}
	return total
}

// VWAPBuy walks the ask ladder, returning the volume-weighted price to buy
// size shares, or ErrInsufficientLiquidity if the book doesn't have that much
// depth.
func (b *OrderBook) VWAPBuy(size decimal.Decimal) (decimal.Decimal, error) {
	return vwapWalk(b.Asks, size)
}

// VWAPSell walks the bid ladder symmetrically.
func (b *OrderBook) VWAPSell(size decimal.Decimal) (decimal.Decimal, error) {
	return vwapWalk(b.Bids, size)
}

func vwapWalk(levels []types.Level, size decimal.Decimal) (decimal.Decimal, error) {
	if size.Sign() <= 0 {
		return decimal.Zero, ErrInsufficientLiquidity
	}
	remaining := size
	totalCost := decimal.Zero
	for _, l := range levels {
		take := l.Size
		if take.GreaterThan(remaining) {
			take = remaining
		}
		totalCost = totalCost.Add(take.Mul(l.Price))
		remaining = remaining.Sub(take)
		if remaining.Sign() <= 0 {
			return totalCost.Div(size), nil
		}
	}
	return decimal.Zero, ErrInsufficientLiquidity
}

// Imbalance is (bid_depth - ask_depth) / (bid_depth + ask_depth), or false
// if both sides are empty. Equal depth yields exactly zero.
func (b *OrderBook) Imbalance() (decimal.Decimal, bool) {
	bidDepth := b.BidDepth()
	askDepth := b.AskDepth()
	total := bidDepth.Add(askDepth)
	if total.Sign() == 0 {
		return decimal.Zero, false
	}
	return bidDepth.Sub(askDepth).Div(total), true
}

// Clone returns an independent copy of b. Callers that hand an *OrderBook
// out past the hub's lock (GetBook/GetAllBooks) must hand out a Clone, never
// the live pointer, since ApplySnapshot keeps overwriting the original's
// Bids/Asks/TimestampMs/Hash fields under the hub's write lock.
func (b *OrderBook) Clone() *OrderBook {
	return &OrderBook{
		TokenID:     b.TokenID,
		Bids:        append([]types.Level(nil), b.Bids...),
		Asks:        append([]types.Level(nil), b.Asks...),
		TimestampMs: b.TimestampMs,
		Hash:        b.Hash,
	}
}

// Snapshot converts to the wire-adjacent types.BookSnapshot shape, used when
// handing a copy to a subscriber.
func (b *OrderBook) Snapshot() types.BookSnapshot {
	return types.BookSnapshot{
		TokenID:   b.TokenID,
		Bids:      append([]types.Level(nil), b.Bids...),
		Asks:      append([]types.Level(nil), b.Asks...),
		Hash:      b.Hash,
		Timestamp: time.UnixMilli(b.TimestampMs),
	}
}
