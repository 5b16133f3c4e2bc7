package book

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

// broadcastBuffer is the per-subscriber channel depth for the lossy market
// event stream. When a subscriber falls behind, the oldest pending event is
// dropped to make room for the newest one, since live data must always reach
// listeners.
const broadcastBuffer = 256

// Hub owns the authoritative per-token OrderBook map and fans out updates to
// any number of subscribers through a lossy, drop-oldest broadcast.
type Hub struct {
	mu     sync.RWMutex
	books  map[types.TokenId]*OrderBook
	subsMu sync.Mutex
	subs   []chan types.MarketEvent
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{books: make(map[types.TokenId]*OrderBook)}
}

// InitBook inserts an empty book for tokenID if one is not already tracked.
// Idempotent.
func (h *Hub) InitBook(tokenID types.TokenId) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.books[tokenID]; !ok {
		h.books[tokenID] = New(tokenID)
	}
}

// ProcessSnapshot replaces tokenID's book with a fresh wholesale snapshot and
// broadcasts a BookUpdate event. The write lock is held only long enough to
// swap the ladders; broadcast happens after release.
func (h *Hub) ProcessSnapshot(tokenID types.TokenId, bids, asks []types.Level, timestampMs int64, hash string) {
	h.mu.Lock()
	ob, ok := h.books[tokenID]
	if !ok {
		ob = New(tokenID)
		h.books[tokenID] = ob
	}
	ob.ApplySnapshot(bids, asks, timestampMs, hash)
	snap := ob.Snapshot()
	h.mu.Unlock()

	h.broadcast(types.MarketEvent{
		Kind:    types.EventBookUpdate,
		TokenID: tokenID,
		Book:    &snap,
	})
}

// PublishTrade broadcasts a Trade event for tokenID without touching the book
// map.
func (h *Hub) PublishTrade(tokenID types.TokenId, price, size decimal.Decimal, isBuy bool, timestamp time.Time) {
	h.broadcast(types.MarketEvent{
		Kind:      types.EventTrade,
		TokenID:   tokenID,
		Price:     price,
		Size:      size,
		IsBuy:     isBuy,
		Timestamp: timestamp,
	})
}

func (h *Hub) broadcast(evt types.MarketEvent) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			// Full: drop the oldest pending item, then push the new one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}
}

// GetBook returns an immutable copy of tokenID's book, or false. The copy is
// taken under the read lock so callers never observe a book the trading loop
// is concurrently mutating via ProcessSnapshot.
func (h *Hub) GetBook(tokenID types.TokenId) (*OrderBook, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ob, ok := h.books[tokenID]
	if !ok {
		return nil, false
	}
	return ob.Clone(), true
}

// GetAllBooks returns a mapping of immutable per-token copies, each cloned
// under the read lock, not the live pointers the hub keeps mutating.
func (h *Hub) GetAllBooks() map[types.TokenId]*OrderBook {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[types.TokenId]*OrderBook, len(h.books))
	for k, v := range h.books {
		out[k] = v.Clone()
	}
	return out
}

// Subscribe returns a new receiver positioned at the current tail; it
// observes every future broadcast event from the moment of the call.
func (h *Hub) Subscribe() <-chan types.MarketEvent {
	ch := make(chan types.MarketEvent, broadcastBuffer)
	h.subsMu.Lock()
	h.subs = append(h.subs, ch)
	h.subsMu.Unlock()
	return ch
}

// BookCount returns the number of tokens currently tracked.
func (h *Hub) BookCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.books)
}
