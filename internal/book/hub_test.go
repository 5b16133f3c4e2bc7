package book

import (
	"testing"

	"polymarket-mm/pkg/types"
)

func TestHubInitBookIdempotent(t *testing.T) {
	h := NewHub()
	h.InitBook("tok1")
	h.InitBook("tok1")
	if h.BookCount() != 1 {
		t.Fatalf("expected 1 book, got %d", h.BookCount())
	}
}

func TestHubProcessSnapshotBroadcasts(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()

	h.ProcessSnapshot("tok1", []types.Level{lvl("0.45", "10")}, []types.Level{lvl("0.55", "10")}, 1000, "h1")

	evt := <-sub
	if evt.Kind != types.EventBookUpdate || evt.TokenID != "tok1" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.Book == nil || len(evt.Book.Bids) != 1 {
		t.Fatalf("expected book snapshot with 1 bid, got %+v", evt.Book)
	}
}

func TestHubGetBookAndAll(t *testing.T) {
	h := NewHub()
	h.ProcessSnapshot("tok1", []types.Level{lvl("0.45", "10")}, nil, 1, "h")
	h.ProcessSnapshot("tok2", []types.Level{lvl("0.30", "5")}, nil, 1, "h")

	if _, ok := h.GetBook("missing"); ok {
		t.Fatal("expected missing token to be absent")
	}
	ob, ok := h.GetBook("tok1")
	if !ok || ob.TokenID != "tok1" {
		t.Fatalf("expected tok1 book, got %+v", ob)
	}
	if all := h.GetAllBooks(); len(all) != 2 {
		t.Fatalf("expected 2 books, got %d", len(all))
	}
}

func TestHubDropOldestOnFullSubscriber(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()

	for i := 0; i < broadcastBuffer+10; i++ {
		h.ProcessSnapshot("tok1", []types.Level{lvl("0.45", "10")}, nil, int64(i), "h")
	}

	// Subscriber never drained: channel should be full but not blocked, and
	// the most recent event must be observable somewhere in the buffer.
	if len(sub) != broadcastBuffer {
		t.Fatalf("expected buffer full at %d, got %d", broadcastBuffer, len(sub))
	}
	var last types.MarketEvent
	for len(sub) > 0 {
		last = <-sub
	}
	if last.Book == nil || last.Book.Timestamp.UnixMilli() != int64(broadcastBuffer+9) {
		t.Fatalf("expected most recent event (ts %d) last in buffer, got %+v", broadcastBuffer+9, last.Book)
	}
}
