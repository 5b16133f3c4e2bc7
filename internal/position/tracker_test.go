package position

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func fill(tokenID types.TokenId, isBuy bool, price, size string) types.Fill {
	return types.Fill{
		TokenID:   tokenID,
		IsBuy:     isBuy,
		Price:     dec(price),
		Size:      dec(size),
		Timestamp: time.Now(),
	}
}

func TestRoundTripLongThenClose(t *testing.T) {
	tr := NewTracker()
	tr.ApplyFill(fill("tok1", true, "0.50", "10"))

	pos, _ := tr.Get("tok1")
	if !pos.Size.Equal(dec("10")) || !pos.AvgEntryPrice.Equal(dec("0.50")) {
		t.Fatalf("unexpected position after buy: %+v", pos)
	}

	tr.ApplyFill(fill("tok1", false, "0.60", "5"))
	pos, _ = tr.Get("tok1")
	if !pos.Size.Equal(dec("5")) {
		t.Fatalf("expected size 5, got %s", pos.Size)
	}
	if !pos.RealizedPnl.Equal(dec("0.50")) {
		t.Fatalf("expected realized 0.50 (5 * (0.60-0.50)), got %s", pos.RealizedPnl)
	}
}

func TestFlipThroughZeroShortToLong(t *testing.T) {
	tr := NewTracker()
	// Open short 10 @ 0.60.
	tr.ApplyFill(fill("tok1", false, "0.60", "10"))
	pos, _ := tr.Get("tok1")
	if !pos.Size.Equal(dec("-10")) || !pos.AvgEntryPrice.Equal(dec("0.60")) {
		t.Fatalf("unexpected short position: %+v", pos)
	}

	// Buy 15 @ 0.50: covers the 10 short (realizing 10*(0.60-0.50)=1.00) and
	// opens a new long of 5 @ 0.50.
	tr.ApplyFill(fill("tok1", true, "0.50", "15"))
	pos, _ = tr.Get("tok1")
	if !pos.Size.Equal(dec("5")) {
		t.Fatalf("expected flipped long size 5, got %s", pos.Size)
	}
	if !pos.AvgEntryPrice.Equal(dec("0.50")) {
		t.Fatalf("expected new avg entry 0.50 after flip, got %s", pos.AvgEntryPrice)
	}
	if !pos.RealizedPnl.Equal(dec("1.00")) {
		t.Fatalf("expected realized 1.00, got %s", pos.RealizedPnl)
	}
}

func TestMarkToMarketFlatIsZero(t *testing.T) {
	tr := NewTracker()
	tr.ApplyFill(fill("tok1", true, "0.50", "10"))
	tr.ApplyFill(fill("tok1", false, "0.55", "10"))
	tr.UpdatePrice("tok1", dec("0.70"))

	pos, _ := tr.Get("tok1")
	if !pos.Size.IsZero() {
		t.Fatalf("expected flat position, got size %s", pos.Size)
	}
	if !pos.UnrealizedPnl.IsZero() {
		t.Fatalf("expected zero unrealized when flat, got %s", pos.UnrealizedPnl)
	}
}

func TestUnrealizedLongAndShort(t *testing.T) {
	tr := NewTracker()
	tr.ApplyFill(fill("tok1", true, "0.50", "10"))
	tr.UpdatePrice("tok1", dec("0.60"))
	pos, _ := tr.Get("tok1")
	if !pos.UnrealizedPnl.Equal(dec("1.00")) {
		t.Fatalf("expected unrealized 1.00 for long, got %s", pos.UnrealizedPnl)
	}

	tr2 := NewTracker()
	tr2.ApplyFill(fill("tok2", false, "0.50", "10"))
	tr2.UpdatePrice("tok2", dec("0.40"))
	pos2, _ := tr2.Get("tok2")
	if !pos2.UnrealizedPnl.Equal(dec("1.00")) {
		t.Fatalf("expected unrealized 1.00 for short, got %s", pos2.UnrealizedPnl)
	}
}

func TestAggregates(t *testing.T) {
	tr := NewTracker()
	tr.ApplyFill(fill("tok1", true, "0.50", "10"))
	tr.ApplyFill(fill("tok2", true, "0.30", "20"))
	tr.UpdatePrice("tok1", dec("0.55"))
	tr.UpdatePrice("tok2", dec("0.30"))

	if n := len(tr.ActivePositions()); n != 2 {
		t.Fatalf("expected 2 active positions, got %d", n)
	}
	// notional = |10|*0.55 + |20|*0.30 = 5.5 + 6 = 11.5
	if total := tr.TotalNotional(); !total.Equal(dec("11.5")) {
		t.Fatalf("expected total notional 11.5, got %s", total)
	}
}
