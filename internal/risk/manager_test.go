package risk

import (
	"log/slog"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/position"
	"polymarket-mm/pkg/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testLimits() RiskLimits {
	return RiskLimits{
		MaxPositionSize:  dec("100"),
		MaxTotalExposure: dec("100"),
		MaxLoss:          dec("25"),
		MaxOpenOrders:    10,
		MaxOrderSize:     dec("25"),
	}
}

func newTestManager() *Manager {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewManager(testLimits(), logger)
}

func TestCheckSignalApprovesWithinLimits(t *testing.T) {
	rm := newTestManager()
	positions := position.NewTracker()

	sig := types.Buy("tok1", dec("0.50"), dec("10"), types.UrgencyMedium)
	res := rm.CheckSignal(sig, positions)
	if res.Verdict != Approved {
		t.Fatalf("expected approved, got %v (%s)", res.Verdict, res.Reason)
	}
}

func TestCheckSignalReducesOnOrderSize(t *testing.T) {
	rm := newTestManager()
	positions := position.NewTracker()

	// notional 0.50*60=30 > max_order_size 25
	sig := types.Buy("tok1", dec("0.50"), dec("60"), types.UrgencyMedium)
	res := rm.CheckSignal(sig, positions)
	if res.Verdict != Reduced {
		t.Fatalf("expected reduced, got %v", res.Verdict)
	}
	if !res.Signal.Size.Equal(dec("50")) {
		t.Fatalf("expected size reduced to 50, got %s", res.Signal.Size)
	}
}

func TestCheckSignalRejectsWhenHalted(t *testing.T) {
	rm := newTestManager()
	positions := position.NewTracker()
	rm.limits.MaxLoss = dec("1")

	tr := position.NewTracker()
	tr.ApplyFill(types.Fill{TokenID: "tok1", IsBuy: true, Price: dec("0.50"), Size: dec("10")})
	tr.UpdatePrice("tok1", dec("0.30"))
	rm.CheckPnl(tr)
	if !rm.IsHalted() {
		t.Fatal("expected circuit breaker tripped")
	}

	sig := types.Buy("tok1", dec("0.50"), dec("1"), types.UrgencyLow)
	res := rm.CheckSignal(sig, positions)
	if res.Verdict != Rejected {
		t.Fatalf("expected rejected while halted, got %v", res.Verdict)
	}

	rm.Reset()
	if rm.IsHalted() {
		t.Fatal("expected reset to clear halt")
	}
}

func TestReservationRaceTwoSignalsCollectivelyOverflow(t *testing.T) {
	rm := newTestManager()
	rm.limits.MaxTotalExposure = dec("50")
	positions := position.NewTracker()

	id1, ok := rm.Reserve("tok1", dec("30"), positions)
	if !ok {
		t.Fatal("expected first reservation to succeed")
	}

	// Second signal for notional 30 no longer fits (30+30=60 > 50); the
	// engine is expected to have already reduced it via CheckSignal before
	// reserving, but Reserve itself must refuse to overflow regardless.
	if _, ok := rm.Reserve("tok2", dec("30"), positions); ok {
		t.Fatal("expected second reservation of 30 to be refused (would overflow)")
	}
	if _, ok := rm.Reserve("tok2", dec("20"), positions); !ok {
		t.Fatal("expected reduced reservation of 20 to fit exactly")
	}

	rm.Release(id1)
	if n := rm.OpenReservationCount(); n != 1 {
		t.Fatalf("expected 1 reservation remaining after release, got %d", n)
	}
}

func TestConfirmAndOrderClosed(t *testing.T) {
	rm := newTestManager()
	positions := position.NewTracker()

	id, ok := rm.Reserve("tok1", dec("10"), positions)
	if !ok {
		t.Fatal("expected reservation to succeed")
	}
	rm.Confirm(id, "order-1")
	if n := rm.OpenReservationCount(); n != 1 {
		t.Fatalf("expected reservation still open after confirm, got %d", n)
	}

	rm.OrderClosed("order-1")
	if n := rm.OpenReservationCount(); n != 0 {
		t.Fatalf("expected reservation removed after order closed, got %d", n)
	}
}

func TestPositionLimitRejectsAtMax(t *testing.T) {
	rm := newTestManager()
	rm.limits.MaxOrderSize = dec("1000")
	rm.limits.MaxTotalExposure = dec("1000")
	positions := position.NewTracker()
	// 200 @ 0.50 = 100 notional, exactly max_position_size.
	positions.ApplyFill(types.Fill{TokenID: "tok1", IsBuy: true, Price: dec("0.50"), Size: dec("200")})

	sig := types.Buy("tok1", dec("0.50"), dec("10"), types.UrgencyLow)
	res := rm.CheckSignal(sig, positions)
	if res.Verdict != Rejected {
		t.Fatalf("expected rejected at max position, got %v (%s)", res.Verdict, res.Reason)
	}
}
