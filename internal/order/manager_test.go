package order

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	dryRun   bool
	nextID   int
	placed   []string
	cancels  []string
	failNext bool
}

func (f *fakeSubmitter) PlaceLimit(ctx context.Context, tokenID types.TokenId, isBuy bool, price, size decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return "", errors.New("submission failed")
	}
	f.nextID++
	id := "ord-" + string(rune('0'+f.nextID))
	f.placed = append(f.placed, id)
	return id, nil
}

func (f *fakeSubmitter) Cancel(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, orderID)
	return nil
}

func (f *fakeSubmitter) CancelMany(ctx context.Context, orderIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, orderIDs...)
	return nil
}

func (f *fakeSubmitter) IsDryRun() bool { return f.dryRun }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestExecuteTracksOpenOrder(t *testing.T) {
	sub := &fakeSubmitter{}
	fills := make(chan types.Fill, 10)
	m := NewManager(sub, fills, testLogger())

	sig := types.Buy("tok1", dec("0.50"), dec("10"), types.UrgencyMedium)
	id, err := m.Execute(sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty order id")
	}
	o, ok := m.Get(id)
	if !ok || o.Status != types.OrderOpen {
		t.Fatalf("expected open order, got %+v ok=%v", o, ok)
	}
}

func TestExecuteDryRunReturnsNoTrackedOrder(t *testing.T) {
	sub := &fakeSubmitter{dryRun: true}
	fills := make(chan types.Fill, 10)
	m := NewManager(sub, fills, testLogger())

	sig := types.Buy("tok1", dec("0.50"), dec("10"), types.UrgencyMedium)
	id, err := m.Execute(sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "" {
		t.Fatalf("expected no order id in dry-run, got %q", id)
	}
	if m.OpenOrderCount() != 0 {
		t.Fatal("expected dry-run to avoid tracking")
	}
}

func TestExecuteSubmissionErrorPropagates(t *testing.T) {
	sub := &fakeSubmitter{failNext: true}
	fills := make(chan types.Fill, 10)
	m := NewManager(sub, fills, testLogger())

	sig := types.Buy("tok1", dec("0.50"), dec("10"), types.UrgencyMedium)
	if _, err := m.Execute(sig); err == nil {
		t.Fatal("expected submission error")
	}
}

func TestProcessFillEmitsAndAdvancesStatus(t *testing.T) {
	sub := &fakeSubmitter{}
	fills := make(chan types.Fill, 10)
	m := NewManager(sub, fills, testLogger())

	sig := types.Buy("tok1", dec("0.50"), dec("10"), types.UrgencyMedium)
	id, _ := m.Execute(sig)

	m.ProcessFill(id, dec("0.50"), dec("4"), decimal.Zero)
	o, _ := m.Get(id)
	if o.Status != types.OrderPartiallyFilled {
		t.Fatalf("expected partially filled, got %v", o.Status)
	}

	m.ProcessFill(id, dec("0.50"), dec("6"), decimal.Zero)
	o, _ = m.Get(id)
	if o.Status != types.OrderFilled {
		t.Fatalf("expected filled, got %v", o.Status)
	}

	select {
	case f := <-fills:
		if f.OrderID != id {
			t.Fatalf("unexpected fill order id %s", f.OrderID)
		}
	default:
		t.Fatal("expected at least one fill emitted")
	}
}

func TestCancelOnlyTargetsTokenOrders(t *testing.T) {
	sub := &fakeSubmitter{}
	fills := make(chan types.Fill, 10)
	m := NewManager(sub, fills, testLogger())

	sig1 := types.Buy("tok1", dec("0.50"), dec("10"), types.UrgencyMedium)
	sig2 := types.Buy("tok2", dec("0.50"), dec("10"), types.UrgencyMedium)
	m.Execute(sig1)
	m.Execute(sig2)

	if err := m.Cancel("tok1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sub.cancels) != 1 {
		t.Fatalf("expected 1 cancel for tok1 only, got %d", len(sub.cancels))
	}
}
