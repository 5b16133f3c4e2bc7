// Package risk enforces pre-trade exposure limits and a P&L-driven circuit
// breaker in front of order submission.
//
// RiskManager holds the configured RiskLimits, a boolean halted latch, and a
// reservation ledger indexed by reservation id. A reservation is a
// pre-submission hold on exposure budget: the engine reserves notional after
// a signal passes check_signal and before it calls the OrderSubmitter, so
// that two signals approved within the same tick cannot collectively
// overflow the exposure limit even though each individually fit.
package risk

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"polymarket-mm/internal/position"
	"polymarket-mm/pkg/types"
)

// RiskLimits are the configured ceilings; all fields are non-negative.
type RiskLimits struct {
	MaxPositionSize  decimal.Decimal
	MaxTotalExposure decimal.Decimal
	MaxLoss          decimal.Decimal
	MaxOpenOrders    int
	MaxOrderSize     decimal.Decimal
}

// CheckVerdict tags the outcome of check_signal.
type CheckVerdict int

const (
	Approved CheckVerdict = iota
	Reduced
	Rejected
)

// CheckResult is returned by check_signal.
type CheckResult struct {
	Verdict CheckVerdict
	Signal  types.Signal
	Reason  string
}

// reservation is a transient hold on exposure budget.
type reservation struct {
	tokenID  types.TokenId
	notional decimal.Decimal
	orderID  string // set once confirmed
}

// Manager is the pre-trade risk gate. All exported methods are safe for
// concurrent use, though the engine's cooperative scheduler only ever calls
// them from its own goroutine.
type Manager struct {
	limits RiskLimits
	logger *slog.Logger

	mu           sync.Mutex
	halted       bool
	haltReason   string
	reservations map[string]*reservation
}

// NewManager constructs a risk manager with the given limits.
func NewManager(limits RiskLimits, logger *slog.Logger) *Manager {
	return &Manager{
		limits:       limits,
		logger:       logger.With("component", "risk"),
		reservations: make(map[string]*reservation),
	}
}

// IsHalted reports whether the circuit breaker is tripped.
func (m *Manager) IsHalted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// Reset clears the circuit breaker. Operational only; never automatic.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halted = false
	m.haltReason = ""
	m.logger.Warn("circuit breaker reset")
}

// CheckPnl trips the circuit breaker when realized+unrealized P&L crosses
// -max_loss. Once tripped, it stays tripped until Reset is called.
func (m *Manager) CheckPnl(positions *position.Tracker) {
	total := positions.TotalRealized().Add(positions.TotalUnrealized())
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.halted {
		return
	}
	if total.LessThan(m.limits.MaxLoss.Neg()) {
		m.halted = true
		m.haltReason = "max loss exceeded"
		m.logger.Error("circuit breaker tripped", "total_pnl", total, "max_loss", m.limits.MaxLoss)
	}
}

// exposure computes positions notional plus every live (pending or
// confirmed) reservation's notional. Callers must hold m.mu.
func (m *Manager) exposureLocked(positions *position.Tracker) decimal.Decimal {
	total := positions.TotalNotional()
	for _, r := range m.reservations {
		total = total.Add(r.notional)
	}
	return total
}

// CurrentExposure is the conservative exposure quantity: position notional
// plus every live reservation's notional.
func (m *Manager) CurrentExposure(positions *position.Tracker) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exposureLocked(positions)
}

// RemainingCapacity is max_total_exposure - current exposure, floored at 0.
func (m *Manager) RemainingCapacity(positions *position.Tracker) decimal.Decimal {
	remaining := m.limits.MaxTotalExposure.Sub(m.CurrentExposure(positions))
	if remaining.Sign() < 0 {
		return decimal.Zero
	}
	return remaining
}

// RiskSnapshot is a point-in-time read of the manager's limits, exposure,
// and circuit-breaker state, consumed by the dashboard API.
type RiskSnapshot struct {
	GlobalExposure       decimal.Decimal
	MaxGlobalExposure    decimal.Decimal
	MaxPositionPerMarket decimal.Decimal
	MaxDailyLoss         decimal.Decimal
	MaxOpenOrders        int
	OpenReservations     int
	Halted               bool
	HaltReason           string
}

// GetRiskSnapshot reports the manager's current state against positions.
func (m *Manager) GetRiskSnapshot(positions *position.Tracker) RiskSnapshot {
	m.mu.Lock()
	halted := m.halted
	reason := m.haltReason
	exposure := m.exposureLocked(positions)
	m.mu.Unlock()

	return RiskSnapshot{
		GlobalExposure:       exposure,
		MaxGlobalExposure:    m.limits.MaxTotalExposure,
		MaxPositionPerMarket: m.limits.MaxPositionSize,
		MaxDailyLoss:         m.limits.MaxLoss,
		MaxOpenOrders:        m.limits.MaxOpenOrders,
		OpenReservations:     len(m.reservations),
		Halted:               halted,
		HaltReason:           reason,
	}
}

// CheckSignal validates a signal against configured limits, possibly
// reducing its size or rejecting it outright.
func (m *Manager) CheckSignal(signal types.Signal, positions *position.Tracker) CheckResult {
	m.mu.Lock()
	halted := m.halted
	m.mu.Unlock()

	if halted {
		return CheckResult{Verdict: Rejected, Reason: "circuit breaker active"}
	}

	switch signal.Kind {
	case types.SignalHold, types.SignalCancel:
		return CheckResult{Verdict: Approved, Signal: signal}
	case types.SignalBuy, types.SignalSell:
		return m.checkOrder(signal, positions)
	default:
		return CheckResult{Verdict: Approved, Signal: signal}
	}
}

func (m *Manager) checkOrder(signal types.Signal, positions *position.Tracker) CheckResult {
	price := signal.Price
	size := signal.Size
	notional := price.Mul(size)

	// (a) order size ceiling.
	if notional.GreaterThan(m.limits.MaxOrderSize) {
		maxSize := m.limits.MaxOrderSize.Div(price)
		return CheckResult{
			Verdict: Reduced,
			Signal:  signal.WithSize(maxSize),
			Reason:  "order size reduced (max order size)",
		}
	}

	// (b) per-token position ceiling.
	currentSize := decimal.Zero
	if pos, ok := positions.Get(signal.TokenID); ok {
		currentSize = pos.Size
	}
	projected := currentSize
	if signal.IsBuy() {
		projected = projected.Add(size)
	} else {
		projected = projected.Sub(size)
	}
	if projected.Abs().Mul(price).GreaterThan(m.limits.MaxPositionSize) {
		allowed := m.limits.MaxPositionSize.Div(price).Sub(currentSize.Abs())
		if allowed.Sign() <= 0 {
			return CheckResult{Verdict: Rejected, Reason: "position limit reached"}
		}
		return CheckResult{
			Verdict: Reduced,
			Signal:  signal.WithSize(allowed),
			Reason:  "order size reduced (position limit)",
		}
	}

	// (c) total exposure ceiling.
	m.mu.Lock()
	exposure := m.exposureLocked(positions)
	m.mu.Unlock()
	if exposure.Add(notional).GreaterThan(m.limits.MaxTotalExposure) {
		allowed := m.limits.MaxTotalExposure.Sub(exposure)
		if allowed.Sign() <= 0 {
			return CheckResult{Verdict: Rejected, Reason: "total exposure limit reached"}
		}
		allowedSize := allowed.Div(price)
		return CheckResult{
			Verdict: Reduced,
			Signal:  signal.WithSize(allowedSize),
			Reason:  "order size reduced (total exposure)",
		}
	}

	return CheckResult{Verdict: Approved, Signal: signal}
}

// Reserve records a pending reservation for notional and returns its id, or
// ("", false) if it would push exposure over the limit. The engine calls
// this after a successful check_signal and before order submission, closing
// the within-tick race where two approved signals individually fit but
// collectively overflow.
func (m *Manager) Reserve(tokenID types.TokenId, notional decimal.Decimal, positions *position.Tracker) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	projected := m.exposureLocked(positions).Add(notional)
	if projected.GreaterThan(m.limits.MaxTotalExposure) {
		return "", false
	}
	id := uuid.NewString()
	m.reservations[id] = &reservation{tokenID: tokenID, notional: notional}
	return id, true
}

// Confirm links a reservation to a live order id; it remains counted toward
// exposure.
func (m *Manager) Confirm(reservationID, orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reservations[reservationID]; ok {
		r.orderID = orderID
	}
}

// Release removes a reservation outright (submission failed, or no order was
// placed — e.g. dry-run).
func (m *Manager) Release(reservationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reservations, reservationID)
}

// OrderClosed finds the confirmed reservation for orderID (on fill or
// cancel) and removes it.
func (m *Manager) OrderClosed(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.reservations {
		if r.orderID == orderID {
			delete(m.reservations, id)
			return
		}
	}
}

// OpenReservationCount is the number of live (pending or confirmed)
// reservations, exposed for the dashboard.
func (m *Manager) OpenReservationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reservations)
}
