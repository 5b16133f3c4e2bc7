// Package position implements average-cost, cross-sign position and P&L
// accounting for every traded token.
package position

import (
	"sync"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

// Position is per-token state: signed size, average entry price, and
// realized/unrealized P&L. avg_entry_price is always >= 0; when size == 0,
// unrealized_pnl is always 0.
type Position struct {
	TokenID       types.TokenId
	Size          decimal.Decimal // signed: positive = long, negative = short
	AvgEntryPrice decimal.Decimal
	RealizedPnl   decimal.Decimal
	UnrealizedPnl decimal.Decimal
	LastPrice     decimal.Decimal
	HasLastPrice  bool
}

func newPosition(tokenID types.TokenId) *Position {
	return &Position{TokenID: tokenID}
}

// applyFill mutates the position in place per the flip-through-zero
// average-cost rules: buying against a short covers it and realizes P&L on
// the covered portion; selling against a long closes it symmetrically.
func (p *Position) applyFill(f types.Fill) {
	s := p.Size
	avg := p.AvgEntryPrice
	delta := f.Size
	price := f.Price

	if f.IsBuy {
		if s.Sign() >= 0 {
			// Adding to (or opening) a long position.
			oldValue := avg.Mul(s)
			newSize := s.Add(delta)
			if newSize.Sign() > 0 {
				avg = oldValue.Add(price.Mul(delta)).Div(newSize)
			}
			p.Size = newSize
			p.AvgEntryPrice = avg
			return
		}
		// Covering a short.
		cover := decimal.Min(delta, s.Neg())
		p.RealizedPnl = p.RealizedPnl.Add(cover.Mul(avg.Sub(price)))
		newSize := s.Add(delta)
		newLong := delta.Sub(cover)
		p.Size = newSize
		if newLong.Sign() > 0 && newSize.Sign() > 0 {
			p.AvgEntryPrice = price
		}
		return
	}

	// Sell.
	if s.Sign() <= 0 {
		// Adding to (or opening) a short position.
		oldValue := avg.Mul(s.Neg())
		newSize := s.Sub(delta)
		if newSize.Sign() < 0 {
			avg = oldValue.Add(price.Mul(delta)).Div(newSize.Neg())
		}
		p.Size = newSize
		p.AvgEntryPrice = avg
		return
	}
	// Closing a long.
	closeSize := decimal.Min(delta, s)
	p.RealizedPnl = p.RealizedPnl.Add(closeSize.Mul(price.Sub(avg)))
	newSize := s.Sub(delta)
	newShort := delta.Sub(closeSize)
	p.Size = newSize
	if newShort.Sign() > 0 && newSize.Sign() < 0 {
		p.AvgEntryPrice = price
	}
}

// updatePrice marks to market against the given price.
func (p *Position) updatePrice(price decimal.Decimal) {
	p.LastPrice = price
	p.HasLastPrice = true
	switch {
	case p.Size.Sign() > 0:
		p.UnrealizedPnl = p.Size.Mul(price.Sub(p.AvgEntryPrice))
	case p.Size.Sign() < 0:
		p.UnrealizedPnl = p.Size.Neg().Mul(p.AvgEntryPrice.Sub(price))
	default:
		p.UnrealizedPnl = decimal.Zero
	}
}

// Notional is the mark-to-market absolute exposure of the position.
func (p *Position) Notional() decimal.Decimal {
	mark := p.AvgEntryPrice
	if p.HasLastPrice {
		mark = p.LastPrice
	}
	return p.Size.Abs().Mul(mark)
}

// Tracker owns every token's Position, created lazily on first fill or price
// update and retained for the engine's lifetime (zero-size positions are
// kept for history).
type Tracker struct {
	mu        sync.RWMutex
	positions map[types.TokenId]*Position
}

func NewTracker() *Tracker {
	return &Tracker{positions: make(map[types.TokenId]*Position)}
}

func (t *Tracker) getOrCreate(tokenID types.TokenId) *Position {
	if p, ok := t.positions[tokenID]; ok {
		return p
	}
	p := newPosition(tokenID)
	t.positions[tokenID] = p
	return p
}

// Get returns a copy of the current position for tokenID, or false if none
// exists yet.
func (t *Tracker) Get(tokenID types.TokenId) (Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.positions[tokenID]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// ApplyFill updates the position for f.TokenID in place.
func (t *Tracker) ApplyFill(f types.Fill) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.getOrCreate(f.TokenID)
	p.applyFill(f)
	if p.Size.IsZero() {
		p.UnrealizedPnl = decimal.Zero
	}
}

// UpdatePrice marks a single token's position to market.
func (t *Tracker) UpdatePrice(tokenID types.TokenId, price decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.positions[tokenID]; ok {
		p.updatePrice(price)
	}
}

// TotalRealized / TotalUnrealized sum P&L across every tracked position.
func (t *Tracker) TotalRealized() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := decimal.Zero
	for _, p := range t.positions {
		total = total.Add(p.RealizedPnl)
	}
	return total
}

func (t *Tracker) TotalUnrealized() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := decimal.Zero
	for _, p := range t.positions {
		total = total.Add(p.UnrealizedPnl)
	}
	return total
}

// TotalNotional sums |size| * (last_price or avg_entry_price) across every
// tracked position.
func (t *Tracker) TotalNotional() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := decimal.Zero
	for _, p := range t.positions {
		total = total.Add(p.Notional())
	}
	return total
}

// ActivePositions returns copies of every position with nonzero size.
func (t *Tracker) ActivePositions() []Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Position, 0, len(t.positions))
	for _, p := range t.positions {
		if !p.Size.IsZero() {
			out = append(out, *p)
		}
	}
	return out
}

// Snapshot returns a copy of every tracked position, keyed by token.
func (t *Tracker) Snapshot() map[types.TokenId]Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[types.TokenId]Position, len(t.positions))
	for k, p := range t.positions {
		out[k] = *p
	}
	return out
}
