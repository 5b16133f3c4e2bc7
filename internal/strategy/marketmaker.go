package strategy

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

// MarketMakerConfig parameterizes the linear reservation/skew quoting model:
// a half-spread band around mid, shifted by signed inventory, clamped to a
// per-token position cap.
type MarketMakerConfig struct {
	SpreadBps   decimal.Decimal // total quoted spread, in bps of mid
	SkewFactor  decimal.Decimal // price shift per unit of signed inventory
	MaxPosition decimal.Decimal // per-token position cap; flattens quoting past it
	OrderSize   decimal.Decimal // per-side order size, capped by remaining room to MaxPosition
	MinEdge     decimal.Decimal // minimum half bid/ask gap; below this the strategy holds
	TickSize    decimal.Decimal

	FlowWindow        time.Duration
	ToxicityThreshold float64
	ToxicityCooldown  time.Duration
	MaxSpreadMultiple float64
}

// DefaultMarketMakerConfig mirrors the constants a teacher-style production
// deployment would tune per market.
func DefaultMarketMakerConfig() MarketMakerConfig {
	return MarketMakerConfig{
		SpreadBps:         decimal.NewFromInt(200),
		SkewFactor:        decimal.NewFromFloat(0.001),
		MaxPosition:       decimal.NewFromInt(100),
		OrderSize:         decimal.NewFromInt(10),
		MinEdge:           decimal.NewFromFloat(0.005),
		TickSize:          decimal.NewFromFloat(0.0001),
		FlowWindow:        60 * time.Second,
		ToxicityThreshold: 0.6,
		ToxicityCooldown:  30 * time.Second,
		MaxSpreadMultiple: 3.0,
	}
}

// MarketMaker is a two-sided linear quoting strategy for binary-outcome
// tokens. Each tick, for every subscribed token whose book has a mid and whose
// quotes clear MinEdge, it cancels its resting quotes and re-quotes a
// half-spread band around mid, shifted by signed inventory, widening the
// spread when recent fills look adversely selected. Other tokens get no
// signals that tick.
//
// Unlike a strategy that talks to an exchange directly, OnTick only emits
// signals; reservation, submission, and reconciliation of actual resting
// orders all happen downstream in the engine.
type MarketMaker struct {
	cfg  MarketMakerConfig
	subs []types.TokenId
	flow map[types.TokenId]*FlowTracker

	logger *slog.Logger
}

func NewMarketMaker(cfg MarketMakerConfig, subs ...types.TokenId) *MarketMaker {
	return &MarketMaker{
		cfg:    cfg,
		subs:   subs,
		flow:   make(map[types.TokenId]*FlowTracker),
		logger: slog.Default().With("strategy", "marketmaker"),
	}
}

func (m *MarketMaker) ID() string                    { return "marketmaker" }
func (m *MarketMaker) Subscriptions() []types.TokenId { return m.subs }
func (m *MarketMaker) RequiresMarketDiscovery() bool  { return false }
func (m *MarketMaker) OnShutdown()                    {}

// AddSubscription registers a token discovered at runtime, e.g. by the
// market scanner after startup.
func (m *MarketMaker) AddSubscription(tokenID types.TokenId) {
	for _, t := range m.subs {
		if t == tokenID {
			return
		}
	}
	m.subs = append(m.subs, tokenID)
}

func (m *MarketMaker) flowFor(tokenID types.TokenId) *FlowTracker {
	ft, ok := m.flow[tokenID]
	if !ok {
		ft = NewFlowTracker(m.cfg.FlowWindow, m.cfg.ToxicityThreshold, m.cfg.ToxicityCooldown, m.cfg.MaxSpreadMultiple)
		m.flow[tokenID] = ft
	}
	return ft
}

// OnFill feeds a completed execution into the per-token flow tracker so the
// next tick's spread reflects recent adverse selection.
func (m *MarketMaker) OnFill(fill types.Fill) {
	m.flowFor(fill.TokenID).AddFill(toxicityFill{Timestamp: fill.Timestamp, IsBuy: fill.IsBuy})
}

func (m *MarketMaker) OnTick(ctx *Context) []types.Signal {
	var signals []types.Signal
	for _, tokenID := range m.subs {
		book, ok := ctx.OrderBooks[tokenID]
		if !ok {
			continue
		}
		mid, ok := book.MidPrice()
		if !ok {
			continue
		}

		pos, _ := ctx.Positions.Get(tokenID)
		bidPrice, askPrice, ok := m.computeQuotes(mid, pos.Size, m.flowFor(tokenID).GetSpreadMultiplier())
		if !ok {
			continue
		}

		signals = append(signals, types.Cancel(tokenID))

		canBuy := pos.Size.LessThan(m.cfg.MaxPosition)
		buySize := decimal.Min(m.cfg.OrderSize, m.cfg.MaxPosition.Sub(pos.Size))
		if canBuy && buySize.IsPositive() {
			signals = append(signals, types.Buy(tokenID, bidPrice, buySize, types.UrgencyLow))
		}

		canSell := pos.Size.GreaterThan(m.cfg.MaxPosition.Neg())
		sellSize := decimal.Min(m.cfg.OrderSize, m.cfg.MaxPosition.Add(pos.Size))
		if canSell && sellSize.IsPositive() {
			signals = append(signals, types.Sell(tokenID, askPrice, sellSize, types.UrgencyLow))
		}
	}
	return signals
}

// computeQuotes applies the linear reservation/skew model:
//
//	half_spread = mid * spread_bps/20000
//	skew        = position_size * skew_factor
//	bid         = mid - half_spread - skew
//	ask         = mid + half_spread - skew
//
// half_spread is additionally scaled by toxicityMultiplier, widening the
// quoted band under adverse selection. A bid/ask gap narrower than 2*MinEdge
// holds rather than quoting.
func (m *MarketMaker) computeQuotes(mid, positionSize decimal.Decimal, toxicityMultiplier float64) (bid, ask decimal.Decimal, ok bool) {
	halfSpread := mid.Mul(m.cfg.SpreadBps).Div(decimal.NewFromInt(20000))
	if toxicityMultiplier != 1.0 {
		halfSpread = halfSpread.Mul(decimal.NewFromFloat(toxicityMultiplier))
	}
	skew := positionSize.Mul(m.cfg.SkewFactor)

	myBid := mid.Sub(halfSpread).Sub(skew)
	myAsk := mid.Add(halfSpread).Sub(skew)

	if myAsk.Sub(myBid).LessThan(m.cfg.MinEdge.Mul(decimal.NewFromInt(2))) {
		return decimal.Zero, decimal.Zero, false
	}

	floor := decimal.NewFromFloat(0.01)
	cap := decimal.NewFromFloat(0.99)
	if myBid.LessThan(floor) {
		myBid = floor
	}
	if myAsk.GreaterThan(cap) {
		myAsk = cap
	}

	tick := m.cfg.TickSize
	bid = roundToTick(myBid, tick, false)
	ask = roundToTick(myAsk, tick, true)
	return bid, ask, true
}

// roundToTick snaps v to the nearest multiple of tick, rounding down for
// bids (never overpay) and up for asks (never undersell).
func roundToTick(v, tick decimal.Decimal, roundUp bool) decimal.Decimal {
	if tick.IsZero() {
		return v
	}
	units := v.Div(tick)
	if roundUp {
		units = units.Ceil()
	} else {
		units = units.Floor()
	}
	return units.Mul(tick)
}
