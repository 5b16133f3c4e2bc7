package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/api"
	"polymarket-mm/internal/position"
	"polymarket-mm/pkg/types"
)

// GetMarketsSnapshot reports per-market book/position/quote state for the
// dashboard. Satisfies api.MarketSnapshotProvider.
func (e *Engine) GetMarketsSnapshot() []api.MarketStatus {
	out := make([]api.MarketStatus, 0, len(e.markets))
	for tokenID, mkt := range e.markets {
		status := api.MarketStatus{
			TokenID:  string(tokenID),
			Slug:     mkt.Slug,
			Question: mkt.Question,
		}
		if mkt.EndDate != nil {
			status.EndDate = *mkt.EndDate
		}
		if mkt.Liquidity != nil {
			status.Liquidity, _ = mkt.Liquidity.Float64()
		}

		if ob, ok := e.hub.GetBook(tokenID); ok {
			if mid, ok := ob.MidPrice(); ok {
				status.MidPrice, _ = mid.Float64()
			}
			if bid, ok := ob.BestBid(); ok {
				status.BestBid, _ = bid.Price.Float64()
			}
			if ask, ok := ob.BestAsk(); ok {
				status.BestAsk, _ = ask.Price.Float64()
			}
			if spread, ok := ob.Spread(); ok {
				status.Spread, _ = spread.Float64()
			}
			if spreadBps, ok := ob.SpreadBps(); ok {
				status.SpreadBps, _ = spreadBps.Float64()
			}
			status.LastUpdated = time.UnixMilli(ob.TimestampMs)
			status.IsStale = time.Since(status.LastUpdated) > e.staleBookTimeout()
		}

		if pos, ok := e.positions.Get(tokenID); ok {
			status.Position = positionSnapshot(pos)
		}

		out = append(out, status)
	}
	return out
}

func positionSnapshot(pos position.Position) api.PositionSnapshot {
	size, _ := pos.Size.Float64()
	avg, _ := pos.AvgEntryPrice.Float64()
	realized, _ := pos.RealizedPnl.Float64()
	unrealized, _ := pos.UnrealizedPnl.Float64()
	notional, _ := pos.Notional().Float64()
	return api.PositionSnapshot{
		Size:          size,
		AvgEntryPrice: avg,
		RealizedPnL:   realized,
		UnrealizedPnL: unrealized,
		ExposureUSD:   notional,
	}
}

func (e *Engine) staleBookTimeout() time.Duration {
	if e.cfg.Strategy.StaleBookTimeout > 0 {
		return e.cfg.Strategy.StaleBookTimeout
	}
	return 10 * time.Second
}

// GetRiskSnapshot reports aggregate risk state for the dashboard. Satisfies
// api.MarketSnapshotProvider.
func (e *Engine) GetRiskSnapshot() api.RiskSnapshot {
	snap := e.riskMgr.GetRiskSnapshot(e.positions)

	global, _ := snap.GlobalExposure.Float64()
	maxGlobal, _ := snap.MaxGlobalExposure.Float64()
	pct := 0.0
	if maxGlobal > 0 {
		pct = global / maxGlobal * 100
	}
	maxPos, _ := snap.MaxPositionPerMarket.Float64()
	maxLoss, _ := snap.MaxDailyLoss.Float64()

	return api.RiskSnapshot{
		GlobalExposure:       global,
		MaxGlobalExposure:    maxGlobal,
		ExposurePct:          pct,
		KillSwitchActive:     snap.Halted,
		KillSwitchReason:     snap.HaltReason,
		TotalRealizedPnL:     mustFloat(e.positions.TotalRealized()),
		TotalUnrealizedPnL:   mustFloat(e.positions.TotalUnrealized()),
		MaxPositionPerMarket: maxPos,
		MaxDailyLoss:         maxLoss,
		MaxOpenOrders:        snap.MaxOpenOrders,
		OpenReservations:     snap.OpenReservations,
	}
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// DashboardEvents exposes the fill event stream to the dashboard server,
// which type-asserts for this method (see api.Server.consumeEvents).
func (e *Engine) DashboardEvents() <-chan api.DashboardEvent {
	return e.dashboardCh
}

// publishFillEvent translates an applied fill into a dashboard event. Called
// from the trading loop after a fill has already been applied to positions.
func (e *Engine) publishFillEvent(fill types.Fill) {
	if e.dashboardCh == nil {
		return
	}
	pos, _ := e.positions.Get(fill.TokenID)
	slug := string(fill.TokenID)
	if mkt, ok := e.markets[fill.TokenID]; ok {
		slug = mkt.Slug
	}

	price, _ := fill.Price.Float64()
	size, _ := fill.Size.Float64()
	snap := positionSnapshot(pos)

	evt := api.NewFillEvent(types.WSTradeEvent{ID: fill.OrderID, Side: sideString(fill.IsBuy)}, snap, slug, price, size)

	select {
	case e.dashboardCh <- api.DashboardEvent{
		Type:      "fill",
		Timestamp: fill.Timestamp,
		MarketID:  slug,
		Data:      evt,
	}:
	default:
	}
}

func sideString(isBuy bool) string {
	if isBuy {
		return "BUY"
	}
	return "SELL"
}
