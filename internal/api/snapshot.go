package api

import (
	"time"

	"polymarket-mm/internal/config"
)

// MarketSnapshotProvider provides snapshot access to engine state. The
// engine implements it directly; GetRiskSnapshot is computed against the
// engine's own position tracker since the risk manager itself only knows
// about limits and reservations, not positions.
type MarketSnapshotProvider interface {
	GetMarketsSnapshot() []MarketStatus
	GetRiskSnapshot() RiskSnapshot
}

// BuildSnapshot aggregates state from all components into a dashboard snapshot
func BuildSnapshot(
	provider MarketSnapshotProvider,
	cfg config.Config,
) DashboardSnapshot {
	markets := provider.GetMarketsSnapshot()
	riskSnap := provider.GetRiskSnapshot()

	var totalRealized, totalUnrealized float64
	for _, m := range markets {
		totalRealized += m.Position.RealizedPnL
		totalUnrealized += m.Position.UnrealizedPnL
	}

	return DashboardSnapshot{
		Timestamp:       time.Now(),
		Markets:         markets,
		TotalRealized:   totalRealized,
		TotalUnrealized: totalUnrealized,
		TotalPnL:        totalRealized + totalUnrealized,
		Risk:            riskSnap,
		Config:          NewConfigSummary(cfg),
		Scanner: ScannerInfo{
			LastScanTime:    time.Now(),
			MarketsSelected: len(markets),
		},
	}
}
