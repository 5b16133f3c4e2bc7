package strategy

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

// SureSweepConfig gates the high-certainty sweep strategy: it only buys
// outcomes trading above MinCertainty, close enough to expiry that the
// capital turns over quickly, with a minimum annualized-agnostic expected
// return per dollar risked.
type SureSweepConfig struct {
	MinCertainty      decimal.Decimal
	MaxHoursToExpiry  float64
	MaxPositionSize   decimal.Decimal
	MinExpectedReturn decimal.Decimal
	MinOrderSize      decimal.Decimal
	MaxSingleOrder    decimal.Decimal
	MinLiquidity      decimal.Decimal
}

func DefaultSureSweepConfig() SureSweepConfig {
	return SureSweepConfig{
		MinCertainty:      decimal.NewFromFloat(0.95),
		MaxHoursToExpiry:  2.0,
		MaxPositionSize:   decimal.NewFromInt(100),
		MinExpectedReturn: decimal.NewFromFloat(0.01),
		MinOrderSize:      decimal.NewFromInt(10),
		MaxSingleOrder:    decimal.NewFromInt(50),
		MinLiquidity:      decimal.NewFromInt(500),
	}
}

// SureSweep buys outcomes the market has already all but settled, betting
// the tiny remaining spread converges to par before expiry. It never quotes
// — it only takes liquidity that is already cheap enough to clear its
// certainty and return thresholds.
type SureSweep struct {
	cfg    SureSweepConfig
	subs   []types.TokenId
	logger *slog.Logger
}

func NewSureSweep(cfg SureSweepConfig, subs ...types.TokenId) *SureSweep {
	return &SureSweep{
		cfg:    cfg,
		subs:   subs,
		logger: slog.Default().With("strategy", "suresweep"),
	}
}

func (s *SureSweep) ID() string                    { return "suresweep" }
func (s *SureSweep) Subscriptions() []types.TokenId { return s.subs }
func (s *SureSweep) RequiresMarketDiscovery() bool  { return true }
func (s *SureSweep) OnFill(fill types.Fill)         {}
func (s *SureSweep) OnShutdown()                    {}

// AddSubscription registers the high-certainty index token for a newly
// discovered market.
func (s *SureSweep) AddSubscription(tokenID types.TokenId) {
	for _, t := range s.subs {
		if t == tokenID {
			return
		}
	}
	s.subs = append(s.subs, tokenID)
}

func (s *SureSweep) OnTick(ctx *Context) []types.Signal {
	var signals []types.Signal
	for _, tokenID := range s.subs {
		market, ok := ctx.Markets[tokenID]
		if !ok || market.EndDate == nil {
			continue
		}
		hoursLeft := time.Until(*market.EndDate).Hours()
		if hoursLeft <= 0 || hoursLeft > s.cfg.MaxHoursToExpiry {
			continue
		}
		if market.Liquidity == nil || market.Liquidity.LessThan(s.cfg.MinLiquidity) {
			continue
		}

		book, ok := ctx.OrderBooks[tokenID]
		if !ok {
			continue
		}
		ask, ok := book.BestAsk()
		if !ok {
			continue
		}
		if ask.Price.LessThan(s.cfg.MinCertainty) {
			continue
		}

		expectedReturn := decimal.NewFromInt(1).Sub(ask.Price).Div(ask.Price)
		if expectedReturn.LessThan(s.cfg.MinExpectedReturn) {
			continue
		}

		pos, _ := ctx.Positions.Get(tokenID)
		remaining := s.cfg.MaxPositionSize.Sub(pos.Size)
		if remaining.Sign() <= 0 {
			continue
		}

		size := decimal.Min(remaining, ask.Size, s.cfg.MaxSingleOrder)
		if size.LessThan(s.cfg.MinOrderSize) {
			continue
		}

		signals = append(signals, types.Buy(tokenID, ask.Price, size, types.UrgencyMedium))
	}
	if len(signals) == 0 {
		return []types.Signal{types.Hold()}
	}
	return signals
}
