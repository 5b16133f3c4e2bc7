package strategy

import (
	"testing"

	"polymarket-mm/pkg/types"
)

func TestMarketMakerTickEmitsCancelThenQuotes(t *testing.T) {
	tokenID := types.TokenId("tok1")
	mm := NewMarketMaker(DefaultMarketMakerConfig(), tokenID)

	ctx := newCtxWithBook(tokenID, dec("0.48"), dec("0.52"))
	signals := mm.OnTick(ctx)

	if len(signals) == 0 {
		t.Fatal("expected at least one signal")
	}
	if signals[0].Kind != types.SignalCancel {
		t.Fatalf("expected first signal to be Cancel, got %v", signals[0].Kind)
	}

	var sawBuy, sawSell bool
	for _, s := range signals[1:] {
		if s.Kind == types.SignalBuy {
			sawBuy = true
		}
		if s.Kind == types.SignalSell {
			sawSell = true
		}
	}
	if !sawBuy || !sawSell {
		t.Fatalf("expected both a buy and sell quote, signals=%+v", signals)
	}
}

func TestMarketMakerSkipsTokensWithoutABook(t *testing.T) {
	mm := NewMarketMaker(DefaultMarketMakerConfig(), types.TokenId("missing"))
	ctx := newCtxWithBook("other", dec("0.48"), dec("0.52"))

	signals := mm.OnTick(ctx)
	if len(signals) != 0 {
		t.Fatalf("expected no signals for a token without a book, got %+v", signals)
	}
}

func TestMarketMakerBidNeverCrossesAsk(t *testing.T) {
	cfg := DefaultMarketMakerConfig()
	tokenID := types.TokenId("tok1")
	mm := NewMarketMaker(cfg, tokenID)

	bid, ask, ok := mm.computeQuotes(dec("0.50"), dec("0"), 1.0)
	if ok && bid.GreaterThanOrEqual(ask) {
		t.Fatalf("bid %s must be strictly below ask %s", bid, ask)
	}
}

func TestMarketMakerOnFillFeedsFlowTracker(t *testing.T) {
	tokenID := types.TokenId("tok1")
	mm := NewMarketMaker(DefaultMarketMakerConfig(), tokenID)

	mm.OnFill(types.Fill{TokenID: tokenID, IsBuy: true, Price: dec("0.50"), Size: dec("5")})
	if mm.flowFor(tokenID).GetFillCount() != 1 {
		t.Fatal("expected fill recorded in flow tracker")
	}
}

// TestMarketMakerScenarios asserts the literal bid/ask numbers a market-maker
// with spread 200bps, order size 10, skew 0.001 must produce against a
// bid 0.45 / ask 0.55 book, at varying position sizes.
func TestMarketMakerScenarios(t *testing.T) {
	cases := []struct {
		name        string
		position    string
		maxPosition string
		wantBid     string
		wantAsk     string
		wantBuy     bool
		wantSell    bool
	}{
		{
			name:        "flat position",
			position:    "0",
			maxPosition: "100",
			wantBid:     "0.495",
			wantAsk:     "0.505",
			wantBuy:     true,
			wantSell:    true,
		},
		{
			name:        "long position skews quotes",
			position:    "50",
			maxPosition: "100",
			wantBid:     "0.445",
			wantAsk:     "0.455",
			wantBuy:     true,
			wantSell:    true,
		},
		{
			name:        "at max long, no buy",
			position:    "100",
			maxPosition: "100",
			wantBid:     "0.395",
			wantAsk:     "0.405",
			wantBuy:     false,
			wantSell:    true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tokenID := types.TokenId("tok1")
			cfg := DefaultMarketMakerConfig()
			cfg.MaxPosition = dec(c.maxPosition)
			mm := NewMarketMaker(cfg, tokenID)

			ctx := newCtxWithBook(tokenID, dec("0.45"), dec("0.55"))
			ctx.Positions.ApplyFill(types.Fill{
				TokenID: tokenID,
				IsBuy:   true,
				Price:   dec("0.50"),
				Size:    dec(c.position),
			})

			signals := mm.OnTick(ctx)

			var gotBuy, gotSell bool
			for _, s := range signals {
				switch s.Kind {
				case types.SignalBuy:
					gotBuy = true
					if !s.Price.Equal(dec(c.wantBid)) {
						t.Errorf("buy price = %s, want %s", s.Price, c.wantBid)
					}
				case types.SignalSell:
					gotSell = true
					if !s.Price.Equal(dec(c.wantAsk)) {
						t.Errorf("sell price = %s, want %s", s.Price, c.wantAsk)
					}
				}
			}
			if gotBuy != c.wantBuy {
				t.Errorf("saw buy = %v, want %v", gotBuy, c.wantBuy)
			}
			if gotSell != c.wantSell {
				t.Errorf("saw sell = %v, want %v", gotSell, c.wantSell)
			}
		})
	}
}
