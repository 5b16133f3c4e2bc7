package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"polymarket-mm/pkg/types"
)

// Submitter adapts the REST Client to the order.Submitter port, tripping a
// circuit breaker on repeated submission failures so a degraded exchange
// doesn't get hammered with retries from every tick.
type Submitter struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[[]types.OrderResponse]
	dryRun bool
	logger *slog.Logger
}

func NewSubmitter(client *Client, dryRun bool, logger *slog.Logger) *Submitter {
	st := gobreaker.Settings{
		Name:        "clob-orders",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from, "to", to)
		},
	}
	return &Submitter{
		client: client,
		cb:     gobreaker.NewCircuitBreaker[[]types.OrderResponse](st),
		dryRun: dryRun,
		logger: logger.With("component", "submitter"),
	}
}

func (s *Submitter) IsDryRun() bool { return s.dryRun }

func (s *Submitter) PlaceLimit(ctx context.Context, tokenID types.TokenId, isBuy bool, price, size decimal.Decimal) (string, error) {
	side := types.SELL
	if isBuy {
		side = types.BUY
	}
	priceF, _ := price.Float64()
	sizeF, _ := size.Float64()

	order := types.UserOrder{
		TokenID:   string(tokenID),
		Price:     priceF,
		Size:      sizeF,
		Side:      side,
		OrderType: types.OrderTypeGTC,
		TickSize:  types.Tick001,
	}

	results, err := s.cb.Execute(func() ([]types.OrderResponse, error) {
		return s.client.PostOrders(ctx, []types.UserOrder{order}, false)
	})
	if err != nil {
		return "", fmt.Errorf("place limit: %w", err)
	}
	if len(results) == 0 || !results[0].Success {
		return "", fmt.Errorf("place limit: order rejected")
	}
	return results[0].OrderID, nil
}

func (s *Submitter) Cancel(ctx context.Context, orderID string) error {
	return s.CancelMany(ctx, []string{orderID})
}

func (s *Submitter) CancelMany(ctx context.Context, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	_, err := s.cb.Execute(func() ([]types.OrderResponse, error) {
		_, err := s.client.CancelOrders(ctx, orderIDs)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("cancel orders: %w", err)
	}
	return nil
}
