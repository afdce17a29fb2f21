package polymarket

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

const defaultMarketLimit = 500

// Venue adapts the Polymarket client to domain.Venue.
type Venue struct {
	client *Client
	limit  int
	logger *slog.Logger
}

var _ domain.Venue = (*Venue)(nil)

// NewVenue creates a Polymarket venue. A non-positive limit falls back to
// 500 markets per fetch.
func NewVenue(client *Client, limit int, logger *slog.Logger) *Venue {
	if limit <= 0 {
		limit = defaultMarketLimit
	}
	return &Venue{
		client: client,
		limit:  limit,
		logger: logger.With(slog.String("component", "polymarket")),
	}
}

func (v *Venue) Platform() domain.Platform { return domain.PlatformPolymarket }

// FetchMarkets returns the normalized active markets. Malformed records are
// logged and dropped.
func (v *Venue) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	resp, err := v.client.GetMarkets(ctx, v.limit)
	if err != nil {
		return nil, &domain.FetchError{Platform: domain.PlatformPolymarket, Err: err}
	}

	markets := make([]domain.Market, 0, len(resp.Markets))
	for _, raw := range resp.Markets {
		m, err := decodeMarket(raw)
		if err != nil {
			v.logger.WarnContext(ctx, "polymarket: dropping malformed market",
				slog.String("error", err.Error()),
			)
			continue
		}
		markets = append(markets, m)
	}

	v.logger.DebugContext(ctx, "polymarket: markets fetched",
		slog.Int("markets", len(markets)),
		slog.Int("dropped", len(resp.Markets)-len(markets)),
	)
	return markets, nil
}

// PlaceOrder submits one leg as a limit order.
func (v *Venue) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	if req.MarketID == "" {
		return "", fmt.Errorf("polymarket: empty market id: %w", domain.ErrInvalidOrder)
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return "", fmt.Errorf("polymarket: unknown side %q: %w", req.Side, domain.ErrInvalidOrder)
	}
	if !req.Price.IsPositive() || req.Price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return "", fmt.Errorf("polymarket: price %s outside (0,1): %w", req.Price, domain.ErrInvalidOrder)
	}
	if !req.Size.IsPositive() {
		return "", fmt.Errorf("polymarket: non-positive size %s: %w", req.Size, domain.ErrInvalidOrder)
	}

	id, err := v.client.PostOrder(ctx, OrderBody{
		MarketID: req.MarketID,
		Side:     string(req.Side),
		Price:    req.Price.String(),
		Amount:   req.Size.String(),
	})
	if err != nil {
		return "", err
	}

	v.logger.InfoContext(ctx, "polymarket: order placed",
		slog.String("order_id", id),
		slog.String("market_id", req.MarketID),
		slog.String("side", string(req.Side)),
		slog.String("price", req.Price.String()),
		slog.String("amount", req.Size.String()),
	)
	return id, nil
}
