package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

const (
	defaultPageLimit = 200
	defaultMaxPages  = 5
)

var (
	hundred  = decimal.NewFromInt(100)
	minCents = decimal.NewFromInt(1)
	maxCents = decimal.NewFromInt(99)
)

// Venue adapts the Kalshi REST client to domain.Venue.
type Venue struct {
	client    *Client
	pageLimit int
	maxPages  int
	logger    *slog.Logger
}

var _ domain.Venue = (*Venue)(nil)

// NewVenue creates a Kalshi venue. Non-positive pageLimit or maxPages fall
// back to 200 and 5.
func NewVenue(client *Client, pageLimit, maxPages int, logger *slog.Logger) *Venue {
	if pageLimit <= 0 {
		pageLimit = defaultPageLimit
	}
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	return &Venue{
		client:    client,
		pageLimit: pageLimit,
		maxPages:  maxPages,
		logger:    logger.With(slog.String("component", "kalshi")),
	}
}

func (v *Venue) Platform() domain.Platform { return domain.PlatformKalshi }

// FetchMarkets pages through open markets and normalizes them. Malformed
// records are logged and dropped.
func (v *Venue) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	var (
		markets []domain.Market
		cursor  string
		dropped int
	)
	for page := 0; page < v.maxPages; page++ {
		resp, err := v.client.GetMarkets(ctx, MarketsQuery{
			Limit:  v.pageLimit,
			Cursor: cursor,
			Status: "open",
		})
		if err != nil {
			return nil, &domain.FetchError{Platform: domain.PlatformKalshi, Err: err}
		}

		for _, raw := range resp.Markets {
			m, err := decodeMarket(raw)
			if err != nil {
				dropped++
				v.logger.WarnContext(ctx, "kalshi: dropping malformed market",
					slog.String("error", err.Error()),
				)
				continue
			}
			markets = append(markets, m)
		}

		if resp.Cursor == "" || len(resp.Markets) == 0 {
			break
		}
		cursor = resp.Cursor
	}

	v.logger.DebugContext(ctx, "kalshi: markets fetched",
		slog.Int("markets", len(markets)),
		slog.Int("dropped", dropped),
	)
	return markets, nil
}

// PlaceOrder translates a leg into a Kalshi limit order. The buy leg buys
// yes; the sell leg buys no at the same yes price.
func (v *Venue) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	order, err := toKalshiOrder(req)
	if err != nil {
		return "", err
	}

	id, err := v.client.PlaceOrder(ctx, order)
	if err != nil {
		return "", err
	}

	v.logger.InfoContext(ctx, "kalshi: order placed",
		slog.String("order_id", id),
		slog.String("ticker", order.Ticker),
		slog.String("side", order.Side),
		slog.Int64("count", order.Count),
		slog.Int64("yes_price", *order.YesPrice),
	)
	return id, nil
}

func toKalshiOrder(req domain.OrderRequest) (KalshiOrder, error) {
	if req.MarketID == "" {
		return KalshiOrder{}, fmt.Errorf("kalshi: empty ticker: %w", domain.ErrInvalidOrder)
	}

	var side string
	switch req.Side {
	case domain.OrderSideBuy:
		side = "yes"
	case domain.OrderSideSell:
		side = "no"
	default:
		return KalshiOrder{}, fmt.Errorf("kalshi: unknown side %q: %w", req.Side, domain.ErrInvalidOrder)
	}

	cents := req.Price.Mul(hundred).Round(0)
	if cents.LessThan(minCents) || cents.GreaterThan(maxCents) {
		return KalshiOrder{}, fmt.Errorf("kalshi: price %s outside 1..99 cents: %w", req.Price, domain.ErrInvalidOrder)
	}
	count := req.Size.IntPart()
	if count < 1 {
		return KalshiOrder{}, fmt.Errorf("kalshi: size %s below one contract: %w", req.Size, domain.ErrInvalidOrder)
	}

	yesPrice := cents.IntPart()
	return KalshiOrder{
		Ticker:   req.MarketID,
		Action:   "buy",
		Side:     side,
		Type:     "limit",
		Count:    count,
		YesPrice: &yesPrice,
	}, nil
}

// decodeMarket decodes and normalizes one raw market record.
func decodeMarket(raw json.RawMessage) (domain.Market, error) {
	var km KalshiMarket
	if err := json.Unmarshal(raw, &km); err != nil {
		return domain.Market{}, &domain.MalformedRecordError{
			Platform: domain.PlatformKalshi,
			Reason:   fmt.Sprintf("decode: %v", err),
		}
	}
	return normalizeMarket(km)
}

func normalizeMarket(km KalshiMarket) (domain.Market, error) {
	malformed := func(reason string) error {
		return &domain.MalformedRecordError{Platform: domain.PlatformKalshi, RecordID: km.Ticker, Reason: reason}
	}

	if km.Ticker == "" {
		return domain.Market{}, malformed("empty ticker")
	}
	for name, cents := range map[string]decimal.Decimal{"yes_ask": km.YesAsk, "yes_bid": km.YesBid} {
		if cents.IsNegative() || cents.GreaterThan(hundred) {
			return domain.Market{}, malformed(fmt.Sprintf("%s %s outside 0..100 cents", name, cents))
		}
	}
	end, err := time.Parse(time.RFC3339, km.CloseTime)
	if err != nil {
		return domain.Market{}, malformed(fmt.Sprintf("close_time %q: %v", km.CloseTime, err))
	}

	return domain.Market{
		ID:        km.Ticker,
		Question:  km.Title,
		Platform:  domain.PlatformKalshi,
		YesPrice:  km.YesAsk.Div(hundred),
		NoPrice:   hundred.Sub(km.YesBid).Div(hundred),
		Volume:    km.Volume,
		Liquidity: km.OpenInterest,
		EndTime:   end.UTC(),
	}, nil
}
