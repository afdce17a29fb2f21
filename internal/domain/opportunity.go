package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ArbitrageOpportunity is a priced two-venue trade: buy the yes side where
// it is cheap, sell it where it is dear. Rows are append-only; the only
// mutation ever applied is flipping Executed once both legs are placed.
type ArbitrageOpportunity struct {
	ID                 string          `json:"id"`
	PolymarketMarketID string          `json:"polymarket_market_id"`
	KalshiMarketID     string          `json:"kalshi_market_id"`
	BuyPlatform        Platform        `json:"buy_platform"`
	SellPlatform       Platform        `json:"sell_platform"`
	BuyPrice           decimal.Decimal `json:"buy_price"`
	SellPrice          decimal.Decimal `json:"sell_price"`
	ProfitPercentage   decimal.Decimal `json:"profit_percentage"`
	PositionSize       decimal.Decimal `json:"position_size"`
	EstimatedProfit    decimal.Decimal `json:"estimated_profit"`
	DetectedAt         time.Time       `json:"detected_at"`
	Executed           bool            `json:"executed"`
}

// MarketIDOn returns the venue-local market id used on platform p.
func (o ArbitrageOpportunity) MarketIDOn(p Platform) string {
	if p == PlatformKalshi {
		return o.KalshiMarketID
	}
	return o.PolymarketMarketID
}

// PairKey identifies the matched market pair independent of direction.
func (o ArbitrageOpportunity) PairKey() string {
	return o.PolymarketMarketID + "|" + o.KalshiMarketID
}
