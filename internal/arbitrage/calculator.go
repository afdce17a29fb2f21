// Package arbitrage prices matched Polymarket/Kalshi market pairs and
// decides which of them are worth trading.
package arbitrage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

// DirectionalProfit is the fractional return of buying at buy and selling
// at sell, floored at zero. A non-positive buy price yields zero.
func DirectionalProfit(buy, sell decimal.Decimal) decimal.Decimal {
	if !buy.IsPositive() {
		return decimal.Zero
	}
	p := sell.Sub(buy).Div(buy)
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}

// Calculator evaluates both trade directions of a matched pair and keeps
// the better one when it clears the minimum profit.
type Calculator struct {
	minProfit decimal.Decimal
	sizer     Sizer
	now       func() time.Time
}

// Option customises a Calculator.
type Option func(*Calculator)

// WithClock overrides the detection timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// NewCalculator returns a calculator accepting opportunities whose profit
// strictly exceeds minProfit (a fraction: 0.02 is 2%).
func NewCalculator(minProfit decimal.Decimal, sizer Sizer, opts ...Option) *Calculator {
	c := &Calculator{
		minProfit: minProfit,
		sizer:     sizer,
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// MinProfit returns the acceptance threshold as a fraction.
func (c *Calculator) MinProfit() decimal.Decimal { return c.minProfit }

// Evaluate prices the pair in both directions:
//
//	1. buy Polymarket yes, sell Kalshi yes
//	2. buy Kalshi yes, sell Polymarket yes
//
// The strictly larger profit wins; ties go to direction 1. The returned
// opportunity has no ID yet; the store assigns one on save.
func (c *Calculator) Evaluate(poly, kalshi domain.Market) (domain.ArbitrageOpportunity, bool) {
	polyFirst := DirectionalProfit(poly.YesPrice, kalshi.YesPrice)
	kalshiFirst := DirectionalProfit(kalshi.YesPrice, poly.YesPrice)

	opp := domain.ArbitrageOpportunity{
		PolymarketMarketID: poly.ID,
		KalshiMarketID:     kalshi.ID,
	}
	if kalshiFirst.GreaterThan(polyFirst) {
		opp.BuyPlatform, opp.SellPlatform = domain.PlatformKalshi, domain.PlatformPolymarket
		opp.BuyPrice, opp.SellPrice = kalshi.YesPrice, poly.YesPrice
		opp.ProfitPercentage = kalshiFirst
	} else {
		opp.BuyPlatform, opp.SellPlatform = domain.PlatformPolymarket, domain.PlatformKalshi
		opp.BuyPrice, opp.SellPrice = poly.YesPrice, kalshi.YesPrice
		opp.ProfitPercentage = polyFirst
	}

	if !opp.ProfitPercentage.GreaterThan(c.minProfit) {
		return domain.ArbitrageOpportunity{}, false
	}

	opp.PositionSize = c.sizer.Size(poly, kalshi)
	opp.EstimatedProfit = opp.PositionSize.Mul(opp.ProfitPercentage)
	opp.DetectedAt = c.now().UTC()
	return opp, true
}
