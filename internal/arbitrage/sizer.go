package arbitrage

import (
	"github.com/shopspring/decimal"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

// Sizer decides the notional committed to each leg of a pair.
type Sizer interface {
	Size(poly, kalshi domain.Market) decimal.Decimal
}

// FlatSizer commits the same configured notional to every opportunity.
type FlatSizer struct {
	Amount decimal.Decimal
}

func (f FlatSizer) Size(domain.Market, domain.Market) decimal.Decimal { return f.Amount }
