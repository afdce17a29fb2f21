package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether a leg buys or sells the yes side.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderRequest is a venue-neutral limit order. Each venue adapter
// translates it into its own wire schema.
type OrderRequest struct {
	MarketID string
	Side     OrderSide
	Price    decimal.Decimal
	Size     decimal.Decimal
}

// LegStatus tracks a single execution leg.
type LegStatus string

const (
	LegStatusPending LegStatus = "pending"
	LegStatusPlaced  LegStatus = "placed"
	LegStatusFailed  LegStatus = "failed"
)

// ExecutionLeg is the persisted record of one order of an opportunity's
// two-leg execution. A buy leg in LegStatusPlaced whose sell sibling is
// LegStatusFailed is an unreconciled single-leg position.
type ExecutionLeg struct {
	ID            string          `json:"id"`
	OpportunityID string          `json:"opportunity_id"`
	Side          OrderSide       `json:"side"`
	Platform      Platform        `json:"platform"`
	MarketID      string          `json:"market_id"`
	Price         decimal.Decimal `json:"price"`
	Size          decimal.Decimal `json:"size"`
	Status        LegStatus       `json:"status"`
	OrderID       string          `json:"order_id,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Notional is price times size.
func (l ExecutionLeg) Notional() decimal.Decimal {
	return l.Price.Mul(l.Size)
}

// ExposureSummary aggregates placed legs since some cutoff.
type ExposureSummary struct {
	// OpenPositions counts opportunities with at least one placed leg.
	OpenPositions int
	// UnreconciledNotional sums the notional of placed buy legs whose sell
	// leg failed.
	UnreconciledNotional decimal.Decimal
}
