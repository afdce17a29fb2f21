package domain

import "context"

// MarketProvider fetches and normalizes the open markets of one venue.
// Records that cannot be normalized are dropped; they never fail the batch.
type MarketProvider interface {
	Platform() Platform
	FetchMarkets(ctx context.Context) ([]Market, error)
}

// OrderPlacer submits a limit order and returns the venue's order id.
type OrderPlacer interface {
	Platform() Platform
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)
}

// Venue is a full venue adapter.
type Venue interface {
	MarketProvider
	OrderPlacer
}
