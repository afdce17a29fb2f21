package kalshi

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// KalshiMarket is the subset of a Kalshi market the bot reads. Prices are
// in cents (0-100).
type KalshiMarket struct {
	Ticker       string          `json:"ticker"`
	EventTicker  string          `json:"event_ticker"`
	Title        string          `json:"title"`
	Subtitle     string          `json:"subtitle"`
	Status       string          `json:"status"` // "open", "closed", "settled"
	YesBid       decimal.Decimal `json:"yes_bid"`
	YesAsk       decimal.Decimal `json:"yes_ask"`
	NoBid        decimal.Decimal `json:"no_bid"`
	NoAsk        decimal.Decimal `json:"no_ask"`
	LastPrice    decimal.Decimal `json:"last_price"`
	Volume       decimal.Decimal `json:"volume"`
	OpenInterest decimal.Decimal `json:"open_interest"`
	CloseTime    string          `json:"close_time"`
}

// MarketsPage is one page of GET /markets. Markets are kept raw so a single
// bad record can be dropped without failing the page.
type MarketsPage struct {
	Markets []json.RawMessage `json:"markets"`
	Cursor  string            `json:"cursor"`
}

// MarketsQuery filters GET /markets.
type MarketsQuery struct {
	Limit  int
	Cursor string
	Status string
}

// KalshiOrder is the body of POST /portfolio/orders.
type KalshiOrder struct {
	Ticker   string `json:"ticker"`
	Action   string `json:"action"` // "buy" or "sell"
	Side     string `json:"side"`   // "yes" or "no"
	Type     string `json:"type"`   // "market" or "limit"
	Count    int64  `json:"count"`  // number of contracts
	YesPrice *int64 `json:"yes_price,omitempty"` // limit price in cents (1-99)
	NoPrice  *int64 `json:"no_price,omitempty"`
}

// KalshiOrderResponse is the API response after placing an order.
type KalshiOrderResponse struct {
	Order struct {
		OrderID        string `json:"order_id"`
		Ticker         string `json:"ticker"`
		Status         string `json:"status"` // "resting", "canceled", "executed", "pending"
		Action         string `json:"action"`
		Side           string `json:"side"`
		Type           string `json:"type"`
		YesPrice       int64  `json:"yes_price"`
		RemainingCount int64  `json:"remaining_count"`
	} `json:"order"`
}

// KalshiErrorResponse is a Kalshi API error body.
type KalshiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
