package polymarket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

// --------------------------------------------------------------------------
// Market API DTOs
// --------------------------------------------------------------------------

// MarketsResponse is the body of GET /markets. Records are kept raw so one
// bad market can be dropped without failing the batch.
type MarketsResponse struct {
	Markets []json.RawMessage `json:"markets"`
}

// APIMarket is a Polymarket market. Numeric fields arrive as decimal
// strings; decimal.Decimal accepts both quoted and bare numbers.
type APIMarket struct {
	ID        string          `json:"id"`
	Question  string          `json:"question"`
	BestBid   decimal.Decimal `json:"bestBid"`
	BestAsk   decimal.Decimal `json:"bestAsk"`
	Volume    decimal.Decimal `json:"volume"`
	Liquidity decimal.Decimal `json:"liquidity"`
	EndDate   string          `json:"endDate"`
}

// --------------------------------------------------------------------------
// Order API DTOs
// --------------------------------------------------------------------------

// OrderBody is the body of POST /orders. Maker, Signature and Nonce are
// only sent when a wallet signer is configured.
type OrderBody struct {
	MarketID  string `json:"market_id"`
	Side      string `json:"side"` // "buy" or "sell"
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	Maker     string `json:"maker,omitempty"`
	Signature string `json:"signature,omitempty"`
	Nonce     string `json:"nonce,omitempty"`
}

// APIOrderResult is the response to POST /orders.
type APIOrderResult struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	ErrorMsg string `json:"errorMsg"`
}

// --------------------------------------------------------------------------
// Conversion
// --------------------------------------------------------------------------

// ToDomainMarket normalizes m. yes_price is the best ask and no_price the
// best bid.
func (m *APIMarket) ToDomainMarket() (domain.Market, error) {
	if m.ID == "" {
		return domain.Market{}, &domain.MalformedRecordError{Platform: domain.PlatformPolymarket, Reason: "empty id"}
	}
	end, err := time.Parse(time.RFC3339, m.EndDate)
	if err != nil {
		return domain.Market{}, &domain.MalformedRecordError{
			Platform: domain.PlatformPolymarket,
			RecordID: m.ID,
			Reason:   fmt.Sprintf("endDate %q: %v", m.EndDate, err),
		}
	}

	return domain.Market{
		ID:        m.ID,
		Question:  m.Question,
		Platform:  domain.PlatformPolymarket,
		YesPrice:  m.BestAsk,
		NoPrice:   m.BestBid,
		Volume:    m.Volume,
		Liquidity: m.Liquidity,
		EndTime:   end.UTC(),
	}, nil
}

// decodeMarket decodes and normalizes one raw market record.
func decodeMarket(raw json.RawMessage) (domain.Market, error) {
	var m APIMarket
	if err := json.Unmarshal(raw, &m); err != nil {
		var probe struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(raw, &probe)
		return domain.Market{}, &domain.MalformedRecordError{
			Platform: domain.PlatformPolymarket,
			RecordID: probe.ID,
			Reason:   fmt.Sprintf("decode: %v", err),
		}
	}
	return m.ToDomainMarket()
}
