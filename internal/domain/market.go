package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Platform identifies a trading venue. The string value is what gets
// persisted, so it must stay stable and lowercase.
type Platform string

const (
	PlatformPolymarket Platform = "polymarket"
	PlatformKalshi     Platform = "kalshi"
)

// Valid reports whether p is one of the known venues.
func (p Platform) Valid() bool {
	return p == PlatformPolymarket || p == PlatformKalshi
}

func (p Platform) String() string { return string(p) }

// ParsePlatform converts a persisted identifier back to a Platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown platform %q", s)
	}
	return p, nil
}

// Market is a binary question listed on one venue, normalized to a common
// shape. Prices are probabilities in [0,1]; YesPrice+NoPrice need not sum
// to 1 because the two sides come from different sides of the book.
type Market struct {
	ID        string          `json:"id"`
	Question  string          `json:"question"`
	Platform  Platform        `json:"platform"`
	YesPrice  decimal.Decimal `json:"yes_price"`
	NoPrice   decimal.Decimal `json:"no_price"`
	Volume    decimal.Decimal `json:"volume"`
	Liquidity decimal.Decimal `json:"liquidity"`
	EndTime   time.Time       `json:"end_time"`
}
