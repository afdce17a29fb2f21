package matching

import "github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"

// CanonicalJoin pairs markets through an explicit Polymarket id -> Kalshi
// ticker map maintained by an operator. Question text is ignored.
type CanonicalJoin struct {
	Links map[string]string
}

func (CanonicalJoin) Name() string { return "canonical" }

func (c CanonicalJoin) Match(poly, kalshi []domain.Market) []Pair {
	byTicker := make(map[string][]domain.Market, len(kalshi))
	for _, k := range kalshi {
		byTicker[k.ID] = append(byTicker[k.ID], k)
	}
	var out []Pair
	for _, p := range poly {
		ticker, ok := c.Links[p.ID]
		if !ok {
			continue
		}
		for _, k := range byTicker[ticker] {
			out = append(out, Pair{Polymarket: p, Kalshi: k})
		}
	}
	return out
}
