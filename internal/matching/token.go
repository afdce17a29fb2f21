package matching

import "github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"

// Jaccard is |A∩B| / |A∪B| over the lower-cased whitespace tokens of a and
// b. Two empty token sets score 0.
func Jaccard(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

// TokenSimilarity matches questions whose Jaccard similarity strictly
// exceeds Threshold.
type TokenSimilarity struct {
	Threshold float64
}

func (TokenSimilarity) Name() string { return "token" }

func (s TokenSimilarity) Match(poly, kalshi []domain.Market) []Pair {
	return pairwise(poly, kalshi, func(p, k domain.Market) bool {
		return Jaccard(p.Question, k.Question) > s.Threshold
	})
}
